package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/shared"
)

// 1x1 transparent PNG.
var pixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestUploadPostsImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "image/png", r.FormValue("content_type"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "shoe.png", header.Filename)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"secure_url":"https://img.example.com/shoe.png"}`))
	}))
	defer srv.Close()

	u := NewUploader(Config{URL: srv.URL, APIKey: "secret"})
	url, err := u.Upload(context.Background(), `C:\photos\shoe.jpg`, bytes.NewReader(pixel))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/shoe.png", url)
}

func TestUploadRejectsNonImages(t *testing.T) {
	u := NewUploader(Config{URL: "http://unused.invalid"})
	_, err := u.Upload(context.Background(), "notes.txt", strings.NewReader("just some text"))
	require.ErrorIs(t, err, ErrNotImage)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = u.Upload(context.Background(), "empty.png", strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmpty)
}

func TestUploadEnforcesLimit(t *testing.T) {
	u := NewUploader(Config{URL: "http://unused.invalid", MaxBytes: 16})
	_, err := u.Upload(context.Background(), "big.png", bytes.NewReader(pixel))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestUploadDisabled(t *testing.T) {
	u := NewUploader(Config{})
	assert.False(t, u.Enabled())
	_, err := u.Upload(context.Background(), "a.png", bytes.NewReader(pixel))
	require.ErrorIs(t, err, ErrUploadDisabled)
}

func TestUploadSurfacesHostErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	u := NewUploader(Config{URL: srv.URL})
	_, err := u.Upload(context.Background(), "a.png", bytes.NewReader(pixel))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, "Something went wrong. Please try again.", shared.UserSafeMessage(err))
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "photo.png", uploadName("../../photo.jpeg", ".png"))
	assert.Equal(t, "image.webp", uploadName("", ".webp"))
}
