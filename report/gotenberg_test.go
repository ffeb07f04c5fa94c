package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "true", r.FormValue("landscape"))
		assert.Equal(t, "true", r.FormValue("printBackground"))
		file, header, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "index.html", header.Filename)
		body, _ := io.ReadAll(file)
		assert.Equal(t, "<h1>hi</h1>", string(body))
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/", time.Second).RenderHTML(context.Background(), []byte("<h1>hi</h1>"), Options{Landscape: true})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
}

func TestRenderHTMLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).RenderHTML(context.Background(), []byte("x"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium crashed")
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("", 0)
	assert.False(t, c.Enabled())
	_, err := c.RenderHTML(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrDisabled)
	require.ErrorIs(t, c.Ping(context.Background()), ErrDisabled)
}
