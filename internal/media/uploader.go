// Package media uploads product images to an external image host.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/stockbook/stockbook/internal/shared"
)

// DefaultMaxBytes caps uploads when no limit is configured.
const DefaultMaxBytes = 5 << 20

var (
	ErrUploadDisabled = shared.Invalid("image uploads are not configured")
	ErrTooLarge       = shared.Invalid("image is too large")
	ErrNotImage       = shared.Invalid("file must be a PNG, JPEG, GIF or WebP image")
	ErrEmpty          = shared.Invalid("image is empty")
)

var allowed = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// Config points the uploader at the media host.
type Config struct {
	URL      string
	APIKey   string
	MaxBytes int64
	Timeout  time.Duration
}

// Uploader posts images to the media host and returns their public URL.
type Uploader struct {
	url        string
	apiKey     string
	maxBytes   int64
	httpClient *http.Client
}

// NewUploader constructs an uploader. An empty URL disables uploads.
func NewUploader(cfg Config) *Uploader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Uploader{
		url:        strings.TrimSpace(cfg.URL),
		apiKey:     cfg.APIKey,
		maxBytes:   cfg.MaxBytes,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether an upload URL is configured.
func (u *Uploader) Enabled() bool { return u != nil && u.url != "" }

// MaxBytes is the largest accepted upload.
func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

type uploadResponse struct {
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
	Data      struct {
		URL string `json:"url"`
	} `json:"data"`
	Error string `json:"error"`
}

func (r uploadResponse) location() string {
	switch {
	case r.SecureURL != "":
		return r.SecureURL
	case r.URL != "":
		return r.URL
	}
	return r.Data.URL
}

// Upload sniffs and forwards one image. The reader is consumed up to the size limit.
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !u.Enabled() {
		return "", ErrUploadDisabled
	}
	data, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("media: read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > u.maxBytes {
		return "", ErrTooLarge
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowed...) {
		return "", ErrNotImage
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", uploadName(filename, mt.Extension()))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.WriteField("content_type", mt.String()); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("media: upload: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var out uploadResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
	if resp.StatusCode >= 400 {
		if out.Error != "" {
			return "", fmt.Errorf("media: host returned %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("media: host returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("media: decode response: %w", decodeErr)
	}
	location := out.location()
	if location == "" {
		return "", fmt.Errorf("media: response carried no url")
	}
	return location, nil
}

// uploadName keeps the base name and forces the sniffed extension.
func uploadName(filename, ext string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base + ext
}
