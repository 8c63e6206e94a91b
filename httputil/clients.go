package httputil

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"
)

type Clients struct {
	Extraction *http.Client // remote /extract or Gemini
	Media      *http.Client // attachment downloads
}

// NewClients builds the shared clients. extractTimeout bounds a whole
// extraction round trip; zero means no client-side limit.
func NewClients(extractTimeout time.Duration) *Clients {
	return &Clients{
		Extraction: &http.Client{Timeout: extractTimeout},
		Media:      &http.Client{Timeout: 60 * time.Second}, // longer timeout for media downloads
	}
}

// Download fetches url into memory, refusing bodies larger than maxBytes.
// It returns the body, the response content type and a filename guess.
func Download(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", "", fmt.Errorf("body exceeds %d bytes", maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	return data, contentType, path.Base(req.URL.Path), nil
}
