package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"wa_listings/models"
)

type fakeUploader struct {
	keys        []string
	contentType string
	body        string
	err         error
}

func (f *fakeUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, _ := io.ReadAll(data)
	f.keys = append(f.keys, key)
	f.contentType = contentType
	f.body = string(b)
	return nil
}

func (f *fakeUploader) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func TestMediaServiceStore(t *testing.T) {
	up := &fakeUploader{}
	svc := NewMediaService(up)

	url, err := svc.Store(context.Background(), &models.Media{MimeType: "image/png", Data: []byte("png-bytes")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(up.keys) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(up.keys))
	}
	if !strings.HasPrefix(up.keys[0], "media/") || !strings.HasSuffix(up.keys[0], ".png") {
		t.Fatalf("unexpected key %s", up.keys[0])
	}
	if url != "https://cdn.example.com/"+up.keys[0] {
		t.Fatalf("url = %s", url)
	}
	if up.body != "png-bytes" || up.contentType != "image/png" {
		t.Fatalf("uploaded %q as %q", up.body, up.contentType)
	}
}

func TestMediaServiceStoreEmpty(t *testing.T) {
	svc := NewMediaService(&fakeUploader{})
	if _, err := svc.Store(context.Background(), &models.Media{}); !errors.Is(err, ErrEmptyMedia) {
		t.Fatalf("expected ErrEmptyMedia, got %v", err)
	}
	if _, err := svc.Store(context.Background(), nil); !errors.Is(err, ErrEmptyMedia) {
		t.Fatalf("expected ErrEmptyMedia for nil, got %v", err)
	}
}

func TestMediaServiceUploadError(t *testing.T) {
	boom := errors.New("bucket gone")
	svc := NewMediaService(&fakeUploader{err: boom})
	_, err := svc.Store(context.Background(), &models.Media{Data: []byte("x")})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
}

func TestGuessExtension(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"flat.PNG", "", ".png"},
		{"", "image/webp", ".webp"},
		{"", "image/jpeg; charset=binary", ".jpg"},
		{"doc.txt", "image/gif", ".gif"},
		{"", "application/octet-stream", ".jpg"},
	}
	for _, tt := range tests {
		if got := guessExtension(tt.filename, tt.contentType); got != tt.want {
			t.Errorf("guessExtension(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
		}
	}
}
