package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"wa_listings/identity"
	"wa_listings/models"
)

// MaxMediaBytes caps a single attachment.
const MaxMediaBytes = 50 * 1024 * 1024

var ErrEmptyMedia = errors.New("empty media")

// Uploader hosts image bytes and reports where they are reachable.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	PublicURL(key string) string
}

// MediaService stores chat attachments and hands back their public URL.
type MediaService struct {
	uploader Uploader
}

func NewMediaService(uploader Uploader) *MediaService {
	return &MediaService{uploader: uploader}
}

// Store uploads m under its content key and returns the public URL.
func (s *MediaService) Store(ctx context.Context, m *models.Media) (string, error) {
	if m == nil || len(m.Data) == 0 {
		return "", ErrEmptyMedia
	}
	if len(m.Data) > MaxMediaBytes {
		return "", fmt.Errorf("media too large: %d bytes", len(m.Data))
	}

	contentType := m.MimeType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := identity.MediaKey(m.Data, guessExtension(m.Filename, contentType))
	if err := s.uploader.Upload(ctx, key, bytes.NewReader(m.Data), contentType); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return s.uploader.PublicURL(key), nil
}

// guessExtension determines file extension from filename or content-type
func guessExtension(filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext != "" && isImageExt(ext) {
		return ext
	}

	// mimetypes from the chat client may carry parameters
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	switch strings.TrimSpace(strings.ToLower(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff":
		return true
	}
	return false
}
