// Package extraction turns free-form chat text into a structured listing
// record by calling an external text-understanding service.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"wa_listings/models"
)

// ErrExtractionFailed is wrapped by every extraction failure: transport,
// non-success status, unparseable output, or a record with the wrong shape.
var ErrExtractionFailed = errors.New("extraction failed")

// Extractor produces one listing record per call. Implementations never retry.
type Extractor interface {
	Extract(ctx context.Context, text, chatName string) (*models.ListingRecord, error)
}

func failf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtractionFailed, fmt.Sprintf(format, args...))
}

func failErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExtractionFailed, op, err)
}
