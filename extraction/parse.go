package extraction

import (
	"encoding/json"
	"strings"

	"wa_listings/models"
)

// IsolateJSON finds the top-level brace-delimited objects in s. Exactly one
// must be present; braces inside JSON strings are ignored.
func IsolateJSON(s string) (string, error) {
	var found []string
	depth, start := 0, -1
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			// quotes only open strings inside an object
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				found = append(found, s[start:i+1])
			}
		}
	}

	switch len(found) {
	case 0:
		return "", failf("no JSON object in response")
	case 1:
		return found[0], nil
	default:
		return "", failf("%d JSON objects in response", len(found))
	}
}

// Decode isolates, validates and shapes a model response into a record.
func Decode(raw string) (*models.ListingRecord, error) {
	obj, err := IsolateJSON(raw)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, failErr("parse", err)
	}
	if lt, ok := doc["listing_type"].(string); ok {
		doc["listing_type"] = strings.ToLower(strings.TrimSpace(lt))
	}
	if err := listingSchema.Validate(doc); err != nil {
		return nil, failErr("validate", err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, failErr("encode", err)
	}
	var rec models.ListingRecord
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return nil, failErr("decode", err)
	}

	if err := shape(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// shape enforces that exactly one amount is set, matching the listing type.
func shape(rec *models.ListingRecord) error {
	switch rec.ListingType {
	case models.ListingTypeSale:
		if rec.Price == nil {
			return failf("sale listing without price")
		}
		rec.RentPerMonth = nil
	case models.ListingTypeRent:
		if rec.RentPerMonth == nil {
			return failf("rent listing without rentpermonth")
		}
		rec.Price = nil
	default:
		return failf("unknown listing_type %q", rec.ListingType)
	}

	rec.Location = trimmed(rec.Location)
	rec.Area = trimmed(rec.Area)
	rec.FurnishedStatus = trimmed(rec.FurnishedStatus)
	rec.Contact = trimmed(rec.Contact)
	rec.BrokerName = trimmed(rec.BrokerName)
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
