package extraction

import (
	"errors"
	"strings"
	"testing"

	"wa_listings/models"
)

func TestIsolateJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Here's the result: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`, false},
		{"brace in string", `{"area":"1200 sqft {carpet}"}`, `{"area":"1200 sqft {carpet}"}`, false},
		{"escaped quote", `{"a":"say \"}\" now"}`, `{"a":"say \"}\" now"}`, false},
		{"none", `no json here`, "", true},
		{"two objects", `{"a":1} {"b":2}`, "", true},
		{"unbalanced", `{"a":1`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsolateJSON(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrExtractionFailed) {
					t.Fatalf("expected ErrExtractionFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeRent(t *testing.T) {
	raw := `{"bhk":2,"location":"Downtown","price":null,"rentpermonth":25000,"listing_type":"rent",` +
		`"furnished_status":null,"area":null,"contact":null}`

	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ListingType != models.ListingTypeRent {
		t.Fatalf("listing_type = %s", rec.ListingType)
	}
	if rec.BHK == nil || *rec.BHK != 2 {
		t.Fatalf("bhk = %v", rec.BHK)
	}
	if rec.Location == nil || *rec.Location != "Downtown" {
		t.Fatalf("location = %v", rec.Location)
	}
	if rec.RentPerMonth == nil || *rec.RentPerMonth != 25000 {
		t.Fatalf("rentpermonth = %v", rec.RentPerMonth)
	}
	if rec.Price != nil {
		t.Fatalf("price should be nil, got %v", *rec.Price)
	}
}

func TestDecodeClearsOtherAmount(t *testing.T) {
	rec, err := Decode(`{"listing_type":"Sale","price":25000000,"rentpermonth":50000}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ListingType != models.ListingTypeSale {
		t.Fatalf("listing_type = %s", rec.ListingType)
	}
	if rec.RentPerMonth != nil {
		t.Fatal("rentpermonth should be cleared for a sale")
	}
	if rec.Price == nil || *rec.Price != 25000000 {
		t.Fatalf("price = %v", rec.Price)
	}
}

func TestDecodeRejectsBadShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing type", `{"bhk":2,"rentpermonth":100}`},
		{"unknown type", `{"listing_type":"lease","price":1}`},
		{"rent without amount", `{"listing_type":"rent","rentpermonth":null}`},
		{"sale without price", `{"listing_type":"sale"}`},
		{"bhk as text", `{"listing_type":"rent","rentpermonth":100,"bhk":"two"}`},
		{"not json", `{listing_type: rent}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode(tt.raw)
			if !errors.Is(err, ErrExtractionFailed) {
				t.Fatalf("expected ErrExtractionFailed, got rec=%+v err=%v", rec, err)
			}
		})
	}
}

func TestDecodeBlankStringsBecomeNull(t *testing.T) {
	rec, err := Decode(`{"listing_type":"rent","rentpermonth":100,"location":"  ","contact":" 98200 00000 "}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Location != nil {
		t.Fatalf("location should be nil, got %q", *rec.Location)
	}
	if rec.Contact == nil || *rec.Contact != "98200 00000" {
		t.Fatalf("contact = %v", rec.Contact)
	}
}

func TestPromptIncludesMessage(t *testing.T) {
	p := Prompt("3 BHK for sale", "Mumbai Property")
	if !strings.Contains(p, "3 BHK for sale") || !strings.Contains(p, "Mumbai Property") {
		t.Fatalf("prompt missing inputs:\n%s", p)
	}
}
