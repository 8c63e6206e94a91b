package services

import "strings"

// DefaultListingTerms is the classifier vocabulary: bedroom count and rental.
var DefaultListingTerms = []string{"bhk", "rent"}

// ListingClassifier is a cheap pre-filter for listing-like text. False
// positives are absorbed by extraction failure; false negatives are dropped.
type ListingClassifier struct {
	terms []string
}

func NewListingClassifier(terms ...string) *ListingClassifier {
	if len(terms) == 0 {
		terms = DefaultListingTerms
	}
	c := &ListingClassifier{}
	for _, t := range terms {
		c.terms = append(c.terms, fold(t))
	}
	return c
}

func (c *ListingClassifier) LooksLikeListing(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	folded := fold(text)
	for _, t := range c.terms {
		if strings.Contains(folded, t) {
			return true
		}
	}
	return false
}
