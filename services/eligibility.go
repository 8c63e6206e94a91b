package services

import (
	"strings"

	"golang.org/x/text/cases"
)

// EligibilityFilter decides whether a conversation is monitored for listings.
// Direct chats are never eligible. A group is eligible if its name is on the
// allow-list exactly or contains one of the keywords, ignoring case.
type EligibilityFilter struct {
	allowList map[string]struct{}
	keywords  []string
}

func NewEligibilityFilter(allowList, keywords []string) *EligibilityFilter {
	f := &EligibilityFilter{
		allowList: make(map[string]struct{}, len(allowList)),
	}
	for _, name := range allowList {
		f.allowList[name] = struct{}{}
	}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		f.keywords = append(f.keywords, fold(kw))
	}
	return f
}

func (f *EligibilityFilter) IsEligible(isGroup bool, name string) bool {
	if !isGroup {
		return false
	}
	if _, ok := f.allowList[name]; ok {
		return true
	}
	folded := fold(name)
	for _, kw := range f.keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// fold returns the Unicode case-folded form of s. Casers are stateful, so a
// fresh one is used per call to keep the filter safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
