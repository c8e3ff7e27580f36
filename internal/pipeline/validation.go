package pipeline

import (
	"strings"

	"github.com/dvloznov/kyc-ledger/internal/domain"
)

// labelIndex maps the comparison form of every known category to its label.
var labelIndex = func() map[string]domain.DocumentCategory {
	m := make(map[string]domain.DocumentCategory)
	for _, c := range domain.AllCategories() {
		m[labelKey(string(c))] = c
	}
	return m
}()

// ParseCategoryLabel maps a classifier response to a known category.
// Responses that do not name one are returned trimmed but otherwise as-is;
// callers check Known().
func ParseCategoryLabel(raw string) domain.DocumentCategory {
	s := strings.TrimSpace(raw)
	candidate := strings.Trim(s, "\"'`*. \t\n")
	if i := strings.LastIndex(candidate, ":"); i != -1 {
		candidate = strings.TrimSpace(candidate[i+1:])
	}
	if c, ok := labelIndex[labelKey(candidate)]; ok {
		return c
	}
	return domain.DocumentCategory(s)
}

// labelKey compares labels case-insensitively and ignores spaces,
// hyphens and underscores.
func labelKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '-', '_', '"', '\'', '`', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
