package domain

import (
	"strings"
)

// ClientKey identifies one client record in the ledger.
type ClientKey string

// NamePrefix marks keys synthesized from a normalized client name.
const NamePrefix = "NAME-"

// UnknownClient is the identifier used when a document names nobody.
const UnknownClient = "UNKNOWN"

// Confidence is the qualitative confidence reported by an extraction task.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps free text to a known confidence, defaulting to low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ClientInfo is the identity extracted from a single document.
type ClientInfo struct {
	ClientID         string     `json:"client_id"`
	ClientName       string     `json:"client_name"`
	NormalizedName   string     `json:"normalized_name,omitempty"`
	AccountNumber    string     `json:"account_number,omitempty"`
	TaxID            string     `json:"tax_id,omitempty"`
	LanguageDetected string     `json:"language_detected,omitempty"`
	Confidence       Confidence `json:"confidence"`
	Source           string     `json:"source,omitempty"`
}

// UnknownClientInfo is what identification falls back to.
func UnknownClientInfo() ClientInfo {
	return ClientInfo{
		ClientID:   UnknownClient,
		ClientName: UnknownClient,
		Confidence: ConfidenceLow,
	}
}

// HasName reports whether the info carries a usable client name.
func (c ClientInfo) HasName() bool {
	n := NormalizeName(c.ClientName)
	return n != "" && n != "unknown"
}

// NormalizeName lower-cases a display name and collapses whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// KeyForName synthesizes the ledger key for a display name.
func KeyForName(name string) ClientKey {
	return ClientKey(NamePrefix + NormalizeName(name))
}

// IsPlaceholderID reports whether an extracted client id carries no identity.
func IsPlaceholderID(id string) bool {
	s := strings.ToUpper(strings.TrimSpace(id))
	switch s {
	case "", UnknownClient, "N/A", "NA", "NONE", "NULL":
		return true
	}
	return strings.Contains(s, "PROP-") || strings.HasPrefix(s, "PLACEHOLDER")
}
