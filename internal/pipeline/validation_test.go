package pipeline

import (
	"testing"

	"github.com/dvloznov/kyc-ledger/internal/domain"
)

func TestParseCategoryLabel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.DocumentCategory
	}{
		{name: "exact label", raw: "BankableAssets", want: domain.BankableAssets},
		{name: "surrounding whitespace", raw: "  Mortgages\n", want: domain.Mortgages},
		{name: "lower case with spaces", raw: "real estate", want: domain.RealEstate},
		{name: "snake case", raw: "private_equity", want: domain.PrivateEquity},
		{name: "hyphenated", raw: "credit-cards", want: domain.CreditCards},
		{name: "quoted", raw: `"Salary"`, want: domain.Salary},
		{name: "markdown bold with period", raw: "**Dividends**.", want: domain.Dividends},
		{name: "prefixed answer", raw: "Category: RentalIncome", want: domain.RentalIncome},
		{name: "unknown label kept trimmed", raw: "  Crypto Wallet ", want: domain.DocumentCategory("Crypto Wallet")},
		{name: "empty", raw: "", want: domain.DocumentCategory("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCategoryLabel(tt.raw)
			if got != tt.want {
				t.Errorf("ParseCategoryLabel(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseCategoryLabel_KnownLabelsRoundTrip(t *testing.T) {
	for _, c := range domain.AllCategories() {
		if got := ParseCategoryLabel(string(c)); got != c {
			t.Errorf("ParseCategoryLabel(%q) = %q", c, got)
		}
		if !ParseCategoryLabel(string(c)).Known() {
			t.Errorf("%q should be known", c)
		}
	}
}

func TestNormalizeLanguageCode(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"en", "en", true},
		{"EN", "en", true},
		{" de ", "de", true},
		{"en-GB", "en", true},
		{"pt_BR", "pt", true},
		{"eng", "", false},
		{"e1", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizeLanguageCode(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("normalizeLanguageCode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
