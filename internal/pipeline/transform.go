package pipeline

import (
	"github.com/dvloznov/kyc-ledger/internal/domain"
)

// overviewEntries converts one client's overview into ledger entries. Only
// line items are recorded; section totals are informational. Income is not
// part of the balance sheet and is ignored.
func overviewEntries(co domain.ClientOverview, tag string, src domain.SourceRef) (assets, liabilities []domain.Entry) {
	return sectionEntries(co.Assets, tag, src), sectionEntries(co.Liabilities, tag, src)
}

func sectionEntries(section domain.OverviewSection, tag string, src domain.SourceRef) []domain.Entry {
	out := make([]domain.Entry, 0, len(section.Details))
	for _, d := range section.Details {
		cur := d.Currency
		if cur == "" {
			cur = section.Currency
		}
		s := src
		out = append(out, domain.Entry{
			Description: d.Description,
			Value:       d.Value,
			Category:    tag,
			Currency:    cur,
			Source:      &s,
		})
	}
	return out
}

// itemEntries converts asset or liability stage items into ledger entries.
// Items carrying a type keep it as their category.
func itemEntries(items []ExtractedItem, currency, tag string, src domain.SourceRef) []domain.Entry {
	out := make([]domain.Entry, 0, len(items))
	for _, it := range items {
		cat := tag
		if it.Type != "" {
			cat = it.Type
		}
		s := src
		out = append(out, domain.Entry{
			Description: it.Description,
			Value:       it.Value,
			Category:    cat,
			Currency:    currency,
			Source:      &s,
		})
	}
	return out
}
