package notionsync

import (
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names of the Notion clients database.
const (
	PropClient       = "Client"
	PropClientID     = "Client ID"
	PropAssets       = "Total Assets"
	PropLiabilities  = "Total Liabilities"
	PropNetWorth     = "Net Worth"
	PropCurrency     = "Currency"
	PropCompleteness = "Data Completeness"
	PropDocuments    = "Documents Processed"
	PropMerges       = "Merges"
	PropLastUpdated  = "Last Updated"
)

// ClientToNotionProperties converts a ledger summary, and optionally its net
// worth breakdown, to Notion properties. The client key is the sync identity.
func ClientToNotionProperties(s domain.ClientSummary, nw *domain.NetWorthSummary) notionapi.Properties {
	title := s.ClientName
	if title == "" {
		title = string(s.ClientID)
	}

	props := notionapi.Properties{
		PropClient: notionapi.TitleProperty{
			Title: []notionapi.RichText{text(title)},
		},
		PropClientID: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{text(string(s.ClientID))},
		},
		PropAssets:      number(s.TotalAssets),
		PropLiabilities: number(s.TotalLiabilities),
		PropNetWorth:    number(s.NetWorth),
		PropDocuments:   notionapi.NumberProperty{Number: float64(s.DocumentsProcessed)},
		PropMerges:      notionapi.NumberProperty{Number: float64(s.MergesCount)},
	}

	if !s.LastUpdated.IsZero() {
		d := notionapi.Date(s.LastUpdated)
		props[PropLastUpdated] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if nw == nil {
		return props
	}
	if nw.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{Select: notionapi.Option{Name: nw.Currency}}
	}
	if nw.DataCompleteness != "" {
		props[PropCompleteness] = notionapi.SelectProperty{Select: notionapi.Option{Name: nw.DataCompleteness}}
	}
	return props
}

func text(content string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}
}

func number(d decimal.Decimal) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: d.InexactFloat64()}
}

// extractClientKey reads the Client ID property of a queried page.
// Returns empty string if not found.
func extractClientKey(page notionapi.Page) domain.ClientKey {
	prop, ok := page.Properties[PropClientID]
	if !ok {
		return ""
	}
	var rt []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		rt = p.RichText
	case notionapi.RichTextProperty:
		rt = p.RichText
	}
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return domain.ClientKey(rt[0].PlainText)
	}
	if rt[0].Text != nil {
		return domain.ClientKey(rt[0].Text.Content)
	}
	return ""
}
