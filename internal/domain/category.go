package domain

import "strings"

// DocumentCategory is the classification label for a document.
// Values outside the closed set are kept as returned by the classifier.
type DocumentCategory string

const (
	FinancialAssets  DocumentCategory = "FinancialAssets"
	BankableAssets   DocumentCategory = "BankableAssets"
	RealEstate       DocumentCategory = "RealEstate"
	PrivateEquity    DocumentCategory = "PrivateEquity"
	OtherAssets      DocumentCategory = "OtherAssets"
	Loans            DocumentCategory = "Loans"
	Mortgages        DocumentCategory = "Mortgages"
	CreditCards      DocumentCategory = "CreditCards"
	OtherLiabilities DocumentCategory = "OtherLiabilities"
	Salary           DocumentCategory = "Salary"
	Dividends        DocumentCategory = "Dividends"
	Interest         DocumentCategory = "Interest"
	RentalIncome     DocumentCategory = "RentalIncome"
	OtherIncome      DocumentCategory = "OtherIncome"
)

// CategoryGroup is the balance-sheet side a category belongs to.
type CategoryGroup string

const (
	GroupAssets      CategoryGroup = "assets"
	GroupLiabilities CategoryGroup = "liabilities"
	GroupIncome      CategoryGroup = "income"
	GroupUnknown     CategoryGroup = ""
)

var categoryGroups = map[DocumentCategory]CategoryGroup{
	FinancialAssets:  GroupAssets,
	BankableAssets:   GroupAssets,
	RealEstate:       GroupAssets,
	PrivateEquity:    GroupAssets,
	OtherAssets:      GroupAssets,
	Loans:            GroupLiabilities,
	Mortgages:        GroupLiabilities,
	CreditCards:      GroupLiabilities,
	OtherLiabilities: GroupLiabilities,
	Salary:           GroupIncome,
	Dividends:        GroupIncome,
	Interest:         GroupIncome,
	RentalIncome:     GroupIncome,
	OtherIncome:      GroupIncome,
}

// AllCategories lists the closed set in display order.
func AllCategories() []DocumentCategory {
	return []DocumentCategory{
		FinancialAssets, BankableAssets, RealEstate, PrivateEquity, OtherAssets,
		Loans, Mortgages, CreditCards, OtherLiabilities,
		Salary, Dividends, Interest, RentalIncome, OtherIncome,
	}
}

// Known reports whether c is one of the fourteen labels.
func (c DocumentCategory) Known() bool {
	_, ok := categoryGroups[c]
	return ok
}

// Group returns the balance-sheet side, or GroupUnknown.
func (c DocumentCategory) Group() CategoryGroup {
	return categoryGroups[c]
}

// EntryTag is the category tag stored on ledger entries extracted from a
// document of this type.
func (c DocumentCategory) EntryTag() string {
	if c.Known() {
		return string(c)
	}
	return Uncategorized
}

// CategoryList renders the closed set for prompts.
func CategoryList() string {
	names := make([]string, 0, len(categoryGroups))
	for _, c := range AllCategories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
