package core

// MonthSnapshot is one month of an account's balance series.
// Debits and Credits are local to the month; Balance is cumulative through
// the month's last day.
type MonthSnapshot struct {
	Month   string `json:"month"`
	Debits  Money  `json:"debits"`
	Credits Money  `json:"credits"`
	Balance Money  `json:"balance"`
}

// CategorySummary lists the subcategories seen under one category.
type CategorySummary struct {
	Category      string   `json:"category"`
	Subcategories []string `json:"subCategories"`
}
