package ledger

import "github.com/shopspring/decimal"

// DailyRollup sums the shifts worked on one date.
type DailyRollup struct {
	Date     string          `json:"date"`
	Day      string          `json:"day"`
	Shifts   int             `json:"shifts"`
	Trips    int             `json:"trips"`
	Distance decimal.Decimal `json:"distance"`
	Total    decimal.Decimal `json:"total"`
}

// WeekdayRollup tracks the current week's amount for one day of the week.
// DailyAverage and DailyPrevAverage come from the remote sheet.
type WeekdayRollup struct {
	Day              string          `json:"day"`
	CurrentAmount    decimal.Decimal `json:"current_amount"`
	DailyAverage     decimal.Decimal `json:"daily_average"`
	DailyPrevAverage decimal.Decimal `json:"daily_prev_average"`
}

// WeeklyRollup sums a Monday-start week.
type WeeklyRollup struct {
	Begin string          `json:"begin"`
	End   string          `json:"end"`
	Days  int             `json:"days"`
	Trips int             `json:"trips"`
	Total decimal.Decimal `json:"total"`
}

// YearlyRollup sums a calendar year.
type YearlyRollup struct {
	Year  int             `json:"year"`
	Days  int             `json:"days"`
	Trips int             `json:"trips"`
	Total decimal.Decimal `json:"total"`
}
