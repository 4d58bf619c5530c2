package core

import (
	"sort"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
)

type (
	// CategoryAmount is the total spent in one category.
	CategoryAmount struct {
		Category Category `json:"category"`
		Amount   Money    `json:"amount"`
	}

	// CategoryShare is a category total with its rounded percentage of the overall total.
	CategoryShare struct {
		CategoryAmount
		Percent int `json:"percent"`
	}

	// MonthTotal is the total spent in one calendar month.
	MonthTotal struct {
		Year  int        `json:"year"`
		Month time.Month `json:"month"`
		Label string     `json:"label"` // e.g. "Jan 2024"
		Total Money      `json:"total"`
	}

	// Summary holds the headline statistics of a non-empty record sequence.
	Summary struct {
		Total                Money           `json:"total"`
		Count                int             `json:"count"`
		Average              decimal.Decimal `json:"average"`
		Highest              Expense         `json:"highest"`
		MostFrequentCategory Category        `json:"mostFrequentCategory"`
	}
)

// ByCategory sums amounts per category. The result follows the order of
// Categories and omits categories without spending.
func ByCategory(records []Expense) []CategoryAmount {
	totals := make(map[Category]int64, len(Categories))
	for _, r := range records {
		totals[r.Category] += r.Amount.Cents
	}
	out := make([]CategoryAmount, 0, len(totals))
	for _, c := range Categories {
		if cents := totals[c]; cents > 0 {
			out = append(out, CategoryAmount{Category: c, Amount: Money{Cents: cents}})
		}
	}
	return out
}

// CategoryShares returns ByCategory with each row's share of the total, for pie views.
func CategoryShares(records []Expense) []CategoryShare {
	rows := ByCategory(records)
	var total int64
	for _, r := range rows {
		total += r.Amount.Cents
	}
	out := make([]CategoryShare, 0, len(rows))
	for _, r := range rows {
		pct := 0
		if total > 0 {
			pct = int((r.Amount.Cents*100 + total/2) / total)
		}
		out = append(out, CategoryShare{CategoryAmount: r, Percent: pct})
	}
	return out
}

// ByMonth sums amounts per calendar month of each record's date, oldest first.
func ByMonth(records []Expense) []MonthTotal {
	totals := make(map[time.Time]int64)
	for _, r := range records {
		start := now.With(r.Date).BeginningOfMonth()
		key := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		totals[key] += r.Amount.Cents
	}
	keys := make([]time.Time, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	out := make([]MonthTotal, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthTotal{
			Year:  k.Year(),
			Month: k.Month(),
			Label: k.Format("Jan 2006"),
			Total: Money{Cents: totals[k]},
		})
	}
	return out
}

// Summarize computes the headline statistics. It returns false when records is
// empty, in which case no average is computed.
func Summarize(records []Expense) (Summary, bool) {
	if len(records) == 0 {
		return Summary{}, false
	}

	var (
		total    int64
		highest  = records[0]
		counts   = make(map[Category]int, len(Categories))
		maxCount int
		frequent Category
	)
	for _, r := range records {
		total += r.Amount.Cents
		if r.Amount.Cents > highest.Amount.Cents {
			highest = r
		}
		counts[r.Category]++
		// strict comparison: the first category to reach a new maximum keeps it
		if counts[r.Category] > maxCount {
			maxCount = counts[r.Category]
			frequent = r.Category
		}
	}

	totalMoney := Money{Cents: total}
	return Summary{
		Total:                totalMoney,
		Count:                len(records),
		Average:              totalMoney.Decimal().Div(decimal.NewFromInt(int64(len(records)))),
		Highest:              highest,
		MostFrequentCategory: frequent,
	}, true
}

// AverageMoney returns the average rounded to cents.
func (s Summary) AverageMoney() Money {
	return Money{Cents: s.Average.Shift(2).Round(0).IntPart()}
}
