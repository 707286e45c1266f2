package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Monthly Granularity = "monthly"
	Daily   Granularity = "daily"

	ByCategory Dimension = "category"
	ByItem     Dimension = "item"
)

// UncategorizedLabel groups transactions recorded without a category.
const UncategorizedLabel = "Uncategorized"

const (
	DefaultRecentLimit  = 10
	DefaultSummaryLimit = 20

	maxItemLength     = 200
	maxCategoryLength = 100
)

type (
	// Granularity selects the time bucket used for period totals.
	Granularity string

	// Dimension selects the field transactions are grouped by for ratios.
	Dimension string

	Transaction struct {
		ID        string // Store-assigned reference, empty before insert
		Timestamp time.Time
		Item      string
		Amount    int64 // Whole currency units, negative for refunds
		User      string
		Category  string // Optional
	}

	User struct {
		Name string
	}
)

var (
	ErrMissingTimestamp = errors.New("missing timestamp")
	ErrEmptyItem        = errors.New("empty item")
	ErrItemTooLong      = errors.New("item too long (max 200 characters)")
	ErrZeroAmount       = errors.New("amount must not be zero")
	ErrEmptyUser        = errors.New("empty user")
	ErrCategoryTooLong  = errors.New("category too long (max 100 characters)")
)

func (t Transaction) Validate() error {
	if t.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if strings.TrimSpace(t.Item) == "" {
		return ErrEmptyItem
	}
	if utf8.RuneCountInString(t.Item) > maxItemLength {
		return ErrItemTooLong
	}
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	if strings.TrimSpace(t.User) == "" {
		return ErrEmptyUser
	}
	if utf8.RuneCountInString(t.Category) > maxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

// CategoryLabel returns the category, or UncategorizedLabel when none was given.
func (t Transaction) CategoryLabel() string {
	if strings.TrimSpace(t.Category) == "" {
		return UncategorizedLabel
	}
	return t.Category
}

// Label returns the grouping label of t along dimension d.
func (t Transaction) Label(d Dimension) string {
	if d == ByItem {
		if strings.TrimSpace(t.Item) == "" {
			return UncategorizedLabel
		}
		return t.Item
	}
	return t.CategoryLabel()
}

// ParseGranularity maps user input to a Granularity. Anything that is not
// "daily" is monthly; ok reports whether the input was recognised.
func ParseGranularity(s string) (g Granularity, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return Daily, true
	case "monthly", "month":
		return Monthly, true
	default:
		return Monthly, false
	}
}

// Layout is the time layout of a bucket key.
func (g Granularity) Layout() string {
	if g == Daily {
		return "2006-01-02"
	}
	return "2006-01"
}

// DateFormat is the $dateToString format producing the same keys as Layout.
func (g Granularity) DateFormat() string {
	if g == Daily {
		return "%Y-%m-%d"
	}
	return "%Y-%m"
}

// BucketKey returns the period t falls into, evaluated in loc.
func (g Granularity) BucketKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(g.Layout())
}

func (g Granularity) String() string { return string(g) }

// ParseDimension maps user input to a Dimension, defaulting to ByCategory.
func ParseDimension(s string) Dimension {
	if strings.ToLower(strings.TrimSpace(s)) == "item" {
		return ByItem
	}
	return ByCategory
}

func (d Dimension) String() string { return string(d) }
