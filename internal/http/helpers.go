package http

import (
	"html/template"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"tally/internal/core"
)

var templateFuncs = template.FuncMap{
	"amount":  formatAmount,
	"percent": formatPercent,
	"width":   barWidth,
}

// formatAmount renders whole currency units with group separators, e.g.
// 1234567 -> "1,234,567".
func formatAmount(v int64) string {
	return humanize.Comma(v)
}

// formatPercent renders a ratio in [0,1] as a percentage with one decimal.
func formatPercent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 1, 64) + "%"
}

// barWidth scales a ratio to a CSS width percentage. Non-zero shares stay
// visible at 2%.
func barWidth(ratio float64) int {
	w := int(ratio*100 + 0.5)
	switch {
	case ratio <= 0:
		return 0
	case w < 2:
		return 2
	case w > 100:
		return 100
	}
	return w
}

// sanitizeInput trims and removes control characters except tab, newline
// and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func userNames(users []core.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return names
}

func containsUser(names []string, user string) bool {
	for _, n := range names {
		if n == user {
			return true
		}
	}
	return false
}
