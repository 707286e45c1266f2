// Parsing of dashboard query parameters and submitted transaction forms.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/services"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	maxBodyBytes = 64 << 10
)

var (
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")
)

// DashboardParams are the query parameters shared by the dashboard page,
// its partials and the chart feeds.
type DashboardParams struct {
	User        string
	Granularity core.Granularity
	Dimension   core.Dimension
	Window      string
}

// ParseDashboardParams reads user, granularity, dimension and window.
// Unknown granularities are monthly, unknown dimensions are category and
// anything but "month" is the all-time window.
func ParseDashboardParams(query url.Values) DashboardParams {
	g, _ := core.ParseGranularity(query.Get("granularity"))
	window := services.WindowAll
	if strings.EqualFold(strings.TrimSpace(query.Get("window")), services.WindowMonth) {
		window = services.WindowMonth
	}
	return DashboardParams{
		User:        sanitizeInput(query.Get("user")),
		Granularity: g,
		Dimension:   core.ParseDimension(query.Get("dimension")),
		Window:      window,
	}
}

// Query encodes p back into URL parameters.
func (p DashboardParams) Query() string {
	v := url.Values{}
	v.Set("user", p.User)
	v.Set("granularity", p.Granularity.String())
	v.Set("dimension", p.Dimension.String())
	v.Set("window", p.Window)
	return v.Encode()
}

// TransactionForm holds the raw submitted fields of a new transaction.
type TransactionForm struct {
	User     string
	Date     string
	Time     string
	Item     string
	Amount   string
	Category string
}

func transactionFormFrom(get func(string) string) TransactionForm {
	return TransactionForm{
		User:     get("user"),
		Date:     get("date"),
		Time:     get("time"),
		Item:     get("item"),
		Amount:   get("amount"),
		Category: get("category"),
	}
}

// Transaction converts the form into a transaction whose timestamp is the
// submitted date and time in loc. A missing date or time takes today or the
// current minute. Only parse errors are reported here; the ledger validates
// the rest.
func (f TransactionForm) Transaction(loc *time.Location, now time.Time) (core.Transaction, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	day := now
	if f.Date != "" {
		d, err := time.ParseInLocation(dateLayout, f.Date, loc)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidDate, f.Date)
		}
		day = d
	}

	hour, minute := now.Hour(), now.Minute()
	if f.Time != "" {
		t, err := time.Parse(timeLayout, f.Time)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidTime, f.Time)
		}
		hour, minute = t.Hour(), t.Minute()
	}

	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q", err, f.Amount)
	}

	return core.Transaction{
		Timestamp: time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc),
		Item:      f.Item,
		Amount:    amount,
		User:      f.User,
		Category:  f.Category,
	}, nil
}

// RequestBodyParser reads a form-encoded or JSON body once, so HTMX forms
// and scripted clients share a handler.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most 64 KiB of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse decodes the body as JSON when the content type or the first byte
// says so, and as form data otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized value from the parsed body.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// TransactionForm extracts the transaction fields of the parsed body.
func (p *RequestBodyParser) TransactionForm() TransactionForm {
	return transactionFormFrom(p.Get)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
