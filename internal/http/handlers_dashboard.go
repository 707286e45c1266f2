package http

import (
	"context"
	"html/template"
	"net/http"

	"tally/internal/core"
	applog "tally/internal/log"
)

type transactionRow struct {
	When     string
	Item     string
	Amount   string
	Category string
	Refund   bool
}

type recentView struct {
	Query  template.URL
	Rows   []transactionRow
	Failed bool
}

type periodRow struct {
	Period string
	Amount string
}

type summaryView struct {
	Query       template.URL
	Granularity string
	Rows        []periodRow
	Total       string
	Failed      bool
}

type shareRow struct {
	Label   string
	Amount  string
	Percent string
	Width   int
}

type ratioView struct {
	Query     template.URL
	Dimension string
	Window    string
	Rows      []shareRow
	Failed    bool
}

type dashboardView struct {
	Params   DashboardParams
	Query    template.URL
	Users    []string
	Today    string
	Now      string
	Degraded bool
	Recent   recentView
	Summary  summaryView
	Ratio    ratioView
}

func (s *Server) recentRows(items []core.Transaction) []transactionRow {
	loc := s.ledger.Location()
	rows := make([]transactionRow, 0, len(items))
	for _, t := range items {
		rows = append(rows, transactionRow{
			When:     t.Timestamp.In(loc).Format("2006-01-02 15:04"),
			Item:     t.Item,
			Amount:   formatAmount(t.Amount),
			Category: t.CategoryLabel(),
			Refund:   t.Amount < 0,
		})
	}
	return rows
}

func newSummaryView(p DashboardParams, totals []core.PeriodTotal) summaryView {
	v := summaryView{
		Query:       template.URL(p.Query()),
		Granularity: p.Granularity.String(),
		Rows:        make([]periodRow, 0, len(totals)),
		Total:       formatAmount(core.SumPeriods(totals)),
	}
	for _, t := range totals {
		v.Rows = append(v.Rows, periodRow{Period: t.Period, Amount: formatAmount(t.Total)})
	}
	return v
}

func newRatioView(p DashboardParams, shares []core.Share) ratioView {
	v := ratioView{
		Query:     template.URL(p.Query()),
		Dimension: p.Dimension.String(),
		Window:    p.Window,
		Rows:      make([]shareRow, 0, len(shares)),
	}
	for _, sh := range shares {
		v.Rows = append(v.Rows, shareRow{
			Label:   sh.Label,
			Amount:  formatAmount(sh.Total),
			Percent: formatPercent(sh.Ratio),
			Width:   barWidth(sh.Ratio),
		})
	}
	return v
}

// handleIndex renders the dashboard. An unknown or missing user selects the
// newest user. Read failures are logged and render as empty sections.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentHTTP)

	now := s.now().In(s.ledger.Location())
	params := ParseDashboardParams(r.URL.Query())
	view := dashboardView{
		Today: now.Format(dateLayout),
		Now:   now.Format(timeLayout),
	}

	users, err := s.ledger.Users(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "User list failed", applog.FieldError, err, applog.FieldOperation, applog.OpUsers)
		view.Degraded = true
	}
	view.Users = userNames(users)
	if !containsUser(view.Users, params.User) {
		params.User = ""
		if len(view.Users) > 0 {
			params.User = view.Users[0]
		}
	}
	view.Params = params
	view.Query = template.URL(params.Query())
	view.Recent.Query = view.Query
	view.Summary = newSummaryView(params, nil)
	view.Ratio = newRatioView(params, nil)

	if params.User != "" {
		d, err := s.ledger.Dashboard(ctx, params.User, params.Granularity, params.Dimension, s.ledger.ShareWindow(params.Window))
		if err != nil {
			logger.ErrorContext(ctx, "Dashboard load failed",
				applog.FieldError, err,
				applog.FieldUser, params.User,
				applog.FieldErrorType, applog.ErrorTypeDatabase)
			view.Degraded = true
		}
		view.Recent.Rows = s.recentRows(d.Recent)
		view.Summary = newSummaryView(params, d.Summary)
		view.Ratio = newRatioView(params, d.Shares)
	}

	s.render(w, r, "dashboard_page", view)
}

func (s *Server) handleRecentPartial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := ParseDashboardParams(r.URL.Query())
	view := recentView{Query: template.URL(params.Query())}
	if params.User != "" {
		items, err := s.ledger.RecentTransactions(ctx, params.User, 0)
		if err != nil {
			s.logReadError(ctx, "Recent transactions failed", err, applog.OpRecent, params)
			view.Failed = true
		}
		view.Rows = s.recentRows(items)
	}
	s.render(w, r, "recent", view)
}

func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := ParseDashboardParams(r.URL.Query())
	totals, failed := s.summary(ctx, params)
	view := newSummaryView(params, totals)
	view.Failed = failed
	s.render(w, r, "summary", view)
}

func (s *Server) handleRatioPartial(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := ParseDashboardParams(r.URL.Query())
	shares, failed := s.shares(ctx, params)
	view := newRatioView(params, shares)
	view.Failed = failed
	s.render(w, r, "ratio", view)
}

type summaryFeed struct {
	User        string   `json:"user"`
	Granularity string   `json:"granularity"`
	Labels      []string `json:"labels"`
	Totals      []int64  `json:"totals"`
	Failed      bool     `json:"failed,omitempty"`
}

// handleSummaryJSON feeds the period chart.
func (s *Server) handleSummaryJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := ParseDashboardParams(r.URL.Query())
	totals, failed := s.summary(ctx, params)
	feed := summaryFeed{
		User:        params.User,
		Granularity: params.Granularity.String(),
		Labels:      make([]string, 0, len(totals)),
		Totals:      make([]int64, 0, len(totals)),
		Failed:      failed,
	}
	for _, t := range totals {
		feed.Labels = append(feed.Labels, t.Period)
		feed.Totals = append(feed.Totals, t.Total)
	}
	writeJSON(w, http.StatusOK, feed)
}

type ratioFeed struct {
	User      string    `json:"user"`
	Dimension string    `json:"dimension"`
	Window    string    `json:"window"`
	Labels    []string  `json:"labels"`
	Totals    []int64   `json:"totals"`
	Ratios    []float64 `json:"ratios"`
	Failed    bool      `json:"failed,omitempty"`
}

// handleRatioJSON feeds the share chart.
func (s *Server) handleRatioJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := ParseDashboardParams(r.URL.Query())
	shares, failed := s.shares(ctx, params)
	feed := ratioFeed{
		User:      params.User,
		Dimension: params.Dimension.String(),
		Window:    params.Window,
		Labels:    make([]string, 0, len(shares)),
		Totals:    make([]int64, 0, len(shares)),
		Ratios:    make([]float64, 0, len(shares)),
		Failed:    failed,
	}
	for _, sh := range shares {
		feed.Labels = append(feed.Labels, sh.Label)
		feed.Totals = append(feed.Totals, sh.Total)
		feed.Ratios = append(feed.Ratios, sh.Ratio)
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) summary(ctx context.Context, p DashboardParams) ([]core.PeriodTotal, bool) {
	if p.User == "" {
		return nil, false
	}
	totals, err := s.ledger.Summary(ctx, p.User, p.Granularity, 0)
	if err != nil {
		s.logReadError(ctx, "Summary failed", err, applog.OpSummary, p)
		return nil, true
	}
	return totals, false
}

func (s *Server) shares(ctx context.Context, p DashboardParams) ([]core.Share, bool) {
	if p.User == "" {
		return nil, false
	}
	shares, err := s.ledger.Shares(ctx, core.ShareQuery{
		User:      p.User,
		Dimension: p.Dimension,
		Window:    s.ledger.ShareWindow(p.Window),
	})
	if err != nil {
		s.logReadError(ctx, "Shares failed", err, applog.OpShares, p)
		return nil, true
	}
	return shares, false
}

func (s *Server) logReadError(ctx context.Context, msg string, err error, op string, p DashboardParams) {
	errorType := applog.ErrorTypeDatabase
	if ctx.Err() == context.DeadlineExceeded {
		errorType = applog.ErrorTypeTimeout
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentHTTP).ErrorContext(ctx, msg,
		applog.FieldError, err,
		applog.FieldErrorType, errorType,
		applog.FieldOperation, op,
		applog.FieldUser, p.User,
		applog.FieldGranularity, p.Granularity.String(),
		applog.FieldDimension, p.Dimension.String())
}
