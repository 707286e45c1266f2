package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	applog "tally/internal/log"
	"tally/internal/services"
)

// handleCreateTransaction records one transaction from a form or JSON body.
// HTMX requests get a status fragment with refresh triggers, JSON clients a
// JSON body and plain form posts a redirect back to the dashboard.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentHTTP)

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(ctx, "Parse body error",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpParse,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		s.writeTransactionError(w, parser, http.StatusBadRequest, "Malformed request body")
		return
	}
	form := parser.TransactionForm()

	// Nothing is written without an item and a non-zero amount.
	if form.Item == "" {
		s.writeTransactionError(w, parser, http.StatusUnprocessableEntity, "Item is required")
		return
	}
	t, err := form.Transaction(s.ledger.Location(), s.now())
	if err != nil {
		s.writeTransactionError(w, parser, http.StatusUnprocessableEntity, "Invalid input: "+err.Error())
		return
	}

	ref, err := s.ledger.RecordTransaction(ctx, t)
	switch {
	case errors.Is(err, services.ErrInvalidTransaction):
		logger.InfoContext(ctx, "Transaction rejected",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldUser, t.User)
		s.writeTransactionError(w, parser, http.StatusUnprocessableEntity, "Invalid input: "+err.Error())
		return
	case err != nil:
		// The ledger already logged the store failure.
		s.writeTransactionError(w, parser, http.StatusInternalServerError, "Saving the transaction failed")
		return
	}

	switch {
	case parser.IsJSON():
		writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
	case r.Header.Get("HX-Request") == "true":
		msg := fmt.Sprintf("Recorded %s: %s", t.Item, formatAmount(t.Amount))
		NewHTMXResponse().
			TriggerTransactionRecorded(form.User, ref).
			TriggerFormReset().
			TriggerSuccessNotification(msg).
			BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
			Write(w)
	default:
		http.Redirect(w, r, "/?"+url.Values{"user": {form.User}}.Encode(), http.StatusSeeOther)
	}
}

func (s *Server) writeTransactionError(w http.ResponseWriter, parser *RequestBodyParser, status int, msg string) {
	if parser.IsJSON() {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
}
