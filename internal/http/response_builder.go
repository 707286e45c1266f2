package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events the page scripts listen for on document.body.
const (
	eventTransactionRecorded = "transaction:recorded"
	eventFormReset           = "form:reset"
	eventSpreadDrawn         = "tarot:drawn"
	eventNotification        = "show-notification"
)

// HTMXResponseBuilder collects HX-Trigger events, a status and an HTML body
// and writes them in one go.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
}

// NewHTMXResponse starts a 200 response with no triggers.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds an event to the HX-Trigger header. A repeated name replaces
// the earlier payload.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerTransactionRecorded makes the dashboard partials of user reload.
func (b *HTMXResponseBuilder) TriggerTransactionRecorded(user, ref string) *HTMXResponseBuilder {
	return b.Trigger(eventTransactionRecorded, map[string]string{"user": user, "ref": ref})
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(eventFormReset, struct{}{})
}

// TriggerSpreadDrawn announces a new tarot spread of n cards.
func (b *HTMXResponseBuilder) TriggerSpreadDrawn(n int) *HTMXResponseBuilder {
	return b.Trigger(eventSpreadDrawn, map[string]int{"cards": n})
}

// NotificationType selects the style of a toast shown by dashboard.js.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// TriggerNotification shows a toast for durationMs milliseconds.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(eventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// Errors stay on screen longer than confirmations.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// BodyHTML sets an HTML body. html must already be escaped.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.body = []byte(html)
	return b
}

// Write sends the response. A response without triggers carries no
// HX-Trigger header.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	if len(b.body) > 0 {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	if len(b.triggers) > 0 {
		if encoded, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(encoded))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message, escaped, inside an error div.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
