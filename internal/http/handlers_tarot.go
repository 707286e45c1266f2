package http

import (
	"errors"
	"net/http"
	"net/url"
	"os"

	applog "tally/internal/log"
	"tally/internal/tarot"
)

type cardView struct {
	URL      string
	Title    string
	Position int
	Reversed bool
}

type tarotView struct {
	Available bool
	HasCover  bool
	Slots     []int
	Cards     []cardView
}

func (s *Server) tarotView() tarotView {
	v := tarotView{Available: s.deck != nil && s.deck.Len() >= s.spread, HasCover: s.hasCover()}
	for i := 1; i <= s.spread; i++ {
		v.Slots = append(v.Slots, i)
	}
	return v
}

func (s *Server) hasCover() bool {
	if s.cover == "" {
		return false
	}
	info, err := os.Stat(s.cover)
	return err == nil && info.Mode().IsRegular()
}

// handleTarot renders the spread page with every slot face down.
func (s *Server) handleTarot(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "tarot_page", s.tarotView())
}

// handleTarotDraw shuffles the whole deck and deals a fresh spread.
func (s *Server) handleTarotDraw(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentTarot)
	if s.deck == nil {
		ErrorResponse(http.StatusServiceUnavailable, "No tarot deck is configured").Write(w)
		return
	}

	drawn, err := s.deck.Draw(s.spread)
	if err != nil {
		logger.WarnContext(r.Context(), "Tarot draw failed", applog.FieldError, err, applog.FieldOperation, applog.OpDraw)
		if errors.Is(err, tarot.ErrNotEnoughCards) {
			UnprocessableEntityError("The deck has too few cards for this spread").Write(w)
			return
		}
		InternalServerError("Drawing cards failed").Write(w)
		return
	}

	view := s.tarotView()
	for _, c := range drawn {
		view.Cards = append(view.Cards, cardView{
			URL:      "/tarot/cards/" + url.PathEscape(c.File),
			Title:    c.Title,
			Position: c.Position,
			Reversed: c.Reversed,
		})
	}
	html, err := s.renderString(r, "tarot_spread", view)
	if err != nil {
		InternalServerError("Rendering the spread failed").Write(w)
		return
	}
	logger.DebugContext(r.Context(), "Tarot spread drawn", applog.FieldOperation, applog.OpDraw, applog.FieldCount, len(drawn))
	NewHTMXResponse().TriggerSpreadDrawn(len(drawn)).BodyHTML(html).Write(w)
}

// handleTarotCard serves a card image. Only deck members resolve.
func (s *Server) handleTarotCard(w http.ResponseWriter, r *http.Request) {
	if s.deck == nil {
		http.NotFound(w, r)
		return
	}
	path, err := s.deck.Path(r.PathValue("file"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleTarotCover(w http.ResponseWriter, r *http.Request) {
	if !s.hasCover() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cover)
}
