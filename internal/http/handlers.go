package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"tipped/internal/core"
	applog "tipped/internal/log"
)

func (s *Server) handleCreateTip(w http.ResponseWriter, r *http.Request) {
	input, err := parseTipInput(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tip, err := s.tips.CreateTip(r.Context(), input.Amount, input.Comment, input.BusinessDate, input.CreatedAt)
	if err != nil {
		writeDomainError(w, r, err, "Failed to create tip")
		return
	}

	s.aggregates.Invalidate(tip.BusinessDate)
	writeJSON(w, http.StatusCreated, buildTipResponse(tip))
}

func (s *Server) handleGetTip(w http.ResponseWriter, r *http.Request) {
	id, err := parseTipID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tip, err := s.tips.GetTip(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, "Failed to load tip")
		return
	}

	writeJSON(w, http.StatusOK, buildTipResponse(tip))
}

func (s *Server) handleUpdateTip(w http.ResponseWriter, r *http.Request) {
	id, err := parseTipID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update, err := parseTipUpdate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Fill omitted fields from the stored tip so a partial patch never
	// clobbers the other value.
	if update.Amount == nil || update.Comment == nil {
		current, err := s.tips.GetTip(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err, "Failed to load tip")
			return
		}
		if update.Amount == nil {
			update.Amount = &current.Amount
		}
		if update.Comment == nil {
			update.Comment = &current.Comment
		}
	}

	tip, err := s.tips.UpdateTip(r.Context(), id, *update.Amount, *update.Comment)
	if err != nil {
		writeDomainError(w, r, err, "Failed to update tip")
		return
	}

	s.aggregates.Invalidate(tip.BusinessDate)
	writeJSON(w, http.StatusOK, buildTipResponse(tip))
}

func (s *Server) handleDeleteTip(w http.ResponseWriter, r *http.Request) {
	id, err := parseTipID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Read first so we know which business day to invalidate.
	tip, err := s.tips.GetTip(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err, "Failed to load tip")
		return
	}

	if err := s.tips.DeleteTip(r.Context(), id); err != nil {
		writeDomainError(w, r, err, "Failed to delete tip")
		return
	}

	s.aggregates.Invalidate(tip.BusinessDate)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchTips(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	tips, err := s.tips.SearchTips(r.Context(), query)
	if err != nil {
		writeDomainError(w, r, err, "Failed to search tips")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tips": buildTipList(tips)})
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	g, anchor, err := parseAggregateQuery(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.aggregates.FetchAggregates(r.Context(), g, anchor)
	if err != nil {
		writeDomainError(w, r, err, "Failed to compute aggregates")
		return
	}

	writeJSON(w, http.StatusOK, buildSummaryResponse(summary))
}

func (s *Server) handleWidgetToday(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.aggregates.TodaySnapshot(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, r, err, "Failed to build widget snapshot")
		return
	}

	writeJSON(w, http.StatusOK, buildWidgetResponse(snapshot))
}

// writeDomainError maps domain errors onto HTTP statuses; anything
// unrecognized is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMessage string) {
	switch {
	case errors.Is(err, core.ErrTipNotFound):
		writeError(w, http.StatusNotFound, "tip not found")
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidGranularity),
		errors.Is(err, core.ErrCommentTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), logMessage, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
