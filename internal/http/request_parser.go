package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tipped/internal/core"
)

const maxBodyBytes = 1 << 16

// tipPayload is the JSON body accepted by POST /tips and PATCH /tips/{id}.
// Amount is a decimal string so clients never deal in float cents.
type tipPayload struct {
	Amount       string `json:"amount"`
	Comment      string `json:"comment"`
	BusinessDate string `json:"business_date"`
	CreatedAt    string `json:"created_at"`
}

type tipInput struct {
	Amount       core.Money
	Comment      string
	BusinessDate core.Date
	CreatedAt    time.Time
}

func decodePayload(r *http.Request) (tipPayload, error) {
	var payload tipPayload

	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return tipPayload{}, errors.New("empty request body")
		}
		return tipPayload{}, fmt.Errorf("malformed JSON body: %w", err)
	}

	return payload, nil
}

// parseTipInput validates a create payload. A missing business_date
// defaults to today; a missing created_at defaults to now.
func parseTipInput(r *http.Request, now time.Time) (tipInput, error) {
	payload, err := decodePayload(r)
	if err != nil {
		return tipInput{}, err
	}

	cents, err := core.ParseDecimalToCents(payload.Amount)
	if err != nil {
		return tipInput{}, fmt.Errorf("amount: %w", err)
	}

	businessDate := core.DateOf(now)
	if payload.BusinessDate != "" {
		businessDate, err = core.ParseDate(payload.BusinessDate)
		if err != nil {
			return tipInput{}, fmt.Errorf("business_date: %w", err)
		}
	}

	createdAt := now
	if payload.CreatedAt != "" {
		createdAt, err = time.Parse(time.RFC3339, payload.CreatedAt)
		if err != nil {
			return tipInput{}, fmt.Errorf("created_at: expected RFC 3339 timestamp: %w", err)
		}
		createdAt = createdAt.UTC()
	}

	return tipInput{
		Amount:       core.Money{Cents: cents},
		Comment:      payload.Comment,
		BusinessDate: businessDate,
		CreatedAt:    createdAt,
	}, nil
}

// tipUpdate carries a PATCH body. Nil fields were absent from the
// payload and keep their stored values.
type tipUpdate struct {
	Amount  *core.Money
	Comment *string
}

// parseTipUpdate validates a PATCH payload. Amount and comment are each
// optional, but at least one must be present; dates are immutable, so a
// payload naming either date field is rejected outright.
func parseTipUpdate(r *http.Request) (tipUpdate, error) {
	var payload struct {
		Amount       *string `json:"amount"`
		Comment      *string `json:"comment"`
		BusinessDate string  `json:"business_date"`
		CreatedAt    string  `json:"created_at"`
	}

	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return tipUpdate{}, errors.New("empty request body")
		}
		return tipUpdate{}, fmt.Errorf("malformed JSON body: %w", err)
	}

	if payload.BusinessDate != "" || payload.CreatedAt != "" {
		return tipUpdate{}, errors.New("business_date and created_at cannot be changed")
	}
	if payload.Amount == nil && payload.Comment == nil {
		return tipUpdate{}, errors.New("nothing to update: provide amount or comment")
	}

	update := tipUpdate{Comment: payload.Comment}
	if payload.Amount != nil {
		cents, err := core.ParseDecimalToCents(*payload.Amount)
		if err != nil {
			return tipUpdate{}, fmt.Errorf("amount: %w", err)
		}
		update.Amount = &core.Money{Cents: cents}
	}

	return update, nil
}

func parseTipID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errors.New("invalid tip id")
	}
	return id, nil
}

// parseAggregateQuery reads granularity and date query params. Both are
// optional: granularity defaults to day, date to today.
func parseAggregateQuery(r *http.Request, now time.Time) (core.Granularity, core.Date, error) {
	g := core.Daily
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		g = core.Granularity(strings.ToLower(strings.TrimSpace(raw)))
	}
	if err := g.Validate(); err != nil {
		return "", core.Date{}, err
	}

	anchor := core.DateOf(now)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := core.ParseDate(raw)
		if err != nil {
			return "", core.Date{}, fmt.Errorf("date: %w", err)
		}
		anchor = parsed
	}

	return g, anchor, nil
}
