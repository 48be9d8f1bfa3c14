package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"tipped/internal/core"
	"tipped/internal/services"
)

type tipResponse struct {
	ID           string `json:"id"`
	AmountCents  int64  `json:"amount_cents"`
	Amount       string `json:"amount"`
	Comment      string `json:"comment,omitempty"`
	BusinessDate string `json:"business_date"`
	CreatedAt    string `json:"created_at"`
}

type bucketResponse struct {
	Timestamp   string `json:"timestamp"`
	AmountCents int64  `json:"amount_cents"`
	Unit        string `json:"unit"`
}

type dayResponse struct {
	Date       string        `json:"date"`
	TotalCents int64         `json:"total_cents"`
	Tips       []tipResponse `json:"tips"`
}

type summaryResponse struct {
	Days       []dayResponse    `json:"days"`
	TotalCents int64            `json:"total_cents"`
	Total      string           `json:"total"`
	Series     []bucketResponse `json:"series"`
	Unit       string           `json:"unit"`
}

type widgetResponse struct {
	Date       string        `json:"date"`
	TotalCents int64         `json:"total_cents"`
	Total      string        `json:"total"`
	Count      int           `json:"count"`
	Recent     []tipResponse `json:"recent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func buildTipResponse(tip core.Tip) tipResponse {
	return tipResponse{
		ID:           tip.ID.String(),
		AmountCents:  tip.Amount.Cents,
		Amount:       tip.Amount.Decimal(),
		Comment:      tip.Comment,
		BusinessDate: tip.BusinessDate.String(),
		CreatedAt:    tip.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func buildTipList(tips []core.Tip) []tipResponse {
	out := make([]tipResponse, 0, len(tips))
	for _, tip := range tips {
		out = append(out, buildTipResponse(tip))
	}
	return out
}

func buildSummaryResponse(summary core.Summary) summaryResponse {
	days := make([]dayResponse, 0, len(summary.Days))
	for _, day := range summary.Days {
		days = append(days, dayResponse{
			Date:       day.Date.String(),
			TotalCents: core.Total(day.Tips).Cents,
			Tips:       buildTipList(day.Tips),
		})
	}

	series := make([]bucketResponse, 0, len(summary.Series))
	for _, bucket := range summary.Series {
		series = append(series, bucketResponse{
			Timestamp:   bucket.Timestamp.UTC().Format(time.RFC3339),
			AmountCents: bucket.Amount.Cents,
			Unit:        string(bucket.Unit),
		})
	}

	return summaryResponse{
		Days:       days,
		TotalCents: summary.Total.Cents,
		Total:      summary.Total.Decimal(),
		Series:     series,
		Unit:       string(summary.Unit),
	}
}

func buildWidgetResponse(snapshot services.WidgetSnapshot) widgetResponse {
	return widgetResponse{
		Date:       snapshot.Date.String(),
		TotalCents: snapshot.Total.Cents,
		Total:      snapshot.Total.Decimal(),
		Count:      snapshot.Count,
		Recent:     buildTipList(snapshot.Recent),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
