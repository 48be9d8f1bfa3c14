package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tipped/internal/cache"
	"tipped/internal/core"
	"tipped/internal/services"
	"tipped/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	tips := services.NewTipService(store, nil)
	summaryCache := cache.NewLRUCache[core.Summary](16, time.Minute)
	aggregates := services.NewAggregateService(store, summaryCache)

	srv := NewServer("127.0.0.1:0", tips, aggregates, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func createTip(t *testing.T, srv *Server, amount, comment, date string) tipResponse {
	t.Helper()

	// Pin the entry time to the business date so hour-bucketed series
	// stay on the day under test.
	rec := doJSON(t, srv, http.MethodPost, "/tips", map[string]string{
		"amount":        amount,
		"comment":       comment,
		"business_date": date,
		"created_at":    date + "T12:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tip: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var tip tipResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tip); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return tip
}

func TestCreateTip(t *testing.T) {
	srv, _ := newTestServer(t)

	tip := createTip(t, srv, "12.50", "birthday party", "2024-03-15")

	if tip.AmountCents != 1250 {
		t.Errorf("AmountCents = %d, want 1250", tip.AmountCents)
	}
	if tip.Amount != "12.50" {
		t.Errorf("Amount = %q, want %q", tip.Amount, "12.50")
	}
	if tip.BusinessDate != "2024-03-15" {
		t.Errorf("BusinessDate = %q, want %q", tip.BusinessDate, "2024-03-15")
	}
	if tip.ID == "" {
		t.Error("expected non-empty tip ID")
	}
}

func TestCreateTipRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"negative amount", map[string]string{"amount": "-5.00"}},
		{"garbage amount", map[string]string{"amount": "abc"}},
		{"bad business date", map[string]string{"amount": "1.00", "business_date": "15/03/2024"}},
		{"bad created_at", map[string]string{"amount": "1.00", "created_at": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/tips", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateTipRejectsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/tips", nil)
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetTip(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "8.00", "", "2024-03-15")

	rec := doJSON(t, srv, http.MethodGet, "/tips/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var tip tipResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tip.ID != created.ID {
		t.Errorf("ID = %q, want %q", tip.ID, created.ID)
	}
}

func TestGetTipNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/tips/3b4b1e0e-0dd4-4436-9f0b-9b9a3dbe2caa", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/tips/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status for malformed id = %d, want 400", rec.Code)
	}
}

func TestUpdateTip(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "5.00", "old", "2024-03-15")

	rec := doJSON(t, srv, http.MethodPatch, "/tips/"+created.ID, map[string]string{
		"amount":  "7.25",
		"comment": "corrected",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var tip tipResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tip.AmountCents != 725 {
		t.Errorf("AmountCents = %d, want 725", tip.AmountCents)
	}
	if tip.Comment != "corrected" {
		t.Errorf("Comment = %q, want %q", tip.Comment, "corrected")
	}
	if tip.BusinessDate != "2024-03-15" {
		t.Errorf("BusinessDate changed to %q", tip.BusinessDate)
	}
}

func TestUpdateTipCommentOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "5.00", "old", "2024-03-15")

	rec := doJSON(t, srv, http.MethodPatch, "/tips/"+created.ID, map[string]string{
		"comment": "rewritten",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var tip tipResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tip.AmountCents != 500 {
		t.Errorf("AmountCents = %d, want amount untouched at 500", tip.AmountCents)
	}
	if tip.Comment != "rewritten" {
		t.Errorf("Comment = %q, want %q", tip.Comment, "rewritten")
	}
}

func TestUpdateTipAmountOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "5.00", "keep me", "2024-03-15")

	rec := doJSON(t, srv, http.MethodPatch, "/tips/"+created.ID, map[string]string{
		"amount": "9.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var tip tipResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tip.AmountCents != 900 {
		t.Errorf("AmountCents = %d, want 900", tip.AmountCents)
	}
	if tip.Comment != "keep me" {
		t.Errorf("Comment = %q, want comment untouched", tip.Comment)
	}
}

func TestUpdateTipRejectsEmptyPatch(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "5.00", "", "2024-03-15")

	rec := doJSON(t, srv, http.MethodPatch, "/tips/"+created.ID, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateTipRejectsDateChange(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "5.00", "", "2024-03-15")

	rec := doJSON(t, srv, http.MethodPatch, "/tips/"+created.ID, map[string]string{
		"amount":        "5.00",
		"business_date": "2024-03-16",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteTip(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createTip(t, srv, "3.00", "", "2024-03-15")

	rec := doJSON(t, srv, http.MethodDelete, "/tips/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/tips/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/tips/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for double delete = %d, want 404", rec.Code)
	}
}

func TestSearchTips(t *testing.T) {
	srv, _ := newTestServer(t)

	createTip(t, srv, "10.00", "Birthday party", "2024-03-15")
	createTip(t, srv, "20.00", "regulars", "2024-03-15")

	rec := doJSON(t, srv, http.MethodGet, "/tips/search?q=birthday", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Tips []tipResponse `json:"tips"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Tips) != 1 {
		t.Fatalf("len(Tips) = %d, want 1", len(result.Tips))
	}
	if result.Tips[0].Comment != "Birthday party" {
		t.Errorf("Comment = %q", result.Tips[0].Comment)
	}

	rec = doJSON(t, srv, http.MethodGet, "/tips/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status without q = %d, want 400", rec.Code)
	}
}

func TestAggregatesDay(t *testing.T) {
	srv, _ := newTestServer(t)

	createTip(t, srv, "10.00", "", "2024-03-15")
	createTip(t, srv, "5.50", "", "2024-03-15")
	createTip(t, srv, "99.00", "", "2024-03-16")

	rec := doJSON(t, srv, http.MethodGet, "/aggregates?granularity=day&date=2024-03-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var summary summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalCents != 1550 {
		t.Errorf("TotalCents = %d, want 1550", summary.TotalCents)
	}
	if len(summary.Series) != 24 {
		t.Fatalf("len(Series) = %d, want 24", len(summary.Series))
	}
	if got := summary.Series[12].AmountCents; got != 1550 {
		t.Errorf("noon bucket = %d cents, want 1550", got)
	}
	if summary.Unit != "hour" {
		t.Errorf("Unit = %q, want %q", summary.Unit, "hour")
	}
	if len(summary.Days) != 1 {
		t.Errorf("len(Days) = %d, want 1", len(summary.Days))
	}
}

func TestAggregatesDayKeepsStrayEntryHours(t *testing.T) {
	srv, _ := newTestServer(t)

	// Backdated tip: counts toward the 15th but was entered the next
	// morning, so its hour bucket falls outside the canonical day.
	rec := doJSON(t, srv, http.MethodPost, "/tips", map[string]string{
		"amount":        "4.00",
		"business_date": "2024-03-15",
		"created_at":    "2024-03-16T09:30:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tip: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/aggregates?granularity=day&date=2024-03-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var summary summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 24 canonical hours plus one extra bucket for the stray entry hour:
	// the contribution is kept, never dropped.
	if len(summary.Series) != 25 {
		t.Fatalf("len(Series) = %d, want 25", len(summary.Series))
	}
	last := summary.Series[len(summary.Series)-1]
	if last.Timestamp != "2024-03-16T09:00:00Z" {
		t.Errorf("stray bucket timestamp = %q", last.Timestamp)
	}
	if last.AmountCents != 400 {
		t.Errorf("stray bucket = %d cents, want 400", last.AmountCents)
	}
	if summary.TotalCents != 400 {
		t.Errorf("TotalCents = %d, want 400", summary.TotalCents)
	}
}

func TestAggregatesWeek(t *testing.T) {
	srv, _ := newTestServer(t)

	createTip(t, srv, "10.00", "", "2024-03-15")

	rec := doJSON(t, srv, http.MethodGet, "/aggregates?granularity=week&date=2024-03-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var summary summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summary.Series) != 7 {
		t.Errorf("len(Series) = %d, want 7", len(summary.Series))
	}
	// 2024-03-15 is a Friday, so the Sunday-start week opens on the 10th.
	if summary.Series[0].Timestamp != "2024-03-10T00:00:00Z" {
		t.Errorf("Series[0].Timestamp = %q, want week start", summary.Series[0].Timestamp)
	}
}

func TestAggregatesRejectsBadQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, target := range []string{
		"/aggregates?granularity=quarter",
		"/aggregates?date=March%2015",
	} {
		rec := doJSON(t, srv, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestAggregatesCacheInvalidatedByWrites(t *testing.T) {
	srv, _ := newTestServer(t)

	createTip(t, srv, "10.00", "", "2024-03-15")

	target := "/aggregates?granularity=day&date=2024-03-15"
	rec := doJSON(t, srv, http.MethodGet, target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	createTip(t, srv, "2.00", "", "2024-03-15")

	rec = doJSON(t, srv, http.MethodGet, target, nil)
	var summary summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalCents != 1200 {
		t.Errorf("TotalCents after second write = %d, want 1200", summary.TotalCents)
	}
}

func TestWidgetToday(t *testing.T) {
	srv, _ := newTestServer(t)

	today := core.DateOf(time.Now().UTC()).String()
	for i := 0; i < 7; i++ {
		createTip(t, srv, "1.00", fmt.Sprintf("tip %d", i), today)
	}

	rec := doJSON(t, srv, http.MethodGet, "/widget/today", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var widget widgetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &widget); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if widget.TotalCents != 700 {
		t.Errorf("TotalCents = %d, want 700", widget.TotalCents)
	}
	if widget.Count != 7 {
		t.Errorf("Count = %d, want 7", widget.Count)
	}
	if len(widget.Recent) != 5 {
		t.Errorf("len(Recent) = %d, want 5", len(widget.Recent))
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, target := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", target, rec.Code)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestSuspiciousRequestRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.env", nil)
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
