package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tickflow/models"
)

func TestConnectionStatusAndHealth(t *testing.T) {
	m := New()

	m.SetConnected(models.Coinbase, true)
	m.SetConnected(models.Binance, false)
	m.RecordError(models.Binance, "read: connection reset")

	if !m.Healthy() {
		t.Fatal("healthy should be true with one live connection")
	}

	snap := m.Health()
	if !snap.Exchanges["coinbase"].Connected {
		t.Error("coinbase should report connected")
	}
	bin := snap.Exchanges["binance"]
	if bin.Connected || bin.LastError != "read: connection reset" {
		t.Errorf("binance health = %+v", bin)
	}

	m.SetConnected(models.Coinbase, false)
	if m.Healthy() {
		t.Error("healthy should be false with no live connections")
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	m := New()
	m.MessagesTotal.WithLabelValues("coinbase").Add(3)
	m.RecordsFlushed.Add(10)
	m.BufferSize.Set(42)

	handler := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`tickflow_messages_total{exchange="coinbase"} 3`,
		`tickflow_records_flushed_total 10`,
		`tickflow_buffer_records 42`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	m := New()
	m.SetConnected(models.Kraken, true)

	s := NewServer(nil, m)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap HealthSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.Exchanges["kraken"].Connected {
		t.Errorf("snapshot = %+v", snap)
	}

	m.SetConnected(models.Kraken, false)
	rec = httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status with no connections = %d", rec.Code)
	}
}
