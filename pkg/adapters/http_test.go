package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPAdapter_BasicGET(t *testing.T) {
	json := `{
        "data": [
            {"timestamp": "2020-09-01T02:00:00Z", "value": 38.2},
            {"timestamp": "2020-09-01T00:00:00Z", "value": 40.5},
            {"timestamp": "2020-09-01T01:00:00Z", "value": 39.1}
        ]
    }`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, json)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:           server.URL,
		ValuePath:     "data.#.value",
		TimestampPath: "data.#.timestamp",
	}

	s, err := adapter.Collect(context.Background(), 0)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 observations, got %d", s.Len())
	}

	expectedValues := []float64{40.5, 39.1, 38.2}
	for i, v := range s.Values {
		if v != expectedValues[i] {
			t.Errorf("value %d: expected %v, got %v", i, expectedValues[i], v)
		}
	}
	if s.Name != "price" || s.Step != time.Hour {
		t.Errorf("series %q step %v, want price 1h", s.Name, s.Step)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestHTTPAdapter_POST_WithBody(t *testing.T) {
	receivedBody := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		receivedBody = string(b)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results": [{"ts": 1598918400, "val": 42.0}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:    server.URL,
		Method: "POST",
		Body:   `{"window": "{{.WindowSeconds}}s", "step": {{.Step}}}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		ValuePath:       "results.#.val",
		TimestampPath:   "results.#.ts",
		TimestampFormat: "unix",
	}

	s, err := adapter.Collect(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if s.Len() != 1 || s.Values[0] != 42.0 {
		t.Fatalf("unexpected series %v", s.Values)
	}
	if receivedBody != `{"window": "86400s", "step": 3600}` {
		t.Errorf("unexpected body: %s", receivedBody)
	}
	if !s.Timestamps[0].Equal(time.Unix(1598918400, 0)) {
		t.Errorf("timestamp = %v", s.Timestamps[0])
	}
}

func TestHTTPAdapter_CustomHeaders(t *testing.T) {
	receivedAuth := ""
	receivedCustom := ""

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		receivedCustom = r.Header.Get("X-Custom-Header")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"prices": [{"time": "2020-09-01T12:00:00Z", "eur": 99}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL: server.URL,
		Headers: map[string]string{
			"Authorization":   "Bearer {{.Token}}",
			"X-Custom-Header": "static-value",
		},
		TemplateVars:  map[string]string{"Token": "secret123"},
		ValuePath:     "prices.#.eur",
		TimestampPath: "prices.#.time",
	}

	if _, err := adapter.Collect(context.Background(), time.Hour); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if receivedAuth != "Bearer secret123" {
		t.Errorf("expected 'Bearer secret123', got '%s'", receivedAuth)
	}
	if receivedCustom != "static-value" {
		t.Errorf("expected 'static-value', got '%s'", receivedCustom)
	}
}

func TestHTTPAdapter_UnixMilliAndNulls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"series": [
			{"time": 1598918400000, "price": 5.5},
			{"time": 1598922000000, "price": null},
			{"time": 1598925600000, "price": 6.5}
		]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:             server.URL,
		ValuePath:       "series.#.price",
		TimestampPath:   "series.#.time",
		TimestampFormat: "unix_milli",
	}

	s, err := adapter.Collect(context.Background(), 0)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected null price dropped, got %d observations", s.Len())
	}
	if !s.Timestamps[1].Equal(time.UnixMilli(1598925600000)) {
		t.Errorf("timestamp = %v", s.Timestamps[1])
	}
}

func TestHTTPAdapter_Window(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"v": [1, 2, 3, 4, 5], "t": [0, 3600, 7200, 10800, 14400]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:             server.URL,
		ValuePath:       "v",
		TimestampPath:   "t",
		TimestampFormat: "unix",
	}

	s, err := adapter.Collect(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if s.Len() != 2 || s.Values[0] != 4 || s.Values[1] != 5 {
		t.Errorf("windowed values = %v, want [4 5]", s.Values)
	}
}

func TestHTTPAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		adapter HTTPAdapter
		wantErr string
	}{
		{
			name:    "http error",
			status:  http.StatusInternalServerError,
			body:    "boom",
			adapter: HTTPAdapter{ValuePath: "v", TimestampPath: "t"},
			wantErr: "http status 500",
		},
		{
			name:    "missing value path",
			status:  http.StatusOK,
			body:    `{"t": ["2020-09-01T00:00:00Z"]}`,
			adapter: HTTPAdapter{ValuePath: "v", TimestampPath: "t"},
			wantErr: "value path",
		},
		{
			name:    "length mismatch",
			status:  http.StatusOK,
			body:    `{"v": [1, 2], "t": ["2020-09-01T00:00:00Z"]}`,
			adapter: HTTPAdapter{ValuePath: "v", TimestampPath: "t"},
			wantErr: "value count",
		},
		{
			name:    "bad timestamp",
			status:  http.StatusOK,
			body:    `{"v": [1], "t": ["yesterday"]}`,
			adapter: HTTPAdapter{ValuePath: "v", TimestampPath: "t"},
			wantErr: "parse timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			a := tt.adapter
			a.URL = server.URL
			_, err := a.Collect(context.Background(), 0)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Collect() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPAdapter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		adapter HTTPAdapter
		wantErr bool
	}{
		{"valid", HTTPAdapter{URL: "http://x", ValuePath: "v", TimestampPath: "t"}, false},
		{"missing url", HTTPAdapter{ValuePath: "v", TimestampPath: "t"}, true},
		{"missing value path", HTTPAdapter{URL: "http://x", TimestampPath: "t"}, true},
		{"missing timestamp path", HTTPAdapter{URL: "http://x", ValuePath: "v"}, true},
		{"bad format", HTTPAdapter{URL: "http://x", ValuePath: "v", TimestampPath: "t", TimestampFormat: "iso"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.adapter.ValidateConfig(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
