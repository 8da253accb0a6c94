package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/pricecast/pkg/series"
)

// HTTPAdapter calls a REST endpoint and extracts a price series from the
// JSON response with gjson path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Request body and header templates with {{.WindowSeconds}}, {{.Start}},
//     {{.End}}, {{.StartRFC3339}}, {{.EndRFC3339}} and {{.Step}}
//   - Timestamps as RFC3339 strings, Unix seconds or Unix milliseconds
//
// Example for a day-ahead market API:
//
//	adapter := &HTTPAdapter{
//	    URL:           "https://api.example.com/prices?zone=DE-LU",
//	    Headers:       map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    ValuePath:     "prices.#.eur_mwh",
//	    TimestampPath: "prices.#.start",
//	    TemplateVars:  map[string]string{"Token": os.Getenv("API_TOKEN")},
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required).
	URL string

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers. Values may use template variables.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// ValuePath is the gjson path to the values, e.g. "data.#.value".
	ValuePath string

	// TimestampPath is the gjson path to the timestamps. It must yield as
	// many elements as ValuePath.
	TimestampPath string

	// TimestampFormat is "rfc3339" (default), "unix" or "unix_milli".
	TimestampFormat string

	// Step is the series frequency (default one hour).
	Step time.Duration

	// SeriesName names the returned series (default "price").
	SeriesName string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are extra variables for Body and Headers, e.g. tokens.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, window time.Duration) (*series.Series, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}

	step := h.Step
	if step <= 0 {
		step = series.DefaultStep
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-window)

	templateData := map[string]any{
		"WindowSeconds": int(window.Seconds()),
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          int(step.Seconds()),
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	values := gjson.GetBytes(respBody, h.ValuePath)
	timestamps := gjson.GetBytes(respBody, h.TimestampPath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()
	if len(valArray) != len(tsArray) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	points := make([]point, 0, len(valArray))
	for i := range valArray {
		// null marks an hour without a published price
		if valArray[i].Type == gjson.Null {
			continue
		}
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points = append(points, point{ts: ts, value: valArray[i].Float()})
	}

	name := h.SeriesName
	if name == "" {
		name = "price"
	}
	return buildSeries(name, step, points, window), nil
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "unix":
		return time.Unix(value.Int(), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(value.Int()).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

// renderTemplate renders a text template with the given data.
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateConfig checks if the adapter configuration is valid.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}

	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
	return nil
}
