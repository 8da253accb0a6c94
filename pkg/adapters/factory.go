package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/HatiCode/pricecast/pkg/series"
)

// New creates an adapter based on kind and generic configuration map.
// This is the central extension point for adding new adapter types.
//
// Supported kinds:
//   - "csv": CSV file or URL ("source", "timestampColumn", "valueColumn", "timeLayout")
//   - "sqlite": SQLite table ("path", "table", "timestampColumn", "valueColumn")
//   - "http": generic JSON API ("url", "valuePath", "timestampPath", ...)
//   - "prometheus", "victoriametrics": range query ("url", "query")
//
// Every kind accepts "step" (a Go duration, default 1h) and "name".
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Adapter, error) {
	step := series.DefaultStep
	if raw := config["step"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid 'step' %q: must be a positive duration", raw)
		}
		step = d
	}

	switch kind {
	case "csv":
		return newCSV(config, step)
	case "sqlite":
		return newSQLite(config, step)
	case "http":
		return newHTTP(config, step)
	case "prometheus", "victoriametrics":
		return newPrometheus(kind, config, step)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be csv, sqlite, http, prometheus, or victoriametrics)", kind)
	}
}

func newCSV(config map[string]string, step time.Duration) (Adapter, error) {
	source := config["source"]
	if source == "" {
		return nil, fmt.Errorf("csv adapter requires 'source' config")
	}
	opts := series.CSVOptions{
		TimestampColumn: config["timestampColumn"],
		ValueColumn:     config["valueColumn"],
		TimeLayout:      config["timeLayout"],
		Step:            step,
	}
	if comma := config["comma"]; comma != "" {
		opts.Comma = []rune(comma)[0]
	}
	return &CSVAdapter{Source: source, Options: opts, SeriesName: config["name"]}, nil
}

func newSQLite(config map[string]string, step time.Duration) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("sqlite adapter requires 'path' config")
	}
	return &SQLiteAdapter{
		Path:            path,
		Table:           config["table"],
		TimestampColumn: config["timestampColumn"],
		ValueColumn:     config["valueColumn"],
		TimeLayout:      config["timeLayout"],
		Step:            step,
		SeriesName:      config["name"],
	}, nil
}

func newHTTP(config map[string]string, step time.Duration) (Adapter, error) {
	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Headers:         headers,
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		Step:            step,
		SeriesName:      config["name"],
		TemplateVars:    templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}

func newPrometheus(kind string, config map[string]string, step time.Duration) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", kind)
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
		if kind == "victoriametrics" {
			url = "http://localhost:8428"
		}
	}

	return &PrometheusAdapter{
		ServerURL:  url,
		Query:      query,
		Step:       step,
		Flavor:     kind,
		SeriesName: config["name"],
	}, nil
}
