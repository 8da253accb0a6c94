package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/pricecast/pkg/series"
)

// PrometheusAdapter loads a price series scraped into Prometheus, or into
// VictoriaMetrics through its Prometheus-compatible API, with a
// /api/v1/query_range call at the series step.
//
// If the query returns several series, values at the same timestamp are
// summed.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL/MetricsQL expression to evaluate.
	Query string
	// Step is the range query resolution (default one hour).
	Step time.Duration
	// Flavor is "prometheus" (default) or "victoriametrics"; it only
	// changes Name and error messages.
	Flavor string
	// SeriesName names the returned series (default: the query).
	SeriesName string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string {
	if p.Flavor == "" {
		return "prometheus"
	}
	return p.Flavor
}

// Collect implements Adapter. A zero window is treated as 60 days.
func (p *PrometheusAdapter) Collect(ctx context.Context, window time.Duration) (*series.Series, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	step := p.Step
	if step <= 0 {
		step = series.DefaultStep
	}
	if window <= 0 {
		window = 60 * 24 * time.Hour
	}

	end := AlignTimestamp(time.Now().UTC(), step)
	start := end.Add(-window + step)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.FormatInt(int64(step.Seconds()), 10))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	points, err := aggregateRangeResult(pr.Data.Result)
	if err != nil {
		return nil, err
	}

	name := p.SeriesName
	if name == "" {
		name = p.Query
	}
	return buildSeries(name, step, points, window), nil
}

// PrometheusRangeResponse is the query_range response body.
type PrometheusRangeResponse struct {
	Status string              `json:"status"`
	Data   PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string                 `json:"resultType"`
	Result     []PrometheusRangeSerie `json:"result"`
}

// PrometheusRangeSerie represents a single time series in the result.
type PrometheusRangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// aggregateRangeResult merges multiple series into points, summing values
// at the same timestamp. NaN samples are dropped.
func aggregateRangeResult(result []PrometheusRangeSerie) ([]point, error) {
	acc := make(map[int64]float64)
	for _, s := range result {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			tsF, ok := pair[0].(float64)
			if !ok {
				return nil, fmt.Errorf("unexpected timestamp type %T", pair[0])
			}

			raw, ok := pair[1].(string)
			if !ok {
				return nil, fmt.Errorf("unexpected value type %T", pair[1])
			}
			if raw == "NaN" {
				continue
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parse value: %w", err)
			}
			acc[int64(tsF)] += val
		}
	}

	points := make([]point, 0, len(acc))
	for ts, v := range acc {
		points = append(points, point{ts: time.Unix(ts, 0).UTC(), value: v})
	}
	return points, nil
}
