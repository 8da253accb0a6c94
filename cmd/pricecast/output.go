package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/pricecast/pkg/models"
	"github.com/HatiCode/pricecast/pkg/storage"
)

// render writes snap to w in the named format: table, json, csv or yaml.
func render(w io.Writer, format string, snap storage.Snapshot) error {
	switch format {
	case "table":
		return renderTable(w, snap)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "csv":
		return renderCSV(w, snap)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, snap storage.Snapshot) error {
	fmt.Fprintf(w, "series:     %s\n", snap.Series)
	fmt.Fprintf(w, "model:      %s  AICc %.2f\n", snap.Order, snap.AICc)
	fmt.Fprintf(w, "candidates: %d fitted, %d failed\n", snap.Candidates-snap.Failed, snap.Failed)
	fmt.Fprintf(w, "interval:   %s\n\n", models.FormatConfidenceLevel(snap.Level))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "timestamp\tmean\tlower\tupper\t")
	for _, p := range snap.Points {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t\n", p.Timestamp.UTC().Format(time.RFC3339), p.Mean, p.Lower, p.Upper)
	}
	return tw.Flush()
}

func renderCSV(w io.Writer, snap storage.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "mean", "lower", "upper"}); err != nil {
		return err
	}
	for _, p := range snap.Points {
		rec := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Mean, 'f', -1, 64),
			strconv.FormatFloat(p.Lower, 'f', -1, 64),
			strconv.FormatFloat(p.Upper, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
