package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/linecook/internal/stats"
)

type jsonExport struct {
	ExportedAt string    `json:"exported_at"`
	Group      string    `json:"group"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Count      int       `json:"count"`
	Rows       []jsonRow `json:"rows"`
}

type jsonRow struct {
	PeriodKey   string `json:"period_key"`
	Period      string `json:"period"`
	Cook        string `json:"cook"`
	ShortestSec int64  `json:"shortest_seconds"`
	LongestSec  int64  `json:"longest_seconds"`
	AverageSec  int64  `json:"average_seconds"`
	Average     string `json:"average"`
	Tickets     int    `json:"tickets"`
}

func ToJSON(exp stats.Export, path string) error {
	out := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Group:      string(exp.Group),
		From:       exp.From.Format(time.RFC3339),
		To:         exp.To.Format(time.RFC3339),
		Count:      len(exp.Rows),
	}
	for _, r := range exp.Rows {
		out.Rows = append(out.Rows, jsonRow{
			PeriodKey:   r.PeriodKey,
			Period:      r.Period,
			Cook:        r.Cook,
			ShortestSec: r.Fastest,
			LongestSec:  r.Slowest,
			AverageSec:  r.Average,
			Average:     stats.FormatSeconds(r.Average),
			Tickets:     r.Count,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
