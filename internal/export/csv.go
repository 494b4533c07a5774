package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/sadopc/linecook/internal/stats"
)

var header = []string{"Period", "Cook", "Shortest", "Longest", "Average", "Tickets"}

func ToCSV(exp stats.Export, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range exp.Rows {
		if err := w.Write(cells(r)); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func cells(r stats.Row) []string {
	return []string{
		r.Period,
		r.Cook,
		stats.FormatSeconds(r.Fastest),
		stats.FormatSeconds(r.Slowest),
		stats.FormatSeconds(r.Average),
		strconv.Itoa(r.Count),
	}
}
