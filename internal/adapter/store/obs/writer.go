package obs

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

// Write writes observations under the same schema mapping Load uses, for
// intermediate artifacts. Missing values come out as empty cells, which Read
// maps back to missing.
func Write(path string, records []domain.Observation, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)

	if err := w.Write(schema.columns()); err != nil {
		f.Close()
		return err
	}

	for _, o := range records {
		row := make([]string, 0, 7+len(schema.Values))
		if schema.Cruise != "" {
			row = append(row, o.CruiseID)
		}
		if schema.Station != "" {
			row = append(row, o.StationID)
		}
		row = append(row, formatFloat(o.Lat), formatFloat(o.Lon), formatObsTime(o.Time))
		if schema.Depth != "" {
			if o.DepthM != nil {
				row = append(row, formatFloat(*o.DepthM))
			} else {
				row = append(row, "")
			}
		}
		if schema.Method != "" {
			row = append(row, o.Method)
		}
		for _, name := range schema.Values {
			v, ok := o.Fields[name]
			if !ok {
				v = math.NaN()
			}
			row = append(row, formatFloat(v))
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// columns lists the header cells Write emits. Identity columns appear only
// when the schema names them; the key columns always do.
func (s Schema) columns() []string {
	var cols []string
	if s.Cruise != "" {
		cols = append(cols, s.Cruise)
	}
	if s.Station != "" {
		cols = append(cols, s.Station)
	}
	cols = append(cols, s.Lat, s.Lon, s.Time)
	if s.Depth != "" {
		cols = append(cols, s.Depth)
	}
	if s.Method != "" {
		cols = append(cols, s.Method)
	}
	cols = append(cols, s.Values...)
	return cols
}

// formatFloat renders a value with NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatObsTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
