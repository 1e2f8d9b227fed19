// Package obs loads station observation tables from delimited text files.
//
// Column identity is declared up front through a Schema rather than guessed
// from header substrings. Records with malformed coordinate, time, or
// measurement values are counted and skipped; records that merely lack a key
// field are kept so matching can report them as unmatchable.
package obs

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

const httpTimeout = 20 * time.Second

// Schema names the columns of an observation table. Latitude, longitude, and
// time columns are required, as is every listed value column; the identity
// columns are used only when present in the header.
type Schema struct {
	Cruise  string
	Station string
	Lat     string
	Lon     string
	Time    string
	Depth   string
	Method  string
	Values  []string // Measurement columns copied into Observation.Fields.

	// TimeLayouts override domain.DefaultTimeLayouts when non-empty.
	TimeLayouts []string
}

// DefaultSchema returns the column names used by the project's own artifact
// tables.
func DefaultSchema() Schema {
	return Schema{
		Cruise:  "cruise",
		Station: "station",
		Lat:     "latitude",
		Lon:     "longitude",
		Time:    "time",
		Depth:   "depth_m",
		Method:  "method",
	}
}

// Validate checks that the schema names the three key columns.
func (s Schema) Validate() error {
	if s.Lat == "" || s.Lon == "" || s.Time == "" {
		return errors.New("schema must name latitude, longitude, and time columns")
	}
	return nil
}

// LoadStats summarizes one load: rows seen, observations kept, malformed
// records dropped, and kept records missing part of the match key.
type LoadStats struct {
	Rows        int
	Loaded      int
	ParseErrors int
	MissingKey  int
}

// Load reads an observation table from a local path or an http(s) URL.
func Load(pathOrURL string, schema Schema) ([]domain.Observation, *LoadStats, error) {
	data, err := loadBytes(pathOrURL)
	if err != nil {
		return nil, nil, fmt.Errorf("load observations: %w", err)
	}
	return Read(bytes.NewReader(data), schema)
}

// Read parses an observation table. The header row is mapped through the
// schema; a required column missing from the header aborts the load, while a
// malformed value only drops its own record.
func Read(r io.Reader, schema Schema) ([]domain.Observation, *LoadStats, error) {
	if err := schema.Validate(); err != nil {
		return nil, nil, err
	}
	layouts := schema.TimeLayouts
	if len(layouts) == 0 {
		layouts = domain.DefaultTimeLayouts
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header, schema)
	if err != nil {
		return nil, nil, err
	}

	stats := &LoadStats{}
	var out []domain.Observation
	line := 1
	for {
		record, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A row with the wrong field count drops that row only.
			var pe *csv.ParseError
			if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
				line++
				stats.Rows++
				stats.ParseErrors++
				continue
			}
			return nil, nil, fmt.Errorf("read record: %w", err)
		}
		line++
		stats.Rows++

		obs, perr := parseRecord(record, cols, schema, layouts, line)
		if perr != nil {
			stats.ParseErrors++
			continue
		}
		if !obs.HasKey() {
			stats.MissingKey++
		}
		stats.Loaded++
		out = append(out, obs)
	}
	return out, stats, nil
}

// mapColumns resolves schema names to header positions. Key and value columns
// must be present; identity columns resolve to -1 when absent.
func mapColumns(header []string, s Schema) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	required := []string{s.Lat, s.Lon, s.Time}
	required = append(required, s.Values...)
	var missing []string
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns %v (header: %v)", missing, header)
	}

	cols := make(map[string]int, len(required)+4)
	for _, name := range required {
		cols[name] = idx[name]
	}
	for _, name := range []string{s.Cruise, s.Station, s.Depth, s.Method} {
		if name == "" {
			continue
		}
		if i, ok := idx[name]; ok {
			cols[name] = i
		} else {
			cols[name] = -1
		}
	}
	return cols, nil
}

func parseRecord(record []string, cols map[string]int, s Schema, layouts []string, line int) (domain.Observation, error) {
	obs := domain.Observation{
		CruiseID:  cell(record, cols, s.Cruise),
		StationID: cell(record, cols, s.Station),
		Method:    cell(record, cols, s.Method),
		Lat:       math.NaN(),
		Lon:       math.NaN(),
		Line:      line,
	}

	if v := cell(record, cols, s.Lat); !isMissing(v) {
		lat, err := parseFloat(s.Lat, v, line)
		if err != nil {
			return obs, err
		}
		if lat < -90 || lat > 90 {
			return obs, &domain.ParseError{Field: s.Lat, Value: v, Line: line, Err: errors.New("latitude out of range")}
		}
		obs.Lat = lat
	}
	if v := cell(record, cols, s.Lon); !isMissing(v) {
		lon, err := parseFloat(s.Lon, v, line)
		if err != nil {
			return obs, err
		}
		if lon < -360 || lon > 360 {
			return obs, &domain.ParseError{Field: s.Lon, Value: v, Line: line, Err: errors.New("longitude out of range")}
		}
		obs.Lon = lon
	}
	if v := cell(record, cols, s.Time); !isMissing(v) {
		t, err := domain.ParseTimestamp(v, layouts...)
		if err != nil {
			return obs, &domain.ParseError{Field: s.Time, Value: v, Line: line, Err: err}
		}
		obs.Time = t
	}
	if v := cell(record, cols, s.Depth); !isMissing(v) {
		d, err := parseFloat(s.Depth, v, line)
		if err != nil {
			return obs, err
		}
		obs.DepthM = &d
	}

	if len(s.Values) > 0 {
		obs.Fields = make(map[string]float64, len(s.Values))
		for _, name := range s.Values {
			v := cell(record, cols, name)
			if isMissing(v) {
				obs.Fields[name] = math.NaN()
				continue
			}
			f, err := parseFloat(name, v, line)
			if err != nil {
				return obs, err
			}
			obs.Fields[name] = f
		}
	}
	return obs, nil
}

// cell returns the named column's value, or "" when the column is unmapped.
func cell(record []string, cols map[string]int, name string) string {
	if name == "" {
		return ""
	}
	i, ok := cols[name]
	if !ok || i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// isMissing reports whether a cell is one of the blank markers used by the
// source tables.
func isMissing(v string) bool {
	switch v {
	case "", "NA", "NaN", "nan", "null":
		return true
	}
	return false
}

func parseFloat(field, value string, line int) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &domain.ParseError{Field: field, Value: value, Line: line, Err: err}
	}
	return f, nil
}

func loadBytes(path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, http.NoBody)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(path)
}
