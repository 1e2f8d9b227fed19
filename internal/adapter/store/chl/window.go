package chl

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var windowHeader = []string{
	"lon_min", "lon_max", "lat_min", "lat_max",
	"depth_min", "depth_max", "time_min", "time_max",
}

// WriteWindow persists an extraction window as a one-row table. Open sides
// round-trip as Inf and empty time cells.
func WriteWindow(path string, win Window) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(windowHeader); err != nil {
		f.Close()
		return err
	}
	row := []string{
		strconv.FormatFloat(win.LonMin, 'g', -1, 64),
		strconv.FormatFloat(win.LonMax, 'g', -1, 64),
		strconv.FormatFloat(win.LatMin, 'g', -1, 64),
		strconv.FormatFloat(win.LatMax, 'g', -1, 64),
		strconv.FormatFloat(win.DepthMin, 'g', -1, 64),
		strconv.FormatFloat(win.DepthMax, 'g', -1, 64),
		formatWindowTime(win.TimeMin),
		formatWindowTime(win.TimeMax),
	}
	if err := w.Write(row); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWindow loads a window written by WriteWindow.
func ReadWindow(path string) (Window, error) {
	var win Window
	f, err := os.Open(path)
	if err != nil {
		return win, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return win, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) != len(windowHeader) {
		return win, fmt.Errorf("invalid window header: %v", header)
	}
	for i, name := range windowHeader {
		if header[i] != name {
			return win, fmt.Errorf("invalid window header: expected %q at column %d, got %q", name, i, header[i])
		}
	}

	record, err := cr.Read()
	if err != nil {
		return win, fmt.Errorf("failed to read window row: %w", err)
	}
	cells := []*float64{&win.LonMin, &win.LonMax, &win.LatMin, &win.LatMax, &win.DepthMin, &win.DepthMax}
	for i, p := range cells {
		if *p, err = strconv.ParseFloat(record[i], 64); err != nil {
			return win, fmt.Errorf("bad %s %q: %w", windowHeader[i], record[i], err)
		}
	}
	if win.TimeMin, err = parseWindowTime(record[6]); err != nil {
		return win, fmt.Errorf("bad time_min %q: %w", record[6], err)
	}
	if win.TimeMax, err = parseWindowTime(record[7]); err != nil {
		return win, fmt.Errorf("bad time_max %q: %w", record[7], err)
	}
	return win, nil
}

func formatWindowTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseWindowTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
