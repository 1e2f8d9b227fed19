package chl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

var tableHeader = []string{"longitude", "latitude", "depth_m", "time", "value"}

// WriteTable persists flattened samples as the pipeline's intermediate
// artifact, one row per grid cell.
func WriteTable(path string, samples []domain.GridSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(tableHeader); err != nil {
		f.Close()
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatFloat(s.Lon, 'g', -1, 64),
			strconv.FormatFloat(s.Lat, 'g', -1, 64),
			strconv.FormatFloat(s.DepthM, 'g', -1, 64),
			s.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(s.Value, 'g', -1, 64),
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

// ReadTable loads a sample table written by WriteTable. A table with only a
// header yields an empty slice.
func ReadTable(path string) ([]domain.GridSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) != len(tableHeader) {
		return nil, fmt.Errorf("invalid sample table header: %v", header)
	}
	for i, name := range tableHeader {
		if header[i] != name {
			return nil, fmt.Errorf("invalid sample table header: expected %q at column %d, got %q", name, i, header[i])
		}
	}

	var out []domain.GridSample
	line := 1
	for {
		record, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		line++

		var s domain.GridSample
		if s.Lon, err = strconv.ParseFloat(record[0], 64); err != nil {
			return nil, fmt.Errorf("line %d: bad longitude %q: %w", line, record[0], err)
		}
		if s.Lat, err = strconv.ParseFloat(record[1], 64); err != nil {
			return nil, fmt.Errorf("line %d: bad latitude %q: %w", line, record[1], err)
		}
		if s.DepthM, err = strconv.ParseFloat(record[2], 64); err != nil {
			return nil, fmt.Errorf("line %d: bad depth %q: %w", line, record[2], err)
		}
		if s.Time, err = time.Parse(time.RFC3339, record[3]); err != nil {
			return nil, fmt.Errorf("line %d: bad time %q: %w", line, record[3], err)
		}
		if s.Value, err = strconv.ParseFloat(record[4], 64); err != nil {
			return nil, fmt.Errorf("line %d: bad value %q: %w", line, record[4], err)
		}
		s.Time = s.Time.UTC()
		out = append(out, s)
	}
	return out, nil
}
