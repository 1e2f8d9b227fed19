// Package ctd parses archival cast cards: fixed-width lines holding eight
// depth/value pairs per cast segment, used as the observed side of depth-zone
// comparisons.
//
// Layout per line:
//
//	cols  0-79  eight 10-char slots, each a 5-char depth in whole meters
//	            followed by a 5-char value in thousandths of a unit
//	cols 80-85  cast date as YYMMDD
//	cols 86-95  station code, space padded
//
// A slot whose depth or value reads 99999 (or blank) carries no sample.
package ctd

import (
	"bufio"
	"bytes"
	"context"
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

// CastRecord is one parsed cast card line: up to eight depth/value samples
// taken at a station on a given day.
type CastRecord struct {
	Station string
	Time    time.Time // start of day, UTC.
	Depths  [8]float64
	Values  [8]float64
	Valid   [8]bool
}

// ParseCastLine parses a single fixed-width cast card line.
func ParseCastLine(line string) (*CastRecord, error) {
	if len(line) < 87 {
		return nil, fmt.Errorf("line too short: %d", len(line))
	}
	var rec CastRecord

	for i := 0; i < 8; i++ {
		start := 10 * i
		depthChunk := chunk(line[start : start+5])
		valueChunk := chunk(line[start+5 : start+10])
		if depthChunk == "" || depthChunk == "99999" || valueChunk == "" || valueChunk == "99999" {
			rec.Valid[i] = false
			continue
		}
		d, err := strconv.Atoi(depthChunk)
		if err != nil {
			return nil, fmt.Errorf("invalid depth '%s' in slot %d: %w", depthChunk, i, err)
		}
		v, err := strconv.Atoi(valueChunk)
		if err != nil {
			return nil, fmt.Errorf("invalid value '%s' in slot %d: %w", valueChunk, i, err)
		}
		rec.Depths[i] = float64(d)
		rec.Values[i] = float64(v) / 1000.0
		rec.Valid[i] = true
	}

	yearStr := chunk(line[80:82])
	monthStr := chunk(line[82:84])
	dayStr := chunk(line[84:86])

	yearVal, err := strconv.Atoi(yearStr)
	if err != nil {
		return nil, fmt.Errorf("invalid year '%s': %w", yearStr, err)
	}
	monthVal, err := strconv.Atoi(monthStr)
	if err != nil {
		return nil, fmt.Errorf("invalid month '%s': %w", monthStr, err)
	}
	dayVal, err := strconv.Atoi(dayStr)
	if err != nil {
		return nil, fmt.Errorf("invalid day '%s': %w", dayStr, err)
	}

	year := 2000 + yearVal
	if yearVal >= 70 {
		year = 1900 + yearVal
	}

	end := len(line)
	if end > 96 {
		end = 96
	}
	rec.Station = strings.TrimSpace(line[86:end])
	rec.Time = time.Date(year, time.Month(monthVal), dayVal, 0, 0, 0, 0, time.UTC)
	return &rec, nil
}

func chunk(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

// LoadCasts scans reader for cast card lines, skipping lines that do not
// parse. A non-empty station keeps only that station's casts.
func LoadCasts(r io.Reader, station string) ([]CastRecord, error) {
	station = strings.TrimSpace(station)
	scanner := bufio.NewScanner(r)
	records := make([]CastRecord, 0, 256)

	for scanner.Scan() {
		line := scanner.Text()
		rec, err := ParseCastLine(line)
		if err != nil {
			continue
		}
		if station == "" || rec.Station == station {
			records = append(records, *rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cast data: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no cast records found for station %q", station)
	}
	return records, nil
}

// LoadCastsFromPath loads cast cards from a local path or HTTP URL.
func LoadCastsFromPath(pathOrURL, station string) ([]CastRecord, error) {
	data, err := loadBytes(pathOrURL)
	if err != nil {
		return nil, err
	}
	return LoadCasts(bytes.NewReader(data), station)
}

// Samples flattens the valid slots of records into depth samples tagged with
// the given source label.
func Samples(records []CastRecord, source string) []domain.DepthSample {
	var out []domain.DepthSample
	for _, rec := range records {
		for i := 0; i < 8; i++ {
			if !rec.Valid[i] {
				continue
			}
			out = append(out, domain.DepthSample{
				DepthM: rec.Depths[i],
				Value:  rec.Values[i],
				Source: source,
			})
		}
	}
	return out
}

// Observations expands the valid slots of records into per-depth observations
// carrying the measurement under the given field name. Cast cards hold no
// position, so the coordinates read as missing.
func Observations(records []CastRecord, field string) []domain.Observation {
	var out []domain.Observation
	for _, rec := range records {
		for i := 0; i < 8; i++ {
			if !rec.Valid[i] {
				continue
			}
			depth := rec.Depths[i]
			out = append(out, domain.Observation{
				StationID: rec.Station,
				Lat:       math.NaN(),
				Lon:       math.NaN(),
				Time:      rec.Time,
				DepthM:    &depth,
				Fields:    map[string]float64{field: rec.Values[i]},
			})
		}
	}
	return out
}

func loadBytes(path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
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
