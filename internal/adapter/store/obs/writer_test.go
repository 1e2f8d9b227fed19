package obs

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

// TestWriteRead_RoundTrip checks that Write emits a table Load maps back to
// the same observations, with missing values surviving as missing.
func TestWriteRead_RoundTrip(t *testing.T) {
	d := 12.5
	records := []domain.Observation{
		{
			CruiseID:  "CC-2010-06",
			StationID: "093.3 026.7",
			Lat:       33.0,
			Lon:       -118.125,
			Time:      time.Date(2010, 6, 15, 4, 30, 0, 0, time.UTC),
			DepthM:    &d,
			Method:    "CB",
			Fields:    map[string]float64{"chl_a": 0.42},
		},
		{
			Lat:    math.NaN(),
			Lon:    math.NaN(),
			Fields: map[string]float64{"chl_a": math.NaN()},
		},
		{
			Lat:    33.5,
			Lon:    -118.0,
			Time:   time.Date(2010, 6, 16, 0, 0, 0, 0, time.UTC),
			Fields: map[string]float64{"chl_a": 0.5},
		},
	}

	path := filepath.Join(t.TempDir(), "subset.csv")
	if err := Write(path, records, testSchema()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	got, stats, err := Load(path, testSchema())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if stats.Loaded != 3 || stats.ParseErrors != 0 || stats.MissingKey != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	o := got[0]
	if o.CruiseID != "CC-2010-06" || o.StationID != "093.3 026.7" {
		t.Errorf("identity columns wrong: %q %q", o.CruiseID, o.StationID)
	}
	if o.Lat != 33.0 || o.Lon != -118.125 {
		t.Errorf("expected 33.0/-118.125, got %v/%v", o.Lat, o.Lon)
	}
	if !o.Time.Equal(records[0].Time) {
		t.Errorf("expected time %v, got %v", records[0].Time, o.Time)
	}
	if o.DepthM == nil || *o.DepthM != 12.5 {
		t.Errorf("expected depth 12.5, got %v", o.DepthM)
	}
	if o.Method != "CB" || o.Fields["chl_a"] != 0.42 {
		t.Errorf("value columns wrong: %q %v", o.Method, o.Fields["chl_a"])
	}

	if got[1].HasKey() {
		t.Error("record written without keys should read back without a key")
	}
	if !math.IsNaN(got[1].Lat) || !got[1].Time.IsZero() || got[1].DepthM != nil {
		t.Errorf("missing values did not survive: %+v", got[1])
	}
	if !math.IsNaN(got[1].Fields["chl_a"]) {
		t.Errorf("expected NaN value, got %v", got[1].Fields["chl_a"])
	}

	if !got[2].HasKey() {
		t.Error("keyed record should read back with a key")
	}
}

// TestWrite_HeaderOnly checks that an empty slice still yields a loadable
// table and that a schema missing key columns is rejected.
func TestWrite_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := Write(path, nil, testSchema()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, stats, err := Load(path, testSchema())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 0 || stats.Rows != 0 {
		t.Fatalf("expected no records, got %+v", stats)
	}

	err = Write(path, nil, Schema{})
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}
