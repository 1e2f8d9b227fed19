package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/bightlab/matchup/internal/adapter/store/chl"
	"github.com/bightlab/matchup/internal/adapter/store/obs"
	"github.com/bightlab/matchup/internal/domain"
)

// Depth limits of the zone scheme. The extraction window never needs cells
// below the deepest zone.
const (
	boundsDepthMinM = 0.0
	boundsDepthMaxM = 200.0
)

// boundsTimePad covers the loosest temporal rules: same-month and a
// +/-15 day window both fit inside a month either side.
const boundsTimePad = 31 * 24 * time.Hour

// runBounds computes the spatio-temporal window enclosing every keyed
// observation, padded so the loosest tolerance level still finds its cells,
// and writes it as the bounds artifact.
func (p *Pipeline) runBounds(outPath string) (string, error) {
	records, stats, err := obs.Load(p.cfg.ObsPath, p.cfg.ObsSchema)
	if err != nil {
		return "", fmt.Errorf("failed to load observations: %w", err)
	}

	win := chl.Window{
		LonMin: math.Inf(1), LonMax: math.Inf(-1),
		LatMin: math.Inf(1), LatMax: math.Inf(-1),
		DepthMin: boundsDepthMinM, DepthMax: boundsDepthMaxM,
	}
	keyed := 0
	for _, o := range records {
		if !o.HasKey() {
			continue
		}
		keyed++
		lon := domain.NormalizeLongitude(o.Lon, p.cfg.Convention)
		win.LonMin = math.Min(win.LonMin, lon)
		win.LonMax = math.Max(win.LonMax, lon)
		win.LatMin = math.Min(win.LatMin, o.Lat)
		win.LatMax = math.Max(win.LatMax, o.Lat)
		if win.TimeMin.IsZero() || o.Time.Before(win.TimeMin) {
			win.TimeMin = o.Time
		}
		if win.TimeMax.IsZero() || o.Time.After(win.TimeMax) {
			win.TimeMax = o.Time
		}
	}
	if keyed == 0 {
		return "", fmt.Errorf("no observation in %s carries a usable position and time", p.cfg.ObsPath)
	}

	win.LonMin -= p.cfg.PaddingDeg
	win.LonMax += p.cfg.PaddingDeg
	win.LatMin -= p.cfg.PaddingDeg
	win.LatMax += p.cfg.PaddingDeg
	win.TimeMin = win.TimeMin.Add(-boundsTimePad)
	win.TimeMax = win.TimeMax.Add(boundsTimePad)

	if err := chl.WriteWindow(outPath, win); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d keyed of %d loaded records", keyed, stats.Loaded), nil
}
