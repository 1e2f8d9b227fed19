package usecase

import (
	"fmt"
	"math"

	"github.com/bightlab/matchup/internal/adapter/grid"
	"github.com/bightlab/matchup/internal/adapter/store/chl"
	"github.com/bightlab/matchup/internal/domain"
)

// runExtract reads the bounds artifact, pulls the matching window out of the
// gridded product, and flattens it into the grid table artifact.
func (p *Pipeline) runExtract(boundsPath, outPath string) (string, error) {
	if p.cfg.ProductPath == "" {
		return "", fmt.Errorf("product path is required for the extract stage")
	}

	win, err := chl.ReadWindow(boundsPath)
	if err != nil {
		return "", fmt.Errorf("failed to read bounds artifact: %w", err)
	}

	samples, err := chl.Extract(p.cfg.ProductPath, p.cfg.ProductCfg, win, p.cfg.ValidRange)
	if err != nil {
		return "", fmt.Errorf("failed to extract product window: %w", err)
	}

	if len(p.cfg.Years) > 0 && len(samples) > 0 {
		samples, err = subsetYears(samples, p.cfg.Years, p.cfg.Convention)
		if err != nil {
			return "", err
		}
	}

	if err := chl.WriteTable(outPath, samples); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d grid cells", len(samples)), nil
}

// subsetYears rebuilds the samples as a dense field so the year filter can
// thin a long monthly axis, then flattens the kept steps back out.
func subsetYears(samples []domain.GridSample, years []int, conv domain.LonConvention) ([]domain.GridSample, error) {
	f, err := grid.FromSamples(samples, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to index samples: %w", err)
	}
	sub := f.SubsetByYears(years...)

	var out []domain.GridSample
	for ti, t := range sub.Times {
		for di, d := range sub.Depths {
			for yi, lat := range sub.Lats {
				for xi, lon := range sub.Lons {
					v := sub.At(ti, di, yi, xi)
					if math.IsNaN(v) {
						continue
					}
					out = append(out, domain.GridSample{
						Lon:    lon,
						Lat:    lat,
						DepthM: d,
						Time:   t,
						Value:  v,
					})
				}
			}
		}
	}
	return out, nil
}
