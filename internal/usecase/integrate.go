package usecase

import (
	"fmt"

	"github.com/bightlab/matchup/internal/adapter/store/chl"
	"github.com/bightlab/matchup/internal/adapter/store/obs"
	"github.com/bightlab/matchup/internal/adapter/store/result"
	"github.com/bightlab/matchup/internal/domain"
)

// runIntegrate left-joins the observations against the extracted grid table
// and writes one match row per input record.
func (p *Pipeline) runIntegrate(gridPath, outPath string) (string, error) {
	records, stats, err := obs.Load(p.cfg.ObsPath, p.cfg.ObsSchema)
	if err != nil {
		return "", fmt.Errorf("failed to load observations: %w", err)
	}
	if stats.ParseErrors > 0 {
		p.log.Warn("malformed observation records dropped",
			"dropped", stats.ParseErrors, "loaded", stats.Loaded)
	}

	ref, err := chl.ReadTable(gridPath)
	if err != nil {
		return "", fmt.Errorf("failed to read grid artifact: %w", err)
	}

	m := &domain.Matcher{
		Ladder:     p.cfg.Ladder,
		Mode:       p.cfg.Mode,
		Convention: p.cfg.Convention,
		Logger:     p.log,
	}
	results, mstats, err := m.Match(records, ref)
	if err != nil {
		return "", err
	}

	if err := result.WriteMatches(outPath, results, p.cfg.ValueField); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d matched, %d unmatchable", mstats.Matched, mstats.Total, mstats.MissingKey), nil
}
