package usecase

import (
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/bightlab/matchup/internal/adapter/store/ctd"
	"github.com/bightlab/matchup/internal/adapter/store/result"
	"github.com/bightlab/matchup/internal/domain"
)

// runCompare bins observed, matched, and optional cast values into depth
// zones and writes per-zone statistics side by side.
func (p *Pipeline) runCompare(matchesPath, outPath string) (string, error) {
	results, valueField, err := result.ReadMatches(matchesPath)
	if err != nil {
		return "", fmt.Errorf("failed to read match artifact: %w", err)
	}

	towDepths := domain.DefaultTowDepths()
	var samples []domain.DepthSample
	skipped := 0
	for _, r := range results {
		depth, ok := resolveDepth(r.Obs, towDepths)
		if !ok {
			skipped++
			continue
		}
		samples = append(samples, domain.DepthSample{
			DepthM: depth,
			Value:  r.Obs.Fields[valueField],
			Source: SourceObservation,
		})
		if r.Quality != domain.QualityNone {
			samples = append(samples, domain.DepthSample{
				DepthM: depth,
				Value:  r.MatchedValue,
				Source: SourceModel,
			})
		}
	}
	if skipped > 0 {
		p.log.Info("records without a resolvable depth excluded", "excluded", skipped)
	}

	if p.cfg.CTDPath != "" {
		casts, err := ctd.LoadCastsFromPath(p.cfg.CTDPath, p.cfg.CTDStation)
		if err != nil {
			return "", fmt.Errorf("failed to load casts: %w", err)
		}
		samples = append(samples, ctd.Samples(casts, SourceCTD)...)
	}

	summaries := domain.Summarize(domain.Bin(samples))
	if err := result.WriteZoneSummaries(outPath, summaries); err != nil {
		return "", err
	}
	p.printZoneTable(summaries)
	return fmt.Sprintf("%d samples binned", len(samples)), nil
}

// resolveDepth picks the best available depth for an observation: measured
// when present, otherwise the representative tow depth for its gear code.
func resolveDepth(o domain.Observation, tow domain.DepthLookup) (float64, bool) {
	if o.DepthM != nil && !math.IsNaN(*o.DepthM) {
		return *o.DepthM, true
	}
	if o.Method != "" {
		d, _ := tow.RepresentativeDepth(o.Method)
		return d, true
	}
	return 0, false
}

func (p *Pipeline) printZoneTable(summaries []domain.ZoneSummary) {
	w := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "zone\tsource\tn\tmean\tstddev\tmin\tmax")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			s.Zone, s.Source, s.N,
			statCell(s.Mean), statCell(s.StdDev), statCell(s.Min), statCell(s.Max))
	}
	w.Flush()
}

// statCell renders one statistic for the console table; empty cells print a
// dash.
func statCell(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
