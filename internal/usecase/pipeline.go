// Package usecase orchestrates the match-up pipeline: bound the
// observations, extract the overlapping product window, join the two, and
// compare them by depth zone. Each stage declares the files it reads and
// writes, and the manifest decides from content fingerprints whether a stage
// needs to run at all.
package usecase

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bightlab/matchup/internal/adapter/grid"
	"github.com/bightlab/matchup/internal/adapter/store/chl"
	"github.com/bightlab/matchup/internal/adapter/store/manifest"
	"github.com/bightlab/matchup/internal/adapter/store/obs"
	"github.com/bightlab/matchup/internal/domain"
)

// Stage names, in pipeline order.
const (
	StageBounds    = "bounds"
	StageExtract   = "extract"
	StageIntegrate = "integrate"
	StageCompare   = "compare"
)

// Artifact file names under the artifact directory.
const (
	BoundsFile  = "bounds.csv"
	GridFile    = "grid.csv"
	MatchesFile = "matches.csv"
	ZonesFile   = "zone_summary.csv"
)

// Data-source labels used in the zone summary.
const (
	SourceObservation = "observation"
	SourceModel       = "model"
	SourceCTD         = "ctd"
)

// Config declares everything a pipeline run needs up front: the inputs, the
// schema that maps their columns, and where artifacts land.
type Config struct {
	// Observations.
	ObsPath    string     // CSV path or URL.
	ObsSchema  obs.Schema // Zero value means obs.DefaultSchema.
	ValueField string     // Column holding the measured value, e.g. "chl_a".

	// Gridded product.
	ProductPath string        // NetCDF path; required for the extract stage.
	ProductCfg  chl.VarConfig // Zero value means chl.DefaultConfig.
	ValidRange  *grid.ValidRange
	Years       []int // Optional subset of the time axis by calendar year.

	// Matching.
	Ladder     domain.Ladder // Empty means domain.DefaultLadder.
	Mode       domain.MatchMode
	Convention domain.LonConvention

	// Optional third comparison source: fixed-width cast profiles.
	CTDPath    string
	CTDStation string

	// Run behavior.
	ArtifactDir string  // Default ".".
	PaddingDeg  float64 // Spatial margin added around the observation bounds.
	Force       bool    // Run stages even when their artifacts are current.
	Logger      *slog.Logger
	Out         io.Writer // Console output; default os.Stdout.
}

// Validate checks that the config names the inputs every stage agrees on.
func (c *Config) Validate() error {
	if c.ObsPath == "" {
		return fmt.Errorf("observation path is required")
	}
	if c.ValueField == "" {
		return fmt.Errorf("value field is required")
	}
	return c.ObsSchema.Validate()
}

// Pipeline runs the match-up stages in order, recording what each stage read
// and produced so unchanged stages can be skipped on the next run.
type Pipeline struct {
	cfg Config
	man *manifest.Store
	log *slog.Logger
	out io.Writer
}

// New builds a pipeline over a manifest store, filling config defaults.
func New(cfg Config, man *manifest.Store) *Pipeline {
	if cfg.ObsSchema.Lat == "" && cfg.ObsSchema.Lon == "" && cfg.ObsSchema.Time == "" {
		cfg.ObsSchema = obs.DefaultSchema()
	}
	if cfg.ValueField != "" && !hasValue(cfg.ObsSchema.Values, cfg.ValueField) {
		cfg.ObsSchema.Values = append(cfg.ObsSchema.Values, cfg.ValueField)
	}
	if cfg.ProductCfg.ValueVar == "" {
		cfg.ProductCfg = chl.DefaultConfig()
	}
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = domain.DefaultLadder()
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Pipeline{cfg: cfg, man: man, log: cfg.Logger, out: cfg.Out}
}

func hasValue(values []string, name string) bool {
	for _, v := range values {
		if v == name {
			return true
		}
	}
	return false
}

// stage is one pipeline step with declared inputs and outputs. run returns a
// short detail line for the manifest.
type stage struct {
	name    string
	inputs  []string
	outputs []string
	run     func() (string, error)
}

// stages wires the four steps to their artifact paths. The declared inputs
// of each stage are exactly the outputs of the previous one plus the raw
// sources it reads itself.
func (p *Pipeline) stages() []stage {
	dir := p.cfg.ArtifactDir
	bounds := filepath.Join(dir, BoundsFile)
	gridTable := filepath.Join(dir, GridFile)
	matches := filepath.Join(dir, MatchesFile)
	zones := filepath.Join(dir, ZonesFile)

	compareInputs := []string{matches}
	if p.cfg.CTDPath != "" {
		compareInputs = append(compareInputs, p.cfg.CTDPath)
	}

	return []stage{
		{
			name:    StageBounds,
			inputs:  []string{p.cfg.ObsPath},
			outputs: []string{bounds},
			run:     func() (string, error) { return p.runBounds(bounds) },
		},
		{
			name:    StageExtract,
			inputs:  []string{p.cfg.ProductPath, bounds},
			outputs: []string{gridTable},
			run:     func() (string, error) { return p.runExtract(bounds, gridTable) },
		},
		{
			name:    StageIntegrate,
			inputs:  []string{p.cfg.ObsPath, gridTable},
			outputs: []string{matches},
			run:     func() (string, error) { return p.runIntegrate(gridTable, matches) },
		},
		{
			name:    StageCompare,
			inputs:  compareInputs,
			outputs: []string{zones},
			run:     func() (string, error) { return p.runCompare(matches, zones) },
		},
	}
}

// Run executes the named stages in pipeline order, or all four when none are
// named. A stage whose declared inputs and outputs all match their recorded
// fingerprints is skipped unless the config forces it.
func (p *Pipeline) Run(names ...string) error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	selected, err := p.selectStages(names)
	if err != nil {
		return err
	}

	run, err := p.man.BeginRun()
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}

	for _, st := range selected {
		if err := p.runStage(run.ID, st); err != nil {
			if ferr := p.man.FinishRun(run.ID, manifest.StatusFailed); ferr != nil {
				p.log.Warn("failed to record run failure", "error", ferr)
			}
			return fmt.Errorf("stage %s: %w", st.name, err)
		}
	}

	if err := p.man.FinishRun(run.ID, manifest.StatusOK); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// selectStages resolves stage names to stages in canonical order.
func (p *Pipeline) selectStages(names []string) ([]stage, error) {
	all := p.stages()
	if len(names) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var selected []stage
	for _, st := range all {
		if want[st.name] {
			selected = append(selected, st)
			delete(want, st.name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown stage(s) %v (valid: %s, %s, %s, %s)",
			unknown, StageBounds, StageExtract, StageIntegrate, StageCompare)
	}
	return selected, nil
}

func (p *Pipeline) runStage(runID string, st stage) error {
	started := time.Now().UTC()

	if !p.cfg.Force {
		// Remote inputs are declared but never recorded, so the set sizes
		// differ and stages reading URLs always run.
		current, err := p.man.UpToDate(st.name, st.inputs, st.outputs)
		if err != nil {
			p.log.Warn("freshness check failed, running stage", "stage", st.name, "error", err)
		} else if current {
			p.log.Info("stage up to date, skipping", "stage", st.name)
			return p.man.RecordStage(manifest.StageRun{
				RunID:      runID,
				Stage:      st.name,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
				Status:     manifest.StatusSkipped,
			})
		}
	}

	p.log.Info("stage starting", "stage", st.name)
	detail, err := st.run()
	finished := time.Now().UTC()
	if err != nil {
		if rerr := p.man.RecordStage(manifest.StageRun{
			RunID:      runID,
			Stage:      st.name,
			StartedAt:  started,
			FinishedAt: finished,
			Status:     manifest.StatusFailed,
			Detail:     err.Error(),
		}); rerr != nil {
			p.log.Warn("failed to record stage failure", "stage", st.name, "error", rerr)
		}
		return err
	}

	if err := p.man.RecordInputs(runID, st.name, localOnly(st.inputs)); err != nil {
		return err
	}
	for _, out := range st.outputs {
		if err := p.man.RecordArtifact(runID, st.name, out); err != nil {
			return err
		}
	}
	if err := p.man.RecordStage(manifest.StageRun{
		RunID:      runID,
		Stage:      st.name,
		StartedAt:  started,
		FinishedAt: finished,
		Status:     manifest.StatusOK,
		Detail:     detail,
	}); err != nil {
		return err
	}
	p.log.Info("stage complete", "stage", st.name, "detail", detail, "elapsed", finished.Sub(started))
	return nil
}

// localOnly drops URLs from an input list. Remote inputs cannot be
// fingerprinted.
func localOnly(paths []string) []string {
	var out []string
	for _, p := range paths {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			continue
		}
		out = append(out, p)
	}
	return out
}
