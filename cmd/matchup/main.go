// Command matchup runs the observation-to-product match-up pipeline: it
// bounds the observations, extracts the overlapping product window, joins
// the two through the tolerance ladder, and compares them by depth zone.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bightlab/matchup/internal/adapter/grid"
	"github.com/bightlab/matchup/internal/adapter/store/manifest"
	"github.com/bightlab/matchup/internal/domain"
	"github.com/bightlab/matchup/internal/usecase"
)

func main() {
	var (
		obsPath     string
		valueField  string
		productPath string
		artifactDir string
		manifestDB  string
		stageList   string
		force       bool
		paddingDeg  float64
		yearList    string
		matchMode   string
		convention  string
		validMin    float64
		validMax    float64
		ctdPath     string
		ctdStation  string
		verbose     bool
	)
	flag.StringVar(&obsPath, "obs_file", "", "Path or URL to the observation CSV")
	flag.StringVar(&valueField, "value_field", "", "Observation column to match (e.g., chl_a)")
	flag.StringVar(&productPath, "product_file", "", "Path to the gridded product NetCDF")
	flag.StringVar(&artifactDir, "artifact_dir", ".", "Directory for pipeline artifacts")
	flag.StringVar(&manifestDB, "manifest_db", "", "Path to the manifest database (default <artifact_dir>/manifest.db)")
	flag.StringVar(&stageList, "stage", "all", "Stages to run: all or a comma list of bounds,extract,integrate,compare")
	flag.BoolVar(&force, "force", false, "Run stages even when their artifacts are current")
	flag.Float64Var(&paddingDeg, "padding_deg", 1.0, "Spatial margin added around the observation bounds")
	flag.StringVar(&yearList, "years", "", "Comma list of calendar years to keep from the product time axis")
	flag.StringVar(&matchMode, "match_mode", "best-per-record", "Matching mode: best-per-record or first-level")
	flag.StringVar(&convention, "lon_convention", "signed", "Longitude convention for matching: signed or unsigned")
	flag.Float64Var(&validMin, "valid_min", math.NaN(), "Smallest physically valid product value")
	flag.Float64Var(&validMax, "valid_max", math.NaN(), "Largest physically valid product value")
	flag.StringVar(&ctdPath, "ctd_file", "", "Path or URL to a fixed-width cast file (optional third source)")
	flag.StringVar(&ctdStation, "ctd_station", "", "Station filter for the cast file")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Parse()

	if obsPath == "" || valueField == "" {
		fmt.Fprintln(os.Stderr, "Usage: matchup -obs_file <path|url> -value_field <column> [-product_file <path>] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	mode, err := parseMode(matchMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	conv, err := parseConvention(convention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	years, err := parseYears(yearList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if manifestDB == "" {
		manifestDB = filepath.Join(artifactDir, "manifest.db")
	}
	man, err := manifest.Open(manifestDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open manifest: %v\n", err)
		os.Exit(1)
	}
	defer man.Close()

	cfg := usecase.Config{
		ObsPath:     obsPath,
		ValueField:  valueField,
		ProductPath: productPath,
		ValidRange:  validRange(validMin, validMax),
		Years:       years,
		Mode:        mode,
		Convention:  conv,
		CTDPath:     ctdPath,
		CTDStation:  ctdStation,
		ArtifactDir: artifactDir,
		PaddingDeg:  paddingDeg,
		Force:       force,
		Logger:      logger,
	}

	if err := usecase.New(cfg, man).Run(parseStages(stageList)...); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func parseMode(s string) (domain.MatchMode, error) {
	switch s {
	case "best-per-record":
		return domain.ModeBestPerRecord, nil
	case "first-level":
		return domain.ModeFirstLevel, nil
	default:
		return 0, fmt.Errorf("invalid match_mode %q (expected best-per-record or first-level)", s)
	}
}

func parseConvention(s string) (domain.LonConvention, error) {
	switch s {
	case "signed":
		return domain.LonSigned, nil
	case "unsigned":
		return domain.LonUnsigned, nil
	default:
		return 0, fmt.Errorf("invalid lon_convention %q (expected signed or unsigned)", s)
	}
}

func parseYears(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var years []int
	for _, part := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q: %v", part, err)
		}
		years = append(years, y)
	}
	return years, nil
}

// parseStages turns the flag into stage names; unknown names are rejected
// by the pipeline itself.
func parseStages(s string) []string {
	if s == "" || s == "all" {
		return nil
	}
	return strings.Split(s, ",")
}

// validRange builds the product's physical range from the flag pair. A NaN
// end is open.
func validRange(min, max float64) *grid.ValidRange {
	if math.IsNaN(min) && math.IsNaN(max) {
		return nil
	}
	if math.IsNaN(min) {
		min = math.Inf(-1)
	}
	if math.IsNaN(max) {
		max = math.Inf(1)
	}
	return &grid.ValidRange{Min: min, Max: max}
}
