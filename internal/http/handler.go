package http

import (
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bightlab/matchup/internal/adapter/grid"
	"github.com/bightlab/matchup/internal/adapter/store/chl"
	"github.com/bightlab/matchup/internal/adapter/store/manifest"
	"github.com/bightlab/matchup/internal/adapter/store/result"
	"github.com/bightlab/matchup/internal/domain"
	"github.com/bightlab/matchup/internal/usecase"
)

// Handler serves pipeline artifacts and run history. Artifacts are reread
// per request so a pipeline rerun shows up without restarting the server.
type Handler struct {
	artifactDir string
	man         *manifest.Store
}

// NewHandler creates a new HTTP handler.
func NewHandler(artifactDir string, man *manifest.Store) *Handler {
	return &Handler{
		artifactDir: artifactDir,
		man:         man,
	}
}

// MatchRow is one match table row rendered for JSON. Missing numbers are
// null, never NaN.
type MatchRow struct {
	Cruise       string   `json:"cruise,omitempty"`
	Station      string   `json:"station,omitempty"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	DepthM       *float64 `json:"depth_m,omitempty"`
	Method       string   `json:"method,omitempty"`
	Time         string   `json:"time,omitempty"`
	Observed     *float64 `json:"observed"`
	MatchedValue *float64 `json:"matched_value"`
	MatchCells   int      `json:"match_cells,omitempty"`
	SeparationKm *float64 `json:"separation_km,omitempty"`
	Level        string   `json:"tolerance_level,omitempty"`
	Quality      string   `json:"quality"`
}

// GetMatches handles GET /v1/matches.
func (h *Handler) GetMatches(c *gin.Context) {
	quality := c.Query("quality")
	cruise := c.Query("cruise")
	station := c.Query("station")

	switch quality {
	case "", string(domain.QualityExact), string(domain.QualityApproximate),
		string(domain.QualityBroad), string(domain.QualityNone):
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quality (expected exact, approximate, broad, or none)"})
		return
	}

	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	results, valueField, err := result.ReadMatches(filepath.Join(h.artifactDir, usecase.MatchesFile))
	if err != nil {
		artifactError(c, err, "match artifact not found; run the integrate stage first")
		return
	}

	var filtered []domain.MatchResult
	for _, r := range results {
		if quality != "" && string(r.Quality) != quality {
			continue
		}
		if cruise != "" && r.Obs.CruiseID != cruise {
			continue
		}
		if station != "" && r.Obs.StationID != station {
			continue
		}
		filtered = append(filtered, r)
	}
	total := len(filtered)

	if offset > len(filtered) {
		offset = len(filtered)
	}
	filtered = filtered[offset:]
	if limit < len(filtered) {
		filtered = filtered[:limit]
	}

	rows := make([]MatchRow, len(filtered))
	for i, r := range filtered {
		rows[i] = MatchRow{
			Cruise:       r.Obs.CruiseID,
			Station:      r.Obs.StationID,
			Lat:          naPtr(r.Obs.Lat),
			Lon:          naPtr(r.Obs.Lon),
			DepthM:       r.Obs.DepthM,
			Method:       r.Obs.Method,
			Time:         formatTime(r.Obs.Time),
			Observed:     naPtr(r.Obs.Fields[valueField]),
			MatchedValue: naPtr(r.MatchedValue),
			MatchCells:   r.CellCount,
			SeparationKm: naPtr(r.SeparationKm),
			Level:        r.Level,
			Quality:      string(r.Quality),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"value_field": valueField,
		"total":       total,
		"count":       len(rows),
		"matches":     rows,
	})
}

// ZoneRow is one zone summary row rendered for JSON.
type ZoneRow struct {
	Zone   string   `json:"zone"`
	Source string   `json:"source"`
	N      int      `json:"n"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"stddev"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

// GetZoneSummary handles GET /v1/zones/summary.
func (h *Handler) GetZoneSummary(c *gin.Context) {
	summaries, err := result.ReadZoneSummaries(filepath.Join(h.artifactDir, usecase.ZonesFile))
	if err != nil {
		artifactError(c, err, "zone artifact not found; run the compare stage first")
		return
	}

	rows := make([]ZoneRow, len(summaries))
	for i, s := range summaries {
		rows[i] = ZoneRow{
			Zone:   s.Zone.String(),
			Source: s.Source,
			N:      s.N,
			Mean:   naPtr(s.Mean),
			StdDev: naPtr(s.StdDev),
			Min:    naPtr(s.Min),
			Max:    naPtr(s.Max),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"zones": rows,
		"count": len(rows),
	})
}

// RunInfo is one pipeline run rendered for JSON.
type RunInfo struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Status     string `json:"status"`
}

// GetRuns handles GET /v1/runs.
func (h *Handler) GetRuns(c *gin.Context) {
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.man.Runs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rows := make([]RunInfo, len(runs))
	for i, r := range runs {
		rows[i] = RunInfo{
			ID:         r.ID,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: formatTime(r.FinishedAt),
			Status:     r.Status,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  rows,
		"count": len(rows),
	})
}

// StageInfo is one stage execution rendered for JSON.
type StageInfo struct {
	Stage      string `json:"stage"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
}

// GetRunStages handles GET /v1/runs/:id/stages.
func (h *Handler) GetRunStages(c *gin.Context) {
	stages, err := h.man.StageRuns(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rows := make([]StageInfo, len(stages))
	for i, s := range stages {
		rows[i] = StageInfo{
			Stage:      s.Stage,
			StartedAt:  s.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: s.FinishedAt.UTC().Format(time.RFC3339),
			Status:     s.Status,
			Detail:     s.Detail,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"stages": rows,
		"count":  len(rows),
	})
}

// GetFieldAt handles GET /v1/field/at: it samples the extracted grid at a
// point, either by nearest cell (default) or bilinearly.
func (h *Handler) GetFieldAt(c *gin.Context) {
	lonStr := c.Query("lon")
	latStr := c.Query("lat")
	timeStr := c.Query("time")
	if lonStr == "" || latStr == "" || timeStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lon, lat, and time parameters are required"})
		return
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid longitude: " + err.Error()})
		return
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid latitude: " + err.Error()})
		return
	}
	at, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time (expected RFC3339): " + err.Error()})
		return
	}

	depth := 0.0
	if s := c.Query("depth"); s != "" {
		if depth, err = strconv.ParseFloat(s, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth: " + err.Error()})
			return
		}
	}

	method := c.DefaultQuery("method", "nearest")
	if method != "nearest" && method != "bilinear" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid method (expected nearest or bilinear)"})
		return
	}

	samples, err := chl.ReadTable(filepath.Join(h.artifactDir, usecase.GridFile))
	if err != nil {
		artifactError(c, err, "grid artifact not found; run the extract stage first")
		return
	}
	if len(samples) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "grid artifact is empty"})
		return
	}

	field, err := grid.FromSamples(samples, conventionOf(samples))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	plane, err := field.Slice(at.UTC(), depth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	lon = domain.NormalizeLongitude(lon, field.Convention)
	var v float64
	if method == "bilinear" {
		v, err = plane.InterpolateAt(lon, lat)
	} else {
		v, err = plane.NearestAt(lon, lat)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lon":     lon,
		"lat":     lat,
		"time":    at.UTC().Format(time.RFC3339),
		"depth_m": depth,
		"method":  method,
		"value":   naPtr(v),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// pagination parses limit and offset, writing the error response itself.
func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit = 500
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return 0, 0, false
		}
		limit = n
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// artifactError distinguishes a missing artifact from a broken one.
func artifactError(c *gin.Context, err error, hint string) {
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": hint})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// conventionOf infers the longitude convention of a sample table.
func conventionOf(samples []domain.GridSample) domain.LonConvention {
	for _, s := range samples {
		if s.Lon > 180 {
			return domain.LonUnsigned
		}
		if s.Lon < 0 {
			return domain.LonSigned
		}
	}
	return domain.LonSigned
}

// naPtr renders a float for JSON: NaN becomes null.
func naPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
