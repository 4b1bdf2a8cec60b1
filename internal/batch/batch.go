// Package batch runs the detection pipeline over a directory of images and
// computes accuracy statistics.
package batch

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arbovm/levenshtein"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	yaml "gopkg.in/yaml.v3"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
	"github.com/ironsheep/barcode-tools-mcp/internal/pipeline"
)

// Detector runs detection on one image. *pipeline.Pipeline implements it.
type Detector interface {
	Run(img image.Image) pipeline.Result
}

// Record is the outcome for one image file.
type Record struct {
	File       string `json:"file"`
	Succeeded  bool   `json:"succeeded"`
	Payload    string `json:"payload,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
	Message    string `json:"message"`
	// Expected is set only when a manifest lists this file.
	Expected     string `json:"expected,omitempty"`
	Match        *bool  `json:"match,omitempty"`
	EditDistance *int   `json:"edit_distance,omitempty"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

// StrategyStats aggregates one strategy's results. Attempted counts the
// images the strategy won plus every image no strategy could read.
type StrategyStats struct {
	Successes          int     `json:"successes"`
	Attempted          int     `json:"attempted"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// Summary aggregates a batch.
type Summary struct {
	TotalImages     int                      `json:"total_images"`
	Successful      int                      `json:"successful"`
	Failed          int                      `json:"failed"`
	AccuracyPercent float64                  `json:"accuracy_percent"`
	Strategies      map[string]StrategyStats `json:"strategies"`

	// Populated when an expected-payload manifest is supplied.
	WithExpected         int     `json:"with_expected,omitempty"`
	ExactMatches         int     `json:"exact_matches,omitempty"`
	MatchAccuracyPercent float64 `json:"match_accuracy_percent,omitempty"`
	MeanEditDistance     float64 `json:"mean_edit_distance,omitempty"`
}

// Report is the full result of a batch run.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Directory   string    `json:"directory"`
	Records     []Record  `json:"records"`
	Summary     Summary   `json:"summary"`
}

// Runner processes directories of images.
type Runner struct {
	// NewDetector is called once per worker.
	NewDetector func() Detector
	// StrategyIDs seeds the per-strategy statistics so strategies that never
	// win still appear.
	StrategyIDs []string
	Workers     int
	// Extensions limits which files are processed; nil uses
	// imaging.DefaultExtensions.
	Extensions []string
	Cache      *imaging.ImageCache
	Logger     zerolog.Logger
}

// Run processes every supported image in dir, in sorted file order. expected
// maps file names to their true payloads and may be nil. Cancellation is
// checked between images; a canceled run returns ctx.Err().
func (r *Runner) Run(ctx context.Context, dir string, expected map[string]string) (*Report, error) {
	if r.NewDetector == nil {
		return nil, fmt.Errorf("batch runner has no detector factory")
	}
	files, err := ListImages(dir, r.Extensions)
	if err != nil {
		return nil, err
	}

	cache := r.Cache
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}

	r.Logger.Info().Str("dir", dir).Int("images", len(files)).Int("workers", workers).Msg("batch started")
	start := time.Now()

	records := make([]Record, len(files))
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range files {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			det := r.NewDetector()
			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				records[i] = r.process(det, cache, files[i], expected)
				rec := records[i]
				r.Logger.Debug().
					Str("file", rec.File).
					Bool("ok", rec.Succeeded).
					Str("strategy", rec.StrategyID).
					Int64("elapsed_ms", rec.ElapsedMS).
					Msg(rec.Message)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		Directory:   dir,
		Records:     records,
		Summary:     Summarize(records, r.StrategyIDs),
	}
	r.Logger.Info().
		Int("total", rep.Summary.TotalImages).
		Int("successful", rep.Summary.Successful).
		Float64("accuracy_percent", rep.Summary.AccuracyPercent).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")
	return rep, nil
}

func (r *Runner) process(det Detector, cache *imaging.ImageCache, path string, expected map[string]string) Record {
	start := time.Now()
	name := filepath.Base(path)

	var res pipeline.Result
	img, err := cache.Load(path)
	if err != nil {
		res = pipeline.LoadFailure(err)
	} else {
		res = det.Run(img)
		cache.Evict(path)
	}

	rec := Record{
		File:       name,
		Succeeded:  res.Succeeded,
		Payload:    res.Payload,
		StrategyID: res.StrategyID,
		Message:    res.Message,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
	if want, ok := expected[name]; ok {
		match := res.Payload == want
		dist := levenshtein.Distance(res.Payload, want)
		rec.Expected = want
		rec.Match = &match
		rec.EditDistance = &dist
	}
	return rec
}

// Summarize computes batch statistics over records.
func Summarize(records []Record, strategyIDs []string) Summary {
	s := Summary{
		TotalImages: len(records),
		Strategies:  make(map[string]StrategyStats),
	}
	for _, id := range strategyIDs {
		s.Strategies[id] = StrategyStats{}
	}

	distSum := 0
	for _, rec := range records {
		if rec.Succeeded {
			s.Successful++
			st := s.Strategies[rec.StrategyID]
			st.Successes++
			s.Strategies[rec.StrategyID] = st
		}
		if rec.Match != nil {
			s.WithExpected++
			if *rec.Match {
				s.ExactMatches++
			}
			distSum += *rec.EditDistance
		}
	}
	s.Failed = s.TotalImages - s.Successful
	s.AccuracyPercent = percent(s.Successful, s.TotalImages)

	for id, st := range s.Strategies {
		st.Attempted = st.Successes + s.Failed
		st.SuccessRatePercent = percent(st.Successes, st.Attempted)
		s.Strategies[id] = st
	}

	if s.WithExpected > 0 {
		s.MatchAccuracyPercent = percent(s.ExactMatches, s.WithExpected)
		s.MeanEditDistance = round2(float64(distSum) / float64(s.WithExpected))
	}
	return s
}

// ListImages returns the files in dir (not recursive) whose extension is in
// exts, compared case-insensitively, sorted by name. nil exts uses
// imaging.DefaultExtensions.
func ListImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imaging.HasImageExtension(e.Name(), exts) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadExpected reads a YAML (or JSON) manifest mapping file names to their
// expected payloads.
func LoadExpected(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expected manifest: %w", err)
	}
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse expected manifest: %w", err)
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		// Numeric payloads such as EAN-13 must keep their digits verbatim.
		switch val := v.(type) {
		case string:
			out[name] = strings.TrimSpace(val)
		case nil:
			return nil, fmt.Errorf("expected manifest: %s has no payload", name)
		default:
			return nil, fmt.Errorf("expected manifest: payload for %s must be a quoted string, got %v", name, val)
		}
	}
	return out, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
