package pipeline

import (
	"image"
	"time"

	"github.com/rs/zerolog"
)

// Result is the final answer of a pipeline run.
//
// Succeeded is true iff Payload is non-empty. Message is always populated.
type Result struct {
	Succeeded  bool    `json:"succeeded"`
	Payload    string  `json:"payload,omitempty"`
	StrategyID string  `json:"strategy_id,omitempty"`
	Angle      float64 `json:"angle"`
	// Attempts counts strategy invocations across all strategies and angles.
	Attempts int    `json:"attempts"`
	Message  string `json:"message"`
}

// LoadFailure is the result callers report when an image cannot be loaded
// or decoded. The pipeline is never invoked for such input.
func LoadFailure(err error) Result {
	msg := "failed to load image"
	if err != nil {
		msg += ": " + err.Error()
	}
	return Result{Message: msg}
}

// Attempt describes one strategy invocation at one angle.
type Attempt struct {
	StrategyID string
	Angle      float64
	Outcome    Outcome
	Duration   time.Duration
}

// Pipeline runs strategies in priority order with rotation retry.
type Pipeline struct {
	strategies []Strategy
	angles     []float64
	logger     zerolog.Logger
	observer   func(Attempt)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAngles replaces the rotation sequence. An empty list means [0].
func WithAngles(angles []float64) Option {
	return func(p *Pipeline) {
		p.angles = append([]float64(nil), angles...)
	}
}

// WithLogger sets the logger used for per-attempt debug and per-run info
// events.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithObserver registers a function called after every attempt.
func WithObserver(fn func(Attempt)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// New creates a pipeline over strategies, tried in the given order. The
// standard angle set applies unless WithAngles is given.
func New(strategies []Strategy, opts ...Option) *Pipeline {
	p := &Pipeline{
		strategies: append([]Strategy(nil), strategies...),
		angles:     StandardAngles(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StrategyIDs returns the configured strategy identifiers in priority order.
func (p *Pipeline) StrategyIDs() []string {
	ids := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		ids[i] = s.ID()
	}
	return ids
}

// Angles returns the configured rotation sequence.
func (p *Pipeline) Angles() []float64 {
	return append([]float64(nil), p.angles...)
}

// Run detects a payload in img. It never panics and never returns an error:
// total failure is reported through Result.Succeeded and Result.Message.
func (p *Pipeline) Run(img image.Image) Result {
	if img == nil {
		return Result{Message: "failed to detect; last error: no image"}
	}
	if len(p.strategies) == 0 {
		return Result{Message: "failed to detect; last error: no strategies configured"}
	}

	start := time.Now()
	rc := newRotationCache(img)
	total := 0
	var last Outcome

	for _, s := range p.strategies {
		id := s.ID()
		attemptStart := time.Now()
		observe := func(angle float64, o Outcome) {
			elapsed := time.Since(attemptStart)
			p.logger.Debug().
				Str("strategy", id).
				Float64("angle", angle).
				Bool("ok", o.Succeeded()).
				Str("reason", o.Reason()).
				Dur("elapsed", elapsed).
				Msg("detection attempt")
			if p.observer != nil {
				p.observer(Attempt{StrategyID: id, Angle: angle, Outcome: o, Duration: elapsed})
			}
			attemptStart = time.Now()
		}

		o, n := retryRotations(s, rc, p.angles, observe)
		total += n
		if o.Succeeded() {
			sid := o.StrategyID()
			if sid == "" {
				sid = id
			}
			res := Result{
				Succeeded:  true,
				Payload:    o.Payload(),
				StrategyID: sid,
				Angle:      o.Angle(),
				Attempts:   total,
				Message:    "detected via " + sid,
			}
			if o.Note() != "" {
				res.Message += ": " + o.Note()
			}
			p.logger.Info().
				Str("strategy", res.StrategyID).
				Float64("angle", res.Angle).
				Int("attempts", total).
				Dur("elapsed", time.Since(start)).
				Msg("payload detected")
			return res
		}
		last = o
	}

	p.logger.Info().
		Int("attempts", total).
		Str("reason", last.Reason()).
		Dur("elapsed", time.Since(start)).
		Msg("detection failed")
	return Result{
		Attempts: total,
		Message:  "failed to detect; last error: " + last.Reason(),
	}
}
