package validation

import (
	"context"
	"log"

	"backtest-lab/internal/domain"
)

// EngineOptions wires one validation pass.
type EngineOptions struct {
	Config     domain.ValidationConfig
	WalkFwd    *domain.WalkForwardConfig
	Seed       int64 // validation sub-seed from the seed tree
	BarMinutes int
	Candidates []domain.StrategyConfig
	Pipeline   PipelineFunc
	SegmentFn  SegmentPipelineFunc
	Logger     *log.Logger
}

// Engine runs every configured validation method over one completed
// simulation. Methods are independent: one being skipped for
// insufficient data never affects its siblings.
type Engine struct {
	opts EngineOptions
}

// Outcome collects the results of all methods that were configured.
type Outcome struct {
	Results     []domain.ValidationResult
	Segments    []domain.WalkForwardSegment
	WFAggregate *domain.WalkForwardAggregate
}

// NewEngine constructs the engine.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Engine{opts: opts}
}

// Run executes all configured methods in a fixed order: permutation,
// bootstrap, walk-forward. Only pipeline or context errors abort;
// insufficient data converts to a skipped-method marker.
func (e *Engine) Run(ctx context.Context, series *domain.Series, returns []float64, observed *domain.MetricSet) (*Outcome, error) {
	out := &Outcome{}
	cfg := e.opts.Config
	observedStat := observed.Statistic(cfg.Statistic)

	if cfg.Permutation != nil {
		perm := &Permutation{
			Trials:    cfg.Permutation.Trials,
			Seed:      e.opts.Seed,
			Workers:   cfg.Workers,
			Statistic: cfg.Statistic,
			Pipeline:  e.opts.Pipeline,
		}
		res, err := perm.Run(ctx, series, observedStat)
		if collected := e.collect(out, res, err, domain.MethodPermutation); collected != nil {
			return nil, collected
		}
	}

	if cfg.Bootstrap != nil {
		boot := &BlockBootstrap{
			Trials:           cfg.Bootstrap.Trials,
			BlockLength:      cfg.Bootstrap.BlockLength,
			Confidence:       cfg.Bootstrap.Confidence,
			CIWidthThreshold: cfg.Bootstrap.CIWidthThreshold,
			Seed:             e.opts.Seed,
			Workers:          cfg.Workers,
			Statistic:        cfg.Statistic,
			BarMinutes:       e.opts.BarMinutes,
		}
		res, err := boot.Run(ctx, returns, observedStat)
		if collected := e.collect(out, res, err, domain.MethodBlockBootstrap); collected != nil {
			return nil, collected
		}
	}

	if e.opts.WalkFwd != nil {
		wf := &WalkForward{
			Config:     e.opts.WalkFwd,
			Statistic:  cfg.Statistic,
			Candidates: e.opts.Candidates,
			Pipeline:   e.opts.SegmentFn,
		}
		segments, agg, err := wf.Run(ctx, series)
		if err != nil {
			if domain.IsInsufficientData(err) {
				e.skip(out, domain.MethodWalkForward, err)
			} else {
				return nil, err
			}
		} else {
			out.Segments = segments
			out.WFAggregate = agg
			out.Results = append(out.Results, domain.ValidationResult{
				Method:    domain.MethodWalkForward,
				Statistic: cfg.Statistic,
				Observed:  observedStat,
			})
		}
	}

	return out, nil
}

// collect folds one method's result into the outcome, converting
// insufficient-data errors into skip markers.
func (e *Engine) collect(out *Outcome, res *domain.ValidationResult, err error, method domain.ValidationMethod) error {
	if err != nil {
		if domain.IsInsufficientData(err) {
			e.skip(out, method, err)
			return nil
		}
		return err
	}
	out.Results = append(out.Results, *res)
	return nil
}

func (e *Engine) skip(out *Outcome, method domain.ValidationMethod, err error) {
	e.opts.Logger.Printf("[validation] %s skipped: %v", method, err)
	out.Results = append(out.Results, domain.ValidationResult{
		Method:     method,
		Statistic:  e.opts.Config.Statistic,
		Skipped:    true,
		SkipReason: err.Error(),
	})
}
