// Package pipeline orchestrates the five council stages end to end:
// first opinions, claim extraction, peer review, aggregation, and chairman
// synthesis. It owns the backend clients, the response cache, request
// statistics, and the optional per-request trace.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haricheung/council/internal/aggregate"
	"github.com/haricheung/council/internal/cache"
	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/errs"
	"github.com/haricheung/council/internal/health"
	"github.com/haricheung/council/internal/llm"
	"github.com/haricheung/council/internal/roles/chairman"
	"github.com/haricheung/council/internal/roles/opinion"
	"github.com/haricheung/council/internal/roles/paraphrase"
	"github.com/haricheung/council/internal/roles/reviewer"
	"github.com/haricheung/council/internal/stats"
	"github.com/haricheung/council/internal/tracelog"
	"github.com/haricheung/council/internal/types"
)

// Query length bounds, enforced before any backend is touched.
const (
	minQueryLen = 5
	maxQueryLen = 1000
)

// Pipeline wires the stages together and drives one request at a time
// through them. Safe for concurrent requests.
type Pipeline struct {
	cfg *config.Settings

	opinions    *opinion.Service
	extractor   *paraphrase.Service
	reviewers   *reviewer.Service
	synthesizer *chairman.Service

	cache   *cache.Store
	tracker *stats.Tracker
	traces  *tracelog.Registry
	probers []health.Prober
}

// New builds the pipeline and every backend client from cfg. The tracker is
// required; traces may be nil (tracing disabled).
func New(cfg *config.Settings, tracker *stats.Tracker, traces *tracelog.Registry) *Pipeline {
	retry := llm.RetryPolicy{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay}

	stage1Local := llm.NewCompletionClient(cfg.Stage1LocalLabel, cfg.Stage1LocalURL, cfg.LocalModelTimeout, retry)
	stage1Hosted := llm.NewInferenceClient(cfg.Stage1HostedLabel, cfg.HostedAPIURL, cfg.HostedModel, cfg.HostedAPIToken, cfg.LocalModelTimeout, retry)
	paraphraseClient := llm.NewCompletionClient(cfg.ParaphraseLabel, cfg.ParaphraseURL, cfg.LocalModelTimeout, retry)
	reviewerA := llm.NewCompletionClient(cfg.ReviewerALabel, cfg.ReviewerAURL, cfg.LocalModelTimeout, retry)
	reviewerB := llm.NewCompletionClient(cfg.ReviewerBLabel, cfg.ReviewerBURL, cfg.LocalModelTimeout, retry)
	chairmanClient := llm.NewChatClient(
		cfg.ChairmanLabel, cfg.ChairmanAPIURL, cfg.ChairmanAPIKey, cfg.ChairmanModel,
		llm.GenerationConfig{Temperature: cfg.ChairmanTemp, MaxOutputTokens: cfg.ChairmanMaxToken},
		cfg.LocalModelTimeout, retry,
	)

	p := &Pipeline{
		cfg:         cfg,
		opinions:    opinion.New(cfg, stage1Local, stage1Hosted),
		extractor:   paraphrase.New(cfg, paraphraseClient),
		reviewers:   reviewer.New(cfg, reviewerA, reviewerB),
		synthesizer: chairman.New(cfg, chairmanClient),
		cache:       cache.Open(cfg.CacheDir, cfg.EnableCache, cfg.CacheTTL),
		tracker:     tracker,
		traces:      traces,
	}
	p.probers = []health.Prober{
		stage1Local, stage1Hosted, paraphraseClient, reviewerA, reviewerB, chairmanClient,
	}
	slog.Info("[PIPELINE] orchestrator initialized")
	return p
}

// Run drives one query through every stage and returns the complete result.
//
// Expectations:
//   - Query is trimmed; a character count outside [5, 1000] is a BadInput
//     error and no backend is called
//   - use_cache serves hits with cache_hit set, skipping every stage
//   - Stage errors keep their taxonomy kind; anything unclassified surfaces
//     as a Pipeline error
//   - stage_timings lists executed stages in execution order
func (p *Pipeline) Run(ctx context.Context, query string, opts types.QueryOptions, requestID string) (types.PipelineResult, error) {
	query = strings.TrimSpace(query)
	if n := utf8.RuneCountInString(query); n < minQueryLen || n > maxQueryLen {
		return types.PipelineResult{}, errs.BadInput(fmt.Sprintf("query length must be between %d and %d characters", minQueryLen, maxQueryLen))
	}

	if opts.UseCache {
		if cached, ok := p.cache.Get(query, opts); ok {
			slog.Info("[PIPELINE] returning cached response", "request_id", requestID)
			cached.Metadata.CacheHit = true
			p.tracker.CacheHit()
			return cached, nil
		}
	}

	timeout := p.cfg.RequestTimeout
	if opts.Timeout > 0 {
		timeout = time.Duration(opts.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	trace := p.traces.Open(requestID, query)
	start := time.Now()

	result, err := p.runStages(ctx, query, opts, requestID, trace)
	if err != nil {
		p.tracker.Failure()
		p.traces.Close(requestID, "failed", err.Error())
		slog.Error("[PIPELINE] pipeline failed", "request_id", requestID, "error", err)
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Pipeline(fmt.Sprintf("Pipeline execution failed: %v", err))
		}
		return types.PipelineResult{}, err
	}

	processing := time.Since(start).Seconds()
	result.Metadata.RequestID = requestID
	result.Metadata.ProcessingTime = processing
	result.Metadata.ModelsUsed = p.modelsUsed()
	result.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339)

	if opts.UseCache {
		p.cache.Set(query, opts, result)
	}
	p.tracker.Success(processing)
	p.traces.Close(requestID, "completed", "")
	return result, nil
}

// runStages executes the five stages in order, timing each.
func (p *Pipeline) runStages(ctx context.Context, query string, opts types.QueryOptions, requestID string, trace *tracelog.Trace) (types.PipelineResult, error) {
	var timings []types.StageTiming
	timed := func(stage string, fn func() error) error {
		trace.StageBegin(stage)
		begin := time.Now()
		err := fn()
		trace.StageEnd(stage)
		if err != nil {
			return err
		}
		timings = append(timings, types.StageTiming{Stage: stage, Seconds: time.Since(begin).Seconds()})
		return nil
	}

	var (
		opinions []types.Stage1Opinion
		claims   []types.ParaphrasedClaim
		verdicts []types.ReviewerVerdict
		agg      types.Aggregation
		final    types.FinalAnswer
	)

	if err := timed("stage1", func() (err error) {
		opinions, err = p.opinions.FirstOpinions(ctx, query, requestID, opts)
		return
	}); err != nil {
		return types.PipelineResult{}, err
	}
	slog.Info("[PIPELINE] stage1 complete", "request_id", requestID, "opinions", len(opinions))
	for _, op := range opinions {
		trace.ModelCall("stage1", op.ModelLabel, op.AnswerText)
	}

	if err := timed("paraphrase", func() error {
		claims = p.extractor.ExtractAll(ctx, opinions)
		return nil
	}); err != nil {
		return types.PipelineResult{}, err
	}
	slog.Info("[PIPELINE] paraphrase complete", "request_id", requestID, "claims", len(claims))

	if err := timed("review", func() (err error) {
		verdicts, err = p.reviewers.Review(ctx, query, claims, requestID, opts)
		return
	}); err != nil {
		return types.PipelineResult{}, err
	}
	slog.Info("[PIPELINE] review complete", "request_id", requestID, "reviewers", len(verdicts))
	for _, v := range verdicts {
		if data, err := json.Marshal(v.Reviews); err == nil {
			trace.ModelCall("review", v.ReviewerLabel, string(data))
		}
	}

	if err := timed("aggregation", func() error {
		agg = aggregate.Aggregate(claims, verdicts)
		return nil
	}); err != nil {
		return types.PipelineResult{}, err
	}

	if err := timed("chairman", func() error {
		final = p.synthesizer.Synthesize(ctx, query, opinions, claims, verdicts, agg)
		return nil
	}); err != nil {
		return types.PipelineResult{}, err
	}
	trace.ModelCall("chairman", p.cfg.ChairmanLabel, final.FinalAnswer)

	return types.PipelineResult{
		Query:             query,
		Stage1Opinions:    opinions,
		ParaphrasedClaims: claims,
		ReviewerVerdicts:  verdicts,
		Aggregation:       agg,
		FinalAnswer:       final,
		Metadata: types.Metadata{
			Errors:       []string{},
			Warnings:     []string{},
			StageTimings: timings,
		},
	}, nil
}

// modelsUsed lists the backends a fresh (non-cached) run consults, in stage
// order. The paraphrase model has no enable flag; it always runs.
func (p *Pipeline) modelsUsed() []string {
	var models []string
	if p.cfg.EnableStage1Local {
		models = append(models, p.cfg.Stage1LocalLabel)
	}
	if p.cfg.EnableStage1Hosted {
		models = append(models, p.cfg.Stage1HostedLabel)
	}
	models = append(models, p.cfg.ParaphraseLabel)
	if p.cfg.EnableReviewerA {
		models = append(models, p.cfg.ReviewerALabel)
	}
	if p.cfg.EnableReviewerB {
		models = append(models, p.cfg.ReviewerBLabel)
	}
	if p.cfg.EnableChairman {
		models = append(models, p.cfg.ChairmanLabel)
	}
	return models
}

// CheckHealth probes every backend and returns the rollup.
func (p *Pipeline) CheckHealth(ctx context.Context) health.Report {
	return health.Check(ctx, p.probers)
}

// ModelLabels returns the labels of every configured backend.
func (p *Pipeline) ModelLabels() []string {
	return health.Labels(p.probers)
}

// Statistics reports request counters plus the cache's own stats.
func (p *Pipeline) Statistics() map[string]any {
	return map[string]any{
		"orchestrator": p.tracker.Snapshot(),
		"cache":        p.cache.GetStats(),
	}
}

// ClearCache drops every cached response.
func (p *Pipeline) ClearCache() error {
	return p.cache.Clear()
}

// Close releases pipeline resources.
func (p *Pipeline) Close() {
	p.cache.Close()
}
