// Package optimizer forces an assembled context under a hard token limit
// using one of four compression strategies, producing a detailed tradeoff
// report. Optimization is best effort: any internal failure falls back to
// the original context instead of surfacing an error.
package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learnware/studyctx/pkg/builder"
	"github.com/learnware/studyctx/pkg/cache"
)

// ErrInvalidInput indicates a malformed optimization request.
var ErrInvalidInput = errors.New("invalid input")

// minTokenLimit is the smallest limit the optimizer accepts.
const minTokenLimit = 100

const resultCachePrefix = "optimizer:result:"

// budgetShares splits a token limit across components.
var budgetShares = struct {
	profile, knowledge, memory, sources, history float64
}{0.15, 0.40, 0.20, 0.15, 0.10}

// strategyMultipliers scale the whole budget per strategy.
var strategyMultipliers = map[Strategy]float64{
	StrategyQualityPreserving: 1.1,
	StrategySizeReducing:      0.8,
}

// qualityFloors bound how low the estimated quality score may fall.
var qualityFloors = map[Strategy]float64{
	StrategyQualityPreserving: 0.8,
	StrategyBalanced:          0.6,
}

const defaultQualityFloor = 0.4

// Optimizer is the context optimization service. It is safe for
// concurrent use.
type Optimizer struct {
	cache     cache.Cache
	resultTTL time.Duration
	logger    *logrus.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithCache replaces the default in-process TTL cache.
func WithCache(c cache.Cache) Option {
	return func(o *Optimizer) { o.cache = c }
}

// WithResultTTL sets how long optimization results stay cached.
func WithResultTTL(d time.Duration) Option {
	return func(o *Optimizer) { o.resultTTL = d }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Optimizer) { o.logger = logger }
}

// New creates a context optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		resultTTL: 15 * time.Minute,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = cache.NewTTLCache(o.resultTTL)
	}
	return o
}

// AllocateTokenBudget splits a token limit across context components,
// scaled by the strategy multiplier.
func AllocateTokenBudget(tokenLimit int, strategy Strategy) Budget {
	multiplier, ok := strategyMultipliers[strategy]
	if !ok {
		multiplier = 1.0
	}
	scaled := float64(tokenLimit) * multiplier
	return Budget{
		Profile:   int(scaled * budgetShares.profile),
		Knowledge: int(scaled * budgetShares.knowledge),
		Memory:    int(scaled * budgetShares.memory),
		Sources:   int(scaled * budgetShares.sources),
		History:   int(scaled * budgetShares.history),
	}
}

// OptimizeContext validates the request, then optimizes. Validation
// failures are the only errors a caller sees; everything past validation
// resolves to a usable result, falling back to the original context when
// compression goes wrong.
func (o *Optimizer) OptimizeContext(ctx context.Context, req *OptimizeRequest) (*Result, error) {
	if req == nil || req.Context == nil {
		return nil, fmt.Errorf("OptimizeContext: context required: %w", ErrInvalidInput)
	}
	if req.TokenLimit < minTokenLimit {
		return nil, fmt.Errorf("OptimizeContext: token limit must be at least %d: %w",
			minTokenLimit, ErrInvalidInput)
	}
	if req.Strategy == "" {
		return nil, fmt.Errorf("OptimizeContext: strategy required: %w", ErrInvalidInput)
	}
	if !ValidStrategy(req.Strategy) {
		return nil, fmt.Errorf("OptimizeContext: unknown strategy %q: %w", req.Strategy, ErrInvalidInput)
	}

	key := o.signature(req)
	if cached, ok := o.cache.Get(key); ok {
		if result, ok := cached.(*Result); ok {
			return result, nil
		}
	}

	result := o.optimize(req)
	o.cache.Set(key, result, o.resultTTL)
	return result, nil
}

// optimize never returns an error: a panic or clone failure yields the
// fallback result carrying the original context.
func (o *Optimizer) optimize(req *OptimizeRequest) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", r).Error("optimization failed; returning original context")
			result = fallbackResult(req.Context, fmt.Sprintf("optimization aborted internally (%v); context returned unmodified", r))
		}
	}()

	working, err := cloneContext(req.Context)
	if err != nil {
		o.logger.WithError(err).Error("context clone failed; returning original context")
		return fallbackResult(req.Context, "context could not be copied for optimization; returned unmodified")
	}

	builder.UpdateTokenUsage(working)
	originalTokens := working.TokenUsage.Total
	budget := AllocateTokenBudget(req.TokenLimit, req.Strategy)

	var tradeoffs []Tradeoff
	record := func(component string, before int, loss, impact float64, reason string) {
		builder.UpdateTokenUsage(working)
		after := componentTokens(working, component)
		if after >= before {
			return
		}
		tradeoffs = append(tradeoffs, Tradeoff{
			Component:       component,
			OriginalTokens:  before,
			OptimizedTokens: after,
			InformationLoss: loss,
			QualityImpact:   impact,
			Reason:          reason,
		})
	}

	switch req.Strategy {
	case StrategyQualityPreserving:
		if req.EducationalPriority && working.TokenUsage.Knowledge > budget.Knowledge {
			before := working.TokenUsage.Knowledge
			compressKnowledge(working, budget.Knowledge, 0.7)
			record("knowledge", before, 0.2, 0.1, "knowledge exceeded its allocation with educational priority set")
		}
		if working.TokenUsage.History > budget.History+budget.Memory {
			before := working.TokenUsage.History
			compressHistory(working, 0.6, 0.6)
			record("history", before, 0.3, 0.15, "history exceeded its allocation")
		}
		if working.TokenUsage.Sources > budget.Sources {
			before := working.TokenUsage.Sources
			compressSources(working, 0.5)
			record("sources", before, 0.3, 0.1, "sources exceeded their allocation")
		}

	case StrategySizeReducing:
		before := working.TokenUsage.Knowledge
		compressKnowledge(working, budget.Knowledge, 0.7)
		record("knowledge", before, 0.4, 0.25, "aggressive size reduction toward the knowledge allocation")

		before = working.TokenUsage.History
		compressHistory(working, 0.6, 0.6)
		record("history", before, 0.4, 0.2, "aggressive size reduction of history")

		before = working.TokenUsage.Sources
		compressSources(working, 0.5)
		record("sources", before, 0.5, 0.2, "aggressive size reduction of sources")

		compressProfile(working)

	case StrategyBalanced:
		before := working.TokenUsage.Profile
		compressProfile(working)
		record("profile", before, 0.1, 0.05, "fixed profile reduction")

		before = working.TokenUsage.Knowledge
		shrinkKnowledgeBy(working, 0.4)
		record("knowledge", before, 0.4, 0.2, "fixed knowledge reduction")

		before = working.TokenUsage.History
		compressHistory(working, 0.6, 0.6)
		record("history", before, 0.4, 0.2, "fixed history reduction")

		before = working.TokenUsage.Sources
		compressSources(working, 0.5)
		record("sources", before, 0.5, 0.2, "fixed source reduction")

	case StrategyPerformanceOriented:
		before := working.TokenUsage.Knowledge
		compressKnowledge(working, budget.Knowledge, 0.7)
		record("knowledge", before, 0.3, 0.15, "knowledge compressed for a smaller, cacheable payload")
	}

	if !req.PreserveFactChecks && req.Strategy == StrategySizeReducing {
		working.FactCheckPoints = capStrings(working.FactCheckPoints, 5)
		working.ConfidenceMarkers = capStrings(working.ConfidenceMarkers, 5)
	}

	builder.UpdateTokenUsage(working)
	optimizedTokens := working.TokenUsage.Total

	reduction := originalTokens - optimizedTokens
	reductionRatio := 0.0
	if originalTokens > 0 {
		reductionRatio = float64(reduction) / float64(originalTokens)
	}

	floor, ok := qualityFloors[req.Strategy]
	if !ok {
		floor = defaultQualityFloor
	}
	quality := math.Max(1-reductionRatio*0.3, floor)

	result = &Result{
		OptimizedContext: working,
		OriginalTokens:   originalTokens,
		OptimizedTokens:  optimizedTokens,
		TokenReduction:   reduction,
		QualityScore:     quality,
		CompressionRatio: 1 - reductionRatio,
		Preserved:        preservedInfo(working),
		Tradeoffs:        tradeoffs,
	}
	if optimizedTokens > req.TokenLimit {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("context is still %d tokens over the limit; consider the size_reducing strategy or a lower context level",
				optimizedTokens-req.TokenLimit))
	}
	if len(tradeoffs) == 0 {
		result.Recommendations = append(result.Recommendations,
			"no compression was necessary for this strategy and limit")
	}
	return result
}

// compressKnowledge ranks entries by weighted educational value and
// confidence, drops the tail until the component fits its allocation, and
// trims surviving text at sentence boundaries.
func compressKnowledge(ec *builder.EnhancedContext, allocation int, textRatio float64) {
	sort.SliceStable(ec.Knowledge, func(i, j int) bool {
		a, b := ec.Knowledge[i], ec.Knowledge[j]
		return 0.6*a.EducationalValue+0.4*a.Confidence > 0.6*b.EducationalValue+0.4*b.Confidence
	})
	for _, entry := range ec.Knowledge {
		entry.Content = trimSentences(entry.Content, textRatio)
	}
	builder.UpdateTokenUsage(ec)
	for ec.TokenUsage.Knowledge > allocation && len(ec.Knowledge) > 1 {
		ec.Knowledge = ec.Knowledge[:len(ec.Knowledge)-1]
		builder.UpdateTokenUsage(ec)
	}
}

// shrinkKnowledgeBy removes a fixed fraction of entries regardless of the
// current size, keeping the highest ranked ones.
func shrinkKnowledgeBy(ec *builder.EnhancedContext, fraction float64) {
	sort.SliceStable(ec.Knowledge, func(i, j int) bool {
		a, b := ec.Knowledge[i], ec.Knowledge[j]
		return 0.6*a.EducationalValue+0.4*a.Confidence > 0.6*b.EducationalValue+0.4*b.Confidence
	})
	keep := int(math.Ceil(float64(len(ec.Knowledge)) * (1 - fraction)))
	if keep < len(ec.Knowledge) {
		ec.Knowledge = ec.Knowledge[:keep]
	}
	for _, entry := range ec.Knowledge {
		entry.Content = trimSentences(entry.Content, 0.7)
	}
}

// compressHistory keeps the top fraction of summaries ranked by quality
// and recency, truncating what survives.
func compressHistory(ec *builder.EnhancedContext, keepFraction, textRatio float64) {
	sort.SliceStable(ec.History, func(i, j int) bool {
		a, b := ec.History[i], ec.History[j]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	keep := int(math.Ceil(float64(len(ec.History)) * keepFraction))
	if keep < len(ec.History) {
		ec.History = ec.History[:keep]
	}
	for i := range ec.History {
		summary := ec.History[i].Summary
		max := int(float64(len(summary)) * textRatio)
		if max > 0 && len(summary) > max {
			ec.History[i].Summary = strings.TrimSpace(summary[:max]) + "..."
		}
	}
}

// compressSources keeps the top half of sources ranked by reliability and
// citation weight.
func compressSources(ec *builder.EnhancedContext, keepFraction float64) {
	sort.SliceStable(ec.Sources, func(i, j int) bool {
		a, b := ec.Sources[i], ec.Sources[j]
		return 0.6*a.Reliability+0.4*float64(a.CitationCount)/100 >
			0.6*b.Reliability+0.4*float64(b.CitationCount)/100
	})
	keep := int(math.Ceil(float64(len(ec.Sources)) * keepFraction))
	if keep < len(ec.Sources) {
		ec.Sources = ec.Sources[:keep]
	}
}

// compressProfile drops verbose preference metadata and caps recent
// topics.
func compressProfile(ec *builder.EnhancedContext) {
	if ec.Profile == nil {
		return
	}
	ec.Profile.Preferences = nil
	ec.Profile.RecentTopics = capStrings(ec.Profile.RecentTopics, 5)
}

func preservedInfo(ec *builder.EnhancedContext) PreservedInformation {
	info := PreservedInformation{
		CriticalFacts: capStrings(ec.FactCheckPoints, 10),
	}
	for _, entry := range ec.Knowledge {
		info.LearningObjectives = append(info.LearningObjectives, entry.LearningObjectives...)
	}
	info.LearningObjectives = capStrings(info.LearningObjectives, 10)

	if ec.Profile != nil {
		if ec.Profile.LearningStyle != "" {
			info.KeyPreferences = append(info.KeyPreferences, "learning style: "+ec.Profile.LearningStyle)
		}
		if ec.Profile.MostStudiedSubject != "" {
			info.KeyPreferences = append(info.KeyPreferences, "focus subject: "+ec.Profile.MostStudiedSubject)
		}
		info.KnowledgeGaps = ec.Profile.WeakSubjects
		if ec.Profile.TotalSessions > 0 {
			info.RecentProgress = fmt.Sprintf("%d sessions recorded, about %.1f per week recently",
				ec.Profile.TotalSessions, ec.Profile.LearningVelocity)
		}
	}
	return info
}

func fallbackResult(original *builder.EnhancedContext, note string) *Result {
	tokens := 0
	if original != nil {
		tokens = original.TokenUsage.Total
	}
	return &Result{
		OptimizedContext: original,
		OriginalTokens:   tokens,
		OptimizedTokens:  tokens,
		QualityScore:     1,
		CompressionRatio: 1,
		Recommendations:  []string{note},
	}
}

// cloneContext deep copies a context so optimization never mutates the
// caller's value.
func cloneContext(ec *builder.EnhancedContext) (*builder.EnhancedContext, error) {
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, err
	}
	var clone builder.EnhancedContext
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func componentTokens(ec *builder.EnhancedContext, component string) int {
	switch component {
	case "profile":
		return ec.TokenUsage.Profile
	case "knowledge":
		return ec.TokenUsage.Knowledge
	case "history":
		return ec.TokenUsage.History
	case "sources":
		return ec.TokenUsage.Sources
	}
	return 0
}

// signature builds the cache key from the context shape and request
// parameters, not the full content.
func (o *Optimizer) signature(req *OptimizeRequest) string {
	ec := req.Context
	return fmt.Sprintf("%sk=%d,h=%d,s=%d,t=%d|limit=%d|strategy=%s|edu=%t|facts=%t",
		resultCachePrefix,
		len(ec.Knowledge), len(ec.History), len(ec.Sources), ec.TokenUsage.Total,
		req.TokenLimit, req.Strategy, req.EducationalPriority, req.PreserveFactChecks)
}

// trimSentences keeps whole sentences until the ratio of the original
// length is reached.
func trimSentences(s string, ratio float64) string {
	target := int(float64(len(s)) * ratio)
	if target <= 0 || len(s) <= target {
		return s
	}

	end := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			if i+1 > target {
				break
			}
			end = i + 1
		}
	}
	if end == 0 {
		return strings.TrimSpace(s[:target]) + "..."
	}
	return strings.TrimSpace(s[:end])
}

func capStrings(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}
