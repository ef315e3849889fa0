// Package builder assembles the grounding context for a tutoring session:
// an ultra-compressed student profile, relevant knowledge, conversation
// history and sources, squeezed into a token envelope.
package builder

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

	"github.com/learnware/studyctx/pkg/cache"
	"github.com/learnware/studyctx/pkg/knowledge"
	"github.com/learnware/studyctx/pkg/memory"
)

// ErrInvalidInput indicates a malformed build request.
var ErrInvalidInput = errors.New("invalid input")

const profileCachePrefix = "builder:profile:"

// Builder assembles EnhancedContext values. It is safe for concurrent
// use.
type Builder struct {
	memories   *memory.Store
	knowledge  *knowledge.Base
	activity   ActivityProvider
	cache      cache.Cache
	profileTTL time.Duration
	clock      func() time.Time
	logger     *logrus.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithCache replaces the default in-process TTL cache.
func WithCache(c cache.Cache) Option {
	return func(b *Builder) { b.cache = c }
}

// WithProfileTTL sets how long computed profiles stay cached.
func WithProfileTTL(d time.Duration) Option {
	return func(b *Builder) { b.profileTTL = d }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(fn func() time.Time) Option {
	return func(b *Builder) { b.clock = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// New creates a context builder over the memory store, knowledge base and
// activity provider.
func New(memories *memory.Store, kb *knowledge.Base, activity ActivityProvider, opts ...Option) *Builder {
	b := &Builder{
		memories:   memories,
		knowledge:  kb,
		activity:   activity,
		profileTTL: 5 * time.Minute,
		clock:      time.Now,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = cache.NewTTLCache(b.profileTTL)
	}
	return b
}

// BuildContext assembles a context at the requested level. Sub-resource
// reads degrade gracefully: a failing knowledge or history lookup yields
// an emptier context, never an error. If the estimated total exceeds the
// token limit an ordered fallback compression is applied (knowledge, then
// history, then sources).
func (b *Builder) BuildContext(ctx context.Context, req *BuildRequest) (*EnhancedContext, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("BuildContext: user id required: %w", ErrInvalidInput)
	}

	level := req.Level
	spec, ok := Levels[level]
	if !ok {
		level = LevelSelective
		spec = Levels[level]
	}
	tokenLimit := req.TokenLimit
	if tokenLimit <= 0 {
		tokenLimit = spec.MaxTokens
	}

	ec := &EnhancedContext{CompressionLevel: level}
	ec.Profile = b.profileFor(ctx, req.UserID)
	b.attachKnowledge(ctx, ec, req)
	b.attachHistory(ctx, ec, req.UserID)
	b.attachSources(ctx, ec)
	deriveMarkers(ec)

	UpdateTokenUsage(ec)
	if ec.TokenUsage.Total > tokenLimit {
		b.compressToFit(ec, tokenLimit, spec.CompressionRatio)
	}

	return ec, nil
}

// profileFor returns the cached ultra-compressed profile, recomputing it
// from raw activity when the cache misses.
func (b *Builder) profileFor(ctx context.Context, userID string) *Profile {
	key := profileCachePrefix + userID
	if cached, ok := b.cache.Get(key); ok {
		if profile, ok := cached.(*Profile); ok {
			return profile
		}
	}

	profile := b.computeProfile(ctx, userID)
	b.cache.Set(key, profile, b.profileTTL)
	return profile
}

func (b *Builder) computeProfile(ctx context.Context, userID string) *Profile {
	profile := &Profile{UserID: userID}
	if b.activity == nil {
		return profile
	}

	records, err := b.activity.GetActivity(ctx, userID)
	if err != nil {
		b.logger.WithError(err).WithField("user_id", userID).
			Warn("activity lookup failed; returning minimal profile")
		return profile
	}

	if prefs, err := b.activity.GetPreferences(ctx, userID); err == nil && prefs != nil {
		profile.LearningStyle = prefs.LearningStyle
		profile.Preferences = prefs.Settings
	}

	type subjectAgg struct {
		accuracySum float64
		sessions    int
	}
	subjects := make(map[string]*subjectAgg)

	var difficultySum float64
	var difficultyCount int
	var durationSum float64
	var recentSessions int
	fourWeeksAgo := b.clock().Add(-4 * 7 * 24 * time.Hour)

	seenTopics := make(map[string]struct{})
	for _, rec := range records {
		profile.TotalSessions++
		durationSum += rec.DurationMinutes
		if rec.Difficulty > 0 {
			difficultySum += float64(rec.Difficulty)
			difficultyCount++
		}
		if rec.OccurredAt.After(fourWeeksAgo) {
			recentSessions++
		}
		if rec.Subject != "" {
			agg, ok := subjects[rec.Subject]
			if !ok {
				agg = &subjectAgg{}
				subjects[rec.Subject] = agg
			}
			agg.sessions++
			agg.accuracySum += rec.Accuracy
		}
		if rec.Topic != "" {
			if _, seen := seenTopics[rec.Topic]; !seen && len(profile.RecentTopics) < 10 {
				seenTopics[rec.Topic] = struct{}{}
				profile.RecentTopics = append(profile.RecentTopics, rec.Topic)
			}
		}
	}

	mostSessions := 0
	for subject, agg := range subjects {
		avg := agg.accuracySum / float64(agg.sessions)
		if avg > 0.8 {
			profile.StrongSubjects = append(profile.StrongSubjects, subject)
		} else if avg < 0.6 {
			profile.WeakSubjects = append(profile.WeakSubjects, subject)
		}
		if agg.sessions > mostSessions {
			mostSessions = agg.sessions
			profile.MostStudiedSubject = subject
		}
	}
	sort.Strings(profile.StrongSubjects)
	sort.Strings(profile.WeakSubjects)

	if difficultyCount > 0 {
		profile.PreferredComplexity = int(math.Round(difficultySum / float64(difficultyCount)))
	}
	if profile.TotalSessions > 0 {
		profile.AverageSessionMinutes = durationSum / float64(profile.TotalSessions)
	}
	profile.LearningVelocity = float64(recentSessions) / 4

	return profile
}

// attachKnowledge fills the knowledge component from the knowledge base,
// cloning entries so later compression never mutates cached results.
func (b *Builder) attachKnowledge(ctx context.Context, ec *EnhancedContext, req *BuildRequest) {
	filters := &knowledge.SearchFilters{Limit: maxKnowledgeEntries}
	if req.Subject != "" {
		filters.Subjects = []string{req.Subject}
	}

	hits, err := b.knowledge.SearchKnowledge(ctx, req.Query, filters)
	if err != nil {
		b.logger.WithError(err).Warn("knowledge lookup failed; building without knowledge")
		return
	}
	for _, hit := range hits {
		clone := *hit.Entry
		ec.Knowledge = append(ec.Knowledge, &clone)
	}
}

// attachHistory derives up to maxHistoryEntries conversation summaries
// from the user's most recent memories, one per conversation.
func (b *Builder) attachHistory(ctx context.Context, ec *EnhancedContext, userID string) {
	results, err := b.memories.SearchMemories(ctx, &memory.SearchRequest{
		UserID:     userID,
		SortBy:     memory.SortByDate,
		MaxResults: 100,
	})
	if err != nil {
		b.logger.WithError(err).Warn("history lookup failed; building without history")
		return
	}

	seen := make(map[string]struct{})
	for _, res := range results {
		mem := res.Memory
		conversationID := mem.ConversationID
		if conversationID == "" {
			conversationID = fmt.Sprintf("memory-%d", mem.ID)
		}
		if _, ok := seen[conversationID]; ok {
			continue
		}
		seen[conversationID] = struct{}{}

		ec.History = append(ec.History, ConversationSummary{
			ConversationID: conversationID,
			Summary:        truncate(mem.Interaction.Content, 200),
			Topic:          mem.Interaction.Topic,
			QualityScore:   mem.QualityScore,
			CreatedAt:      mem.CreatedAt,
		})
		if len(ec.History) >= maxHistoryEntries {
			break
		}
	}
}

func (b *Builder) attachSources(ctx context.Context, ec *EnhancedContext) {
	sources, err := b.knowledge.ListSources(ctx, maxSourceEntries)
	if err != nil {
		b.logger.WithError(err).Warn("source lookup failed; building without sources")
		return
	}
	for _, src := range sources {
		clone := *src
		ec.Sources = append(ec.Sources, &clone)
	}
}

// deriveMarkers extracts fact-check points from high-confidence fact
// entries and confidence markers from high educational value entries.
func deriveMarkers(ec *EnhancedContext) {
	for _, entry := range ec.Knowledge {
		if entry.ContentType == knowledge.ContentTypeFacts && entry.Confidence > factCheckConfidence {
			ec.FactCheckPoints = append(ec.FactCheckPoints,
				fmt.Sprintf("%s: %s", entry.Title, firstSentence(entry.Content)))
		}
		if entry.EducationalValue > confidenceMarkerEduValue {
			ec.ConfidenceMarkers = append(ec.ConfidenceMarkers, entry.Title)
		}
	}
}

// compressToFit applies the ordered fallback compression: trim knowledge,
// then history, then sources, truncating surviving text toward the level's
// compression ratio. Best effort, not a hard cap.
func (b *Builder) compressToFit(ec *EnhancedContext, tokenLimit int, ratio float64) {
	for _, entry := range ec.Knowledge {
		entry.Content = truncate(entry.Content, int(float64(len(entry.Content))*ratio))
	}
	UpdateTokenUsage(ec)
	for ec.TokenUsage.Total > tokenLimit && len(ec.Knowledge) > 0 {
		ec.Knowledge = ec.Knowledge[:len(ec.Knowledge)-1]
		UpdateTokenUsage(ec)
	}

	for i := range ec.History {
		ec.History[i].Summary = truncate(ec.History[i].Summary, int(float64(len(ec.History[i].Summary))*ratio))
	}
	UpdateTokenUsage(ec)
	for ec.TokenUsage.Total > tokenLimit && len(ec.History) > 0 {
		ec.History = ec.History[:len(ec.History)-1]
		UpdateTokenUsage(ec)
	}

	for ec.TokenUsage.Total > tokenLimit && len(ec.Sources) > 0 {
		ec.Sources = ec.Sources[:len(ec.Sources)-1]
		UpdateTokenUsage(ec)
	}
}

// UpdateTokenUsage refreshes the per-component token estimate, roughly
// one token per four characters of serialized content.
func UpdateTokenUsage(ec *EnhancedContext) {
	ec.TokenUsage = TokenUsage{
		Profile:   EstimateTokens(ec.Profile),
		Knowledge: EstimateTokens(ec.Knowledge),
		History:   EstimateTokens(ec.History),
		Sources:   EstimateTokens(ec.Sources),
	}
	ec.TokenUsage.Total = ec.TokenUsage.Profile + ec.TokenUsage.Knowledge +
		ec.TokenUsage.History + ec.TokenUsage.Sources +
		EstimateTokens(ec.FactCheckPoints) + EstimateTokens(ec.ConfidenceMarkers)
}

// EstimateTokens approximates the token count of any serializable value.
func EstimateTokens(v interface{}) int {
	if v == nil {
		return 0
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data) / 4
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".!?"); idx >= 0 {
		return s[:idx+1]
	}
	return truncate(s, 120)
}
