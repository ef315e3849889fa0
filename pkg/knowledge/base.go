// Package knowledge implements the verified fact knowledge base: relevance
// search over stored facts, corroboration-based claim validation, source
// management and corpus statistics.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sirupsen/logrus"

	"github.com/learnware/studyctx/pkg/cache"
	"github.com/learnware/studyctx/pkg/storage"
)

// ErrInvalidInput indicates a malformed request rejected before any I/O.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound indicates a referenced entry or source does not exist.
var ErrNotFound = storage.ErrNotFound

const (
	searchCachePrefix = "knowledge:search:"
	sourceCachePrefix = "knowledge:sources"
)

// Base is the knowledge base service. It is safe for concurrent use.
type Base struct {
	store     storage.Store
	cache     cache.Cache
	searchTTL time.Duration
	clock     func() time.Time
	logger    *logrus.Logger
	node      *snowflake.Node
}

// Option configures a Base.
type Option func(*Base)

// WithCache replaces the default in-process TTL cache.
func WithCache(c cache.Cache) Option {
	return func(b *Base) { b.cache = c }
}

// WithSearchTTL sets how long search results stay cached.
func WithSearchTTL(d time.Duration) Option {
	return func(b *Base) { b.searchTTL = d }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(fn func() time.Time) Option {
	return func(b *Base) { b.clock = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(b *Base) { b.logger = logger }
}

// NewBase creates a knowledge base on top of the given row store.
func NewBase(st storage.Store, opts ...Option) (*Base, error) {
	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, fmt.Errorf("NewBase: %w", err)
	}

	b := &Base{
		store:     st,
		searchTTL: 10 * time.Minute,
		clock:     time.Now,
		logger:    logrus.StandardLogger(),
		node:      node,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = cache.NewTTLCache(b.searchTTL)
	}
	return b, nil
}

// SearchKnowledge scores stored entries against a free-text query, sorted
// by relevance descending. Results are cached per normalized query and
// filter signature; a cache hit does not touch the store.
func (b *Base) SearchKnowledge(ctx context.Context, query string, filters *SearchFilters) ([]*SearchHit, error) {
	if filters == nil {
		filters = &SearchFilters{}
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	key := searchCacheKey(query, filters, limit)
	if cached, ok := b.cache.Get(key); ok {
		if hits, ok := cached.([]*SearchHit); ok {
			return hits, nil
		}
	}

	entryFilter := &storage.EntryFilter{
		Subjects:            filters.Subjects,
		Topics:              filters.Topics,
		ContentType:         filters.ContentType,
		DifficultyMin:       filters.DifficultyMin,
		DifficultyMax:       filters.DifficultyMax,
		MinEducationalValue: filters.MinEducationalValue,
		VerificationStatus:  filters.VerificationStatus,
		CreatedAfter:        filters.CreatedAfter,
		CreatedBefore:       filters.CreatedBefore,
	}

	rows, err := b.store.ListEntries(ctx, entryFilter)
	if err != nil {
		b.logger.WithError(err).Warn("knowledge search degraded to empty result")
		return nil, nil
	}

	var reliability map[int64]float64
	if filters.MinReliability > 0 {
		reliability, err = b.sourceReliability(ctx)
		if err != nil {
			b.logger.WithError(err).Warn("source reliability lookup failed; skipping filter")
			reliability = nil
		}
	}

	queryTokens := tokenize(query)
	var hits []*SearchHit
	for _, row := range rows {
		entry := entryFromRow(row)
		if reliability != nil && reliability[entry.SourceID] < filters.MinReliability {
			continue
		}
		hits = append(hits, &SearchHit{
			Entry:          entry,
			RelevanceScore: relevance(entry, queryTokens, filters),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].RelevanceScore > hits[j].RelevanceScore
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	b.cache.Set(key, hits, b.searchTTL)
	return hits, nil
}

// relevance scores one entry against the query: weighted educational
// value, token overlap against content and topics, filter match bonuses
// and a confidence component. Clamped to [0,1].
func relevance(entry *Entry, queryTokens map[string]struct{}, filters *SearchFilters) float64 {
	score := 0.3 * entry.EducationalValue

	if len(queryTokens) > 0 {
		haystack := tokenize(entry.Content)
		for _, topic := range entry.Topics {
			for token := range tokenize(topic) {
				haystack[token] = struct{}{}
			}
		}
		score += 0.5 * overlapRatio(queryTokens, haystack)
	}

	for _, subject := range filters.Subjects {
		if strings.EqualFold(subject, entry.Subject) {
			score += 0.05
			break
		}
	}
	if filters.ContentType != "" && filters.ContentType == entry.ContentType {
		score += 0.05
	}

	score += 0.1 * entry.Confidence
	return clamp01(score)
}

// AddEntry persists a new knowledge entry. The referenced source must
// exist.
func (b *Base) AddEntry(ctx context.Context, entry *Entry) (*Entry, error) {
	if entry == nil || strings.TrimSpace(entry.Content) == "" {
		return nil, fmt.Errorf("AddEntry: content required: %w", ErrInvalidInput)
	}
	if entry.SourceID == 0 {
		return nil, fmt.Errorf("AddEntry: source id required: %w", ErrInvalidInput)
	}
	if _, err := b.store.GetSource(ctx, entry.SourceID); err != nil {
		return nil, fmt.Errorf("AddEntry: %w", err)
	}
	if entry.Difficulty < 1 {
		entry.Difficulty = 1
	}
	if entry.Difficulty > 5 {
		entry.Difficulty = 5
	}

	now := b.clock()
	entry.ID = b.node.Generate().Int64()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := b.store.InsertEntry(ctx, entryToRow(entry)); err != nil {
		return nil, fmt.Errorf("AddEntry: %w", err)
	}
	b.cache.InvalidatePrefix(searchCachePrefix)
	return entry, nil
}

// GetEntry loads a single entry by ID.
func (b *Base) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	row, err := b.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	return entryFromRow(row), nil
}

// AddSource registers a new educational source.
func (b *Base) AddSource(ctx context.Context, src *Source) (*Source, error) {
	if src == nil || strings.TrimSpace(src.Title) == "" {
		return nil, fmt.Errorf("AddSource: title required: %w", ErrInvalidInput)
	}
	if src.Reliability < 0 || src.Reliability > 1 {
		return nil, fmt.Errorf("AddSource: reliability out of range: %w", ErrInvalidInput)
	}

	now := b.clock()
	src.ID = b.node.Generate().Int64()
	src.CreatedAt = now
	src.UpdatedAt = now
	if src.VerificationStatus == "" {
		src.VerificationStatus = "unverified"
	}

	if err := b.store.InsertSource(ctx, sourceToRow(src)); err != nil {
		return nil, fmt.Errorf("AddSource: %w", err)
	}
	b.cache.Invalidate(sourceCachePrefix)
	b.cache.InvalidatePrefix(searchCachePrefix)
	return src, nil
}

// UpdateSourceVerification mutates a source's verification status and
// reliability, invalidating the affected caches.
func (b *Base) UpdateSourceVerification(ctx context.Context, id int64, status string, reliability float64) (*Source, error) {
	if reliability < 0 || reliability > 1 {
		return nil, fmt.Errorf("UpdateSourceVerification: reliability out of range: %w", ErrInvalidInput)
	}

	row, err := b.store.GetSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateSourceVerification: %w", err)
	}

	row.VerificationStatus = status
	row.Reliability = reliability
	row.UpdatedAt = b.clock()

	if err := b.store.UpdateSource(ctx, row); err != nil {
		return nil, fmt.Errorf("UpdateSourceVerification: %w", err)
	}
	b.cache.Invalidate(sourceCachePrefix)
	b.cache.InvalidatePrefix(searchCachePrefix)
	return sourceFromRow(row), nil
}

// ListSources returns sources ordered by reliability descending.
func (b *Base) ListSources(ctx context.Context, limit int) ([]*Source, error) {
	rows, err := b.store.ListSources(ctx, limit)
	if err != nil {
		b.logger.WithError(err).Warn("source listing degraded to empty result")
		return nil, nil
	}
	sources := make([]*Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, sourceFromRow(row))
	}
	return sources, nil
}

// AddRelation records a typed edge between two entries. Both ends must
// exist.
func (b *Base) AddRelation(ctx context.Context, entryID, relatedID int64, relationType string) (*Relation, error) {
	if entryID == 0 || relatedID == 0 || entryID == relatedID {
		return nil, fmt.Errorf("AddRelation: two distinct entry ids required: %w", ErrInvalidInput)
	}
	if _, err := b.store.GetEntry(ctx, entryID); err != nil {
		return nil, fmt.Errorf("AddRelation: %w", err)
	}
	if _, err := b.store.GetEntry(ctx, relatedID); err != nil {
		return nil, fmt.Errorf("AddRelation: %w", err)
	}

	rel := &Relation{
		ID:           b.node.Generate().Int64(),
		EntryID:      entryID,
		RelatedID:    relatedID,
		RelationType: relationType,
		CreatedAt:    b.clock(),
	}
	err := b.store.InsertRelation(ctx, &storage.RelationRow{
		ID:           rel.ID,
		EntryID:      rel.EntryID,
		RelatedID:    rel.RelatedID,
		RelationType: rel.RelationType,
		CreatedAt:    rel.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("AddRelation: %w", err)
	}
	return rel, nil
}

// GetRelatedFacts resolves an entry's relations into the entries they
// point at. Dangling relations are skipped.
func (b *Base) GetRelatedFacts(ctx context.Context, entryID int64) ([]*Entry, error) {
	relations, err := b.store.ListRelations(ctx, entryID)
	if err != nil {
		b.logger.WithError(err).WithField("entry_id", entryID).
			Warn("relation lookup degraded to empty result")
		return nil, nil
	}

	var entries []*Entry
	for _, rel := range relations {
		row, err := b.store.GetEntry(ctx, rel.RelatedID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("GetRelatedFacts: %w", err)
		}
		entries = append(entries, entryFromRow(row))
	}
	return entries, nil
}

// GetStatistics computes corpus-wide counts and histograms.
func (b *Base) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		EntriesBySubject: make(map[string]int),
		EntriesByType:    make(map[string]int),
	}

	entries, err := b.store.ListEntries(ctx, &storage.EntryFilter{})
	if err != nil {
		b.logger.WithError(err).Warn("statistics degraded to empty result")
		return stats, nil
	}
	var confidenceSum float64
	for _, row := range entries {
		stats.TotalEntries++
		if row.Subject != "" {
			stats.EntriesBySubject[row.Subject]++
		}
		if row.ContentType != "" {
			stats.EntriesByType[row.ContentType]++
		}
		confidenceSum += row.Confidence
	}
	if stats.TotalEntries > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.TotalEntries)
	}

	sources, err := b.store.ListSources(ctx, 0)
	if err != nil {
		b.logger.WithError(err).Warn("source statistics degraded to empty result")
		return stats, nil
	}
	var reliabilitySum float64
	for _, row := range sources {
		stats.TotalSources++
		reliabilitySum += row.Reliability
	}
	if stats.TotalSources > 0 {
		stats.AverageReliability = reliabilitySum / float64(stats.TotalSources)
	}

	return stats, nil
}

// sourceReliability returns a source ID to reliability map, cached
// alongside search results.
func (b *Base) sourceReliability(ctx context.Context) (map[int64]float64, error) {
	if cached, ok := b.cache.Get(sourceCachePrefix); ok {
		if m, ok := cached.(map[int64]float64); ok {
			return m, nil
		}
	}

	rows, err := b.store.ListSources(ctx, 0)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]float64, len(rows))
	for _, row := range rows {
		m[row.ID] = row.Reliability
	}
	b.cache.Set(sourceCachePrefix, m, b.searchTTL)
	return m, nil
}

// searchCacheKey builds a stable signature for a query plus filters.
func searchCacheKey(query string, f *SearchFilters, limit int) string {
	var sb strings.Builder
	sb.WriteString(searchCachePrefix)
	sb.WriteString(normalizeQuery(query))
	sb.WriteString("|s=")
	sb.WriteString(strings.Join(sortedLower(f.Subjects), ","))
	sb.WriteString("|t=")
	sb.WriteString(strings.Join(sortedLower(f.Topics), ","))
	sb.WriteString(fmt.Sprintf("|ct=%s|d=%d-%d|r=%.2f|ev=%.2f|vs=%s|l=%d",
		f.ContentType, f.DifficultyMin, f.DifficultyMax,
		f.MinReliability, f.MinEducationalValue, f.VerificationStatus, limit))
	if f.CreatedAfter != nil {
		sb.WriteString("|a=" + f.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if f.CreatedBefore != nil {
		sb.WriteString("|b=" + f.CreatedBefore.UTC().Format(time.RFC3339))
	}
	return sb.String()
}

func sortedLower(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	sort.Strings(out)
	return out
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func entryToRow(e *Entry) *storage.KnowledgeRow {
	return &storage.KnowledgeRow{
		ID:                 e.ID,
		SourceID:           e.SourceID,
		Title:              e.Title,
		Content:            e.Content,
		ContentType:        e.ContentType,
		Subject:            e.Subject,
		Topics:             e.Topics,
		Difficulty:         e.Difficulty,
		Confidence:         e.Confidence,
		EducationalValue:   e.EducationalValue,
		VerificationStatus: e.VerificationStatus,
		RelatedConcepts:    e.RelatedConcepts,
		Prerequisites:      e.Prerequisites,
		LearningObjectives: e.LearningObjectives,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func entryFromRow(row *storage.KnowledgeRow) *Entry {
	return &Entry{
		ID:                 row.ID,
		SourceID:           row.SourceID,
		Title:              row.Title,
		Content:            row.Content,
		ContentType:        row.ContentType,
		Subject:            row.Subject,
		Topics:             row.Topics,
		Difficulty:         row.Difficulty,
		Confidence:         row.Confidence,
		EducationalValue:   row.EducationalValue,
		VerificationStatus: row.VerificationStatus,
		RelatedConcepts:    row.RelatedConcepts,
		Prerequisites:      row.Prerequisites,
		LearningObjectives: row.LearningObjectives,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func sourceToRow(s *Source) *storage.SourceRow {
	return &storage.SourceRow{
		ID:                 s.ID,
		Title:              s.Title,
		Author:             s.Author,
		URL:                s.URL,
		Reliability:        s.Reliability,
		VerificationStatus: s.VerificationStatus,
		CitationCount:      s.CitationCount,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func sourceFromRow(row *storage.SourceRow) *Source {
	return &Source{
		ID:                 row.ID,
		Title:              row.Title,
		Author:             row.Author,
		URL:                row.URL,
		Reliability:        row.Reliability,
		VerificationStatus: row.VerificationStatus,
		CitationCount:      row.CitationCount,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

// tokenize splits text into a lowercase token set, dropping short tokens.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(s)) {
		token := strings.Trim(field, ".,;:!?\"'()[]")
		if len(token) < 3 {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

func overlapRatio(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for token := range query {
		if _, ok := candidate[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
