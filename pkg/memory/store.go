// Package memory implements the conversation memory store: persisting
// interaction records, scoring and linking them, running retention
// maintenance and producing analytics.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	gocron "github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/learnware/studyctx/pkg/storage"
)

// ErrInvalidInput indicates a malformed request rejected before any I/O.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound indicates a referenced memory does not exist.
var ErrNotFound = storage.ErrNotFound

// candidateScanLimit bounds how many recent memories post-store linking
// and the linking optimization pass consider.
const candidateScanLimit = 200

// Store is the conversation memory service. It is safe for concurrent use.
type Store struct {
	store  storage.Store
	policy ScoringPolicy
	clock  func() time.Time
	logger *logrus.Logger
	node   *snowflake.Node

	cleanupInterval time.Duration
	scheduler       gocron.Scheduler
	mu              sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, mainly for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.clock = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithScoringPolicy overrides the default scoring weights.
func WithScoringPolicy(policy ScoringPolicy) Option {
	return func(s *Store) { s.policy = policy }
}

// WithCleanupInterval sets the scheduled expiry sweep interval.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Store) { s.cleanupInterval = d }
}

// NewStore creates a conversation memory store on top of the given row
// store.
func NewStore(st storage.Store, opts ...Option) (*Store, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	s := &Store{
		store:           st,
		policy:          DefaultScoringPolicy(),
		clock:           time.Now,
		logger:          logrus.StandardLogger(),
		node:            node,
		cleanupInterval: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StoreMemory scores and persists a new memory, then runs post-store
// processing: similarity auto-linking and knowledge candidate flagging.
// Post-store failures are logged and do not fail the persisted write.
func (s *Store) StoreMemory(ctx context.Context, req *StoreRequest) (*StoreResult, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("StoreMemory: user id required: %w", ErrInvalidInput)
	}
	if !ValidType(req.Type) {
		return nil, fmt.Errorf("StoreMemory: unknown memory type %q: %w", req.Type, ErrInvalidInput)
	}
	if strings.TrimSpace(req.Interaction.Content) == "" {
		return nil, fmt.Errorf("StoreMemory: content required: %w", ErrInvalidInput)
	}

	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if req.Retention == "" {
		req.Retention = RetentionShortTerm
	}

	now := s.clock()
	mem := &Memory{
		ID:             s.node.Generate().Int64(),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Type:           req.Type,
		Interaction:    req.Interaction,
		QualityScore:   s.policy.QualityScore(&req.Interaction),
		RelevanceScore: s.policy.RelevanceScore(req),
		Priority:       req.Priority,
		Retention:      req.Retention,
		ExpiresAt:      ExpiryFor(req.Retention, now),
		Tags:           req.Tags,
		Metadata: Metadata{
			Source:  req.Source,
			Version: "1",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	result := &StoreResult{Memory: mem}
	if mem.Type == TypeInsight && mem.QualityScore > s.policy.KnowledgeCandidateThreshold {
		mem.Metadata.KnowledgeCandidate = true
		result.KnowledgeCandidate = true
	}

	row, err := toRow(mem)
	if err != nil {
		return nil, fmt.Errorf("StoreMemory: %w", err)
	}
	if err := s.store.InsertMemory(ctx, row); err != nil {
		return nil, fmt.Errorf("StoreMemory: %w", err)
	}

	linked, err := s.autoLink(ctx, mem)
	if err != nil {
		s.logger.WithError(err).WithField("memory_id", mem.ID).
			Warn("post-store auto-linking failed")
	} else {
		result.AutoLinkedIDs = linked
	}

	return result, nil
}

// autoLink finds up to MaxAutoLinks existing memories for the same user
// above the similarity threshold and links them bidirectionally.
func (s *Store) autoLink(ctx context.Context, mem *Memory) ([]int64, error) {
	candidates, err := s.listUser(ctx, mem.UserID, false, candidateScanLimit)
	if err != nil {
		return nil, err
	}

	type scored struct {
		mem   *Memory
		score float64
	}
	var matches []scored
	for _, cand := range candidates {
		if cand.ID == mem.ID {
			continue
		}
		if score := s.policy.Similarity(mem, cand); score > s.policy.SimilarityThreshold {
			matches = append(matches, scored{cand, score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > s.policy.MaxAutoLinks {
		matches = matches[:s.policy.MaxAutoLinks]
	}

	var linked []int64
	for _, match := range matches {
		crossConversation := mem.ConversationID != match.mem.ConversationID
		if err := s.linkPair(ctx, mem, match.mem, LinkSimilar, true, crossConversation); err != nil {
			return linked, err
		}
		linked = append(linked, match.mem.ID)
	}
	return linked, nil
}

// linkPair appends edges between two loaded memories and persists both
// sides. Existing edges with the same (target, type) are left untouched.
func (s *Store) linkPair(ctx context.Context, source, target *Memory, linkType LinkType, bidirectional, markCross bool) error {
	now := s.clock()

	changedSource := false
	if !source.HasLink(target.ID, linkType) {
		source.Links = append(source.Links, Link{TargetID: target.ID, Type: linkType})
		changedSource = true
	}
	if markCross && !source.Metadata.CrossConversationLinked {
		source.Metadata.CrossConversationLinked = true
		changedSource = true
	}

	changedTarget := false
	if bidirectional {
		reverse := reverseLinkType(linkType)
		if !target.HasLink(source.ID, reverse) {
			target.Links = append(target.Links, Link{TargetID: source.ID, Type: reverse})
			changedTarget = true
		}
		if markCross && !target.Metadata.CrossConversationLinked {
			target.Metadata.CrossConversationLinked = true
			changedTarget = true
		}
	}

	if changedSource {
		source.UpdatedAt = now
		if err := s.saveMemory(ctx, source); err != nil {
			return err
		}
	}
	if changedTarget {
		target.UpdatedAt = now
		if err := s.saveMemory(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// LinkMemories connects two memories. The edge is only added when no edge
// with the same target and type exists; with Bidirectional set the reverse
// edge is added as well. Both ends are marked cross-conversation linked.
func (s *Store) LinkMemories(ctx context.Context, req *LinkRequest) (*Memory, error) {
	if req == nil || req.SourceID == 0 || req.TargetID == 0 {
		return nil, fmt.Errorf("LinkMemories: source and target ids required: %w", ErrInvalidInput)
	}
	if req.SourceID == req.TargetID {
		return nil, fmt.Errorf("LinkMemories: cannot link a memory to itself: %w", ErrInvalidInput)
	}
	if req.LinkType == "" {
		req.LinkType = LinkSimilar
	}

	source, err := s.GetMemory(ctx, req.SourceID)
	if err != nil {
		return nil, fmt.Errorf("LinkMemories: %w", err)
	}
	target, err := s.GetMemory(ctx, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("LinkMemories: %w", err)
	}

	if err := s.linkPair(ctx, source, target, req.LinkType, req.Bidirectional, true); err != nil {
		return nil, fmt.Errorf("LinkMemories: %w", err)
	}
	return source, nil
}

// SearchMemories filters, scores and ranks a user's memories. With a query
// string each memory gets a query-specific relevance score and highlighted
// snippets; without one the stored relevance score is used.
func (s *Store) SearchMemories(ctx context.Context, req *SearchRequest) ([]*SearchResult, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("SearchMemories: user id required: %w", ErrInvalidInput)
	}

	filter := &storage.MemoryFilter{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Tags:           req.Tags,
		CreatedAfter:   req.CreatedAfter,
		CreatedBefore:  req.CreatedBefore,
		IncludeExpired: req.IncludeExpired,
		Now:            s.clock(),
	}
	for _, t := range req.Types {
		filter.Types = append(filter.Types, string(t))
	}
	for _, p := range req.Priorities {
		filter.Priorities = append(filter.Priorities, string(p))
	}
	for _, r := range req.Retentions {
		filter.Retentions = append(filter.Retentions, string(r))
	}

	rows, err := s.store.ListMemories(ctx, filter)
	if err != nil {
		// Degraded read: log and return nothing rather than failing the
		// caller on a broken store.
		s.logger.WithError(err).WithField("user_id", req.UserID).
			Warn("memory search degraded to empty result")
		return nil, nil
	}

	var results []*SearchResult
	for _, row := range rows {
		mem, err := fromRow(row)
		if err != nil {
			s.logger.WithError(err).WithField("memory_id", row.ID).
				Warn("skipping undecodable memory row")
			continue
		}

		score := s.policy.QueryRelevance(mem, req.Query)
		if score < req.MinRelevanceScore {
			continue
		}
		results = append(results, &SearchResult{
			Memory:         mem,
			RelevanceScore: score,
			Snippets:       makeSnippets(mem.Interaction.Content, req.Query, 3),
		})
	}

	sortResults(results, req.SortBy)

	limit := req.MaxResults
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetMemory loads a single memory by ID.
func (s *Store) GetMemory(ctx context.Context, id int64) (*Memory, error) {
	row, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

// UpdateMemoryQuality blends user feedback into a memory's quality score.
// Satisfaction is averaged with the current score and any correction
// halves the result.
func (s *Store) UpdateMemoryQuality(ctx context.Context, id int64, feedback *QualityFeedback) (*Memory, error) {
	if feedback == nil {
		return nil, fmt.Errorf("UpdateMemoryQuality: feedback required: %w", ErrInvalidInput)
	}
	if feedback.UserSatisfaction < 0 || feedback.UserSatisfaction > 1 {
		return nil, fmt.Errorf("UpdateMemoryQuality: satisfaction out of range: %w", ErrInvalidInput)
	}

	mem, err := s.GetMemory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateMemoryQuality: %w", err)
	}

	mem.QualityScore = clamp01((mem.QualityScore + feedback.UserSatisfaction) / 2)
	if len(feedback.Corrections) > 0 {
		mem.QualityScore /= 2
	}
	mem.Metadata.FeedbackCollected = true
	mem.UpdatedAt = s.clock()

	if err := s.saveMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("UpdateMemoryQuality: %w", err)
	}
	return mem, nil
}

// RecordAccess bumps a memory's access counter and last-accessed time.
func (s *Store) RecordAccess(ctx context.Context, id int64) error {
	mem, err := s.GetMemory(ctx, id)
	if err != nil {
		return fmt.Errorf("RecordAccess: %w", err)
	}
	mem.Metadata.AccessCount++
	mem.Metadata.LastAccessedAt = s.clock()
	if err := s.saveMemory(ctx, mem); err != nil {
		return fmt.Errorf("RecordAccess: %w", err)
	}
	return nil
}

// listUser loads a user's memories as decoded structs.
func (s *Store) listUser(ctx context.Context, userID string, includeExpired bool, limit int) ([]*Memory, error) {
	rows, err := s.store.ListMemories(ctx, &storage.MemoryFilter{
		UserID:         userID,
		IncludeExpired: includeExpired,
		Now:            s.clock(),
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	memories := make([]*Memory, 0, len(rows))
	for _, row := range rows {
		mem, err := fromRow(row)
		if err != nil {
			s.logger.WithError(err).WithField("memory_id", row.ID).
				Warn("skipping undecodable memory row")
			continue
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

func (s *Store) saveMemory(ctx context.Context, mem *Memory) error {
	row, err := toRow(mem)
	if err != nil {
		return err
	}
	return s.store.UpdateMemory(ctx, row)
}

// Close stops the cleanup scheduler and closes the underlying store.
func (s *Store) Close() error {
	if err := s.StopCleanup(); err != nil {
		return err
	}
	return s.store.Close()
}

func sortResults(results []*SearchResult, order SortOrder) {
	priorityRank := map[Priority]int{
		PriorityCritical: 4,
		PriorityHigh:     3,
		PriorityMedium:   2,
		PriorityLow:      1,
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		switch order {
		case SortByDate:
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		case SortByQuality:
			return a.Memory.QualityScore > b.Memory.QualityScore
		case SortByPriority:
			return priorityRank[a.Memory.Priority] > priorityRank[b.Memory.Priority]
		default:
			return a.RelevanceScore > b.RelevanceScore
		}
	})
}

// makeSnippets extracts up to max windows of content around query
// occurrences, case-insensitively.
func makeSnippets(content, query string, max int) []string {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" || content == "" {
		return nil
	}

	lower := strings.ToLower(content)
	const window = 40

	var snippets []string
	offset := 0
	for len(snippets) < max {
		idx := strings.Index(lower[offset:], query)
		if idx < 0 {
			break
		}
		idx += offset

		start := idx - window
		if start < 0 {
			start = 0
		}
		end := idx + len(query) + window
		if end > len(content) {
			end = len(content)
		}

		snippet := content[start:end]
		if start > 0 {
			snippet = "..." + snippet
		}
		if end < len(content) {
			snippet += "..."
		}
		snippets = append(snippets, snippet)

		offset = idx + len(query)
	}
	return snippets
}

// toRow converts a Memory into its storage representation.
func toRow(mem *Memory) (*storage.MemoryRow, error) {
	interaction, err := json.Marshal(&mem.Interaction)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(&mem.Metadata)
	if err != nil {
		return nil, err
	}

	links := make([]storage.LinkRow, 0, len(mem.Links))
	for _, l := range mem.Links {
		links = append(links, storage.LinkRow{TargetID: l.TargetID, Type: string(l.Type)})
	}

	return &storage.MemoryRow{
		ID:             mem.ID,
		UserID:         mem.UserID,
		ConversationID: mem.ConversationID,
		MemoryType:     string(mem.Type),
		Interaction:    interaction,
		QualityScore:   mem.QualityScore,
		RelevanceScore: mem.RelevanceScore,
		Priority:       string(mem.Priority),
		Retention:      string(mem.Retention),
		ExpiresAt:      mem.ExpiresAt,
		Tags:           mem.Tags,
		Links:          links,
		Meta:           meta,
		CreatedAt:      mem.CreatedAt,
		UpdatedAt:      mem.UpdatedAt,
	}, nil
}

// fromRow converts a storage row back into a Memory.
func fromRow(row *storage.MemoryRow) (*Memory, error) {
	mem := &Memory{
		ID:             row.ID,
		UserID:         row.UserID,
		ConversationID: row.ConversationID,
		Type:           Type(row.MemoryType),
		QualityScore:   row.QualityScore,
		RelevanceScore: row.RelevanceScore,
		Priority:       Priority(row.Priority),
		Retention:      Retention(row.Retention),
		ExpiresAt:      row.ExpiresAt,
		Tags:           row.Tags,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}

	if len(row.Interaction) > 0 {
		if err := json.Unmarshal(row.Interaction, &mem.Interaction); err != nil {
			return nil, fmt.Errorf("decode interaction: %w", err)
		}
	}
	if len(row.Meta) > 0 {
		if err := json.Unmarshal(row.Meta, &mem.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	for _, l := range row.Links {
		mem.Links = append(mem.Links, Link{TargetID: l.TargetID, Type: LinkType(l.Type)})
	}
	return mem, nil
}
