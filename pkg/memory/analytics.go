package memory

import (
	"context"
	"sort"
	"time"

	"github.com/learnware/studyctx/pkg/storage"
)

// TimeRange bounds an analytics query. A nil range covers everything.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// GetMemoryAnalytics summarizes a user's memory corpus: counts, score
// averages, top topics, a chronological progress sample and growth rate.
// A degraded store yields empty analytics rather than an error.
func (s *Store) GetMemoryAnalytics(ctx context.Context, userID string, timeRange *TimeRange) (*Analytics, error) {
	analytics := &Analytics{
		CountByType:      make(map[Type]int),
		CountByPriority:  make(map[Priority]int),
		CountByRetention: make(map[Retention]int),
	}
	if userID == "" {
		return analytics, nil
	}

	filter := &storage.MemoryFilter{
		UserID:         userID,
		IncludeExpired: true,
	}
	if timeRange != nil {
		if !timeRange.From.IsZero() {
			filter.CreatedAfter = &timeRange.From
		}
		if !timeRange.To.IsZero() {
			filter.CreatedBefore = &timeRange.To
		}
	}

	rows, err := s.store.ListMemories(ctx, filter)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).
			Warn("memory analytics degraded to empty result")
		return analytics, nil
	}

	type topicAgg struct {
		count   int
		quality float64
	}
	topics := make(map[string]*topicAgg)

	var memories []*Memory
	var qualitySum, relevanceSum float64
	for _, row := range rows {
		mem, err := fromRow(row)
		if err != nil {
			continue
		}
		memories = append(memories, mem)

		analytics.CountByType[mem.Type]++
		analytics.CountByPriority[mem.Priority]++
		analytics.CountByRetention[mem.Retention]++
		qualitySum += mem.QualityScore
		relevanceSum += mem.RelevanceScore

		if topic := mem.Interaction.Topic; topic != "" {
			agg, ok := topics[topic]
			if !ok {
				agg = &topicAgg{}
				topics[topic] = agg
			}
			agg.count++
			agg.quality += mem.QualityScore
		}
	}

	analytics.TotalMemories = len(memories)
	if len(memories) > 0 {
		analytics.AverageQuality = qualitySum / float64(len(memories))
		analytics.AverageRelevance = relevanceSum / float64(len(memories))
	}

	for topic, agg := range topics {
		analytics.TopTopics = append(analytics.TopTopics, TopicStat{
			Topic:          topic,
			Count:          agg.count,
			AverageQuality: agg.quality / float64(agg.count),
		})
	}
	sort.SliceStable(analytics.TopTopics, func(i, j int) bool {
		return analytics.TopTopics[i].Count > analytics.TopTopics[j].Count
	})
	if len(analytics.TopTopics) > 10 {
		analytics.TopTopics = analytics.TopTopics[:10]
	}

	// Chronological sample of the first memories for a rough progress view.
	sorted := make([]*Memory, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	for i, mem := range sorted {
		if i >= 10 {
			break
		}
		analytics.LearningProgress = append(analytics.LearningProgress, ProgressPoint{
			MemoryID:     mem.ID,
			Topic:        mem.Interaction.Topic,
			QualityScore: mem.QualityScore,
			CreatedAt:    mem.CreatedAt,
		})
	}

	analytics.GrowthRate = growthRate(len(memories), timeRange, s.clock(), sorted)
	return analytics, nil
}

// growthRate is memories per day over the analyzed range. Without an
// explicit range, the span from the oldest memory to now is used.
func growthRate(count int, timeRange *TimeRange, now time.Time, chronological []*Memory) float64 {
	if count == 0 {
		return 0
	}

	var from, to time.Time
	if timeRange != nil && !timeRange.From.IsZero() {
		from = timeRange.From
		to = timeRange.To
		if to.IsZero() {
			to = now
		}
	} else if len(chronological) > 0 {
		from = chronological[0].CreatedAt
		to = now
	}

	days := to.Sub(from).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(count) / days
}
