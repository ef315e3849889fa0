package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// compressibleLength is the content size above which compression kicks in.
const compressibleLength = 500

// fillerWords are stripped during lossy content compression.
var fillerWords = []string{
	"actually", "basically", "really", "very", "just", "quite",
	"simply", "literally", "you know", "i mean", "sort of", "kind of",
}

var multiSpace = regexp.MustCompile(`\s+`)

// OptimizeMemories runs one maintenance pass over a user's memories in one
// of four mutually exclusive modes: cleanup, compression, consolidation or
// linking.
func (s *Store) OptimizeMemories(ctx context.Context, req *OptimizeRequest) (*OptimizeResult, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("OptimizeMemories: user id required: %w", ErrInvalidInput)
	}

	switch req.OptimizationType {
	case OptimizeCleanup:
		return s.runCleanup(ctx, req)
	case OptimizeCompression:
		return s.runCompression(ctx, req)
	case OptimizeConsolidation:
		return s.runConsolidation(ctx, req)
	case OptimizeLinking:
		return s.runLinking(ctx, req)
	default:
		return nil, fmt.Errorf("OptimizeMemories: unknown optimization type %q: %w",
			req.OptimizationType, ErrInvalidInput)
	}
}

// runCleanup deletes expired memories, low-quality memories and memories
// past the requested age, honoring the preserve flags.
func (s *Store) runCleanup(ctx context.Context, req *OptimizeRequest) (*OptimizeResult, error) {
	now := s.clock()
	memories, err := s.listUser(ctx, req.UserID, true, 0)
	if err != nil {
		return nil, fmt.Errorf("OptimizeMemories: %w", err)
	}

	result := &OptimizeResult{Processed: len(memories)}

	var toDelete []int64
	for _, mem := range memories {
		highPriority := mem.Priority == PriorityHigh || mem.Priority == PriorityCritical

		switch {
		case now.After(mem.ExpiresAt):
			// expired, always removable
		case req.QualityThreshold > 0 && mem.QualityScore < req.QualityThreshold:
			if highPriority && req.PreserveRecent {
				continue
			}
		case req.MaxAgeDays > 0 && now.Sub(mem.CreatedAt) > time.Duration(req.MaxAgeDays)*24*time.Hour:
			if highPriority && req.PreserveHighPriority {
				continue
			}
		default:
			continue
		}

		toDelete = append(toDelete, mem.ID)
		result.StorageSavedBytes += int64(len(mem.Interaction.Content))
	}

	if len(toDelete) > 0 {
		removed, err := s.store.DeleteMemories(ctx, toDelete)
		if err != nil {
			return nil, fmt.Errorf("OptimizeMemories: %w", err)
		}
		result.Removed = int(removed)
	}

	if result.Removed == 0 {
		result.Recommendations = append(result.Recommendations,
			"no memories met the cleanup criteria; consider a lower quality threshold")
	} else {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("removed %d memories, freeing roughly %d bytes",
				result.Removed, result.StorageSavedBytes))
	}
	return result, nil
}

// runCompression lossily shrinks long uncompressed content.
func (s *Store) runCompression(ctx context.Context, req *OptimizeRequest) (*OptimizeResult, error) {
	memories, err := s.listUser(ctx, req.UserID, true, 0)
	if err != nil {
		return nil, fmt.Errorf("OptimizeMemories: %w", err)
	}

	result := &OptimizeResult{Processed: len(memories)}
	for _, mem := range memories {
		if mem.Metadata.Compressed || len(mem.Interaction.Content) <= compressibleLength {
			continue
		}

		original := len(mem.Interaction.Content)
		mem.Interaction.Content = compressContent(mem.Interaction.Content)
		mem.Metadata.Compressed = true
		mem.UpdatedAt = s.clock()

		if err := s.saveMemory(ctx, mem); err != nil {
			return nil, fmt.Errorf("OptimizeMemories: %w", err)
		}
		result.Compressed++
		result.StorageSavedBytes += int64(original - len(mem.Interaction.Content))
	}

	if result.Compressed > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("compressed %d memories, saving %d bytes",
				result.Compressed, result.StorageSavedBytes))
	}
	return result, nil
}

// runConsolidation runs compression followed by cleanup and reports a
// fixed quality improvement estimate for the consolidated corpus.
func (s *Store) runConsolidation(ctx context.Context, req *OptimizeRequest) (*OptimizeResult, error) {
	compression, err := s.runCompression(ctx, req)
	if err != nil {
		return nil, err
	}
	cleanup, err := s.runCleanup(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &OptimizeResult{
		Processed:          compression.Processed,
		Removed:            cleanup.Removed,
		Compressed:         compression.Compressed,
		StorageSavedBytes:  compression.StorageSavedBytes + cleanup.StorageSavedBytes,
		QualityImprovement: 0.1,
	}
	result.Recommendations = append(result.Recommendations, compression.Recommendations...)
	result.Recommendations = append(result.Recommendations, cleanup.Recommendations...)
	return result, nil
}

// runLinking does a pairwise similarity scan over the candidate set and
// links every pair above the threshold.
func (s *Store) runLinking(ctx context.Context, req *OptimizeRequest) (*OptimizeResult, error) {
	memories, err := s.listUser(ctx, req.UserID, false, candidateScanLimit)
	if err != nil {
		return nil, fmt.Errorf("OptimizeMemories: %w", err)
	}

	result := &OptimizeResult{Processed: len(memories)}
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			a, b := memories[i], memories[j]
			if a.HasLink(b.ID, LinkSimilar) {
				continue
			}
			if s.policy.Similarity(a, b) <= s.policy.SimilarityThreshold {
				continue
			}
			crossConversation := a.ConversationID != b.ConversationID
			if err := s.linkPair(ctx, a, b, LinkSimilar, true, crossConversation); err != nil {
				return nil, fmt.Errorf("OptimizeMemories: %w", err)
			}
			result.Linked++
		}
	}

	if result.Linked > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("created %d similarity links", result.Linked))
	}
	return result, nil
}

// compressContent collapses whitespace and strips filler words. Lossy on
// purpose.
func compressContent(content string) string {
	compressed := multiSpace.ReplaceAllString(content, " ")
	for _, filler := range fillerWords {
		compressed = strings.ReplaceAll(compressed, " "+filler+" ", " ")
	}
	return strings.TrimSpace(compressed)
}
