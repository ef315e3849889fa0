package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/learnware/studyctx/pkg/storage"
)

// reliabilityFloors maps validation strictness to the minimum source
// reliability a candidate entry must carry to count.
var reliabilityFloors = map[Strictness]float64{
	StrictnessLenient:  0.5,
	StrictnessModerate: 0.7,
	StrictnessStrict:   0.9,
}

const (
	supportSimilarity    = 0.7
	contradictSimilarity = 0.3
	validConfidence      = 0.6
)

// ValidateFact checks a claim against the corpus. Candidate entries whose
// source clears the strictness reliability floor are bucketed by textual
// similarity into supporting and contradicting sets; the confidence is the
// clamped difference of the buckets' average source reliability.
func (b *Base) ValidateFact(ctx context.Context, req *ValidationRequest) (*ValidationResult, error) {
	if req == nil || strings.TrimSpace(req.Claim) == "" {
		return nil, fmt.Errorf("ValidateFact: claim required: %w", ErrInvalidInput)
	}
	if req.Strictness == "" {
		req.Strictness = StrictnessModerate
	}
	floor, ok := reliabilityFloors[req.Strictness]
	if !ok {
		return nil, fmt.Errorf("ValidateFact: unknown strictness %q: %w", req.Strictness, ErrInvalidInput)
	}

	entryFilter := &storage.EntryFilter{}
	if req.Subject != "" {
		entryFilter.Subjects = []string{req.Subject}
	}
	rows, err := b.store.ListEntries(ctx, entryFilter)
	if err != nil {
		return nil, fmt.Errorf("ValidateFact: %w", err)
	}

	reliability, err := b.sourceReliability(ctx)
	if err != nil {
		return nil, fmt.Errorf("ValidateFact: %w", err)
	}

	claimTokens := tokenize(req.Claim)
	var supportSum, contradictSum float64
	result := &ValidationResult{}

	for _, row := range rows {
		sourceReliability, ok := reliability[row.SourceID]
		if !ok || sourceReliability < floor {
			continue
		}

		similarity := jaccard(claimTokens, tokenize(row.Content))
		switch {
		case similarity > supportSimilarity:
			result.SupportingCount++
			supportSum += sourceReliability
		case similarity < contradictSimilarity:
			result.ContradictingCount++
			contradictSum += sourceReliability
		}
	}

	if result.SupportingCount > 0 {
		result.SupportingReliability = supportSum / float64(result.SupportingCount)
	}
	if result.ContradictingCount > 0 {
		result.ContradictingReliability = contradictSum / float64(result.ContradictingCount)
	}

	result.Confidence = clamp01(result.SupportingReliability - result.ContradictingReliability)
	result.IsValid = result.Confidence > validConfidence &&
		result.SupportingCount > result.ContradictingCount

	result.Recommendations = validationRecommendations(result)
	return result, nil
}

func validationRecommendations(r *ValidationResult) []string {
	var recs []string
	if r.SupportingCount == 0 {
		recs = append(recs, "no supporting sources found; the claim cannot be corroborated")
	} else if r.SupportingCount < 3 {
		recs = append(recs, "more supporting sources would increase confidence")
	}
	if r.ContradictingCount > 0 {
		recs = append(recs, fmt.Sprintf("%d sources diverge from the claim; review them before relying on it",
			r.ContradictingCount))
	}
	if r.IsValid && len(recs) == 0 {
		recs = append(recs, "the claim is well corroborated by reliable sources")
	}
	return recs
}
