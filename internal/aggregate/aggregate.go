// Package aggregate reduces all reviewer verdicts into per-claim buckets and
// a consensus score. The reduction is pure: no I/O, no config, deterministic
// for a given input order.
package aggregate

import (
	"math"

	"github.com/haricheung/council/internal/types"
)

// claimReviews groups every review of one claim, keyed and ordered by the
// first appearance of its claim id across verdicts.
type claimReviews struct {
	claimID string
	reviews []types.ReviewItem
}

// Aggregate buckets every reviewed claim by verdict agreement.
//
// Expectations:
//   - Buckets are disjoint and hold canonical claim texts in first-appearance
//     order of their claim ids
//   - Unanimous CORRECT/INCORRECT/UNCERTAIN land in supported/rejected/
//     uncertain; strict majorities in supported/rejected; everything else is
//     disputed
//   - Review items referencing unknown claim ids are ignored
//   - evidence_needed_count counts claims where at least one reviewer asked
//     for evidence, not individual review items
func Aggregate(claims []types.ParaphrasedClaim, verdicts []types.ReviewerVerdict) types.Aggregation {
	grouped := groupByClaim(verdicts)

	lookup := make(map[string]string, len(claims))
	for _, c := range claims {
		lookup[c.ClaimID] = c.CanonicalText
	}

	agg := types.Aggregation{
		TotalClaims: len(claims),
		Supported:   []string{},
		Rejected:    []string{},
		Disputed:    []string{},
		Uncertain:   []string{},
	}

	for _, g := range grouped {
		text, known := lookup[g.claimID]
		if !known {
			continue
		}

		var correct, incorrect, uncertain int
		needsEvidence := false
		for _, r := range g.reviews {
			switch r.Verdict {
			case types.VerdictCorrect:
				correct++
			case types.VerdictIncorrect:
				incorrect++
			case types.VerdictUncertain:
				uncertain++
			}
			if r.EvidenceNeeded {
				needsEvidence = true
			}
		}
		if needsEvidence {
			agg.EvidenceNeededCount++
		}

		total := len(g.reviews)
		switch {
		case correct == total:
			agg.Supported = append(agg.Supported, text)
		case incorrect == total:
			agg.Rejected = append(agg.Rejected, text)
		case uncertain == total:
			agg.Uncertain = append(agg.Uncertain, text)
		case correct > incorrect && correct > uncertain:
			agg.Supported = append(agg.Supported, text)
		case incorrect > correct && incorrect > uncertain:
			agg.Rejected = append(agg.Rejected, text)
		default:
			agg.Disputed = append(agg.Disputed, text)
		}
	}

	agg.ConsensusScore = consensus(grouped, len(claims))
	return agg
}

// groupByClaim flattens verdicts into per-claim review groups, preserving
// first-appearance order of claim ids.
func groupByClaim(verdicts []types.ReviewerVerdict) []claimReviews {
	index := make(map[string]int)
	var grouped []claimReviews
	for _, v := range verdicts {
		for _, r := range v.Reviews {
			i, seen := index[r.ClaimID]
			if !seen {
				i = len(grouped)
				index[r.ClaimID] = i
				grouped = append(grouped, claimReviews{claimID: r.ClaimID})
			}
			grouped[i].reviews = append(grouped[i].reviews, r)
		}
	}
	return grouped
}

// consensus scores reviewer agreement over claims seen by at least two
// reviewers: unanimously judged claims divided by comparable claims, rounded
// to three decimals. No reviews at all scores 0.0; reviews but no comparable
// claim scores 0.5.
func consensus(grouped []claimReviews, totalClaims int) float64 {
	if len(grouped) == 0 || totalClaims == 0 {
		return 0.0
	}
	agreement, compared := 0, 0
	for _, g := range grouped {
		if len(g.reviews) < 2 {
			continue
		}
		compared++
		unanimous := true
		for _, r := range g.reviews[1:] {
			if r.Verdict != g.reviews[0].Verdict {
				unanimous = false
				break
			}
		}
		if unanimous {
			agreement++
		}
	}
	if compared == 0 {
		return 0.5
	}
	return math.Round(float64(agreement)/float64(compared)*1000) / 1000
}
