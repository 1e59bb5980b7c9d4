package directory

import (
	"math"
	"strings"
)

// Token scoring: 2 points for an exact token match, 1 point when either
// token contains the other. A best sum below minMatchScore is discarded so a
// single incidental substring hit cannot win.
const (
	exactTokenPoints     = 2
	substringTokenPoints = 1
	minMatchScore        = 2
)

// MatchResult is the outcome of matching a scanned name against the
// directory. Percentage is the fraction of the maximum possible token
// overlap, not a statistical confidence.
type MatchResult struct {
	Member     *Member
	Score      int
	Percentage int
}

// Match maps a raw scanned or typed name onto the best directory candidate.
//
// Exact normalized equality wins outright at 100%. Otherwise every
// (scanned token, directory token) pair is scored and the highest-sum
// candidate kept, ties retaining the first-seen entry. A result is only
// returned when the best sum clears the minimum-evidence floor.
func Match(rawName string, members []Member) MatchResult {
	normalized := normalizeName(rawName)
	if normalized == "" {
		return MatchResult{}
	}

	scannedTokens := strings.Fields(normalized)
	if len(scannedTokens) == 0 {
		return MatchResult{}
	}

	for i := range members {
		if normalizeName(members[i].FullName) == normalized {
			return MatchResult{Member: &members[i], Score: len(scannedTokens) * exactTokenPoints, Percentage: 100}
		}
	}

	var best *Member
	bestScore := 0
	for i := range members {
		memberTokens := strings.Fields(normalizeName(members[i].FullName))
		score := 0
		for _, scanned := range scannedTokens {
			for _, candidate := range memberTokens {
				switch {
				case scanned == candidate:
					score += exactTokenPoints
				case strings.Contains(candidate, scanned) || strings.Contains(scanned, candidate):
					score += substringTokenPoints
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = &members[i]
		}
	}

	if best == nil || bestScore < minMatchScore {
		return MatchResult{}
	}

	maxPossible := len(scannedTokens) * exactTokenPoints
	percentage := int(math.Round(100 * float64(bestScore) / float64(maxPossible)))
	if percentage > 100 {
		percentage = 100
	}
	if percentage < 0 {
		percentage = 0
	}

	return MatchResult{Member: best, Score: bestScore, Percentage: percentage}
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
