// Package classifier implements the task classifier: a deterministic
// keyword-scoring stage that always runs, and an optional AI override stage
// that consults a resolved provider chain.
package classifier

import (
	"regexp"
	"strings"

	"github.com/relaylane/router/internal/routing"
)

const (
	weightPattern = 0.4
	weightLength  = 0.2
	weightContext = 0.3
	weightHint    = 0.1

	// complexityBonusPerKeyword rewards the complex/critical tiers per
	// matched keyword so a short "delegate to team" isn't flattened by the
	// length signal into a trivial score.
	complexityBonusPerKeyword = 8.0
)

// lengthThresholds bound the five length bands, in whitespace-delimited
// tokens: trivial < 50, simple < 200, moderate < 500, complex < 1000,
// everything else is critical.
var lengthThresholds = []int{50, 200, 500, 1000}

var tierKeywords = map[routing.Tier][]string{
	routing.TierTrivial: {
		"hi", "hello", "hey", "thanks", "thank you", "ok", "okay", "yes", "no",
		"what time", "ping",
	},
	routing.TierSimple: {
		"what is", "define", "explain briefly", "list", "summarize", "translate",
		"convert", "format",
	},
	routing.TierModerate: {
		"write a function", "fix this bug", "debug", "refactor", "review this code",
		"optimize", "add a feature", "write tests",
	},
	routing.TierComplex: {
		"design a system", "architecture", "migrate", "multi-step", "integrate",
		"analyze the codebase", "end-to-end", "across multiple files",
	},
	routing.TierCritical: {
		"delegate to team", "production incident", "security audit", "data loss",
		"critical outage", "compliance review", "full system redesign",
	},
}

var (
	codeFenceRE    = regexp.MustCompile("```")
	urlRE          = regexp.MustCompile(`https?://\S+`)
	jsonLikeRE     = regexp.MustCompile(`[{\[]\s*"[^"]+"\s*:`)
	errorKeywordRE = regexp.MustCompile(`(?i)\b(error|exception|traceback|stack trace|panic|failed)\b`)
	multiStepRE    = regexp.MustCompile(`(?i)\b(first|then|next|finally|step \d+)\b`)
	commandVerbRE  = regexp.MustCompile(`(?i)\b(run|execute|deploy|install|configure|provision)\b`)
)

// Score runs the deterministic keyword stage over text and returns a
// Classification with source "local". forceTier, if valid, is honored as
// the 0.1-weighted explicit-hint signal only — the §4.3.3 override that
// makes forceTier win outright happens one layer up, in Classify.
func Score(text string, forceTier routing.Tier) routing.Classification {
	lower := strings.ToLower(text)
	tokens := strings.Fields(text)

	scores := make(map[routing.Tier]float64, len(routing.Tiers))
	for _, tier := range routing.Tiers {
		scores[tier] = weightPattern*patternScore(lower, tier) +
			weightLength*lengthScore(len(tokens), tier) +
			weightContext*contextScore(lower, tier) +
			weightHint*hintScore(tier, forceTier)
	}

	best, second := topTwo(scores)

	confidence := 1.0
	if best.score > 0 {
		confidence = min1((best.score-second.score)/best.score + 0.5)
	}

	return routing.Classification{
		Tier:       best.tier,
		Confidence: confidence,
		Scores:     scores,
		Source:     routing.SourceLocal,
	}
}

func patternScore(lowerText string, tier routing.Tier) float64 {
	keywords := tierKeywords[tier]
	if len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			matched++
		}
	}
	score := float64(matched) / float64(len(keywords))
	if (tier == routing.TierComplex || tier == routing.TierCritical) && matched > 0 {
		score += float64(matched) * complexityBonusPerKeyword
	}
	return score
}

// lengthScore is a bell curve over token count, centered on the tier's
// expected band, peaking at 1 inside the band and decaying to 0 the
// farther text strays from it.
func lengthScore(tokenCount int, tier routing.Tier) float64 {
	lo, hi := bandFor(tier)
	center := (lo + hi) / 2.0
	halfWidth := (hi - lo) / 2.0
	if halfWidth <= 0 {
		halfWidth = 1
	}
	distance := abs(float64(tokenCount) - center)
	score := 1.0 - distance/(halfWidth*2)
	if score < 0 {
		return 0
	}
	return score
}

func bandFor(tier routing.Tier) (lo, hi float64) {
	switch tier {
	case routing.TierTrivial:
		return 0, float64(lengthThresholds[0])
	case routing.TierSimple:
		return float64(lengthThresholds[0]), float64(lengthThresholds[1])
	case routing.TierModerate:
		return float64(lengthThresholds[1]), float64(lengthThresholds[2])
	case routing.TierComplex:
		return float64(lengthThresholds[2]), float64(lengthThresholds[3])
	default: // critical: open-ended band
		return float64(lengthThresholds[3]), float64(lengthThresholds[3]) * 2
	}
}

// contextScore nudges specific tiers based on structural signals in the
// text: code fences and JSON-like content suggest a technical, higher-tier
// task; bare questions suggest something quick; multi-step markers and
// command verbs suggest operational, moderate-to-complex work.
func contextScore(lowerText string, tier routing.Tier) float64 {
	var score float64

	if codeFenceRE.MatchString(lowerText) {
		if tier == routing.TierComplex || tier == routing.TierCritical {
			score += 0.3
		}
	}
	if urlRE.MatchString(lowerText) {
		if tier == routing.TierModerate {
			score += 0.15
		}
	}
	if jsonLikeRE.MatchString(lowerText) {
		if tier == routing.TierComplex {
			score += 0.25
		}
	}
	if errorKeywordRE.MatchString(lowerText) {
		if tier == routing.TierModerate || tier == routing.TierComplex {
			score += 0.2
		}
	}
	if multiStepRE.MatchString(lowerText) {
		if tier == routing.TierComplex || tier == routing.TierCritical {
			score += 0.25
		}
	}
	if strings.Contains(lowerText, "?") {
		if tier == routing.TierTrivial || tier == routing.TierSimple {
			score += 0.15
		}
	}
	if commandVerbRE.MatchString(lowerText) {
		if tier == routing.TierModerate {
			score += 0.2
		}
	}
	return score
}

func hintScore(tier, forceTier routing.Tier) float64 {
	if forceTier.Valid() && tier == forceTier {
		return 1
	}
	return 0
}

type scored struct {
	tier  routing.Tier
	score float64
}

func topTwo(scores map[routing.Tier]float64) (best, second scored) {
	best.score = -1
	second.score = -1
	for _, tier := range routing.Tiers {
		s := scores[tier]
		if s > best.score {
			second = best
			best = scored{tier: tier, score: s}
		} else if s > second.score {
			second = scored{tier: tier, score: s}
		}
	}
	return best, second
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
