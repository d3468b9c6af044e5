package chunker

import (
	"errors"
	"math"
	"regexp"
	"strings"
)

// ErrOverlapTooLarge is returned when the requested overlap budget is not
// strictly smaller than the chunk budget.
var ErrOverlapTooLarge = errors.New("overlap tokens must be smaller than max tokens")

// Segment is one token-bounded passage produced by Split. Indices are
// sequential starting at 0, in generation order.
type Segment struct {
	Index         int
	Text          string
	TokenEstimate int
}

var sentenceSplitRe = regexp.MustCompile(`([.!?])\s+`)

// EstimateTokens approximates the GPT token count of text from its word
// count. The proxy is applied uniformly so chunk sizing stays stable no
// matter which embedding or inference model is configured.
func EstimateTokens(text string) int {
	n := len(strings.Fields(text))
	est := int(math.Round(float64(n) * 1.33))
	if est < 1 {
		return 1
	}
	return est
}

// splitSentences collapses whitespace runs to single spaces and splits the
// result into sentences on [.!?] followed by whitespace.
func splitSentences(text string) []string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return nil
	}
	// Keep the terminating punctuation with its sentence.
	marked := sentenceSplitRe.ReplaceAllString(cleaned, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// Split breaks text into overlapping, sentence-aware segments bounded by an
// estimated token budget. Sentences are accumulated greedily; when the next
// sentence would overflow maxTokens, the current segment is closed and the
// next one is seeded with as many trailing sentences as fit in
// overlapTokens. A single sentence that exceeds maxTokens on its own is
// hard-split word by word with the same accumulate/overflow/overlap rules.
//
// Empty or whitespace-only input yields no segments.
func Split(text string, maxTokens, overlapTokens int) ([]Segment, error) {
	if overlapTokens >= maxTokens {
		return nil, ErrOverlapTooLarge
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var (
		segments []Segment
		current  []string
		tokens   int
		idx      int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, Segment{
			Index:         idx,
			Text:          strings.Join(current, " "),
			TokenEstimate: tokens,
		})
		idx++
	}

	for _, sentence := range sentences {
		sentTokens := EstimateTokens(sentence)

		if sentTokens > maxTokens {
			// Flush whatever is pending, then hard-split the oversized
			// sentence at word granularity.
			flush()
			current, tokens = nil, 0

			words := strings.Fields(sentence)
			var buf []string
			bufTokens := 0
			for _, word := range words {
				wt := EstimateTokens(word)
				if bufTokens+wt > maxTokens && len(buf) > 0 {
					segments = append(segments, Segment{
						Index:         idx,
						Text:          strings.Join(buf, " "),
						TokenEstimate: bufTokens,
					})
					idx++
					buf = tailWithinBudget(buf, overlapTokens)
					bufTokens = 0
					if len(buf) > 0 {
						bufTokens = EstimateTokens(strings.Join(buf, " "))
					}
				}
				buf = append(buf, word)
				bufTokens += wt
			}
			if len(buf) > 0 {
				current = []string{strings.Join(buf, " ")}
				tokens = bufTokens
			}
			continue
		}

		if tokens+sentTokens > maxTokens && len(current) > 0 {
			flush()

			current = tailWithinBudget(current, overlapTokens)
			tokens = 0
			if len(current) > 0 {
				tokens = EstimateTokens(strings.Join(current, " "))
			}
		}

		current = append(current, sentence)
		tokens += sentTokens
	}

	flush()
	return segments, nil
}

// tailWithinBudget returns the longest suffix of parts whose summed token
// estimates stay within budget. Used to seed the next segment with overlap
// context from the previous one.
func tailWithinBudget(parts []string, budget int) []string {
	if len(parts) == 0 || budget <= 0 {
		return nil
	}
	used := 0
	start := len(parts)
	for i := len(parts) - 1; i >= 0; i-- {
		t := EstimateTokens(parts[i])
		if used+t > budget {
			break
		}
		used += t
		start = i
	}
	if start == len(parts) {
		return nil
	}
	return append([]string(nil), parts[start:]...)
}
