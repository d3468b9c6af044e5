package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortInputSingleSegment(t *testing.T) {
	segments, err := Split("Hello world. How are you?", 400, 80)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, "Hello world. How are you?", segments[0].Text)
}

func TestSplitEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t  \n"} {
		segments, err := Split(input, 400, 80)
		require.NoError(t, err)
		assert.Empty(t, segments, "input %q", input)
	}
}

func TestSplitOverlapMustBeSmallerThanMax(t *testing.T) {
	for _, maxTokens := range []int{1, 10, 400} {
		_, err := Split("Some text.", maxTokens, maxTokens)
		assert.ErrorIs(t, err, ErrOverlapTooLarge)
		_, err = Split("Some text.", maxTokens, maxTokens+5)
		assert.ErrorIs(t, err, ErrOverlapTooLarge)
	}
}

func TestSplitIndicesSequential(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "Sentence number %d has a handful of ordinary words in it. ", i)
	}
	segments, err := Split(b.String(), 40, 10)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
		assert.NotEmpty(t, seg.Text)
	}
}

func TestSplitTokenEstimateBounded(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "word%d ", i)
	}
	// One giant sentence forces the word-level hard split, which may
	// overshoot by a single word.
	segments, err := Split(b.String()+".", 30, 8)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	for _, seg := range segments {
		assert.LessOrEqual(t, float64(seg.TokenEstimate), 30*1.5, "segment %d", seg.Index)
	}
}

func TestSplitOverlapSharesWords(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "Shared topic sentence %d mentions the same recurring subject. ", i)
	}
	segments, err := Split(b.String(), 50, 20)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)

	for i := 1; i < len(segments); i++ {
		prev := wordSet(segments[i-1].Text)
		common := false
		for _, w := range strings.Fields(segments[i].Text) {
			if prev[w] {
				common = true
				break
			}
		}
		assert.True(t, common, "segments %d and %d share no words", i-1, i)
	}
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	segments, err := Split("First   sentence\nwith\t\tgaps. Second one.", 400, 80)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "First sentence with gaps. Second one.", segments[0].Text)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("word"))
	// 3 words * 1.33 = 3.99 rounds to 4
	assert.Equal(t, 4, EstimateTokens("one two three"))
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
