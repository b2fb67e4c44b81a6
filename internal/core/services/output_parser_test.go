package services

import (
	"testing"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissiveParser(t *testing.T) {
	p := NewPermissiveParser(70)

	tests := []struct {
		name string
		text string
		want domain.Decision
	}{
		{
			name: "low confidence forces refinement",
			text: "Thought: not sure\nConfidence: 40\nFinal Answer: maybe",
			want: domain.ContinueWithTool{Tool: RefineTool, Input: RefineInput, RawLog: "Thought: not sure\nConfidence: 40\nFinal Answer: maybe", Confidence: intPtr(40)},
		},
		{
			name: "confidence at threshold is low",
			text: "Confidence: 70",
			want: domain.ContinueWithTool{Tool: RefineTool, Input: RefineInput, RawLog: "Confidence: 70", Confidence: intPtr(70)},
		},
		{
			name: "zero confidence is low",
			text: "Confidence: 0\nI guess",
			want: domain.ContinueWithTool{Tool: RefineTool, Input: RefineInput, RawLog: "Confidence: 0\nI guess", Confidence: intPtr(0)},
		},
		{
			name: "any text is an answer",
			text: "The part is PS11752778.\nConfidence: 90",
			want: domain.Finish{Output: "The part is PS11752778.\nConfidence: 90", RawLog: "The part is PS11752778.\nConfidence: 90", Confidence: intPtr(90)},
		},
		{
			name: "action text without marker is still an answer",
			text: "Action: Query\nAction Input: parts for model X",
			want: domain.Finish{Output: "Action: Query\nAction Input: parts for model X", RawLog: "Action: Query\nAction Input: parts for model X"},
		},
		{
			name: "blank text falls back",
			text: "  \n ",
			want: domain.Finish{Output: UnparsedAnswer, RawLog: "  \n "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.text))
		})
	}
}

func TestStrictParser(t *testing.T) {
	p := NewStrictParser(70)

	t.Run("final answer marker", func(t *testing.T) {
		d := p.Parse("Thought: done\nConfidence: 95\nFinal Answer:  Filter Base ")
		fin, ok := d.(domain.Finish)
		require.True(t, ok)
		assert.Equal(t, "Filter Base", fin.Output)
		require.NotNil(t, fin.Confidence)
		assert.Equal(t, 95, *fin.Confidence)
	})

	t.Run("action pair spanning newlines", func(t *testing.T) {
		text := "Thought: look it up\nAction: Similarity Search\n\nAction Input: \"ice maker parts\"\n"
		d := p.Parse(text)
		cont, ok := d.(domain.ContinueWithTool)
		require.True(t, ok)
		assert.Equal(t, "Similarity Search", cont.Tool)
		assert.Equal(t, "ice maker parts", cont.Input)
		assert.Equal(t, text, cont.Log())
		assert.Equal(t, domain.DecisionContinue, cont.Kind())
	})

	t.Run("low confidence wins over final answer", func(t *testing.T) {
		d := p.Parse("Confidence: 10\nFinal Answer: x")
		cont, ok := d.(domain.ContinueWithTool)
		require.True(t, ok)
		assert.Equal(t, RefineTool, cont.Tool)
	})

	t.Run("unstructured text falls back", func(t *testing.T) {
		d := p.Parse("I think the answer is 42")
		assert.Equal(t, domain.Finish{Output: UnparsedAnswer, RawLog: "I think the answer is 42"}, d)
	})
}

func TestNewOutputParser(t *testing.T) {
	p, err := NewOutputParser("", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ParserPermissive, p.(*RuleParser).Name())

	p, err = NewOutputParser("Strict", 80)
	require.NoError(t, err)
	assert.Equal(t, domain.ParserStrict, p.(*RuleParser).Name())

	_, err = NewOutputParser("lenient", 70)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestParserDefaultThreshold(t *testing.T) {
	// A non-positive threshold falls back to 70
	p := NewPermissiveParser(0)
	assert.Equal(t, domain.DecisionContinue, p.Parse("Confidence: 65").Kind())
	assert.Equal(t, domain.DecisionFinish, p.Parse("Confidence: 71").Kind())
}
