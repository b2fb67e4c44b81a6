package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/manthysbr/partgraph/internal/core/domain"
)

const (
	// RefineTool and RefineInput form the forced retry issued on low confidence.
	RefineTool  = "Query"
	RefineInput = "Refine query to improve confidence."

	// UnparsedAnswer is returned when model output cannot be interpreted.
	UnparsedAnswer = "Unable to process the query correctly."

	defaultConfidenceThreshold = 70
)

var (
	confidenceRe  = regexp.MustCompile(`Confidence:\s*(\d+)`)
	actionRe      = regexp.MustCompile(`(?s)Action: (.*?)\n*Action Input:\s*(.*)`)
	finalAnswerRe = regexp.MustCompile(`(?s)Final Answer:\s*(.*)`)
)

// OutputParser turns raw model text into a Decision. Parse is total.
type OutputParser interface {
	Parse(text string) domain.Decision
	Name() string
}

// parseRule inspects the text and reports whether it produced a decision.
type parseRule func(text string, confidence *int) (domain.Decision, bool)

// RuleParser applies rules in priority order and falls back to a
// "could not process" Finish when none matches.
type RuleParser struct {
	name  string
	rules []parseRule
}

// NewPermissiveParser treats any non-empty text as the final answer unless a
// low confidence marker forces a refinement query.
func NewPermissiveParser(threshold int) *RuleParser {
	return &RuleParser{
		name: domain.ParserPermissive,
		rules: []parseRule{
			lowConfidenceRule(threshold),
			nonEmptyRule,
			actionRule,
		},
	}
}

// NewStrictParser requires an explicit Final Answer marker or Action pair.
func NewStrictParser(threshold int) *RuleParser {
	return &RuleParser{
		name: domain.ParserStrict,
		rules: []parseRule{
			lowConfidenceRule(threshold),
			finalAnswerRule,
			actionRule,
		},
	}
}

// NewOutputParser picks a policy by name. Unknown names are config errors.
func NewOutputParser(policy string, threshold int) (OutputParser, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", domain.ParserPermissive:
		return NewPermissiveParser(threshold), nil
	case domain.ParserStrict:
		return NewStrictParser(threshold), nil
	default:
		return nil, fmt.Errorf("%w: unknown parser policy %q", domain.ErrInvalidConfig, policy)
	}
}

// Name returns the policy name.
func (p *RuleParser) Name() string { return p.name }

// Parse implements OutputParser.
func (p *RuleParser) Parse(text string) domain.Decision {
	confidence := extractConfidence(text)
	for _, rule := range p.rules {
		if d, ok := rule(text, confidence); ok {
			return d
		}
	}
	return domain.Finish{Output: UnparsedAnswer, RawLog: text, Confidence: confidence}
}

func extractConfidence(text string) *int {
	m := confidenceRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

func lowConfidenceRule(threshold int) parseRule {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	return func(text string, confidence *int) (domain.Decision, bool) {
		if confidence == nil || *confidence > threshold {
			return nil, false
		}
		return domain.ContinueWithTool{
			Tool:       RefineTool,
			Input:      RefineInput,
			RawLog:     text,
			Confidence: confidence,
		}, true
	}
}

func nonEmptyRule(text string, confidence *int) (domain.Decision, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	return domain.Finish{Output: text, RawLog: text, Confidence: confidence}, true
}

func finalAnswerRule(text string, confidence *int) (domain.Decision, bool) {
	m := finalAnswerRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil, false
	}
	return domain.Finish{Output: strings.TrimSpace(m[1]), RawLog: text, Confidence: confidence}, true
}

func actionRule(text string, confidence *int) (domain.Decision, bool) {
	m := actionRe.FindStringSubmatch(text)
	if len(m) < 3 {
		return nil, false
	}
	tool := strings.TrimSpace(m[1])
	if tool == "" {
		return nil, false
	}
	return domain.ContinueWithTool{
		Tool:       tool,
		Input:      strings.Trim(m[2], " \t\r\n\""),
		RawLog:     text,
		Confidence: confidence,
	}, true
}
