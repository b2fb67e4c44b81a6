package domain

// AgentStep is one thought/action/observation entry in a turn's scratchpad.
type AgentStep struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
	Observation string `json:"observation"`
	Log         string `json:"log"` // raw model text that produced the action
}

// DecisionKind discriminates the Decision variants.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionFinish   DecisionKind = "finish"
)

// Decision is the parsed outcome of one model step. Only ContinueWithTool
// and Finish implement it.
type Decision interface {
	Kind() DecisionKind
	Log() string
	isDecision()
}

// ContinueWithTool asks the executor to dispatch a tool and loop again.
type ContinueWithTool struct {
	Tool       string
	Input      string
	RawLog     string
	Confidence *int
}

func (ContinueWithTool) Kind() DecisionKind { return DecisionContinue }
func (d ContinueWithTool) Log() string      { return d.RawLog }
func (ContinueWithTool) isDecision()        {}

// Finish ends the turn with Output as the answer.
type Finish struct {
	Output     string
	RawLog     string
	Confidence *int
}

func (Finish) Kind() DecisionKind { return DecisionFinish }
func (d Finish) Log() string      { return d.RawLog }
func (Finish) isDecision()        {}
