package domain

import "strings"

// Binding is one returned variable of a graph record. A nil Data means the
// variable was bound to null.
type Binding struct {
	Var  string         `json:"var"`
	Data map[string]any `json:"data"`
}

// GraphRecord is one result row, its bindings in RETURN order.
type GraphRecord []Binding

// Get returns the data bound to a variable.
func (r GraphRecord) Get(name string) (map[string]any, bool) {
	for _, b := range r {
		if b.Var == name {
			return b.Data, true
		}
	}
	return nil, false
}

// Match is a flattened, allow-listed projection of one graph sub-record.
type Match map[string]any

// NoResultsMessage is the text of the sentinel record returned when query
// retries are exhausted.
const NoResultsMessage = "We were unable to retrieve results for your query. Please refine your request."

// NoResultsMatch returns the sentinel error record.
func NoResultsMatch() Match {
	return Match{"error": NoResultsMessage}
}

// QueryArtifact captures one run of the query synthesis pipeline.
type QueryArtifact struct {
	NaturalLanguageInput string        `json:"natural_language_input"`
	CandidateQuery       string        `json:"candidate_query"`
	CorrectedQuery       string        `json:"corrected_query"`
	Attempt              int           `json:"attempt"`
	Result               []GraphRecord `json:"result,omitempty"`
	Err                  string        `json:"error,omitempty"`
}

// Exhausted reports whether the pipeline gave up without results.
func (a QueryArtifact) Exhausted() bool {
	return len(a.Result) == 0
}

// EntityQuery is one (entity type, value) pair extracted from the user text.
type EntityQuery struct {
	Type  string
	Value string
}

// IsAll reports whether the value requests an unconditional fetch.
func (e EntityQuery) IsAll() bool {
	return strings.EqualFold(strings.TrimSpace(e.Value), "all")
}

// EntityMap is the ordered list of entity queries, in the order the model
// emitted them.
type EntityMap []EntityQuery
