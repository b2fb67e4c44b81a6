package services

import (
	"testing"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestProjector_AllowListOnly(t *testing.T) {
	records := []domain.GraphRecord{
		{
			{Var: "p", Data: map[string]any{"partName": "Door Shelf", "price": 42.5, "embedding": []float64{0.1}}},
			{Var: "m", Data: map[string]any{"modelNumber": "10640262010", "secret": "x"}},
		},
		{
			{Var: "p", Data: nil},
			{Var: "r", Data: map[string]any{}},
		},
		{
			{Var: "x", Data: map[string]any{"unknownOnly": true}},
		},
	}

	got := NewProjector(domain.QueryAttributes).Project(records)
	assert.Equal(t, []domain.Match{
		{"partName": "Door Shelf", "price": 42.5},
		{"modelNumber": "10640262010"},
	}, got)
}

func TestProjector_WithTypeKeepsTaggedMatches(t *testing.T) {
	records := []domain.GraphRecord{
		{{Var: "e", Data: map[string]any{"name": "Leaking"}}},
		{{Var: "e", Data: map[string]any{"embedding": []float64{1}}}},
	}

	got := NewProjector(domain.SearchAttributes).WithType("Symptom").Project(records)
	assert.Equal(t, []domain.Match{
		{"name": "Leaking", "type": "Symptom"},
		{"type": "Symptom"},
	}, got)
}

func TestProjector_NoRecords(t *testing.T) {
	assert.Empty(t, NewProjector(domain.QueryAttributes).Project(nil))
}
