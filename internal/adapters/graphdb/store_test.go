package graphdb

import (
	"testing"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
)

func TestConvertRecord(t *testing.T) {
	node := dbtype.Node{
		ElementId: "4:1",
		Labels:    []string{"Part"},
		Props:     map[string]any{"partName": "Filter Base", "price": 19.99},
	}
	rel := dbtype.Relationship{Type: "COMPATIBLE_WITH", Props: map[string]any{"since": int64(2020)}}

	rec := convertRecord(
		[]string{"p", "r", "m.modelNumber", "missing", "meta"},
		[]any{node, rel, "10640262010", nil, map[string]any{"name": "x"}},
	)

	assert.Equal(t, domain.GraphRecord{
		{Var: "p", Data: map[string]any{"partName": "Filter Base", "price": 19.99}},
		{Var: "r", Data: map[string]any{"since": int64(2020)}},
		{Var: "m.modelNumber", Data: map[string]any{"modelNumber": "10640262010"}},
		{Var: "missing", Data: nil},
		{Var: "meta", Data: map[string]any{"name": "x"}},
	}, rec)
}

func TestConvertRecord_ShortValues(t *testing.T) {
	rec := convertRecord([]string{"a", "b"}, []any{int64(1)})
	assert.Equal(t, domain.GraphRecord{
		{Var: "a", Data: map[string]any{"a": int64(1)}},
		{Var: "b", Data: nil},
	}, rec)
}

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "name", propertyName("p.name"))
	assert.Equal(t, "count", propertyName("count"))
	assert.Equal(t, "p.", propertyName("p."))
}

func TestNormalize(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", normalize(dbtype.Date(day)))
	assert.Equal(t, "2024-03-09T00:00:00Z", normalize(day))
	assert.Equal(t, 42, normalize(42))
}
