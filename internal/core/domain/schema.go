package domain

import (
	"fmt"
	"strings"
)

// EntityType describes one node type in the parts graph.
type EntityType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RelationshipType describes one edge type in the parts graph.
type RelationshipType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GraphEntities is the entity vocabulary shown to the model.
var GraphEntities = []EntityType{
	{"part", "A specific part or component of a product, such as a 'Silverware Basket' or 'Detergent Dispenser'. Attributes include 'partSelectNumber', 'manufacturerPartNumber', 'price' and 'name'."},
	{"manufacturer", "The manufacturer of a part, for example 'GE' or 'Whirlpool'. Attributes include 'name'."},
	{"model", "The model of an appliance, such as 'FPHD2491KF0'. Attributes include 'modelNumber', 'brand' and 'modelType'."},
	{"section", "A section of a model, for example 'Door Assembly' or 'Motor'. Attributes include 'name' and 'url'."},
	{"manual", "A user or repair manual for a model. Attributes include 'name' and 'url'."},
	{"review", "A user review of a part. Attributes include 'reviewText', 'rating', 'reviewerName' and 'date'."},
	{"symptom", "A symptom or issue associated with a model. Attributes include 'name'."},
	{"repair_story", "A customer repair story for a part. Attributes include 'instruction', 'difficulty', 'time' and 'helpfulness'."},
	{"question", "A question about a part or model. Attributes include 'question', 'questionDate', 'helpfulness' and 'modelNumber'."},
	{"answer", "An answer to a question. Attributes include 'answer'."},
}

// GraphRelationships is the relationship vocabulary shown to the model.
var GraphRelationships = []RelationshipType{
	{"MANUFACTURED_BY", "A part is manufactured by a specific manufacturer."},
	{"COMPATIBLE_WITH", "A part is compatible with a specific model."},
	{"HAS_REVIEW", "A part has a related review."},
	{"HAS_SYMPTOM", "A model has a specific symptom or issue."},
	{"FIXED_BY", "A symptom is resolved by a specific part."},
	{"HAS_REPAIR_STORY", "A part has an associated customer repair story."},
	{"HAS_QUESTION", "A part or model has an associated question."},
	{"HAS_ANSWER", "A question has an associated answer."},
	{"HAS_SECTION", "A model has a section related to its structure."},
	{"HAS_MANUAL", "A model has an associated manual."},
}

// EntityRelationships lists the relationships each entity type takes part in.
var EntityRelationships = map[string][]string{
	"part":         {"MANUFACTURED_BY", "HAS_REVIEW", "COMPATIBLE_WITH", "HAS_REPAIR_STORY", "HAS_QUESTION"},
	"manufacturer": {"MANUFACTURED_BY"},
	"model":        {"COMPATIBLE_WITH", "HAS_SYMPTOM", "HAS_SECTION", "HAS_MANUAL"},
	"symptom":      {"FIXED_BY", "HAS_SYMPTOM"},
	"review":       {"HAS_REVIEW"},
	"repair_story": {"HAS_REPAIR_STORY"},
	"question":     {"HAS_ANSWER", "HAS_QUESTION"},
	"answer":       {"HAS_ANSWER"},
	"section":      {"HAS_SECTION"},
	"manual":       {"HAS_MANUAL"},
}

// FallbackLabel is used for entity types with no label mapping.
const FallbackLabel = "Part"

// EntityLabels maps extracted entity type names to graph node labels.
var EntityLabels = map[string]string{
	"part":         "Part",
	"model":        "Model",
	"symptom":      "Symptom",
	"brand":        "Brand",
	"review":       "Review",
	"manufacturer": "Manufacturer",
}

// LabelFor returns the node label for an entity type, falling back to Part.
func LabelFor(entityType string) string {
	if label, ok := EntityLabels[strings.ToLower(strings.TrimSpace(entityType))]; ok {
		return label
	}
	return FallbackLabel
}

// QueryAttributes is the projection allow-list for Cypher query results.
var QueryAttributes = []string{
	"partSelectNumber", "partName", "manufacturerPartNumber", "manufacturer",
	"price", "partPrice", "rating", "reviewCount", "description", "availability",
	"fixPercentage", "partNumber", "modelNumber", "brand", "modelType", "name",
	"reviewerName", "reviewText", "title", "date", "symptomName",
	"instruction", "difficulty", "time", "helpfulness", "customer",
	"question", "questionDate", "answer",
}

// SearchAttributes is the projection allow-list for semantic search results.
var SearchAttributes = []string{
	"id", "name", "description", "url", "price", "status", "difficulty",
	"repair_time", "works_with_products", "web_id", "model_num",
	"partselect_num", "manufacturer_part_num", "content", "tools",
	"question", "answer", "date",
}

// ValidateSchema checks the schema tables for internal consistency.
// A malformed schema is a configuration error.
func ValidateSchema() error {
	entities := make(map[string]bool, len(GraphEntities))
	for _, e := range GraphEntities {
		if e.Name == "" {
			return fmt.Errorf("%w: entity with empty name", ErrInvalidConfig)
		}
		entities[e.Name] = true
	}
	rels := make(map[string]bool, len(GraphRelationships))
	for _, r := range GraphRelationships {
		rels[r.Name] = true
	}
	for entity, names := range EntityRelationships {
		if !entities[entity] {
			return fmt.Errorf("%w: relationship map references unknown entity %q", ErrInvalidConfig, entity)
		}
		for _, n := range names {
			if !rels[n] {
				return fmt.Errorf("%w: entity %q references unknown relationship %q", ErrInvalidConfig, entity, n)
			}
		}
	}
	for entityType, label := range EntityLabels {
		if !isLabel(label) {
			return fmt.Errorf("%w: invalid label %q for %q", ErrInvalidConfig, label, entityType)
		}
	}
	return nil
}

// isLabel restricts labels to identifier characters since they are
// interpolated into Cypher text.
func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
