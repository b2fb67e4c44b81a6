package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manthysbr/partgraph/internal/core/domain"
)

const confidenceInstruction = `Confidence: give a confidence score (0-100) and a confidence interval (for example ±3%). This is mandatory for every response.`

const reactFormat = `Use the following format:

Question: the input prompt from the user
Thought: consider what the user is asking and whether you can answer from what you already know. Only use a tool when it is needed.
Action: the action to take, one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (Thought/Action/Action Input/Observation can repeat N times)
Thought: I now have the best answer.
Confidence: a confidence score (0-100) and interval
Final Answer: the final answer to the original question, with the confidence score and interval.`

const parallelFormat = `Use the following format:

Question: the input prompt from the user
Thought: think about what to do
Action: the action to take, one of [{tool_names}] (Query and Similarity Search run together)
Action Input: the user question, rewritten for lookup if needed
Observation: the combined results of Query and Similarity Search
Thought: review the combined results
Confidence: a confidence score (0-100) and interval
Final Answer: the final answer to the original question, with the confidence score and interval.`

const answerRules = `Rules:
1. Do not use entities, properties or relationships that do not exist in the graph. 'installationInstructions' does not exist but 'instruction' does.
2. Use the exact names and numbers returned by the tools. Never invent data.
3. A part's 'description' sometimes contains its installation instructions.
4. If the tools return nothing useful, answer "I do not know" or "I do not have this answer."

Graph entity types:
{graph_entity_types}

Example:
input: name of parts compatible with the model 5304506533
graph query: MATCH (n:Part) WHERE n.manufacturerPartNumber='5304506533' RETURN n
Observation: Filter Base, part number 5304506533. Confidence score: 90. Confidence interval: ±2%.`

const historyBlock = `Conversation history so far:
{chat_history}

Check the conversation history first. If it already answers the question, answer from it without tools.`

const userBlock = `User prompt:
{input}

{agent_scratchpad}`

// Agent prompt texts, one per mode and memory combination.
var (
	SequentialPromptText = joinPrompt(
		"Answer the user's question as accurately as possible. "+confidenceInstruction+"\nYou have access to these tools:\n\n{tools}",
		reactFormat, answerRules, userBlock)

	MemorySequentialPromptText = joinPrompt(
		"Answer the user's question as accurately as possible. "+confidenceInstruction+"\nYou have access to these tools and the conversation history:\n\n{tools}",
		historyBlock, reactFormat, answerRules, userBlock)

	ParallelPromptText = joinPrompt(
		"Answer the user's question as accurately as possible. "+confidenceInstruction+"\nYou have access to these tools:\n\n{tools}",
		parallelFormat, answerRules, userBlock)

	MemoryParallelPromptText = joinPrompt(
		"Answer the user's question as accurately as possible. "+confidenceInstruction+"\nYou have access to these tools and the conversation history:\n\n{tools}",
		historyBlock, parallelFormat, answerRules, userBlock)
)

func joinPrompt(parts ...string) string {
	return strings.Join(parts, "\n\n")
}

// SelectTemplate returns the agent template for a mode and memory setting.
func SelectTemplate(mode string, memory bool) (*PromptTemplate, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", domain.ModeSequential:
		if memory {
			return NewPromptTemplate("memory-sequential", MemorySequentialPromptText, true)
		}
		return NewPromptTemplate("sequential", SequentialPromptText, false)
	case domain.ModeParallel:
		if memory {
			return NewPromptTemplate("memory-parallel", MemoryParallelPromptText, true)
		}
		return NewPromptTemplate("parallel", ParallelPromptText, false)
	default:
		return nil, fmt.Errorf("%w: unknown agent mode %q", domain.ErrInvalidConfig, mode)
	}
}

// CypherGenerationPrompt is the system instruction for stage one of query
// synthesis.
const CypherGenerationPrompt = `You generate precise Cypher queries for a Neo4j graph of appliance parts.

Entities:
- Part (partSelectNumber, partName, manufacturerPartNumber, price, rating, reviewCount, description, availability, name, status, url)
- Manufacturer (name)
- Model (modelNumber, name, brand, modelType, description)
- Review (reviewerName, date, rating, title, reviewText)
- Symptom (symptomName, fixPercentage, partName, partNumber, partPrice, availability)
- RepairStory (title, customer, instruction, difficulty, time, helpfulness)
- Question (question, questionDate, helpfulness, modelNumber)
- Answer (answer)
- Manual (name, url)
- Section (name, url)

Relationships:
- (Part)-[:MANUFACTURED_BY]->(Manufacturer)
- (Part)-[:COMPATIBLE_WITH]->(Model)
- (Part)-[:HAS_REVIEW]->(Review)
- (Part)-[:HAS_REPAIR_STORY]->(RepairStory)
- (Part)-[:HAS_QUESTION]->(Question)
- (Question)-[:HAS_ANSWER]->(Answer)
- (Model)-[:HAS_SYMPTOM]->(Symptom)
- (Model)-[:HAS_SECTION]->(Section)
- (Model)-[:HAS_MANUAL]->(Manual)
- (Symptom)-[:FIXED_BY]->(Part)

Rules:
1. Filter on the attributes the user mentions with WHERE clauses or property maps.
   "Find the part with manufacturerPartNumber 5304506533" -> MATCH (p:Part {manufacturerPartNumber: '5304506533'}) RETURN p
2. Follow relationships the user mentions.
   "Find parts compatible with model M12345" -> MATCH (m:Model {modelNumber: 'M12345'})<-[:COMPATIBLE_WITH]-(p:Part) RETURN p
3. Use manufacturerPartNumber for manufacturer part numbers, partSelectNumber for select numbers and modelNumber for models.
4. When the user asks for one field, return only that field.
   "Find the name of parts with manufacturerPartNumber 5304506533" -> MATCH (p:Part {manufacturerPartNumber: '5304506533'}) RETURN p.name
5. For compatibility checks return both ends and the relationship.
   "Is PS11752778 compatible with my 10640262010 model?" -> MATCH (p:Part {partSelectNumber: 'PS11752778'})-[r:COMPATIBLE_WITH]->(m:Model) WHERE m.modelNumber = '10640262010' RETURN p, r, m
6. For reviews of a part:
   "Can I find a review for part PS11752778?" -> MATCH (p:Part {partSelectNumber: 'PS11752778'})-[:HAS_REVIEW]->(r:Review) RETURN p.partName, r.reviewerName, r.rating, r.reviewText

Respond with the Cypher query only, without any other text.`

// CypherCorrectionPrompt is the system instruction for stage two of query
// synthesis.
const CypherCorrectionPrompt = `You are a Neo4j Cypher expert. Validate and optimize the Cypher query you are given:
1. Correct any syntax errors.
2. Fix logical issues such as wrong relationship directions or missing filters.
3. Improve performance where possible.
4. If no changes are needed, return the original query.

Respond with only the corrected query, ready to execute, without any other text.`

// SemanticSearchPrompt returns the system instruction for entity
// extraction. It embeds the schema vocabulary.
func SemanticSearchPrompt() (string, error) {
	entities := make(map[string]string, len(domain.GraphEntities))
	for _, e := range domain.GraphEntities {
		entities[e.Name] = e.Description
	}
	rels := make(map[string]string, len(domain.GraphRelationships))
	for _, r := range domain.GraphRelationships {
		rels[r.Name] = r.Description
	}
	entityJSON, err := json.MarshalIndent(entities, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal entities: %w", err)
	}
	relJSON, err := json.MarshalIndent(rels, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal relationships: %w", err)
	}
	return fmt.Sprintf(`You fetch information from a graph database of appliance parts.

The graph links models, parts, symptoms, brands, reviews and Q&A to these entity types:
%s

Each link has one of these relationships:
%s

Decide whether the user prompt can be answered from the graph.

Example input: "Which parts are compatible with the FPHD2491KF0 model?"
There are two things to look up:
1. The FPHD2491KF0 model, searched by name or model number.
2. The parts associated with that model.

Return a JSON object. For each thing to look up add a key that exactly matches one of the entity types above, with the value relevant to the user query. Use the value "all" to fetch every entity of that type.

For the example the expected output is:
{"model": "FPHD2491KF0", "part": "all"}

Do not include comments in the JSON object. If there are no relevant entities, return an empty JSON object.`, entityJSON, relJSON), nil
}
