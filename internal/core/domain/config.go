package domain

import "time"

// Agent modes select the tool set and prompt template.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Parser policies.
const (
	ParserPermissive = "permissive"
	ParserStrict     = "strict"
)

// LLMConfig configures the completion and embedding provider
type LLMConfig struct {
	Mode           string        `yaml:"mode" json:"mode"`         // "local" or "remote"
	BaseURL        string        `yaml:"base_url" json:"base_url"` // empty uses the provider default
	APIKey         string        `yaml:"api_key" json:"api_key"`   // may be "enc:" encrypted
	Model          string        `yaml:"model" json:"model"`
	EmbeddingModel string        `yaml:"embedding_model" json:"embedding_model"`
	Temperature    float32       `yaml:"temperature" json:"temperature"`
	MaxConcurrent  int64         `yaml:"max_concurrent" json:"max_concurrent"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// GraphConfig configures the Neo4j connection
type GraphConfig struct {
	URI           string `yaml:"uri" json:"uri"`
	Username      string `yaml:"username" json:"username"`
	Password      string `yaml:"password" json:"password"` // may be "enc:" encrypted
	Database      string `yaml:"database" json:"database"`
	MaxConcurrent int64  `yaml:"max_concurrent" json:"max_concurrent"`
}

// AgentConfig configures the executor loop
type AgentConfig struct {
	Mode                string        `yaml:"mode" json:"mode"`
	Memory              bool          `yaml:"memory" json:"memory"`
	Parser              string        `yaml:"parser" json:"parser"`
	MaxIterations       int           `yaml:"max_iterations" json:"max_iterations"`
	ConfidenceThreshold int           `yaml:"confidence_threshold" json:"confidence_threshold"`
	TurnTimeout         time.Duration `yaml:"turn_timeout" json:"turn_timeout"`
}

// QueryConfig configures Cypher execution retries
type QueryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" json:"max_attempts"`
	MaxErrorAttempts int `yaml:"max_error_attempts" json:"max_error_attempts"`
	MaxEmptyAttempts int `yaml:"max_empty_attempts" json:"max_empty_attempts"`
	// Threshold is bound as $threshold for generated queries that reference it.
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// SearchConfig configures the semantic search pipeline
type SearchConfig struct {
	Threshold       float64 `yaml:"threshold" json:"threshold"`
	AllLimit        int     `yaml:"all_limit" json:"all_limit"`
	SimilarityLimit int     `yaml:"similarity_limit" json:"similarity_limit"`
	MaxAttempts     int     `yaml:"max_attempts" json:"max_attempts"`
}

// MemoryConfig configures session memory
type MemoryConfig struct {
	DBPath      string `yaml:"db_path" json:"db_path"` // empty keeps memory in-process only
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr           string   `yaml:"addr" json:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// AppConfig is the main application configuration
type AppConfig struct {
	LLM    LLMConfig    `yaml:"llm" json:"llm"`
	Graph  GraphConfig  `yaml:"graph" json:"graph"`
	Agent  AgentConfig  `yaml:"agent" json:"agent"`
	Query  QueryConfig  `yaml:"query" json:"query"`
	Search SearchConfig `yaml:"search" json:"search"`
	Memory MemoryConfig `yaml:"memory" json:"memory"`
	Server ServerConfig `yaml:"server" json:"server"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		LLM: LLMConfig{
			Mode:           "remote",
			Model:          "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0,
			MaxConcurrent:  8,
			Timeout:        120 * time.Second,
		},
		Graph: GraphConfig{
			URI:           "neo4j://localhost:7687",
			Username:      "neo4j",
			MaxConcurrent: 16,
		},
		Agent: AgentConfig{
			Mode:                ModeSequential,
			Memory:              true,
			Parser:              ParserPermissive,
			MaxIterations:       15,
			ConfidenceThreshold: 70,
			TurnTimeout:         3 * time.Minute,
		},
		Query: QueryConfig{
			MaxAttempts:      3,
			MaxErrorAttempts: 3,
			MaxEmptyAttempts: 3,
			Threshold:        0.8,
		},
		Search: SearchConfig{
			Threshold:       0.7,
			AllLimit:        5,
			SimilarityLimit: 10,
			MaxAttempts:     3,
		},
		Memory: MemoryConfig{
			DBPath:      "partgraph.db",
			MaxSessions: 64,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}
