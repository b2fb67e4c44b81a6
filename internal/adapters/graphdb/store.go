// Package graphdb implements ports.GraphStore on Neo4j.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/partgraph/internal/core/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string // empty uses the server default
	// MaxConnections caps the driver pool; zero keeps the driver default.
	MaxConnections int
}

// Store runs Cypher read queries through the Neo4j driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewStore opens a driver and verifies the server is reachable.
func NewStore(ctx context.Context, logger *slog.Logger, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxConnections > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnections
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity at %s: %w", cfg.URI, err)
	}
	logger.Info("connected to graph store", "uri", cfg.URI, "database", cfg.Database)
	return &Store{driver: driver, database: cfg.Database, logger: logger}, nil
}

// Query implements ports.GraphStore.
func (s *Store) Query(ctx context.Context, query string, params map[string]any) ([]domain.GraphRecord, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if s.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("execute cypher: %w", err)
	}
	records := make([]domain.GraphRecord, 0, len(result.Records))
	for _, rec := range result.Records {
		records = append(records, convertRecord(rec.Keys, rec.Values))
	}
	return records, nil
}

// Close shuts the driver down.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// convertRecord maps one driver record onto ordered bindings.
func convertRecord(keys []string, values []any) domain.GraphRecord {
	rec := make(domain.GraphRecord, 0, len(keys))
	for i, key := range keys {
		var v any
		if i < len(values) {
			v = values[i]
		}
		rec = append(rec, domain.Binding{Var: key, Data: convertValue(key, v)})
	}
	return rec
}

// convertValue turns a returned value into attribute data. Nodes and
// relationships yield their properties; a scalar returned as "p.name" yields
// {"name": value}.
func convertValue(key string, v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return nil
	case dbtype.Node:
		return cleanProps(val.Props)
	case *dbtype.Node:
		return cleanProps(val.Props)
	case dbtype.Relationship:
		return cleanProps(val.Props)
	case *dbtype.Relationship:
		return cleanProps(val.Props)
	case map[string]any:
		return cleanProps(val)
	default:
		return map[string]any{propertyName(key): normalize(val)}
	}
}

func propertyName(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 && i < len(key)-1 {
		return key[i+1:]
	}
	return key
}

func cleanProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts driver temporal types to strings so matches stay JSON
// friendly.
func normalize(v any) any {
	switch val := v.(type) {
	case dbtype.Date:
		return time.Time(val).Format("2006-01-02")
	case dbtype.LocalDateTime:
		return time.Time(val).Format("2006-01-02T15:04:05.999999999")
	case dbtype.Duration:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return v
	}
}
