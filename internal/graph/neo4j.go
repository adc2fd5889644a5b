package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

// neighborsCypher follows any relationship between File nodes in either
// direction. The weight property defaults to 0.
const neighborsCypher = `MATCH (a:File)-[r]-(b:File)
WHERE a.id IN $ids AND a.id <> b.id
RETURN a.id AS source, b.id AS target, coalesce(r.weight, 0.0) AS weight, type(r) AS kind
ORDER BY weight DESC, source, target
LIMIT $limit`

// unlimitedEdges stands in for limit 0 in the LIMIT clause.
const unlimitedEdges = 1 << 20

// Neo4jConfig configures a Neo4jSource.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
	// QueryTimeout bounds each neighbor query.
	QueryTimeout time.Duration
}

// Neo4jSource reads edges from a Neo4j database. Queries go through a
// circuit breaker so a down database fails fast instead of stalling search.
type Neo4jSource struct {
	driver  neo4j.DriverWithContext
	cfg     Neo4jConfig
	breaker *serrors.CircuitBreaker
	logger  *slog.Logger
}

// Neo4jOption configures a Neo4jSource.
type Neo4jOption func(*Neo4jSource)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Neo4jOption {
	return func(s *Neo4jSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *serrors.CircuitBreaker) Neo4jOption {
	return func(s *Neo4jSource) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// NewNeo4jSource connects to Neo4j, retrying connectivity checks with
// backoff.
func NewNeo4jSource(ctx context.Context, cfg Neo4jConfig, opts ...Neo4jOption) (*Neo4jSource, error) {
	if cfg.URI == "" {
		return nil, serrors.ConfigError("neo4j uri is required", nil)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 2 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeGraphFailed, "neo4j driver", err)
	}

	s := &Neo4jSource{
		driver:  driver,
		cfg:     cfg,
		breaker: serrors.NewCircuitBreaker("neo4j", serrors.WithMaxFailures(3), serrors.WithResetTimeout(30*time.Second)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	retry := serrors.DefaultRetryConfig()
	retry.ShouldRetry = func(error) bool { return true }
	if err := serrors.Retry(ctx, retry, func() error {
		return driver.VerifyConnectivity(ctx)
	}); err != nil {
		_ = driver.Close(ctx)
		return nil, serrors.New(serrors.ErrCodeGraphFailed, "neo4j connectivity", err)
	}

	s.logger.Info("neo4j graph source connected", slog.String("uri", cfg.URI))
	return s, nil
}

// Neighbors implements Source.
func (s *Neo4jSource) Neighbors(ctx context.Context, ids []string, limit int) ([]Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = unlimitedEdges
	}

	edges, err := serrors.CircuitExecute(s.breaker, func() ([]Edge, error) {
		qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
		return s.query(qctx, ids, limit)
	})
	if err != nil {
		s.logger.Warn("neo4j neighbor query failed",
			slog.Int("seeds", len(ids)),
			slog.String("breaker", s.breaker.State().String()),
			slog.String("error", err.Error()))
		return nil, serrors.New(serrors.ErrCodeGraphFailed, "neighbor query failed", err)
	}
	return edges, nil
}

func (s *Neo4jSource) query(ctx context.Context, ids []string, limit int) ([]Edge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.cfg.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, neighborsCypher, map[string]any{"ids": ids, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		var edges []Edge
		for records.Next(ctx) {
			edge, err := edgeFromValues(records.Record().AsMap())
			if err != nil {
				return nil, err
			}
			edges = append(edges, edge)
		}
		return edges, records.Err()
	})
	if err != nil {
		return nil, err
	}
	edges, _ := result.([]Edge)
	return edges, nil
}

// edgeFromValues converts one result row.
func edgeFromValues(v map[string]any) (Edge, error) {
	source, ok := v["source"].(string)
	if !ok {
		return Edge{}, fmt.Errorf("neo4j row: source is %T, want string", v["source"])
	}
	target, ok := v["target"].(string)
	if !ok {
		return Edge{}, fmt.Errorf("neo4j row: target is %T, want string", v["target"])
	}
	kind, _ := v["kind"].(string)

	var weight float64
	switch w := v["weight"].(type) {
	case float64:
		weight = w
	case int64:
		weight = float64(w)
	case nil:
	default:
		return Edge{}, fmt.Errorf("neo4j row: weight is %T, want number", w)
	}

	return Edge{Source: source, Target: target, Weight: weight, Kind: kind}, nil
}

// Close closes the driver.
func (s *Neo4jSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

var _ Source = (*Neo4jSource)(nil)
