// Package graph talks to the Neo4j bug graph: full-text search with
// developer/topic traversal, detail lookups, and the CSV batch importer
// that builds the graph in the first place.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/logging"
)

// queryTimeout bounds every read query issued by this package.
const queryTimeout = 15 * time.Second

// Client wraps the Neo4j driver with error handling and query helpers.
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewClient creates a Neo4j client and fails fast if the database is
// unreachable. Credentials always come from configuration, never defaults.
func NewClient(ctx context.Context, uri, user, password, database string) (*Client, error) {
	if uri == "" || user == "" || password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", uri, user)
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(user, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 50
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.MaxConnectionLifetime = time.Hour
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	logger := logging.Component("neo4j")
	logger.Info("neo4j client connected", "uri", uri, "database", database)

	return &Client{driver: driver, logger: logger, database: database}, nil
}

// Close closes the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	c.logger.Info("neo4j client closed")
	return nil
}

// HealthCheck verifies connectivity. Used by the liveness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// Driver exposes the underlying driver for the importer.
func (c *Client) Driver() neo4j.DriverWithContext {
	return c.driver
}

// Database returns the configured database name.
func (c *Client) Database() string {
	return c.database
}

// read runs a parameterized read query with the package timeout and
// readers routing, wrapping failures as upstream-unavailable.
func (c *Client) read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := neo4j.ExecuteQuery(queryCtx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, apperrors.Upstream(err, "graph query failed")
	}
	return result, nil
}

// Record field helpers. The driver hands back untyped props; these keep
// the type assertions in one place.

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func int64Prop(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func nodeFromRecord(record *neo4j.Record, key string) (neo4j.Node, bool) {
	raw, ok := record.Get(key)
	if !ok || raw == nil {
		return neo4j.Node{}, false
	}
	node, ok := raw.(neo4j.Node)
	return node, ok
}
