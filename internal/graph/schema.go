package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// schemaStatements declare the graph's uniqueness constraints and the
// full-text index the search path depends on. All are IF NOT EXISTS, so
// applying them is idempotent. Uniqueness lives here, in the database,
// not in application logic.
var schemaStatements = []string{
	`CREATE CONSTRAINT bug_id_unique IF NOT EXISTS
	 FOR (b:Bug) REQUIRE b.id IS UNIQUE`,
	`CREATE CONSTRAINT topic_id_unique IF NOT EXISTS
	 FOR (t:Topic) REQUIRE t.topic_id IS UNIQUE`,
	`CREATE CONSTRAINT developer_id_unique IF NOT EXISTS
	 FOR (d:Developer) REQUIRE d.assigned_to IS UNIQUE`,
	`CREATE FULLTEXT INDEX ` + FullTextIndex + ` IF NOT EXISTS
	 FOR (n:Bug|Topic) ON EACH [n.summary, n.clean_text, n.topic_label]`,
}

// EnsureSchema applies constraints and the full-text index.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		_, err := neo4j.ExecuteQuery(ctx, c.driver, stmt, nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(c.database))
		if err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	c.logger.Info("graph schema ensured",
		"constraints", 3, "fulltext_index", FullTextIndex)
	return nil
}
