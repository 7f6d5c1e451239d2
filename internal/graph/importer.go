package graph

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/errgroup"

	"github.com/easyfix/easyfix-go/internal/logging"
)

// Importer loads the bug graph from CSV exports. Every node and
// relationship is MERGE-keyed, so re-running an import with unchanged
// input creates nothing new.
type Importer struct {
	client *Client
	batch  BatchConfig
	logger *slog.Logger
}

// NewImporter creates an importer over an existing client.
func NewImporter(client *Client, batch BatchConfig) *Importer {
	return &Importer{
		client: client,
		batch:  batch,
		logger: logging.Component("importer"),
	}
}

// ImportStats reports what one import run touched.
type ImportStats struct {
	Bugs       int
	Topics     int
	Developers int
	Edges      int
}

// Run ensures the schema, loads the three node CSVs concurrently, then
// builds relationships. dir must contain bugs.csv, topics.csv, and
// developers.csv; similar.csv is optional.
func (im *Importer) Run(ctx context.Context, dir string) (*ImportStats, error) {
	if err := im.client.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	bugs, err := readCSV(filepath.Join(dir, "bugs.csv"))
	if err != nil {
		return nil, err
	}
	topics, err := readCSV(filepath.Join(dir, "topics.csv"))
	if err != nil {
		return nil, err
	}
	developers, err := readCSV(filepath.Join(dir, "developers.csv"))
	if err != nil {
		return nil, err
	}
	similar, err := readOptionalCSV(filepath.Join(dir, "similar.csv"))
	if err != nil {
		return nil, err
	}

	stats := &ImportStats{Bugs: len(bugs), Topics: len(topics), Developers: len(developers)}

	// Node labels are independent; load them in parallel. Relationships
	// need both endpoints present, so they wait for all nodes.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return im.mergeBatches(gctx, "bugs", bugRows(bugs), im.batch.NodeBatchSize, `
			UNWIND $rows AS row
			MERGE (b:Bug {id: row.id})
			SET b += row`)
	})
	g.Go(func() error {
		return im.mergeBatches(gctx, "topics", topicRows(topics), im.batch.NodeBatchSize, `
			UNWIND $rows AS row
			MERGE (t:Topic {topic_id: row.topic_id})
			SET t += row`)
	})
	g.Go(func() error {
		return im.mergeBatches(gctx, "developers", developerRows(developers), im.batch.NodeBatchSize, `
			UNWIND $rows AS row
			MERGE (d:Developer {assigned_to: row.assigned_to})
			SET d += row`)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inTopic := inTopicRows(bugs)
	if err := im.mergeBatches(ctx, "in_topic edges", inTopic, im.batch.EdgeBatchSize, `
		UNWIND $rows AS row
		MATCH (b:Bug {id: row.id})
		MATCH (t:Topic {topic_id: row.topic_id})
		MERGE (b)-[r:IN_TOPIC]->(t)
		SET r.topic_score = row.topic_score`); err != nil {
		return nil, err
	}

	assigned := assignedRows(bugs)
	if err := im.mergeBatches(ctx, "assigned_to edges", assigned, im.batch.EdgeBatchSize, `
		UNWIND $rows AS row
		MATCH (b:Bug {id: row.id})
		MATCH (d:Developer {assigned_to: row.assigned_to})
		MERGE (b)-[:ASSIGNED_TO]->(d)`); err != nil {
		return nil, err
	}

	similarEdges := similarRows(similar)
	if err := im.mergeBatches(ctx, "similar_to edges", similarEdges, im.batch.EdgeBatchSize, `
		UNWIND $rows AS row
		MATCH (a:Bug {id: row.bug_id})
		MATCH (b:Bug {id: row.similar_id})
		MERGE (a)-[:SIMILAR_TO]->(b)`); err != nil {
		return nil, err
	}

	stats.Edges = len(inTopic) + len(assigned) + len(similarEdges)
	im.logger.Info("import complete",
		"bugs", stats.Bugs, "topics", stats.Topics,
		"developers", stats.Developers, "edges", stats.Edges)
	return stats, nil
}

// mergeBatches runs one write transaction per batch of rows.
func (im *Importer) mergeBatches(ctx context.Context, what string, rows []map[string]any, batchSize int, query string) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchConfig().NodeBatchSize
	}

	session := im.client.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: im.client.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, query, map[string]any{"rows": batch})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("merge of %s failed (rows %d-%d): %w", what, start, end, err)
		}
		im.logger.Debug("batch merged", "what", what, "rows", len(batch))
	}
	return nil
}

// CSV plumbing

// readCSV reads a header-keyed CSV into row maps.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readOptionalCSV is readCSV for files the export may not include.
func readOptionalCSV(path string) ([]map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return readCSV(path)
}

// Row conversions. Numeric columns are typed before they hit the driver so
// the graph stores integers and floats, not strings.

func bugRows(rows []map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		id := row["id"]
		if id == "" {
			continue
		}
		out = append(out, map[string]any{
			"id":               id,
			"summary":          row["summary"],
			"clean_text":       row["clean_text"],
			"creator":          row["creator"],
			"assigned_to":      row["assigned_to"],
			"status":           row["status"],
			"resolution":       row["resolution"],
			"creation_time":    row["creation_time"],
			"last_change_time": row["last_change_time"],
			"dominant_topic":   toInt(row["dominant_topic"]),
			"topic_score":      toFloat(row["topic_score"]),
			"topic_id":         toInt(row["topic_id"]),
			"topic_label":      row["topic_label"],
		})
	}
	return out
}

func topicRows(rows []map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if row["topic_id"] == "" {
			continue
		}
		out = append(out, map[string]any{
			"topic_id":    toInt(row["topic_id"]),
			"terms":       row["terms"],
			"clean_terms": row["clean_terms"],
			"topic_label": row["topic_label"],
		})
	}
	return out
}

func developerRows(rows []map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		id := row["assigned_to"]
		if id == "" {
			continue
		}
		props := map[string]any{
			"assigned_to":    id,
			"dominant_topic": toInt(row["dominant_topic"]),
		}
		for i := 0; i < 8; i++ {
			key := fmt.Sprintf("t%d", i)
			if _, ok := row[key]; ok {
				props[key] = toFloat(row[key])
			}
		}
		out = append(out, props)
	}
	return out
}

func inTopicRows(bugs []map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(bugs))
	for _, row := range bugs {
		if row["id"] == "" || row["topic_id"] == "" {
			continue
		}
		out = append(out, map[string]any{
			"id":          row["id"],
			"topic_id":    toInt(row["topic_id"]),
			"topic_score": toFloat(row["topic_score"]),
		})
	}
	return out
}

func assignedRows(bugs []map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(bugs))
	for _, row := range bugs {
		if row["id"] == "" || row["assigned_to"] == "" {
			continue
		}
		out = append(out, map[string]any{
			"id":          row["id"],
			"assigned_to": row["assigned_to"],
		})
	}
	return out
}

func similarRows(rows []map[string]string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if row["bug_id"] == "" || row["similar_id"] == "" {
			continue
		}
		out = append(out, map[string]any{
			"bug_id":     row["bug_id"],
			"similar_id": row["similar_id"],
		})
	}
	return out
}

func toInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Exports sometimes carry "3.0" for integer columns.
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int64(f)
		}
		return 0
	}
	return n
}

func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
