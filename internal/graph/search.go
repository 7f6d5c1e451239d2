package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/models"
)

const (
	// FullTextIndex spans Bug(summary, clean_text) and Topic(topic_label);
	// created by the importer.
	FullTextIndex = "bug_search"

	// DefaultSearchLimit caps result pages when the caller asks for nothing.
	DefaultSearchLimit = 20
	// MaxSearchLimit is the hard page cap.
	MaxSearchLimit = 100
)

// searchQuery ranks bugs by full-text relevance. Topic hits expand to the
// bugs in that topic; a bug matched both directly and via its topic keeps
// its best score. Ties fall back to the index's native ordering.
const searchQuery = `
CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
WITH node, score
OPTIONAL MATCH (node)<-[:IN_TOPIC]-(tb:Bug)
WITH CASE WHEN node:Bug THEN node ELSE tb END AS b, score
WHERE b IS NOT NULL
WITH b, max(score) AS score
ORDER BY score DESC
LIMIT $limit
OPTIONAL MATCH (b)-[:ASSIGNED_TO]->(d:Developer)
OPTIONAL MATCH (b)-[:IN_TOPIC]->(t:Topic)
  WHERE t.topic_id = b.topic_id
RETURN b, score, d, t
ORDER BY score DESC
`

// Search runs a full-text query for the given normalized terms. An empty
// term set yields an empty result without touching the database.
func (c *Client) Search(ctx context.Context, terms []string, limit int) ([]models.BugResult, error) {
	if len(terms) == 0 {
		return []models.BugResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	result, err := c.read(ctx, searchQuery, map[string]any{
		"index": FullTextIndex,
		"query": luceneQuery(terms),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.BugResult, 0, len(result.Records))
	for _, record := range result.Records {
		bugNode, ok := nodeFromRecord(record, "b")
		if !ok {
			continue
		}

		hit := models.BugResult{Bug: bugFromNode(bugNode)}
		if score, ok := record.Get("score"); ok {
			if f, ok := score.(float64); ok {
				hit.Score = f
			}
		}
		if devNode, ok := nodeFromRecord(record, "d"); ok {
			dev := developerFromNode(devNode)
			hit.Developer = &dev
		}
		if topicNode, ok := nodeFromRecord(record, "t"); ok {
			topic := topicFromNode(topicNode)
			hit.Topic = &topic
		}
		results = append(results, hit)
	}

	c.logger.Debug("search executed", "terms", terms, "results", len(results))
	return results, nil
}

// luceneQuery builds the full-text query string. Terms are escaped and
// OR-joined; the index's default scoring ranks multi-term matches higher.
func luceneQuery(terms []string) string {
	escaped := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = escapeLucene(t); t != "" {
			escaped = append(escaped, t)
		}
	}
	return strings.Join(escaped, " OR ")
}

// escapeLucene strips Lucene query syntax from a term. Terms come out of
// the preprocessor alphanumeric already; this guards direct callers.
func escapeLucene(term string) string {
	var b strings.Builder
	for _, r := range term {
		if strings.ContainsRune(`+-&|!(){}[]^"~*?:\/`, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// bugDetailQuery fetches one bug with its traversal neighborhood.
const bugDetailQuery = `
MATCH (b:Bug {id: $id})
OPTIONAL MATCH (b)-[:ASSIGNED_TO]->(d:Developer)
OPTIONAL MATCH (b)-[:IN_TOPIC]->(t:Topic)
  WHERE t.topic_id = b.topic_id
OPTIONAL MATCH (b)-[:SIMILAR_TO]-(s:Bug)
RETURN b, d, t, collect(DISTINCT s) AS similar
`

// GetBug returns one bug with developer, dominant topic, and SIMILAR_TO
// neighbors, or not-found.
func (c *Client) GetBug(ctx context.Context, id string) (*models.BugDetail, error) {
	result, err := c.read(ctx, bugDetailQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, apperrors.NotFoundf("bug %s not found", id)
	}

	record := result.Records[0]
	bugNode, ok := nodeFromRecord(record, "b")
	if !ok {
		return nil, apperrors.NotFoundf("bug %s not found", id)
	}

	detail := &models.BugDetail{Bug: bugFromNode(bugNode)}
	if devNode, ok := nodeFromRecord(record, "d"); ok {
		dev := developerFromNode(devNode)
		detail.Developer = &dev
	}
	if topicNode, ok := nodeFromRecord(record, "t"); ok {
		topic := topicFromNode(topicNode)
		detail.Topic = &topic
	}
	if raw, ok := record.Get("similar"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if node, ok := item.(neo4j.Node); ok {
					detail.Similar = append(detail.Similar, bugFromNode(node))
				}
			}
		}
	}
	return detail, nil
}

// ListTopics returns topics ordered by id, paged.
func (c *Client) ListTopics(ctx context.Context, limit, offset int) ([]models.Topic, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	result, err := c.read(ctx, `
		MATCH (t:Topic)
		RETURN t
		ORDER BY t.topic_id
		SKIP $offset LIMIT $limit
	`, map[string]any{"limit": limit, "offset": offset})
	if err != nil {
		return nil, err
	}

	topics := make([]models.Topic, 0, len(result.Records))
	for _, record := range result.Records {
		if node, ok := nodeFromRecord(record, "t"); ok {
			topics = append(topics, topicFromNode(node))
		}
	}
	return topics, nil
}

// developerTopicsQuery aggregates a developer's resolved-and-fixed bugs by
// topic and computes each topic's share of the total.
const developerTopicsQuery = `
MATCH (d:Developer {assigned_to: $id})
OPTIONAL MATCH (b:Bug)-[:ASSIGNED_TO]->(d)
  WHERE b.topic_id IS NOT NULL
    AND b.status = 'RESOLVED'
    AND b.resolution = 'FIXED'
WITH d, b.topic_id AS topic_id, count(b) AS fixed
WITH d, [row IN collect({topic_id: topic_id, fixed: fixed}) WHERE row.topic_id IS NOT NULL] AS per_topic
WITH d, per_topic, reduce(s = 0, row IN per_topic | s + row.fixed) AS total
UNWIND (CASE WHEN size(per_topic) = 0 THEN [null] ELSE per_topic END) AS row
OPTIONAL MATCH (t:Topic)
  WHERE row IS NOT NULL AND t.topic_id = row.topic_id
RETURN d.assigned_to AS developer,
       total,
       collect(CASE WHEN row IS NULL THEN NULL ELSE {
         topic_id: row.topic_id,
         topic_label: coalesce(t.topic_label, 'Topic ' + toString(row.topic_id)),
         bugs_fixed: row.fixed,
         share: toFloat(row.fixed) / total
       } END) AS topics
`

// DeveloperTopics returns a developer's fixed-bug distribution over topics.
// A developer with no fixed bugs yields an empty topic list; an unknown
// developer is not-found.
func (c *Client) DeveloperTopics(ctx context.Context, developerID string) (*models.DeveloperTopics, error) {
	result, err := c.read(ctx, developerTopicsQuery, map[string]any{"id": developerID})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, apperrors.NotFoundf("developer %s not found", developerID)
	}
	return developerTopicsFromRecord(result.Records[0], developerID), nil
}

func developerTopicsFromRecord(record *neo4j.Record, developerID string) *models.DeveloperTopics {
	out := &models.DeveloperTopics{Developer: developerID}
	if total, ok := record.Get("total"); ok {
		if n, ok := total.(int64); ok {
			out.TotalBugs = n
		}
	}
	if raw, ok := record.Get("topics"); ok {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				row, ok := item.(map[string]any)
				if !ok {
					continue
				}
				out.Topics = append(out.Topics, models.TopicAffinity{
					TopicID:    int64Prop(row, "topic_id"),
					TopicLabel: stringProp(row, "topic_label"),
					BugsFixed:  int64Prop(row, "bugs_fixed"),
					Share:      floatProp(row, "share"),
				})
			}
		}
	}
	return out
}

// Node-to-model conversions

func bugFromNode(node neo4j.Node) models.Bug {
	p := node.Props
	return models.Bug{
		ID:             stringProp(p, "id"),
		Summary:        stringProp(p, "summary"),
		CleanText:      stringProp(p, "clean_text"),
		Creator:        stringProp(p, "creator"),
		AssignedTo:     stringProp(p, "assigned_to"),
		Status:         stringProp(p, "status"),
		Resolution:     stringProp(p, "resolution"),
		CreationTime:   stringProp(p, "creation_time"),
		LastChangeTime: stringProp(p, "last_change_time"),
		DominantTopic:  int64Prop(p, "dominant_topic"),
		TopicScore:     floatProp(p, "topic_score"),
		TopicLabel:     stringProp(p, "topic_label"),
	}
}

func topicFromNode(node neo4j.Node) models.Topic {
	p := node.Props
	return models.Topic{
		TopicID:    int64Prop(p, "topic_id"),
		TopicLabel: stringProp(p, "topic_label"),
		Terms:      stringProp(p, "terms"),
		CleanTerms: stringProp(p, "clean_terms"),
	}
}

func developerFromNode(node neo4j.Node) models.Developer {
	p := node.Props
	dev := models.Developer{
		AssignedTo:    stringProp(p, "assigned_to"),
		DominantTopic: int64Prop(p, "dominant_topic"),
	}
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("t%d", i)
		if _, ok := p[key]; !ok {
			break
		}
		dev.TopicScores = append(dev.TopicScores, floatProp(p, key))
	}
	return dev
}
