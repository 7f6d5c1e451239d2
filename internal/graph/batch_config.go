package graph

// BatchConfig defines transaction batch sizes for the importer. One UNWIND
// per batch, one batch per transaction.
type BatchConfig struct {
	NodeBatchSize int // Bug, Topic, Developer merges
	EdgeBatchSize int // IN_TOPIC, ASSIGNED_TO, SIMILAR_TO merges
}

// DefaultBatchConfig matches the load the importer was tuned for:
// 10k-row transactions keep memory flat without starving throughput.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		NodeBatchSize: 10000,
		EdgeBatchSize: 10000,
	}
}
