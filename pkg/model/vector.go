package model

// DistanceCosine is the only similarity metric used by memory collections
const DistanceCosine = "cosine"

// CountUnknown is reported as CollectionInfo.Count by backends that cannot
// count points without a scan
const CountUnknown = -1

// CollectionInfo describes an existing vector collection
type CollectionInfo struct {
	Name      string
	Dimension int
	Distance  string
	Count     int
}

// VectorPoint is a single vector with its payload
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// VectorHit is a search result; Score is cosine similarity (higher is closer)
type VectorHit struct {
	ID      string
	Score   float64
	Payload map[string]string
}
