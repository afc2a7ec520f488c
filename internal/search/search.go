// Package search finds outline nodes by their text.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	UUID        string `json:"uuid"`
	ContainerID string `json:"container_id"`
	Snippet     string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text        string
	ContainerID string // empty = every container
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push nodes into a search index.
type Indexer interface {
	IndexNodes(nodes []NodeRecord) error
	DeleteNodes(uuids []string) error
}

// NodeRecord is the data we index for a node.
type NodeRecord struct {
	UUID        string `json:"uuid"`
	ContainerID string `json:"containerId"`
	Content     string `json:"content"`
}

const defaultLimit = 20

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
