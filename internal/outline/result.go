package outline

import (
	"time"

	"podnotes/api/internal/store"
)

// NodeView is the wire form of a node.
type NodeView struct {
	UUID        string    `json:"uuid"`
	ContainerID string    `json:"container_id"`
	ParentID    *string   `json:"parent_id"`
	PrevID      *string   `json:"prev_id"`
	Content     string    `json:"content"`
	CreatorID   *string   `json:"creator_id,omitempty"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ViewOf(item store.Node) NodeView {
	return NodeView{
		UUID:        item.UUID,
		ContainerID: item.ContainerID,
		ParentID:    item.ParentID,
		PrevID:      item.PrevID,
		Content:     item.Content,
		CreatorID:   item.CreatorID,
		Version:     item.Version,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func ViewsOf(items []store.Node) []NodeView {
	views := make([]NodeView, 0, len(items))
	for _, item := range items {
		views = append(views, ViewOf(item))
	}
	return views
}

// Position is the new (parent_id, prev_id) of a node whose links changed.
type Position struct {
	UUID     string  `json:"uuid"`
	ParentID *string `json:"parent_id"`
	PrevID   *string `json:"prev_id"`
	Version  int64   `json:"version"`
}

type ContentChange struct {
	UUID    string `json:"uuid"`
	Content string `json:"content"`
	Version int64  `json:"version"`
}

// Result is the minimal diff of one committed operation: only nodes whose
// links or text actually changed are listed. Seq is the container's commit
// sequence; it is zero for a no-op.
type Result struct {
	ContainerID string          `json:"container_id"`
	Op          string          `json:"op"`
	Seq         int64           `json:"seq,omitempty"`
	Created     *NodeView       `json:"created,omitempty"`
	Moved       []Position      `json:"moved,omitempty"`
	Contents    []ContentChange `json:"contents,omitempty"`
	Deleted     []string        `json:"deleted,omitempty"`
}

// Empty reports whether the operation committed no change.
func (r Result) Empty() bool {
	return r.Created == nil && len(r.Moved) == 0 && len(r.Contents) == 0 && len(r.Deleted) == 0
}
