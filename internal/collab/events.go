package collab

import "podnotes/api/internal/outline"

const (
	EventSetContent = "set_content"
	EventMoveNodes  = "move_nodes"
	EventInsert     = "insert"
	EventDelete     = "delete"
	EventFocus      = "focus"
	EventBlur       = "blur"
	// EventResync tells a session its event stream has a gap and it must
	// reload the whole outline.
	EventResync = "resync"
)

// Event is one push message for the sessions of a container. Version is
// the node's version after the change; clients drop events older than
// what they already hold. Seq is the container's commit sequence, shared
// by every event of one commit and increasing in commit order.
type Event struct {
	Type        string             `json:"type"`
	ContainerID string             `json:"container_id"`
	Origin      string             `json:"origin,omitempty"`
	Seq         int64              `json:"seq,omitempty"`
	UUID        string             `json:"uuid,omitempty"`
	Content     *string            `json:"content,omitempty"`
	Version     int64              `json:"version,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	Nodes       []outline.Position `json:"nodes,omitempty"`
	Node        *outline.NodeView  `json:"node,omitempty"`
}

// ChangeEvents turns a committed result into the minimal events peers need:
// the created node, the links that changed, the texts that changed and the
// nodes that went away.
func ChangeEvents(origin string, result outline.Result) []Event {
	events := make([]Event, 0, 2+len(result.Contents)+len(result.Deleted))
	if result.Created != nil {
		node := *result.Created
		events = append(events, Event{
			Type:        EventInsert,
			ContainerID: result.ContainerID,
			Origin:      origin,
			Seq:         result.Seq,
			UUID:        node.UUID,
			Version:     node.Version,
			Node:        &node,
		})
	}
	if len(result.Moved) > 0 {
		events = append(events, Event{
			Type:        EventMoveNodes,
			ContainerID: result.ContainerID,
			Origin:      origin,
			Seq:         result.Seq,
			Nodes:       append([]outline.Position(nil), result.Moved...),
		})
	}
	for _, change := range result.Contents {
		content := change.Content
		events = append(events, Event{
			Type:        EventSetContent,
			ContainerID: result.ContainerID,
			Origin:      origin,
			Seq:         result.Seq,
			UUID:        change.UUID,
			Content:     &content,
			Version:     change.Version,
		})
	}
	for _, uuid := range result.Deleted {
		events = append(events, Event{
			Type:        EventDelete,
			ContainerID: result.ContainerID,
			Origin:      origin,
			Seq:         result.Seq,
			UUID:        uuid,
		})
	}
	return events
}
