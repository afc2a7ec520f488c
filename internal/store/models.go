package store

import "time"

// Owner types a Container can be anchored to.
const (
	OwnerShow    = "show"
	OwnerEpisode = "episode"
	OwnerInbox   = "inbox"
)

type Container struct {
	ID        string
	OwnerType string
	OwnerID   string
	Version   int64
	CreatedAt time.Time
}

// Node is one row of the nodes table. ParentID and PrevID are nil at the
// root level and for the first child of a group respectively.
type Node struct {
	UUID        string
	ContainerID string
	ParentID    *string
	PrevID      *string
	Content     string
	CreatorID   *string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewNode carries the attributes accepted by Create. UUID is generated when empty.
type NewNode struct {
	UUID        string
	ContainerID string
	ParentID    *string
	PrevID      *string
	Content     string
	CreatorID   *string
}

// Link is an optional pointer rewrite: Set distinguishes "leave alone" from
// "set to null".
type Link struct {
	Set bool
	ID  *string
}

func SetLink(id *string) Link {
	return Link{Set: true, ID: id}
}

// NodePatch lists the mutable attributes of a node.
type NodePatch struct {
	Content  *string
	ParentID Link
	PrevID   Link
}

func (p NodePatch) Empty() bool {
	return p.Content == nil && !p.ParentID.Set && !p.PrevID.Set
}

type NodeUpdate struct {
	UUID  string
	Patch NodePatch
}

// SameRef reports whether two nullable references point at the same node.
func SameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ref returns a pointer to a copy of id.
func Ref(id string) *string {
	return &id
}
