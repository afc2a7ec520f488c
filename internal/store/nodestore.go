package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"podnotes/api/internal/util"
)

// Tx is the transactional view of the node table used by the outline
// engine. Every write that depends on an earlier read carries the version
// observed by that read and fails with ErrConflict if the row moved on.
type Tx interface {
	GetContainer(ctx context.Context, id string) (Container, error)
	TouchContainer(ctx context.Context, id string, version int64) error
	NextSeq(ctx context.Context, containerID string) (int64, error)
	GetNode(ctx context.Context, uuid string) (Node, error)
	ShareNode(ctx context.Context, uuid string) (Node, error)
	NextSiblings(ctx context.Context, uuid string) ([]Node, error)
	FirstChildren(ctx context.Context, containerID string, parentID *string) ([]Node, error)
	LastChild(ctx context.Context, containerID string, parentID *string) (*Node, error)
	ChildrenOf(ctx context.Context, containerID string, parentID *string) ([]Node, error)
	CountNodes(ctx context.Context, containerID string) (int, error)
	CountReferences(ctx context.Context, uuid string) (int, error)
	InsertNode(ctx context.Context, item Node) error
	UpdatePosition(ctx context.Context, uuid string, parentID, prevID *string, version int64) error
	SetContent(ctx context.Context, uuid, content string) (int64, error)
	Touch(ctx context.Context, uuid string, version int64) error
	DeleteNode(ctx context.Context, uuid string, version int64) error
}

// NodeStore is the durable store for containers and nodes.
type NodeStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewPostgresStore(db *sql.DB) *NodeStore {
	return &NodeStore{db: db, dialect: Postgres, now: utcNow}
}

func NewSQLiteStore(db *sql.DB) *NodeStore {
	return &NodeStore{db: db, dialect: SQLite, now: utcNow}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func (s *NodeStore) DB() *sql.DB {
	return s.db
}

func (s *NodeStore) Dialect() Dialect {
	return s.dialect
}

func (s *NodeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *NodeStore) pool() conn {
	return conn{q: s.db, dialect: s.dialect, now: s.now}
}

// WithTx runs fn in one transaction; any error from fn rolls everything back.
func (s *NodeStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	if err := fn(&sqlTx{conn: conn{q: tx, dialect: s.dialect, now: s.now}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *NodeStore) CreateContainer(ctx context.Context, ownerType, ownerID string) (Container, error) {
	ownerID = strings.TrimSpace(ownerID)
	switch ownerType {
	case OwnerShow, OwnerEpisode, OwnerInbox:
	default:
		return Container{}, validationf("unknown owner type %q", ownerType)
	}
	if ownerID == "" {
		return Container{}, validationf("owner id is required")
	}
	c := s.pool()
	_, err := c.exec(ctx, `
		INSERT INTO containers (id, owner_type, owner_id, version, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (owner_type, owner_id) DO NOTHING
	`, util.NewID(""), ownerType, ownerID, s.dialect.timeArg(s.now()))
	if err != nil {
		return Container{}, classify(fmt.Errorf("create container: %w", err))
	}
	return c.containerFor(ctx, ownerType, ownerID)
}

func (s *NodeStore) GetContainer(ctx context.Context, id string) (Container, error) {
	return s.pool().getContainer(ctx, id)
}

func (s *NodeStore) ContainerFor(ctx context.Context, ownerType, ownerID string) (Container, error) {
	return s.pool().containerFor(ctx, ownerType, ownerID)
}

func (s *NodeStore) Get(ctx context.Context, uuid string) (Node, error) {
	return s.pool().getNode(ctx, uuid)
}

// ChildrenOf returns one sibling group ordered along its prev_id chain.
func (s *NodeStore) ChildrenOf(ctx context.Context, containerID string, parentID *string) ([]Node, error) {
	return s.pool().childrenOf(ctx, containerID, parentID)
}

// ListNodes returns a container's whole tree in document order.
func (s *NodeStore) ListNodes(ctx context.Context, containerID string) ([]Node, error) {
	if _, err := s.GetContainer(ctx, containerID); err != nil {
		return nil, err
	}
	return s.pool().listNodes(ctx, containerID)
}

// Create inserts a row as given. It checks references but does not splice
// the sibling chain; structural edits go through the outline engine.
func (s *NodeStore) Create(ctx context.Context, attrs NewNode) (Node, error) {
	if strings.TrimSpace(attrs.ContainerID) == "" {
		return Node{}, validationf("container id is required")
	}
	if attrs.UUID == "" {
		attrs.UUID = util.NewID("")
	} else if !util.ValidUUID(attrs.UUID) {
		return Node{}, validationf("malformed uuid %q", attrs.UUID)
	}

	var created Node
	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetContainer(ctx, attrs.ContainerID); err != nil {
			return err
		}
		item := Node{
			UUID:        attrs.UUID,
			ContainerID: attrs.ContainerID,
			ParentID:    attrs.ParentID,
			PrevID:      attrs.PrevID,
			Content:     attrs.Content,
			CreatorID:   attrs.CreatorID,
		}
		if err := checkRefs(ctx, tx, item); err != nil {
			return err
		}
		if err := tx.InsertNode(ctx, item); err != nil {
			return err
		}
		stored, err := tx.GetNode(ctx, item.UUID)
		if err != nil {
			return err
		}
		created = stored
		return nil
	})
	if err != nil {
		return Node{}, err
	}
	return created, nil
}

// Update applies one patch. See BatchUpdate for several rows at once.
func (s *NodeStore) Update(ctx context.Context, uuid string, patch NodePatch) (Node, error) {
	updated, err := s.BatchUpdate(ctx, []NodeUpdate{{UUID: uuid, Patch: patch}})
	if err != nil {
		return Node{}, err
	}
	return updated[0], nil
}

// BatchUpdate applies every patch in one transaction: all rows commit or none do.
func (s *NodeStore) BatchUpdate(ctx context.Context, updates []NodeUpdate) ([]Node, error) {
	if len(updates) == 0 {
		return nil, validationf("batch is empty")
	}
	for _, update := range updates {
		if strings.TrimSpace(update.UUID) == "" {
			return nil, validationf("uuid is required")
		}
		if update.Patch.Empty() {
			return nil, validationf("patch for %s sets no attributes", update.UUID)
		}
	}

	result := make([]Node, 0, len(updates))
	err := s.WithTx(ctx, func(tx Tx) error {
		for _, update := range updates {
			item, err := tx.GetNode(ctx, update.UUID)
			if err != nil {
				return err
			}
			if update.Patch.ParentID.Set || update.Patch.PrevID.Set {
				if update.Patch.ParentID.Set {
					item.ParentID = update.Patch.ParentID.ID
				}
				if update.Patch.PrevID.Set {
					item.PrevID = update.Patch.PrevID.ID
				}
				if err := checkRefs(ctx, tx, item); err != nil {
					return err
				}
				if err := tx.UpdatePosition(ctx, item.UUID, item.ParentID, item.PrevID, item.Version); err != nil {
					return err
				}
			}
			if update.Patch.Content != nil {
				if _, err := tx.SetContent(ctx, item.UUID, *update.Patch.Content); err != nil {
					return err
				}
			}
		}
		for _, update := range updates {
			item, err := tx.GetNode(ctx, update.UUID)
			if err != nil {
				return err
			}
			result = append(result, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes one row. A node that still has children or a follower is
// rejected; merges relink those first.
func (s *NodeStore) Delete(ctx context.Context, uuid string) error {
	return s.WithTx(ctx, func(tx Tx) error {
		item, err := tx.GetNode(ctx, uuid)
		if err != nil {
			return err
		}
		refs, err := tx.CountReferences(ctx, item.UUID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return validationf("node %s is still referenced by %d nodes", item.UUID, refs)
		}
		return tx.DeleteNode(ctx, item.UUID, item.Version)
	})
}

func checkRefs(ctx context.Context, tx Tx, item Node) error {
	if item.ParentID != nil {
		if *item.ParentID == item.UUID {
			return validationf("node %s cannot be its own parent", item.UUID)
		}
		parent, err := tx.GetNode(ctx, *item.ParentID)
		if err != nil {
			return err
		}
		if parent.ContainerID != item.ContainerID {
			return validationf("parent %s belongs to another container", parent.UUID)
		}
	}
	if item.PrevID != nil {
		if *item.PrevID == item.UUID {
			return validationf("node %s cannot follow itself", item.UUID)
		}
		prev, err := tx.GetNode(ctx, *item.PrevID)
		if err != nil {
			return err
		}
		if prev.ContainerID != item.ContainerID || !SameRef(prev.ParentID, item.ParentID) {
			return validationf("prev %s is not a sibling of %s", prev.UUID, item.UUID)
		}
	}
	return nil
}

type sqlTx struct {
	conn conn
}

func (t *sqlTx) GetContainer(ctx context.Context, id string) (Container, error) {
	return t.conn.getContainer(ctx, id)
}

func (t *sqlTx) TouchContainer(ctx context.Context, id string, version int64) error {
	return t.conn.touchContainer(ctx, id, version)
}

func (t *sqlTx) NextSeq(ctx context.Context, containerID string) (int64, error) {
	return t.conn.nextSeq(ctx, containerID)
}

func (t *sqlTx) GetNode(ctx context.Context, uuid string) (Node, error) {
	return t.conn.getNode(ctx, uuid)
}

func (t *sqlTx) ShareNode(ctx context.Context, uuid string) (Node, error) {
	return t.conn.shareNode(ctx, uuid)
}

func (t *sqlTx) NextSiblings(ctx context.Context, uuid string) ([]Node, error) {
	return t.conn.nextSiblings(ctx, uuid)
}

func (t *sqlTx) FirstChildren(ctx context.Context, containerID string, parentID *string) ([]Node, error) {
	return t.conn.firstChildren(ctx, containerID, parentID)
}

func (t *sqlTx) LastChild(ctx context.Context, containerID string, parentID *string) (*Node, error) {
	return t.conn.lastChild(ctx, containerID, parentID)
}

func (t *sqlTx) ChildrenOf(ctx context.Context, containerID string, parentID *string) ([]Node, error) {
	return t.conn.childrenOf(ctx, containerID, parentID)
}

func (t *sqlTx) CountNodes(ctx context.Context, containerID string) (int, error) {
	return t.conn.countNodes(ctx, containerID)
}

func (t *sqlTx) CountReferences(ctx context.Context, uuid string) (int, error) {
	return t.conn.referencedBy(ctx, uuid)
}

func (t *sqlTx) InsertNode(ctx context.Context, item Node) error {
	if item.ContainerID == "" || item.UUID == "" {
		return validationf("node needs uuid and container id")
	}
	return t.conn.insertNode(ctx, item)
}

func (t *sqlTx) UpdatePosition(ctx context.Context, uuid string, parentID, prevID *string, version int64) error {
	return t.conn.updatePosition(ctx, uuid, parentID, prevID, version)
}

func (t *sqlTx) SetContent(ctx context.Context, uuid, content string) (int64, error) {
	return t.conn.setContent(ctx, uuid, content)
}

func (t *sqlTx) Touch(ctx context.Context, uuid string, version int64) error {
	return t.conn.touch(ctx, uuid, version)
}

func (t *sqlTx) DeleteNode(ctx context.Context, uuid string, version int64) error {
	return t.conn.deleteNode(ctx, uuid, version)
}

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
