package outline

import (
	"context"

	"podnotes/api/internal/store"
)

// arena holds every node an operation has read, keyed by uuid. Operations
// read their whole neighbourhood first, then relink pointers in memory;
// flush writes the difference back in one transaction.
//
// Every node loaded is written back with a version check (a position
// update or a bare touch), so a concurrent transaction that changed any of
// them makes this one fail with a conflict instead of committing over it.
// Nodes the operation only needs to exist (ancestors, a target parent) are
// peeked instead: read under a share lock and never written.
type arena struct {
	ctx       context.Context
	tx        store.Tx
	container store.Container

	nodes    map[string]*store.Node
	original map[string]store.Node
	shared   map[string]store.Node
	loaded   []string
	created  []string
	deleted  map[string]bool
	// unchecked nodes are written without a version check (last write wins).
	unchecked map[string]bool
	// guardContainer is set when the root group was observed empty.
	guardContainer bool
}

func newArena(ctx context.Context, tx store.Tx, container store.Container) *arena {
	return &arena{
		ctx:       ctx,
		tx:        tx,
		container: container,
		nodes:     make(map[string]*store.Node),
		original:  make(map[string]store.Node),
		shared:    make(map[string]store.Node),
		deleted:   make(map[string]bool),
		unchecked: make(map[string]bool),
	}
}

// adopt registers a row read from the store. A node already in the arena
// keeps its in-memory state.
func (a *arena) adopt(row store.Node) *store.Node {
	if existing, ok := a.nodes[row.UUID]; ok {
		return existing
	}
	item := row
	a.nodes[row.UUID] = &item
	a.original[row.UUID] = row
	a.loaded = append(a.loaded, row.UUID)
	return &item
}

func (a *arena) load(uuid string) (*store.Node, error) {
	if item, ok := a.nodes[uuid]; ok {
		if a.deleted[uuid] {
			return nil, newError(KindNotFound, "node %s was removed by this operation", uuid)
		}
		return item, nil
	}
	row, err := a.tx.GetNode(a.ctx, uuid)
	if err != nil {
		return nil, err
	}
	if row.ContainerID != a.container.ID {
		return nil, newError(KindNotFound, "node %s is not in container %s", uuid, a.container.ID)
	}
	return a.adopt(row), nil
}

// peek reads a node the operation depends on but does not change. The row
// is share-locked where the store supports it; a concurrent writer waits
// for this transaction instead of slipping a change underneath it.
func (a *arena) peek(uuid string) (store.Node, error) {
	if item, ok := a.nodes[uuid]; ok {
		if a.deleted[uuid] {
			return store.Node{}, newError(KindNotFound, "node %s was removed by this operation", uuid)
		}
		return *item, nil
	}
	if row, ok := a.shared[uuid]; ok {
		return row, nil
	}
	row, err := a.tx.ShareNode(a.ctx, uuid)
	if err != nil {
		return store.Node{}, err
	}
	if row.ContainerID != a.container.ID {
		return store.Node{}, newError(KindNotFound, "node %s is not in container %s", uuid, a.container.ID)
	}
	a.shared[uuid] = row
	return row, nil
}

func (a *arena) adoptAll(rows []store.Node) {
	for _, row := range rows {
		if row.ContainerID == a.container.ID {
			a.adopt(row)
		}
	}
}

func (a *arena) inGroup(item *store.Node, parentID *string) bool {
	return !a.deleted[item.UUID] && store.SameRef(item.ParentID, parentID)
}

// nextOf returns the sibling currently following item, if any.
func (a *arena) nextOf(item *store.Node) (*store.Node, error) {
	rows, err := a.tx.NextSiblings(a.ctx, item.UUID)
	if err != nil {
		return nil, err
	}
	a.adoptAll(rows)
	for _, uuid := range a.members() {
		candidate := a.nodes[uuid]
		if candidate.UUID != item.UUID && candidate.PrevID != nil && *candidate.PrevID == item.UUID && a.inGroup(candidate, item.ParentID) {
			return candidate, nil
		}
	}
	return nil, nil
}

// firstChild returns the head of parentID's children, if any.
func (a *arena) firstChild(parentID *string) (*store.Node, error) {
	rows, err := a.tx.FirstChildren(a.ctx, a.container.ID, parentID)
	if err != nil {
		return nil, err
	}
	a.adoptAll(rows)
	for _, uuid := range a.members() {
		candidate := a.nodes[uuid]
		if candidate.PrevID == nil && a.inGroup(candidate, parentID) {
			return candidate, nil
		}
	}
	return nil, nil
}

// lastChild returns the tail of parentID's children, if any.
func (a *arena) lastChild(parentID *string) (*store.Node, error) {
	row, err := a.tx.LastChild(a.ctx, a.container.ID, parentID)
	if err != nil {
		return nil, err
	}
	var current *store.Node
	if row != nil {
		current = a.adopt(*row)
		if !a.inGroup(current, parentID) {
			current = nil
		}
	}
	if current == nil {
		if current, err = a.firstChild(parentID); err != nil || current == nil {
			return nil, err
		}
	}
	seen := map[string]bool{current.UUID: true}
	for {
		next, err := a.nextOf(current)
		if err != nil {
			return nil, err
		}
		if next == nil || seen[next.UUID] {
			return current, nil
		}
		seen[next.UUID] = true
		current = next
	}
}

// childrenOf returns parentID's children in chain order.
func (a *arena) childrenOf(parentID string) ([]*store.Node, error) {
	rows, err := a.tx.ChildrenOf(a.ctx, a.container.ID, &parentID)
	if err != nil {
		return nil, err
	}
	children := make([]*store.Node, 0, len(rows))
	for _, row := range rows {
		children = append(children, a.adopt(row))
	}
	return children, nil
}

// guard protects an empty sibling group against a concurrent insert:
// the group's parent node (or the container for the root group) is
// version-checked at flush.
func (a *arena) guard(parentID *string) error {
	if parentID == nil {
		a.guardContainer = true
		return nil
	}
	_, err := a.load(*parentID)
	return err
}

// ensureAcyclic walks up from newParent and fails if it reaches uuid. The
// walk is bounded by the container's node count, so a corrupted parent
// chain cannot loop forever. Ancestors are peeked: two concurrent moves
// that would close a cycle each hold a share lock on a row the other
// writes, so one of them deadlocks out and retries.
func (a *arena) ensureAcyclic(uuid string, newParent *string) error {
	if newParent == nil {
		return nil
	}
	count, err := a.tx.CountNodes(a.ctx, a.container.ID)
	if err != nil {
		return err
	}
	current := newParent
	for steps := 0; current != nil; steps++ {
		if *current == uuid {
			return newError(KindCycle, "node %s cannot move under its own descendant", uuid)
		}
		if steps > count {
			return newError(KindCycle, "parent chain above %s does not terminate", *newParent)
		}
		ancestor, err := a.peek(*current)
		if err != nil {
			return err
		}
		current = ancestor.ParentID
	}
	return nil
}

func (a *arena) create(item store.Node) *store.Node {
	stored := item
	a.nodes[item.UUID] = &stored
	a.created = append(a.created, item.UUID)
	return &stored
}

func (a *arena) remove(item *store.Node) {
	a.deleted[item.UUID] = true
}

// members lists live arena nodes in a stable order.
func (a *arena) members() []string {
	out := make([]string, 0, len(a.loaded)+len(a.created))
	for _, uuid := range a.loaded {
		if !a.deleted[uuid] {
			out = append(out, uuid)
		}
	}
	for _, uuid := range a.created {
		if !a.deleted[uuid] {
			out = append(out, uuid)
		}
	}
	return out
}

func (a *arena) changed(uuid string) (moved, edited bool) {
	item, original := a.nodes[uuid], a.original[uuid]
	moved = !store.SameRef(item.ParentID, original.ParentID) || !store.SameRef(item.PrevID, original.PrevID)
	edited = item.Content != original.Content
	return moved, edited
}

func (a *arena) dirty() bool {
	if len(a.created) > 0 || len(a.deleted) > 0 {
		return true
	}
	for _, uuid := range a.loaded {
		if moved, edited := a.changed(uuid); moved || edited {
			return true
		}
	}
	return false
}

// flush writes the arena back and returns the minimal diff. Nothing is
// written when the operation turned out to be a no-op.
func (a *arena) flush(op string) (Result, error) {
	result := Result{ContainerID: a.container.ID, Op: op}
	if !a.dirty() {
		return result, nil
	}

	for _, uuid := range a.created {
		if err := a.tx.InsertNode(a.ctx, *a.nodes[uuid]); err != nil {
			return Result{}, err
		}
	}

	for _, uuid := range a.loaded {
		if a.deleted[uuid] {
			continue
		}
		item, original := a.nodes[uuid], a.original[uuid]
		moved, edited := a.changed(uuid)
		switch {
		case a.unchecked[uuid]:
		case moved:
			if err := a.tx.UpdatePosition(a.ctx, uuid, item.ParentID, item.PrevID, original.Version); err != nil {
				return Result{}, err
			}
			item.Version = original.Version + 1
		default:
			if err := a.tx.Touch(a.ctx, uuid, original.Version); err != nil {
				return Result{}, err
			}
			item.Version = original.Version + 1
		}
		if edited {
			version, err := a.tx.SetContent(a.ctx, uuid, item.Content)
			if err != nil {
				return Result{}, err
			}
			item.Version = version
			result.Contents = append(result.Contents, ContentChange{UUID: uuid, Content: item.Content, Version: version})
		}
		if moved {
			result.Moved = append(result.Moved, Position{UUID: uuid, ParentID: item.ParentID, PrevID: item.PrevID, Version: item.Version})
		}
	}

	for _, uuid := range a.loaded {
		if !a.deleted[uuid] {
			continue
		}
		if err := a.tx.DeleteNode(a.ctx, uuid, a.original[uuid].Version); err != nil {
			return Result{}, err
		}
		result.Deleted = append(result.Deleted, uuid)
	}

	if a.guardContainer {
		if err := a.tx.TouchContainer(a.ctx, a.container.ID, a.container.Version); err != nil {
			return Result{}, err
		}
	}

	seq, err := a.tx.NextSeq(a.ctx, a.container.ID)
	if err != nil {
		return Result{}, err
	}
	result.Seq = seq

	for _, uuid := range a.created {
		row, err := a.tx.GetNode(a.ctx, uuid)
		if err != nil {
			return Result{}, err
		}
		view := ViewOf(row)
		result.Created = &view
	}
	return result, nil
}
