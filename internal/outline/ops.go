package outline

import (
	"podnotes/api/internal/store"
	"podnotes/api/internal/util"
)

// Each operation reads every neighbour it needs before relinking anything,
// so lookups always see the committed shape of the tree.

func (a *arena) insert(op Insert, actor string) error {
	var anchor *store.Node
	if op.AnchorID != nil {
		var err error
		if anchor, err = a.load(*op.AnchorID); err != nil {
			return err
		}
		if !store.SameRef(anchor.ParentID, op.ParentID) {
			return validationf("anchor %s is not a child of the given parent", anchor.UUID)
		}
	} else if op.ParentID != nil {
		if _, err := a.peek(*op.ParentID); err != nil {
			return err
		}
	}

	var (
		follower *store.Node
		err      error
	)
	if anchor != nil {
		follower, err = a.nextOf(anchor)
	} else {
		follower, err = a.firstChild(op.ParentID)
	}
	if err != nil {
		return err
	}
	if anchor == nil && follower == nil {
		if err := a.guard(op.ParentID); err != nil {
			return err
		}
	}

	content := op.Content
	if op.SplitAt != nil {
		text := []rune(anchor.Content)
		at := *op.SplitAt
		if at < 0 || at > len(text) {
			return validationf("split_at %d is outside the anchor text (length %d)", at, len(text))
		}
		content = string(text[at:])
		anchor.Content = string(text[:at])
	}

	item := store.Node{
		UUID:        util.NewID(""),
		ContainerID: a.container.ID,
		ParentID:    op.ParentID,
		PrevID:      op.AnchorID,
		Content:     content,
	}
	if actor != "" {
		item.CreatorID = store.Ref(actor)
	}
	created := a.create(item)
	if follower != nil {
		follower.PrevID = store.Ref(created.UUID)
	}
	return nil
}

func (a *arena) updateContent(op UpdateContent) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	item.Content = op.Content
	a.unchecked[item.UUID] = true
	return nil
}

// moveUp swaps the node with its preceding sibling.
func (a *arena) moveUp(op MoveUp) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	if item.PrevID == nil {
		return boundaryf("node %s is already first", item.UUID)
	}
	prev, err := a.load(*item.PrevID)
	if err != nil {
		return err
	}
	next, err := a.nextOf(item)
	if err != nil {
		return err
	}

	item.PrevID = prev.PrevID
	prev.PrevID = store.Ref(item.UUID)
	if next != nil {
		next.PrevID = store.Ref(prev.UUID)
	}
	return nil
}

// moveDown swaps the node with its following sibling.
func (a *arena) moveDown(op MoveDown) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	next, err := a.nextOf(item)
	if err != nil {
		return err
	}
	if next == nil {
		return boundaryf("node %s is already last", item.UUID)
	}
	after, err := a.nextOf(next)
	if err != nil {
		return err
	}

	next.PrevID = item.PrevID
	item.PrevID = store.Ref(next.UUID)
	if after != nil {
		after.PrevID = store.Ref(item.UUID)
	}
	return nil
}

// indent makes the node the last child of its preceding sibling.
func (a *arena) indent(op Indent) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	if item.PrevID == nil {
		return boundaryf("node %s has no preceding sibling to indent under", item.UUID)
	}
	parent, err := a.load(*item.PrevID)
	if err != nil {
		return err
	}
	if err := a.ensureAcyclic(item.UUID, &parent.UUID); err != nil {
		return err
	}
	next, err := a.nextOf(item)
	if err != nil {
		return err
	}
	last, err := a.lastChild(&parent.UUID)
	if err != nil {
		return err
	}

	if next != nil {
		next.PrevID = item.PrevID
	}
	item.ParentID = store.Ref(parent.UUID)
	item.PrevID = nil
	if last != nil {
		item.PrevID = store.Ref(last.UUID)
	}
	return nil
}

// outdent places the node right after its parent, one level up.
func (a *arena) outdent(op Outdent) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	if item.ParentID == nil {
		return boundaryf("node %s is already at the top level", item.UUID)
	}
	parent, err := a.load(*item.ParentID)
	if err != nil {
		return err
	}
	parentNext, err := a.nextOf(parent)
	if err != nil {
		return err
	}
	next, err := a.nextOf(item)
	if err != nil {
		return err
	}

	if next != nil {
		next.PrevID = item.PrevID
	}
	item.ParentID = parent.ParentID
	item.PrevID = store.Ref(parent.UUID)
	if parentNext != nil {
		parentNext.PrevID = store.Ref(item.UUID)
	}
	return nil
}

func (a *arena) move(op Move) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	if op.ParentID != nil && *op.ParentID == item.UUID {
		return newError(KindCycle, "node %s cannot be its own parent", item.UUID)
	}
	if op.PrevID != nil && *op.PrevID == item.UUID {
		return validationf("node %s cannot follow itself", item.UUID)
	}
	if op.ParentID != nil {
		if _, err := a.peek(*op.ParentID); err != nil {
			return err
		}
	}
	var prev *store.Node
	if op.PrevID != nil {
		if prev, err = a.load(*op.PrevID); err != nil {
			return err
		}
		if !store.SameRef(prev.ParentID, op.ParentID) {
			return validationf("prev %s is not a child of the target parent", prev.UUID)
		}
	}
	if store.SameRef(item.ParentID, op.ParentID) && store.SameRef(item.PrevID, op.PrevID) {
		return nil
	}
	if err := a.ensureAcyclic(item.UUID, op.ParentID); err != nil {
		return err
	}

	next, err := a.nextOf(item)
	if err != nil {
		return err
	}
	var follower *store.Node
	if prev != nil {
		follower, err = a.nextOf(prev)
	} else {
		follower, err = a.firstChild(op.ParentID)
	}
	if err != nil {
		return err
	}
	if prev == nil && follower == nil {
		if err := a.guard(op.ParentID); err != nil {
			return err
		}
	}

	if next != nil {
		next.PrevID = item.PrevID
	}
	item.ParentID = op.ParentID
	item.PrevID = op.PrevID
	if follower != nil && follower.UUID != item.UUID {
		follower.PrevID = store.Ref(item.UUID)
	}
	return nil
}

func (a *arena) mergePrev(op MergePrev) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	if item.PrevID == nil {
		return boundaryf("node %s has no preceding sibling to merge into", item.UUID)
	}
	absorber, err := a.load(*item.PrevID)
	if err != nil {
		return err
	}
	return a.mergeInto(absorber, item)
}

// mergeNext folds the following sibling into the node, keeping text order.
func (a *arena) mergeNext(op MergeNext) error {
	item, err := a.load(op.UUID)
	if err != nil {
		return err
	}
	next, err := a.nextOf(item)
	if err != nil {
		return err
	}
	if next == nil {
		return boundaryf("node %s has no following sibling to merge with", item.UUID)
	}
	return a.mergeInto(item, next)
}

// mergeInto appends victim's text to absorber, which directly precedes it,
// moves victim's children after absorber's own and deletes victim.
func (a *arena) mergeInto(absorber, victim *store.Node) error {
	children, err := a.childrenOf(victim.UUID)
	if err != nil {
		return err
	}
	var last *store.Node
	if len(children) > 0 {
		if last, err = a.lastChild(&absorber.UUID); err != nil {
			return err
		}
	}
	follower, err := a.nextOf(victim)
	if err != nil {
		return err
	}

	absorber.Content += victim.Content
	if len(children) > 0 {
		children[0].PrevID = nil
		if last != nil {
			children[0].PrevID = store.Ref(last.UUID)
		}
		for _, child := range children {
			child.ParentID = store.Ref(absorber.UUID)
		}
	}
	if follower != nil {
		follower.PrevID = victim.PrevID
	}
	a.remove(victim)
	return nil
}
