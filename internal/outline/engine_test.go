package outline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podnotes/api/internal/store"
)

type fixture struct {
	t         *testing.T
	ctx       context.Context
	store     *store.NodeStore
	engine    *Engine
	container store.Container
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "outline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, store.SQLite))

	nodeStore := store.NewSQLiteStore(db)
	engine := NewEngine(nodeStore, opts...)
	container, err := engine.EnsureContainer(ctx, store.OwnerEpisode, "ep-42")
	require.NoError(t, err)
	return &fixture{t: t, ctx: ctx, store: nodeStore, engine: engine, container: container}
}

func (f *fixture) apply(op Operation) Result {
	f.t.Helper()
	result, err := f.engine.Apply(f.ctx, f.container.ID, "user-1", op)
	require.NoError(f.t, err)
	f.assertValid()
	return result
}

func (f *fixture) applyErr(op Operation) error {
	f.t.Helper()
	before := f.snapshot()
	_, err := f.engine.Apply(f.ctx, f.container.ID, "user-1", op)
	require.Error(f.t, err)
	assert.Equal(f.t, before, f.snapshot(), "failed operation changed the tree")
	return err
}

// add appends a node at the end of parent's children.
func (f *fixture) add(parent *store.Node, content string) store.Node {
	f.t.Helper()
	var parentID *string
	if parent != nil {
		parentID = store.Ref(parent.UUID)
	}
	children, err := f.store.ChildrenOf(f.ctx, f.container.ID, parentID)
	require.NoError(f.t, err)
	var anchor *string
	if len(children) > 0 {
		anchor = store.Ref(children[len(children)-1].UUID)
	}
	result := f.apply(Insert{AnchorID: anchor, ParentID: parentID, Content: content})
	require.NotNil(f.t, result.Created)
	return f.get(result.Created.UUID)
}

func (f *fixture) get(uuid string) store.Node {
	f.t.Helper()
	item, err := f.store.Get(f.ctx, uuid)
	require.NoError(f.t, err)
	return item
}

func (f *fixture) snapshot() []store.Node {
	f.t.Helper()
	nodes, err := f.engine.Snapshot(f.ctx, f.container.ID)
	require.NoError(f.t, err)
	return nodes
}

func (f *fixture) assertValid() {
	f.t.Helper()
	require.NoError(f.t, CheckInvariants(f.snapshot()))
}

// outline renders the tree as "content" entries with one "  " per level.
func (f *fixture) outline() []string {
	f.t.Helper()
	nodes := f.snapshot()
	depth := make(map[string]int, len(nodes))
	out := make([]string, 0, len(nodes))
	for _, item := range nodes {
		level := 0
		if item.ParentID != nil {
			level = depth[*item.ParentID] + 1
		}
		depth[item.UUID] = level
		indent := ""
		for i := 0; i < level; i++ {
			indent += "  "
		}
		out = append(out, indent+item.Content)
	}
	return out
}

func TestInsertBuildsSiblingChain(t *testing.T) {
	f := newFixture(t)

	a := f.add(nil, "a")
	c := f.add(nil, "c")
	f.apply(Insert{AnchorID: store.Ref(a.UUID), Content: "b"})
	f.apply(Insert{Content: "head"})

	assert.Equal(t, []string{"head", "a", "b", "c"}, f.outline())
	assert.Nil(t, f.get(f.snapshot()[0].UUID).PrevID)
	assert.NotEqual(t, a.UUID, *f.get(c.UUID).PrevID)
}

func TestInsertRecordsCreatorAndMinimalDiff(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")

	result := f.apply(Insert{AnchorID: store.Ref(a.UUID), Content: "between"})
	require.NotNil(t, result.Created)
	require.NotNil(t, result.Created.CreatorID)
	assert.Equal(t, "user-1", *result.Created.CreatorID)
	assert.Equal(t, a.UUID, *result.Created.PrevID)

	require.Len(t, result.Moved, 1)
	assert.Equal(t, b.UUID, result.Moved[0].UUID)
	assert.Equal(t, result.Created.UUID, *result.Moved[0].PrevID)
	assert.Empty(t, result.Contents)
	assert.Empty(t, result.Deleted)
}

func TestInsertSplitsAnchorText(t *testing.T) {
	f := newFixture(t)
	parent := f.add(nil, "parent")
	a := f.add(&parent, "hello world")

	at := 5
	result := f.apply(Insert{AnchorID: store.Ref(a.UUID), ParentID: store.Ref(parent.UUID), SplitAt: &at})

	require.NotNil(t, result.Created)
	assert.Equal(t, "hello", f.get(a.UUID).Content)
	created := f.get(result.Created.UUID)
	assert.Equal(t, " world", created.Content)
	require.NotNil(t, created.PrevID)
	assert.Equal(t, a.UUID, *created.PrevID)
	assert.Equal(t, a.ParentID, created.ParentID)

	require.Len(t, result.Contents, 1)
	assert.Equal(t, ContentChange{UUID: a.UUID, Content: "hello", Version: f.get(a.UUID).Version}, result.Contents[0])
}

func TestInsertSplitCountsRunes(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "héllo wörld")

	at := 6
	result := f.apply(Insert{AnchorID: store.Ref(a.UUID), SplitAt: &at})
	assert.Equal(t, "héllo ", f.get(a.UUID).Content)
	assert.Equal(t, "wörld", result.Created.Content)
}

func TestInsertRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	parent := f.add(nil, "parent")
	child := f.add(&parent, "child")

	far := 99
	err := f.applyErr(Insert{AnchorID: store.Ref(child.UUID), ParentID: store.Ref(parent.UUID), SplitAt: &far})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.applyErr(Insert{AnchorID: store.Ref(child.UUID), Content: "wrong level"})
	assert.ErrorIs(t, err, ErrValidation)

	zero := 0
	err = f.applyErr(Insert{SplitAt: &zero})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.applyErr(Insert{AnchorID: store.Ref("6f1c1c64-0d55-4a4e-9b1e-5f5e0f1a2b3c"), Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateContentIsLastWriteWins(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "draft")

	first := f.apply(UpdateContent{UUID: a.UUID, Content: "first"})
	second := f.apply(UpdateContent{UUID: a.UUID, Content: "second"})

	assert.Equal(t, "second", f.get(a.UUID).Content)
	require.Len(t, first.Contents, 1)
	require.Len(t, second.Contents, 1)
	assert.Greater(t, second.Contents[0].Version, first.Contents[0].Version)
	assert.Empty(t, second.Moved)

	same := f.apply(UpdateContent{UUID: a.UUID, Content: "second"})
	assert.True(t, same.Empty())
}

func TestMoveUpAndDown(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")
	c := f.add(nil, "c")
	f.add(nil, "d")

	result := f.apply(MoveUp{UUID: c.UUID})
	assert.Equal(t, []string{"a", "c", "b", "d"}, f.outline())
	assert.LessOrEqual(t, len(result.Moved), 3)

	f.apply(MoveDown{UUID: c.UUID})
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.outline())
	assert.Equal(t, store.Ref(b.UUID), f.get(c.UUID).PrevID)

	err := f.applyErr(MoveUp{UUID: a.UUID})
	assert.ErrorIs(t, err, ErrBoundary)

	last := f.snapshot()[3]
	err = f.applyErr(MoveDown{UUID: last.UUID})
	assert.ErrorIs(t, err, ErrBoundary)
}

func TestMoveUpDownRoundTripRestoresLinks(t *testing.T) {
	f := newFixture(t)
	f.add(nil, "a")
	f.add(nil, "b")
	c := f.add(nil, "c")
	f.add(nil, "d")

	before := f.get(c.UUID)
	f.apply(MoveUp{UUID: c.UUID})
	f.apply(MoveDown{UUID: c.UUID})
	after := f.get(c.UUID)
	assert.Equal(t, before.ParentID, after.ParentID)
	assert.Equal(t, before.PrevID, after.PrevID)
}

func TestIndentAndOutdent(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "one")
	b := f.add(nil, "two")
	c := f.add(nil, "three")

	f.apply(Indent{UUID: b.UUID})
	indented := f.get(b.UUID)
	assert.Equal(t, store.Ref(a.UUID), indented.ParentID)
	assert.Nil(t, indented.PrevID)
	assert.Equal(t, store.Ref(a.UUID), f.get(c.UUID).PrevID)
	assert.Equal(t, []string{"one", "  two", "three"}, f.outline())

	f.apply(Outdent{UUID: b.UUID})
	restored := f.get(b.UUID)
	assert.Nil(t, restored.ParentID)
	assert.Equal(t, store.Ref(a.UUID), restored.PrevID)
	assert.Equal(t, store.Ref(b.UUID), f.get(c.UUID).PrevID)
	assert.Equal(t, []string{"one", "two", "three"}, f.outline())
}

func TestIndentAppendsAfterExistingChildren(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	a1 := f.add(&a, "a1")
	a2 := f.add(&a, "a2")
	b := f.add(nil, "b")

	f.apply(Indent{UUID: b.UUID})
	assert.Equal(t, []string{"a", "  a1", "  a2", "  b"}, f.outline())
	assert.Equal(t, store.Ref(a2.UUID), f.get(b.UUID).PrevID)

	f.apply(Outdent{UUID: b.UUID})
	assert.Equal(t, []string{"a", "  a1", "  a2", "b"}, f.outline())
	assert.Equal(t, store.Ref(a1.UUID), f.get(a2.UUID).PrevID)
}

func TestIndentOutdentBoundaries(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")

	assert.ErrorIs(t, f.applyErr(Indent{UUID: a.UUID}), ErrBoundary)
	assert.ErrorIs(t, f.applyErr(Outdent{UUID: a.UUID}), ErrBoundary)
}

func TestOutdentKeepsParentsNextSibling(t *testing.T) {
	f := newFixture(t)
	p := f.add(nil, "p")
	x := f.add(&p, "x")
	y := f.add(&p, "y")
	q := f.add(nil, "q")

	f.apply(Outdent{UUID: x.UUID})
	assert.Equal(t, []string{"p", "  y", "x", "q"}, f.outline())
	assert.Nil(t, f.get(y.UUID).PrevID)
	assert.Equal(t, store.Ref(x.UUID), f.get(q.UUID).PrevID)
}

func TestMove(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")
	c := f.add(nil, "c")
	b1 := f.add(&b, "b1")

	f.apply(Move{UUID: a.UUID, ParentID: store.Ref(b.UUID), PrevID: store.Ref(b1.UUID)})
	assert.Equal(t, []string{"b", "  b1", "  a", "c"}, f.outline())

	f.apply(Move{UUID: c.UUID, ParentID: store.Ref(b.UUID)})
	assert.Equal(t, []string{"b", "  c", "  b1", "  a"}, f.outline())

	f.apply(Move{UUID: b1.UUID})
	assert.Equal(t, []string{"b1", "b", "  c", "  a"}, f.outline())
}

func TestMoveAfterOwnFollower(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")
	f.add(nil, "c")

	f.apply(Move{UUID: a.UUID, PrevID: store.Ref(b.UUID)})
	assert.Equal(t, []string{"b", "a", "c"}, f.outline())
}

func TestMoveIntoEmptyGroup(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")

	result := f.apply(Move{UUID: b.UUID, ParentID: store.Ref(a.UUID)})
	assert.Equal(t, []string{"a", "  b"}, f.outline())
	require.Len(t, result.Moved, 1)
	assert.Equal(t, b.UUID, result.Moved[0].UUID)
}

func TestMoveRejectsCyclesAndBadTargets(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	a1 := f.add(&a, "a1")
	a11 := f.add(&a1, "a11")
	b := f.add(nil, "b")

	assert.ErrorIs(t, f.applyErr(Move{UUID: a.UUID, ParentID: store.Ref(a.UUID)}), ErrCycle)
	assert.ErrorIs(t, f.applyErr(Move{UUID: a.UUID, ParentID: store.Ref(a11.UUID)}), ErrCycle)
	assert.ErrorIs(t, f.applyErr(Move{UUID: a.UUID, ParentID: store.Ref(a1.UUID), PrevID: store.Ref(a11.UUID)}), ErrCycle)
	assert.ErrorIs(t, f.applyErr(Move{UUID: b.UUID, PrevID: store.Ref(a1.UUID)}), ErrValidation)
	assert.ErrorIs(t, f.applyErr(Move{UUID: b.UUID, PrevID: store.Ref(b.UUID)}), ErrValidation)
}

func TestMoveToCurrentPlaceIsEmpty(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")

	result := f.apply(Move{UUID: b.UUID, PrevID: store.Ref(a.UUID)})
	assert.True(t, result.Empty())
	assert.Equal(t, b.Version, f.get(b.UUID).Version)
}

func TestMergePrevFoldsContentAndChildren(t *testing.T) {
	f := newFixture(t)
	foo := f.add(nil, "foo")
	existing := f.add(&foo, "existing")
	bar := f.add(nil, "bar")
	baz := f.add(&bar, "baz")
	after := f.add(nil, "after")

	result := f.apply(MergePrev{UUID: bar.UUID})

	assert.Equal(t, []string{bar.UUID}, result.Deleted)
	assert.Equal(t, "foobar", f.get(foo.UUID).Content)
	moved := f.get(baz.UUID)
	assert.Equal(t, store.Ref(foo.UUID), moved.ParentID)
	assert.Equal(t, store.Ref(existing.UUID), moved.PrevID)
	assert.Equal(t, store.Ref(foo.UUID), f.get(after.UUID).PrevID)
	assert.Equal(t, []string{"foobar", "  existing", "  baz", "after"}, f.outline())

	_, err := f.store.Get(f.ctx, bar.UUID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMergeMovesWholeChildChain(t *testing.T) {
	f := newFixture(t)
	foo := f.add(nil, "foo")
	bar := f.add(nil, "bar")
	c1 := f.add(&bar, "c1")
	f.add(&bar, "c2")
	f.add(&c1, "grandchild")

	result := f.apply(MergePrev{UUID: bar.UUID})
	assert.Equal(t, []string{"foobar", "  c1", "    grandchild", "  c2"}, f.outline())
	assert.Nil(t, f.get(c1.UUID).PrevID)
	for _, pos := range result.Moved {
		assert.NotEqual(t, "grandchild", f.get(pos.UUID).Content, "grandchildren keep their links")
	}
	assert.Equal(t, store.Ref(foo.UUID), f.get(c1.UUID).ParentID)
}

func TestMergeNextKeepsTextOrder(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "left ")
	b := f.add(nil, "right")
	b1 := f.add(&b, "kid")
	c := f.add(nil, "c")

	result := f.apply(MergeNext{UUID: a.UUID})
	assert.Equal(t, []string{b.UUID}, result.Deleted)
	assert.Equal(t, []string{"left right", "  kid", "c"}, f.outline())
	assert.Equal(t, store.Ref(a.UUID), f.get(b1.UUID).ParentID)
	assert.Equal(t, store.Ref(a.UUID), f.get(c.UUID).PrevID)
}

func TestMergeAtEdgesIsBoundary(t *testing.T) {
	f := newFixture(t)
	a := f.add(nil, "a")
	b := f.add(nil, "b")
	child := f.add(&a, "only child")

	assert.ErrorIs(t, f.applyErr(MergePrev{UUID: a.UUID}), ErrBoundary)
	assert.ErrorIs(t, f.applyErr(MergeNext{UUID: b.UUID}), ErrBoundary)
	assert.ErrorIs(t, f.applyErr(MergePrev{UUID: child.UUID}), ErrBoundary)
	assert.ErrorIs(t, f.applyErr(MergeNext{UUID: child.UUID}), ErrBoundary)
}

func TestNodesFromAnotherContainerAreNotFound(t *testing.T) {
	f := newFixture(t)
	other, err := f.engine.EnsureContainer(f.ctx, store.OwnerShow, "show-9")
	require.NoError(t, err)
	result, err := f.engine.Apply(f.ctx, other.ID, "user-2", Insert{Content: "elsewhere"})
	require.NoError(t, err)

	err = f.applyErr(MoveUp{UUID: result.Created.UUID})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Apply(f.ctx, "missing-container", "user-1", Insert{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyValidatesBeforeTouchingStore(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Apply(f.ctx, f.container.ID, "user-1", MoveUp{})
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindValidation, oe.Kind)
	assert.Equal(t, "move_up", oe.Op)

	_, err = f.engine.Apply(f.ctx, f.container.ID, "user-1", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOnCommitSeesOnlyCommittedChanges(t *testing.T) {
	f := newFixture(t)
	var seen []Result
	f.engine.OnCommit(func(_ context.Context, result Result) {
		seen = append(seen, result)
	})

	a := f.add(nil, "a")
	f.applyErr(MoveUp{UUID: a.UUID})
	f.apply(UpdateContent{UUID: a.UUID, Content: "a"})

	require.Len(t, seen, 1)
	assert.Equal(t, "insert_after", seen[0].Op)
}

// staleStore hands out one old version of a node per transaction, as if
// another session committed between the read and the write.
type staleStore struct {
	*store.NodeStore
	uuid  string
	stale int
}

func (s *staleStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.NodeStore.WithTx(ctx, func(tx store.Tx) error {
		if s.stale > 0 {
			s.stale--
			return fn(staleTx{Tx: tx, uuid: s.uuid})
		}
		return fn(tx)
	})
}

type staleTx struct {
	store.Tx
	uuid string
}

func (t staleTx) GetNode(ctx context.Context, uuid string) (store.Node, error) {
	item, err := t.Tx.GetNode(ctx, uuid)
	if err == nil && uuid == t.uuid {
		item.Version--
	}
	return item, err
}

func TestStaleReadFailsWithConflict(t *testing.T) {
	f := newFixture(t)
	f.add(nil, "a")
	b := f.add(nil, "b")
	f.apply(UpdateContent{UUID: b.UUID, Content: "bb"})

	stale := &staleStore{NodeStore: f.store, uuid: b.UUID, stale: 1}
	engine := NewEngine(stale)
	_, err := engine.Apply(f.ctx, f.container.ID, "user-1", MoveUp{UUID: b.UUID})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, []string{"a", "bb"}, f.outline())

	stale.stale = 1
	retrying := NewEngine(stale, WithRetries(2))
	_, err = retrying.Apply(f.ctx, f.container.ID, "user-1", MoveUp{UUID: b.UUID})
	require.NoError(t, err)
	assert.Equal(t, []string{"bb", "a"}, f.outline())
}

func TestConcurrentDisjointMergesBothCommit(t *testing.T) {
	f := newFixture(t)
	nodes := map[string]store.Node{}
	for _, content := range []string{"A", "B", "C", "D", "E", "F"} {
		nodes[content] = f.add(nil, content)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, target := range []string{"B", "E"} {
		wg.Add(1)
		go func(i int, uuid string) {
			defer wg.Done()
			_, errs[i] = f.engine.Apply(f.ctx, f.container.ID, "user-1", MergePrev{UUID: uuid})
		}(i, nodes[target].UUID)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	f.assertValid()
	assert.Equal(t, []string{"AB", "C", "DE", "F"}, f.outline())
}

func TestConcurrentOverlappingOperationsStayConsistent(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, content := range []string{"A", "B", "C", "D"} {
		ids = append(ids, f.add(nil, content).UUID)
	}

	ops := []Operation{
		MergePrev{UUID: ids[1]},
		MergeNext{UUID: ids[1]},
		MoveUp{UUID: ids[2]},
		Indent{UUID: ids[3]},
	}
	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func(op Operation) {
			defer wg.Done()
			_, err := f.engine.Apply(f.ctx, f.container.ID, "user-1", op)
			if err != nil && KindOf(err) == "" {
				t.Errorf("%s: unexpected error %v", op.Name(), err)
			}
		}(op)
	}
	wg.Wait()
	f.assertValid()
}

// deepChain builds depth nested nodes and returns them top down.
func (f *fixture) deepChain(depth int) []store.Node {
	f.t.Helper()
	chain := make([]store.Node, 0, depth)
	var parent *store.Node
	for i := 0; i < depth; i++ {
		item := f.add(parent, fmt.Sprintf("L%d", i+1))
		chain = append(chain, item)
		parent = &chain[len(chain)-1]
	}
	return chain
}

func versionsOf(nodes []store.Node) map[string]int64 {
	versions := make(map[string]int64, len(nodes))
	for _, item := range nodes {
		versions[item.UUID] = item.Version
	}
	return versions
}

func bumped(before, after []store.Node) []string {
	old := versionsOf(before)
	var out []string
	for _, item := range after {
		if version, ok := old[item.UUID]; ok && version != item.Version {
			out = append(out, item.UUID)
		}
	}
	return out
}

func TestDeepIndentWritesOnlyNeighbours(t *testing.T) {
	f := newFixture(t)
	chain := f.deepChain(9)
	x := f.add(&chain[8], "x")
	y := f.add(&chain[8], "y")

	before := f.snapshot()
	require.Len(t, before, 11)
	f.apply(Indent{UUID: y.UUID})

	changed := bumped(before, f.snapshot())
	assert.ElementsMatch(t, []string{x.UUID, y.UUID}, changed)
	versions := versionsOf(before)
	for _, ancestor := range chain {
		assert.Equal(t, versions[ancestor.UUID], f.get(ancestor.UUID).Version, "ancestor %s was written", ancestor.Content)
	}
}

func TestDeepMoveKeepsAncestorsReadOnly(t *testing.T) {
	f := newFixture(t)
	chain := f.deepChain(9)
	loose := f.add(nil, "loose")

	before := f.snapshot()
	f.apply(Move{UUID: loose.UUID, ParentID: store.Ref(chain[8].UUID)})

	// The target group was empty, so its parent is the one guarded row.
	changed := bumped(before, f.snapshot())
	assert.ElementsMatch(t, []string{loose.UUID, chain[8].UUID}, changed)
	assert.LessOrEqual(t, len(changed), 4)

	err := f.applyErr(Move{UUID: chain[0].UUID, ParentID: store.Ref(loose.UUID)})
	assert.ErrorIs(t, err, ErrCycle)
}

func TestResultSeqFollowsCommitOrder(t *testing.T) {
	f := newFixture(t)
	first := f.apply(Insert{Content: "a"})
	second := f.apply(Insert{AnchorID: &first.Created.UUID, Content: "b"})
	noop := f.apply(UpdateContent{UUID: first.Created.UUID, Content: "a"})
	third := f.apply(MergeNext{UUID: first.Created.UUID})

	assert.Equal(t, first.Seq+1, second.Seq)
	assert.Zero(t, noop.Seq)
	assert.Equal(t, second.Seq+1, third.Seq)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindCycle, KindOf(newError(KindCycle, "loop")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.True(t, errors.Is(translate("move", store.ErrConflict), ErrConflict))
	assert.False(t, errors.Is(ErrConflict, ErrNotFound))
}
