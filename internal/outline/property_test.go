package outline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"podnotes/api/internal/store"
)

// randomOperation picks an operation against a random existing node.
func randomOperation(rng *rand.Rand, nodes []store.Node) Operation {
	if len(nodes) == 0 {
		return Insert{Content: "seed"}
	}
	target := nodes[rng.Intn(len(nodes))]
	other := nodes[rng.Intn(len(nodes))]
	switch rng.Intn(10) {
	case 0:
		return Insert{AnchorID: store.Ref(target.UUID), ParentID: target.ParentID, Content: "n"}
	case 1:
		at := rng.Intn(len([]rune(target.Content)) + 1)
		return Insert{AnchorID: store.Ref(target.UUID), ParentID: target.ParentID, SplitAt: &at}
	case 2:
		return UpdateContent{UUID: target.UUID, Content: target.Content + "+"}
	case 3:
		return MoveUp{UUID: target.UUID}
	case 4:
		return MoveDown{UUID: target.UUID}
	case 5:
		return Indent{UUID: target.UUID}
	case 6:
		return Outdent{UUID: target.UUID}
	case 7:
		if rng.Intn(2) == 0 {
			return Move{UUID: target.UUID, ParentID: store.Ref(other.UUID)}
		}
		return Move{UUID: target.UUID, ParentID: other.ParentID, PrevID: store.Ref(other.UUID)}
	case 8:
		return MergePrev{UUID: target.UUID}
	default:
		return MergeNext{UUID: target.UUID}
	}
}

func TestRandomOperationSequencesKeepInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping randomized sequence in short mode")
	}
	for _, seed := range []int64{1, 7, 42} {
		f := newFixture(t)
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < 5; i++ {
			f.add(nil, "root")
		}

		for step := 0; step < 150; step++ {
			nodes := f.snapshot()
			op := randomOperation(rng, nodes)
			_, err := f.engine.Apply(f.ctx, f.container.ID, "user-1", op)
			if err != nil {
				switch KindOf(err) {
				case KindBoundary, KindCycle, KindValidation:
				default:
					t.Fatalf("seed %d step %d: %s failed: %v", seed, step, op.Name(), err)
				}
				require.Equal(t, nodes, f.snapshot(), "seed %d step %d: rejected %s changed the tree", seed, step, op.Name())
				continue
			}
			require.NoError(t, CheckInvariants(f.snapshot()), "seed %d step %d after %s", seed, step, op.Name())
		}
	}
}
