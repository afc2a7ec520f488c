package outline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"podnotes/api/internal/store"
)

// Store is the part of the node store the engine depends on.
type Store interface {
	WithTx(ctx context.Context, fn func(store.Tx) error) error
	ListNodes(ctx context.Context, containerID string) ([]store.Node, error)
	CreateContainer(ctx context.Context, ownerType, ownerID string) (store.Container, error)
	GetContainer(ctx context.Context, id string) (store.Container, error)
}

// CommitFunc observes every committed, non-empty result.
type CommitFunc func(ctx context.Context, result Result)

// Engine applies outline operations to containers held in a Store.
type Engine struct {
	store   Store
	retries int
	log     zerolog.Logger

	mu        sync.RWMutex
	observers []CommitFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetries retries an operation that lost a race up to n more times.
func WithRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.retries = n
		}
	}
}

// WithLogger sets the logger for retries and rejected operations.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

// NewEngine returns an engine over st that does not retry by default.
func NewEngine(st Store, opts ...Option) *Engine {
	e := &Engine{store: st, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnCommit registers fn to run after each committed operation.
func (e *Engine) OnCommit(fn CommitFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// EnsureContainer returns the container anchored to the owner, creating it
// on first use.
func (e *Engine) EnsureContainer(ctx context.Context, ownerType, ownerID string) (store.Container, error) {
	container, err := e.store.CreateContainer(ctx, ownerType, ownerID)
	if err != nil {
		return store.Container{}, translate("ensure_container", err)
	}
	return container, nil
}

// Snapshot returns the container's nodes in document order.
func (e *Engine) Snapshot(ctx context.Context, containerID string) ([]store.Node, error) {
	nodes, err := e.store.ListNodes(ctx, containerID)
	if err != nil {
		return nil, translate("snapshot", err)
	}
	return nodes, nil
}

// Apply runs op against the container in a single transaction. On failure
// nothing is written and the returned error is an *Error (or a context
// error).
func (e *Engine) Apply(ctx context.Context, containerID, actor string, op Operation) (Result, error) {
	if op == nil {
		return Result{}, validationf("operation is required")
	}
	if err := validate(op); err != nil {
		err.Op = op.Name()
		return Result{}, err
	}

	for attempt := 0; ; attempt++ {
		result, err := e.apply(ctx, containerID, actor, op)
		if err == nil {
			if !result.Empty() {
				e.notify(ctx, result)
			}
			return result, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= e.retries || ctx.Err() != nil {
			e.log.Debug().Err(err).Str("op", op.Name()).Str("container_id", containerID).Msg("operation rejected")
			return Result{}, err
		}
		e.log.Debug().Int("attempt", attempt+1).Str("op", op.Name()).Str("container_id", containerID).Msg("retrying after conflict")
	}
}

func (e *Engine) apply(ctx context.Context, containerID, actor string, op Operation) (Result, error) {
	var result Result
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		container, err := tx.GetContainer(ctx, containerID)
		if err != nil {
			return err
		}
		a := newArena(ctx, tx, container)
		if err := a.dispatch(op, actor); err != nil {
			return err
		}
		result, err = a.flush(op.Name())
		return err
	})
	if err != nil {
		return Result{}, translate(op.Name(), err)
	}
	return result, nil
}

func (a *arena) dispatch(op Operation, actor string) error {
	switch v := op.(type) {
	case Insert:
		return a.insert(v, actor)
	case UpdateContent:
		return a.updateContent(v)
	case MoveUp:
		return a.moveUp(v)
	case MoveDown:
		return a.moveDown(v)
	case Indent:
		return a.indent(v)
	case Outdent:
		return a.outdent(v)
	case Move:
		return a.move(v)
	case MergePrev:
		return a.mergePrev(v)
	case MergeNext:
		return a.mergeNext(v)
	default:
		return fmt.Errorf("unsupported operation %T", op)
	}
}

func (e *Engine) notify(ctx context.Context, result Result) {
	e.mu.RLock()
	observers := append([]CommitFunc(nil), e.observers...)
	e.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, result)
	}
}
