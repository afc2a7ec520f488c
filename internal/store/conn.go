package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the node and container queries against a pool or a transaction.
type conn struct {
	q       queryer
	dialect Dialect
	now     func() time.Time
}

const nodeColumns = `uuid, container_id, parent_id, prev_id, content, creator_id, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var (
		item      Node
		parentID  sql.NullString
		prevID    sql.NullString
		creatorID sql.NullString
	)
	err := row.Scan(
		&item.UUID,
		&item.ContainerID,
		&parentID,
		&prevID,
		&item.Content,
		&creatorID,
		&item.Version,
		scanTime{&item.CreatedAt},
		scanTime{&item.UpdatedAt},
	)
	if err != nil {
		return Node{}, err
	}
	item.ParentID = fromNull(parentID)
	item.PrevID = fromNull(prevID)
	item.CreatorID = fromNull(creatorID)
	return item, nil
}

func fromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return Ref(value.String)
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.Rebind(query), args...)
}

func (c conn) queryNodes(ctx context.Context, query string, args ...any) ([]Node, error) {
	rows, err := c.q.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify(fmt.Errorf("query nodes: %w", err))
	}
	defer rows.Close()

	items := make([]Node, 0)
	for rows.Next() {
		item, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return items, nil
}

func (c conn) getNode(ctx context.Context, uuid string) (Node, error) {
	row := c.q.QueryRowContext(ctx, c.dialect.Rebind(`SELECT `+nodeColumns+` FROM nodes WHERE uuid=?`), uuid)
	item, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("node %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return Node{}, classify(fmt.Errorf("get node: %w", err))
	}
	return item, nil
}

// shareNode reads a node without claiming it for writing. On Postgres the
// row is share-locked until commit: concurrent readers proceed, a concurrent
// writer waits.
func (c conn) shareNode(ctx context.Context, uuid string) (Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE uuid=?`
	if c.dialect.numbered {
		query += ` FOR SHARE`
	}
	item, err := scanNode(c.q.QueryRowContext(ctx, c.dialect.Rebind(query), uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("node %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return Node{}, classify(fmt.Errorf("share node: %w", err))
	}
	return item, nil
}

func (c conn) getContainer(ctx context.Context, id string) (Container, error) {
	var item Container
	err := c.q.QueryRowContext(ctx, c.dialect.Rebind(`
		SELECT id, owner_type, owner_id, version, created_at
		FROM containers
		WHERE id=?
	`), id).Scan(&item.ID, &item.OwnerType, &item.OwnerID, &item.Version, scanTime{&item.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, fmt.Errorf("container %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Container{}, classify(fmt.Errorf("get container: %w", err))
	}
	return item, nil
}

func (c conn) containerFor(ctx context.Context, ownerType, ownerID string) (Container, error) {
	var item Container
	err := c.q.QueryRowContext(ctx, c.dialect.Rebind(`
		SELECT id, owner_type, owner_id, version, created_at
		FROM containers
		WHERE owner_type=? AND owner_id=?
	`), ownerType, ownerID).Scan(&item.ID, &item.OwnerType, &item.OwnerID, &item.Version, scanTime{&item.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, fmt.Errorf("container for %s %s: %w", ownerType, ownerID, ErrNotFound)
	}
	if err != nil {
		return Container{}, classify(fmt.Errorf("lookup container: %w", err))
	}
	return item, nil
}

func (c conn) childrenOf(ctx context.Context, containerID string, parentID *string) ([]Node, error) {
	clause, args := parentClause(parentID)
	items, err := c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE container_id=? AND `+clause, append([]any{containerID}, args...)...)
	if err != nil {
		return nil, err
	}
	return OrderChain(items), nil
}

func (c conn) listNodes(ctx context.Context, containerID string) ([]Node, error) {
	items, err := c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE container_id=?`, containerID)
	if err != nil {
		return nil, err
	}
	return OrderTree(items), nil
}

func (c conn) insertNode(ctx context.Context, item Node) error {
	now := c.now()
	_, err := c.exec(ctx, `
		INSERT INTO nodes (uuid, container_id, parent_id, prev_id, content, creator_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.UUID, item.ContainerID, nullable(item.ParentID), nullable(item.PrevID), item.Content, nullable(item.CreatorID), item.Version, c.dialect.timeArg(now), c.dialect.timeArg(now))
	if err != nil {
		return classify(fmt.Errorf("insert node: %w", err))
	}
	return nil
}

// checked runs a version-guarded statement; zero affected rows means a
// concurrent transaction got there first.
func (c conn) checked(ctx context.Context, what, uuid string, query string, args ...any) error {
	result, err := c.exec(ctx, query, args...)
	if err != nil {
		return classify(fmt.Errorf("%s: %w", what, err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: stale version: %w", what, uuid, ErrConflict)
	}
	return nil
}

func (c conn) updatePosition(ctx context.Context, uuid string, parentID, prevID *string, version int64) error {
	return c.checked(ctx, "update position", uuid, `
		UPDATE nodes
		SET parent_id=?, prev_id=?, version=version+1, updated_at=?
		WHERE uuid=? AND version=?
	`, nullable(parentID), nullable(prevID), c.dialect.timeArg(c.now()), uuid, version)
}

func (c conn) touch(ctx context.Context, uuid string, version int64) error {
	return c.checked(ctx, "touch node", uuid, `
		UPDATE nodes SET version=version+1 WHERE uuid=? AND version=?
	`, uuid, version)
}

func (c conn) deleteNode(ctx context.Context, uuid string, version int64) error {
	return c.checked(ctx, "delete node", uuid, `DELETE FROM nodes WHERE uuid=? AND version=?`, uuid, version)
}

func (c conn) touchContainer(ctx context.Context, id string, version int64) error {
	return c.checked(ctx, "touch container", id, `
		UPDATE containers SET version=version+1 WHERE id=? AND version=?
	`, id, version)
}

// nextSeq bumps the container's commit sequence. The row stays locked until
// the transaction ends, so sequence order is commit order.
func (c conn) nextSeq(ctx context.Context, id string) (int64, error) {
	var seq int64
	err := c.q.QueryRowContext(ctx, c.dialect.Rebind(`
		UPDATE containers SET seq=seq+1 WHERE id=? RETURNING seq
	`), id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("container %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, classify(fmt.Errorf("next seq: %w", err))
	}
	return seq, nil
}

// setContent replaces the text unconditionally (last write wins) and
// returns the node's new version.
func (c conn) setContent(ctx context.Context, uuid, content string) (int64, error) {
	var version int64
	err := c.q.QueryRowContext(ctx, c.dialect.Rebind(`
		UPDATE nodes
		SET content=?, version=version+1, updated_at=?
		WHERE uuid=?
		RETURNING version
	`), content, c.dialect.timeArg(c.now()), uuid).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("node %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return 0, classify(fmt.Errorf("set content: %w", err))
	}
	return version, nil
}

func (c conn) nextSiblings(ctx context.Context, uuid string) ([]Node, error) {
	return c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE prev_id=?`, uuid)
}

func (c conn) firstChildren(ctx context.Context, containerID string, parentID *string) ([]Node, error) {
	clause, args := parentClause(parentID)
	return c.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE container_id=? AND prev_id IS NULL AND `+clause, append([]any{containerID}, args...)...)
}

func (c conn) lastChild(ctx context.Context, containerID string, parentID *string) (*Node, error) {
	clause, args := parentClause(parentID)
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes n
		WHERE container_id=? AND ` + clause + `
		  AND NOT EXISTS (SELECT 1 FROM nodes f WHERE f.prev_id = n.uuid)
	`
	items, err := c.queryNodes(ctx, query, append([]any{containerID}, args...)...)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (c conn) countNodes(ctx context.Context, containerID string) (int, error) {
	var count int
	err := c.q.QueryRowContext(ctx, c.dialect.Rebind(`SELECT COUNT(1) FROM nodes WHERE container_id=?`), containerID).Scan(&count)
	if err != nil {
		return 0, classify(fmt.Errorf("count nodes: %w", err))
	}
	return count, nil
}

func (c conn) referencedBy(ctx context.Context, uuid string) (int, error) {
	var count int
	err := c.q.QueryRowContext(ctx, c.dialect.Rebind(`SELECT COUNT(1) FROM nodes WHERE parent_id=? OR prev_id=?`), uuid, uuid).Scan(&count)
	if err != nil {
		return 0, classify(fmt.Errorf("count references: %w", err))
	}
	return count, nil
}
