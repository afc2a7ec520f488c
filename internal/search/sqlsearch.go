package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"podnotes/api/internal/store"
)

// SQLSearch implements Searcher on the node store itself: PostgreSQL
// full-text search, or a LIKE scan on SQLite.
type SQLSearch struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewSQLSearch(db *sql.DB, dialect store.Dialect) *SQLSearch {
	return &SQLSearch{db: db, dialect: dialect}
}

// Healthy always returns true: if the database is down, the whole app is down.
func (s *SQLSearch) Healthy() bool {
	return true
}

func (s *SQLSearch) Search(q Query) ([]Result, int, error) {
	return s.SearchContext(context.Background(), q)
}

func (s *SQLSearch) SearchContext(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	var where, snippet string
	var args []any
	if s.dialect == store.Postgres {
		where = "to_tsvector('simple', content) @@ plainto_tsquery('simple', ?)"
		snippet = "ts_headline('simple', content, plainto_tsquery('simple', ?), 'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30')"
		args = append(args, text)
	} else {
		where = "content LIKE ? ESCAPE '\\'"
		snippet = "content"
		args = append(args, "%"+escapeLike(text)+"%")
	}
	if q.ContainerID != "" {
		where += " AND container_id = ?"
		args = append(args, q.ContainerID)
	}

	var total int
	countSQL := s.dialect.Rebind("SELECT count(*) FROM nodes WHERE " + where)
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	dataArgs := args
	order := "created_at, uuid"
	if s.dialect == store.Postgres {
		dataArgs = append([]any{text}, args...)
		order = "ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', ?)) DESC, uuid"
		dataArgs = append(dataArgs, text)
	}
	dataSQL := s.dialect.Rebind(fmt.Sprintf(`SELECT uuid, container_id, %s
		FROM nodes
		WHERE %s
		ORDER BY %s
		LIMIT %d OFFSET %d`, snippet, where, order, q.limit(), q.offset()))

	rows, err := s.db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.UUID, &r.ContainerID, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadRecords returns every node for full reindexing.
func (s *SQLSearch) LoadRecords(ctx context.Context) ([]NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, container_id, content FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	records := make([]NodeRecord, 0)
	for rows.Next() {
		var r NodeRecord
		if err := rows.Scan(&r.UUID, &r.ContainerID, &r.Content); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
