// Package store implements the StoreGateway: the single point of SQL
// execution over an embedded relational engine (modernc.org/sqlite), with
// per-table change capture that turns INSERT/UPDATE/DELETE into canonical
// (action, old, new) tuples for the ivm package to propagate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/kasuganosora/reactivesql/pkg/config"
	_ "modernc.org/sqlite"
)

// CaptureMode selects how the gateway turns mutations into change events.
type CaptureMode string

const (
	CaptureTrigger   CaptureMode = "trigger"
	CaptureSynthesis CaptureMode = "synthesis"
)

type tableMeta struct {
	columns     []ColumnDef
	shadowReady bool
}

// Gateway wraps a single embedded SQL connection. All mutation methods
// serialise under one re-entrant lock: a listener invoked during
// propagation may call back into Insert/Update/Delete on the same
// goroutine without deadlocking.
type Gateway struct {
	db   *sql.DB
	lock *reentrantLock
	mode CaptureMode

	mu        sync.RWMutex
	tables    map[string]*tableMeta
	callbacks map[string][]ChangeCallback
}

// NewGateway opens cfg.Database.DSN against the embedded engine and
// applies the required engine PRAGMAs.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	mode := CaptureMode(cfg.Gateway.ChangeCapture)
	switch mode {
	case CaptureTrigger, CaptureSynthesis:
	default:
		return nil, ErrUnknownCaptureMode(cfg.Gateway.ChangeCapture)
	}

	db, err := sql.Open("sqlite", cfg.Database.DSN)
	if err != nil {
		return nil, ErrEngine("open", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, ErrEngine("pragma", err)
		}
	}

	return &Gateway{
		db:        db,
		lock:      newReentrantLock(),
		mode:      mode,
		tables:    make(map[string]*tableMeta),
		callbacks: make(map[string][]ChangeCallback),
	}, nil
}

// Close releases the underlying connection.
func (g *Gateway) Close() error { return g.db.Close() }

// Mode reports the active change-capture strategy.
func (g *Gateway) Mode() CaptureMode { return g.mode }

// Subscribe registers cb to be invoked for every captured mutation of
// table, returning an unsubscribe function.
func (g *Gateway) Subscribe(table string, cb ChangeCallback) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks[table] = append(g.callbacks[table], cb)
	idx := len(g.callbacks[table]) - 1
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		cbs := g.callbacks[table]
		if idx < len(cbs) {
			cbs[idx] = nil
		}
	}
}

func (g *Gateway) dispatch(table string, action Action, old, new Values) {
	g.mu.RLock()
	cbs := append([]ChangeCallback(nil), g.callbacks[table]...)
	g.mu.RUnlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(table, action, old, new)
		}
	}
}

// Execute runs a general read query and returns materialised rows as
// ordered Values in column order, plus the column order itself.
func (g *Gateway) Execute(ctx context.Context, query string, args ...any) ([]Values, []string, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.queryLocked(ctx, query, args...)
}

func (g *Gateway) queryLocked(ctx context.Context, query string, args ...any) ([]Values, []string, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, ErrEngine("query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, ErrEngine("columns", err)
	}

	var result []Values
	for rows.Next() {
		scanDest := make([]any, len(cols))
		scanPtrs := make([]any, len(cols))
		for i := range scanDest {
			scanPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, nil, ErrEngine("scan", err)
		}
		v := make(Values, len(cols))
		for i, c := range cols {
			v[c] = scanDest[i]
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, ErrEngine("rows", err)
	}
	return result, cols, nil
}

// FetchAll is an alias for Execute kept for symmetry with FetchOne.
func (g *Gateway) FetchAll(ctx context.Context, query string, args ...any) ([]Values, []string, error) {
	return g.Execute(ctx, query, args...)
}

// FetchOne returns the first row of query, or nil if there are none.
func (g *Gateway) FetchOne(ctx context.Context, query string, args ...any) (Values, []string, error) {
	rows, cols, err := g.Execute(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, cols, nil
	}
	return rows[0], cols, nil
}

// ExecDDL runs a schema statement (CREATE/ALTER TABLE, trigger definitions)
// outside of the mutation/capture path.
func (g *Gateway) ExecDDL(ctx context.Context, stmt string) error {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, err := g.db.ExecContext(ctx, stmt); err != nil {
		return ErrEngine("ddl", err)
	}
	return nil
}

// TableExists reports whether a physical table with this name exists.
func (g *Gateway) TableExists(ctx context.Context, table string) (bool, error) {
	rows, _, err := g.Execute(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ColumnInfo reports the physical columns of table via PRAGMA table_info.
func (g *Gateway) ColumnInfo(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, _, err := g.Execute(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	infos := make([]ColumnInfo, 0, len(rows))
	for _, r := range rows {
		name, _ := r["name"].(string)
		typ, _ := r["type"].(string)
		notNull := asInt64(r["notnull"]) != 0
		infos = append(infos, ColumnInfo{Name: name, SQLType: strings.ToUpper(typ), NotNull: notNull})
	}
	return infos, nil
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
