package ivm

import (
	"context"
	"testing"

	"github.com/kasuganosora/reactivesql/pkg/config"
	"github.com/kasuganosora/reactivesql/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, mode store.CaptureMode) *Database {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	cfg.Gateway.ChangeCapture = string(mode)
	gw, err := store.NewGateway(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })
	return NewDatabase(gw)
}

func mustTable(t *testing.T, db *Database, name string, cols []store.ColumnDef) *BaseTable {
	t.Helper()
	db.DeclareTable(name, cols)
	bt, err := db.Table(context.Background(), name)
	require.NoError(t, err)
	return bt
}

func playerCols() []store.ColumnDef {
	return []store.ColumnDef{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: store.TypeText},
		{Name: "score", Type: store.TypeInteger},
	}
}
