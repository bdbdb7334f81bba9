package xlsxsnap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/reactivesql/pkg/config"
	"github.com/kasuganosora/reactivesql/pkg/ivm"
	"github.com/kasuganosora/reactivesql/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setupPlayers(t *testing.T) *ivm.BaseTable {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	gw, err := store.NewGateway(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	db := ivm.NewDatabase(gw)
	db.DeclareTable("players", []store.ColumnDef{
		{Name: "id", Type: store.TypeInteger, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: store.TypeText},
		{Name: "score", Type: store.TypeInteger},
	})
	players, err := db.Table(context.Background(), "players")
	require.NoError(t, err)
	return players
}

func TestSnapshotWritesHeaderAndRows(t *testing.T) {
	ctx := context.Background()
	players := setupPlayers(t)
	require.NoError(t, players.Insert(ctx, store.Values{"name": "ada", "score": 10}, false))
	require.NoError(t, players.Insert(ctx, store.Values{"name": "grace", "score": 20}, false))

	path := filepath.Join(t.TempDir(), "players.xlsx")
	require.NoError(t, Snapshot(ctx, players, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Snapshot")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one line per row")
	assert.Equal(t, []string{"id", "name", "score"}, rows[0])
	assert.Equal(t, "ada", rows[1][1])
	assert.Equal(t, "grace", rows[2][1])
}

func TestLiveMirrorRefreshesOnChange(t *testing.T) {
	ctx := context.Background()
	players := setupPlayers(t)
	path := filepath.Join(t.TempDir(), "players.xlsx")

	var errs []error
	live, err := NewLive(ctx, players, path, func(e error) { errs = append(errs, e) })
	require.NoError(t, err)
	defer live.Close()

	require.NoError(t, players.Insert(ctx, store.Values{"name": "ada", "score": 10}, false))
	require.Empty(t, errs)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Snapshot")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[1][1])

	live.Close()
	require.NoError(t, players.Insert(ctx, store.Values{"name": "grace", "score": 20}, false))
	f2, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f2.Close()
	rows, err = f2.GetRows("Snapshot")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "a closed mirror stops refreshing")
}
