package datadiff_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/schema"
)

// openDB creates an empty sqlite file database and runs stmts on it.
func openDB(t *testing.T, name string, stmts ...string) *dbconn.Conn {
	t.Helper()
	cfg := &dbconn.Config{Name: name, Driver: "sqlite", DSN: filepath.Join(t.TempDir(), name+".db")}
	c, err := dbconn.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	exec(t, c, stmts...)
	return c
}

func exec(t *testing.T, c *dbconn.Conn, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := c.DB().Exec(s)
		require.NoError(t, err, s)
	}
	c.Refresh()
}

// collector keeps statements in memory, rendered for the target dialect.
type collector struct {
	conn  *dbconn.Conn
	stmts []*datadiff.Statement
	sql   []string
	after func(n int)
}

func (c *collector) Write(stmt *datadiff.Statement) error {
	c.stmts = append(c.stmts, stmt)
	c.sql = append(c.sql, stmt.SQL(c.conn.Dialect()))
	if c.after != nil {
		c.after(len(c.stmts))
	}
	return nil
}

type env struct {
	ref, tgt *dbconn.Conn
	keys     *datadiff.KeyResolver
	f        *datadiff.Formatter
	opts     datadiff.Options
}

func newEnv(t *testing.T, ref, tgt *dbconn.Conn) *env {
	t.Helper()
	f, err := datadiff.NewFormatter(tgt.Dialect(), datadiff.BlobBinary, "")
	require.NoError(t, err)
	return &env{ref: ref, tgt: tgt, keys: datadiff.NewKeyResolver(nil, nil, false), f: f}
}

func (e *env) diff(t *testing.T, table string) (*datadiff.Differ, *collector) {
	t.Helper()
	d := datadiff.NewDiffer(e.ref, e.tgt, e.keys, e.f, e.opts, nil)
	status, err := d.SetTables(context.Background(), id(table), id(table))
	require.NoError(t, err)
	require.Equal(t, datadiff.StatusOK, status, d.Message())
	w := &collector{conn: e.tgt}
	require.NoError(t, d.DoSync(context.Background(), w))
	return d, w
}

func (e *env) deletes(t *testing.T, table string) (*datadiff.DeleteSynchronizer, *collector) {
	t.Helper()
	s := datadiff.NewDeleteSynchronizer(e.ref, e.tgt, e.keys, e.f, e.opts, nil)
	status, err := s.SetTables(context.Background(), id(table), id(table))
	require.NoError(t, err)
	require.Equal(t, datadiff.StatusOK, status, s.Message())
	w := &collector{conn: e.tgt}
	require.NoError(t, s.DoSync(context.Background(), w))
	return s, w
}

func id(name string) schema.TableIdentifier {
	return schema.TableIdentifier{Name: name}
}
