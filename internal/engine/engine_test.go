package engine_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/engine"
)

func openDB(t *testing.T, name string, stmts ...string) *dbconn.Conn {
	t.Helper()
	cfg := &dbconn.Config{Name: name, Driver: "sqlite", DSN: filepath.Join(t.TempDir(), name+".db")}
	c, err := dbconn.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	for _, s := range stmts {
		_, err := c.DB().Exec(s)
		require.NoError(t, err, s)
	}
	return c
}

func options(t *testing.T) engine.Options {
	return engine.Options{
		Format:            "sql",
		BlobMode:          "binary",
		BlobEncoding:      "utf-8",
		CheckDependencies: true,
		OutputDir:         t.TempDir(),
		BaseName:          "diff",
		IncludeDirective:  "@@",
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

type steps struct {
	total  int
	tables []string
}

func (s *steps) Start(total int)   { s.total = total }
func (s *steps) Step(table string) { s.tables = append(s.tables, table) }

func TestRun_InsertAndDelete(t *testing.T) {
	ref := openDB(t, "ref",
		`CREATE TABLE T (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO T VALUES (1, 'a'), (2, 'b')`)
	tgt := openDB(t, "tgt",
		`CREATE TABLE T (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO T VALUES (1, 'a'), (3, 'c')`)

	opts := options(t)
	opts.IncludeDelete = true
	progress := &steps{}
	res, err := engine.New(ref, tgt, opts, nil).WithProgress(progress).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StatusSuccess, res.Status, res.Messages)
	assert.Empty(t, res.Messages)
	require.Len(t, res.Tables, 1)
	tr := res.Tables[0]
	assert.Equal(t, datadiff.StatusOK, tr.Status)
	assert.Equal(t, datadiff.StateDone, tr.State)
	assert.Equal(t, datadiff.StateDone, tr.DeleteState)
	assert.Equal(t, datadiff.Stats{ReferenceRows: 2, TargetRows: 2, Inserts: 1, Deletes: 1}, tr.Stats)

	dir := opts.OutputDir
	assert.Equal(t, "INSERT INTO T (id, name) VALUES (2, 'b');\n", read(t, filepath.Join(dir, "T_$insert.sql")))
	assert.Equal(t, "DELETE FROM T WHERE id = 3;\n", read(t, filepath.Join(dir, "T_$delete.sql")))
	assert.NoFileExists(t, filepath.Join(dir, "T_$update.sql"))
	assert.Equal(t, `-- data diff: reference ref, target tgt
@@T_$insert.sql
@@T_$delete.sql
COMMIT;
`, read(t, res.MainFile))

	assert.Equal(t, 2, progress.total)
	assert.Equal(t, []string{"T", "T"}, progress.tables)
}

func TestRun_DependencyOrder(t *testing.T) {
	schemaSQL := []string{
		`CREATE TABLE CHILD (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES PARENT(id))`,
		`CREATE TABLE PARENT (id INTEGER PRIMARY KEY)`,
	}
	ref := openDB(t, "ref", append(schemaSQL,
		`INSERT INTO PARENT VALUES (1)`,
		`INSERT INTO CHILD VALUES (10, 1)`)...)
	tgt := openDB(t, "tgt", append(schemaSQL,
		`INSERT INTO PARENT VALUES (2)`,
		`INSERT INTO CHILD VALUES (20, 2)`)...)

	opts := options(t)
	opts.IncludeDelete = true
	res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.StatusSuccess, res.Status, res.Messages)

	assert.Equal(t, `-- data diff: reference ref, target tgt
@@PARENT_$insert.sql
@@CHILD_$insert.sql
@@CHILD_$delete.sql
@@PARENT_$delete.sql
COMMIT;
`, read(t, res.MainFile))
}

func TestRun_NoPrimaryKeyIsAWarning(t *testing.T) {
	ref := openDB(t, "ref",
		`CREATE TABLE loose (a INTEGER, b TEXT)`,
		`INSERT INTO loose VALUES (1, 'x')`,
		`CREATE TABLE keyed (id INTEGER PRIMARY KEY)`)
	tgt := openDB(t, "tgt",
		`CREATE TABLE loose (a INTEGER, b TEXT)`,
		`CREATE TABLE keyed (id INTEGER PRIMARY KEY)`)

	opts := options(t)
	opts.IncludeDelete = true
	res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StatusWarning, res.Status)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "no primary key")

	for _, kind := range []string{"insert", "update", "delete"} {
		assert.NoFileExists(t, filepath.Join(opts.OutputDir, "loose_$"+kind+".sql"))
	}
	main := read(t, res.MainFile)
	assert.Contains(t, main, "-- WARNING: ")
	assert.Contains(t, main, "-- keyed (insert, update): no changes needed")
	assert.NotContains(t, main, "COMMIT")
}

func TestRun_MissingTables(t *testing.T) {
	ref := openDB(t, "ref", `CREATE TABLE orders (id INTEGER PRIMARY KEY)`)
	tgt := openDB(t, "tgt", `CREATE TABLE items (id INTEGER PRIMARY KEY)`)

	opts := options(t)
	opts.Tables = []string{"orders", "items"}
	res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StatusWarning, res.Status)
	statuses := map[string]datadiff.Status{}
	for _, tr := range res.Tables {
		statuses[tr.Reference.Name] = tr.Status
	}
	assert.Equal(t, map[string]datadiff.Status{
		"orders": datadiff.StatusTargetNotFound,
		"items":  datadiff.StatusReferenceNotFound,
	}, statuses)
}

func TestRun_TableMapAndAlternateKey(t *testing.T) {
	ref := openDB(t, "ref",
		`CREATE TABLE codes (code TEXT, label TEXT)`,
		`INSERT INTO codes VALUES ('A', 'alpha'), ('B', 'beta')`)
	tgt := openDB(t, "tgt",
		`CREATE TABLE codes_v2 (code TEXT, label TEXT)`,
		`INSERT INTO codes_v2 VALUES ('A', 'ALPHA')`)

	opts := options(t)
	opts.TableMap = []string{"codes=codes_v2"}
	opts.AlternateKeys = []string{"codes_v2=code", "ghost=id"}
	res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StatusWarning, res.Status)
	assert.Equal(t, []string{"alternate key given for unknown table GHOST"}, res.Messages)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "codes_v2", res.Tables[0].Target.Name)
	assert.Equal(t,
		"INSERT INTO codes_v2 (code, label) VALUES ('B', 'beta');\n",
		read(t, filepath.Join(opts.OutputDir, "codes_v2_$insert.sql")))
	assert.Equal(t,
		"UPDATE codes_v2 SET label = 'alpha' WHERE code = 'A';\n",
		read(t, filepath.Join(opts.OutputDir, "codes_v2_$update.sql")))
}

func TestRun_TableMapClaimsExistingTarget(t *testing.T) {
	ref := openDB(t, "ref",
		`CREATE TABLE A (id INTEGER PRIMARY KEY, src TEXT)`,
		`CREATE TABLE B (id INTEGER PRIMARY KEY, src TEXT)`,
		`INSERT INTO A VALUES (1, 'from-a')`,
		`INSERT INTO B VALUES (2, 'from-b')`)
	tgt := openDB(t, "tgt",
		`CREATE TABLE B (id INTEGER PRIMARY KEY, src TEXT)`)

	for _, check := range []bool{true, false} {
		t.Run(fmt.Sprintf("check dependencies %v", check), func(t *testing.T) {
			opts := options(t)
			opts.CheckDependencies = check
			opts.TableMap = []string{"A=B"}
			res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, engine.StatusWarning, res.Status)
			assert.Equal(t, []string{"table B is not compared: target table B is already mapped from A"}, res.Messages)
			require.Len(t, res.Tables, 1)
			assert.Equal(t, "A", res.Tables[0].Reference.Name)
			assert.Equal(t, "B", res.Tables[0].Target.Name)
			assert.Equal(t,
				"INSERT INTO B (id, src) VALUES (1, 'from-a');\n",
				read(t, filepath.Join(opts.OutputDir, "B_$insert.sql")))
			assert.Equal(t, 1, strings.Count(read(t, res.MainFile), "@@B_$insert.sql"))
		})
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	ref := openDB(t, "ref")
	tgt := openDB(t, "tgt")

	tests := map[string]func(o *engine.Options){
		"format":        func(o *engine.Options) { o.Format = "csv" },
		"blob mode":     func(o *engine.Options) { o.BlobMode = "maybe" },
		"encoding":      func(o *engine.Options) { o.BlobEncoding = "no-such-charset" },
		"alternate key": func(o *engine.Options) { o.AlternateKeys = []string{"orders"} },
		"table map":     func(o *engine.Options) { o.TableMap = []string{"orders"} },
		"single xml":    func(o *engine.Options) { o.Format = "xml"; o.SingleFile = true },
		"base name":     func(o *engine.Options) { o.BaseName = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			opts := options(t)
			mutate(&opts)
			res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
			assert.ErrorIs(t, err, engine.ErrConfig)
			assert.Nil(t, res)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ref := openDB(t, "ref", `CREATE TABLE T (id INTEGER PRIMARY KEY)`, `INSERT INTO T VALUES (1)`)
	tgt := openDB(t, "tgt", `CREATE TABLE T (id INTEGER PRIMARY KEY)`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := options(t)
	res, err := engine.New(ref, tgt, opts, nil).Run(ctx)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, engine.StatusWarning, res.Status)
	assert.Empty(t, res.Tables)
	assert.FileExists(t, res.MainFile, "the driver is written on cancellation")
	assert.Contains(t, read(t, res.MainFile), "cancelled")
}

func TestRun_BusyConnectionIsFatal(t *testing.T) {
	ref := openDB(t, "ref", `CREATE TABLE T (id INTEGER PRIMARY KEY)`)
	tgt := openDB(t, "tgt", `CREATE TABLE T (id INTEGER PRIMARY KEY)`)

	release, err := tgt.Acquire()
	require.NoError(t, err)
	defer release()

	res, err := engine.New(ref, tgt, options(t), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFailure, res.Status)
	assert.ErrorIs(t, res.Err, dbconn.ErrBusy)
	assert.FileExists(t, res.MainFile)
}

func TestRun_XML(t *testing.T) {
	ref := openDB(t, "ref",
		`CREATE TABLE T (id INTEGER PRIMARY KEY, note TEXT)`,
		`INSERT INTO T VALUES (1, 'a & b')`)
	tgt := openDB(t, "tgt", `CREATE TABLE T (id INTEGER PRIMARY KEY, note TEXT)`)

	opts := options(t)
	opts.Format = "xml"
	res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.StatusSuccess, res.Status, res.Messages)

	assert.Equal(t, filepath.Join(opts.OutputDir, "diff.xml"), res.MainFile)
	main := read(t, res.MainFile)
	assert.Contains(t, main, `<file-name type="insert">T_$insert.xml</file-name>`)
	assert.Contains(t, main, "<reference-table>T</reference-table>")
	assert.Contains(t, read(t, filepath.Join(opts.OutputDir, "T_$insert.xml")), `<col name="note">a &amp; b</col>`)
}

func TestPlan(t *testing.T) {
	ref := openDB(t, "ref",
		`CREATE TABLE a (id INTEGER PRIMARY KEY, b_id INTEGER REFERENCES b(id))`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a(id))`,
		`CREATE TABLE emp (id INTEGER PRIMARY KEY, boss INTEGER REFERENCES emp(id))`,
		`CREATE TABLE other (id INTEGER PRIMARY KEY)`)
	tgt := openDB(t, "tgt",
		`CREATE TABLE a (id INTEGER PRIMARY KEY, b_id INTEGER REFERENCES b(id))`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a(id))`,
		`CREATE TABLE emp (id INTEGER PRIMARY KEY, boss INTEGER REFERENCES emp(id))`,
		`CREATE TABLE other (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE audit (id INTEGER PRIMARY KEY, emp_id INTEGER REFERENCES emp(id))`)

	opts := options(t)
	opts.Tables = []string{"a", "b", "emp"}
	opts.IncludeDelete = true
	plan, err := engine.New(ref, tgt, opts, nil).Plan(context.Background())
	require.NoError(t, err)

	var insert, del []string
	for _, p := range plan.Insert {
		insert = append(insert, p.Target.Name)
	}
	for _, p := range plan.Delete {
		del = append(del, p.Target.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b", "emp"}, insert)
	assert.Equal(t, []string{insert[2], insert[1], insert[0]}, del)

	joined := strings.Join(plan.Warnings, "\n")
	assert.Contains(t, joined, "circular foreign key dependency between a, b")
	assert.Contains(t, joined, "table emp references itself")
	assert.Contains(t, joined, "tables audit reference selected tables")

	opts.IncludeAllDependencies = true
	plan, err = engine.New(ref, tgt, opts, nil).Plan(context.Background())
	require.NoError(t, err)
	assert.Len(t, plan.Insert, 3, "audit does not exist in the reference")
}

func TestRun_TableFailureDoesNotStopTheRun(t *testing.T) {
	schemaSQL := []string{
		`CREATE TABLE loose (a TEXT, b INTEGER)`,
		`CREATE TABLE T (id INTEGER PRIMARY KEY, name TEXT)`,
	}
	ref := openDB(t, "ref", append(schemaSQL,
		`INSERT INTO loose VALUES ('x', 1), ('x', 2)`,
		`INSERT INTO T VALUES (1, 'a')`)...)
	tgt := openDB(t, "tgt", schemaSQL...)

	opts := options(t)
	opts.AlternateKeys = []string{"loose=a"}
	res, err := engine.New(ref, tgt, opts, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, engine.StatusFailure, res.Status)
	assert.NoError(t, res.Err, "a table-local error is not a run error")
	require.Len(t, res.Tables, 2)
	assert.Equal(t,
		"INSERT INTO T (id, name) VALUES (1, 'a');\n",
		read(t, filepath.Join(opts.OutputDir, "T_$insert.sql")))

	failure := res.Failure()
	require.Error(t, failure)
	assert.Equal(t, "1 of 2 tables failed: loose", failure.Error())
}

func TestResult_Failure(t *testing.T) {
	assert.NoError(t, (&engine.Result{Status: engine.StatusWarning, Messages: []string{"w"}}).Failure())

	fatal := errors.New("connection reset")
	assert.Equal(t, fatal, (&engine.Result{Status: engine.StatusFailure, Err: fatal}).Failure())

	res := &engine.Result{Status: engine.StatusFailure, Messages: []string{"failed to write scripts: disk full"}}
	assert.EqualError(t, res.Failure(), "failed to write scripts: disk full")
}

func TestIsConnectionFatal(t *testing.T) {
	assert.True(t, engine.IsConnectionFatal(fmt.Errorf("read: %w", driver.ErrBadConn)))
	assert.True(t, engine.IsConnectionFatal(sql.ErrConnDone))
	assert.True(t, engine.IsConnectionFatal(fmt.Errorf("x: %w", dbconn.ErrBusy)))
	assert.False(t, engine.IsConnectionFatal(errors.New("syntax error")))
	assert.False(t, engine.IsConnectionFatal(datadiff.ErrKeyOrder))
}
