package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"db-reconcile/internal/dialect"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/schema"

	"go.uber.org/zap"
)

// ErrBusy is returned by Acquire while another block holds the connection.
var ErrBusy = errors.New("connection is busy")

// Config describes one named database connection.
type Config struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

// Handle is the read-only capability set the reconciliation engine needs from
// one side of a comparison.
type Handle interface {
	Name() string
	Dialect() dialect.Dialect
	Schema() string
	AdjustIdentifierCase(name string) string

	ListTables(ctx context.Context) ([]*schema.Table, error)
	// Table returns nil, nil when the table does not exist.
	Table(ctx context.Context, name string) (*schema.Table, error)
	ListColumns(ctx context.Context, table string) ([]*schema.Column, error)
	GetPrimaryKey(ctx context.Context, table string) ([]string, error)
	GetForeignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error)
	GetReferencingTables(ctx context.Context, tables []*schema.Table) ([]*schema.Table, error)

	QueryOrdered(ctx context.Context, table *schema.Table, columns, keys []string) (*Cursor, error)

	// Acquire marks the connection busy until release is called.
	Acquire() (release func(), err error)
}

// Conn is a Handle over a *sql.DB. Catalog metadata is loaded once and cached
// on the Conn. schema is kept as configured; an empty schema selects the
// dialect default and leaves generated table names unqualified.
type Conn struct {
	name   string
	db     *sql.DB
	d      dialect.Dialect
	schema string
	log    *zap.Logger

	busy sync.Mutex

	mu      sync.Mutex
	catalog *schema.Catalog
}

var _ Handle = (*Conn)(nil)

// Open opens and pings the database described by cfg.
func Open(ctx context.Context, cfg *Config, log *zap.Logger) (*Conn, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, fmt.Errorf("connection %q: driver and dsn are required", cfg.Name)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open db %q: %w", cfg.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db %q: %w", cfg.Name, err)
	}

	schemaName := cfg.Schema
	if schemaName == "" && strings.EqualFold(cfg.Driver, "mysql") {
		// Fetch current database name from the DSN
		if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&schemaName); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to get database name: %w", err)
		}
		if schemaName == "" {
			db.Close()
			return nil, fmt.Errorf("connection %q: no database selected in DSN", cfg.Name)
		}
	}

	return New(cfg.Name, db, cfg.Driver, schemaName, log), nil
}

// New wraps an already opened database.
func New(name string, db *sql.DB, driver, schemaName string, log *zap.Logger) *Conn {
	d := dialect.GetDialect(driver)
	return &Conn{
		name:   name,
		db:     db,
		d:      d,
		schema: schemaName,
		log:    logger.OrNop(log).Named("conn").With(zap.String("conn", name)),
	}
}

func (c *Conn) Name() string                            { return c.name }
func (c *Conn) Dialect() dialect.Dialect                { return c.d }
func (c *Conn) Schema() string                          { return c.d.GetSchemaName(c.schema) }
func (c *Conn) DB() *sql.DB                             { return c.db }
func (c *Conn) AdjustIdentifierCase(name string) string { return c.d.AdjustIdentifierCase(name) }

func (c *Conn) Close() error {
	return c.db.Close()
}

func (c *Conn) Acquire() (func(), error) {
	if !c.busy.TryLock() {
		return nil, fmt.Errorf("%s: %w", c.name, ErrBusy)
	}
	var once sync.Once
	return func() { once.Do(c.busy.Unlock) }, nil
}

// Catalog returns the cached catalog, loading it on first use.
func (c *Conn) Catalog(ctx context.Context) (*schema.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog != nil {
		return c.catalog, nil
	}
	catalog, err := schema.Analyze(ctx, c.db, c.d, c.schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	c.log.Debug("catalog loaded", zap.String("schema", catalog.Schema), zap.Int("tables", len(catalog.Tables)))
	c.catalog = catalog
	return catalog, nil
}

// Refresh drops the cached catalog.
func (c *Conn) Refresh() {
	c.mu.Lock()
	c.catalog = nil
	c.mu.Unlock()
}

func (c *Conn) ListTables(ctx context.Context) ([]*schema.Table, error) {
	catalog, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Tables, nil
}

func (c *Conn) Table(ctx context.Context, name string) (*schema.Table, error) {
	catalog, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Table(name), nil
}

func (c *Conn) ListColumns(ctx context.Context, table string) ([]*schema.Column, error) {
	t, err := c.mustTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

func (c *Conn) GetPrimaryKey(ctx context.Context, table string) ([]string, error) {
	t, err := c.mustTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.PrimaryKey, nil
}

func (c *Conn) GetForeignKeys(ctx context.Context, table string) ([]*schema.ForeignKey, error) {
	t, err := c.mustTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.ForeignKeys, nil
}

func (c *Conn) GetReferencingTables(ctx context.Context, tables []*schema.Table) ([]*schema.Table, error) {
	catalog, err := c.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.ReferencingClosure(tables), nil
}

func (c *Conn) mustTable(ctx context.Context, name string) (*schema.Table, error) {
	t, err := c.Table(ctx, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%s: table %s not found", c.name, name)
	}
	return t, nil
}

// Describe reads a fresh catalog with the requested details plus the
// schema-level objects. The cached catalog is left untouched.
func (c *Conn) Describe(ctx context.Context, details schema.DetailOptions, objects schema.ObjectOptions) (*schema.Catalog, *schema.Objects, error) {
	release, err := c.Acquire()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	catalog, err := schema.Analyze(ctx, c.db, c.d, c.schema)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if err := schema.AnalyzeDetails(ctx, c.db, c.d, catalog, details); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.name, err)
	}
	objs, err := schema.AnalyzeObjects(ctx, c.db, c.d, c.schema, objects)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return catalog, objs, nil
}
