package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/mcp-proxy/gateway/pkg/log"

	// registers the sqlite driver used by database/sql
	_ "modernc.org/sqlite"
)

// Repository is the opaque, typed store the core depends on (spec.md
// §6.3): the admin control plane and auth endpoints that populate these
// tables are out of scope; the proxy only reads/updates through this
// interface.
type Repository interface {
	ServerRepository
	UserRepository
	ProxyRepository

	Close() error
}

type repository struct {
	db *sqlx.DB
}

//go:embed migrations/*.sql
var migrations embed.FS

type options struct {
	dbFile string
}

// Option configures New.
type Option func(*options)

// WithDatabaseFile overrides the default sqlite file location.
func WithDatabaseFile(dbFile string) Option {
	return func(o *options) { o.dbFile = dbFile }
}

// New opens (creating and migrating if necessary) the proxy's sqlite-backed
// repository, following the teacher's pkg/db.New: single-connection sqlite
// handle, foreign keys on, busy-timeout set, migrations applied via
// golang-migrate's iofs source.
func New(opts ...Option) (Repository, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.dbFile == "" {
		dbFile, err := DefaultDatabaseFile()
		if err != nil {
			return nil, fmt.Errorf("store: default database file: %w", err)
		}
		o.dbFile = dbFile
	}

	if err := ensureDirectoryExists(o.dbFile); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", "file:"+o.dbFile+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	migDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: loading migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(sqlDB, &msqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: migration driver: %w", err)
	}
	mig, err := migrate.NewWithInstance("iofs", migDriver, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("store: migrate instance: %w", err)
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return &repository{db: sqlx.NewDb(sqlDB, "sqlite")}, nil
}

func (r *repository) Close() error { return r.db.Close() }

// DefaultDatabaseFile returns the default sqlite file path under the user's
// home directory, matching the teacher's layout convention.
func DefaultDatabaseFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mcp-proxy", "proxy.db"), nil
}

func ensureDirectoryExists(dbFile string) error {
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func txClose(tx *sqlx.Tx, errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	if txErr := tx.Rollback(); txErr != nil {
		log.Logf("store: failed to rollback transaction: %v", txErr)
	}
}
