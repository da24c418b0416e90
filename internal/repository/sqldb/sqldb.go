// Package sqldb implements the repository interfaces on database/sql.
//
// One code path serves two engines, chosen by DATABASE_URL:
//
//	sqlite:///./mediahub.db      relative file (three slashes)
//	sqlite:////var/lib/hub.db    absolute file (four slashes)
//	sqlite://  or  :memory:      in-memory, lost on Close
//	postgres://user:pw@host/db   PostgreSQL through lib/pq
//
// Anything else is treated as a plain SQLite file path.
//
// Queries are written once with ? placeholders and rebound to $n for
// Postgres. Schema changes are versioned migrations embedded in the binary
// and applied by golang-migrate on Open.
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a connection pool for either engine.
type DB struct {
	conn   *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to databaseURL, verifies the connection and brings the
// schema up to date.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*DB, error) {
	driver, dsn, memory, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite && !memory {
		if dir := filepath.Dir(strings.TrimPrefix(dsn, "file:")); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqldb: creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open(driver, sqliteDSN(driver, dsn, memory))
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening database: %w", err)
	}

	// Every connection to ":memory:" is a different database.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging database: %w", err)
	}

	db := &DB{conn: conn, driver: driver, logger: logger}

	if err := db.migrate(databaseURL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}

	logger.Info("database ready", slog.String("driver", driver), slog.Bool("memory", memory))
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver reports which engine is in use.
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the user store backed by this database.
func (db *DB) Users() *UserStore {
	return &UserStore{db: db}
}

// Notes returns the note store backed by this database.
func (db *DB) Notes() *NoteStore {
	return &NoteStore{db: db}
}

func (db *DB) migrate(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations/"+db.driver)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	var m *migrate.Migrate
	switch db.driver {
	case DriverPostgres:
		// The postgres driver pins a dedicated connection, so it gets its own
		// pool which m.Close releases.
		m, err = migrate.NewWithSourceInstance("iofs", source, databaseURL)
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}
		defer func() {
			if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
				db.logger.Warn("closing migrator", slog.Any("source_error", srcErr), slog.Any("db_error", dbErr))
			}
		}()
	default:
		// Must run on the shared pool: an in-memory database exists only
		// behind its one connection. The migrator is not closed because
		// that would close the pool too.
		target, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("creating migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", source, DriverSQLite, target)
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	db.logger.Debug("schema migrated", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres.
// Queries in this package never contain a literal question mark.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// parseURL splits a DATABASE_URL into driver name and data source.
func parseURL(raw string) (driver, dsn string, memory bool, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", "", false, errors.New("sqldb: empty database url")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DriverPostgres, raw, false, nil
	case raw == ":memory:", raw == "sqlite://", raw == "sqlite:///:memory:":
		return DriverSQLite, ":memory:", true, nil
	case strings.HasPrefix(raw, "sqlite:///"):
		return DriverSQLite, strings.TrimPrefix(raw, "sqlite:///"), false, nil
	case strings.Contains(raw, "://"):
		return "", "", false, fmt.Errorf("sqldb: unsupported database url scheme in %q", redactURL(raw))
	default:
		return DriverSQLite, raw, false, nil
	}
}

// sqliteDSN adds connection pragmas. modernc applies _pragma parameters to
// every new connection in the pool, which PRAGMA statements on the pool
// would not.
func sqliteDSN(driver, dsn string, memory bool) string {
	if driver != DriverSQLite {
		return dsn
	}
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + pragmas
}

func redactURL(raw string) string {
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		if scheme := strings.Index(raw, "://"); scheme >= 0 && scheme < at {
			return raw[:scheme+3] + "***" + raw[at:]
		}
	}
	return raw
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure
// from either engine.
func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
