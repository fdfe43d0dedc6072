package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for the record store connection
type Config struct {
	Type            string        `koanf:"type"`
	DSN             string        `koanf:"dsn"`
	ServerURI       string        `koanf:"server_uri"`
	Catalog         string        `koanf:"catalog"`
	Schema          string        `koanf:"schema"`
	TableName       string        `koanf:"table_name"`
	SchemaFile      string        `koanf:"schema_file"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// Database provides a record store connection
type Database struct {
	*sql.DB
	Config  Config
	Dialect Dialect
	Logger  *zap.Logger
}

// New opens the configured store, waits for it to accept connections and
// applies the schema when auto_migrate is set.
func New(ctx context.Context, config Config, logger *zap.Logger) (*Database, error) {
	dialect, err := DialectFor(config.Type)
	if err != nil {
		return nil, err
	}

	dsn, err := dataSourceName(dialect, config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect.Name, err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	if dialect.Name == SQLite && strings.Contains(dsn, ":memory:") {
		// the database lives and dies with its single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	database := &Database{DB: db, Config: config, Dialect: dialect, Logger: logger}

	if err := database.waitForConnection(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if config.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if !dialect.Transactions {
		database.log().Warn("store has no transaction support; multi-query reads are not snapshot isolated and writes are not atomic",
			zap.String("dialect", dialect.Name))
	}

	return database, nil
}

func dataSourceName(dialect Dialect, config Config) (string, error) {
	switch dialect.Name {
	case Trino:
		if config.ServerURI == "" {
			return "", fmt.Errorf("trino requires server_uri")
		}
		return fmt.Sprintf("%s?catalog=%s&schema=%s", config.ServerURI, config.Catalog, config.Schema), nil
	default:
		if config.DSN == "" {
			return "", fmt.Errorf("%s requires dsn", dialect.Name)
		}
		return config.DSN, nil
	}
}

// waitForConnection pings the store until it answers or attempts run out.
func (db *Database) waitForConnection(ctx context.Context) error {
	attempts := db.Config.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			db.log().Info("connected to store",
				zap.String("dialect", db.Dialect.Name),
				zap.Int("attempt", attempt))
			return nil
		}
		if attempt == attempts {
			break
		}

		db.log().Warn("store not ready, retrying",
			zap.String("dialect", db.Dialect.Name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", db.Config.ConnectBackoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping %s: %w", db.Dialect.Name, ctx.Err())
		case <-time.After(db.Config.ConnectBackoff):
		}
	}
	return fmt.Errorf("failed to ping %s after %d attempts: %w", db.Dialect.Name, attempts, err)
}

// Table returns the qualified table name used in queries.
func (db *Database) Table() string {
	table := db.Config.TableName
	if table == "" {
		table = "swift_codes"
	}
	if db.Dialect.Name == Trino && db.Config.Catalog != "" && db.Config.Schema != "" {
		return db.Config.Catalog + "." + db.Config.Schema + "." + table
	}
	return table
}

// Migrate applies schema_file when configured, the embedded dialect schema otherwise.
func (db *Database) Migrate(ctx context.Context) error {
	if db.Config.SchemaFile != "" {
		return db.ExecuteSchema(db.Config.SchemaFile)
	}
	schema, err := db.Dialect.Schema(db.Table())
	if err != nil {
		return err
	}
	return db.ExecuteSchemaSQL(ctx, schema)
}

// ExecuteSchema loads and executes a schema file
func (db *Database) ExecuteSchema(filePath string) error {
	db.log().Info("executing schema", zap.String("file", filePath))

	schemaSQL, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	return db.ExecuteSchemaSQL(context.Background(), strings.ReplaceAll(string(schemaSQL), "{{table}}", db.Table()))
}

// ExecuteSchemaSQL runs each statement separately; Trino does not accept
// multi-statement execution.
func (db *Database) ExecuteSchemaSQL(ctx context.Context, schemaSQL string) error {
	for _, query := range splitStatements(schemaSQL) {
		db.log().Debug("executing query", zap.String("query", query))
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}

	db.log().Info("schema successfully executed", zap.String("dialect", db.Dialect.Name))
	return nil
}

func splitStatements(schemaSQL string) []string {
	var statements []string
	for _, chunk := range strings.Split(schemaSQL, ";") {
		lines := make([]string, 0)
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		query := strings.TrimSpace(strings.Join(lines, "\n"))
		if query == "" {
			continue
		}
		statements = append(statements, query)
	}
	return statements
}

// Health pings the store.
func (db *Database) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *Database) log() *zap.Logger {
	if db.Logger == nil {
		return zap.NewNop()
	}
	return db.Logger
}
