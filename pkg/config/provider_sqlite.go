package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteSchema creates the tables read by SQLiteProvider. Every table is
// scoped to a row of configs; the provider reads the one named 'default'.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS configs (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS reference_sources (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	path      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS storage_configs (
	config_id         INTEGER NOT NULL REFERENCES configs(id),
	backend_type      TEXT NOT NULL,
	addr              TEXT,
	password          TEXT,
	db_index          INTEGER,
	key_prefix        TEXT,
	connection_string TEXT
);
CREATE TABLE IF NOT EXISTS rest_configs (
	config_id     INTEGER NOT NULL REFERENCES configs(id),
	listen_addr   TEXT,
	http_port     INTEGER,
	tls_cert_path TEXT,
	tls_key_path  TEXT
);
CREATE TABLE IF NOT EXISTS zones (
	config_id  INTEGER NOT NULL REFERENCES configs(id),
	name       TEXT NOT NULL,
	label      TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0
);
`

const defaultConfigScope = `(SELECT id FROM configs WHERE name = 'default')`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// EnsureSchema creates the configuration tables and the default config row
// if they do not exist yet.
func (s *SQLiteProvider) EnsureSchema() error {
	if _, err := s.db.Exec(SQLiteSchema); err != nil {
		return fmt.Errorf("failed to create configuration schema: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO configs (name) VALUES ('default')`); err != nil {
		return fmt.Errorf("failed to create default configuration: %w", err)
	}
	return nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	if err := s.loadReference(config); err != nil {
		return nil, fmt.Errorf("failed to load reference source: %w", err)
	}
	if err := s.loadStorage(config); err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	if err := s.loadREST(config); err != nil {
		return nil, fmt.Errorf("failed to load REST config: %w", err)
	}
	if err := s.loadZones(config); err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}

	return config, nil
}

func (s *SQLiteProvider) loadReference(config *ConfigData) error {
	err := s.db.QueryRow(`SELECT path FROM reference_sources WHERE config_id = ` + defaultConfigScope + ` LIMIT 1`).
		Scan(&config.Reference.Path)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

func (s *SQLiteProvider) loadStorage(config *ConfigData) error {
	rows, err := s.db.Query(`
		SELECT backend_type, addr, password, db_index, key_prefix, connection_string
		FROM storage_configs
		WHERE config_id = ` + defaultConfigScope)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var backendType string
		var addr, password, keyPrefix, connString sql.NullString
		var dbIndex sql.NullInt64

		if err := rows.Scan(&backendType, &addr, &password, &dbIndex, &keyPrefix, &connString); err != nil {
			return fmt.Errorf("failed to scan storage row: %w", err)
		}

		switch backendType {
		case "redis":
			config.Storage.Redis = &RedisData{
				Addr:      addr.String,
				Password:  password.String,
				DB:        int(dbIndex.Int64),
				KeyPrefix: keyPrefix.String,
			}
		case "timescaledb":
			config.Storage.TimescaleDB = &TimescaleDBData{
				ConnectionString: connString.String,
			}
		default:
			return fmt.Errorf("unknown storage backend type %q", backendType)
		}
	}

	return rows.Err()
}

func (s *SQLiteProvider) loadREST(config *ConfigData) error {
	var listenAddr, certPath, keyPath sql.NullString
	var port sql.NullInt64

	err := s.db.QueryRow(`
		SELECT listen_addr, http_port, tls_cert_path, tls_key_path
		FROM rest_configs
		WHERE config_id = ` + defaultConfigScope + ` LIMIT 1`).
		Scan(&listenAddr, &port, &certPath, &keyPath)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	config.REST = &RESTServerData{
		ListenAddr:  listenAddr.String,
		HTTPPort:    int(port.Int64),
		TLSCertPath: certPath.String,
		TLSKeyPath:  keyPath.String,
	}
	return nil
}

func (s *SQLiteProvider) loadZones(config *ConfigData) error {
	rows, err := s.db.Query(`
		SELECT name, label
		FROM zones
		WHERE config_id = ` + defaultConfigScope + `
		ORDER BY sort_order, rowid`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var z ZoneData
		var label sql.NullString
		if err := rows.Scan(&z.Name, &label); err != nil {
			return fmt.Errorf("failed to scan zone row: %w", err)
		}
		z.Label = label.String
		config.Zones = append(config.Zones, z)
	}

	return rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
