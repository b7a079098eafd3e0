package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"obs-go/internal/database/migrations"
	"obs-go/internal/model"
	"obs-go/internal/obs"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the obs.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ obs.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection with foreign keys enabled
// and a single writer connection; SQLite serializes writers anyway and
// a single connection avoids SQLITE_BUSY on concurrent use.
func OpenConnection(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// CheckMigrations verifies that the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Identity key operations

func (s *SQLiteDatabase) FindIdentityKey() (*model.KeyPair, error) {
	var pair model.KeyPair
	err := s.db.QueryRow(
		`SELECT kid, public_key_pem, created_at FROM identity_keys LIMIT 1`,
	).Scan(&pair.KID, &pair.PublicKeyPEM, &pair.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding identity key: %w", err)
	}
	return &pair, nil
}

func (s *SQLiteDatabase) CreateIdentityKey(publicKeyPEM string, createdAt time.Time) (*model.KeyPair, error) {
	res, err := s.db.Exec(
		`INSERT INTO identity_keys (public_key_pem, created_at) VALUES (?, ?)`,
		publicKeyPEM, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating identity key: %w", err)
	}

	kid, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading new key id: %w", err)
	}
	return &model.KeyPair{KID: kid, PublicKeyPEM: publicKeyPEM, CreatedAt: createdAt}, nil
}

// Certificate operations

func (s *SQLiteDatabase) SaveCertificate(cert *model.Certificate) error {
	_, err := s.db.Exec(
		`INSERT INTO certificates (token, issued_at, expires_at) VALUES (?, ?, ?)`,
		cert.Token, cert.IssuedAt, cert.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("saving certificate: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) LatestCertificate() (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.QueryRow(
		`SELECT token, issued_at, expires_at FROM certificates ORDER BY id DESC LIMIT 1`,
	).Scan(&cert.Token, &cert.IssuedAt, &cert.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest certificate: %w", err)
	}
	return &cert, nil
}

// Label snapshot operations

func (s *SQLiteDatabase) LoadLabelSnapshot() ([]model.Label, time.Time, error) {
	var payload string
	var fetchedAt time.Time
	err := s.db.QueryRow(
		`SELECT payload, fetched_at FROM label_snapshots WHERE id = 1`,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("loading label snapshot: %w", err)
	}

	var labels []model.Label
	if err := json.Unmarshal([]byte(payload), &labels); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding label snapshot: %w", err)
	}
	return labels, fetchedAt, nil
}

// SaveLabelSnapshot replaces the single current snapshot row. The
// upsert runs as one statement, so a concurrent reader sees either the
// old snapshot or the new one, never parts of both.
func (s *SQLiteDatabase) SaveLabelSnapshot(labels []model.Label, fetchedAt time.Time) error {
	payload, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("encoding label snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO label_snapshots (id, payload, fetched_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		string(payload), fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("saving label snapshot: %w", err)
	}
	return nil
}

// Package operations

func (s *SQLiteDatabase) SavePackage(pkg *model.EventPackage) error {
	payload, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("encoding package: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO packages (id, version, created_at, created_by, source, payload, annotation_count, has_media)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pkg.ID, pkg.Version, pkg.Metadata.CreatedAt, pkg.Metadata.CreatedBy, pkg.Metadata.Source,
		string(payload), len(pkg.Annotations), pkg.Media != nil,
	)
	if err != nil {
		return fmt.Errorf("saving package: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindPackageByID(id string) (*model.EventPackage, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM packages WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding package: %w", err)
	}

	var pkg model.EventPackage
	if err := json.Unmarshal([]byte(payload), &pkg); err != nil {
		return nil, fmt.Errorf("decoding package: %w", err)
	}
	return &pkg, nil
}

func (s *SQLiteDatabase) MarkPackageExported(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE packages SET exported_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("marking package exported: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unknown package: %s", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListPackages(limit int) ([]*model.PackageRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, version, created_at, created_by, source, annotation_count, has_media, exported_at
		 FROM packages ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	var records []*model.PackageRecord
	for rows.Next() {
		var rec model.PackageRecord
		var exportedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.CreatedAt, &rec.CreatedBy, &rec.Source,
			&rec.AnnotationCount, &rec.HasMedia, &exportedAt); err != nil {
			return nil, fmt.Errorf("scanning package row: %w", err)
		}
		if exportedAt.Valid {
			t := exportedAt.Time
			rec.ExportedAt = &t
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating package rows: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
