package obs

import (
	"time"

	"obs-go/internal/model"
)

// Database provides an interface for durable local storage.
// Implementations must guarantee at-most-one-row semantics for the
// identity key and serve reads from the last fully committed state.
type Database interface {
	// Schema management

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// MigrateUp brings the schema to the latest version.
	MigrateUp() error

	// Identity key operations

	// FindIdentityKey returns the device key pair, or nil when none is stored.
	FindIdentityKey() (*model.KeyPair, error)

	// CreateIdentityKey stores the device public key and returns the new
	// record. Fails if a key pair already exists; the storage-level
	// uniqueness constraint is the last line of defense against
	// first-run races.
	CreateIdentityKey(publicKeyPEM string, createdAt time.Time) (*model.KeyPair, error)

	// Certificate operations

	// SaveCertificate stores an admission certificate.
	SaveCertificate(cert *model.Certificate) error

	// LatestCertificate returns the most recently issued certificate,
	// or nil when none is stored.
	LatestCertificate() (*model.Certificate, error)

	// Label snapshot operations

	// LoadLabelSnapshot returns the cached schema snapshot and the time
	// of its last successful fetch. Returns nil labels and a zero time
	// when no snapshot has been cached yet.
	LoadLabelSnapshot() ([]model.Label, time.Time, error)

	// SaveLabelSnapshot replaces the cached schema snapshot in a single
	// transaction so readers never observe a torn write.
	SaveLabelSnapshot(labels []model.Label, fetchedAt time.Time) error

	// Package operations

	// SavePackage records a built package, including its full payload
	// for later export.
	SavePackage(pkg *model.EventPackage) error

	// FindPackageByID returns a stored package, or nil when unknown.
	FindPackageByID(id string) (*model.EventPackage, error)

	// MarkPackageExported stamps the package's export time.
	MarkPackageExported(id string, at time.Time) error

	// ListPackages returns summary rows for the most recently built
	// packages, newest first.
	ListPackages(limit int) ([]*model.PackageRecord, error)

	// Close closes the database connection.
	Close() error
}
