package obs

import (
	"context"
	"io"

	"obs-go/internal/model"
)

// IdentityStore owns the device key pair. EnsureKeyPair is idempotent:
// repeated or concurrent calls converge on exactly one stored pair.
type IdentityStore interface {
	EnsureKeyPair(passphrase string) (*model.KeyPair, error)
	IsConfigured() bool
}

// AdmissionClient runs the proof-of-work admission protocol against the
// admission authority.
type AdmissionClient interface {
	// RequestChallenge fetches a fresh challenge. Cancellation returns
	// the client to its idle state.
	RequestChallenge(ctx context.Context) (*model.PowChallenge, error)

	// Solve searches for the smallest nonce satisfying the challenge.
	// The search runs off the caller's goroutine and honors ctx.
	Solve(ctx context.Context, ch *model.PowChallenge) (uint64, error)

	// Submit sends the solution and public key; returns the certificate
	// on acceptance.
	Submit(ctx context.Context, nonce uint64, publicKeyPEM string) (*model.Certificate, error)
}

// SchemaCache serves the label snapshot that defines collectible data.
type SchemaCache interface {
	// Labels returns the current snapshot. Empty when no snapshot has
	// ever been fetched.
	Labels() []model.Label

	// RefreshIfStale refetches the snapshot when it is older than the
	// staleness window; a no-op within the window. On fetch failure
	// with a cached snapshot present, the cached snapshot is returned
	// (fail-soft); with no snapshot the error is fatal.
	RefreshIfStale(ctx context.Context) ([]model.Label, error)
}

// PackageBuilder turns validated values plus optional media into an
// immutable EventPackage.
type PackageBuilder interface {
	Build(values map[string]model.Value, labels []model.Label, media *model.EventMedia, meta model.PackageMeta) (*model.EventPackage, error)
}

// ArchiveOptions control which optional entries an export includes.
type ArchiveOptions struct {
	IncludeMedia    bool
	IncludeMetadata bool
}

// DefaultArchiveOptions includes everything.
func DefaultArchiveOptions() ArchiveOptions {
	return ArchiveOptions{IncludeMedia: true, IncludeMetadata: true}
}

// Archiver serializes a package into a portable compressed container.
type Archiver interface {
	ToArchive(pkg *model.EventPackage, opts ArchiveOptions) ([]byte, error)
}

// Destination receives exported archives. This is the platform
// file-save collaborator boundary: the core guarantees the archive is
// complete before handing it over.
type Destination interface {
	// Put stores an archive under the given name. size is the number of
	// bytes that will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get retrieves a stored archive by name and writes it to w.
	Get(name string, w io.Writer) error

	// ValidateSetup verifies the destination is accessible.
	ValidateSetup() error
}
