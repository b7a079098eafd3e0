package obs

import (
	"fmt"

	"obs-go/internal/model"
)

// The error taxonomy below is the contract callers use to render
// user-actionable messages. Every type wraps its underlying cause so
// errors.Is/errors.As keep working through the service layer.

// IdentityError reports key generation or key persistence failure.
// Fatal to proceeding on first run: no package can be built without
// key material.
type IdentityError struct {
	Op  string // "generate", "persist", "load", "unlock"
	Err error
}

func (e *IdentityError) Error() string { return fmt.Sprintf("identity %s: %v", e.Op, e.Err) }
func (e *IdentityError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure talking to an authority.
// Timeout distinguishes deadline expiry so callers can decide retry
// policy.
type NetworkError struct {
	Op      string // "challenge", "submit", "fetch labels"
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("network %s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("network %s: %v", e.Op, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }

// AdmissionError reports a rejected proof-of-work submission (stale
// challenge, replayed challenge, quota exceeded). Transient; invites
// requesting a fresh challenge.
type AdmissionError struct {
	Reason string
	Err    error
}

func (e *AdmissionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("admission rejected: %s", e.Reason)
	}
	return fmt.Sprintf("admission rejected: %v", e.Err)
}
func (e *AdmissionError) Unwrap() error { return e.Err }

// SchemaFetchError reports that the schema authority was unreachable or
// returned an unusable snapshot. Recovered fail-soft when a cached
// snapshot exists; fatal on first run.
type SchemaFetchError struct {
	Err error
}

func (e *SchemaFetchError) Error() string { return fmt.Sprintf("schema fetch: %v", e.Err) }
func (e *SchemaFetchError) Unwrap() error { return e.Err }

// TypeMismatchError reports a value whose runtime kind does not belong
// to its label's type family. Raised by the package builder; this check
// is non-bypassable and fails the whole build.
type TypeMismatchError struct {
	LabelID string
	Want    model.LabelType
	Got     model.ValueKind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("label %s: value kind %s does not match label type %s", e.LabelID, e.Got, e.Want)
}

// MediaProcessingError reports an unreadable or unencodable media file.
// Fails the whole build; a package is never emitted partially populated.
type MediaProcessingError struct {
	Path string
	Err  error
}

func (e *MediaProcessingError) Error() string {
	return fmt.Sprintf("processing media %s: %v", e.Path, e.Err)
}
func (e *MediaProcessingError) Unwrap() error { return e.Err }

// PackageIntegrityError reports a structurally invalid package produced
// by a build. This is a defect in the build, not caller input.
type PackageIntegrityError struct {
	Reason string
}

func (e *PackageIntegrityError) Error() string {
	return fmt.Sprintf("package integrity: %s", e.Reason)
}

// ArchiveError reports an export failure. No partial archive is
// returned alongside it.
type ArchiveError struct {
	Entry string // archive entry being written, if known
	Err   error
}

func (e *ArchiveError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive entry %s: %v", e.Entry, e.Err)
	}
	return fmt.Sprintf("archive: %v", e.Err)
}
func (e *ArchiveError) Unwrap() error { return e.Err }
