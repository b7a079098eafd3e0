package model

import "time"

// PackageVersion is the format version stamped on every EventPackage.
const PackageVersion = "1.0"

// LabelType classifies what kind of data a label collects.
type LabelType string

const (
	LabelDate    LabelType = "date"
	LabelText    LabelType = "text"
	LabelNumber  LabelType = "number"
	LabelEnum    LabelType = "enum"
	LabelBoolean LabelType = "boolean"
	LabelMedia   LabelType = "media"
)

// Constraints holds optional per-label validation limits.
// Nil pointer fields mean the constraint is absent.
type Constraints struct {
	MaxLength *int     `json:"maxLength,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Step      *float64 `json:"step,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Label is a schema definition for one collectible field, produced by the
// schema authority and cached locally. Labels are never mutated client-side.
type Label struct {
	LabelID     string            `json:"labelId"`
	Names       map[string]string `json:"names"` // language code -> display name
	Type        LabelType         `json:"type"`
	Required    bool              `json:"required"`
	Constraints *Constraints      `json:"constraints,omitempty"`
	Options     []string          `json:"options,omitempty"` // ordered; non-empty when Type == enum
}

// PowChallenge is issued by the admission authority. Difficulty is the
// number of leading zero hex characters required in the solution hash.
type PowChallenge struct {
	Prefix     string `json:"prefix"`
	Difficulty int    `json:"difficulty"`
}

// Certificate is a short-lived attestation binding a public key to
// admission rights. Lifetime and revocation are authority-side concerns.
type Certificate struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// KeyPair describes the device identity key. Only the public half ever
// appears here; private key material stays with the identity store.
type KeyPair struct {
	KID          int64
	PublicKeyPEM string
	CreatedAt    time.Time
}

// EventAnnotation is one concrete field value captured for an event.
// All annotations in one package share the same timestamp.
type EventAnnotation struct {
	LabelID   string    `json:"labelId"`
	Value     Value     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// EventMedia is an embedded media attachment. Data is the base64 encoding
// of the original bytes; Size is the original (decoded) byte count.
type EventMedia struct {
	Type         string    `json:"type"` // MIME type, allow-listed
	Data         string    `json:"data"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// PackageMeta is the provenance block of an EventPackage.
type PackageMeta struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	Source    string    `json:"source"`
}

// EventPackage is the immutable bundle of annotations (plus optional
// media) representing one reported event. Corrections build a new
// package; an existing package is never mutated.
type EventPackage struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Annotations []EventAnnotation `json:"annotations"`
	Media       *EventMedia       `json:"media,omitempty"`
	Metadata    PackageMeta       `json:"metadata"`
}

// PackageRecord is the local-store summary row for a built package.
type PackageRecord struct {
	ID              string
	Version         string
	CreatedAt       time.Time
	CreatedBy       string
	Source          string
	AnnotationCount int
	HasMedia        bool
	ExportedAt      *time.Time // nil until the package has been exported
}
