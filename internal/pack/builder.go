// Package pack builds immutable event packages from validated field
// values. The builder enforces type-family compatibility between every
// value and its label, stamps all annotations with one shared
// timestamp, and self-checks the result before returning it.
package pack

import (
	"encoding/base64"
	"fmt"

	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// Builder constructs EventPackages. It implements obs.PackageBuilder.
type Builder struct {
	clock obs.Clock
	idgen obs.IDGenerator
}

var _ obs.PackageBuilder = (*Builder)(nil)

// NewBuilder creates a Builder with the provided clock and id generator.
func NewBuilder(clock obs.Clock, idgen obs.IDGenerator) *Builder {
	return &Builder{clock: clock, idgen: idgen}
}

// Build emits one annotation per label in the snapshot, resolving
// missing values to null. Every annotation carries the same timestamp,
// which also becomes the package's CreatedAt. The value-family check
// here is stronger than the validation engine's optionality rules and
// is non-bypassable: a mismatch fails the whole build.
func (b *Builder) Build(values map[string]model.Value, labels []model.Label, media *model.EventMedia, meta model.PackageMeta) (*model.EventPackage, error) {
	now := b.clock.Now().UTC()

	annotations := make([]model.EventAnnotation, 0, len(labels))
	for _, label := range labels {
		value, ok := values[label.LabelID]
		if !ok {
			value = model.NullValue()
		}
		if !familyMatches(label.Type, value.Kind) {
			return nil, &obs.TypeMismatchError{LabelID: label.LabelID, Want: label.Type, Got: value.Kind}
		}
		annotations = append(annotations, model.EventAnnotation{
			LabelID:   label.LabelID,
			Value:     value,
			Timestamp: now,
		})
	}

	meta.CreatedAt = now
	pkg := &model.EventPackage{
		ID:          b.idgen.New(),
		Version:     model.PackageVersion,
		Annotations: annotations,
		Media:       media,
		Metadata:    meta,
	}

	if err := checkIntegrity(pkg, labels); err != nil {
		return nil, err
	}
	return pkg, nil
}

// familyMatches reports whether a value kind belongs to a label type's
// value family: number<->number, boolean<->boolean, text/enum/date<->
// string. Null is compatible with every family (required-ness is the
// validation engine's concern). Media labels hold at most a text
// reference; the payload travels in the package's media record.
func familyMatches(t model.LabelType, k model.ValueKind) bool {
	if k == model.KindNull {
		return true
	}
	switch t {
	case model.LabelNumber:
		return k == model.KindNumber
	case model.LabelBoolean:
		return k == model.KindBool
	case model.LabelText, model.LabelEnum, model.LabelDate, model.LabelMedia:
		return k == model.KindText
	default:
		return false
	}
}

// checkIntegrity validates the built package against its structural
// invariants. A violation here is a builder defect, not caller input,
// and surfaces as PackageIntegrityError instead of a package.
func checkIntegrity(pkg *model.EventPackage, labels []model.Label) error {
	if pkg.ID == "" {
		return &obs.PackageIntegrityError{Reason: "empty package id"}
	}
	if pkg.Version == "" {
		return &obs.PackageIntegrityError{Reason: "empty version"}
	}
	if len(pkg.Annotations) != len(labels) {
		return &obs.PackageIntegrityError{Reason: fmt.Sprintf("annotation count %d does not match label count %d", len(pkg.Annotations), len(labels))}
	}

	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l.LabelID] = true
	}

	seen := make(map[string]bool, len(pkg.Annotations))
	for _, a := range pkg.Annotations {
		if !known[a.LabelID] {
			return &obs.PackageIntegrityError{Reason: fmt.Sprintf("annotation references unknown label %q", a.LabelID)}
		}
		if seen[a.LabelID] {
			return &obs.PackageIntegrityError{Reason: fmt.Sprintf("duplicate annotation for label %q", a.LabelID)}
		}
		seen[a.LabelID] = true
		if !a.Timestamp.Equal(pkg.Metadata.CreatedAt) {
			return &obs.PackageIntegrityError{Reason: fmt.Sprintf("annotation %q timestamp differs from package timestamp", a.LabelID)}
		}
	}

	if pkg.Media != nil {
		if !AllowedMIME(pkg.Media.Type) {
			return &obs.PackageIntegrityError{Reason: fmt.Sprintf("media type %q is not allow-listed", pkg.Media.Type)}
		}
		decoded, err := base64.StdEncoding.DecodeString(pkg.Media.Data)
		if err != nil {
			return &obs.PackageIntegrityError{Reason: "media payload is not valid base64"}
		}
		if int64(len(decoded)) != pkg.Media.Size {
			return &obs.PackageIntegrityError{Reason: fmt.Sprintf("media size %d does not match payload length %d", pkg.Media.Size, len(decoded))}
		}
	}

	return nil
}
