package obs

import (
	"bytes"
	"context"
	"fmt"

	"obs-go/internal/model"
	"obs-go/internal/validate"
)

// Service is the orchestration layer that coordinates across all
// components to perform the high-level operations needed by the CLI.
type Service struct {
	database  Database
	identity  IdentityStore
	admission AdmissionClient
	schema    SchemaCache
	builder   PackageBuilder
	archiver  Archiver
	dest      Destination
	logger    Logger
	clock     Clock
}

// NewService creates a new Service with the provided dependencies.
// dest may be nil for flows that never export.
func NewService(database Database, identity IdentityStore, admission AdmissionClient, schema SchemaCache, builder PackageBuilder, archiver Archiver, dest Destination, logger Logger, clock Clock) *Service {
	return &Service{
		database:  database,
		identity:  identity,
		admission: admission,
		schema:    schema,
		builder:   builder,
		archiver:  archiver,
		dest:      dest,
		logger:    logger,
		clock:     clock,
	}
}

// EnsureIdentity returns the device key pair, generating and persisting
// one on first run.
func (s *Service) EnsureIdentity(passphrase string) (*model.KeyPair, error) {
	pair, err := s.identity.EnsureKeyPair(passphrase)
	if err != nil {
		return nil, err
	}
	s.logger.Info("identity ready", "kid", pair.KID)
	return pair, nil
}

// Identity returns the stored key pair, or nil when the device has no
// identity yet.
func (s *Service) Identity() (*model.KeyPair, error) {
	return s.database.FindIdentityKey()
}

// Admit runs the full admission flow: request a challenge, solve it,
// submit the solution bound to this device's public key, and persist
// the returned certificate.
func (s *Service) Admit(ctx context.Context) (*model.Certificate, error) {
	pair, err := s.database.FindIdentityKey()
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	if pair == nil {
		return nil, &IdentityError{Op: "load", Err: fmt.Errorf("no identity: run identity init first")}
	}

	challenge, err := s.admission.RequestChallenge(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("challenge received", "prefix", challenge.Prefix, "difficulty", challenge.Difficulty)

	nonce, err := s.admission.Solve(ctx, challenge)
	if err != nil {
		return nil, err
	}
	s.logger.Info("challenge solved", "nonce", nonce)

	cert, err := s.admission.Submit(ctx, nonce, pair.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	if err := s.database.SaveCertificate(cert); err != nil {
		return nil, fmt.Errorf("persisting certificate: %w", err)
	}
	s.logger.Info("admitted", "expires_at", cert.ExpiresAt)
	return cert, nil
}

// RefreshLabels refreshes the schema snapshot if stale and returns the
// current snapshot.
func (s *Service) RefreshLabels(ctx context.Context) ([]model.Label, error) {
	return s.schema.RefreshIfStale(ctx)
}

// Labels returns the current schema snapshot without refreshing.
func (s *Service) Labels() []model.Label {
	return s.schema.Labels()
}

// ValidateReport checks candidate values against the current schema
// snapshot. Findings are returned as data, never as an error.
func (s *Service) ValidateReport(values map[string]model.Value) (validate.Result, error) {
	labels := s.schema.Labels()
	if len(labels) == 0 {
		return validate.Result{}, &SchemaFetchError{Err: fmt.Errorf("no schema snapshot: run labels refresh first")}
	}
	return validate.Validate(values, labels), nil
}

// BuildReport validates the values, builds an immutable package, and
// records it in the local store. When validation fails, the findings
// are returned and no package is built.
func (s *Service) BuildReport(values map[string]model.Value, media *model.EventMedia, meta model.PackageMeta) (*model.EventPackage, validate.Result, error) {
	labels := s.schema.Labels()
	if len(labels) == 0 {
		return nil, validate.Result{}, &SchemaFetchError{Err: fmt.Errorf("no schema snapshot: run labels refresh first")}
	}

	result := validate.Validate(values, labels)
	if !result.Valid {
		return nil, result, nil
	}

	pkg, err := s.builder.Build(values, labels, media, meta)
	if err != nil {
		return nil, result, err
	}

	if err := s.database.SavePackage(pkg); err != nil {
		return nil, result, fmt.Errorf("recording package: %w", err)
	}

	s.logger.Info("package built", "id", pkg.ID, "annotations", len(pkg.Annotations), "media", pkg.Media != nil)
	return pkg, result, nil
}

// ExportPackage serializes a stored package into an archive and hands
// it to the configured destination. Returns the archive name.
func (s *Service) ExportPackage(id string, opts ArchiveOptions) (string, error) {
	if s.dest == nil {
		return "", &ArchiveError{Err: fmt.Errorf("no destination configured")}
	}

	pkg, err := s.database.FindPackageByID(id)
	if err != nil {
		return "", fmt.Errorf("loading package: %w", err)
	}
	if pkg == nil {
		return "", fmt.Errorf("unknown package: %s", id)
	}

	data, err := s.archiver.ToArchive(pkg, opts)
	if err != nil {
		return "", err
	}

	name := "report-" + pkg.ID + ".zip"
	if err := s.dest.Put(name, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", &ArchiveError{Err: fmt.Errorf("storing archive: %w", err)}
	}

	if err := s.database.MarkPackageExported(id, s.clock.Now()); err != nil {
		return "", fmt.Errorf("recording export: %w", err)
	}

	s.logger.Info("package exported", "id", pkg.ID, "archive", name)
	return name, nil
}

// History returns summary rows for recently built packages.
func (s *Service) History(limit int) ([]*model.PackageRecord, error) {
	return s.database.ListPackages(limit)
}
