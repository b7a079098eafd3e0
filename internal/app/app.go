package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"obs-go/internal/admission"
	"obs-go/internal/archive"
	"obs-go/internal/config"
	"obs-go/internal/database"
	"obs-go/internal/dest"
	"obs-go/internal/identity"
	"obs-go/internal/model"
	"obs-go/internal/obs"
	"obs-go/internal/pack"
	"obs-go/internal/schema"
	"obs-go/internal/validate"
)

// defaultAuthorityTimeout bounds each network operation when the config
// does not specify one.
const defaultAuthorityTimeout = 30 * time.Second

// App is the application layer between the CLI and the Service.
// It constructs all dependencies from config, exposes high-level
// operations that accept raw inputs, and manages the DB lifecycle on
// Close.
type App struct {
	cfg     *config.Config
	db      obs.Database
	ident   *identity.Store
	service *obs.Service
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Admit",
// "BuildReport"). The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger.With("operation", operation)}

	timeout := defaultAuthorityTimeout
	if cfg.Authority.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Authority.TimeoutSeconds) * time.Second
	}

	clock := obs.RealClock{}
	ident := identity.NewStore(cfg.Identity, db, clock, log)
	adm := admission.NewClient(cfg.Authority.AdmissionURL, timeout, log)
	fetcher := schema.NewHTTPFetcher(cfg.Authority.SchemaURL, timeout)

	cache, err := schema.NewCache(db, fetcher, clock, log)
	if err != nil {
		logFile.Close()
		db.Close()
		return nil, fmt.Errorf("creating schema cache: %w", err)
	}

	var destination obs.Destination
	if len(cfg.Destinations) > 0 {
		destination, err = dest.NewDestinationFromConfig(cfg.Destinations[0])
		if err != nil {
			logFile.Close()
			db.Close()
			return nil, fmt.Errorf("creating destination: %w", err)
		}
	}

	builder := pack.NewBuilder(clock, obs.UUIDGenerator{})
	svc := obs.NewService(db, ident, adm, cache, builder, archive.NewExporter(), destination, log, clock)

	return &App{
		cfg:     cfg,
		db:      db,
		ident:   ident,
		service: svc,
		logFile: logFile,
	}, nil
}

// EnsureIdentity creates the device key pair on first run, or returns
// the existing one.
func (a *App) EnsureIdentity(passphrase string) (*model.KeyPair, error) {
	return a.service.EnsureIdentity(passphrase)
}

// Identity returns the stored key pair, nil when none exists.
func (a *App) Identity() (*model.KeyPair, error) {
	return a.service.Identity()
}

// Admit runs the proof-of-work admission flow.
func (a *App) Admit(ctx context.Context) (*model.Certificate, error) {
	return a.service.Admit(ctx)
}

// RefreshLabels refreshes the schema snapshot if stale.
func (a *App) RefreshLabels(ctx context.Context) ([]model.Label, error) {
	return a.service.RefreshLabels(ctx)
}

// Labels returns the current schema snapshot.
func (a *App) Labels() []model.Label {
	return a.service.Labels()
}

// ValidateReport reads a values file and checks it against the schema.
func (a *App) ValidateReport(valuesPath string) (validate.Result, error) {
	values, err := readValues(valuesPath)
	if err != nil {
		return validate.Result{}, err
	}
	return a.service.ValidateReport(values)
}

// BuildReport reads a values file (and optional media file), validates,
// builds a package, and records it. On validation failure the findings
// are returned with a nil package.
func (a *App) BuildReport(valuesPath, mediaPath string) (*model.EventPackage, validate.Result, error) {
	values, err := readValues(valuesPath)
	if err != nil {
		return nil, validate.Result{}, err
	}

	var media *model.EventMedia
	if mediaPath != "" {
		media, err = pack.LoadMedia(mediaPath)
		if err != nil {
			return nil, validate.Result{}, err
		}
	}

	meta := model.PackageMeta{CreatedBy: a.cfg.DeviceID, Source: a.cfg.Source}
	return a.service.BuildReport(values, media, meta)
}

// Export serializes a stored package to the configured destination and
// returns the archive name.
func (a *App) Export(id string, opts obs.ArchiveOptions) (string, error) {
	return a.service.ExportPackage(id, opts)
}

// History returns summary rows for recently built packages.
func (a *App) History(limit int) ([]*model.PackageRecord, error) {
	return a.service.History(limit)
}

// Close closes all resources.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// readValues decodes a values file: a JSON object mapping labelId to a
// scalar (string, number, boolean, or null).
func readValues(path string) (map[string]model.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading values file: %w", err)
	}

	var values map[string]model.Value
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding values file: %w", err)
	}
	return values, nil
}
