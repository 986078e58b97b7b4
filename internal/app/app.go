package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"capture-go/internal/backend"
	"capture-go/internal/capture"
	"capture-go/internal/config"
	"capture-go/internal/contentstore"
	"capture-go/internal/database"
	"capture-go/internal/encryption"
	"capture-go/internal/facts"
	"capture-go/internal/fs"
	"capture-go/internal/proof"
	"capture-go/internal/publisher"
	"capture-go/internal/share"
	"capture-go/internal/signature"
)

// BuildCode is reported as the appVersionCode fact. Set at link time with
// -ldflags "-X capture-go/internal/app.BuildCode=...".
var BuildCode = "dev"

// shutdownTimeout bounds how long Close waits for background pipelines.
const shutdownTimeout = 2 * time.Minute

// App is the application layer between the CLI and the capture pipeline.
// It constructs all dependencies from config, runs pending migrations,
// exposes high-level operations that accept raw strings, and drains
// in-flight work on Close.
type App struct {
	cfg        *config.Config
	db         *database.SQLiteDatabase
	proofs     *proof.Repository
	device     *facts.DeviceProvider
	signer     *signature.ECDSAProvider
	collector  *capture.Collector
	tasks      *capture.ProcessTasks
	migrator   *capture.Migrator
	publisher  capture.Publisher
	encryptor  capture.Encryptor
	importer   *fs.Importer
	logger     capture.Logger
	op         *Operation
	logFile    *os.File
	background bool
}

// New creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Add", "Publish").
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, slog.LevelInfo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a, err := wire(ctx, cfg, logger)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	a.op = NewOperation(operation, "")

	a.runStartupMigrations(ctx)
	return a, nil
}

// wire builds every component. Nothing is started.
func wire(ctx context.Context, cfg *config.Config, logger capture.Logger) (*App, error) {
	clock := capture.RealClock{}
	idgen := capture.UUIDGenerator{}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceName, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	content, err := contentstore.NewFileSystemStore(
		filepath.Join(cfg.DataDir, "raw"),
		filepath.Join(cfg.DataDir, "tables"),
		"image",
		contentstore.ImageThumbnailer{},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}
	if cfg.Collector.ThumbnailSize > 0 {
		content.SetThumbnailSize(cfg.Collector.ThumbnailSize)
	}

	proofs, err := proof.NewRepository(filepath.Join(cfg.DataDir, "proof"), content, db, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating proof repository: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	pub, err := publisher.NewPublisherFromConfig(ctx, cfg.Publisher, cfg.Backend.Timeout)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	var geo facts.Geolocator
	if cfg.Geolocation.Enabled {
		geo = facts.FixedGeolocator{Position: facts.Position{
			Latitude:  cfg.Geolocation.Latitude,
			Longitude: cfg.Geolocation.Longitude,
		}}
	}
	device := facts.NewDeviceProvider(
		facts.NewHostDevice(cfg.DeviceName, cfg.DataDir),
		geo,
		db,
		facts.AppInfo{Version: cfg.AppVersion, VersionCode: BuildCode},
		idgen,
	)
	signer := signature.NewECDSAProvider(db)

	gate := capture.NewGate()
	opts := capture.CollectorOptions{
		FactProviders:      []capture.FactProvider{device},
		SignatureProviders: []capture.SignatureProvider{signer},
		Gate:               gate,
		Recorder:           cfg.Collector.Recorder,
		Logger:             logger,
		Clock:              clock,
	}
	var tasks *capture.ProcessTasks
	if cfg.Collector.Background {
		tasks = capture.NewProcessTasks(idgen)
		opts.Tasks = tasks
	}
	collector := capture.NewCollector(proofs, db, db, opts)

	migrator := capture.NewMigrator(db, gate, cfg.AppVersion, logger,
		capture.RemoveLocalPostCaptures(proofs, backend.NewClientFromConfig(cfg.Backend), logger),
	)

	return &App{
		cfg:        cfg,
		db:         db,
		proofs:     proofs,
		device:     device,
		signer:     signer,
		collector:  collector,
		tasks:      tasks,
		migrator:   migrator,
		publisher:  pub,
		encryptor:  enc,
		importer:   fs.NewImporter(cfg.Filesystem.Ignore),
		logger:     logger,
		background: cfg.Collector.Background,
	}, nil
}

// runStartupMigrations applies pending migrations. A backend that cannot be
// reached leaves the step pending for the next start.
func (a *App) runStartupMigrations(ctx context.Context) {
	err := a.migrator.Migrate(ctx)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrNoToken):
		a.logger.Debug("migration deferred", "reason", "no backend token")
	case errors.Is(err, capture.ErrTimeout), errors.Is(err, capture.ErrTransport):
		a.logger.Warn("migration deferred", "error", err)
	default:
		a.logger.Error("migration failed", "error", err)
	}
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for mutating commands.
func (a *App) persistOperation(ctx context.Context, parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = strings.Join(parameters, " ")
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// track persists the operation and marks it failed when err is non-nil.
func (a *App) track(ctx context.Context, err error, parameters ...string) error {
	if perr := a.persistOperation(ctx, parameters...); perr != nil {
		return errors.Join(err, perr)
	}
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Add captures the file at rawPath, or every media file in it when it is a
// directory. mime overrides detection for a single file. In background mode
// the pipelines are started and Close waits for them. Returns the content
// hashes of the captured files.
func (a *App) Add(ctx context.Context, rawPath string, recursive bool, mime string) ([]string, error) {
	hashes, err := a.add(ctx, rawPath, recursive, mime)
	return hashes, a.track(ctx, err, rawPath)
}

func (a *App) add(ctx context.Context, rawPath string, recursive bool, mime string) ([]string, error) {
	_, info, err := a.importer.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	var files []*fs.MediaFile
	if info.IsDir() {
		if mime != "" {
			return nil, fmt.Errorf("--mime applies to single files only")
		}
		if files, err = a.importer.FindMedia(rawPath, recursive); err != nil {
			return nil, err
		}
	} else {
		f, err := a.importer.Detect(rawPath, mime)
		if err != nil {
			return nil, err
		}
		files = []*fs.MediaFile{f}
	}

	hashes := make([]string, 0, len(files))
	for _, f := range files {
		data, err := a.importer.Read(f)
		if err != nil {
			return hashes, err
		}
		if a.background {
			a.collector.StoreAndCollect(ctx, data, f.MimeType)
			hashes = append(hashes, capture.ContentHash(data))
			continue
		}
		p, err := a.collector.Collect(ctx, data, f.MimeType)
		if err != nil {
			return hashes, fmt.Errorf("capturing %s: %w", f.Path, err)
		}
		a.logger.Info("captured", "path", f.Path, "hash", p.Hash)
		hashes = append(hashes, p.Hash)
	}
	return hashes, nil
}

// Proofs returns every stored proof, oldest first.
func (a *App) Proofs(ctx context.Context) ([]*capture.Proof, error) {
	return a.proofs.GetAll(ctx)
}

// Show returns the proof with its facts and signatures. The raw content is
// not loaded.
func (a *App) Show(ctx context.Context, hash string) (*capture.Bundle, error) {
	b, err := capture.LoadBundle(ctx, a.proofs, a.db, a.db, hash)
	if err != nil {
		return nil, err
	}
	b.Raw = nil
	return b, nil
}

// SignatureCheck is the verification result of one stored signature.
type SignatureCheck struct {
	Provider string
	Valid    bool
	Err      error
}

// Verify re-derives the signed payload of a proof and checks every stored
// signature from a known provider against it.
func (a *App) Verify(ctx context.Context, hash string) ([]SignatureCheck, error) {
	p, err := a.proofs.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("proof %s: %w", hash, capture.ErrNotFound)
	}

	payload, err := a.collector.Payload(ctx, p)
	if err != nil {
		return nil, err
	}
	sigs, err := a.db.SignaturesForProof(ctx, p.Hash)
	if err != nil {
		return nil, err
	}

	checks := make([]SignatureCheck, 0, len(sigs))
	for _, s := range sigs {
		c := SignatureCheck{Provider: s.Provider}
		if s.Provider != signature.ProviderName {
			c.Err = fmt.Errorf("unknown signature provider %s", s.Provider)
		} else if err := signature.Verify(payload, s.Signature, s.PublicKey); err != nil {
			c.Err = err
		} else {
			c.Valid = true
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// Remove deletes a proof together with its content, facts and signatures.
func (a *App) Remove(ctx context.Context, hash string) error {
	return a.track(ctx, a.remove(ctx, hash), hash)
}

func (a *App) remove(ctx context.Context, hash string) error {
	p, err := a.proofs.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("proof %s: %w", hash, capture.ErrNotFound)
	}
	return a.proofs.Remove(ctx, p)
}

// RawFile writes the raw content of a proof to w.
func (a *App) RawFile(ctx context.Context, hash string, w io.Writer) error {
	data, err := a.proofs.RawFile(ctx, hash)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	return nil
}

// Thumbnail returns the thumbnail data URL of a proof.
func (a *App) Thumbnail(ctx context.Context, hash string) (string, error) {
	p, err := a.proofs.GetByHash(ctx, hash)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("proof %s: %w", hash, capture.ErrNotFound)
	}
	return a.proofs.Thumbnail(ctx, p)
}

// CollectionSettings reports which fact groups are collected.
func (a *App) CollectionSettings(ctx context.Context) (device, location bool, err error) {
	if device, err = a.device.DeviceInfoEnabled(ctx); err != nil {
		return false, false, err
	}
	if location, err = a.device.LocationEnabled(ctx); err != nil {
		return false, false, err
	}
	return device, location, nil
}

// SetCollection switches a fact group ("device" or "location") on or off.
func (a *App) SetCollection(ctx context.Context, group string, enabled bool) error {
	var err error
	switch group {
	case "device":
		err = a.device.SetDeviceInfoEnabled(ctx, enabled)
	case "location":
		err = a.device.SetLocationEnabled(ctx, enabled)
	default:
		err = fmt.Errorf("unknown setting: %s", group)
	}
	return a.track(ctx, err, group, fmt.Sprint(enabled))
}

// SigningKey returns the public signing key, creating the pair on first use.
func (a *App) SigningKey(ctx context.Context) (string, error) {
	return a.signer.PublicKey(ctx)
}

// InitKeys creates the signing key pair if needed and, when passphrase is
// non-empty and no share keys exist yet, the share key pair.
func (a *App) InitKeys(ctx context.Context, passphrase string) error {
	err := a.signer.Initialize(ctx)
	if err == nil && passphrase != "" && !a.encryptor.IsConfigured() {
		err = a.encryptor.Setup(passphrase)
	}
	return a.track(ctx, err)
}

// ShareRecipient returns the local share public key.
func (a *App) ShareRecipient() (string, error) {
	return a.encryptor.Recipient()
}

// SharingConfigured reports whether share keys exist.
func (a *App) SharingConfigured() bool {
	return a.encryptor.IsConfigured()
}

// Migrate runs pending migrations and reports the errors that startup
// only logs.
func (a *App) Migrate(ctx context.Context) error {
	return a.track(ctx, a.migrator.Migrate(ctx))
}

// MigrationStatus reports whether all migrations ran and the version that
// last completed one.
func (a *App) MigrationStatus(ctx context.Context) (bool, string, error) {
	done, err := a.migrator.MigrationDone(ctx)
	if err != nil {
		return false, "", err
	}
	prev, err := a.migrator.PreviousVersion(ctx)
	if err != nil {
		return false, "", err
	}
	return done, prev, nil
}

// Publish uploads a proof bundle and records the returned identifier.
func (a *App) Publish(ctx context.Context, hash string) (string, error) {
	id, err := a.publish(ctx, hash)
	return id, a.track(ctx, err, hash)
}

func (a *App) publish(ctx context.Context, hash string) (string, error) {
	if a.publisher == nil {
		return "", fmt.Errorf("no publisher configured")
	}
	b, err := capture.LoadBundle(ctx, a.proofs, a.db, a.db, hash)
	if err != nil {
		return "", err
	}
	id, err := capture.PublishBundle(ctx, a.proofs, a.publisher, b)
	if err != nil {
		return "", err
	}
	a.logger.Info("published", "hash", b.Proof.Hash, "publisher", a.publisher.Name(), "id", id)
	return id, nil
}

// Share writes an encrypted bundle of a proof to w for the recipients.
func (a *App) Share(ctx context.Context, hash string, w io.Writer, recipients ...string) error {
	b, err := capture.LoadBundle(ctx, a.proofs, a.db, a.db, hash)
	if err != nil {
		return err
	}
	return share.Export(b, a.encryptor, w, recipients...)
}

// OpenShare decrypts a bundle with the local identity. With importIt the
// proof is stored locally; the returned flag reports whether it was new.
func (a *App) OpenShare(ctx context.Context, r io.Reader, passphrase string, importIt bool) (*capture.Bundle, bool, error) {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, false, fmt.Errorf("unlocking share key: %w", err)
	}
	b, err := share.Open(r, dc)
	if err != nil {
		return nil, false, err
	}
	if !importIt {
		return b, false, nil
	}

	added, err := share.Import(ctx, b, a.proofs, a.db, a.db)
	return b, added, a.track(ctx, err, b.Proof.Hash)
}

// History returns the most recent operations.
func (a *App) History(ctx context.Context, limit int) ([]*capture.Operation, error) {
	return a.db.ListOperations(ctx, limit)
}

// Close waits for background pipelines, finalizes the operation record and
// closes all resources.
func (a *App) Close() error {
	var firstErr error

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.collector.Wait(ctx); err != nil {
		firstErr = fmt.Errorf("waiting for captures: %w", err)
	}
	if a.tasks != nil {
		if err := a.tasks.Wait(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("waiting for background tasks: %w", err)
		}
	}

	if a.op != nil && a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
