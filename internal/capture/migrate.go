package capture

import (
	"context"
	"fmt"
)

const (
	// MigrationNamespace holds one boolean flag per migration step plus
	// PreviousVersionKey.
	MigrationNamespace = "migration"

	// PreviousVersionKey stores the app version that last completed a step.
	PreviousVersionKey = "PREVIOUS_VERSION"
)

// MigrationStep is a one-time upgrade of local state. Run must be safe to
// repeat if it was interrupted before its flag was persisted.
type MigrationStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// Migrator executes migration steps at most once each, in order.
type Migrator struct {
	prefs      *Preferences
	gate       *Gate
	appVersion string
	logger     Logger
	steps      []MigrationStep
}

// NewMigrator creates a Migrator that records progress in store.
// gate may be nil when nothing else touches the proof repository.
func NewMigrator(store PreferenceStore, gate *Gate, appVersion string, logger Logger, steps ...MigrationStep) *Migrator {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Migrator{
		prefs:      NewPreferences(store, MigrationNamespace),
		gate:       gate,
		appVersion: appVersion,
		logger:     logger,
		steps:      steps,
	}
}

// Migrate runs every step whose flag is not yet set. A step that fails
// stops the run; later steps are not attempted.
func (m *Migrator) Migrate(ctx context.Context) error {
	pending, err := m.pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	run := func() error {
		m.logger.Info("upgrading local data", "steps", len(pending), "version", m.appVersion)
		for _, step := range pending {
			if err := m.runStep(ctx, step); err != nil {
				return err
			}
		}
		return nil
	}

	if m.gate == nil {
		return run()
	}
	return m.gate.Exclusive(run)
}

// runStep re-checks the flag, since another run could have completed the
// step while this one waited for the gate.
func (m *Migrator) runStep(ctx context.Context, step MigrationStep) error {
	done, err := m.prefs.GetBool(ctx, step.Name, false)
	if err != nil {
		return fmt.Errorf("reading migration flag %s: %w", step.Name, err)
	}
	if done {
		return nil
	}

	m.logger.Info("running migration", "step", step.Name)
	if err := step.Run(ctx); err != nil {
		return fmt.Errorf("migration %s: %w", step.Name, err)
	}

	if err := m.prefs.SetBool(ctx, step.Name, true); err != nil {
		return fmt.Errorf("recording migration %s: %w", step.Name, err)
	}
	if err := m.prefs.SetString(ctx, PreviousVersionKey, m.appVersion); err != nil {
		return fmt.Errorf("recording previous version: %w", err)
	}
	m.logger.Info("migration complete", "step", step.Name)
	return nil
}

func (m *Migrator) pending(ctx context.Context) ([]MigrationStep, error) {
	var pending []MigrationStep
	for _, step := range m.steps {
		done, err := m.prefs.GetBool(ctx, step.Name, false)
		if err != nil {
			return nil, fmt.Errorf("reading migration flag %s: %w", step.Name, err)
		}
		if !done {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// MigrationDone reports whether every step has completed.
func (m *Migrator) MigrationDone(ctx context.Context) (bool, error) {
	pending, err := m.pending(ctx)
	if err != nil {
		return false, err
	}
	return len(pending) == 0, nil
}

// PreviousVersion returns the app version recorded by the last completed
// step, or "" if none has run.
func (m *Migrator) PreviousVersion(ctx context.Context) (string, error) {
	return m.prefs.GetString(ctx, PreviousVersionKey, "")
}

// RemoveLocalPostCapturesStep is the name of the step that drops local
// copies of assets that were transferred to this device by another owner.
const RemoveLocalPostCapturesStep = "TO_0_15_0"

// assetPageSize is the page size used when enumerating backend assets.
const assetPageSize = 100

// RemoveLocalPostCaptures returns a migration step that deletes local proofs
// whose hash matches a backend asset this user does not originally own.
func RemoveLocalPostCaptures(proofs ProofRepository, assets AssetBackend, logger Logger) MigrationStep {
	if logger == nil {
		logger = NewNopLogger()
	}
	return MigrationStep{
		Name: RemoveLocalPostCapturesStep,
		Run: func(ctx context.Context) error {
			local, err := proofs.GetAll(ctx)
			if err != nil {
				return fmt.Errorf("listing local proofs: %w", err)
			}
			if len(local) == 0 {
				return nil
			}

			remote, err := ListAllNotOriginallyOwned(ctx, assets)
			if err != nil {
				return err
			}

			owned := make(map[string]bool, len(remote))
			for _, a := range remote {
				owned[a.ProofHash] = true
			}

			var doomed []*Proof
			for _, p := range local {
				if owned[p.Hash] {
					doomed = append(doomed, p)
				}
			}
			if len(doomed) == 0 {
				return nil
			}

			logger.Info("removing post captures", "count", len(doomed))
			if err := proofs.Remove(ctx, doomed...); err != nil {
				return fmt.Errorf("removing post captures: %w", err)
			}
			return nil
		},
	}
}
