package capture

import (
	"context"
	"fmt"
	"strconv"
)

// Preferences is a PreferenceStore handle scoped to one namespace.
// Components receive their own handle at construction.
type Preferences struct {
	store     PreferenceStore
	namespace string
}

// NewPreferences returns a handle for namespace backed by store.
func NewPreferences(store PreferenceStore, namespace string) *Preferences {
	return &Preferences{store: store, namespace: namespace}
}

// Namespace returns the namespace this handle is scoped to.
func (p *Preferences) Namespace() string {
	return p.namespace
}

// GetString returns the value for key, or def if it has never been set.
func (p *Preferences) GetString(ctx context.Context, key, def string) (string, error) {
	v, ok, err := p.store.GetPreference(ctx, p.namespace, key)
	if err != nil {
		return "", fmt.Errorf("reading preference %s/%s: %w", p.namespace, key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// SetString stores value for key.
func (p *Preferences) SetString(ctx context.Context, key, value string) error {
	if err := p.store.SetPreference(ctx, p.namespace, key, value); err != nil {
		return fmt.Errorf("writing preference %s/%s: %w", p.namespace, key, err)
	}
	return nil
}

// InitStrings stores values only if none of the keys is set, atomically
// with respect to every other writer of the store. It reports whether the
// values were written.
func (p *Preferences) InitStrings(ctx context.Context, values map[string]string) (bool, error) {
	ok, err := p.store.InitPreferences(ctx, p.namespace, values)
	if err != nil {
		return false, fmt.Errorf("initializing preferences in %s: %w", p.namespace, err)
	}
	return ok, nil
}

// GetBool returns the boolean value for key, or def if it has never been set.
func (p *Preferences) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := p.GetString(ctx, key, strconv.FormatBool(def))
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing preference %s/%s: %w", p.namespace, key, err)
	}
	return b, nil
}

// SetBool stores a boolean value for key.
func (p *Preferences) SetBool(ctx context.Context, key string, value bool) error {
	return p.SetString(ctx, key, strconv.FormatBool(value))
}
