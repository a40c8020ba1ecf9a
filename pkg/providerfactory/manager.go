package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"momentum-hq/engine/pkg/config"
	"momentum-hq/engine/pkg/providers"
)

// ErrProviderNotFound is returned by Get for an unknown name.
var ErrProviderNotFound = errors.New("provider not found")

// Manager owns the configured provider instances and closes them on
// shutdown. It is safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]providers.Provider
	logger    *slog.Logger
}

// NewManager creates an empty provider manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]providers.Provider),
		logger:    slog.Default().With("component", "providerfactory"),
	}
}

// Add registers p under its name, closing any provider it replaces.
func (m *Manager) Add(p providers.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.GetName()
	if existing, ok := m.providers[name]; ok {
		m.logger.Warn("replacing existing provider", "name", name)
		_ = existing.Close()
	}
	m.providers[name] = p
}

// LoadFromConfig creates every configured provider. Entries that fail are
// skipped and their errors joined into the returned error, so a missing API
// key for one provider leaves the others usable.
func (m *Manager) LoadFromConfig(cfgs map[string]config.ProviderConfig) error {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		p, err := NewProvider(name, cfgs[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.Add(p)
		m.logger.Info("provider loaded", "name", name)
	}
	return errors.Join(errs...)
}

// Get returns the provider registered under name.
func (m *Manager) Get(name string) (providers.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every provider. The manager is empty afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %q: %w", name, err))
		}
	}
	m.providers = make(map[string]providers.Provider)
	return errors.Join(errs...)
}
