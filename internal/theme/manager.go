package theme

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/polygonid/verifier-node/internal/log"
)

// RemoteStore is the remote side of the theme preference
type RemoteStore interface {
	Get(ctx context.Context, account string) (Mode, error)
	Set(ctx context.Context, account string, mode Mode) error
}

// Manager holds the selected mode and the system theme.
// The selected mode is saved locally and mirrored to the remote store when there is one.
type Manager struct {
	mu     sync.RWMutex
	store  *Store
	remote RemoteStore
	delay  time.Duration
	mode   Mode
	system Mode
	loaded bool
}

// NewManager returns a Manager with the mode saved in store. remote may be nil.
func NewManager(store *Store, remote RemoteStore, delay time.Duration) (*Manager, error) {
	mode, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:  store,
		remote: remote,
		delay:  delay,
		mode:   mode,
		system: Light,
	}, nil
}

// Load fetches the remote theme of account once. It becomes both the selected mode and the system
// theme. Failures keep the local state.
func (m *Manager) Load(ctx context.Context, account string) {
	m.mu.RLock()
	done := m.loaded || m.remote == nil
	m.mu.RUnlock()
	if done {
		return
	}

	mode, err := m.remote.Get(ctx, account)
	if err != nil {
		log.Warn(ctx, "could not load remote theme", "account", account, "err", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	if mode != Auto {
		m.system = mode
	}
	m.loaded = true
	if err := m.store.Save(mode); err != nil {
		log.Warn(ctx, "could not save theme", "err", err)
	}
	log.Debug(ctx, "remote theme set", "account", account, "mode", mode)
}

// Switch selects mode after the switch delay. The remote store is updated first, its failure is
// logged and the mode is applied anyway.
func (m *Manager) Switch(ctx context.Context, account string, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if m.remote != nil {
		if err := m.remote.Set(ctx, account, mode); err != nil {
			log.Warn(ctx, "could not update remote theme", "account", account, "err", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return m.store.Save(mode)
}

// SetSystemTheme records the theme of the device. Only Light and Dark are accepted.
func (m *Manager) SetSystemTheme(mode Mode) error {
	if mode != Light && mode != Dark {
		return fmt.Errorf("%w: system theme must be light or dark", ErrInvalidMode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = mode
	return nil
}

// Mode returns the selected mode
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// SystemTheme returns the theme of the device
func (m *Manager) SystemTheme() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.system
}

// IsDarkMode resolves Auto with the system theme
func (m *Manager) IsDarkMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode := m.mode
	if mode == Auto {
		mode = m.system
	}
	return mode == Dark
}
