// Package session owns the cart instance of each storefront session and
// serialises access to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/lock"
)

// ErrNoSession is returned when an operation is attempted without a session key.
var ErrNoSession = errors.New("session: key required")

// Backend stores cart snapshots by session key.
type Backend interface {
	Load(ctx context.Context, key string) (cart.State, bool, error)
	Save(ctx context.Context, key string, state cart.State) error
	Delete(ctx context.Context, key string) error
}

// Manager hands out the cart of a session. Mutations for the same key are
// applied one at a time.
type Manager struct {
	Backend Backend
	Locker  lock.Locker
	LockTTL time.Duration
}

// NewManager constructs a Manager with the given backend and locker.
func NewManager(backend Backend, locker lock.Locker, lockTTL time.Duration) *Manager {
	if locker == nil {
		locker = &lock.Keyed{}
	}
	return &Manager{Backend: backend, Locker: locker, LockTTL: lockTTL}
}

// View returns a snapshot of the session cart. Unknown sessions yield an
// empty cart.
func (m *Manager) View(ctx context.Context, key string) (cart.State, error) {
	if err := m.check(key); err != nil {
		return cart.State{}, err
	}
	state, ok, err := m.Backend.Load(ctx, key)
	if err != nil {
		return cart.State{}, fmt.Errorf("session: load %s: %w", key, err)
	}
	if !ok {
		return cart.NewStore().State(), nil
	}
	return cart.FromState(state).State(), nil
}

// Update loads the session cart, applies fn and persists the result. When fn
// returns an error nothing is saved and the error is returned unchanged.
func (m *Manager) Update(ctx context.Context, key string, fn func(*cart.Store) error) (cart.State, error) {
	if err := m.check(key); err != nil {
		return cart.State{}, err
	}
	var result cart.State
	err := m.Locker.WithLock(ctx, lockKey(key), m.LockTTL, func(ctx context.Context) error {
		store, err := m.load(ctx, key)
		if err != nil {
			return err
		}
		if err := fn(store); err != nil {
			return err
		}
		result = store.State()
		if err := m.Backend.Save(ctx, key, result); err != nil {
			return fmt.Errorf("session: save %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return cart.State{}, err
	}
	return result, nil
}

// Merge moves the items of the from session into the to session and drops
// the from session. Items already present in the destination are kept as
// they are; coupon fields of the destination are left untouched. The source
// is only emptied after the destination has been saved, so a failed merge
// leaves the anonymous cart intact.
func (m *Manager) Merge(ctx context.Context, from, to string) (cart.State, error) {
	if err := m.check(from); err != nil {
		return cart.State{}, err
	}
	if from == to {
		return m.View(ctx, to)
	}
	source, err := m.View(ctx, from)
	if err != nil {
		return cart.State{}, err
	}
	merged, err := m.Update(ctx, to, func(store *cart.Store) error {
		for _, it := range source.Items {
			store.AddItem(it)
		}
		return nil
	})
	if err != nil {
		return cart.State{}, err
	}

	err = m.Locker.WithLock(ctx, lockKey(from), m.LockTTL, func(ctx context.Context) error {
		store, err := m.load(ctx, from)
		if err != nil {
			return err
		}
		for _, it := range source.Items {
			store.RemoveItem(it.ID, it.Kind)
		}
		// items added to the source while merging stay behind
		if store.Len() > 0 {
			return m.Backend.Save(ctx, from, store.State())
		}
		return m.Backend.Delete(ctx, from)
	})
	if err != nil {
		return cart.State{}, fmt.Errorf("session: drop %s: %w", from, err)
	}
	return merged, nil
}

func (m *Manager) load(ctx context.Context, key string) (*cart.Store, error) {
	state, ok, err := m.Backend.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", key, err)
	}
	if !ok {
		return cart.NewStore(), nil
	}
	return cart.FromState(state), nil
}

func (m *Manager) check(key string) error {
	if m == nil || m.Backend == nil {
		return errors.New("session: manager not configured")
	}
	if strings.TrimSpace(key) == "" {
		return ErrNoSession
	}
	return nil
}

func lockKey(key string) string {
	return "cart:" + key
}

// UserKey returns the session key of an authenticated user.
func UserKey(userID string) string {
	return "user:" + userID
}

// AnonKey returns the session key of an anonymous visitor.
func AnonKey(id string) string {
	return "anon:" + id
}
