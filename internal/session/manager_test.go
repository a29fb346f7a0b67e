package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kreatif/internal/cart"
	"github.com/noah-isme/backend-kreatif/internal/lock"
	"github.com/noah-isme/backend-kreatif/internal/session"
)

func TestManagerUpdateAndView(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryBackend(time.Hour), nil, time.Second)
	ctx := context.Background()

	state, err := mgr.View(ctx, "anon:1")
	require.NoError(t, err)
	require.Empty(t, state.Items)

	state, err = mgr.Update(ctx, "anon:1", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "t1", Kind: cart.KindTemplate, Title: "Intro Pack", Price: 100})
		s.AddItem(cart.Item{ID: "t1", Kind: cart.KindTemplate, Title: "Intro Pack", Price: 100})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, state.Items, 1)

	state, err = mgr.View(ctx, "anon:1")
	require.NoError(t, err)
	require.Len(t, state.Items, 1)

	other, err := mgr.View(ctx, "anon:2")
	require.NoError(t, err)
	require.Empty(t, other.Items)
}

func TestManagerUpdateErrorDiscardsChanges(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryBackend(0), nil, time.Second)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := mgr.Update(ctx, "k", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "x", Kind: cart.KindFolder, Price: 1})
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := mgr.View(ctx, "k")
	require.NoError(t, err)
	require.Empty(t, state.Items)
}

func TestManagerRequiresKey(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryBackend(0), nil, time.Second)
	_, err := mgr.View(context.Background(), " ")
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestManagerConcurrentAddsKeepInvariant(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryBackend(0), &lock.Keyed{}, time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := cart.KindTemplate
			if i%2 == 0 {
				kind = cart.KindAudioFolder
			}
			_, err := mgr.Update(ctx, "shared", func(s *cart.Store) error {
				s.AddItem(cart.Item{ID: "same", Kind: kind, Price: 10})
				return nil
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := mgr.View(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, state.Items, 2)
	require.EqualValues(t, 20, cart.Subtotal(state))
}

func TestManagerMerge(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryBackend(0), nil, time.Second)
	ctx := context.Background()

	_, err := mgr.Update(ctx, "anon:1", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "a", Kind: cart.KindTemplate, Price: 10})
		s.AddItem(cart.Item{ID: "b", Kind: cart.KindFolder, Price: 20})
		return nil
	})
	require.NoError(t, err)
	_, err = mgr.Update(ctx, "user:u1", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "a", Kind: cart.KindTemplate, Price: 10})
		s.SetDiscountAmount(5)
		return nil
	})
	require.NoError(t, err)

	merged, err := mgr.Merge(ctx, "anon:1", "user:u1")
	require.NoError(t, err)
	require.Len(t, merged.Items, 2)
	require.EqualValues(t, 25, cart.Total(merged))

	guest, err := mgr.View(ctx, "anon:1")
	require.NoError(t, err)
	require.Empty(t, guest.Items)
}

type userSaveFails struct {
	session.Backend
}

func (b userSaveFails) Save(ctx context.Context, key string, state cart.State) error {
	if strings.HasPrefix(key, "user:") {
		return errors.New("disk full")
	}
	return b.Backend.Save(ctx, key, state)
}

func TestManagerMergeKeepsSourceWhenDestinationFails(t *testing.T) {
	mgr := session.NewManager(userSaveFails{Backend: session.NewMemoryBackend(0)}, nil, time.Second)
	ctx := context.Background()

	_, err := mgr.Update(ctx, "anon:a", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "t1", Kind: cart.KindTemplate, Price: 10})
		return nil
	})
	require.NoError(t, err)

	_, err = mgr.Merge(ctx, "anon:a", "user:u")
	require.ErrorContains(t, err, "disk full")

	guest, err := mgr.View(ctx, "anon:a")
	require.NoError(t, err)
	require.Len(t, guest.Items, 1)
	require.Equal(t, "t1", guest.Items[0].ID)
}

func TestMemoryBackendExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := session.NewMemoryBackend(time.Minute)
	backend.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "k", cart.State{Items: []cart.Item{{ID: "a", Kind: cart.KindTemplate}}}))
	_, ok, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = backend.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, backend.Save(ctx, "j", cart.State{}))
	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, backend.Sweep())
	require.Equal(t, 0, backend.Len())
}

func TestRedisBackendRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := session.RedisBackend{Client: client, Prefix: "test:cart:", TTL: time.Hour}
	mgr := session.NewManager(backend, lock.RedisLocker{R: client, Prefix: "test:lock:"}, time.Second)
	ctx := context.Background()

	_, err = mgr.Update(ctx, "user:u1", func(s *cart.Store) error {
		s.AddItem(cart.Item{ID: "p1", Kind: cart.KindPictureTemplate, Title: "Poster", Price: 150})
		s.SetCouponCode("HEMAT")
		s.SetAppliedCoupon(&cart.Coupon{Code: "HEMAT", DiscountKind: cart.DiscountFixedAmount, Value: 50})
		s.SetDiscountAmount(50)
		return nil
	})
	require.NoError(t, err)
	require.True(t, mr.Exists("test:cart:user:u1"))
	require.Greater(t, mr.TTL("test:cart:user:u1"), time.Duration(0))

	state, err := mgr.View(ctx, "user:u1")
	require.NoError(t, err)
	require.Len(t, state.Items, 1)
	require.Equal(t, "HEMAT", state.CouponCode)
	require.NotNil(t, state.AppliedCoupon)
	require.EqualValues(t, 100, cart.Total(state))

	require.NoError(t, backend.Delete(ctx, "user:u1"))
	state, err = mgr.View(ctx, "user:u1")
	require.NoError(t, err)
	require.Empty(t, state.Items)
}
