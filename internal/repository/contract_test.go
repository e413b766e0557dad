package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tamagotchi-server/internal/model"
)

// store описывает общий контракт хранилищ, проверяемый одними и теми же тестами.
type store interface {
	CreatePet(ctx context.Context, p *model.Pet) error
	GetPet(ctx context.Context, id string) (*model.Pet, error)
	ListPetsByOwner(ctx context.Context, ownerID string) ([]model.Pet, error)
	ListPetIDs(ctx context.Context) ([]string, error)
	UpdatePet(ctx context.Context, id string, fn func(p *model.Pet) error) (*model.Pet, error)
	Purchase(ctx context.Context, petID, itemID string, price int, now time.Time) (*model.Pet, error)
	ConsumeItem(ctx context.Context, petID, itemID string, now time.Time, fn func(p *model.Pet) error) (*model.Pet, int, error)
	GetInventory(ctx context.Context, petID string) ([]model.InventoryEntry, error)
	GetPurchases(ctx context.Context, petID string, limit int) ([]model.PurchaseRecord, error)
	DeletePet(ctx context.Context, id string) error
}

var (
	_ store = (*MemoryRepository)(nil)
	_ store = (*PostgresRepository)(nil)
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

func newTestPet(t *testing.T, r store, owner string, kind model.Kind, coins int) *model.Pet {
	t.Helper()
	p := model.NewPet(uuid.NewString(), owner, "Pet "+string(kind), kind, baseTime)
	p.Coins = coins
	require.NoError(t, r.CreatePet(context.Background(), &p))
	return &p
}

func runContract(t *testing.T, newStore func(t *testing.T) store) {
	t.Run("create and get round trip", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := model.NewPet(uuid.NewString(), "owner-1", "Rex", model.KindDog, baseTime)
		p.Age = 3
		p.Health, p.Hunger, p.Happiness, p.Energy, p.Cleanliness = 42, 17, 88, 5, 63
		p.Coins = 1234
		require.NoError(t, r.CreatePet(ctx, &p))

		assert.Equal(t, Timestamp(baseTime), p.CreatedAt)

		got, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, *got)
		assert.Equal(t, []int{42, 17, 88, 5, 63}, []int{got.Health, got.Hunger, got.Happiness, got.Energy, got.Cleanliness})
		assert.Equal(t, 1234, got.Coins)

		pets, err := r.ListPetsByOwner(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, []model.Pet{p}, pets)
	})

	t.Run("unknown pet", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		_, err := r.GetPet(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrPetNotFound)

		_, err = r.GetPet(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrPetNotFound)

		assert.ErrorIs(t, r.DeletePet(ctx, uuid.NewString()), ErrPetNotFound)

		_, err = r.UpdatePet(ctx, uuid.NewString(), func(p *model.Pet) error { return nil })
		assert.ErrorIs(t, err, ErrPetNotFound)
	})

	t.Run("one pet per kind per owner", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		newTestPet(t, r, "owner-1", model.KindCat, 0)
		newTestPet(t, r, "owner-2", model.KindCat, 0)

		dup := model.NewPet(uuid.NewString(), "owner-1", "Tom", model.KindCat, baseTime)
		assert.ErrorIs(t, r.CreatePet(ctx, &dup), ErrKindTaken)

		pets, err := r.ListPetsByOwner(ctx, "owner-1")
		require.NoError(t, err)
		assert.Len(t, pets, 1)
	})

	t.Run("list by owner and all ids", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		a := newTestPet(t, r, "owner-1", model.KindDog, 0)
		b := newTestPet(t, r, "owner-1", model.KindMonkey, 0)
		c := newTestPet(t, r, "owner-2", model.KindDog, 0)

		pets, err := r.ListPetsByOwner(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, pets, 2)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{pets[0].ID, pets[1].ID})

		ids, err := r.ListPetIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID}, ids)

		none, err := r.ListPetsByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update applies mutation", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindDog, 0)
		updated, err := r.UpdatePet(ctx, p.ID, func(p *model.Pet) error {
			p.Play()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10, updated.Hunger)

		got, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.Hunger)
		assert.Equal(t, 90, got.Energy)
	})

	t.Run("update error rolls back", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindDog, 0)
		boom := errors.New("boom")
		_, err := r.UpdatePet(ctx, p.ID, func(p *model.Pet) error {
			p.Health = 1
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InitialHealth, got.Health)
	})

	t.Run("concurrent feeds are all applied", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindDog, 0)
		_, err := r.UpdatePet(ctx, p.ID, func(p *model.Pet) error {
			p.Hunger = 100
			p.Health = 50
			return nil
		})
		require.NoError(t, err)

		const workers = 4
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.UpdatePet(ctx, p.ID, func(p *model.Pet) error {
					p.Feed()
					return nil
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, got.Hunger)
		assert.Equal(t, 70, got.Health)
	})

	t.Run("purchase debits and records", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindDog, 50)

		got, err := r.Purchase(ctx, p.ID, "basic_food", 10, baseTime)
		require.NoError(t, err)
		assert.Equal(t, 40, got.Coins)

		_, err = r.Purchase(ctx, p.ID, "basic_food", 10, baseTime.Add(time.Minute))
		require.NoError(t, err)
		_, err = r.Purchase(ctx, p.ID, "soap_basic", 15, baseTime.Add(2*time.Minute))
		require.NoError(t, err)

		stored, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 15, stored.Coins)

		inv, err := r.GetInventory(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, inv, 2)
		assert.Equal(t, "soap_basic", inv[0].ItemID)
		assert.Equal(t, 1, inv[0].Quantity)
		assert.Equal(t, "basic_food", inv[1].ItemID)
		assert.Equal(t, 2, inv[1].Quantity)
		assert.Equal(t, Timestamp(baseTime), inv[1].CreatedAt)
		assert.Equal(t, Timestamp(baseTime.Add(time.Minute)), inv[1].UpdatedAt)

		hist, err := r.GetPurchases(ctx, p.ID, 20)
		require.NoError(t, err)
		require.Len(t, hist, 3)
		assert.Equal(t, "soap_basic", hist[0].ItemID)
		assert.Equal(t, 15, hist[0].Price)
		assert.Equal(t, Timestamp(baseTime.Add(2*time.Minute)), hist[0].CreatedAt)
		assert.Equal(t, "basic_food", hist[2].ItemID)

		limited, err := r.GetPurchases(ctx, p.ID, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("unaffordable purchase changes nothing", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindCat, 5)

		_, err := r.Purchase(ctx, p.ID, "basic_food", 10, baseTime)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		got, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Coins)

		inv, err := r.GetInventory(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, inv)

		hist, err := r.GetPurchases(ctx, p.ID, 20)
		require.NoError(t, err)
		assert.Empty(t, hist)
	})

	t.Run("concurrent purchases never overdraw", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindDog, 30)

		const workers = 5
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Purchase(ctx, p.ID, "basic_food", 10, baseTime)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		ok, broke := 0, 0
		for err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientFunds):
				broke++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 3, ok)
		assert.Equal(t, 2, broke)

		got, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Coins)

		hist, err := r.GetPurchases(ctx, p.ID, 20)
		require.NoError(t, err)
		assert.Len(t, hist, 3)
	})

	t.Run("consume decrements and deletes at zero", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindDog, 100)
		_, err := r.Purchase(ctx, p.ID, "medkit_small", 30, baseTime)
		require.NoError(t, err)
		_, err = r.Purchase(ctx, p.ID, "medkit_small", 30, baseTime)
		require.NoError(t, err)

		applied := 0
		heal := func(p *model.Pet) error {
			applied++
			p.ApplyEffect(model.Effects{model.StatHunger: 5})
			return nil
		}

		got, remaining, err := r.ConsumeItem(ctx, p.ID, "medkit_small", baseTime.Add(time.Hour), heal)
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)
		assert.Equal(t, 5, got.Hunger)

		_, remaining, err = r.ConsumeItem(ctx, p.ID, "medkit_small", baseTime.Add(2*time.Hour), heal)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)

		inv, err := r.GetInventory(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, inv)

		_, _, err = r.ConsumeItem(ctx, p.ID, "medkit_small", baseTime, heal)
		assert.ErrorIs(t, err, ErrItemNotInInventory)
		assert.Equal(t, 2, applied)

		stored, err := r.GetPet(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, stored.Hunger)
	})

	t.Run("consume without stock does not touch pet", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindCat, 0)
		_, _, err := r.ConsumeItem(ctx, p.ID, "soap_basic", baseTime, func(p *model.Pet) error {
			t.Fatal("mutator must not run without stock")
			return nil
		})
		assert.ErrorIs(t, err, ErrItemNotInInventory)

		_, _, err = r.ConsumeItem(ctx, uuid.NewString(), "soap_basic", baseTime, func(p *model.Pet) error { return nil })
		assert.ErrorIs(t, err, ErrPetNotFound)
	})

	t.Run("delete cascades", func(t *testing.T) {
		r := newStore(t)
		ctx := context.Background()

		p := newTestPet(t, r, "owner-1", model.KindMonkey, 100)
		_, err := r.Purchase(ctx, p.ID, "banana_snack", 15, baseTime)
		require.NoError(t, err)

		require.NoError(t, r.DeletePet(ctx, p.ID))

		_, err = r.GetPet(ctx, p.ID)
		assert.ErrorIs(t, err, ErrPetNotFound)

		ids, err := r.ListPetIDs(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, p.ID)

		again := model.NewPet(uuid.NewString(), "owner-1", "Bobo", model.KindMonkey, baseTime)
		require.NoError(t, r.CreatePet(ctx, &again))

		inv, err := r.GetInventory(ctx, again.ID)
		require.NoError(t, err)
		assert.Empty(t, inv)
	})
}
