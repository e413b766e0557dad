package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/tamagotchi-server/internal/model"
)

// petRecord хранит питомца вместе с его инвентарём и историей покупок.
// Все поля защищены mu.
type petRecord struct {
	mu        sync.Mutex
	pet       model.Pet
	inventory map[string]*model.InventoryEntry
	purchases []model.PurchaseRecord
	deleted   bool
}

// MemoryRepository хранит данные в памяти процесса.
//
// Операции над одним питомцем сериализуются мьютексом его записи, разные питомцы
// друг друга не блокируют. Блокировки всегда берутся в порядке: карта, затем запись.
type MemoryRepository struct {
	mu   sync.RWMutex
	pets map[string]*petRecord
	// порядок создания для детерминированных списков
	order []string
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{pets: make(map[string]*petRecord)}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) record(id string) (*petRecord, error) {
	r.mu.RLock()
	rec, ok := r.pets[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrPetNotFound
	}
	return rec, nil
}

// locked находит запись и захватывает её мьютекс. Вызывающий освобождает rec.mu.
func (r *MemoryRepository) locked(id string) (*petRecord, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return nil, ErrPetNotFound
	}
	return rec, nil
}

// CreatePet сохраняет нового питомца.
func (r *MemoryRepository) CreatePet(_ context.Context, p *model.Pet) error {
	p.CreatedAt = Timestamp(p.CreatedAt)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.pets {
		rec.mu.Lock()
		taken := rec.pet.OwnerID == p.OwnerID && rec.pet.Kind == p.Kind
		rec.mu.Unlock()
		if taken {
			return ErrKindTaken
		}
	}

	r.pets[p.ID] = &petRecord{
		pet:       *p,
		inventory: make(map[string]*model.InventoryEntry),
	}
	r.order = append(r.order, p.ID)
	return nil
}

// GetPet возвращает копию питомца.
func (r *MemoryRepository) GetPet(_ context.Context, id string) (*model.Pet, error) {
	rec, err := r.locked(id)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	p := rec.pet
	return &p, nil
}

// ListPetsByOwner возвращает питомцев владельца в порядке создания.
func (r *MemoryRepository) ListPetsByOwner(_ context.Context, ownerID string) ([]model.Pet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pets []model.Pet
	for _, id := range r.order {
		rec := r.pets[id]
		rec.mu.Lock()
		if rec.pet.OwnerID == ownerID {
			pets = append(pets, rec.pet)
		}
		rec.mu.Unlock()
	}
	return pets, nil
}

// ListPetIDs возвращает идентификаторы всех питомцев.
func (r *MemoryRepository) ListPetIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids, nil
}

// UpdatePet выполняет сериализованное чтение-изменение-запись питомца.
// Если fn вернула ошибку, питомец не меняется.
func (r *MemoryRepository) UpdatePet(_ context.Context, id string, fn func(p *model.Pet) error) (*model.Pet, error) {
	rec, err := r.locked(id)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	p := rec.pet
	if err := fn(&p); err != nil {
		return nil, err
	}
	rec.pet = p

	out := p
	return &out, nil
}

// Purchase списывает цену, добавляет предмет в инвентарь и записывает покупку атомарно.
func (r *MemoryRepository) Purchase(_ context.Context, petID, itemID string, price int, now time.Time) (*model.Pet, error) {
	rec, err := r.locked(petID)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	if rec.pet.Coins < price {
		return nil, ErrInsufficientFunds
	}
	rec.pet.Coins -= price
	now = Timestamp(now)

	if e, ok := rec.inventory[itemID]; ok {
		e.Quantity++
		e.UpdatedAt = now
	} else {
		rec.inventory[itemID] = &model.InventoryEntry{
			PetID:     petID,
			ItemID:    itemID,
			Quantity:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	rec.purchases = append(rec.purchases, model.PurchaseRecord{
		PetID:     petID,
		ItemID:    itemID,
		Price:     price,
		CreatedAt: now,
	})

	p := rec.pet
	return &p, nil
}

// ConsumeItem применяет fn к питомцу и списывает один предмет из инвентаря.
func (r *MemoryRepository) ConsumeItem(_ context.Context, petID, itemID string, now time.Time, fn func(p *model.Pet) error) (*model.Pet, int, error) {
	rec, err := r.locked(petID)
	if err != nil {
		return nil, 0, err
	}
	defer rec.mu.Unlock()

	e, ok := rec.inventory[itemID]
	if !ok || e.Quantity <= 0 {
		return nil, 0, ErrItemNotInInventory
	}

	p := rec.pet
	if err := fn(&p); err != nil {
		return nil, 0, err
	}
	rec.pet = p

	e.Quantity--
	e.UpdatedAt = Timestamp(now)
	remaining := e.Quantity
	if remaining == 0 {
		delete(rec.inventory, itemID)
	}

	return &p, remaining, nil
}

// GetInventory возвращает инвентарь питомца, недавно изменённые записи первыми.
func (r *MemoryRepository) GetInventory(_ context.Context, petID string) ([]model.InventoryEntry, error) {
	rec, err := r.locked(petID)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	res := make([]model.InventoryEntry, 0, len(rec.inventory))
	for _, e := range rec.inventory {
		res = append(res, *e)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].UpdatedAt.After(res[j].UpdatedAt)
		}
		return res[i].ItemID < res[j].ItemID
	})
	return res, nil
}

// GetPurchases возвращает до limit последних покупок питомца, новые первыми.
func (r *MemoryRepository) GetPurchases(_ context.Context, petID string, limit int) ([]model.PurchaseRecord, error) {
	rec, err := r.locked(petID)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	n := len(rec.purchases)
	if limit < 0 {
		limit = 0
	}
	if limit > n {
		limit = n
	}
	res := make([]model.PurchaseRecord, 0, limit)
	for i := n - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, rec.purchases[i])
	}
	return res, nil
}

// DeletePet удаляет питомца вместе с инвентарём и историей покупок.
func (r *MemoryRepository) DeletePet(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.pets[id]
	if !ok {
		return ErrPetNotFound
	}

	rec.mu.Lock()
	rec.deleted = true
	rec.inventory = nil
	rec.purchases = nil
	rec.mu.Unlock()

	delete(r.pets, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
