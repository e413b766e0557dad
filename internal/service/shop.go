package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/tamagotchi-server/internal/catalog"
	"github.com/mmeshcher/tamagotchi-server/internal/model"
)

// Ограничения выборки истории покупок.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// InventoryItem описывает запись инвентаря вместе с товаром каталога.
// Item равен nil, если товар пропал из каталога.
type InventoryItem struct {
	model.InventoryEntry
	Item *catalog.Item
}

// Items возвращает товары магазина.
func (s *Service) Items() []catalog.Item {
	return s.catalog.Items()
}

// Buy покупает товар для питомца: списывает цену, кладёт товар в инвентарь
// и записывает покупку одной транзакцией.
func (s *Service) Buy(ctx context.Context, petID, itemID string) (*model.Pet, error) {
	if itemID == "" {
		return nil, ErrInvalidInput
	}
	it, ok := s.catalog.FindItem(itemID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	p, err := s.repo.Purchase(ctx, petID, it.ID, it.Price, s.timestamp())
	if err != nil {
		return nil, err
	}

	s.logger.Info("item purchased",
		zap.String("pet_id", petID),
		zap.String("item_id", it.ID),
		zap.Int("price", it.Price),
	)
	s.notify(p)
	return p, nil
}

// UseItem применяет предмет из инвентаря к питомцу с учётом бонусов его вида.
// Питомец проверяется раньше каталога. Возвращает питомца и оставшееся количество предмета.
func (s *Service) UseItem(ctx context.Context, petID, itemID string) (*model.Pet, int, error) {
	if itemID == "" {
		return nil, 0, ErrInvalidInput
	}
	if _, err := s.repo.GetPet(ctx, petID); err != nil {
		return nil, 0, err
	}
	it, ok := s.catalog.FindItem(itemID)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	p, remaining, err := s.repo.ConsumeItem(ctx, petID, it.ID, s.timestamp(), func(p *model.Pet) error {
		p.ApplyEffect(s.catalog.ResolveEffect(p.Kind, it))
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	s.notify(p)
	return p, remaining, nil
}

// GetInventory возвращает инвентарь питомца, недавно изменённые записи первыми.
func (s *Service) GetInventory(ctx context.Context, petID string) ([]InventoryItem, error) {
	if _, err := s.repo.GetPet(ctx, petID); err != nil {
		return nil, err
	}

	entries, err := s.repo.GetInventory(ctx, petID)
	if err != nil {
		return nil, err
	}

	res := make([]InventoryItem, 0, len(entries))
	for _, e := range entries {
		row := InventoryItem{InventoryEntry: e}
		if it, ok := s.catalog.FindItem(e.ItemID); ok {
			row.Item = &it
		}
		res = append(res, row)
	}
	return res, nil
}

// GetPurchaseHistory возвращает последние покупки питомца, новые первыми.
// Неположительный limit заменяется значением по умолчанию, слишком большой ограничивается.
func (s *Service) GetPurchaseHistory(ctx context.Context, petID string, limit int) ([]model.PurchaseRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	if _, err := s.repo.GetPet(ctx, petID); err != nil {
		return nil, err
	}
	return s.repo.GetPurchases(ctx, petID, limit)
}
