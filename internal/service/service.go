// Package service реализует бизнес-логику сервиса виртуальных питомцев.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/tamagotchi-server/internal/catalog"
	"github.com/mmeshcher/tamagotchi-server/internal/model"
	"github.com/mmeshcher/tamagotchi-server/internal/repository"
	"github.com/mmeshcher/tamagotchi-server/internal/validation"
)

// MaxPetsPerOwner ограничивает число питомцев у одного владельца.
const MaxPetsPerOwner = 3

var (
	// ErrInvalidInput возвращается при некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidKind возвращается при неизвестном виде питомца.
	ErrInvalidKind = errors.New("invalid pet kind")
	// ErrUnknownAction возвращается при неизвестном действии.
	ErrUnknownAction = errors.New("unknown action")
	// ErrItemNotFound возвращается, если товара нет в каталоге.
	ErrItemNotFound = errors.New("item not found")
	// ErrPetLimitReached возвращается, если у владельца уже максимум питомцев.
	ErrPetLimitReached = errors.New("pet limit reached")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
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

// Notifier получает новое состояние питомца после каждого изменения.
// Доставка best-effort: ошибки уведомлений не влияют на сохранённое состояние.
type Notifier interface {
	NotifyPet(p model.Pet)
}

// Service содержит бизнес-логику сервиса виртуальных питомцев.
type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт новый сервис. notifier может быть nil.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog.Default(),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotifier подключает получателя уведомлений. Вызывается до начала обработки запросов.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// timestamp возвращает текущее время с точностью хранилища.
func (s *Service) timestamp() time.Time {
	return repository.Timestamp(s.now())
}

func (s *Service) notify(p *model.Pet) {
	if s.notifier == nil || p == nil {
		return
	}
	s.notifier.NotifyPet(*p)
}

// CreatePet создаёт питомца владельцу. У владельца не больше трёх питомцев
// и не больше одного питомца каждого вида.
func (s *Service) CreatePet(ctx context.Context, ownerID, name, kind string) (*model.Pet, error) {
	if ownerID == "" || !validation.IsValidPetName(name) {
		return nil, ErrInvalidInput
	}
	k, err := model.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	existing, err := s.repo.ListPetsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= MaxPetsPerOwner {
		return nil, ErrPetLimitReached
	}

	p := model.NewPet(uuid.NewString(), ownerID, validation.NormalizePetName(name), k, s.timestamp())
	if err := s.repo.CreatePet(ctx, &p); err != nil {
		return nil, err
	}

	s.logger.Info("pet created",
		zap.String("pet_id", p.ID),
		zap.String("owner_id", ownerID),
		zap.String("kind", string(k)),
	)
	return &p, nil
}

// ListPets возвращает питомцев владельца.
func (s *Service) ListPets(ctx context.Context, ownerID string) ([]model.Pet, error) {
	return s.repo.ListPetsByOwner(ctx, ownerID)
}

// GetPet возвращает питомца по идентификатору.
func (s *Service) GetPet(ctx context.Context, petID string) (*model.Pet, error) {
	return s.repo.GetPet(ctx, petID)
}

// ApplyAction выполняет действие игрока над питомцем.
func (s *Service) ApplyAction(ctx context.Context, petID, action string) (*model.Pet, error) {
	a, err := model.ParseAction(action)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	p, err := s.repo.UpdatePet(ctx, petID, func(p *model.Pet) error {
		p.Apply(a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(p)
	return p, nil
}

// FinishGame зачисляет питомцу монеты, заработанные в мини-игре.
func (s *Service) FinishGame(ctx context.Context, petID string, score, coinsEarned int) (*model.Pet, error) {
	if !validation.IsValidGameResult(score, coinsEarned) {
		return nil, ErrInvalidInput
	}

	p, err := s.repo.UpdatePet(ctx, petID, func(p *model.Pet) error {
		p.AddGameCoins(coinsEarned)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("game finished",
		zap.String("pet_id", petID),
		zap.Int("score", score),
		zap.Int("coins", coinsEarned),
	)
	s.notify(p)
	return p, nil
}

// DeletePet удаляет питомца вместе с инвентарём и историей покупок.
func (s *Service) DeletePet(ctx context.Context, petID string) error {
	if err := s.repo.DeletePet(ctx, petID); err != nil {
		return err
	}
	s.logger.Info("pet deleted", zap.String("pet_id", petID))
	return nil
}
