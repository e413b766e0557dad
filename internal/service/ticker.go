package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/tamagotchi-server/internal/model"
	"github.com/mmeshcher/tamagotchi-server/internal/repository"
)

// DefaultTickInterval задаёт период естественного ухудшения состояния питомцев.
const DefaultTickInterval = 30 * time.Second

// RunTick применяет один тик ко всем питомцам и возвращает число обновлённых.
// Ошибка на одном питомце логируется и не прерывает обработку остальных.
func (s *Service) RunTick(ctx context.Context) (int, error) {
	ids, err := s.repo.ListPetIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}

		p, err := s.repo.UpdatePet(ctx, id, func(p *model.Pet) error {
			p.Tick()
			return nil
		})
		if err != nil {
			// питомца могли удалить между выборкой и обновлением
			if !errors.Is(err, repository.ErrPetNotFound) {
				s.logger.Warn("tick failed", zap.String("pet_id", id), zap.Error(err))
			}
			continue
		}

		updated++
		s.notify(p)
	}

	return updated, nil
}

// StartTicker запускает фоновый тик с указанным периодом до отмены ctx.
func (s *Service) StartTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				n, err := s.RunTick(ctx)
				if err != nil && ctx.Err() == nil {
					s.logger.Error("tick batch failed", zap.Error(err))
					continue
				}
				s.logger.Debug("tick applied",
					zap.Int("pets", n),
					zap.Duration("took", time.Since(start)),
				)
			}
		}
	}()
}
