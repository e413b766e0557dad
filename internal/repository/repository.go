// Package repository содержит хранилища питомцев, инвентаря и истории покупок:
// PostgreSQL для продакшена и in-memory для локального запуска и тестов.
package repository

import (
	"errors"
	"time"
)

var (
	// ErrPetNotFound возвращается, если питомец не найден.
	ErrPetNotFound = errors.New("pet not found")
	// ErrKindTaken возвращается, если у владельца уже есть питомец этого вида.
	ErrKindTaken = errors.New("owner already has a pet of this kind")
	// ErrInsufficientFunds возвращается, если монет питомца не хватает на покупку.
	ErrInsufficientFunds = errors.New("not enough coins")
	// ErrItemNotInInventory возвращается, если предмета нет в инвентаре питомца.
	ErrItemNotInInventory = errors.New("item not in inventory")
)

// Timestamp приводит время к виду, в котором его хранит TIMESTAMPTZ:
// UTC с точностью до микросекунды.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
