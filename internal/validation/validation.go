// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ограничения на входные данные.
const (
	MaxPetNameLength = 32
	MaxGameCoins     = 500
)

// NormalizePetName убирает пробелы по краям имени питомца.
func NormalizePetName(name string) string {
	return strings.TrimSpace(name)
}

// IsValidPetName проверяет имя питомца: после обрезки пробелов от 1 до 32 символов
// без управляющих символов.
func IsValidPetName(name string) bool {
	name = NormalizePetName(name)
	if name == "" || !utf8.ValidString(name) {
		return false
	}
	if utf8.RuneCountInString(name) > MaxPetNameLength {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// IsValidGameResult проверяет результат мини-игры: счёт неотрицательный,
// монеты в пределах [0, MaxGameCoins].
func IsValidGameResult(score, coins int) bool {
	return score >= 0 && coins >= 0 && coins <= MaxGameCoins
}
