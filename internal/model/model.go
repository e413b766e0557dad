// Package model содержит доменные сущности сервиса виртуальных питомцев.
package model

import (
	"fmt"
	"time"
)

// Kind описывает вид питомца. Вид задаётся при создании и не меняется.
type Kind string

const (
	KindDog    Kind = "dog"
	KindCat    Kind = "cat"
	KindMonkey Kind = "monkey"
)

// Kinds перечисляет все допустимые виды в порядке отображения.
var Kinds = []Kind{KindDog, KindCat, KindMonkey}

// ParseKind проверяет, что строка является допустимым видом питомца.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown pet kind %q", s)
}

// Stat идентифицирует один из жизненных показателей питомца.
type Stat string

const (
	StatHealth      Stat = "health"
	StatHunger      Stat = "hunger"
	StatHappiness   Stat = "happiness"
	StatEnergy      Stat = "energy"
	StatCleanliness Stat = "cleanliness"
)

// Stats перечисляет жизненные показатели в фиксированном порядке применения.
var Stats = []Stat{StatHealth, StatHunger, StatHappiness, StatEnergy, StatCleanliness}

// ParseStat проверяет, что строка является именем жизненного показателя.
func ParseStat(s string) (Stat, error) {
	for _, st := range Stats {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stat %q", s)
}

// Effects описывает знаковые изменения показателей. Отсутствующий ключ означает отсутствие изменения.
type Effects map[Stat]int

// Clone возвращает независимую копию набора изменений.
func (e Effects) Clone() Effects {
	out := make(Effects, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Add прибавляет к набору изменения из other.
func (e Effects) Add(other Effects) {
	for k, v := range other {
		e[k] += v
	}
}

// InventoryEntry описывает стопку предметов одного типа в инвентаре питомца.
type InventoryEntry struct {
	PetID     string
	ItemID    string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PurchaseRecord описывает факт покупки предмета для питомца.
type PurchaseRecord struct {
	PetID     string
	ItemID    string
	Price     int
	CreatedAt time.Time
}
