package model

import (
	"fmt"
	"time"
)

// Границы жизненных показателей.
const (
	MinStat = 0
	MaxStat = 100
)

// Награды за переход питомца в полностью удовлетворённое состояние.
const (
	FeedReward  = 15
	CleanReward = 20
)

// Начальные показатели нового питомца.
const (
	InitialHealth      = 100
	InitialHunger      = 0
	InitialHappiness   = 100
	InitialEnergy      = 100
	InitialCleanliness = 0
)

// Clamp ограничивает значение показателя диапазоном [MinStat, MaxStat].
func Clamp(v int) int {
	if v < MinStat {
		return MinStat
	}
	if v > MaxStat {
		return MaxStat
	}
	return v
}

// Pet описывает питомца и его текущее состояние.
//
// Голод и загрязнённость хранятся как показатели "плохости": 0 означает сытого
// и чистого питомца, 100 означает голодного и грязного.
type Pet struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	Age         int       `json:"age"`
	Health      int       `json:"health"`
	Hunger      int       `json:"hunger"`
	Happiness   int       `json:"happiness"`
	Energy      int       `json:"energy"`
	Cleanliness int       `json:"cleanliness"`
	Coins       int       `json:"coins"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewPet создаёт питомца с начальными показателями.
func NewPet(id, ownerID, name string, kind Kind, createdAt time.Time) Pet {
	return Pet{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Kind:        kind,
		Health:      InitialHealth,
		Hunger:      InitialHunger,
		Happiness:   InitialHappiness,
		Energy:      InitialEnergy,
		Cleanliness: InitialCleanliness,
		CreatedAt:   createdAt,
	}
}

// Tick применяет естественное ухудшение состояния за один период планировщика.
//
// Урон от голода выбирается по наивысшему достигнутому порогу, урон от грусти
// применяется только без урона от голода, урон от грязи добавляется сверху.
// Здоровье после тика не опускается ниже 1.
func (p *Pet) Tick() {
	p.Hunger = Clamp(p.Hunger + 1)
	p.Happiness = Clamp(p.Happiness - 1)
	p.Cleanliness = Clamp(p.Cleanliness + 1)

	damage := 0
	if p.Hunger >= 80 {
		damage = 1
	}
	if p.Hunger >= 95 {
		damage = 3
	}
	if p.Hunger == MaxStat {
		damage = 5
	}

	if damage == 0 && p.Happiness == MinStat {
		damage = 1
	}
	if p.Cleanliness == MaxStat {
		damage++
	}

	if damage > 0 {
		p.Health = Clamp(p.Health - damage)
	}
	if p.Health < 1 {
		p.Health = 1
	}
}

// Feed кормит питомца. Монеты начисляются только если голодный питомец стал полностью сытым.
func (p *Pet) Feed() {
	wasHungry := p.Hunger > MinStat

	p.Hunger = Clamp(p.Hunger - 15)
	p.Health = Clamp(p.Health + 5)

	if wasHungry && p.Hunger == MinStat {
		p.Coins += FeedReward
	}
}

// Play играет с питомцем.
func (p *Pet) Play() {
	p.Happiness = Clamp(p.Happiness + 20)
	p.Energy = Clamp(p.Energy - 10)
	p.Hunger = Clamp(p.Hunger + 10)
}

// Sleep укладывает питомца спать.
func (p *Pet) Sleep() {
	p.Energy = Clamp(p.Energy + 30)
	p.Hunger = Clamp(p.Hunger + 15)
}

// Heal лечит питомца. Лекарство невкусное, поэтому счастье снижается.
func (p *Pet) Heal() {
	p.Health = Clamp(p.Health + 25)
	p.Happiness = Clamp(p.Happiness - 10)
}

// Clean моет питомца. Монеты начисляются только если питомец был хоть немного грязным.
func (p *Pet) Clean() {
	wasDirty := p.Cleanliness > MinStat

	p.Cleanliness = MinStat
	p.Happiness = Clamp(p.Happiness + 10)

	if wasDirty {
		p.Coins += CleanReward
	}
}

// ApplyEffect применяет к показателям питомца ненулевые изменения.
func (p *Pet) ApplyEffect(effects Effects) {
	for _, st := range Stats {
		delta := effects[st]
		if delta == 0 {
			continue
		}
		v := p.stat(st)
		*v = Clamp(*v + delta)
	}
}

// AddGameCoins зачисляет монеты, заработанные в мини-игре.
func (p *Pet) AddGameCoins(coins int) {
	if coins > 0 {
		p.Coins += coins
	}
}

// Vital возвращает значение показателя по имени.
func (p *Pet) Vital(st Stat) int {
	if v := p.stat(st); v != nil {
		return *v
	}
	return 0
}

func (p *Pet) stat(st Stat) *int {
	switch st {
	case StatHealth:
		return &p.Health
	case StatHunger:
		return &p.Hunger
	case StatHappiness:
		return &p.Happiness
	case StatEnergy:
		return &p.Energy
	case StatCleanliness:
		return &p.Cleanliness
	}
	return nil
}

// Action описывает действие игрока над питомцем.
type Action string

const (
	ActionFeed  Action = "feed"
	ActionPlay  Action = "play"
	ActionSleep Action = "sleep"
	ActionHeal  Action = "heal"
	ActionClean Action = "clean"
)

// ParseAction проверяет, что строка является известным действием.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionFeed, ActionPlay, ActionSleep, ActionHeal, ActionClean:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Apply выполняет действие над питомцем. Неизвестное действие ничего не меняет.
func (p *Pet) Apply(a Action) {
	switch a {
	case ActionFeed:
		p.Feed()
	case ActionPlay:
		p.Play()
	case ActionSleep:
		p.Sleep()
	case ActionHeal:
		p.Heal()
	case ActionClean:
		p.Clean()
	}
}
