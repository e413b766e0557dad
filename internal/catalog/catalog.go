// Package catalog содержит каталог товаров магазина и расчёт их эффекта для разных видов питомцев.
//
// Товары и таблица бонусов объявлены декларативно в catalog.yaml, который встраивается в бинарник
// и разбирается при инициализации пакета. Новые товары и виды добавляются правкой данных, а не кода.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/tamagotchi-server/internal/model"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Category описывает категорию товара.
type Category string

const (
	CategoryFood   Category = "food"
	CategorySoap   Category = "soap"
	CategoryMedkit Category = "medkit"
)

var validCategories = map[Category]bool{
	CategoryFood:   true,
	CategorySoap:   true,
	CategoryMedkit: true,
}

// Item описывает товар магазина.
type Item struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category Category      `json:"category"`
	Price    int           `json:"price"`
	Effects  model.Effects `json:"effects"`
}

func (it Item) clone() Item {
	it.Effects = it.Effects.Clone()
	return it
}

// Bonus описывает надбавку к эффекту товара для определённого вида питомца.
// Правило совпадает либо с конкретным товаром (ItemID), либо с целой категорией.
type Bonus struct {
	Kind     model.Kind
	ItemID   string
	Category Category
	Effects  model.Effects
}

func (b Bonus) matches(kind model.Kind, it Item) bool {
	if b.Kind != kind {
		return false
	}
	if b.ItemID != "" {
		return b.ItemID == it.ID
	}
	return b.Category == it.Category
}

// Catalog хранит список товаров и таблицу бонусов. После создания не изменяется.
type Catalog struct {
	items   []Item
	byID    map[string]int
	bonuses []Bonus
}

type document struct {
	Items   []itemDef  `yaml:"items"`
	Bonuses []bonusDef `yaml:"bonuses"`
}

type itemDef struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Category string         `yaml:"category"`
	Price    int            `yaml:"price"`
	Effects  map[string]int `yaml:"effects"`
}

type bonusDef struct {
	Kind     string         `yaml:"kind"`
	Item     string         `yaml:"item"`
	Category string         `yaml:"category"`
	Effects  map[string]int `yaml:"effects"`
}

// Parse разбирает YAML-описание каталога и проверяет его целостность.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(doc.Items))}

	var errs []error
	for i, d := range doc.Items {
		it, err := d.toItem()
		if err != nil {
			errs = append(errs, fmt.Errorf("items[%d]: %w", i, err))
			continue
		}
		if _, exists := c.byID[it.ID]; exists {
			errs = append(errs, fmt.Errorf("items[%d]: duplicate id %q", i, it.ID))
			continue
		}
		c.byID[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}

	for i, d := range doc.Bonuses {
		b, err := d.toBonus()
		if err != nil {
			errs = append(errs, fmt.Errorf("bonuses[%d]: %w", i, err))
			continue
		}
		if b.ItemID != "" {
			if _, ok := c.byID[b.ItemID]; !ok {
				errs = append(errs, fmt.Errorf("bonuses[%d]: unknown item %q", i, b.ItemID))
				continue
			}
		}
		c.bonuses = append(c.bonuses, b)
	}

	if len(c.items) == 0 && len(errs) == 0 {
		errs = append(errs, errors.New("catalog has no items"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}

	return c, nil
}

func (d itemDef) toItem() (Item, error) {
	if d.ID == "" {
		return Item{}, errors.New("id must not be empty")
	}
	if d.Name == "" {
		return Item{}, fmt.Errorf("item %q: name must not be empty", d.ID)
	}
	cat := Category(d.Category)
	if !validCategories[cat] {
		return Item{}, fmt.Errorf("item %q: category must be one of food, soap, medkit; got %q", d.ID, d.Category)
	}
	if d.Price <= 0 {
		return Item{}, fmt.Errorf("item %q: price must be positive", d.ID)
	}
	effects, err := parseEffects(d.Effects)
	if err != nil {
		return Item{}, fmt.Errorf("item %q: %w", d.ID, err)
	}
	return Item{
		ID:       d.ID,
		Name:     d.Name,
		Category: cat,
		Price:    d.Price,
		Effects:  effects,
	}, nil
}

func (d bonusDef) toBonus() (Bonus, error) {
	kind, err := model.ParseKind(d.Kind)
	if err != nil {
		return Bonus{}, err
	}
	if (d.Item == "") == (d.Category == "") {
		return Bonus{}, errors.New("exactly one of item or category must be set")
	}
	cat := Category(d.Category)
	if d.Category != "" && !validCategories[cat] {
		return Bonus{}, fmt.Errorf("unknown category %q", d.Category)
	}
	effects, err := parseEffects(d.Effects)
	if err != nil {
		return Bonus{}, err
	}
	return Bonus{
		Kind:     kind,
		ItemID:   d.Item,
		Category: cat,
		Effects:  effects,
	}, nil
}

func parseEffects(raw map[string]int) (model.Effects, error) {
	out := make(model.Effects, len(raw))
	for name, delta := range raw {
		st, err := model.ParseStat(name)
		if err != nil {
			return nil, err
		}
		out[st] = delta
	}
	return out, nil
}

// Items возвращает товары в порядке объявления.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.clone())
	}
	return out
}

// FindItem ищет товар по идентификатору.
func (c *Catalog) FindItem(id string) (Item, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i].clone(), true
}

// Bonuses возвращает таблицу бонусов.
func (c *Catalog) Bonuses() []Bonus {
	out := make([]Bonus, 0, len(c.bonuses))
	for _, b := range c.bonuses {
		b.Effects = b.Effects.Clone()
		out = append(out, b)
	}
	return out
}

// ResolveEffect рассчитывает итоговый эффект товара для питомца указанного вида:
// базовые изменения плюс все совпавшие бонусы.
func (c *Catalog) ResolveEffect(kind model.Kind, it Item) model.Effects {
	effects := it.Effects.Clone()
	for _, b := range c.bonuses {
		if b.matches(kind, it) {
			effects.Add(b.Effects)
		}
	}
	return effects
}

var defaultCatalog = mustParse(catalogYAML)

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog.yaml: %v", err))
	}
	return c
}

// Default возвращает встроенный каталог.
func Default() *Catalog {
	return defaultCatalog
}

// Items возвращает товары встроенного каталога.
func Items() []Item { return defaultCatalog.Items() }

// FindItem ищет товар во встроенном каталоге.
func FindItem(id string) (Item, bool) { return defaultCatalog.FindItem(id) }

// ResolveEffect рассчитывает эффект товара по встроенной таблице бонусов.
func ResolveEffect(kind model.Kind, it Item) model.Effects {
	return defaultCatalog.ResolveEffect(kind, it)
}
