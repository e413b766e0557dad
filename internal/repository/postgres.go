package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/tamagotchi-server/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const petColumns = `id::text, owner_id, name, kind, age, health, hunger, happiness, energy, cleanliness, coins, created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при конфликте сериализации, дедлоке или обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// isInvalidID сообщает, что идентификатор не является корректным UUID.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPet(row rowScanner) (*model.Pet, error) {
	var (
		p    model.Pet
		kind string
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &kind, &p.Age,
		&p.Health, &p.Hunger, &p.Happiness, &p.Energy, &p.Cleanliness,
		&p.Coins, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Kind = model.Kind(kind)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// CreatePet сохраняет нового питомца.
func (r *PostgresRepository) CreatePet(ctx context.Context, p *model.Pet) error {
	p.CreatedAt = Timestamp(p.CreatedAt)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pets (id, owner_id, name, kind, age, health, hunger, happiness, energy, cleanliness, coins, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OwnerID, p.Name, string(p.Kind), p.Age,
		p.Health, p.Hunger, p.Happiness, p.Energy, p.Cleanliness,
		p.Coins, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrKindTaken, p.Kind)
		}
		return fmt.Errorf("insert pet: %w", err)
	}
	return nil
}

// GetPet возвращает питомца по идентификатору.
func (r *PostgresRepository) GetPet(ctx context.Context, id string) (*model.Pet, error) {
	p, err := scanPet(r.pool.QueryRow(ctx,
		`SELECT `+petColumns+` FROM pets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("get pet: %w", err)
	}
	return p, nil
}

// ListPetsByOwner возвращает питомцев владельца в порядке создания.
func (r *PostgresRepository) ListPetsByOwner(ctx context.Context, ownerID string) ([]model.Pet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select pets: %w", err)
	}
	defer rows.Close()

	var pets []model.Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return pets, nil
}

// ListPetIDs возвращает идентификаторы всех питомцев.
func (r *PostgresRepository) ListPetIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text FROM pets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select pet ids: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect pet ids: %w", err)
	}
	return ids, nil
}

// lockPet читает питомца с блокировкой строки до конца транзакции.
func lockPet(ctx context.Context, tx pgx.Tx, id string) (*model.Pet, error) {
	p, err := scanPet(tx.QueryRow(ctx,
		`SELECT `+petColumns+` FROM pets WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("lock pet for update: %w", err)
	}
	return p, nil
}

func savePet(ctx context.Context, tx pgx.Tx, p *model.Pet) error {
	_, err := tx.Exec(ctx,
		`UPDATE pets
		 SET name = $2, age = $3, health = $4, hunger = $5, happiness = $6,
		     energy = $7, cleanliness = $8, coins = $9
		 WHERE id = $1`,
		p.ID, p.Name, p.Age, p.Health, p.Hunger, p.Happiness,
		p.Energy, p.Cleanliness, p.Coins,
	)
	if err != nil {
		return fmt.Errorf("update pet: %w", err)
	}
	return nil
}

// inTx выполняет fn в транзакции с повтором при временных ошибках.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// UpdatePet выполняет сериализованное чтение-изменение-запись питомца.
// Строка питомца блокируется на время вызова fn.
func (r *PostgresRepository) UpdatePet(ctx context.Context, id string, fn func(p *model.Pet) error) (*model.Pet, error) {
	var updated *model.Pet
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPet(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := savePet(ctx, tx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Purchase списывает цену с питомца, добавляет предмет в инвентарь и записывает покупку
// в одной транзакции под блокировкой строки питомца.
func (r *PostgresRepository) Purchase(ctx context.Context, petID, itemID string, price int, now time.Time) (*model.Pet, error) {
	now = Timestamp(now)
	var updated *model.Pet
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPet(ctx, tx, petID)
		if err != nil {
			return err
		}
		if p.Coins < price {
			return ErrInsufficientFunds
		}
		p.Coins -= price

		if err := savePet(ctx, tx, p); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO inventory (pet_id, item_id, quantity, created_at, updated_at)
			 VALUES ($1, $2, 1, $3, $3)
			 ON CONFLICT (pet_id, item_id)
			 DO UPDATE SET quantity = inventory.quantity + 1, updated_at = EXCLUDED.updated_at`,
			petID, itemID, now,
		)
		if err != nil {
			return fmt.Errorf("upsert inventory: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO purchases (pet_id, item_id, price, created_at) VALUES ($1, $2, $3, $4)`,
			petID, itemID, price, now,
		)
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConsumeItem применяет fn к питомцу и списывает один предмет из инвентаря.
// Запись с нулевым количеством удаляется. Возвращает питомца и остаток.
func (r *PostgresRepository) ConsumeItem(ctx context.Context, petID, itemID string, now time.Time, fn func(p *model.Pet) error) (*model.Pet, int, error) {
	var (
		updated   *model.Pet
		remaining int
	)
	now = Timestamp(now)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPet(ctx, tx, petID)
		if err != nil {
			return err
		}

		var qty int
		err = tx.QueryRow(ctx,
			`SELECT quantity FROM inventory WHERE pet_id = $1 AND item_id = $2`,
			petID, itemID,
		).Scan(&qty)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrItemNotInInventory
			}
			return fmt.Errorf("select inventory: %w", err)
		}
		if qty <= 0 {
			return ErrItemNotInInventory
		}

		if err := fn(p); err != nil {
			return err
		}
		if err := savePet(ctx, tx, p); err != nil {
			return err
		}

		remaining = qty - 1
		if remaining == 0 {
			_, err = tx.Exec(ctx,
				`DELETE FROM inventory WHERE pet_id = $1 AND item_id = $2`, petID, itemID)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE inventory SET quantity = $3, updated_at = $4 WHERE pet_id = $1 AND item_id = $2`,
				petID, itemID, remaining, now)
		}
		if err != nil {
			return fmt.Errorf("update inventory: %w", err)
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return updated, remaining, nil
}

// GetInventory возвращает инвентарь питомца, недавно изменённые записи первыми.
func (r *PostgresRepository) GetInventory(ctx context.Context, petID string) ([]model.InventoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pet_id::text, item_id, quantity, created_at, updated_at
		 FROM inventory
		 WHERE pet_id = $1
		 ORDER BY updated_at DESC, item_id`,
		petID,
	)
	if err != nil {
		if isInvalidID(err) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	defer rows.Close()

	var res []model.InventoryEntry
	for rows.Next() {
		var e model.InventoryEntry
		if err := rows.Scan(&e.PetID, &e.ItemID, &e.Quantity, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		if isInvalidID(err) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetPurchases возвращает последние покупки питомца, новые первыми.
func (r *PostgresRepository) GetPurchases(ctx context.Context, petID string, limit int) ([]model.PurchaseRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pet_id::text, item_id, price, created_at
		 FROM purchases
		 WHERE pet_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		petID, limit,
	)
	if err != nil {
		if isInvalidID(err) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var res []model.PurchaseRecord
	for rows.Next() {
		var rec model.PurchaseRecord
		if err := rows.Scan(&rec.PetID, &rec.ItemID, &rec.Price, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		if isInvalidID(err) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeletePet удаляет питомца вместе с инвентарём и историей покупок.
func (r *PostgresRepository) DeletePet(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pets WHERE id = $1`, id)
	if err != nil {
		if isInvalidID(err) {
			return ErrPetNotFound
		}
		return fmt.Errorf("delete pet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPetNotFound
	}
	return nil
}
