package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-kreatif/internal/cart"
)

// DB is the subset of pgxpool.Pool used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresRepository stores coupons in the coupons table.
type PostgresRepository struct {
	DB DB
}

const couponColumns = `id, code, kind, value, min_spend, usage_limit, used_count,
	valid_from, valid_to, item_kinds, active, created_at, updated_at`

// GetByCode implements Repository.
func (p PostgresRepository) GetByCode(ctx context.Context, code string) (Rule, error) {
	row := p.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, NormalizeCode(code))
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("get coupon: %w", err)
	}
	return rule, nil
}

// List implements Repository.
func (p PostgresRepository) List(ctx context.Context, limit, offset int) ([]Rule, int, error) {
	var total int
	if err := p.DB.QueryRow(ctx, `SELECT count(*) FROM coupons`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}
	rows, err := p.DB.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()
	rules := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan coupon: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	return rules, total, nil
}

// Create implements Repository.
func (p PostgresRepository) Create(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	row := p.DB.QueryRow(ctx, `INSERT INTO coupons
		(id, code, kind, value, min_spend, usage_limit, valid_from, valid_to, item_kinds, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+couponColumns,
		rule.ID, NormalizeCode(rule.Code), rule.Kind, rule.Value, rule.MinSpend, rule.UsageLimit,
		rule.ValidFrom, rule.ValidTo, kindStrings(rule.ItemKinds), rule.Active)
	created, err := scanRule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Rule{}, ErrDuplicate
		}
		return Rule{}, fmt.Errorf("create coupon: %w", err)
	}
	return created, nil
}

// Update implements Repository.
func (p PostgresRepository) Update(ctx context.Context, rule Rule) (Rule, error) {
	row := p.DB.QueryRow(ctx, `UPDATE coupons SET
		kind = $2, value = $3, min_spend = $4, usage_limit = $5, valid_from = $6,
		valid_to = $7, item_kinds = $8, active = $9, updated_at = now()
		WHERE code = $1
		RETURNING `+couponColumns,
		NormalizeCode(rule.Code), rule.Kind, rule.Value, rule.MinSpend, rule.UsageLimit,
		rule.ValidFrom, rule.ValidTo, kindStrings(rule.ItemKinds), rule.Active)
	updated, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("update coupon: %w", err)
	}
	return updated, nil
}

// Delete implements Repository.
func (p PostgresRepository) Delete(ctx context.Context, code string) error {
	tag, err := p.DB.Exec(ctx, `DELETE FROM coupons WHERE code = $1`, NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage implements Repository. The redemption row and the counter
// move together; a purchase already recorded for the code is a no-op.
func (p PostgresRepository) IncrementUsage(ctx context.Context, code, purchaseID string) error {
	code = NormalizeCode(code)
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin coupon redemption: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if purchaseID != "" {
		tag, err := tx.Exec(ctx, `INSERT INTO coupon_redemptions (code, purchase_id) VALUES ($1, $2)
			ON CONFLICT (code, purchase_id) DO NOTHING`, code, purchaseID)
		if err != nil {
			return fmt.Errorf("record coupon redemption: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`, code)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); err != nil {
			return fmt.Errorf("lookup coupon: %w", err)
		}
		return limitOrMissing(exists)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit coupon redemption: %w", err)
	}
	return nil
}

func limitOrMissing(exists bool) error {
	if exists {
		return ErrUsageLimitReached
	}
	return ErrNotFound
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		rule      Rule
		id        uuid.UUID
		kinds     []string
		validFrom *time.Time
		validTo   *time.Time
	)
	if err := row.Scan(
		&id, &rule.Code, &rule.Kind, &rule.Value, &rule.MinSpend, &rule.UsageLimit, &rule.UsedCount,
		&validFrom, &validTo, &kinds, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return Rule{}, err
	}
	rule.ID = id.String()
	rule.ValidFrom = validFrom
	rule.ValidTo = validTo
	rule.ItemKinds = make([]cart.Kind, 0, len(kinds))
	for _, k := range kinds {
		rule.ItemKinds = append(rule.ItemKinds, cart.Kind(k))
	}
	return rule, nil
}

func kindStrings(kinds []cart.Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
