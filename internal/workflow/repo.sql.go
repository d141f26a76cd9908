package workflow

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuvault/docuvault/internal/shared"
)

// ErrDuplicateRule indicates a rule already exists for (from, to).
var ErrDuplicateRule = errors.New("workflow: rule already exists for transition")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, from_status, to_status, min_level, COALESCE(required_permission, ''), is_active, sort_order, created_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	err := row.Scan(&rule.ID, &rule.FromStatus, &rule.ToStatus, &rule.MinLevel, &rule.RequiredPermission, &rule.IsActive, &rule.SortOrder, &rule.CreatedAt, &rule.UpdatedAt)
	return rule, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ListRules returns all rules, active or not, ordered by sort order.
func (r *Repository) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM transition_rules ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRule fetches a rule by ID.
func (r *Repository) GetRule(ctx context.Context, id int64) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM transition_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// CreateRule inserts a new rule.
func (r *Repository) CreateRule(ctx context.Context, input RuleInput) (Rule, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO transition_rules (from_status, to_status, min_level, required_permission, is_active, sort_order, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NOW(), NOW())
RETURNING `+ruleColumns, input.FromStatus, input.ToStatus, input.MinLevel, input.RequiredPermission, input.IsActive, input.SortOrder)
	rule, err := scanRule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Rule{}, ErrDuplicateRule
		}
		return Rule{}, err
	}
	return rule, nil
}

// UpdateRule updates an existing rule.
func (r *Repository) UpdateRule(ctx context.Context, id int64, input RuleInput) (Rule, error) {
	row := r.pool.QueryRow(ctx, `UPDATE transition_rules
SET from_status = $2, to_status = $3, min_level = $4, required_permission = NULLIF($5, ''), is_active = $6, sort_order = $7, updated_at = NOW()
WHERE id = $1
RETURNING `+ruleColumns, id, input.FromStatus, input.ToStatus, input.MinLevel, input.RequiredPermission, input.IsActive, input.SortOrder)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Rule{}, ErrDuplicateRule
		}
		return Rule{}, err
	}
	return rule, nil
}

// DeleteRule removes a rule by ID.
func (r *Repository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transition_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
