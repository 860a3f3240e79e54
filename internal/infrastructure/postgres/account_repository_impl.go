package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/swordot/portal/internal/domain/entity"
	"github.com/swordot/portal/internal/domain/repository"
)

const uniqueViolation = "23505"

type AccountRepository struct {
	db DB
}

func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindConflict(ctx context.Context, name, email string) (*entity.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, password, type, premium_ends_at, creation
		FROM accounts
		WHERE name = $1 OR email = $2
		ORDER BY id
		LIMIT 1
	`, name, email)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conflict: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, a *entity.Account) error {
	if a.Type == "" {
		a.Type = entity.AccountNormal
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO accounts (name, email, password, type, premium_ends_at, creation)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, a.Name, a.Email, a.Password, string(a.Type), a.PremiumEndsAt, a.Creation)

	if err := row.Scan(&a.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByName(ctx context.Context, name string) (*entity.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT a.id, a.name, a.email, a.password, a.type, a.premium_ends_at, a.creation,
		       p.account_id IS NOT NULL, COALESCE(p.real_name, ''), COALESCE(p.location, '')
		FROM accounts a
		LEFT JOIN account_profiles p ON p.account_id = a.id
		WHERE a.name = $1
	`, name)

	var (
		a          entity.Account
		typ        string
		hasProfile bool
		prof       entity.Profile
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Password, &typ, &a.PremiumEndsAt, &a.Creation,
		&hasProfile, &prof.RealName, &prof.Location); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get account %q: %w", name, err)
	}
	a.Type = entity.AccountType(typ)
	if hasProfile {
		a.Profile = &prof
	}

	players, err := r.players(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Players = players
	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*entity.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, password, type, premium_ends_at, creation
		FROM accounts
		WHERE id = $1
	`, id)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (r *AccountRepository) players(ctx context.Context, accountID int64) ([]entity.Character, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, name, level, vocation, sex, looktype, lastlogin
		FROM players
		WHERE account_id = $1
		ORDER BY name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	res := make([]entity.Character, 0)
	for rows.Next() {
		var c entity.Character
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Level, &c.Vocation, &c.Sex, &c.LookType, &c.LastLogin); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return res, nil
}

func scanAccount(row pgx.Row) (*entity.Account, error) {
	var (
		a   entity.Account
		typ string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Password, &typ, &a.PremiumEndsAt, &a.Creation); err != nil {
		return nil, err
	}
	a.Type = entity.AccountType(typ)
	return &a, nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
