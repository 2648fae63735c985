package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"billing_auth/internal/config"
	"billing_auth/internal/models"
	"billing_auth/internal/storage"
	"billing_auth/internal/storage/postgres/migrations"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
	dsn  string
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool, dsn: dsn}, nil
}

// RunMigrations applies the embedded goose migrations through a short-lived
// database/sql connection; the pgx pool stays untouched.
func (r *PostgresRepo) RunMigrations(ctx context.Context) error {
	const op = "storage.postgres.RunMigrations"

	db, err := sql.Open("pgx", r.dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	const op = "storage.postgres.EmailExists"

	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1);`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// CreateAccountWithVerificationToken inserts the account and its verification
// token in one serializable transaction. The email uniqueness constraint is
// the authoritative backstop for the pre-insert check: a concurrent
// registration that slips past the check still fails at insert time and the
// whole transaction rolls back, leaving no orphan token row.
func (r *PostgresRepo) CreateAccountWithVerificationToken(
	ctx context.Context,
	email string,
	passHash, passSalt []byte,
	algorithm string,
	tokenHash string,
	expiresAt time.Time,
) (models.Account, error) {
	const op = "storage.postgres.CreateAccountWithVerificationToken"

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1);`, email,
	).Scan(&exists); err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return models.Account{}, storage.ErrEmailExists
	}

	account := models.Account{
		UUID:              uuid.New(),
		Email:             email,
		PasswordHash:      passHash,
		PasswordSalt:      passSalt,
		PasswordAlgorithm: algorithm,
		Active:            true,
	}

	insertAccount := `
		INSERT INTO accounts (uuid, email, password_hash, password_salt, password_algorithm)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`

	err = tx.QueryRow(ctx, insertAccount,
		account.UUID, email, passHash, passSalt, algorithm,
	).Scan(&account.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Account{}, storage.ErrEmailExists
		}

		return models.Account{}, fmt.Errorf("%s: failed to insert account: %w", op, err)
	}

	insertToken := `
		INSERT INTO verification_tokens (account_id, token_hash, expires_at)
		VALUES ($1, $2, $3);
	`

	if _, err := tx.Exec(ctx, insertToken, account.ID, tokenHash, expiresAt); err != nil {
		return models.Account{}, fmt.Errorf("%s: failed to insert token: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

func (r *PostgresRepo) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.postgres.AccountByEmail"

	query := `
		SELECT id, uuid, email, password_hash, password_salt, password_algorithm, verified_email, active
		FROM accounts
		WHERE email = $1;
	`

	var a models.Account
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&a.ID,
		&a.UUID,
		&a.Email,
		&a.PasswordHash,
		&a.PasswordSalt,
		&a.PasswordAlgorithm,
		&a.VerifiedEmail,
		&a.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// ConsumeVerificationToken deletes the matching unexpired token row and flips
// verified_email in a single transaction. The DELETE locks the token row, so
// a concurrent sweep pass either sees it gone together with the committed
// verified flag, or blocks until this transaction finishes.
func (r *PostgresRepo) ConsumeVerificationToken(ctx context.Context, accountUUID uuid.UUID, tokenHash string) error {
	const op = "storage.postgres.ConsumeVerificationToken"

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	deleteToken := `
		DELETE FROM verification_tokens t
		USING accounts a
		WHERE t.account_id = a.id
			AND a.uuid = $1
			AND t.token_hash = $2
			AND t.expires_at > NOW();
	`

	tag, err := tx.Exec(ctx, deleteToken, accountUUID, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		// Wrong token, already consumed, or expired: indistinguishable on purpose.
		return storage.ErrInvalidOrExpiredToken
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET verified_email = TRUE WHERE uuid = $1;`, accountUUID,
	); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PendingAccountByEmail returns the account only while it is still
// unverified; a verified or unknown email reports ErrAccountNotFound so the
// resend flow can collapse both into the same no-op outcome.
func (r *PostgresRepo) PendingAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.postgres.PendingAccountByEmail"

	query := `
		SELECT id, uuid, email, verified_email, active
		FROM accounts
		WHERE email = $1 AND verified_email = FALSE;
	`

	var a models.Account
	err := r.pool.QueryRow(ctx, query, email).Scan(&a.ID, &a.UUID, &a.Email, &a.VerifiedEmail, &a.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// ReplaceVerificationToken upserts the account's token row, superseding any
// prior unconsumed token. The primary key on account_id keeps at most one
// usable token per account.
func (r *PostgresRepo) ReplaceVerificationToken(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	const op = "storage.postgres.ReplaceVerificationToken"

	query := `
		INSERT INTO verification_tokens (account_id, token_hash, expires_at)
		SELECT id, $2, $3
		FROM accounts
		WHERE email = $1 AND verified_email = FALSE
		ON CONFLICT (account_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at;
	`

	tag, err := r.pool.Exec(ctx, query, email, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

// SweepExpiredUnverified deletes every account that is still unverified and
// whose token has expired. Token rows go with the account via the FK cascade
// in the same statement, so no orphan is ever observable. The join locks the
// token row, serializing against a concurrently committing consume.
func (r *PostgresRepo) SweepExpiredUnverified(ctx context.Context) (int64, error) {
	const op = "storage.postgres.SweepExpiredUnverified"

	query := `
		DELETE FROM accounts a
		USING verification_tokens t
		WHERE t.account_id = a.id
			AND a.verified_email = FALSE
			AND t.expires_at < NOW();
	`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
