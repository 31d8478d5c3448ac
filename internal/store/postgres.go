package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/quadrant-labs/assess/internal/db"
	"github.com/quadrant-labs/assess/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"insert_result": `INSERT INTO results (id, actor_id, guest_name, guest_email, guest_phone, answers, raw_scores, scores, profile, is_premium, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_result":    `SELECT id, actor_id, guest_name, guest_email, guest_phone, answers, raw_scores, scores, profile, is_premium, premium_payment_ref, created_at FROM results WHERE id = $1`,
	"insert_intent": `INSERT INTO payment_intents (id, result_id, provider_ref, amount_minor, currency, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_intent":    `SELECT id, result_id, provider_ref, amount_minor, currency, status, created_at, updated_at FROM payment_intents WHERE result_id = $1 AND provider_ref = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS actors (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS results (
	id                  TEXT PRIMARY KEY,
	actor_id            TEXT REFERENCES actors(id),
	guest_name          TEXT NOT NULL DEFAULT '',
	guest_email         TEXT NOT NULL DEFAULT '',
	guest_phone         TEXT NOT NULL DEFAULT '',
	answers             JSONB NOT NULL,
	raw_scores          JSONB NOT NULL,
	scores              JSONB NOT NULL,
	profile             TEXT NOT NULL,
	is_premium          BOOLEAN NOT NULL DEFAULT false,
	premium_payment_ref TEXT UNIQUE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payment_intents (
	id           TEXT PRIMARY KEY,
	result_id    TEXT NOT NULL REFERENCES results(id),
	provider_ref TEXT NOT NULL,
	amount_minor BIGINT NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (result_id, provider_ref)
);

CREATE INDEX IF NOT EXISTS idx_results_guest_email ON results(guest_email) WHERE actor_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_results_actor_id ON results(actor_id);
CREATE INDEX IF NOT EXISTS idx_intents_result_id ON payment_intents(result_id);
CREATE INDEX IF NOT EXISTS idx_intents_status_created ON payment_intents(status, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateResult(ctx context.Context, r *model.Result) error {
	answersJSON, err := json.Marshal(r.Answers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal answers")
	}
	rawJSON, err := json.Marshal(r.Raw)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal raw scores")
	}
	scoresJSON, err := json.Marshal(r.Scores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scores")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (id, actor_id, guest_name, guest_email, guest_phone, answers, raw_scores, scores, profile, is_premium, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.ActorID, r.GuestName, r.GuestEmail, r.GuestPhone,
		answersJSON, rawJSON, scoresJSON, string(r.Profile), r.IsPremium, r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert result")
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*model.Result, error) {
	var r model.Result
	var answersJSON, rawJSON, scoresJSON []byte
	var profile string

	err := s.pool.QueryRow(ctx,
		`SELECT id, actor_id, guest_name, guest_email, guest_phone, answers, raw_scores, scores, profile, is_premium, premium_payment_ref, created_at FROM results WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.ActorID, &r.GuestName, &r.GuestEmail, &r.GuestPhone,
		&answersJSON, &rawJSON, &scoresJSON, &profile, &r.IsPremium, &r.PremiumPaymentRef, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: result %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get result %s", id)
	}

	if err := json.Unmarshal(answersJSON, &r.Answers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal answers")
	}
	if err := json.Unmarshal(rawJSON, &r.Raw); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw scores")
	}
	if err := json.Unmarshal(scoresJSON, &r.Scores); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal scores")
	}
	r.Profile = model.Factor(profile)
	return &r, nil
}

func (s *PostgresStore) LinkGuestResults(ctx context.Context, email, actorID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE results SET actor_id = $2 WHERE guest_email = $1 AND actor_id IS NULL`,
		email, actorID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: link guest results")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payment_intents (id, result_id, provider_ref, amount_minor, currency, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		intent.ID, intent.ResultID, intent.ProviderRef, intent.AmountMinor,
		intent.Currency, string(intent.Status), intent.CreatedAt, intent.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert intent")
}

func (s *PostgresStore) GetIntentByRef(ctx context.Context, resultID, providerRef string) (*model.PaymentIntent, error) {
	var in model.PaymentIntent
	var status string

	err := s.pool.QueryRow(ctx,
		`SELECT id, result_id, provider_ref, amount_minor, currency, status, created_at, updated_at FROM payment_intents WHERE result_id = $1 AND provider_ref = $2`,
		resultID, providerRef,
	).Scan(&in.ID, &in.ResultID, &in.ProviderRef, &in.AmountMinor,
		&in.Currency, &status, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: intent %s for result %s", providerRef, resultID)
		}
		return nil, eris.Wrap(err, "postgres: get intent")
	}
	in.Status = model.IntentStatus(status)
	return &in, nil
}

func (s *PostgresStore) MarkIntentFailed(ctx context.Context, intentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_intents SET status = 'failed', updated_at = now() WHERE id = $1 AND status = 'pending'`,
		intentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail intent %s", intentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: pending intent %s", intentID)
	}
	return nil
}

func (s *PostgresStore) FailStaleIntents(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_intents SET status = 'failed', updated_at = now() WHERE status = 'pending' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fail stale intents")
	}
	return int(tag.RowsAffected()), nil
}

// GrantPremium serializes the read-check-write on a single result row via
// SELECT ... FOR UPDATE, then applies both writes in one transaction.
func (s *PostgresStore) GrantPremium(ctx context.Context, resultID, providerRef string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin grant")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var isPremium bool
	err = tx.QueryRow(ctx,
		`SELECT is_premium FROM results WHERE id = $1 FOR UPDATE`,
		resultID,
	).Scan(&isPremium)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, eris.Wrapf(ErrNotFound, "postgres: result %s", resultID)
		}
		return false, eris.Wrapf(err, "postgres: lock result %s", resultID)
	}
	if isPremium {
		return false, nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE payment_intents SET status = 'completed', updated_at = now() WHERE result_id = $1 AND provider_ref = $2 AND status = 'pending'`,
		resultID, providerRef,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: complete intent")
	}
	if tag.RowsAffected() == 0 {
		return false, eris.Wrapf(ErrNotFound, "postgres: pending intent %s for result %s", providerRef, resultID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE results SET is_premium = true, premium_payment_ref = $2 WHERE id = $1`,
		resultID, providerRef,
	); err != nil {
		return false, eris.Wrapf(err, "postgres: set premium on result %s", resultID)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit grant")
	}
	return true, nil
}

func (s *PostgresStore) CreateActor(ctx context.Context, a *model.Actor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO actors (id, email, display_name, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Email, a.DisplayName, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert actor")
}

func (s *PostgresStore) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	var a model.Actor
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, display_name, created_at FROM actors WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Email, &a.DisplayName, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: actor %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get actor %s", id)
	}
	return &a, nil
}
