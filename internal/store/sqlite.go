package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/quadrant-labs/assess/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for single-node
// deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS actors (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id                  TEXT PRIMARY KEY,
	actor_id            TEXT REFERENCES actors(id),
	guest_name          TEXT NOT NULL DEFAULT '',
	guest_email         TEXT NOT NULL DEFAULT '',
	guest_phone         TEXT NOT NULL DEFAULT '',
	answers             TEXT NOT NULL,
	raw_scores          TEXT NOT NULL,
	scores              TEXT NOT NULL,
	profile             TEXT NOT NULL,
	is_premium          INTEGER NOT NULL DEFAULT 0,
	premium_payment_ref TEXT UNIQUE,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_intents (
	id           TEXT PRIMARY KEY,
	result_id    TEXT NOT NULL REFERENCES results(id),
	provider_ref TEXT NOT NULL,
	amount_minor INTEGER NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	UNIQUE (result_id, provider_ref)
);

CREATE INDEX IF NOT EXISTS idx_results_guest_email ON results(guest_email);
CREATE INDEX IF NOT EXISTS idx_results_actor_id ON results(actor_id);
CREATE INDEX IF NOT EXISTS idx_intents_result_id ON payment_intents(result_id);
CREATE INDEX IF NOT EXISTS idx_intents_status_created ON payment_intents(status, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateResult(ctx context.Context, r *model.Result) error {
	answersJSON, err := json.Marshal(r.Answers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal answers")
	}
	rawJSON, err := json.Marshal(r.Raw)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal raw scores")
	}
	scoresJSON, err := json.Marshal(r.Scores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scores")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, actor_id, guest_name, guest_email, guest_phone, answers, raw_scores, scores, profile, is_premium, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ActorID, r.GuestName, r.GuestEmail, r.GuestPhone,
		string(answersJSON), string(rawJSON), string(scoresJSON),
		string(r.Profile), r.IsPremium, r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert result")
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*model.Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor_id, guest_name, guest_email, guest_phone, answers, raw_scores, scores, profile, is_premium, premium_payment_ref, created_at
		 FROM results WHERE id = ?`, id)
	r, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: result %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get result %s", id)
	}
	return r, nil
}

func scanResult(row *sql.Row) (*model.Result, error) {
	var r model.Result
	var actorID, paymentRef sql.NullString
	var answersJSON, rawJSON, scoresJSON, profile string

	err := row.Scan(&r.ID, &actorID, &r.GuestName, &r.GuestEmail, &r.GuestPhone,
		&answersJSON, &rawJSON, &scoresJSON, &profile, &r.IsPremium, &paymentRef, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if actorID.Valid {
		r.ActorID = &actorID.String
	}
	if paymentRef.Valid {
		r.PremiumPaymentRef = &paymentRef.String
	}
	if err := json.Unmarshal([]byte(answersJSON), &r.Answers); err != nil {
		return nil, eris.Wrap(err, "unmarshal answers")
	}
	if err := json.Unmarshal([]byte(rawJSON), &r.Raw); err != nil {
		return nil, eris.Wrap(err, "unmarshal raw scores")
	}
	if err := json.Unmarshal([]byte(scoresJSON), &r.Scores); err != nil {
		return nil, eris.Wrap(err, "unmarshal scores")
	}
	r.Profile = model.Factor(profile)
	return &r, nil
}

func (s *SQLiteStore) LinkGuestResults(ctx context.Context, email, actorID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE results SET actor_id = ? WHERE guest_email = ? AND actor_id IS NULL`,
		actorID, email,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: link guest results")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: link rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CreateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_intents (id, result_id, provider_ref, amount_minor, currency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.ResultID, intent.ProviderRef, intent.AmountMinor,
		intent.Currency, string(intent.Status), intent.CreatedAt, intent.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert intent")
}

func (s *SQLiteStore) GetIntentByRef(ctx context.Context, resultID, providerRef string) (*model.PaymentIntent, error) {
	var in model.PaymentIntent
	var status string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, result_id, provider_ref, amount_minor, currency, status, created_at, updated_at
		 FROM payment_intents WHERE result_id = ? AND provider_ref = ?`,
		resultID, providerRef,
	).Scan(&in.ID, &in.ResultID, &in.ProviderRef, &in.AmountMinor,
		&in.Currency, &status, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: intent %s for result %s", providerRef, resultID)
		}
		return nil, eris.Wrap(err, "sqlite: get intent")
	}
	in.Status = model.IntentStatus(status)
	return &in, nil
}

func (s *SQLiteStore) MarkIntentFailed(ctx context.Context, intentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_intents SET status = 'failed', updated_at = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UTC(), intentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail intent %s", intentID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: fail intent rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: pending intent %s", intentID)
	}
	return nil
}

func (s *SQLiteStore) FailStaleIntents(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_intents SET status = 'failed', updated_at = ? WHERE status = 'pending' AND created_at < ?`,
		time.Now().UTC(), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fail stale intents")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: stale rows affected")
	}
	return int(n), nil
}

// GrantPremium applies the intent completion and the premium flag in one
// transaction. SQLite serializes writers, so the conditional UPDATE on
// is_premium is sufficient to make the grant at-most-once.
func (s *SQLiteStore) GrantPremium(ctx context.Context, resultID, providerRef string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin grant")
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var isPremium bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_premium FROM results WHERE id = ?`, resultID,
	).Scan(&isPremium)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, eris.Wrapf(ErrNotFound, "sqlite: result %s", resultID)
		}
		return false, eris.Wrapf(err, "sqlite: read result %s", resultID)
	}
	if isPremium {
		return false, nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE payment_intents SET status = 'completed', updated_at = ? WHERE result_id = ? AND provider_ref = ? AND status = 'pending'`,
		time.Now().UTC(), resultID, providerRef,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: complete intent")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: complete intent rows affected")
	}
	if n == 0 {
		return false, eris.Wrapf(ErrNotFound, "sqlite: pending intent %s for result %s", providerRef, resultID)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE results SET is_premium = 1, premium_payment_ref = ? WHERE id = ? AND is_premium = 0`,
		providerRef, resultID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set premium on result %s", resultID)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: set premium rows affected")
	}
	if n == 0 {
		// Lost a race between the read and the update.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit grant")
	}
	return true, nil
}

func (s *SQLiteStore) CreateActor(ctx context.Context, a *model.Actor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actors (id, email, display_name, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Email, a.DisplayName, a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert actor")
}

func (s *SQLiteStore) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	var a model.Actor
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, created_at FROM actors WHERE id = ?`, id,
	).Scan(&a.ID, &a.Email, &a.DisplayName, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: actor %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get actor %s", id)
	}
	return &a, nil
}
