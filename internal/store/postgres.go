package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	goalColumns        = "id, owner_id, name, target_amount, current_amount, category_id, deadline, created_at"
	transactionColumns = "id, owner_id, kind, amount, occurred_on, category_id, goal_id, description, payment_method"
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production store.
type Postgres struct {
	Db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if err := MigratePostgres(connString); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// WithTx runs fn at READ COMMITTED. Row locks taken with FOR UPDATE make a
// waiting writer re-read the latest committed balance instead of failing with
// a serialization error.
func (s *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return persistence("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence("commit tx", err)
	}
	return nil
}

func (s *Postgres) GetGoal(ctx context.Context, ownerID, id int64) (*domain.Goal, error) {
	return pgGetGoal(ctx, s.Db, ownerID, id, "")
}

func (s *Postgres) ListGoals(ctx context.Context, ownerID int64, f GoalFilter) ([]domain.Goal, error) {
	c := goalConds(true, ownerID, f, pgDate)
	rows, err := s.Db.Query(ctx, "SELECT "+goalColumns+" FROM goals"+c.where()+" ORDER BY deadline, id", c.args...)
	if err != nil {
		return nil, persistence("list goals", err)
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, persistence("scan goal", err)
		}
		goals = append(goals, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list goals", err)
	}
	return goals, nil
}

func (s *Postgres) GetTransaction(ctx context.Context, ownerID, id int64) (*domain.Transaction, error) {
	return pgGetTransaction(ctx, s.Db, ownerID, id, "")
}

func (s *Postgres) ListTransactions(ctx context.Context, ownerID int64, f TransactionFilter) ([]domain.Transaction, error) {
	c := transactionConds(true, ownerID, f, pgDate)
	query := "SELECT " + transactionColumns + " FROM transactions" + c.where() + " ORDER BY occurred_on DESC, id DESC"
	query += c.limit(f.Limit)

	rows, err := s.Db.Query(ctx, query, c.args...)
	if err != nil {
		return nil, persistence("list transactions", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, persistence("scan transaction", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list transactions", err)
	}
	return txs, nil
}

func (s *Postgres) SumTransactions(ctx context.Context, ownerID int64, f SumFilter) (decimal.Decimal, error) {
	c := sumConds(true, ownerID, f, pgDate)
	var sum decimal.Decimal
	err := s.Db.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM transactions"+c.where(), c.args...).Scan(&sum)
	if err != nil {
		return decimal.Zero, persistence("sum transactions", err)
	}
	return sum, nil
}

func (s *Postgres) GetCategory(ctx context.Context, ownerID, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.Db.QueryRow(ctx,
		"SELECT id, owner_id, name FROM categories WHERE id = $1 AND owner_id = $2",
		id, ownerID).Scan(&c.ID, &c.OwnerID, &c.Name)
	if err != nil {
		return nil, notFoundOr(err, "category", id, "get category")
	}
	return &c, nil
}

func (s *Postgres) CreateCategory(ctx context.Context, ownerID int64, name string) (int64, error) {
	var id int64
	err := s.Db.QueryRow(ctx,
		"INSERT INTO categories (owner_id, name) VALUES ($1, $2) RETURNING id",
		ownerID, name).Scan(&id)
	if err != nil {
		return 0, persistence("insert category", err)
	}
	return id, nil
}

func (s *Postgres) AppendActivity(ctx context.Context, e domain.ActivityEntry) error {
	_, err := s.Db.Exec(ctx,
		"INSERT INTO activity_log (owner_id, action, detail, created_at) VALUES ($1, $2, $3, $4)",
		e.OwnerID, e.Action, e.Detail, e.At)
	if err != nil {
		return persistence("append activity", err)
	}
	return nil
}

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	q pgQuerier
}

func (t *pgTx) LockGoal(ctx context.Context, ownerID, id int64) (*domain.Goal, error) {
	return pgGetGoal(ctx, t.q, ownerID, id, " FOR UPDATE")
}

func (t *pgTx) LockTransaction(ctx context.Context, ownerID, id int64) (*domain.Transaction, error) {
	return pgGetTransaction(ctx, t.q, ownerID, id, " FOR UPDATE")
}

func (t *pgTx) InsertGoal(ctx context.Context, g *domain.Goal) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx,
		`INSERT INTO goals (owner_id, name, target_amount, current_amount, category_id, deadline, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		g.OwnerID, g.Name, g.TargetAmount, g.CurrentAmount, g.CategoryID, g.Deadline, g.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, pgWriteErr("insert goal", err)
	}
	return id, nil
}

func (t *pgTx) UpdateGoalFields(ctx context.Context, g *domain.Goal) error {
	tag, err := t.q.Exec(ctx,
		"UPDATE goals SET name = $1, target_amount = $2, deadline = $3, category_id = $4 WHERE id = $5 AND owner_id = $6",
		g.Name, g.TargetAmount, g.Deadline, g.CategoryID, g.ID, g.OwnerID)
	if err != nil {
		return pgWriteErr("update goal", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "goal", ID: g.ID}
	}
	return nil
}

func (t *pgTx) DeleteGoal(ctx context.Context, ownerID, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM goals WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return persistence("delete goal", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "goal", ID: id}
	}
	return nil
}

// AdjustGoalAmount is a single in-place arithmetic statement; the database
// does the addition on NUMERIC so no rounding happens on the way.
func (t *pgTx) AdjustGoalAmount(ctx context.Context, goalID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var current decimal.Decimal
	err := t.q.QueryRow(ctx,
		"UPDATE goals SET current_amount = current_amount + $1 WHERE id = $2 RETURNING current_amount",
		delta, goalID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, &domain.NotFoundError{Entity: "goal", ID: goalID}
		}
		return decimal.Zero, pgWriteErr("adjust goal amount", err)
	}
	return current, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx,
		`INSERT INTO transactions (owner_id, kind, amount, occurred_on, category_id, goal_id, description, payment_method)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		tr.OwnerID, string(tr.Kind), tr.Amount, tr.OccurredOn, tr.CategoryID, tr.GoalID, tr.Description, tr.PaymentMethod,
	).Scan(&id)
	if err != nil {
		return 0, pgWriteErr("insert transaction", err)
	}
	return id, nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tr *domain.Transaction) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE transactions
		 SET kind = $1, amount = $2, occurred_on = $3, category_id = $4, goal_id = $5, description = $6, payment_method = $7
		 WHERE id = $8 AND owner_id = $9`,
		string(tr.Kind), tr.Amount, tr.OccurredOn, tr.CategoryID, tr.GoalID, tr.Description, tr.PaymentMethod,
		tr.ID, tr.OwnerID)
	if err != nil {
		return pgWriteErr("update transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "transaction", ID: tr.ID}
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM transactions WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return persistence("delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "transaction", ID: id}
	}
	return nil
}

func (t *pgTx) GetIdempotencyKey(ctx context.Context, ownerID int64, key string) (*domain.IdempotencyRecord, error) {
	rec := domain.IdempotencyRecord{OwnerID: ownerID, Key: key}
	err := t.q.QueryRow(ctx,
		"SELECT request_hash, transaction_id, response_body FROM idempotency_keys WHERE owner_id = $1 AND key = $2",
		ownerID, key).Scan(&rec.RequestHash, &rec.TransactionID, &rec.Response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("get idempotency key", err)
	}
	return &rec, nil
}

// ReserveIdempotencyKey blocks on the primary key while another open
// transaction holds the same key, then fails with a unique violation once
// that transaction commits.
func (t *pgTx) ReserveIdempotencyKey(ctx context.Context, ownerID int64, key, requestHash string) error {
	_, err := t.q.Exec(ctx,
		"INSERT INTO idempotency_keys (owner_id, key, request_hash) VALUES ($1, $2, $3)",
		ownerID, key, requestHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrIdempotencyConflict
		}
		return persistence("reserve idempotency key", err)
	}
	return nil
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, ownerID int64, key string, transactionID int64, response []byte) error {
	_, err := t.q.Exec(ctx,
		"UPDATE idempotency_keys SET transaction_id = $1, response_body = $2 WHERE owner_id = $3 AND key = $4",
		transactionID, response, ownerID, key)
	if err != nil {
		return persistence("complete idempotency key", err)
	}
	return nil
}

func pgGetGoal(ctx context.Context, q pgQuerier, ownerID, id int64, suffix string) (*domain.Goal, error) {
	row := q.QueryRow(ctx, "SELECT "+goalColumns+" FROM goals WHERE id = $1 AND owner_id = $2"+suffix, id, ownerID)
	g, err := scanGoal(row)
	if err != nil {
		return nil, notFoundOr(err, "goal", id, "get goal")
	}
	return g, nil
}

func pgGetTransaction(ctx context.Context, q pgQuerier, ownerID, id int64, suffix string) (*domain.Transaction, error) {
	row := q.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1 AND owner_id = $2"+suffix, id, ownerID)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, notFoundOr(err, "transaction", id, "get transaction")
	}
	return t, nil
}

func scanGoal(row pgx.Row) (*domain.Goal, error) {
	var g domain.Goal
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.CategoryID, &g.Deadline, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.Deadline = domain.DateOf(g.Deadline)
	return &g, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var kind string
	err := row.Scan(&t.ID, &t.OwnerID, &kind, &t.Amount, &t.OccurredOn, &t.CategoryID, &t.GoalID, &t.Description, &t.PaymentMethod)
	if err != nil {
		return nil, err
	}
	t.Kind = domain.Kind(kind)
	t.OccurredOn = domain.DateOf(t.OccurredOn)
	return &t, nil
}

func pgDate(t time.Time) any { return t }

func notFoundOr(err error, entity string, id int64, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return persistence(op, err)
}

// pgWriteErr turns check violations and numeric overflow into validation
// errors; everything else is a persistence failure.
func pgWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514":
			return &domain.ValidationError{Field: pgErr.ConstraintName, Reason: "violates check constraint"}
		case "22003":
			return &domain.ValidationError{Field: "amount", Reason: "out of range"}
		}
	}
	return persistence(op, err)
}

func persistence(op string, err error) error {
	return &domain.PersistenceError{Op: op, Err: err}
}
