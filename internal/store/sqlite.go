package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLite is the single-file store used for local runs and tests. Writers are
// serialized by BEGIN IMMEDIATE on a single connection, which gives the same
// no-lost-update guarantee the row locks give on PostgreSQL.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := path + "?_txlock=immediate&_pragma=busy_timeout(5000)"

	// Run migrations
	if err := MigrateSQLite(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() {
	s.db.Close()
}

func (s *SQLite) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistence("commit tx", err)
	}
	return nil
}

func (s *SQLite) GetGoal(ctx context.Context, ownerID, id int64) (*domain.Goal, error) {
	return sqliteGetGoal(ctx, s.db, ownerID, id)
}

func (s *SQLite) ListGoals(ctx context.Context, ownerID int64, f GoalFilter) ([]domain.Goal, error) {
	c := goalConds(false, ownerID, f, sqliteDate)
	rows, err := s.db.QueryContext(ctx, "SELECT "+goalColumns+" FROM goals"+c.where()+" ORDER BY deadline, id", c.args...)
	if err != nil {
		return nil, persistence("list goals", err)
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := sqliteScanGoal(rows)
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

func (s *SQLite) GetTransaction(ctx context.Context, ownerID, id int64) (*domain.Transaction, error) {
	return sqliteGetTransaction(ctx, s.db, ownerID, id)
}

func (s *SQLite) ListTransactions(ctx context.Context, ownerID int64, f TransactionFilter) ([]domain.Transaction, error) {
	c := transactionConds(false, ownerID, f, sqliteDate)
	query := "SELECT " + transactionColumns + " FROM transactions" + c.where() + " ORDER BY occurred_on DESC, id DESC"
	query += c.limit(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, persistence("list transactions", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := sqliteScanTransaction(rows)
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

// SumTransactions adds the amounts in Go. SQLite's SUM over TEXT columns
// goes through floating point.
func (s *SQLite) SumTransactions(ctx context.Context, ownerID int64, f SumFilter) (decimal.Decimal, error) {
	c := sumConds(false, ownerID, f, sqliteDate)
	rows, err := s.db.QueryContext(ctx, "SELECT amount FROM transactions"+c.where(), c.args...)
	if err != nil {
		return decimal.Zero, persistence("sum transactions", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, persistence("scan amount", err)
		}
		sum = sum.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, persistence("sum transactions", err)
	}
	return sum, nil
}

func (s *SQLite) GetCategory(ctx context.Context, ownerID, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name FROM categories WHERE id = ? AND owner_id = ?",
		id, ownerID).Scan(&c.ID, &c.OwnerID, &c.Name)
	if err != nil {
		return nil, sqliteNotFoundOr(err, "category", id, "get category")
	}
	return &c, nil
}

func (s *SQLite) CreateCategory(ctx context.Context, ownerID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO categories (owner_id, name) VALUES (?, ?)", ownerID, name)
	if err != nil {
		return 0, persistence("insert category", err)
	}
	return lastID(res, "insert category")
}

func (s *SQLite) AppendActivity(ctx context.Context, e domain.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO activity_log (owner_id, action, detail, created_at) VALUES (?, ?, ?, ?)",
		e.OwnerID, e.Action, e.Detail, e.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return persistence("append activity", err)
	}
	return nil
}

// sqliteTx implements Tx. Rows need no explicit lock: the write transaction
// began IMMEDIATE and already holds the database's reserved lock.
type sqliteTx struct {
	q sqlQuerier
}

func (t *sqliteTx) LockGoal(ctx context.Context, ownerID, id int64) (*domain.Goal, error) {
	return sqliteGetGoal(ctx, t.q, ownerID, id)
}

func (t *sqliteTx) LockTransaction(ctx context.Context, ownerID, id int64) (*domain.Transaction, error) {
	return sqliteGetTransaction(ctx, t.q, ownerID, id)
}

func (t *sqliteTx) InsertGoal(ctx context.Context, g *domain.Goal) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO goals (owner_id, name, target_amount, current_amount, category_id, deadline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.OwnerID, g.Name, g.TargetAmount.String(), g.CurrentAmount.String(), g.CategoryID,
		g.Deadline.Format(dateLayout), g.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, persistence("insert goal", err)
	}
	return lastID(res, "insert goal")
}

func (t *sqliteTx) UpdateGoalFields(ctx context.Context, g *domain.Goal) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE goals SET name = ?, target_amount = ?, deadline = ?, category_id = ? WHERE id = ? AND owner_id = ?",
		g.Name, g.TargetAmount.String(), g.Deadline.Format(dateLayout), g.CategoryID, g.ID, g.OwnerID)
	if err != nil {
		return persistence("update goal", err)
	}
	return requireRow(res, "goal", g.ID, "update goal")
}

func (t *sqliteTx) DeleteGoal(ctx context.Context, ownerID, id int64) error {
	res, err := t.q.ExecContext(ctx, "DELETE FROM goals WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return persistence("delete goal", err)
	}
	return requireRow(res, "goal", id, "delete goal")
}

func (t *sqliteTx) AdjustGoalAmount(ctx context.Context, goalID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var current decimal.Decimal
	err := t.q.QueryRowContext(ctx, "SELECT current_amount FROM goals WHERE id = ?", goalID).Scan(&current)
	if err != nil {
		return decimal.Zero, sqliteNotFoundOr(err, "goal", goalID, "adjust goal amount")
	}

	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, &domain.ValidationError{Field: "current_amount", Reason: "must not be negative"}
	}
	if !domain.InRange(next) {
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "out of range"}
	}

	if _, err := t.q.ExecContext(ctx, "UPDATE goals SET current_amount = ? WHERE id = ?", next.String(), goalID); err != nil {
		return decimal.Zero, persistence("adjust goal amount", err)
	}
	return next, nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`INSERT INTO transactions (owner_id, kind, amount, occurred_on, category_id, goal_id, description, payment_method)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.OwnerID, string(tr.Kind), tr.Amount.String(), tr.OccurredOn.Format(dateLayout),
		tr.CategoryID, tr.GoalID, tr.Description, tr.PaymentMethod)
	if err != nil {
		return 0, persistence("insert transaction", err)
	}
	return lastID(res, "insert transaction")
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tr *domain.Transaction) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE transactions
		 SET kind = ?, amount = ?, occurred_on = ?, category_id = ?, goal_id = ?, description = ?, payment_method = ?
		 WHERE id = ? AND owner_id = ?`,
		string(tr.Kind), tr.Amount.String(), tr.OccurredOn.Format(dateLayout), tr.CategoryID, tr.GoalID,
		tr.Description, tr.PaymentMethod, tr.ID, tr.OwnerID)
	if err != nil {
		return persistence("update transaction", err)
	}
	return requireRow(res, "transaction", tr.ID, "update transaction")
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	res, err := t.q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return persistence("delete transaction", err)
	}
	return requireRow(res, "transaction", id, "delete transaction")
}

func (t *sqliteTx) GetIdempotencyKey(ctx context.Context, ownerID int64, key string) (*domain.IdempotencyRecord, error) {
	rec := domain.IdempotencyRecord{OwnerID: ownerID, Key: key}
	err := t.q.QueryRowContext(ctx,
		"SELECT request_hash, transaction_id, response_body FROM idempotency_keys WHERE owner_id = ? AND key = ?",
		ownerID, key).Scan(&rec.RequestHash, &rec.TransactionID, &rec.Response)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("get idempotency key", err)
	}
	return &rec, nil
}

// ReserveIdempotencyKey cannot race here: the IMMEDIATE transaction already
// excludes every other writer, so a taken key is seen by GetIdempotencyKey.
func (t *sqliteTx) ReserveIdempotencyKey(ctx context.Context, ownerID int64, key, requestHash string) error {
	_, err := t.q.ExecContext(ctx,
		"INSERT INTO idempotency_keys (owner_id, key, request_hash) VALUES (?, ?, ?)",
		ownerID, key, requestHash)
	if err != nil {
		return persistence("reserve idempotency key", err)
	}
	return nil
}

func (t *sqliteTx) CompleteIdempotencyKey(ctx context.Context, ownerID int64, key string, transactionID int64, response []byte) error {
	_, err := t.q.ExecContext(ctx,
		"UPDATE idempotency_keys SET transaction_id = ?, response_body = ? WHERE owner_id = ? AND key = ?",
		transactionID, string(response), ownerID, key)
	if err != nil {
		return persistence("complete idempotency key", err)
	}
	return nil
}

func sqliteGetGoal(ctx context.Context, q sqlQuerier, ownerID, id int64) (*domain.Goal, error) {
	row := q.QueryRowContext(ctx, "SELECT "+goalColumns+" FROM goals WHERE id = ? AND owner_id = ?", id, ownerID)
	g, err := sqliteScanGoal(row)
	if err != nil {
		return nil, sqliteNotFoundOr(err, "goal", id, "get goal")
	}
	return g, nil
}

func sqliteGetTransaction(ctx context.Context, q sqlQuerier, ownerID, id int64) (*domain.Transaction, error) {
	row := q.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND owner_id = ?", id, ownerID)
	t, err := sqliteScanTransaction(row)
	if err != nil {
		return nil, sqliteNotFoundOr(err, "transaction", id, "get transaction")
	}
	return t, nil
}

func sqliteScanGoal(row rowScanner) (*domain.Goal, error) {
	var g domain.Goal
	var deadline, createdAt string
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.CategoryID, &deadline, &createdAt)
	if err != nil {
		return nil, err
	}
	if g.Deadline, err = time.Parse(dateLayout, deadline); err != nil {
		return nil, fmt.Errorf("parse deadline: %w", err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &g, nil
}

func sqliteScanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var kind, occurredOn string
	err := row.Scan(&t.ID, &t.OwnerID, &kind, &t.Amount, &occurredOn, &t.CategoryID, &t.GoalID, &t.Description, &t.PaymentMethod)
	if err != nil {
		return nil, err
	}
	t.Kind = domain.Kind(kind)
	if t.OccurredOn, err = time.Parse(dateLayout, occurredOn); err != nil {
		return nil, fmt.Errorf("parse occurred_on: %w", err)
	}
	return &t, nil
}

func sqliteDate(t time.Time) any { return t.Format(dateLayout) }

func sqliteNotFoundOr(err error, entity string, id int64, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return persistence(op, err)
}

func lastID(res sql.Result, op string) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, persistence(op, err)
	}
	return id, nil
}

func requireRow(res sql.Result, entity string, id int64, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistence(op, err)
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
