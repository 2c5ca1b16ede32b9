package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"donation-service/internal/domain"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 5 * time.Second

// Postgres implements every store the services need on top of database/sql
// and lib/pq. Read-modify-write operations lock the row for the duration of
// the callback and additionally guard the write with the row version.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Postgres) NextSequence(ctx context.Context, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		INSERT INTO document_sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = document_sequences.value + 1
		RETURNING value
	`
	var value int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (r *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.WithError(err).Warn("Failed to roll back transaction")
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports a duplicate key error from Postgres.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// whereBuilder collects numbered placeholders for dynamically built filters.
type whereBuilder struct {
	conds []string
	args  []any
}

// add appends cond, replacing every "?" with the placeholder for v.
func (w *whereBuilder) add(cond string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

// addOwner restricts rows to the donor records owner may manage, using the
// same rule as domain.Actor.Owns: user ids decide when both sides carry one,
// the email otherwise.
func (w *whereBuilder) addOwner(owner domain.Actor) {
	switch {
	case owner.UserID != "" && owner.Email != "":
		w.args = append(w.args, owner.UserID, owner.Email)
		n := len(w.args)
		w.conds = append(w.conds, fmt.Sprintf("(CASE WHEN donor_user_id <> '' THEN donor_user_id = $%d ELSE lower(donor_email) = lower($%d) END)", n-1, n))
	case owner.UserID != "":
		w.add("donor_user_id = ?", owner.UserID)
	default:
		w.add("lower(donor_email) = lower(?)", owner.Email)
	}
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching term literally anywhere.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(term)) + "%"
}
