package sqlite

import (
	"context"
	"database/sql"

	"github.com/harborworks/fieldsync/internal/sync/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open; caller commits/rolls back

// Ping is a no-op for transactions; the connection already exists.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) ApplyMigrations() error {
	// Migrations run against the root store, never inside a transaction.
	return sql.ErrTxDone
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return sql.ErrTxDone
}

func (t *txStore) Events() store.Events                         { return &eventsRepo{db: t.tx} }
func (t *txStore) EnrollmentRequests() store.EnrollmentRequests { return &enrollmentRequestsRepo{db: t.tx} }
func (t *txStore) EnrollmentRecords() store.EnrollmentRecords   { return &enrollmentRecordsRepo{db: t.tx} }
func (t *txStore) Tasks() store.Tasks                           { return &tasksRepo{db: t.tx} }
func (t *txStore) Projects() store.Projects                     { return &projectsRepo{db: t.tx} }
func (t *txStore) Documents() store.Documents                   { return &documentsRepo{db: t.tx} }
func (t *txStore) Notes() store.Notes                           { return &notesRepo{db: t.tx} }
func (t *txStore) Users() store.Users                           { return &usersRepo{db: t.tx} }
func (t *txStore) Groups() store.Groups                         { return &groupsRepo{db: t.tx} }
