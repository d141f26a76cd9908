package documents

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/shared"
)

// ErrStatusChanged indicates the document status moved under the caller.
var ErrStatusChanged = errors.New("documents: status changed concurrently")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentColumns = `id, title, created_by, is_public, access_groups, status, expires_at, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Title, &doc.CreatedByID, &doc.IsPublic, &doc.AccessGroups, &doc.Status, &doc.ExpiresAt, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func collectDocuments(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// List returns documents, optionally narrowed by status, newest first.
// Access filtering happens in the service, so no pagination here.
func (r *Repository) List(ctx context.Context, status string) ([]Document, error) {
	if status != "" {
		rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE status = $1 ORDER BY created_at DESC, id`, status)
		if err != nil {
			return nil, err
		}
		return collectDocuments(rows)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// Get fetches a document by ID.
func (r *Repository) Get(ctx context.Context, id string) (Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// UpdateStatus moves a document from one status to another and appends a
// history row in the same transaction. The WHERE clause on the old status
// guards against concurrent transitions.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to authz.Status, actorID int64, note string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE documents SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		return ErrStatusChanged
	}

	_, err = tx.Exec(ctx, `INSERT INTO document_transitions (document_id, from_status, to_status, actor_id, note, occurred_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())`, id, from, to, actorID, note)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// History returns a document's transition records, oldest first.
func (r *Repository) History(ctx context.Context, id string) ([]TransitionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, from_status, to_status, actor_id, COALESCE(note, ''), occurred_at
FROM document_transitions WHERE document_id = $1 ORDER BY occurred_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.FromStatus, &rec.ToStatus, &rec.ActorID, &rec.Note, &rec.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ListExpired returns documents past their expiry that still hold a live
// status. Used by the expiry sweep job.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents
WHERE expires_at IS NOT NULL AND expires_at <= $1 AND status NOT IN ('EXPIRED', 'ARCHIVED')
ORDER BY expires_at, id`, now)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}
