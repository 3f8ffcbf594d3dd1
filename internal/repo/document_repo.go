package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/dsetyadi/chatagent/internal/model"
	"github.com/dsetyadi/chatagent/internal/pkg/dbutil"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) (int64, error) {
	const query = `
		INSERT INTO documents (filename, content, filepath, checksum, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		doc.Filename, doc.Content, doc.Filepath, doc.Checksum, doc.Ctime, doc.Mtime,
	).Scan(&id)
	if err != nil {
		if dbutil.IsUniqueViolation(err) {
			return 0, appErr.ErrDuplicate
		}
		return 0, appErr.Storage(err)
	}
	doc.ID = id
	return id, nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	const query = `
		SELECT id, filename, content, filepath, checksum, ctime, mtime
		FROM documents
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.Filepath, &doc.Checksum, &doc.Ctime, &doc.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, appErr.Storage(err)
	}
	return &doc, nil
}

func (r *DocumentRepo) GetByChecksum(ctx context.Context, checksum string) (*model.Document, error) {
	const query = `
		SELECT id, filename, content, filepath, checksum, ctime, mtime
		FROM documents
		WHERE checksum = $1
	`
	row := r.db.QueryRowContext(ctx, query, checksum)
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.Filepath, &doc.Checksum, &doc.Ctime, &doc.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, appErr.Storage(err)
	}
	return &doc, nil
}

// List returns one page of documents, newest first, plus the total
// count for pagination.
func (r *DocumentRepo) List(ctx context.Context, offset, limit int) ([]model.Document, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, appErr.Storage(err)
	}

	where := map[string]interface{}{
		"_orderby": "ctime desc, id desc",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	query, args, err := builder.BuildSelect("documents",
		where, []string{"id", "filename", "filepath", "checksum", "ctime", "mtime"})
	if err != nil {
		return nil, 0, appErr.Storage(err)
	}
	query, args = dbutil.Finalize(query, args)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, appErr.Storage(err)
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Filepath, &doc.Checksum, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, 0, appErr.Storage(err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErr.Storage(err)
	}
	return docs, total, nil
}

// Update rewrites a document's file and content fields after a
// reupload. Chunks are replaced separately by the chunk repo.
func (r *DocumentRepo) Update(ctx context.Context, doc *model.Document) error {
	const query = `
		UPDATE documents
		SET filename = $1, content = $2, filepath = $3, checksum = $4, mtime = $5
		WHERE id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		doc.Filename, doc.Content, doc.Filepath, doc.Checksum, doc.Mtime, doc.ID)
	if err != nil {
		return appErr.Storage(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return appErr.Storage(err)
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// Delete removes the document row; chunks go with it through the
// ON DELETE CASCADE constraint.
func (r *DocumentRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return appErr.Storage(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return appErr.Storage(err)
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
