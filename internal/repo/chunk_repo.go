package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/dsetyadi/chatagent/internal/model"
	"github.com/dsetyadi/chatagent/internal/pkg/dbutil"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

// insertBatchSize keeps multi-row inserts well under the Postgres
// placeholder limit (9 columns per row).
const insertBatchSize = 500

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// NearestChunk is one vector-search hit: the chunk, the filename of
// its owning document, and the cosine distance to the query vector.
type NearestChunk struct {
	model.Chunk
	Filename string
	Distance float64
}

// ReplaceChunks swaps a document's whole chunk set in one transaction.
// A concurrent reader observes either the fully-old or fully-new set,
// never a mix. A unique violation on (document_id, chunk_index) here
// means the caller produced duplicate indexes, which is a bug.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, documentID int64, chunks []model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return appErr.Storage(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return appErr.Storage(err)
	}
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := insertChunks(ctx, tx, documentID, chunks[start:end]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return appErr.Storage(err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, documentID int64, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO document_chunks
		(document_id, chunk_index, content, embedding, token_count, start_char, end_char, ctime, mtime)
		VALUES `)
	args := make([]interface{}, 0, len(chunks)*9)
	for i, ch := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		var emb interface{}
		if ch.Embedding != nil {
			emb = pgvector.NewVector(ch.Embedding)
		}
		args = append(args, documentID, ch.ChunkIndex, ch.Content, emb,
			ch.TokenCount, ch.StartChar, ch.EndChar, ch.Ctime, ch.Mtime)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		if dbutil.IsUniqueViolation(err) {
			return appErr.Storage(fmt.Errorf("duplicate chunk_index for document %d: %w", documentID, err))
		}
		return appErr.Storage(err)
	}
	return nil
}

func (r *ChunkRepo) GetChunks(ctx context.Context, documentID int64) ([]model.Chunk, error) {
	const query = `
		SELECT id, document_id, chunk_index, content, embedding, token_count, start_char, end_char, ctime, mtime
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, appErr.Storage(err)
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, appErr.Storage(err)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Storage(err)
	}
	return chunks, nil
}

func (r *ChunkRepo) DeleteChunks(ctx context.Context, documentID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return appErr.Storage(err)
	}
	return nil
}

// Nearest returns up to k chunks ordered by ascending cosine distance
// to the query vector. Ties break on lower chunk_index, then lower
// document_id, so rankings are deterministic. Chunks whose embedding
// failed (NULL) are invisible to search until backfilled.
func (r *ChunkRepo) Nearest(ctx context.Context, queryVector []float32, k int) ([]NearestChunk, error) {
	const query = `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count,
			c.start_char, c.end_char, d.filename,
			(c.embedding <=> $1) AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		ORDER BY distance ASC, c.chunk_index ASC, c.document_id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), k)
	if err != nil {
		return nil, appErr.Storage(err)
	}
	defer rows.Close()
	var results []NearestChunk
	for rows.Next() {
		var item NearestChunk
		if err := rows.Scan(
			&item.Chunk.ID, &item.Chunk.DocumentID, &item.Chunk.ChunkIndex, &item.Chunk.Content,
			&item.Chunk.TokenCount, &item.Chunk.StartChar, &item.Chunk.EndChar,
			&item.Filename, &item.Distance,
		); err != nil {
			return nil, appErr.Storage(err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Storage(err)
	}
	return results, nil
}

// ListMissingEmbeddings finds chunks whose embedding call failed, for
// the backfill job.
func (r *ChunkRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]model.Chunk, error) {
	const query = `
		SELECT id, document_id, chunk_index, content, embedding, token_count, start_char, end_char, ctime, mtime
		FROM document_chunks
		WHERE embedding IS NULL
		ORDER BY id ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, appErr.Storage(err)
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, appErr.Storage(err)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Storage(err)
	}
	return chunks, nil
}

func (r *ChunkRepo) UpdateEmbedding(ctx context.Context, chunkID int64, embedding []float32, mtime int64) error {
	const query = `UPDATE document_chunks SET embedding = $1, mtime = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, pgvector.NewVector(embedding), mtime, chunkID); err != nil {
		return appErr.Storage(err)
	}
	return nil
}

func scanChunk(rows *sql.Rows) (model.Chunk, error) {
	var ch model.Chunk
	var emb *pgvector.Vector
	if err := rows.Scan(
		&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Content, &emb,
		&ch.TokenCount, &ch.StartChar, &ch.EndChar, &ch.Ctime, &ch.Mtime,
	); err != nil {
		return model.Chunk{}, err
	}
	if emb != nil {
		ch.Embedding = emb.Slice()
	}
	return ch, nil
}
