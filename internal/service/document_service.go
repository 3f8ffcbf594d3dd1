package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/dsetyadi/chatagent/internal/extract"
	"github.com/dsetyadi/chatagent/internal/filestore"
	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
	"github.com/dsetyadi/chatagent/internal/pkg/timeutil"
)

// DocumentStore is the document metadata persistence used by the service.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	GetByChecksum(ctx context.Context, checksum string) (*model.Document, error)
	List(ctx context.Context, offset, limit int) ([]model.Document, int, error)
	Update(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, id int64) error
}

// ChunkStore persists the chunk set of a document as one atomic unit.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, documentID int64, chunks []model.Chunk) error
	GetChunks(ctx context.Context, documentID int64) ([]model.Chunk, error)
}

// Splitter cuts document text into token-bounded chunks.
type Splitter interface {
	Split(text string) []model.Chunk
}

// BatchEmbedder embeds a batch of chunk texts in provider order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type DocumentService struct {
	docs     DocumentStore
	chunks   ChunkStore
	splitter Splitter
	embedder BatchEmbedder
	store    filestore.Store
	extract  extract.Extractor
}

func NewDocumentService(docs DocumentStore, chunks ChunkStore, splitter Splitter, embedder BatchEmbedder, store filestore.Store, extractor extract.Extractor) *DocumentService {
	return &DocumentService{
		docs:     docs,
		chunks:   chunks,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		extract:  extractor,
	}
}

var unsafeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return name
}

func fileKey(checksum, filename string) string {
	return checksum[:16] + "_" + sanitizeFilename(filename)
}

// Upload stores a new document and ingests its chunks. A file whose content
// checksum already exists is rejected with a duplicate error.
func (s *DocumentService) Upload(ctx context.Context, filename string, r io.Reader) (*model.Document, []model.Chunk, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, appErr.Storage(fmt.Errorf("read upload: %w", err))
	}
	if len(raw) == 0 {
		return nil, nil, appErr.Validation("uploaded file is empty")
	}
	sum := sha256.Sum256(raw)
	checksum := hex.EncodeToString(sum[:])

	if existing, err := s.docs.GetByChecksum(ctx, checksum); err != nil && !appErr.IsNotFound(err) {
		return nil, nil, err
	} else if existing != nil {
		return nil, nil, fmt.Errorf("document with identical content already exists as %q: %w",
			existing.Filename, appErr.ErrDuplicate)
	}

	text, err := s.extract.ExtractText(bytes.NewReader(raw), filename)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, appErr.Validation("no text content found in %q", filename)
	}

	key := fileKey(checksum, filename)
	if err := s.store.Save(ctx, key, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return nil, nil, appErr.Storage(fmt.Errorf("save file: %w", err))
	}

	now := timeutil.NowUnix()
	doc := &model.Document{
		Filename: sanitizeFilename(filename),
		Content:  text,
		Filepath: key,
		Checksum: checksum,
		Ctime:    now,
		Mtime:    now,
	}
	id, err := s.docs.Create(ctx, doc)
	if err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, nil, err
	}
	doc.ID = id

	chunks, err := s.Ingest(ctx, doc)
	if err != nil {
		_ = s.docs.Delete(ctx, id)
		_ = s.store.Delete(ctx, key)
		return nil, nil, err
	}
	logutil.GetLogger(ctx).Info("document uploaded",
		zap.Int64("document_id", id), zap.String("filename", doc.Filename),
		zap.Int("chunks", len(chunks)))
	return doc, chunks, nil
}

// Reupload replaces the content of an existing document and re-ingests it.
// A reupload with unchanged content still re-chunks and re-embeds so the
// stored vectors track the current embedding model.
func (s *DocumentService) Reupload(ctx context.Context, id int64, filename string, r io.Reader) (*model.Document, []model.Chunk, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, appErr.Storage(fmt.Errorf("read upload: %w", err))
	}
	if len(raw) == 0 {
		return nil, nil, appErr.Validation("uploaded file is empty")
	}
	sum := sha256.Sum256(raw)
	checksum := hex.EncodeToString(sum[:])

	if checksum != doc.Checksum {
		if other, err := s.docs.GetByChecksum(ctx, checksum); err != nil && !appErr.IsNotFound(err) {
			return nil, nil, err
		} else if other != nil && other.ID != id {
			return nil, nil, fmt.Errorf("content already stored as %q: %w", other.Filename, appErr.ErrDuplicate)
		}
	}

	text, err := s.extract.ExtractText(bytes.NewReader(raw), filename)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, appErr.Validation("no text content found in %q", filename)
	}

	oldKey := doc.Filepath
	key := fileKey(checksum, filename)
	if err := s.store.Save(ctx, key, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return nil, nil, appErr.Storage(fmt.Errorf("save file: %w", err))
	}

	doc.Filename = sanitizeFilename(filename)
	doc.Content = text
	doc.Filepath = key
	doc.Checksum = checksum
	doc.Mtime = timeutil.NowUnix()
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, nil, err
	}
	chunks, err := s.Ingest(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	if oldKey != "" && oldKey != key {
		_ = s.store.Delete(ctx, oldKey)
	}
	logutil.GetLogger(ctx).Info("document reuploaded",
		zap.Int64("document_id", id), zap.Int("chunks", len(chunks)))
	return doc, chunks, nil
}

// Ingest chunks the document text, embeds the chunks in one batched call
// and atomically replaces the stored chunk set. When the embedding provider
// fails the chunks are still stored with null vectors and the backfill job
// fills them in later; storage failures abort with nothing replaced.
func (s *DocumentService) Ingest(ctx context.Context, doc *model.Document) ([]model.Chunk, error) {
	logger := logutil.GetLogger(ctx).With(zap.Int64("document_id", doc.ID))
	if strings.TrimSpace(doc.Content) == "" {
		if err := s.chunks.ReplaceChunks(ctx, doc.ID, nil); err != nil {
			return nil, err
		}
		return []model.Chunk{}, nil
	}
	chunks := s.splitter.Split(doc.Content)
	now := timeutil.NowUnix()
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].Ctime = now
		chunks[i].Mtime = now
	}

	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		texts = append(texts, ch.Content)
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	switch {
	case err == nil:
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
	case appErr.IsValidation(err) || appErr.IsTimeout(err):
		return nil, err
	default:
		logger.Warn("embedding failed, storing chunks without vectors", zap.Error(err))
	}

	if err := s.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, err
	}
	logger.Debug("document ingested", zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (s *DocumentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	return s.docs.GetByID(ctx, id)
}

func (s *DocumentService) Chunks(ctx context.Context, id int64) ([]model.Chunk, error) {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.chunks.GetChunks(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, offset, limit int) ([]model.Document, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.List(ctx, offset, limit)
}

// Download opens the originally uploaded file.
func (s *DocumentService) Download(ctx context.Context, id int64) (*model.Document, io.ReadCloser, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, doc.Filepath)
	if err != nil {
		return nil, nil, appErr.Storage(fmt.Errorf("open file: %w", err))
	}
	return doc, rc, nil
}

// Delete removes the document row, its chunks via cascade and the stored file.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if doc.Filepath != "" {
		if err := s.store.Delete(ctx, doc.Filepath); err != nil {
			logutil.GetLogger(ctx).Warn("remove stored file failed",
				zap.Int64("document_id", id), zap.Error(err))
		}
	}
	return nil
}
