package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/dsetyadi/chatagent/internal/extract"
	"github.com/dsetyadi/chatagent/internal/model"
	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

type fakeDocStore struct {
	docs   map[int64]*model.Document
	nextID int64
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[int64]*model.Document{}, nextID: 1}
}

func (f *fakeDocStore) Create(ctx context.Context, doc *model.Document) (int64, error) {
	for _, d := range f.docs {
		if d.Checksum == doc.Checksum {
			return 0, appErr.ErrDuplicate
		}
	}
	id := f.nextID
	f.nextID++
	cp := *doc
	cp.ID = id
	f.docs[id] = &cp
	return id, nil
}

func (f *fakeDocStore) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocStore) GetByChecksum(ctx context.Context, checksum string) (*model.Document, error) {
	for _, d := range f.docs {
		if d.Checksum == checksum {
			cp := *d
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeDocStore) List(ctx context.Context, offset, limit int) ([]model.Document, int, error) {
	out := make([]model.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (f *fakeDocStore) Update(ctx context.Context, doc *model.Document) error {
	if _, ok := f.docs[doc.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocStore) Delete(ctx context.Context, id int64) error {
	if _, ok := f.docs[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

type fakeChunkStore struct {
	byDoc        map[int64][]model.Chunk
	replaceCalls int
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{byDoc: map[int64][]model.Chunk{}}
}

func (f *fakeChunkStore) ReplaceChunks(ctx context.Context, documentID int64, chunks []model.Chunk) error {
	f.replaceCalls++
	f.byDoc[documentID] = append([]model.Chunk(nil), chunks...)
	return nil
}

func (f *fakeChunkStore) GetChunks(ctx context.Context, documentID int64) ([]model.Chunk, error) {
	return append([]model.Chunk(nil), f.byDoc[documentID]...), nil
}

type sentenceSplitter struct{}

func (sentenceSplitter) Split(text string) []model.Chunk {
	var out []model.Chunk
	start := 0
	idx := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			end := i + 1
			for end < len(text) && text[end] == ' ' {
				end++
			}
			out = append(out, model.Chunk{
				ChunkIndex: idx,
				Content:    text[start:end],
				TokenCount: end - start,
				StartChar:  start,
				EndChar:    end,
			})
			idx++
			start = end
			i = end - 1
		}
	}
	if start < len(text) {
		out = append(out, model.Chunk{
			ChunkIndex: idx,
			Content:    text[start:],
			TokenCount: len(text) - start,
			StartChar:  start,
			EndChar:    len(text),
		})
	}
	return out
}

type fakeBatchEmbedder struct {
	calls int
	err   error
}

func (f *fakeBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(i)}
	}
	return out, nil
}

type memFileStore struct {
	files map[string][]byte
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: map[string][]byte{}}
}

func (m *memFileStore) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[key] = data
	return nil
}

func (m *memFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memFileStore) Delete(ctx context.Context, key string) error {
	delete(m.files, key)
	return nil
}

func newTestDocumentService() (*DocumentService, *fakeDocStore, *fakeChunkStore, *fakeBatchEmbedder, *memFileStore) {
	docs := newFakeDocStore()
	chunks := newFakeChunkStore()
	embedder := &fakeBatchEmbedder{}
	files := newMemFileStore()
	svc := NewDocumentService(docs, chunks, sentenceSplitter{}, embedder, files, extract.New())
	return svc, docs, chunks, embedder, files
}

func TestUploadIngestsChunks(t *testing.T) {
	svc, docs, chunks, embedder, files := newTestDocumentService()
	content := "Machine Learning is a subset of AI. Deep learning uses neural networks."
	doc, got, err := svc.Upload(context.Background(), "ml.txt", strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.ID == 0 {
		t.Fatalf("document id not assigned")
	}
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	for i, ch := range got {
		if ch.DocumentID != doc.ID {
			t.Fatalf("chunk %d document id = %d, want %d", i, ch.DocumentID, doc.ID)
		}
		if ch.Embedding == nil {
			t.Fatalf("chunk %d missing embedding", i)
		}
	}
	if embedder.calls != 1 {
		t.Fatalf("want one batched embed call, got %d", embedder.calls)
	}
	stored, _ := chunks.GetChunks(context.Background(), doc.ID)
	if len(stored) != 2 {
		t.Fatalf("stored chunks = %d, want 2", len(stored))
	}
	if _, err := docs.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("document row missing: %v", err)
	}
	if len(files.files) != 1 {
		t.Fatalf("original file not kept, files = %d", len(files.files))
	}
}

func TestUploadDuplicateChecksumRejected(t *testing.T) {
	svc, _, _, _, _ := newTestDocumentService()
	content := "Same content twice."
	if _, _, err := svc.Upload(context.Background(), "one.txt", strings.NewReader(content)); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, _, err := svc.Upload(context.Background(), "two.txt", strings.NewReader(content))
	if !appErr.IsDuplicate(err) {
		t.Fatalf("want duplicate error, got %v", err)
	}
}

func TestReuploadSameContentReembeds(t *testing.T) {
	svc, _, chunks, embedder, _ := newTestDocumentService()
	content := "Stable content. Never changes."
	doc, _, err := svc.Upload(context.Background(), "a.txt", strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	_, got, err := svc.Reupload(context.Background(), doc.ID, "a.txt", strings.NewReader(content))
	if err != nil {
		t.Fatalf("reupload: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	if embedder.calls != 2 {
		t.Fatalf("reupload must re-embed, embed calls = %d", embedder.calls)
	}
	if chunks.replaceCalls != 2 {
		t.Fatalf("reupload must replace chunks, replace calls = %d", chunks.replaceCalls)
	}
}

func TestReuploadUnknownDocument(t *testing.T) {
	svc, _, _, _, _ := newTestDocumentService()
	_, _, err := svc.Reupload(context.Background(), 42, "x.txt", strings.NewReader("hi."))
	if !appErr.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestIngestEmptyContent(t *testing.T) {
	svc, _, chunks, embedder, _ := newTestDocumentService()
	got, err := svc.Ingest(context.Background(), &model.Document{ID: 7, Content: "   \n "})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty chunk list, got %d", len(got))
	}
	if embedder.calls != 0 {
		t.Fatalf("embedder must not be called for empty content")
	}
	if chunks.replaceCalls != 1 {
		t.Fatalf("existing chunks must still be cleared, replace calls = %d", chunks.replaceCalls)
	}
}

func TestIngestProviderFailureStoresNullVectors(t *testing.T) {
	svc, _, chunks, embedder, _ := newTestDocumentService()
	embedder.err = appErr.Provider(errors.New("rate limited"))
	got, err := svc.Ingest(context.Background(), &model.Document{ID: 3, Content: "One. Two."})
	if err != nil {
		t.Fatalf("ingest should succeed without vectors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	stored, _ := chunks.GetChunks(context.Background(), 3)
	for i, ch := range stored {
		if ch.Embedding != nil {
			t.Fatalf("chunk %d should have null embedding", i)
		}
	}
}

func TestIngestTimeoutAbortsWithoutWrites(t *testing.T) {
	svc, _, chunks, embedder, _ := newTestDocumentService()
	embedder.err = appErr.Provider(context.DeadlineExceeded)
	_, err := svc.Ingest(context.Background(), &model.Document{ID: 3, Content: "One. Two."})
	if !appErr.IsTimeout(err) {
		t.Fatalf("want timeout error, got %v", err)
	}
	if chunks.replaceCalls != 0 {
		t.Fatalf("no chunk writes allowed on timeout, replace calls = %d", chunks.replaceCalls)
	}
}

func TestDeleteRemovesStoredFile(t *testing.T) {
	svc, docs, _, _, files := newTestDocumentService()
	doc, _, err := svc.Upload(context.Background(), "gone.txt", strings.NewReader("Bye now."))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := svc.Delete(context.Background(), doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(files.files) != 0 {
		t.Fatalf("stored file should be removed")
	}
	if _, err := docs.GetByID(context.Background(), doc.ID); !appErr.IsNotFound(err) {
		t.Fatalf("document row should be gone, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes.txt"},
		{"../../etc/passwd", "passwd"},
		{"my report (final).md", "my_report_final_.md"},
		{"..", "upload"},
		{"", "upload"},
	}
	for _, c := range cases {
		if got := sanitizeFilename(c.in); got != c.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
