// Package store persists embedded chunks and transcripts in SQLite and
// serves linear-scan similarity search over them.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrStore indicates a database-level failure.
var ErrStore = errors.New("store failure")

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one indexed chunk with its embedding.
type Document struct {
	ID              string
	MediaID         string
	MediaTitle      string
	SectionTitle    string
	Content         string
	StartSeconds    float64
	EndSeconds      float64
	Embedding       []float32
	ChunkOrder      int
	SourceCreatedAt string
	IndexedAt       time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document Document
	Score    float64
}

// IndexedMedia aggregates the documents of one piece of media.
type IndexedMedia struct {
	MediaID              string
	MediaTitle           string
	ChunkCount           int
	TotalDurationSeconds float64
	IndexedAt            time.Time
}

// StoredTranscript is a persisted transcript, kept so media can be
// re-chunked without re-transcribing.
type StoredTranscript struct {
	MediaID         string
	MediaTitle      string
	TranscriptJSON  string
	DurationSeconds float64
	TranscribedAt   time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	media_id TEXT NOT NULL,
	media_title TEXT NOT NULL,
	section_title TEXT,
	content TEXT NOT NULL,
	start_seconds REAL NOT NULL,
	end_seconds REAL NOT NULL,
	embedding BLOB NOT NULL,
	chunk_order INTEGER NOT NULL,
	source_created_at TEXT,
	indexed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_media_id ON documents(media_id);
CREATE INDEX IF NOT EXISTS idx_documents_indexed_at ON documents(indexed_at);
CREATE TABLE IF NOT EXISTS transcripts (
	media_id TEXT PRIMARY KEY,
	media_title TEXT NOT NULL,
	transcript_json TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	transcribed_at TEXT NOT NULL
);
`

// Store wraps one SQLite database. A process-wide mutex serialises every
// operation; linear-scan search dominates cost anyway, and a single
// writer keeps replace-media windows atomic from the caller's view.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the time source (for testing).
func WithNow(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// Open opens or creates the database at path, applying the schema and
// switching to WAL.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: the process-wide mutex is the real serializer and
	// additional connections would only fight over the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

const insertDocument = `
INSERT OR REPLACE INTO documents
	(id, media_id, media_title, section_title, content, start_seconds,
	 end_seconds, embedding, chunk_order, source_created_at, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Upsert inserts or replaces one document by id. A missing id gets a
// fresh UUID.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prepare(&doc)
	_, err := s.db.ExecContext(ctx, insertDocument, docArgs(doc)...)
	if err != nil {
		return fmt.Errorf("upsert document: %v: %w", err, ErrStore)
	}
	return nil
}

// UpsertBatch inserts or replaces documents in a single transaction.
func (s *Store) UpsertBatch(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertBatchLocked(ctx, docs)
}

func (s *Store) upsertBatchLocked(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %v: %w", err, ErrStore)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertDocument)
	if err != nil {
		return fmt.Errorf("prepare insert: %v: %w", err, ErrStore)
	}
	defer func() { _ = stmt.Close() }()

	for _, doc := range docs {
		s.prepare(&doc)
		if _, err := stmt.ExecContext(ctx, docArgs(doc)...); err != nil {
			return fmt.Errorf("insert document %s: %v: %w", doc.ID, err, ErrStore)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %v: %w", err, ErrStore)
	}
	return nil
}

// ReplaceMedia deletes every document of mediaID and inserts docs, all
// in one transaction, so readers never observe a half-replaced media.
func (s *Store) ReplaceMedia(ctx context.Context, mediaID string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %v: %w", err, ErrStore)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE media_id = ?", mediaID); err != nil {
		return fmt.Errorf("delete media %s: %v: %w", mediaID, err, ErrStore)
	}
	stmt, err := tx.PrepareContext(ctx, insertDocument)
	if err != nil {
		return fmt.Errorf("prepare insert: %v: %w", err, ErrStore)
	}
	defer func() { _ = stmt.Close() }()
	for _, doc := range docs {
		s.prepare(&doc)
		if _, err := stmt.ExecContext(ctx, docArgs(doc)...); err != nil {
			return fmt.Errorf("insert document %s: %v: %w", doc.ID, err, ErrStore)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %v: %w", err, ErrStore)
	}
	return nil
}

// DeleteByMedia removes every document of mediaID and reports how many
// rows went away. Deleting absent media is not an error.
func (s *Store) DeleteByMedia(ctx context.Context, mediaID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE media_id = ?", mediaID)
	if err != nil {
		return 0, fmt.Errorf("delete media %s: %v: %w", mediaID, err, ErrStore)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const selectDocuments = `
SELECT id, media_id, media_title, section_title, content, start_seconds,
       end_seconds, embedding, chunk_order, source_created_at, indexed_at
FROM documents`

// Search scans every document and returns the limit best cosine matches
// in descending score order.
func (s *Store) Search(ctx context.Context, queryVec []float32, limit int) ([]SearchResult, error) {
	return s.SearchWithThreshold(ctx, queryVec, limit, -1.0)
}

// SearchWithThreshold is Search filtered to scores >= minScore.
func (s *Store) SearchWithThreshold(ctx context.Context, queryVec []float32, limit int, minScore float64) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectDocuments)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %v: %w", err, ErrStore)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		score := Cosine(queryVec, doc.Embedding)
		if score >= minScore {
			results = append(results, SearchResult{Document: doc, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan documents: %v: %w", err, ErrStore)
	}

	sortByScore(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetByMedia returns every document of mediaID ordered by chunk_order.
func (s *Store) GetByMedia(ctx context.Context, mediaID string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		selectDocuments+" WHERE media_id = ? ORDER BY chunk_order", mediaID)
	if err != nil {
		return nil, fmt.Errorf("query media %s: %v: %w", mediaID, err, ErrStore)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query media %s: %v: %w", mediaID, err, ErrStore)
	}
	return docs, nil
}

const selectMedia = `
SELECT media_id, media_title, COUNT(*),
       MAX(end_seconds), MAX(indexed_at)
FROM documents
GROUP BY media_id
ORDER BY MAX(indexed_at) DESC`

// ListMedia aggregates documents per media, newest first.
func (s *Store) ListMedia(ctx context.Context) ([]IndexedMedia, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectMedia)
	if err != nil {
		return nil, fmt.Errorf("list media: %v: %w", err, ErrStore)
	}
	defer func() { _ = rows.Close() }()

	var media []IndexedMedia
	for rows.Next() {
		var m IndexedMedia
		var indexedAt string
		if err := rows.Scan(&m.MediaID, &m.MediaTitle, &m.ChunkCount, &m.TotalDurationSeconds, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan media: %v: %w", err, ErrStore)
		}
		m.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media: %v: %w", err, ErrStore)
	}
	return media, nil
}

// GetMedia returns the aggregate for one media id.
func (s *Store) GetMedia(ctx context.Context, mediaID string) (IndexedMedia, error) {
	media, err := s.ListMedia(ctx)
	if err != nil {
		return IndexedMedia{}, err
	}
	for _, m := range media {
		if m.MediaID == mediaID {
			return m, nil
		}
	}
	return IndexedMedia{}, fmt.Errorf("media %s: %w", mediaID, ErrNotFound)
}

// IsIndexed reports whether at least one document exists for mediaID.
func (s *Store) IsIndexed(ctx context.Context, mediaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE media_id = ?", mediaID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count media %s: %v: %w", mediaID, err, ErrStore)
	}
	return n > 0, nil
}

// StoreTranscript saves or replaces the transcript of mediaID.
func (s *Store) StoreTranscript(ctx context.Context, t StoredTranscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.TranscribedAt.IsZero() {
		t.TranscribedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO transcripts
	(media_id, media_title, transcript_json, duration_seconds, transcribed_at)
VALUES (?, ?, ?, ?, ?)`,
		t.MediaID, t.MediaTitle, t.TranscriptJSON, t.DurationSeconds,
		t.TranscribedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store transcript %s: %v: %w", t.MediaID, err, ErrStore)
	}
	return nil
}

// GetTranscript loads the stored transcript of mediaID.
func (s *Store) GetTranscript(ctx context.Context, mediaID string) (StoredTranscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t StoredTranscript
	var transcribedAt string
	err := s.db.QueryRowContext(ctx, `
SELECT media_id, media_title, transcript_json, duration_seconds, transcribed_at
FROM transcripts WHERE media_id = ?`, mediaID).
		Scan(&t.MediaID, &t.MediaTitle, &t.TranscriptJSON, &t.DurationSeconds, &transcribedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredTranscript{}, fmt.Errorf("transcript %s: %w", mediaID, ErrNotFound)
	}
	if err != nil {
		return StoredTranscript{}, fmt.Errorf("get transcript %s: %v: %w", mediaID, err, ErrStore)
	}
	t.TranscribedAt, _ = time.Parse(time.RFC3339, transcribedAt)
	return t, nil
}

// HasTranscript reports whether a transcript is stored for mediaID.
func (s *Store) HasTranscript(ctx context.Context, mediaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transcripts WHERE media_id = ?", mediaID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count transcripts %s: %v: %w", mediaID, err, ErrStore)
	}
	return n > 0, nil
}

// ListTranscripts enumerates stored transcripts, newest first.
func (s *Store) ListTranscripts(ctx context.Context) ([]StoredTranscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT media_id, media_title, transcript_json, duration_seconds, transcribed_at
FROM transcripts ORDER BY transcribed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %v: %w", err, ErrStore)
	}
	defer func() { _ = rows.Close() }()

	var transcripts []StoredTranscript
	for rows.Next() {
		var t StoredTranscript
		var transcribedAt string
		if err := rows.Scan(&t.MediaID, &t.MediaTitle, &t.TranscriptJSON, &t.DurationSeconds, &transcribedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %v: %w", err, ErrStore)
		}
		t.TranscribedAt, _ = time.Parse(time.RFC3339, transcribedAt)
		transcripts = append(transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transcripts: %v: %w", err, ErrStore)
	}
	return transcripts, nil
}

// prepare fills generated fields before writing.
func (s *Store) prepare(doc *Document) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = s.now().UTC()
	}
}

func docArgs(doc Document) []any {
	return []any{
		doc.ID, doc.MediaID, doc.MediaTitle, doc.SectionTitle, doc.Content,
		doc.StartSeconds, doc.EndSeconds, EmbeddingToBytes(doc.Embedding),
		doc.ChunkOrder, doc.SourceCreatedAt,
		doc.IndexedAt.UTC().Format(time.RFC3339),
	}
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var sectionTitle, sourceCreatedAt sql.NullString
	var blob []byte
	var indexedAt string
	err := row.Scan(&doc.ID, &doc.MediaID, &doc.MediaTitle, &sectionTitle,
		&doc.Content, &doc.StartSeconds, &doc.EndSeconds, &blob,
		&doc.ChunkOrder, &sourceCreatedAt, &indexedAt)
	if err != nil {
		return Document{}, fmt.Errorf("scan document: %v: %w", err, ErrStore)
	}
	doc.SectionTitle = sectionTitle.String
	doc.SourceCreatedAt = sourceCreatedAt.String
	doc.Embedding = BytesToEmbedding(blob)
	doc.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	return doc, nil
}

// sortByScore orders results by descending score, stable for ties.
func sortByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// EmbeddingToBytes encodes a vector as little-endian float32s.
func EmbeddingToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// BytesToEmbedding decodes a little-endian float32 blob, ignoring any
// trailing bytes that do not fill a whole float.
func BytesToEmbedding(data []byte) []float32 {
	n := len(data) / 4
	vec := make([]float32, n)
	for i := range n {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors. Mismatched
// dimensions, empty vectors and zero norms all score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
