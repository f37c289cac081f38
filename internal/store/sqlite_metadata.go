package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore implements MetadataStore over a single SQLite database file.
// It follows the same WAL-mode, corruption-auto-recovery pattern as
// SQLiteBM25Index so the two stores behave consistently under concurrent
// access and process crashes.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

func validateMetadataIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
	                   WHERE type='table' AND name='documents'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table 'documents' missing")
	}

	return nil
}

// NewSQLiteStore opens (creating if necessary) the metadata database at path.
// An empty path opens an in-memory database, useful for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateMetadataIntegrity(path); validErr != nil {
			slog.Warn("metadata_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("metadata store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("metadata_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, reindex required"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id               TEXT PRIMARY KEY,
		path             TEXT NOT NULL,
		filename         TEXT NOT NULL,
		extension        TEXT NOT NULL,
		media_type       TEXT NOT NULL,
		size             INTEGER NOT NULL,
		content_hash     TEXT NOT NULL,
		created_at       TEXT NOT NULL,
		modified_at      TEXT NOT NULL,
		indexed_at       TEXT NOT NULL,
		is_deleted       INTEGER NOT NULL DEFAULT 0,
		deleted_at       TEXT,
		duration_seconds REAL,
		width            INTEGER,
		height           INTEGER
	);

	-- Content hash is only unique among non-deleted documents: a soft-deleted
	-- document's hash must not block re-ingesting the same file.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_hash_live
		ON documents(content_hash) WHERE is_deleted = 0;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_path_live
		ON documents(path) WHERE is_deleted = 0;

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		text        TEXT NOT NULL,
		vector      BLOB,
		start_time  REAL,
		end_time    REAL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS image_descriptions (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		ocr_text    TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '',
		vector      BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_image_descriptions_document ON image_descriptions(document_id);

	CREATE TABLE IF NOT EXISTS transcripts (
		id               TEXT PRIMARY KEY,
		document_id      TEXT NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
		full_text        TEXT NOT NULL,
		language         TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		word_count       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func timeToStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func strToTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SaveDocument inserts or replaces a document row by ID.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	var deletedAt any
	if doc.DeletedAt != nil {
		deletedAt = timeToStr(*doc.DeletedAt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, path, filename, extension, media_type, size, content_hash,
			created_at, modified_at, indexed_at, is_deleted, deleted_at,
			duration_seconds, width, height
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path, filename=excluded.filename, extension=excluded.extension,
			media_type=excluded.media_type, size=excluded.size, content_hash=excluded.content_hash,
			created_at=excluded.created_at, modified_at=excluded.modified_at, indexed_at=excluded.indexed_at,
			is_deleted=excluded.is_deleted, deleted_at=excluded.deleted_at,
			duration_seconds=excluded.duration_seconds, width=excluded.width, height=excluded.height
	`,
		doc.ID, doc.Path, doc.Filename, doc.Extension, string(doc.MediaType), doc.Size, doc.ContentHash,
		timeToStr(doc.CreatedAt), timeToStr(doc.ModifiedAt), timeToStr(doc.IndexedAt),
		boolToInt(doc.IsDeleted), deletedAt,
		doc.DurationSeconds, doc.Width, doc.Height,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanDocument(row interface {
	Scan(dest ...any) error
}) (*Document, error) {
	var d Document
	var mediaType string
	var createdAt, modifiedAt, indexedAt string
	var isDeleted int
	var deletedAt sql.NullString
	var duration sql.NullFloat64
	var width, height sql.NullInt64

	err := row.Scan(
		&d.ID, &d.Path, &d.Filename, &d.Extension, &mediaType, &d.Size, &d.ContentHash,
		&createdAt, &modifiedAt, &indexedAt, &isDeleted, &deletedAt,
		&duration, &width, &height,
	)
	if err != nil {
		return nil, err
	}

	d.MediaType = MediaType(mediaType)
	d.CreatedAt = strToTime(createdAt)
	d.ModifiedAt = strToTime(modifiedAt)
	d.IndexedAt = strToTime(indexedAt)
	d.IsDeleted = isDeleted != 0
	if deletedAt.Valid {
		t := strToTime(deletedAt.String)
		d.DeletedAt = &t
	}
	if duration.Valid {
		d.DurationSeconds = &duration.Float64
	}
	if width.Valid {
		w := int(width.Int64)
		d.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		d.Height = &h
	}

	return &d, nil
}

const documentColumns = `id, path, filename, extension, media_type, size, content_hash,
	created_at, modified_at, indexed_at, is_deleted, deleted_at,
	duration_seconds, width, height`

// GetDocument returns the document with id, or nil if not found.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

// GetDocumentByHash returns the non-deleted document with the given content
// hash, or nil if none exists. Used by the indexer to deduplicate ingestion.
func (s *SQLiteStore) GetDocumentByHash(ctx context.Context, contentHash string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? AND is_deleted = 0`, contentHash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return doc, nil
}

// GetDocumentByPath returns the non-deleted document at path, or nil if none.
func (s *SQLiteStore) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE path = ? AND is_deleted = 0`, path)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by path: %w", err)
	}
	return doc, nil
}

// ListDocuments pages through non-deleted documents ordered by ID, returning
// the next cursor (empty when exhausted).
func (s *SQLiteStore) ListDocuments(ctx context.Context, cursor string, limit int) ([]*Document, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, "", fmt.Errorf("metadata store is closed")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE is_deleted = 0 AND id > ?
		 ORDER BY id LIMIT ?`, cursor, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(docs) > limit {
		nextCursor = docs[limit-1].ID
		docs = docs[:limit]
	}

	return docs, nextCursor, nil
}

// SoftDeleteDocument marks a document deleted without removing its row, so
// its chunks stay addressable until a later hard delete or reindex.
func (s *SQLiteStore) SoftDeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET is_deleted = 1, deleted_at = ? WHERE id = ?`,
		timeToStr(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete document %s: %w", id, err)
	}
	return nil
}

// HardDeleteDocument permanently removes a document and, via foreign key
// cascade, its chunks and transcript.
func (s *SQLiteStore) HardDeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to hard-delete document %s: %w", id, err)
	}
	return nil
}

func encodeVector(v []float32) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SaveChunks inserts or replaces chunk rows. Chunks are denormalized with
// their parent document's path/filename/media_type for display and filtering
// without a join; the caller is responsible for keeping that denormalization
// consistent with the parent Document row.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, text, vector, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id=excluded.document_id, chunk_index=excluded.chunk_index,
			text=excluded.text, vector=excluded.vector,
			start_time=excluded.start_time, end_time=excluded.end_time
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		vecBytes, err := encodeVector(c.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector for chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.ChunkIndex, c.Text, vecBytes, c.StartTime, c.EndTime); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) hydrateChunk(ctx context.Context, row interface{ Scan(dest ...any) error }) (*Chunk, error) {
	var c Chunk
	var vecBytes []byte
	var startTime, endTime sql.NullFloat64

	err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &vecBytes, &startTime, &endTime)
	if err != nil {
		return nil, err
	}

	vec, err := decodeVector(vecBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vector for chunk %s: %w", c.ID, err)
	}
	c.Vector = vec
	if startTime.Valid {
		c.StartTime = &startTime.Float64
	}
	if endTime.Valid {
		c.EndTime = &endTime.Float64
	}

	doc, err := s.getDocumentLocked(ctx, c.DocumentID)
	if err == nil && doc != nil {
		c.Path = doc.Path
		c.Filename = doc.Filename
		c.MediaType = doc.MediaType
	}

	return &c, nil
}

func (s *SQLiteStore) getDocumentLocked(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// GetChunksByDocument returns all chunks belonging to documentID, ordered by
// chunk index.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, text, vector, start_time, end_time
		FROM chunks WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.hydrateChunk(ctx, rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunks returns chunks matching any of the given IDs, in no particular
// order.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, text, vector, start_time, end_time
		FROM chunks WHERE id IN (%s)`, joinPlaceholders(placeholders))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.hydrateChunk(ctx, rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}

// DeleteChunksByDocument removes all chunks for documentID.
func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// CountDependentRows returns the number of chunk, transcript, and image
// description rows referencing documentID, used to decide whether a hard
// delete can proceed without orphaning vector/lexical index entries.
func (s *SQLiteStore) CountDependentRows(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	var chunkCount, transcriptCount, imageCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&chunkCount); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts WHERE document_id = ?`, documentID).Scan(&transcriptCount); err != nil {
		return 0, fmt.Errorf("failed to count transcripts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_descriptions WHERE document_id = ?`, documentID).Scan(&imageCount); err != nil {
		return 0, fmt.Errorf("failed to count image descriptions: %w", err)
	}
	return chunkCount + transcriptCount + imageCount, nil
}

const imageDescriptionColumns = `id, document_id, description, ocr_text, metadata, vector`

func (s *SQLiteStore) hydrateImageDescription(ctx context.Context, row interface{ Scan(dest ...any) error }) (*ImageDescription, error) {
	var img ImageDescription
	var vecBytes []byte

	if err := row.Scan(&img.ID, &img.DocumentID, &img.Description, &img.OCRText, &img.Metadata, &vecBytes); err != nil {
		return nil, err
	}

	vec, err := decodeVector(vecBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vector for image description %s: %w", img.ID, err)
	}
	img.Vector = vec

	doc, err := s.getDocumentLocked(ctx, img.DocumentID)
	if err == nil && doc != nil {
		img.Path = doc.Path
		img.Filename = doc.Filename
		img.MediaType = doc.MediaType
	}

	return &img, nil
}

// SaveImageDescriptions inserts or replaces image-description rows.
func (s *SQLiteStore) SaveImageDescriptions(ctx context.Context, images []*ImageDescription) error {
	if len(images) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO image_descriptions (id, document_id, description, ocr_text, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id=excluded.document_id, description=excluded.description,
			ocr_text=excluded.ocr_text, metadata=excluded.metadata, vector=excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare image description insert: %w", err)
	}
	defer stmt.Close()

	for _, img := range images {
		vecBytes, err := encodeVector(img.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode vector for image description %s: %w", img.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, img.ID, img.DocumentID, img.Description, img.OCRText, img.Metadata, vecBytes); err != nil {
			return fmt.Errorf("failed to save image description %s: %w", img.ID, err)
		}
	}

	return tx.Commit()
}

// GetImageDescriptionsByDocument returns all image-description rows for
// documentID.
func (s *SQLiteStore) GetImageDescriptionsByDocument(ctx context.Context, documentID string) ([]*ImageDescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+imageDescriptionColumns+` FROM image_descriptions WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query image descriptions for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var images []*ImageDescription
	for rows.Next() {
		img, err := s.hydrateImageDescription(ctx, rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// GetImageDescriptions returns image-description rows matching any of the
// given IDs, in no particular order.
func (s *SQLiteStore) GetImageDescriptions(ctx context.Context, ids []string) ([]*ImageDescription, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT `+imageDescriptionColumns+` FROM image_descriptions WHERE id IN (%s)`, joinPlaceholders(placeholders))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query image descriptions: %w", err)
	}
	defer rows.Close()

	var images []*ImageDescription
	for rows.Next() {
		img, err := s.hydrateImageDescription(ctx, rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DeleteImageDescriptionsByDocument removes all image-description rows for
// documentID.
func (s *SQLiteStore) DeleteImageDescriptionsByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM image_descriptions WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete image descriptions for document %s: %w", documentID, err)
	}
	return nil
}

// SaveTranscript inserts or replaces the transcript for t.DocumentID.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, t *Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, document_id, full_text, language, duration_seconds, word_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			full_text=excluded.full_text, language=excluded.language,
			duration_seconds=excluded.duration_seconds, word_count=excluded.word_count
	`, t.ID, t.DocumentID, t.FullText, t.Language, t.DurationSeconds, t.WordCount)
	if err != nil {
		return fmt.Errorf("failed to save transcript for document %s: %w", t.DocumentID, err)
	}
	return nil
}

// GetTranscriptByDocument returns the transcript for documentID, or nil if
// none exists.
func (s *SQLiteStore) GetTranscriptByDocument(ctx context.Context, documentID string) (*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	var t Transcript
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, full_text, language, duration_seconds, word_count
		FROM transcripts WHERE document_id = ?`, documentID).
		Scan(&t.ID, &t.DocumentID, &t.FullText, &t.Language, &t.DurationSeconds, &t.WordCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript for document %s: %w", documentID, err)
	}
	return &t, nil
}

// GetState returns the value for key, or "" if unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", fmt.Errorf("metadata store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// SetState upserts key to value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database, checkpointing WAL first.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
