package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/agroamigo/sipsa-cli/internal/db"
	"github.com/agroamigo/sipsa-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Statement
// preparation is left to pgx's per-connection statement cache, which
// prepares each query text on first use.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS download_entries (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	row_name     TEXT NOT NULL,
	row_date     DATE,
	download_url TEXT NOT NULL UNIQUE,
	source_page  TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	file_kind    TEXT NOT NULL,
	processed    BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entries_processed ON download_entries(processed);
CREATE INDEX IF NOT EXISTS idx_entries_row_date ON download_entries(row_date);
CREATE INDEX IF NOT EXISTS idx_entries_file_kind ON download_entries(file_kind);

CREATE TABLE IF NOT EXISTS extracted_documents (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	download_entry_id TEXT NOT NULL REFERENCES download_entries(id),
	archive_path      TEXT NOT NULL,
	filename          TEXT NOT NULL,
	storage_path      TEXT NOT NULL UNIQUE,
	city              TEXT,
	market            TEXT,
	doc_date          DATE,
	processed         BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extracted_entry ON extracted_documents(download_entry_id);
CREATE INDEX IF NOT EXISTS idx_extracted_processed ON extracted_documents(processed);

CREATE TABLE IF NOT EXISTS price_observations (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	category              TEXT NOT NULL,
	subcategory           TEXT,
	product               TEXT NOT NULL,
	presentation          TEXT,
	units                 TEXT,
	price_date            DATE NOT NULL,
	round                 INTEGER NOT NULL DEFAULT 1,
	min_price             NUMERIC(14,2),
	max_price             NUMERIC(14,2),
	source_kind           TEXT NOT NULL,
	source_path           TEXT NOT NULL,
	download_entry_id     TEXT,
	extracted_document_id TEXT,
	city                  TEXT NOT NULL,
	market                TEXT,
	processed_at          TIMESTAMPTZ NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_observations_date ON price_observations(price_date);
CREATE INDEX IF NOT EXISTS idx_observations_city ON price_observations(city);
CREATE INDEX IF NOT EXISTS idx_observations_product ON price_observations(product);
CREATE INDEX IF NOT EXISTS idx_observations_entry ON price_observations(download_entry_id);

CREATE TABLE IF NOT EXISTS processing_errors (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	error_type            TEXT NOT NULL,
	error_message         TEXT NOT NULL,
	source_path           TEXT NOT NULL,
	source_type           TEXT NOT NULL,
	download_entry_id     TEXT,
	extracted_document_id TEXT,
	row_data              JSONB,
	retry_count           INTEGER NOT NULL DEFAULT 0,
	resolved              BOOLEAN NOT NULL DEFAULT false,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_proc_errors_type ON processing_errors(error_type);
CREATE INDEX IF NOT EXISTS idx_proc_errors_resolved ON processing_errors(resolved);
CREATE INDEX IF NOT EXISTS idx_proc_errors_entry ON processing_errors(download_entry_id);

CREATE TABLE IF NOT EXISTS download_errors (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	download_url  TEXT NOT NULL,
	source_page   TEXT NOT NULL,
	error_type    TEXT NOT NULL,
	error_code    INTEGER,
	error_message TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	resolved      BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dl_errors_type ON download_errors(error_type);
CREATE INDEX IF NOT EXISTS idx_dl_errors_resolved ON download_errors(resolved);
CREATE INDEX IF NOT EXISTS idx_dl_errors_url ON download_errors(download_url);

CREATE TABLE IF NOT EXISTS departments (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS municipalities (
	code            TEXT PRIMARY KEY,
	department_code TEXT NOT NULL REFERENCES departments(code),
	name            TEXT NOT NULL,
	department_name TEXT NOT NULL,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_municipalities_dept ON municipalities(department_code);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// RegisterDownload inserts a new download entry. The download URL is
// unique; a URL that already has an entry is left untouched and the
// call reports created=false.
func (s *PostgresStore) RegisterDownload(ctx context.Context, entry *model.DownloadEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO download_entries (id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (download_url) DO NOTHING`,
		entry.ID, entry.RowName, entry.RowDate, entry.DownloadURL, entry.SourcePage,
		entry.StoragePath, string(entry.FileKind), entry.Processed, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: register download %s", entry.DownloadURL)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetDownloadEntry(ctx context.Context, id string) (*model.DownloadEntry, error) {
	e, err := scanEntryRow(s.pool.QueryRow(ctx,
		`SELECT id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at
		 FROM download_entries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get entry %s", id)
	}
	return e, nil
}

func (s *PostgresStore) GetDownloadEntryByURL(ctx context.Context, url string) (*model.DownloadEntry, error) {
	e, err := scanEntryRow(s.pool.QueryRow(ctx,
		`SELECT id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at
		 FROM download_entries WHERE download_url = $1`, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get entry by url")
	}
	return e, nil
}

func (s *PostgresStore) ListDownloadEntries(ctx context.Context, filter EntryFilter) ([]model.DownloadEntry, error) {
	query := `SELECT id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at
	          FROM download_entries WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Processed != nil {
		query += fmt.Sprintf(` AND processed = $%d`, argIdx)
		args = append(args, *filter.Processed)
		argIdx++
	}
	if filter.FileKind != "" {
		query += fmt.Sprintf(` AND file_kind = $%d`, argIdx)
		args = append(args, string(filter.FileKind))
		argIdx++
	}
	if filter.Date != nil {
		query += fmt.Sprintf(` AND row_date = $%d`, argIdx)
		args = append(args, *filter.Date)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	defer rows.Close()

	var entries []model.DownloadEntry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list entries iterate")
}

func (s *PostgresStore) MarkEntryProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE download_entries SET processed = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark entry processed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("download_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateExtractedDocument(ctx context.Context, doc *model.ExtractedDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO extracted_documents (id, download_entry_id, archive_path, filename, storage_path, city, market, doc_date, processed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, doc.DownloadEntryID, doc.ArchivePath, doc.Filename, doc.StoragePath,
		doc.City, doc.Market, doc.DocDate, doc.Processed, now, now,
	)
	return eris.Wrapf(err, "postgres: insert extracted document %s", doc.Filename)
}

func (s *PostgresStore) GetExtractedDocumentByPath(ctx context.Context, storagePath string) (*model.ExtractedDocument, error) {
	d, err := scanDocRow(s.pool.QueryRow(ctx,
		`SELECT id, download_entry_id, archive_path, filename, storage_path, city, market, doc_date, processed, created_at, updated_at
		 FROM extracted_documents WHERE storage_path = $1`, storagePath))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get extracted document by path")
	}
	return d, nil
}

func (s *PostgresStore) ListExtractedDocuments(ctx context.Context, entryID string) ([]model.ExtractedDocument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, download_entry_id, archive_path, filename, storage_path, city, market, doc_date, processed, created_at, updated_at
		 FROM extracted_documents WHERE download_entry_id = $1 ORDER BY filename`, entryID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extracted documents")
	}
	defer rows.Close()

	var docs []model.ExtractedDocument
	for rows.Next() {
		d, err := scanDocRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan extracted document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list extracted documents iterate")
}

func (s *PostgresStore) MarkDocumentProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extracted_documents SET processed = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark document processed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("extracted_document not found: %s", id)
	}
	return nil
}

// observationColumns is the COPY column list for price_observations.
var observationColumns = []string{
	"id", "category", "subcategory", "product", "presentation", "units",
	"price_date", "round", "min_price", "max_price", "source_kind",
	"source_path", "download_entry_id", "extracted_document_id",
	"city", "market", "processed_at",
}

// InsertPriceObservations bulk-loads observations via the COPY protocol.
func (s *PostgresStore) InsertPriceObservations(ctx context.Context, obs []model.PriceObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		id := o.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, o.Category, nullStr(o.Subcategory), o.Product,
			nullStr(o.Presentation), nullStr(o.Units), o.PriceDate, o.Round,
			o.MinPrice, o.MaxPrice, string(o.SourceKind), o.SourcePath,
			nullStr(o.DownloadEntryID), nullStr(o.ExtractedDocumentID),
			o.City, nullStr(o.Market), o.ProcessedAt,
		})
	}
	return db.CopyInto(ctx, s.pool, "price_observations", observationColumns, rows)
}

func (s *PostgresStore) RecordProcessingError(ctx context.Context, perr *model.ProcessingError) error {
	if perr.ID == "" {
		perr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	perr.CreatedAt = now
	perr.UpdatedAt = now

	var rowJSON []byte
	if perr.RowData != nil {
		var err error
		rowJSON, err = json.Marshal(perr.RowData)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal row data")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO processing_errors (id, error_type, error_message, source_path, source_type, download_entry_id, extracted_document_id, row_data, retry_count, resolved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		perr.ID, string(perr.Kind), perr.Message, perr.SourcePath, string(perr.SourceKind),
		nullStr(perr.DownloadEntryID), nullStr(perr.ExtractedDocumentID), rowJSON,
		perr.RetryCount, perr.Resolved, now, now,
	)
	return eris.Wrap(err, "postgres: record processing error")
}

func (s *PostgresStore) ListProcessingErrors(ctx context.Context, filter ProcessingErrorFilter) ([]model.ProcessingError, error) {
	query := `SELECT id, error_type, error_message, source_path, source_type, download_entry_id, extracted_document_id, row_data, retry_count, resolved, created_at, updated_at
	          FROM processing_errors WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Resolved != nil {
		query += fmt.Sprintf(` AND resolved = $%d`, argIdx)
		args = append(args, *filter.Resolved)
		argIdx++
	}
	if filter.EntryID != "" {
		query += fmt.Sprintf(` AND download_entry_id = $%d`, argIdx)
		args = append(args, filter.EntryID)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list processing errors")
	}
	defer rows.Close()

	var out []model.ProcessingError
	for rows.Next() {
		var e model.ProcessingError
		var entryID, docID *string
		var rowJSON []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.Message, &e.SourcePath, &e.SourceKind,
			&entryID, &docID, &rowJSON, &e.RetryCount, &e.Resolved,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan processing error")
		}
		if entryID != nil {
			e.DownloadEntryID = *entryID
		}
		if docID != nil {
			e.ExtractedDocumentID = *docID
		}
		if len(rowJSON) > 0 {
			e.RowData = &model.RowPayload{}
			if err := json.Unmarshal(rowJSON, e.RowData); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal row data")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list processing errors iterate")
}

func (s *PostgresStore) ResolveProcessingError(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_errors SET resolved = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve processing error %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing_error not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) IncrementProcessingRetry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_errors SET retry_count = retry_count + 1, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment processing retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing_error not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RecordDownloadError(ctx context.Context, derr *model.DownloadError) error {
	if derr.ID == "" {
		derr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	derr.CreatedAt = now
	derr.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO download_errors (id, download_url, source_page, error_type, error_code, error_message, file_type, retry_count, resolved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		derr.ID, derr.DownloadURL, derr.SourcePage, string(derr.Kind), derr.StatusCode,
		derr.Message, string(derr.FileKind), derr.RetryCount, derr.Resolved, now, now,
	)
	return eris.Wrap(err, "postgres: record download error")
}

func (s *PostgresStore) ListDownloadErrors(ctx context.Context, filter DownloadErrorFilter) ([]model.DownloadError, error) {
	query := `SELECT id, download_url, source_page, error_type, error_code, error_message, file_type, retry_count, resolved, created_at, updated_at
	          FROM download_errors WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Resolved != nil {
		query += fmt.Sprintf(` AND resolved = $%d`, argIdx)
		args = append(args, *filter.Resolved)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list download errors")
	}
	defer rows.Close()

	var out []model.DownloadError
	for rows.Next() {
		var e model.DownloadError
		if err := rows.Scan(&e.ID, &e.DownloadURL, &e.SourcePage, &e.Kind, &e.StatusCode,
			&e.Message, &e.FileKind, &e.RetryCount, &e.Resolved,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan download error")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list download errors iterate")
}

func (s *PostgresStore) ResolveDownloadError(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE download_errors SET resolved = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve download error %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("download_error not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) IncrementDownloadRetry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE download_errors SET retry_count = retry_count + 1, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment download retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("download_error not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpsertDepartments(ctx context.Context, deps []model.Department) error {
	for _, d := range deps {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO departments (code, name) VALUES ($1, $2)
			 ON CONFLICT (code) DO UPDATE SET name = $2`,
			d.Code, d.Name,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert department %s", d.Code)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertMunicipalities(ctx context.Context, munis []model.Municipality) (int64, error) {
	var n int64
	for _, m := range munis {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO municipalities (code, department_code, name, department_name, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (code) DO UPDATE SET
			   department_code = $2, name = $3, department_name = $4, latitude = $5, longitude = $6`,
			m.Code, m.DepartmentCode, m.Name, m.DepartmentName, m.Latitude, m.Longitude,
		)
		if err != nil {
			return n, eris.Wrapf(err, "postgres: upsert municipality %s", m.Code)
		}
		n += tag.RowsAffected()
	}
	return n, nil
}

func (s *PostgresStore) ListMunicipalities(ctx context.Context) ([]model.Municipality, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, department_code, name, department_name, latitude, longitude
		 FROM municipalities ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list municipalities")
	}
	defer rows.Close()

	var out []model.Municipality
	for rows.Next() {
		var m model.Municipality
		if err := rows.Scan(&m.Code, &m.DepartmentCode, &m.Name, &m.DepartmentName,
			&m.Latitude, &m.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan municipality")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list municipalities iterate")
}

// helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntryRow(row rowScanner) (*model.DownloadEntry, error) {
	var e model.DownloadEntry
	var kind string
	if err := row.Scan(&e.ID, &e.RowName, &e.RowDate, &e.DownloadURL, &e.SourcePage,
		&e.StoragePath, &kind, &e.Processed, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.FileKind = model.FileKind(kind)
	return &e, nil
}

func scanDocRow(row rowScanner) (*model.ExtractedDocument, error) {
	var d model.ExtractedDocument
	var city, market *string
	if err := row.Scan(&d.ID, &d.DownloadEntryID, &d.ArchivePath, &d.Filename, &d.StoragePath,
		&city, &market, &d.DocDate, &d.Processed, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if city != nil {
		d.City = *city
	}
	if market != nil {
		d.Market = *market
	}
	return &d, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
