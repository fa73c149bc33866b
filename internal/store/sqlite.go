package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and single-machine runs; production uses PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS download_entries (
	id           TEXT PRIMARY KEY,
	row_name     TEXT NOT NULL,
	row_date     DATETIME,
	download_url TEXT NOT NULL UNIQUE,
	source_page  TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	file_kind    TEXT NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entries_processed ON download_entries(processed);
CREATE INDEX IF NOT EXISTS idx_entries_row_date ON download_entries(row_date);

CREATE TABLE IF NOT EXISTS extracted_documents (
	id                TEXT PRIMARY KEY,
	download_entry_id TEXT NOT NULL REFERENCES download_entries(id),
	archive_path      TEXT NOT NULL,
	filename          TEXT NOT NULL,
	storage_path      TEXT NOT NULL UNIQUE,
	city              TEXT,
	market            TEXT,
	doc_date          DATETIME,
	processed         INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extracted_entry ON extracted_documents(download_entry_id);

CREATE TABLE IF NOT EXISTS price_observations (
	id                    TEXT PRIMARY KEY,
	category              TEXT NOT NULL,
	subcategory           TEXT,
	product               TEXT NOT NULL,
	presentation          TEXT,
	units                 TEXT,
	price_date            DATETIME NOT NULL,
	round                 INTEGER NOT NULL DEFAULT 1,
	min_price             REAL,
	max_price             REAL,
	source_kind           TEXT NOT NULL,
	source_path           TEXT NOT NULL,
	download_entry_id     TEXT,
	extracted_document_id TEXT,
	city                  TEXT NOT NULL,
	market                TEXT,
	processed_at          DATETIME NOT NULL,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_observations_date ON price_observations(price_date);
CREATE INDEX IF NOT EXISTS idx_observations_city ON price_observations(city);

CREATE TABLE IF NOT EXISTS processing_errors (
	id                    TEXT PRIMARY KEY,
	error_type            TEXT NOT NULL,
	error_message         TEXT NOT NULL,
	source_path           TEXT NOT NULL,
	source_type           TEXT NOT NULL,
	download_entry_id     TEXT,
	extracted_document_id TEXT,
	row_data              TEXT,
	retry_count           INTEGER NOT NULL DEFAULT 0,
	resolved              INTEGER NOT NULL DEFAULT 0,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_proc_errors_type ON processing_errors(error_type);
CREATE INDEX IF NOT EXISTS idx_proc_errors_resolved ON processing_errors(resolved);

CREATE TABLE IF NOT EXISTS download_errors (
	id            TEXT PRIMARY KEY,
	download_url  TEXT NOT NULL,
	source_page   TEXT NOT NULL,
	error_type    TEXT NOT NULL,
	error_code    INTEGER,
	error_message TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	resolved      INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dl_errors_type ON download_errors(error_type);
CREATE INDEX IF NOT EXISTS idx_dl_errors_resolved ON download_errors(resolved);

CREATE TABLE IF NOT EXISTS departments (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS municipalities (
	code            TEXT PRIMARY KEY,
	department_code TEXT NOT NULL REFERENCES departments(code),
	name            TEXT NOT NULL,
	department_name TEXT NOT NULL,
	latitude        REAL,
	longitude       REAL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RegisterDownload(ctx context.Context, entry *model.DownloadEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO download_entries (id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (download_url) DO NOTHING`,
		entry.ID, entry.RowName, entry.RowDate, entry.DownloadURL, entry.SourcePage,
		entry.StoragePath, string(entry.FileKind), entry.Processed, now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: register download %s", entry.DownloadURL)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetDownloadEntry(ctx context.Context, id string) (*model.DownloadEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at
		 FROM download_entries WHERE id = ?`, id)
	e, err := scanEntryRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get entry %s", id)
	}
	return e, nil
}

func (s *SQLiteStore) GetDownloadEntryByURL(ctx context.Context, url string) (*model.DownloadEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at
		 FROM download_entries WHERE download_url = ?`, url)
	e, err := scanEntryRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get entry by url")
	}
	return e, nil
}

func (s *SQLiteStore) ListDownloadEntries(ctx context.Context, filter EntryFilter) ([]model.DownloadEntry, error) {
	query := `SELECT id, row_name, row_date, download_url, source_page, storage_path, file_kind, processed, created_at, updated_at
	          FROM download_entries WHERE 1=1`
	var args []any

	if filter.Processed != nil {
		query += ` AND processed = ?`
		args = append(args, *filter.Processed)
	}
	if filter.FileKind != "" {
		query += ` AND file_kind = ?`
		args = append(args, string(filter.FileKind))
	}
	if filter.Date != nil {
		query += ` AND date(row_date) = date(?)`
		args = append(args, *filter.Date)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close()

	var entries []model.DownloadEntry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list entries iterate")
}

func (s *SQLiteStore) MarkEntryProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE download_entries SET processed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark entry processed %s", id)
	}
	return checkRowsAffected(res, "download_entry", id)
}

func (s *SQLiteStore) CreateExtractedDocument(ctx context.Context, doc *model.ExtractedDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extracted_documents (id, download_entry_id, archive_path, filename, storage_path, city, market, doc_date, processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.DownloadEntryID, doc.ArchivePath, doc.Filename, doc.StoragePath,
		doc.City, doc.Market, doc.DocDate, doc.Processed, now, now,
	)
	return eris.Wrapf(err, "sqlite: insert extracted document %s", doc.Filename)
}

func (s *SQLiteStore) GetExtractedDocumentByPath(ctx context.Context, storagePath string) (*model.ExtractedDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, download_entry_id, archive_path, filename, storage_path, city, market, doc_date, processed, created_at, updated_at
		 FROM extracted_documents WHERE storage_path = ?`, storagePath)
	d, err := scanDocRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get extracted document by path")
	}
	return d, nil
}

func (s *SQLiteStore) ListExtractedDocuments(ctx context.Context, entryID string) ([]model.ExtractedDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, download_entry_id, archive_path, filename, storage_path, city, market, doc_date, processed, created_at, updated_at
		 FROM extracted_documents WHERE download_entry_id = ? ORDER BY filename`, entryID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extracted documents")
	}
	defer rows.Close()

	var docs []model.ExtractedDocument
	for rows.Next() {
		d, err := scanDocRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extracted document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list extracted documents iterate")
}

func (s *SQLiteStore) MarkDocumentProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extracted_documents SET processed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark document processed %s", id)
	}
	return checkRowsAffected(res, "extracted_document", id)
}

func (s *SQLiteStore) InsertPriceObservations(ctx context.Context, obs []model.PriceObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin observations tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_observations (id, category, subcategory, product, presentation, units, price_date, round, min_price, max_price, source_kind, source_path, download_entry_id, extracted_document_id, city, market, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare observation insert")
	}
	defer stmt.Close()

	var n int64
	for _, o := range obs {
		id := o.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			id, o.Category, nullStr(o.Subcategory), o.Product,
			nullStr(o.Presentation), nullStr(o.Units), o.PriceDate, o.Round,
			o.MinPrice, o.MaxPrice, string(o.SourceKind), o.SourcePath,
			nullStr(o.DownloadEntryID), nullStr(o.ExtractedDocumentID),
			o.City, nullStr(o.Market), o.ProcessedAt,
		); err != nil {
			return n, eris.Wrap(err, "sqlite: insert observation")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit observations")
	}
	return n, nil
}

func (s *SQLiteStore) RecordProcessingError(ctx context.Context, perr *model.ProcessingError) error {
	if perr.ID == "" {
		perr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	perr.CreatedAt = now
	perr.UpdatedAt = now

	var rowJSON *string
	if perr.RowData != nil {
		b, err := json.Marshal(perr.RowData)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal row data")
		}
		str := string(b)
		rowJSON = &str
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_errors (id, error_type, error_message, source_path, source_type, download_entry_id, extracted_document_id, row_data, retry_count, resolved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		perr.ID, string(perr.Kind), perr.Message, perr.SourcePath, string(perr.SourceKind),
		nullStr(perr.DownloadEntryID), nullStr(perr.ExtractedDocumentID), rowJSON,
		perr.RetryCount, perr.Resolved, now, now,
	)
	return eris.Wrap(err, "sqlite: record processing error")
}

func (s *SQLiteStore) ListProcessingErrors(ctx context.Context, filter ProcessingErrorFilter) ([]model.ProcessingError, error) {
	query := `SELECT id, error_type, error_message, source_path, source_type, download_entry_id, extracted_document_id, row_data, retry_count, resolved, created_at, updated_at
	          FROM processing_errors WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND error_type = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Resolved != nil {
		query += ` AND resolved = ?`
		args = append(args, *filter.Resolved)
	}
	if filter.EntryID != "" {
		query += ` AND download_entry_id = ?`
		args = append(args, filter.EntryID)
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list processing errors")
	}
	defer rows.Close()

	var out []model.ProcessingError
	for rows.Next() {
		var e model.ProcessingError
		var entryID, docID, rowJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Message, &e.SourcePath, &e.SourceKind,
			&entryID, &docID, &rowJSON, &e.RetryCount, &e.Resolved,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan processing error")
		}
		e.DownloadEntryID = entryID.String
		e.ExtractedDocumentID = docID.String
		if rowJSON.Valid && rowJSON.String != "" {
			e.RowData = &model.RowPayload{}
			if err := json.Unmarshal([]byte(rowJSON.String), e.RowData); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal row data")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list processing errors iterate")
}

func (s *SQLiteStore) ResolveProcessingError(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_errors SET resolved = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve processing error %s", id)
	}
	return checkRowsAffected(res, "processing_error", id)
}

func (s *SQLiteStore) IncrementProcessingRetry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_errors SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment processing retry %s", id)
	}
	return checkRowsAffected(res, "processing_error", id)
}

func (s *SQLiteStore) RecordDownloadError(ctx context.Context, derr *model.DownloadError) error {
	if derr.ID == "" {
		derr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	derr.CreatedAt = now
	derr.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO download_errors (id, download_url, source_page, error_type, error_code, error_message, file_type, retry_count, resolved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		derr.ID, derr.DownloadURL, derr.SourcePage, string(derr.Kind), derr.StatusCode,
		derr.Message, string(derr.FileKind), derr.RetryCount, derr.Resolved, now, now,
	)
	return eris.Wrap(err, "sqlite: record download error")
}

func (s *SQLiteStore) ListDownloadErrors(ctx context.Context, filter DownloadErrorFilter) ([]model.DownloadError, error) {
	query := `SELECT id, download_url, source_page, error_type, error_code, error_message, file_type, retry_count, resolved, created_at, updated_at
	          FROM download_errors WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND error_type = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Resolved != nil {
		query += ` AND resolved = ?`
		args = append(args, *filter.Resolved)
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list download errors")
	}
	defer rows.Close()

	var out []model.DownloadError
	for rows.Next() {
		var e model.DownloadError
		if err := rows.Scan(&e.ID, &e.DownloadURL, &e.SourcePage, &e.Kind, &e.StatusCode,
			&e.Message, &e.FileKind, &e.RetryCount, &e.Resolved,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan download error")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list download errors iterate")
}

func (s *SQLiteStore) ResolveDownloadError(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE download_errors SET resolved = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve download error %s", id)
	}
	return checkRowsAffected(res, "download_error", id)
}

func (s *SQLiteStore) IncrementDownloadRetry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE download_errors SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment download retry %s", id)
	}
	return checkRowsAffected(res, "download_error", id)
}

func (s *SQLiteStore) UpsertDepartments(ctx context.Context, deps []model.Department) error {
	for _, d := range deps {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO departments (code, name) VALUES (?, ?)
			 ON CONFLICT (code) DO UPDATE SET name = excluded.name`,
			d.Code, d.Name,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert department %s", d.Code)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertMunicipalities(ctx context.Context, munis []model.Municipality) (int64, error) {
	var n int64
	for _, m := range munis {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO municipalities (code, department_code, name, department_name, latitude, longitude)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (code) DO UPDATE SET
			   department_code = excluded.department_code, name = excluded.name,
			   department_name = excluded.department_name,
			   latitude = excluded.latitude, longitude = excluded.longitude`,
			m.Code, m.DepartmentCode, m.Name, m.DepartmentName, m.Latitude, m.Longitude,
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert municipality %s", m.Code)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return n, eris.Wrap(err, "sqlite: rows affected")
		}
		n += affected
	}
	return n, nil
}

func (s *SQLiteStore) ListMunicipalities(ctx context.Context) ([]model.Municipality, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, department_code, name, department_name, latitude, longitude
		 FROM municipalities ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list municipalities")
	}
	defer rows.Close()

	var out []model.Municipality
	for rows.Next() {
		var m model.Municipality
		if err := rows.Scan(&m.Code, &m.DepartmentCode, &m.Name, &m.DepartmentName,
			&m.Latitude, &m.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan municipality")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list municipalities iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
