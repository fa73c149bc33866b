package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sipsa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testEntry(url string) *model.DownloadEntry {
	date := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)
	return &model.DownloadEntry{
		RowName:     "Anexo boletín diario",
		RowDate:     &date,
		DownloadURL: url,
		SourcePage:  "https://www.dane.gov.co/boletin",
		StoragePath: "2025/12/24/anexo/anexo_24dic2025.xlsx",
		FileKind:    model.FileKindExcel,
	}
}

func TestSQLiteRegisterDownload(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := testEntry("https://www.dane.gov.co/files/anexo_24dic2025.xlsx")
	created, err := s.RegisterDownload(ctx, entry)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, entry.ID)

	got, err := s.GetDownloadEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.DownloadURL, got.DownloadURL)
	assert.Equal(t, model.FileKindExcel, got.FileKind)
	assert.False(t, got.Processed)
	require.NotNil(t, got.RowDate)
	assert.Equal(t, 2025, got.RowDate.Year())
}

func TestSQLiteRegisterDownload_DuplicateURL(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	url := "https://www.dane.gov.co/files/anexo_24dic2025.xlsx"
	created, err := s.RegisterDownload(ctx, testEntry(url))
	require.NoError(t, err)
	assert.True(t, created)

	// Same URL again: silent skip, nothing inserted.
	dup := testEntry(url)
	created, err = s.RegisterDownload(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	entries, err := s.ListDownloadEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteGetDownloadEntry_Missing(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetDownloadEntry(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetDownloadEntryByURL(context.Background(), "https://nowhere.invalid/x.pdf")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteListDownloadEntries_Filters(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	pdf := testEntry("https://www.dane.gov.co/files/bol_24dic2025.pdf")
	pdf.FileKind = model.FileKindPDF
	_, err := s.RegisterDownload(ctx, pdf)
	require.NoError(t, err)

	xlsx := testEntry("https://www.dane.gov.co/files/anexo_24dic2025.xlsx")
	_, err = s.RegisterDownload(ctx, xlsx)
	require.NoError(t, err)
	require.NoError(t, s.MarkEntryProcessed(ctx, xlsx.ID))

	unprocessed := false
	entries, err := s.ListDownloadEntries(ctx, EntryFilter{Processed: &unprocessed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, pdf.DownloadURL, entries[0].DownloadURL)

	entries, err = s.ListDownloadEntries(ctx, EntryFilter{FileKind: model.FileKindExcel})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Processed)
}

func TestSQLiteMarkEntryProcessed_Missing(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.MarkEntryProcessed(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_entry not found")
}

func TestSQLiteExtractedDocuments(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	zipEntry := testEntry("https://www.dane.gov.co/files/ciudades_24dic2025.zip")
	zipEntry.FileKind = model.FileKindZIP
	_, err := s.RegisterDownload(ctx, zipEntry)
	require.NoError(t, err)

	docDate := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)
	doc := &model.ExtractedDocument{
		DownloadEntryID: zipEntry.ID,
		ArchivePath:     zipEntry.StoragePath,
		Filename:        "Medellín, Central Mayorista de Antioquia-24-12-2025.pdf",
		StoragePath:     "extracted/2025/12/24/Medellín, Central Mayorista de Antioquia-24-12-2025.pdf",
		City:            "Medellín",
		Market:          "Central Mayorista de Antioquia",
		DocDate:         &docDate,
	}
	require.NoError(t, s.CreateExtractedDocument(ctx, doc))
	assert.NotEmpty(t, doc.ID)

	got, err := s.GetExtractedDocumentByPath(ctx, doc.StoragePath)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Medellín", got.City)
	assert.Equal(t, "Central Mayorista de Antioquia", got.Market)
	assert.False(t, got.Processed)

	docs, err := s.ListExtractedDocuments(ctx, zipEntry.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, s.MarkDocumentProcessed(ctx, doc.ID))
	got, err = s.GetExtractedDocumentByPath(ctx, doc.StoragePath)
	require.NoError(t, err)
	assert.True(t, got.Processed)
}

func TestSQLiteGetExtractedDocumentByPath_Missing(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetExtractedDocumentByPath(context.Background(), "extracted/nope.pdf")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteInsertPriceObservations(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	minP, maxP := 1200.0, 1500.50
	obs := []model.PriceObservation{
		{
			Category:    "VERDURAS Y HORTALIZAS",
			Subcategory: "Tomates",
			Product:     "Tomate chonto",
			Units:       "$/kg",
			PriceDate:   time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC),
			Round:       1,
			MinPrice:    &minP,
			MaxPrice:    &maxP,
			SourceKind:  model.FileKindExcel,
			SourcePath:  "2025/12/24/anexo/anexo.xlsx",
			City:        "Bogotá, D.C.",
			Market:      "Corabastos",
			ProcessedAt: time.Now().UTC(),
		},
		{
			Category:    "FRUTAS",
			Product:     "Mora de Castilla",
			PriceDate:   time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC),
			Round:       2,
			SourceKind:  model.FileKindPDF,
			SourcePath:  "2025/12/24/boletin/bol.pdf",
			City:        "Medellín",
			ProcessedAt: time.Now().UTC(),
		},
	}

	n, err := s.InsertPriceObservations(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.InsertPriceObservations(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteProcessingErrorLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	perr := &model.ProcessingError{
		Kind:       model.ErrMissingDate,
		Message:    "no parseable date in document",
		SourcePath: "2025/12/24/anexo/anexo.xlsx",
		SourceKind: model.FileKindExcel,
		RowData: &model.RowPayload{
			SourceKind: model.FileKindExcel,
			Product:    "Tomate chonto",
			Cells:      []string{"Tomate chonto", "1.200", "1.500"},
		},
	}
	require.NoError(t, s.RecordProcessingError(ctx, perr))

	unresolved := false
	errs, err := s.ListProcessingErrors(ctx, ProcessingErrorFilter{Resolved: &unresolved})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrMissingDate, errs[0].Kind)
	require.NotNil(t, errs[0].RowData)
	assert.Equal(t, "Tomate chonto", errs[0].RowData.Product)
	assert.Equal(t, []string{"Tomate chonto", "1.200", "1.500"}, errs[0].RowData.Cells)

	require.NoError(t, s.IncrementProcessingRetry(ctx, perr.ID))
	errs, err = s.ListProcessingErrors(ctx, ProcessingErrorFilter{Kind: model.ErrMissingDate})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].RetryCount)

	require.NoError(t, s.ResolveProcessingError(ctx, perr.ID))
	errs, err = s.ListProcessingErrors(ctx, ProcessingErrorFilter{Resolved: &unresolved})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestSQLiteDownloadErrorLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	status := 503
	derr := &model.DownloadError{
		DownloadURL: "https://www.dane.gov.co/files/bol.pdf",
		SourcePage:  "https://www.dane.gov.co/boletin",
		Kind:        model.ErrHTTP,
		StatusCode:  &status,
		Message:     "unexpected status 503",
		FileKind:    model.FileKindPDF,
	}
	require.NoError(t, s.RecordDownloadError(ctx, derr))

	errs, err := s.ListDownloadErrors(ctx, DownloadErrorFilter{Kind: model.ErrHTTP})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].StatusCode)
	assert.Equal(t, 503, *errs[0].StatusCode)

	require.NoError(t, s.IncrementDownloadRetry(ctx, derr.ID))
	require.NoError(t, s.ResolveDownloadError(ctx, derr.ID))

	unresolved := false
	errs, err = s.ListDownloadErrors(ctx, DownloadErrorFilter{Resolved: &unresolved})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestSQLiteGeoUpserts(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDepartments(ctx, []model.Department{
		{Code: "05", Name: "Antioquia"},
		{Code: "11", Name: "Bogotá, D.C."},
	}))

	lat, lon := 6.25184, -75.56359
	n, err := s.UpsertMunicipalities(ctx, []model.Municipality{
		{Code: "05001", DepartmentCode: "05", Name: "Medellín", DepartmentName: "Antioquia", Latitude: &lat, Longitude: &lon},
		{Code: "11001", DepartmentCode: "11", Name: "Bogotá, D.C.", DepartmentName: "Bogotá, D.C."},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Upsert with updated coordinates replaces in place.
	lat2 := 6.24
	_, err = s.UpsertMunicipalities(ctx, []model.Municipality{
		{Code: "05001", DepartmentCode: "05", Name: "Medellín", DepartmentName: "Antioquia", Latitude: &lat2, Longitude: &lon},
	})
	require.NoError(t, err)

	munis, err := s.ListMunicipalities(ctx)
	require.NoError(t, err)
	require.Len(t, munis, 2)
	assert.Equal(t, "05001", munis[0].Code)
	require.NotNil(t, munis[0].Latitude)
	assert.InDelta(t, 6.24, *munis[0].Latitude, 0.0001)
	assert.Nil(t, munis[1].Latitude)
}
