package pipeline

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

func buildAnexo(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Anexo")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func anexoRows() [][]string {
	return [][]string{
		{"Anexo. Precios mayoristas"},
		{"26 de diciembre de 2025"},
		{"Producto", "Bogotá", "Medellín"},
		{"", "Precio", "Precio"},
		{"VERDURAS Y HORTALIZAS"},
		{"Acelga", "2.500", "2.800"},
		{"Cebolla junca", "n.d.", "1.900"},
	}
}

func registerExcel(t *testing.T, st store.Store, objects *storage.LocalStore, data []byte) *model.DownloadEntry {
	t.Helper()
	date := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC)
	key := storage.EntryKey(date, "anexo", "anex-SIPSADiario-26dic2025.xlsx")
	require.NoError(t, objects.Put(context.Background(), key, data))

	entry := &model.DownloadEntry{
		RowName:     "Anexo 26 de diciembre",
		RowDate:     &date,
		DownloadURL: "https://www.dane.gov.co/files/sipsa/anex-SIPSADiario-26dic2025.xlsx",
		StoragePath: key,
		FileKind:    model.FileKindExcel,
	}
	created, err := st.RegisterDownload(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, created)
	return entry
}

func TestPipelineProcessesExcelEntry(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerExcel(t, st, objects, buildAnexo(t, anexoRows()))
	p := &Pipeline{Store: st, Objects: objects, Threads: 2}

	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Entries)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, int64(3), summary.Observations)
	assert.Equal(t, 0, summary.Errors)

	got, err := st.GetDownloadEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	// Second run finds nothing pending.
	again, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Entries)
}

func TestPipelineDryRunPersistsNothing(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerExcel(t, st, objects, buildAnexo(t, anexoRows()))
	p := &Pipeline{Store: st, Objects: objects, DryRun: true}

	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Observations)

	got, err := st.GetDownloadEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
}

func TestPipelineDryRunArchivePersistsNothing(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerArchive(t, st, objects, map[string][]byte{
		"Medellín, Central Mayorista-26-12-2025.pdf": []byte("not a real pdf"),
	})
	p := &Pipeline{Store: st, Objects: objects, DryRun: true}

	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Entries)
	assert.Equal(t, 1, summary.Documents)

	// Nothing lands in the database or object storage: no extracted
	// documents, no ledger rows, no per-city PDF objects, and the
	// entry stays pending.
	docs, err := st.ListExtractedDocuments(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	errs, err := st.ListProcessingErrors(context.Background(), store.ProcessingErrorFilter{})
	require.NoError(t, err)
	assert.Empty(t, errs)

	_, err = objects.Get(context.Background(), "extracted/2025/12/26/Medellín, Central Mayorista-26-12-2025.pdf")
	require.Error(t, err)

	got, err := st.GetDownloadEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
}

func TestPipelineStandalonePDFCorrupted(t *testing.T) {
	st, objects := newTestDeps(t)
	date := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC)
	key := storage.EntryKey(date, "boletin", "bolet-diario-26dic2025.pdf")
	require.NoError(t, objects.Put(context.Background(), key, []byte("not a real pdf")))

	entry := &model.DownloadEntry{
		RowName:     "Boletín diario 26 de diciembre",
		RowDate:     &date,
		DownloadURL: "https://www.dane.gov.co/files/sipsa/bolet-diario-26dic2025.pdf",
		StoragePath: key,
		FileKind:    model.FileKindPDF,
	}
	created, err := st.RegisterDownload(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, created)

	p := &Pipeline{Store: st, Objects: objects}
	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// The unreadable bulletin is ledgered as a corrupted document,
	// not as a generic processing failure.
	errs, err := st.ListProcessingErrors(context.Background(), store.ProcessingErrorFilter{
		Kind: model.ErrCorruptedPDF,
	})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, key, errs[0].SourcePath)
	assert.Equal(t, entry.ID, errs[0].DownloadEntryID)

	generic, err := st.ListProcessingErrors(context.Background(), store.ProcessingErrorFilter{
		Kind: model.ErrProcessingFailed,
	})
	require.NoError(t, err)
	assert.Empty(t, generic)
}

func TestPipelineRecordsNoPricesExtracted(t *testing.T) {
	st, objects := newTestDeps(t)
	empty := buildAnexo(t, [][]string{
		{"Anexo"},
		{"26 de diciembre de 2025"},
		{"Producto", "Bogotá"},
		{"", "Precio"},
		{"FRUTAS"},
		{"Papaya", "n.d."},
	})
	entry := registerExcel(t, st, objects, empty)
	p := &Pipeline{Store: st, Objects: objects}

	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(0), summary.Observations)

	// Entry is marked done; the ledger carries the condition.
	got, err := st.GetDownloadEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	errs, err := st.ListProcessingErrors(context.Background(), store.ProcessingErrorFilter{
		Kind: model.ErrNoPricesExtracted,
	})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, entry.ID, errs[0].DownloadEntryID)
	assert.False(t, errs[0].Resolved)
}

func TestPipelineRecordsExcelParseError(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerExcel(t, st, objects, []byte("not a workbook"))
	p := &Pipeline{Store: st, Objects: objects}

	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	errs, err := st.ListProcessingErrors(context.Background(), store.ProcessingErrorFilter{
		Kind: model.ErrExcelParse,
	})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, entry.StoragePath, errs[0].SourcePath)
}

func TestPipelineArchiveWithCorruptMembers(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerArchive(t, st, objects, map[string][]byte{
		"Medellín, Central Mayorista-26-12-2025.pdf": []byte("not a real pdf"),
	})
	p := &Pipeline{Store: st, Objects: objects}

	summary, err := p.Run(context.Background(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Documents)
	assert.Equal(t, 1, summary.Failed)

	errs, err := st.ListProcessingErrors(context.Background(), store.ProcessingErrorFilter{
		Kind: model.ErrCorruptedPDF,
	})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.NotEmpty(t, errs[0].ExtractedDocumentID)

	// The corrupted document stays pending for a later retry.
	docs, err := st.ListExtractedDocuments(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.False(t, docs[0].Processed)
}

func TestPipelineEntryByIDNotFound(t *testing.T) {
	st, objects := newTestDeps(t)
	p := &Pipeline{Store: st, Objects: objects}
	_, err := p.Run(context.Background(), ProcessOptions{EntryID: "nope"})
	require.Error(t, err)
}

func TestPipelineKindFilter(t *testing.T) {
	st, objects := newTestDeps(t)
	registerExcel(t, st, objects, buildAnexo(t, anexoRows()))
	registerArchive(t, st, objects, map[string][]byte{
		"Cali-26-12-2025.pdf": []byte("junk"),
	})
	p := &Pipeline{Store: st, Objects: objects}

	summary, err := p.Run(context.Background(), ProcessOptions{Kind: model.FileKindExcel})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Entries)
	assert.Equal(t, int64(3), summary.Observations)
}
