package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

func newTestDeps(t *testing.T) (store.Store, *storage.LocalStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	objects, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return st, objects
}

func buildArchive(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func registerArchive(t *testing.T, st store.Store, objects *storage.LocalStore, members map[string][]byte) *model.DownloadEntry {
	t.Helper()
	archive := buildArchive(t, members)
	date := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC)
	key := storage.EntryKey(date, "informes_ciudades", "regionales-26dic2025.zip")
	require.NoError(t, objects.Put(context.Background(), key, archive))

	entry := &model.DownloadEntry{
		RowName:     "Informes por ciudades 26 de diciembre",
		RowDate:     &date,
		DownloadURL: "https://www.dane.gov.co/files/sipsa/regionales-26dic2025.zip",
		SourcePage:  "https://www.dane.gov.co/main",
		StoragePath: key,
		FileKind:    model.FileKindZIP,
	}
	created, err := st.RegisterDownload(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, created)
	return entry
}

func TestExpanderCreatesDocuments(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerArchive(t, st, objects, map[string][]byte{
		"Medellín, Central Mayorista-26-12-2025.pdf": []byte("pdf-a"),
		"Pereira-26-12-2025.pdf":                     []byte("pdf-b"),
		"notas.txt":                                  []byte("ignored"),
	})

	exp := &Expander{Store: st, Objects: objects}
	expansion, err := exp.Expand(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, 0, expansion.Skipped)
	require.Len(t, expansion.Docs, 2)

	byCity := map[string]model.ExtractedDocument{}
	for _, d := range expansion.Docs {
		byCity[d.City] = d
		assert.NotEmpty(t, d.ID)
		assert.Equal(t, entry.ID, d.DownloadEntryID)
		assert.Equal(t, entry.StoragePath, d.ArchivePath)
		require.NotNil(t, d.DocDate)
		assert.Equal(t, *entry.RowDate, *d.DocDate)

		stored, err := objects.Get(context.Background(), d.StoragePath)
		require.NoError(t, err)
		assert.NotEmpty(t, stored)
	}

	med := byCity["Medellín"]
	assert.Equal(t, "Central Mayorista", med.Market)
	assert.Equal(t, "extracted/2025/12/26/Medellín, Central Mayorista-26-12-2025.pdf", med.StoragePath)
	assert.Empty(t, byCity["Pereira"].Market)
}

func TestExpanderReentrant(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerArchive(t, st, objects, map[string][]byte{
		"Medellín, Central Mayorista-26-12-2025.pdf": []byte("pdf-a"),
		"Pereira-26-12-2025.pdf":                     []byte("pdf-b"),
	})

	exp := &Expander{Store: st, Objects: objects}
	expansion, err := exp.Expand(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, expansion.Docs, 2)

	// Mark one done; the second expansion hands back only the other,
	// under its original ID.
	docs := expansion.Docs
	require.NoError(t, st.MarkDocumentProcessed(context.Background(), docs[0].ID))

	again, err := exp.Expand(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped)
	require.Len(t, again.Docs, 1)
	assert.Equal(t, docs[1].ID, again.Docs[0].ID)
}

func TestExpanderDryRunWritesNothing(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerArchive(t, st, objects, map[string][]byte{
		"Medellín, Central Mayorista-26-12-2025.pdf": []byte("pdf-a"),
		"Pereira-26-12-2025.pdf":                     []byte("pdf-b"),
	})

	exp := &Expander{Store: st, Objects: objects, DryRun: true}
	expansion, err := exp.Expand(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, expansion.Docs, 2)

	for _, d := range expansion.Docs {
		assert.Empty(t, d.ID)
		assert.Equal(t, []byte(nil), nilIfMissing(objects, d.StoragePath))
		require.Contains(t, expansion.Payloads, d.StoragePath)
		assert.NotEmpty(t, expansion.Payloads[d.StoragePath])
	}

	docs, err := st.ListExtractedDocuments(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func nilIfMissing(objects *storage.LocalStore, key string) []byte {
	data, err := objects.Get(context.Background(), key)
	if err != nil {
		return nil
	}
	return data
}

func TestExpanderFallsBackToEntryDate(t *testing.T) {
	st, objects := newTestDeps(t)
	entry := registerArchive(t, st, objects, map[string][]byte{
		"Cali.pdf": []byte("pdf"),
	})

	exp := &Expander{Store: st, Objects: objects}
	expansion, err := exp.Expand(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, expansion.Docs, 1)
	doc := expansion.Docs[0]
	require.NotNil(t, doc.DocDate)
	assert.Equal(t, *entry.RowDate, *doc.DocDate)
	assert.Equal(t, "extracted/2025/12/26/Cali.pdf", doc.StoragePath)
}

func TestExpanderMissingArchive(t *testing.T) {
	st, objects := newTestDeps(t)
	date := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC)
	entry := &model.DownloadEntry{
		RowDate:     &date,
		DownloadURL: "https://x/regionales.zip",
		StoragePath: "2025/12/26/informes_ciudades/missing.zip",
		FileKind:    model.FileKindZIP,
	}
	_, err := st.RegisterDownload(context.Background(), entry)
	require.NoError(t, err)

	exp := &Expander{Store: st, Objects: objects}
	_, err = exp.Expand(context.Background(), entry)
	require.Error(t, err)
}
