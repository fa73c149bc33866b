package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryKey(t *testing.T) {
	date := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)
	key := EntryKey(date, "anexo", "anexo_24dic2025.xlsx")
	assert.Equal(t, "2025/12/24/anexo/anexo_24dic2025.xlsx", key)

	// Single-digit month and day are zero-padded.
	date = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	key = EntryKey(date, "boletin", "bol.pdf")
	assert.Equal(t, "2025/03/05/boletin/bol.pdf", key)
}

func TestExtractedKey(t *testing.T) {
	date := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)
	key := ExtractedKey(date, "Medellín, Central Mayorista de Antioquia-24-12-2025.pdf")
	assert.Equal(t, "extracted/2025/12/24/Medellín, Central Mayorista de Antioquia-24-12-2025.pdf", key)
}

func TestLocalStorePutGetExists(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "2025/12/24/anexo/anexo.xlsx"
	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, key, []byte("workbook bytes")))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("workbook bytes"), data)
}

func TestLocalStoreOverwrite(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "2025/12/24/boletin/bol.pdf"
	require.NoError(t, s.Put(ctx, key, []byte("v1")))
	require.NoError(t, s.Put(ctx, key, []byte("v2")))

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	err = s.Put(ctx, "../escape.txt", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")

	_, err = s.Get(ctx, "/etc/passwd")
	require.Error(t, err)
}

func TestLocalStoreGetMissing(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "2025/12/24/anexo/nope.xlsx")
	assert.Error(t, err)
}
