package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpanishDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"plain", "26 de diciembre de 2025", time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), true},
		{"with day name", "viernes, 26 de diciembre de 2025", time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), true},
		{"embedded", "Bogotá, D.C., 3 de enero de 2026 - Boletín diario", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), true},
		{"uppercase month", "15 DE MARZO DE 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"unknown month falls back to january", "10 de brumario de 2025", time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), true},
		{"no date", "precios mayoristas", time.Time{}, false},
		{"day out of range", "45 de mayo de 2025", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSpanishDate(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"2.500", f(2500)},
		{"1.250,50", f(1250.50)},
		{"900", f(900)},
		{"3,75", f(3.75)},
		{"  4.000 ", f(4000)},
		{"", nil},
		{"n.d.", nil},
		{"N.D.", nil},
		{"0", nil},
		{"-120", nil},
		{"abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParsePrice(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.001)
		})
	}
}

func f(v float64) *float64 { return &v }

func TestExtractCityMarket(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		city   string
		market string
	}{
		{"region and market", "Medellín (Antioquia), Central Mayorista de Antioquia", "Medellín", "Central Mayorista de Antioquia"},
		{"region only", "Cali (Valle del Cauca)", "Cali", ""},
		{"capital district", "Bogotá, D.C., Corabastos", "Bogotá, D.C.", "Corabastos"},
		{"plain pair", "Ibagué, Plaza La 21", "Ibagué", "Plaza La 21"},
		{"city only", "Pereira", "Pereira", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			city, market := ExtractCityMarket(tt.in)
			assert.Equal(t, tt.city, city)
			assert.Equal(t, tt.market, market)
		})
	}
}

func TestRowHasPriceData(t *testing.T) {
	assert.True(t, RowHasPriceData([]string{"Papa", "Bulto", "50 Kg", "120.000", "130.000"}, 3))
	assert.True(t, RowHasPriceData([]string{"Papa", "Bulto", "50 Kg", "", "130.000"}, 3))
	assert.False(t, RowHasPriceData([]string{"TUBÉRCULOS"}, 3))
	assert.False(t, RowHasPriceData([]string{"Papa", "Bulto", "50 Kg", "n.d.", "0"}, 3))
	assert.False(t, RowHasPriceData([]string{"Papa", "Bulto", "50 Kg"}, 3))
}

func TestIsHeaderRow(t *testing.T) {
	assert.True(t, IsHeaderRow([]string{"PRODUCTO", "Presentación"}))
	assert.True(t, IsHeaderRow([]string{"Precios de venta"}))
	assert.True(t, IsHeaderRow([]string{"Ronda 1 Mínimo"}))
	assert.False(t, IsHeaderRow([]string{"Papa criolla", "Bulto"}))
	assert.False(t, IsHeaderRow(nil))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Papa criolla limpia", CleanText("  Papa   criolla\n limpia "))
	assert.Equal(t, "", CleanText("   "))
}

func TestParseMemberFilename(t *testing.T) {
	city, market, date := ParseMemberFilename("Medellín, Central Mayorista-26-12-2025.pdf")
	assert.Equal(t, "Medellín", city)
	assert.Equal(t, "Central Mayorista", market)
	require.NotNil(t, date)
	assert.Equal(t, time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), *date)

	city, market, date = ParseMemberFilename("Pereira-3-1-2026.PDF")
	assert.Equal(t, "Pereira", city)
	assert.Equal(t, "", market)
	require.NotNil(t, date)
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), *date)

	city, market, date = ParseMemberFilename("Cali.pdf")
	assert.Equal(t, "Cali", city)
	assert.Equal(t, "", market)
	assert.Nil(t, date)

	_, _, date = ParseMemberFilename("Cali-40-13-2026.pdf")
	assert.Nil(t, date)
}
