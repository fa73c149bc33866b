package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearMonthFromPageURL(t *testing.T) {
	key, ok := YearMonthFromPageURL("/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente-precios-mayoristas-noviembre-2018")
	require.True(t, ok)
	assert.Equal(t, MonthKey{Year: 2018, Month: time.November}, key)

	key, ok = YearMonthFromPageURL("/index.php/sipsa/componente-mayo-2021")
	require.True(t, ok)
	assert.Equal(t, MonthKey{Year: 2021, Month: time.May}, key)

	// "mayo" inside "mayoristas" must not register as May.
	_, ok = YearMonthFromPageURL("/index.php/sipsa/componente-precios-mayoristas")
	assert.False(t, ok)

	_, ok = YearMonthFromPageURL("/index.php/sipsa/componente-enero-sin-anio")
	assert.False(t, ok)
}

func TestMonthPageURLs(t *testing.T) {
	html := `
<a href="/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente-precios-mayoristas">Actual</a>
<a href="/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente-precios-mayoristas-noviembre-2018">Nov 2018</a>
<a href="/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente-precios-mayoristas-noviembre-2018">Nov 2018 repetido</a>
<a href="/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente-precios-mayoristas-diciembre-2018-1">Dic 2018</a>
`
	months := MonthPageURLs(html, "https://www.dane.gov.co")
	require.Len(t, months, 2)

	nov := months[MonthKey{Year: 2018, Month: time.November}]
	require.Len(t, nov, 1)
	assert.Equal(t, "https://www.dane.gov.co/index.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente-precios-mayoristas-noviembre-2018", nov[0])

	dic := months[MonthKey{Year: 2018, Month: time.December}]
	require.Len(t, dic, 1)
}

func TestMonthKeyRange(t *testing.T) {
	k := MonthKey{Year: 2024, Month: time.February}
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), k.First())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), k.Last())

	assert.True(t, MonthKey{2023, time.December}.Before(MonthKey{2024, time.January}))
	assert.False(t, MonthKey{2024, time.March}.Before(MonthKey{2024, time.March}))
}

func TestSortedMonthKeys(t *testing.T) {
	m := map[MonthKey][]string{
		{2024, time.March}:   nil,
		{2023, time.June}:    nil,
		{2024, time.January}: nil,
	}
	keys := SortedMonthKeys(m)
	require.Len(t, keys, 3)
	assert.Equal(t, MonthKey{2023, time.June}, keys[0])
	assert.Equal(t, MonthKey{2024, time.March}, keys[2])
}
