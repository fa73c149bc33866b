package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroamigo/sipsa-cli/internal/model"
)

func TestDateFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want *time.Time
	}{
		{"modern", "/files/investigaciones/agropecuario/sipsa/anex-SIPSADiario-24dic2025.xlsx", d(2025, 12, 24)},
		{"modern sept variant", "/files/sipsa/anex-SIPSADiario-2sept2021.xlsx", d(2021, 9, 2)},
		{"historical", "/files/investigaciones/agropecuario/sipsa/mayoristas_noviembre_30_2018.xlsx", d(2018, 11, 30)},
		{"zip with date", "/files/sipsa/regionales-26dic2025.zip", d(2025, 12, 26)},
		{"no date", "/files/sipsa/anexo-general.xlsx", nil},
		{"impossible day", "/files/sipsa/anex-31feb2025.xlsx", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DateFromURL(tt.url)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func d(y int, m time.Month, day int) *time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestKindFromLink(t *testing.T) {
	assert.Equal(t, model.FileKindZIP, KindFromLink("/files/x.zip", ""))
	assert.Equal(t, model.FileKindPDF, KindFromLink("/files/x.pdf", ""))
	assert.Equal(t, model.FileKindExcel, KindFromLink("/files/x.xlsx", ""))
	assert.Equal(t, model.FileKindExcel, KindFromLink("/files/x.xls", ""))
	assert.Equal(t, model.FileKindZIP, KindFromLink("/files/descarga", "Informes por ciudades 26 de diciembre"))
	assert.Equal(t, model.FileKindZIP, KindFromLink("/files/regionales-24dic2025", ""))
	assert.Equal(t, model.FileKindExcel, KindFromLink("/files/descarga", "Anexo 26 de diciembre"))
	assert.Equal(t, model.FileKindExcel, KindFromLink("/files/anex-sipsa", ""))
	assert.Equal(t, model.FileKind(""), KindFromLink("/files/otra-cosa", "Metodología"))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, CategoryInformes, Category("/files/regionales-24dic2025.zip", ""))
	assert.Equal(t, CategoryInformes, Category("/files/x.zip", "Informes por ciudades"))
	assert.Equal(t, CategoryAnexo, Category("/files/anex-SIPSADiario-24dic2025.xlsx", ""))
	assert.Equal(t, CategoryAnexo, Category("/files/descarga.xlsx", "Anexo diario"))
	assert.Equal(t, CategoryAnexo, Category("/files/mayoristas_noviembre_30_2018.xlsx", ""))
	assert.Equal(t, CategoryBoletin, Category("/files/bolet-diario-24dic2025.pdf", ""))
	assert.Equal(t, "", Category("/files/otra-cosa", ""))
}

func TestExtractLinks(t *testing.T) {
	html := `
<html><body>
<p><a href="/files/investigaciones/agropecuario/sipsa/anex-SIPSADiario-24dic2025.xlsx">
  <strong>Anexo</strong> 24 de diciembre de 2025</a></p>
<p><a href="/files/investigaciones/agropecuario/sipsa/regionales-24dic2025.zip">Informes por ciudades</a></p>
<p><a href="/index.php/otra-pagina">Otra p&aacute;gina</a></p>
<p><a href="/files/docs/metodologia-sipsa">Metodolog&iacute;a</a></p>
</body></html>`

	links := ExtractLinks("https://www.dane.gov.co/main", html, "https://www.dane.gov.co")
	require.Len(t, links, 2)

	anexo := links[0]
	assert.Equal(t, "https://www.dane.gov.co/files/investigaciones/agropecuario/sipsa/anex-SIPSADiario-24dic2025.xlsx", anexo.URL)
	assert.Equal(t, "Anexo 24 de diciembre de 2025", anexo.LinkText)
	assert.Equal(t, model.FileKindExcel, anexo.FileKind)
	assert.Equal(t, "anex-SIPSADiario-24dic2025.xlsx", anexo.Filename)
	assert.Equal(t, "https://www.dane.gov.co/main", anexo.SourcePage)
	require.NotNil(t, anexo.FileDate)
	assert.Equal(t, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), *anexo.FileDate)

	zip := links[1]
	assert.Equal(t, model.FileKindZIP, zip.FileKind)
	assert.Equal(t, "regionales-24dic2025.zip", zip.Filename)
}

func TestExtractLinksIgnoresNonFileHrefs(t *testing.T) {
	html := `<a href="https://example.com/files/x.xlsx">Anexo externo</a>`
	assert.Empty(t, ExtractLinks("p", html, "https://www.dane.gov.co"))
}

func TestFilterKeep(t *testing.T) {
	anexo := FileLink{URL: "/files/anex-24dic2025.xlsx", LinkText: "Anexo"}
	informes := FileLink{URL: "/files/regionales-24dic2025.zip", LinkText: "Informes por ciudades"}
	boletin := FileLink{URL: "/files/bolet-24dic2025.pdf", LinkText: "Boletín diario"}

	assert.True(t, Filter{}.keep(anexo))
	assert.True(t, Filter{}.keep(informes))
	assert.False(t, Filter{}.keep(boletin))
	assert.True(t, Filter{IncludeBoletin: true}.keep(boletin))
	assert.True(t, Filter{AnexoOnly: true}.keep(anexo))
	assert.False(t, Filter{AnexoOnly: true}.keep(informes))
	assert.False(t, Filter{InformesOnly: true}.keep(anexo))
	assert.True(t, Filter{InformesOnly: true}.keep(informes))
}
