package geo

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/agroamigo/sipsa-cli/internal/model"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// Reference is the parsed DIVIPOLA dataset.
type Reference struct {
	Departments    []model.Department
	Municipalities []model.Municipality
}

// ReadTSV parses the DIVIPOLA export. The file is tab-separated with a
// header row naming at least codigo_departamento, nombre_departamento,
// codigo_municipio and nombre_municipio; latitud and longitud are
// optional. Rows missing a code or name are skipped.
func ReadTSV(r io.Reader) (*Reference, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "geo: read header")
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"codigo_departamento", "nombre_departamento", "codigo_municipio", "nombre_municipio"} {
		if _, ok := colIdx[required]; !ok {
			return nil, eris.Errorf("geo: header missing column %s", required)
		}
	}

	ref := &Reference{}
	seenDept := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		deptCode := field(record, colIdx, "codigo_departamento")
		deptName := FixEncoding(field(record, colIdx, "nombre_departamento"))
		muniCode := field(record, colIdx, "codigo_municipio")
		muniName := FixEncoding(field(record, colIdx, "nombre_municipio"))
		if deptCode == "" || deptName == "" || muniCode == "" || muniName == "" {
			continue
		}
		if !seenDept[deptCode] {
			seenDept[deptCode] = true
			ref.Departments = append(ref.Departments, model.Department{Code: deptCode, Name: deptName})
		}
		ref.Municipalities = append(ref.Municipalities, model.Municipality{
			Code:           muniCode,
			DepartmentCode: deptCode,
			Name:           muniName,
			DepartmentName: deptName,
			Latitude:       floatField(record, colIdx, "latitud"),
			Longitude:      floatField(record, colIdx, "longitud"),
		})
	}
	return ref, nil
}

// Load parses the DIVIPOLA export and upserts it into the reference
// tables, departments first so the municipality foreign key holds.
// Returns the number of municipalities written.
func Load(ctx context.Context, st store.Store, r io.Reader) (int64, error) {
	ref, err := ReadTSV(r)
	if err != nil {
		return 0, err
	}
	if len(ref.Municipalities) == 0 {
		return 0, eris.New("geo: reference file has no municipality rows")
	}
	if err := st.UpsertDepartments(ctx, ref.Departments); err != nil {
		return 0, err
	}
	n, err := st.UpsertMunicipalities(ctx, ref.Municipalities)
	if err != nil {
		return n, err
	}
	zap.L().Info("loaded geographic reference",
		zap.Int("departments", len(ref.Departments)),
		zap.Int64("municipalities", n))
	return n, nil
}

func field(record []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func floatField(record []string, colIdx map[string]int, name string) *float64 {
	s := field(record, colIdx, name)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}
