package tabular

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Affected": {
			{"Area", "Families"},
			{"ALBAY", "300"},
			{"Daraga", "200"},
		},
	})

	tbl, err := ReadXLSX(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Affected", tbl.Name)
	assert.Equal(t, []string{"Area", "Families"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"Daraga", "200"}, tbl.Rows[1])
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	tbl, err := ReadXLSX(path, Options{Sheet: "Second"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "2"}}, tbl.Rows)
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, Options{Sheet: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, Options{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	_, err := ReadXLSX(path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestReadFile_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"Area"}, {"ALBAY"}}})

	tbl, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ALBAY"}}, tbl.Rows)
}

func TestWriteXLSX_Sheets(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf,
		&Table{Name: "rows", Header: []string{"label", "code"}, Rows: [][]string{{"ALBAY", "PH0505"}}},
		&Table{Header: []string{"level", "matched"}, Rows: [][]string{{"province", "1"}}},
	)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rows", "Sheet2"}, names)

	tbl, err := ReadXLSX(path, Options{Sheet: "rows"})
	require.NoError(t, err)
	assert.Equal(t, []string{"label", "code"}, tbl.Header)
	assert.Equal(t, [][]string{{"ALBAY", "PH0505"}}, tbl.Rows)
}
