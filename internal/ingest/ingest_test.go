package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
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
	require.NoError(t, f.Save(path))
	return path
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	var rows [][]string
	for r := range rowCh {
		rows = append(rows, r)
	}
	return rows, <-errCh
}

func TestStreamCSV(t *testing.T) {
	t.Parallel()

	input := "\ufeffDomain, Name\n acme.com ,Acme\n\nb.com,B,extra\n"
	rows, err := drain(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Domain", "Name"}, rows[0])
	assert.Equal(t, []string{"acme.com", "Acme"}, rows[1])
	assert.Equal(t, []string{"b.com", "B", "extra"}, rows[2])
}

func TestStreamCSV_Options(t *testing.T) {
	t.Parallel()

	input := "# exported\ndomain;name\nacme.com;Acme\n"
	rows, err := drain(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';', Comment: '#'}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"domain", "name"}, {"acme.com", "Acme"}}, rows)
}

func TestStreamCSV_Malformed(t *testing.T) {
	t.Parallel()

	_, err := drain(StreamCSV(context.Background(), strings.NewReader("a,\"b\nc"), CSVOptions{}))
	assert.Error(t, err)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := drain(StreamCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{}))
	assert.ErrorContains(t, err, "context cancelled")
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"Domain"}, {"acme.com"}, {"b.com"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Domain"}, {"acme.com"}, {"b.com"}}, rows)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, "not found")

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	f, ok := DetectFormat("Upload.CSV")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	f, ok = DetectFormat("list.xlsx")
	assert.True(t, ok)
	assert.Equal(t, FormatXLSX, f)

	_, ok = DetectFormat("list.xls")
	assert.False(t, ok)
}

func TestReadTable(t *testing.T) {
	t.Parallel()

	csvPath := writeTestFile(t, "list.csv", "\n,\nName,DOMAIN\nAcme,acme.com\n")
	tbl, err := ReadTable(context.Background(), csvPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "DOMAIN"}, tbl.Header)
	assert.Equal(t, 1, tbl.Column("domain"))
	assert.Equal(t, -1, tbl.Column("website"))
	assert.Equal(t, [][]string{{"Acme", "acme.com"}}, tbl.Rows)

	xlsxPath := createTestXLSX(t, map[string][][]string{"Sheet1": {{" domain "}, {"acme.com"}}})
	tbl, err = ReadTable(context.Background(), xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Column("Domain"))
	assert.Len(t, tbl.Rows, 1)

	_, err = ReadTable(context.Background(), writeTestFile(t, "list.txt", "domain\n"))
	assert.ErrorContains(t, err, "unsupported file type")
}
