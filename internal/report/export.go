package report

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

const timestampLayout = "20060102_150405"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BulkName is the workbook filename for a batch exported at ts.
func BulkName(ts time.Time) string {
	return "Bulk_Report_" + ts.Format(timestampLayout) + ".xlsx"
}

// ProfileName is the workbook filename for a single target exported at ts.
func ProfileName(label string, ts time.Time) string {
	label = strings.Trim(unsafeName.ReplaceAllString(label, "_"), "_")
	return "Profile_" + label + "_" + ts.Format(timestampLayout) + ".xlsx"
}

// Exporter writes workbooks under a report directory.
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter creates an Exporter rooted at dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Dir returns the report directory.
func (e *Exporter) Dir() string { return e.dir }

// ExportBulk writes rep as a Bulk_Report workbook and returns its filename.
func (e *Exporter) ExportBulk(rep Report) (string, error) {
	return e.write(BulkName(e.now()), rep.Workbook)
}

// ExportProfile writes a single-target workbook named after label.
func (e *Exporter) ExportProfile(label string, rep Report) (string, error) {
	return e.write(ProfileName(label, e.now()), rep.Workbook)
}

func (e *Exporter) write(name string, wb Workbook) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "report: create dir")
	}

	f := xlsx.NewFile()
	for _, s := range wb.Sheets {
		sheet, err := f.AddSheet(s.Name)
		if err != nil {
			return "", eris.Wrapf(err, "report: add sheet %s", s.Name)
		}
		addRow(sheet, s.Header)
		for _, r := range s.Rows {
			addRow(sheet, r)
		}
	}

	path := filepath.Join(e.dir, name)
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "report: save %s", name)
	}
	zap.L().Info("report: workbook exported", zap.String("file", name), zap.Int("sheets", len(wb.Sheets)))
	return name, nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// Path resolves an exported workbook name to its file path. Names that
// would escape the report directory are rejected.
func (e *Exporter) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".xlsx" {
		return "", eris.Errorf("report: invalid name %q", name)
	}
	path := filepath.Join(e.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", eris.Wrapf(err, "report: %s", name)
	}
	return path, nil
}
