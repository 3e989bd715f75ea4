package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/atlas-research/internal/model"
)

func completed(t *testing.T, input string, fill func(*model.ExtractionRecord)) model.Outcome {
	t.Helper()
	target, err := model.NewTarget(input)
	require.NoError(t, err)
	rec := model.NewExtractionRecord(target)
	if fill != nil {
		fill(&rec)
	}
	return model.Outcome{Target: target, Phase: model.PhaseCompleted, Record: &rec}
}

func failed(t *testing.T, input, reason string) model.Outcome {
	t.Helper()
	target, err := model.NewTarget(input)
	require.NoError(t, err)
	return model.Outcome{Target: target, Phase: model.PhaseFailed, FailedIn: model.PhaseSearching, Failure: reason}
}

func TestAssemble_SingleProfile(t *testing.T) {
	t.Parallel()

	o := completed(t, "acme.com", func(r *model.ExtractionRecord) {
		r.Fields[model.FieldCompanyName] = "Acme Inc"
		r.Fields[model.FieldIndustry] = "Manufacturing"
		r.Fields[model.FieldLogoURL] = "https://acme.com/logo.png"
		r.People = []model.KeyPerson{{Name: "Jane Doe", Title: "CEO"}, {Name: "John Roe"}}
		r.Lists[model.ListProducts] = []string{"a", "b", "c", "d", "e", "f"}
		r.Lists[model.ListLocations] = []string{"Austin, TX"}
	})
	o.Usage = model.Usage{SearchQueries: 4}

	rep := Assemble([]model.Outcome{o})
	require.NotNil(t, rep.Profile)
	assert.Equal(t, 1, rep.Count)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, "https://acme.com/logo.png", rep.Profile.LogoURL)
	assert.Equal(t, 4, rep.Profile.Usage.SearchQueries)

	g := rep.Profile.Graph
	require.NotEmpty(t, g.Nodes)
	root := g.Nodes[0]
	assert.Equal(t, "node_company", root.ID)
	assert.Equal(t, "Acme Inc", root.Label)
	assert.Equal(t, map[string]string{"industry": "Manufacturing", "domain": "acme.com"}, root.Properties)

	// company + 2 people + 5 products + 1 location
	assert.Len(t, g.Nodes, 9)
	assert.Len(t, g.Edges, 8)

	relations := map[string]int{}
	for _, e := range g.Edges {
		relations[e.Relation]++
	}
	assert.Equal(t, map[string]int{"works_at": 2, "produces": 5, "located_at": 1}, relations)
	assert.Equal(t, Edge{Source: "node_person_0", Target: "node_company", Relation: "works_at"}, g.Edges[0])
	assert.Nil(t, g.Nodes[2].Properties, "untitled person carries no properties")
}

func TestBuildGraph_NameFallback(t *testing.T) {
	t.Parallel()

	o := completed(t, "acme-labs.io", nil)
	g := BuildGraph(*o.Record)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "Acme Labs", g.Nodes[0].Label)
	assert.Empty(t, g.Edges)
}

func TestAssemble_BatchWithFailures(t *testing.T) {
	t.Parallel()

	a := completed(t, "a.com", func(r *model.ExtractionRecord) {
		r.Fields[model.FieldCompanyName] = "A Corp"
		r.Fields[model.FieldSector] = "Industrials"
		r.Lists[model.ListTags] = []string{"b2b", "saas"}
		r.Lists[model.ListTechStack] = []string{"Go", "Postgres"}
		r.People = []model.KeyPerson{
			{Name: "Ann", Title: "CEO", Email: "ann@a.com", LinkedInURL: "https://linkedin.com/in/ann"},
			{Name: "Bob", Title: "CTO"},
		}
	})
	b := failed(t, "b.com", "no candidate pages found")

	rep := Assemble([]model.Outcome{a, b})
	assert.Nil(t, rep.Profile)
	assert.Equal(t, 2, rep.Count)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, Failure{Target: "b.com", Phase: model.PhaseSearching, Reason: "no candidate pages found"}, rep.Failures[0])

	wb := rep.Workbook
	require.Len(t, wb.Sheets, len(SheetNames))
	for i, s := range wb.Sheets {
		assert.Equal(t, SheetNames[i], s.Name)
	}

	company := wb.Sheet("company_information")
	require.NotNil(t, company)
	assert.Equal(t, []string{
		"domain", "domain_status", "Company Registration Number", "VAT Number",
		"company_name", "Acronym", "logo_url", "tech_stack", "failure_reason",
	}, company.Header)
	require.Len(t, company.Rows, 2)
	assert.Equal(t, []string{"a.com", "", "", "", "A Corp", "", "", "Go, Postgres", ""}, company.Rows[0])
	assert.Equal(t, []string{"b.com", "", "", "", "", "", "", "", "no candidate pages found"}, company.Rows[1])

	people := wb.Sheet("people_information")
	require.NotNil(t, people)
	assert.Equal(t, [][]string{
		{"a.com", "Ann", "CEO", "ann@a.com", "https://linkedin.com/in/ann"},
		{"a.com", "Bob", "CTO", "", ""},
		{"b.com", "", "", "", ""},
	}, people.Rows)

	desc := wb.Sheet("description & industry")
	require.NotNil(t, desc)
	assert.Equal(t, "Industrials", desc.Rows[0][7])
	assert.Equal(t, "b2b, saas", desc.Rows[0][8])

	assert.Nil(t, wb.Sheet("missing"))
}

func TestAssemble_SingleFailure(t *testing.T) {
	t.Parallel()

	rep := Assemble([]model.Outcome{failed(t, "Acme Corp", "cancelled")})
	assert.Nil(t, rep.Profile)
	require.Len(t, rep.Failures, 1)
	row := rep.Workbook.Sheet("company_information").Rows[0]
	assert.Equal(t, "Acme Corp", row[0])
	assert.Equal(t, "cancelled", row[len(row)-1])
}

func TestNames(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "Bulk_Report_20250304_050607.xlsx", BulkName(ts))
	assert.Equal(t, "Profile_acme.com_20250304_050607.xlsx", ProfileName("acme.com", ts))
	assert.Equal(t, "Profile_Acme_Corp_20250304_050607.xlsx", ProfileName("Acme Corp/", ts))
}

func TestExporter(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	e := NewExporter(dir)
	e.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	rep := Assemble([]model.Outcome{
		completed(t, "a.com", func(r *model.ExtractionRecord) { r.Fields[model.FieldCompanyName] = "A Corp" }),
		failed(t, "b.com", "boom"),
	})
	name, err := e.ExportBulk(rep)
	require.NoError(t, err)
	assert.Equal(t, "Bulk_Report_20250102_030405.xlsx", name)

	path, err := e.Path(name)
	require.NoError(t, err)
	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 7)

	sheet := f.Sheet["company_information"]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "domain", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "A Corp", sheet.Rows[1].Cells[4].String())
	assert.Equal(t, "boom", sheet.Rows[2].Cells[8].String())

	name, err = e.ExportProfile("a.com", rep)
	require.NoError(t, err)
	assert.Equal(t, "Profile_a.com_20250102_030405.xlsx", name)
	_, err = os.Stat(filepath.Join(dir, name))
	assert.NoError(t, err)
}

func TestExporter_PathRejects(t *testing.T) {
	t.Parallel()

	e := NewExporter(t.TempDir())
	for _, name := range []string{"", "../secret.xlsx", "a/b.xlsx", ".hidden.xlsx", "report.csv", "missing.xlsx"} {
		_, err := e.Path(name)
		assert.Error(t, err, name)
	}
}
