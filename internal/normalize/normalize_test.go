package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/atlas-research/internal/model"
)

func TestFields(t *testing.T) {
	t.Parallel()
	n := New(nil)

	raw := map[model.FieldName]string{
		model.FieldIndustry:    "  Software ",
		model.FieldSector:      "N/A",
		model.FieldSICCode:     "  Not Found  ",
		model.FieldFax:         "",
		model.FieldEmail:       "NULL",
		model.FieldCompanyName: "Acme",
		model.FieldAcronym:     "none",
		model.FieldHours:       "No Information",
		model.FieldSICText:     "unknown",
	}

	got := n.Fields(raw)
	assert.Equal(t, map[model.FieldName]string{
		model.FieldIndustry:    "Software",
		model.FieldCompanyName: "Acme",
	}, got)
	assert.Len(t, raw, 9, "input untouched")
}

func TestFields_Idempotent(t *testing.T) {
	t.Parallel()
	n := New(nil)

	raw := map[model.FieldName]string{
		model.FieldIndustry: " Manufacturing",
		model.FieldSector:   "unknown",
		model.FieldPhone:    "+1 555 0100",
	}
	once := n.Fields(raw)
	twice := n.Fields(once)
	assert.Equal(t, once, twice)
}

func TestCustomVocabulary(t *testing.T) {
	t.Parallel()
	n := New([]string{"TBD", " - "})

	assert.True(t, n.IsPlaceholder("tbd"))
	assert.True(t, n.IsPlaceholder("-"))
	assert.True(t, n.IsPlaceholder("   "), "empty is always a placeholder")
	assert.False(t, n.IsPlaceholder("n/a"), "default vocabulary replaced")
}

func TestList(t *testing.T) {
	t.Parallel()
	n := New(nil)

	assert.Equal(t, []string{"ISO 9001", "SOC 2"}, n.List([]string{" ISO 9001", "n/a", "SOC 2", "iso 9001", ""}))
	assert.Nil(t, n.List([]string{"none", "Unknown"}))
	assert.Nil(t, n.List(nil))
}

func TestPeople(t *testing.T) {
	t.Parallel()
	n := New(nil)

	got := n.People([]model.KeyPerson{
		{Name: " Jane Doe ", Title: "CEO", Email: "not found", LinkedInURL: "N/A"},
		{Name: "unknown", Title: "CTO"},
		{Name: "John Roe", RoleCategory: "null"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, model.KeyPerson{Name: "Jane Doe", Title: "CEO"}, got[0])
	assert.Equal(t, model.KeyPerson{Name: "John Roe"}, got[1])
}

func TestRecord(t *testing.T) {
	t.Parallel()
	n := New(nil)

	target, err := model.NewTarget("acme.com")
	require.NoError(t, err)
	rec := model.NewExtractionRecord(target)
	rec.Fields[model.FieldIndustry] = "Software"
	rec.Fields[model.FieldSector] = "n/a"
	rec.Lists[model.ListTags] = []string{"none"}
	rec.Lists[model.ListProducts] = []string{"Widgets", "widgets", "Gadgets"}
	rec.People = []model.KeyPerson{{Name: "null"}}

	got := n.Record(rec)
	assert.Equal(t, "Software", got.Value(model.FieldIndustry))
	assert.False(t, got.Has(model.FieldSector))
	assert.False(t, got.Has(model.ListTags))
	assert.Equal(t, []string{"Widgets", "Gadgets"}, got.List(model.ListProducts))
	assert.Empty(t, got.People)
	assert.Equal(t, "n/a", rec.Fields[model.FieldSector], "original record untouched")

	assert.Equal(t, got, n.Record(got))
}
