package report

import (
	"strings"

	"github.com/sells-group/atlas-research/internal/model"
)

// Sheet is one named table of a workbook.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Workbook is an ordered set of sheets.
type Workbook struct {
	Sheets []Sheet
}

// Sheet returns the sheet called name, or nil.
func (w Workbook) Sheet(name string) *Sheet {
	for i := range w.Sheets {
		if w.Sheets[i].Name == name {
			return &w.Sheets[i]
		}
	}
	return nil
}

// column renders one cell of a row from an outcome.
type column struct {
	header string
	value  func(o model.Outcome) string
}

func scalar(header string, f model.FieldName) column {
	return column{header: header, value: func(o model.Outcome) string {
		if o.Record == nil {
			return ""
		}
		return o.Record.Value(f)
	}}
}

func list(header string, f model.FieldName) column {
	return column{header: header, value: func(o model.Outcome) string {
		if o.Record == nil {
			return ""
		}
		return strings.Join(o.Record.List(f), ", ")
	}}
}

var domainColumn = column{header: "domain", value: func(o model.Outcome) string { return o.Target.Label() }}

var failureColumn = column{header: "failure_reason", value: func(o model.Outcome) string {
	if o.Succeeded() {
		return ""
	}
	return o.Failure
}}

// companyName falls back to the target's derived name when extraction did
// not produce one.
var companyName = column{header: "company_name", value: func(o model.Outcome) string {
	if o.Record == nil {
		return ""
	}
	if v := o.Record.Value(model.FieldCompanyName); v != "" {
		return v
	}
	return o.Target.Name
}}

type sheetDef struct {
	name    string
	columns []column
}

// SheetNames lists the bulk workbook sheets in order.
var SheetNames = []string{
	"company_information",
	"contact_information",
	"social_media",
	"people_information",
	"description & industry",
	"certifications",
	"services",
}

var sheetDefs = []sheetDef{
	{"company_information", []column{
		domainColumn,
		scalar("domain_status", model.FieldDomainStatus),
		scalar("Company Registration Number", model.FieldRegistrationNumber),
		scalar("VAT Number", model.FieldVATNumber),
		companyName,
		scalar("Acronym", model.FieldAcronym),
		scalar("logo_url", model.FieldLogoURL),
		list("tech_stack", model.ListTechStack),
		failureColumn,
	}},
	{"contact_information", []column{
		domainColumn,
		companyName,
		scalar("full_address", model.FieldFullAddress),
		scalar("phone", model.FieldPhone),
		scalar("sales phone", model.FieldSalesPhone),
		scalar("fax", model.FieldFax),
		scalar("mobile", model.FieldMobile),
		list("other numbers", model.ListOtherNumbers),
		scalar("email", model.FieldEmail),
		scalar("hours_of_operation", model.FieldHours),
		scalar("HQ Indicator", model.FieldHQIndicator),
	}},
	{"social_media", []column{
		domainColumn,
		scalar("linkedin", model.FieldLinkedIn),
		scalar("facebook", model.FieldFacebook),
		scalar("x", model.FieldTwitter),
		scalar("Instagram", model.FieldInstagram),
		scalar("Youtube", model.FieldYouTube),
		scalar("blog", model.FieldBlog),
		list("articles", model.ListArticles),
	}},
	{"people_information", nil},
	{"description & industry", []column{
		domainColumn,
		scalar("long description", model.FieldLongDescription),
		scalar("short description", model.FieldShortDescription),
		scalar("sic_code", model.FieldSICCode),
		scalar("sic_text", model.FieldSICText),
		scalar("sub_industry", model.FieldSubIndustry),
		scalar("industry", model.FieldIndustry),
		scalar("sector", model.FieldSector),
		list("tags", model.ListTags),
	}},
	{"certifications", []column{
		domainColumn,
		list("certifications", model.ListCertifications),
	}},
	{"services", []column{
		domainColumn,
		list("products & services", model.ListProducts),
		scalar("type", model.FieldServiceType),
	}},
}

var peopleHeader = []string{"domain", "people_name", "people_title", "people_email", "url"}

// BuildWorkbook lays outcomes out across the fixed sheets, one row per
// outcome in input order. People get one row each, or a single empty row
// when there are none.
func BuildWorkbook(outcomes []model.Outcome) Workbook {
	wb := Workbook{Sheets: make([]Sheet, 0, len(sheetDefs))}
	for _, def := range sheetDefs {
		if def.columns == nil {
			wb.Sheets = append(wb.Sheets, peopleSheet(def.name, outcomes))
			continue
		}
		s := Sheet{Name: def.name, Header: make([]string, len(def.columns))}
		for i, c := range def.columns {
			s.Header[i] = c.header
		}
		for _, o := range outcomes {
			row := make([]string, len(def.columns))
			for i, c := range def.columns {
				row[i] = c.value(o)
			}
			s.Rows = append(s.Rows, row)
		}
		wb.Sheets = append(wb.Sheets, s)
	}
	return wb
}

func peopleSheet(name string, outcomes []model.Outcome) Sheet {
	s := Sheet{Name: name, Header: peopleHeader}
	for _, o := range outcomes {
		domain := o.Target.Label()
		if o.Record == nil || len(o.Record.People) == 0 {
			s.Rows = append(s.Rows, []string{domain, "", "", "", ""})
			continue
		}
		for _, p := range o.Record.People {
			s.Rows = append(s.Rows, []string{domain, p.Name, p.Title, p.Email, p.LinkedInURL})
		}
	}
	return s
}
