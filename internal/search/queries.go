package search

import (
	"fmt"
	"strings"

	"github.com/sells-group/atlas-research/internal/model"
)

// Query is one search for a single field. Keyword is phrased for keyword
// engines, Question for answer engines.
type Query struct {
	Field    string `json:"field"`
	Keyword  string `json:"keyword"`
	Question string `json:"question"`
	// Attempt is zero for the initial query and the retry number otherwise.
	Attempt int `json:"attempt,omitempty"`
}

// DefaultFields are the fields queried when research.query_fields is unset.
var DefaultFields = []string{
	"long_description",
	"short_description",
	"sic_code",
	"sic_text",
	"sub_industry",
	"industry",
	"sector",
	"tags",
	"key_people",
	"contact_info",
	"locations",
	"social_media",
}

type templateFunc func(domain, name string) (keyword, question string)

var templates = map[string]templateFunc{
	"long_description": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" OR "%s" "about us" OR "who we are" OR "company overview" OR "our mission"`, d, n),
			fmt.Sprintf("What does %s do? %s company overview mission about us", n, d)
	},
	"short_description": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" company description tagline "what we do"`, d),
			fmt.Sprintf("What is %s? %s brief company description", n, d)
	},
	"sic_code": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" OR "%s" SIC code number classification site:companieshouse.gov.uk OR site:endole.co.uk OR site:duedil.com`, d, n),
			fmt.Sprintf("What is the SIC code for %s? %s standard industrial classification number", n, d)
	},
	"sic_text": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" SIC description "industrial classification" business activity type`, d),
			fmt.Sprintf("What SIC classification does %s have? %s industrial classification description", n, d)
	},
	"industry": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" OR "%s" "industry" OR "business sector" -jobs -careers`, d, n),
			fmt.Sprintf("What industry is %s in? %s primary business industry type", n, d)
	},
	"sub_industry": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" sub-industry OR "niche" OR "specialization" OR "vertical" market segment`, d),
			fmt.Sprintf("What sub-industry does %s operate in? %s business niche specialization", n, d)
	},
	"sector": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" OR "%s" "sector" technology OR finance OR healthcare OR retail market`, d, n),
			fmt.Sprintf("What sector is %s part of? %s business sector category", n, d)
	},
	"tags": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" keywords OR services OR solutions OR products OR "what we offer" features`, d),
			fmt.Sprintf("What are the main services and keywords for %s? %s products solutions features", n, d)
	},
	"products_services": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" "products" OR "services" OR "solutions" OR "offerings" "what we offer"`, d),
			fmt.Sprintf("What products and services does %s offer? %s offerings solutions", n, d)
	},
	"key_people": func(d, n string) (string, string) {
		return fmt.Sprintf(`site:linkedin.com "%s" CEO OR CTO OR founder OR director OR "managing director"`, n),
			fmt.Sprintf("Who is the CEO of %s? %s leadership team executives founders", n, d)
	},
	"locations": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" "headquarters" OR "office" OR "location" OR "address" contact`, d),
			fmt.Sprintf("Where is %s located? %s headquarters office address location", n, d)
	},
	"contact_info": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" "contact us" OR "phone" OR "email" OR "call us" support`, d),
			fmt.Sprintf("How to contact %s? %s phone number email address contact", n, d)
	},
	"tech_stack": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" OR "%s" technology OR stack OR "built with" OR engineering OR platform`, d, n),
			fmt.Sprintf("What technology does %s use? %s tech stack tools platforms", n, d)
	},
	"certifications": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" ISO OR GDPR OR SOC2 OR certification OR compliance OR accredited`, d),
			fmt.Sprintf("What certifications does %s have? %s ISO GDPR SOC2 compliance", n, d)
	},
	"social_media": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" linkedin OR twitter OR facebook OR instagram official`, n),
			fmt.Sprintf("What are %s social media profiles? %s linkedin twitter facebook", n, d)
	},
	"year_founded": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" OR "%s" "founded" OR "established" OR "since" year history`, d, n),
			fmt.Sprintf("When was %s founded? %s established year history", n, d)
	},
	"company_size": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" employees OR "team size" OR headcount OR staff site:linkedin.com`, d),
			fmt.Sprintf("How many employees does %s have? %s company size team", n, d)
	},
	"registration_number": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" "company number" OR "registration" site:companieshouse.gov.uk OR site:endole.co.uk`, n),
			fmt.Sprintf("What is %s company registration number? %s companies house", n, d)
	},
	"vat_number": func(d, n string) (string, string) {
		return fmt.Sprintf(`"%s" "VAT" OR "VAT number" OR "VAT registered" GB`, d),
			fmt.Sprintf("What is %s VAT number? %s VAT registration", n, d)
	},
}

// siteSpecific narrows the first retry to sources known to carry the field.
var siteSpecific = map[string]string{
	"sic_code":       `"{name}" SIC site:companieshouse.gov.uk`,
	"sic_text":       `"{name}" industrial classification site:gov.uk`,
	"key_people":     `"{name}" CEO OR founder site:linkedin.com`,
	"industry":       `"{name}" industry site:crunchbase.com OR site:linkedin.com`,
	"locations":      `"{domain}" office location site:google.com/maps`,
	"contact_info":   `site:{domain} contact OR phone OR email`,
	"certifications": `"{name}" certified ISO site:iso.org OR site:bsigroup.com`,
}

var synonyms = map[string]string{
	"long_description":  "overview OR mission OR about OR description",
	"short_description": "tagline OR summary OR what we do",
	"sic_code":          "SIC OR NAICS OR industry code",
	"industry":          "industry OR sector OR market OR vertical",
	"sub_industry":      "niche OR specialization OR focus area",
	"tags":              "keywords OR services OR products OR solutions",
	"key_people":        "leadership OR executives OR founders OR team",
	"contact_info":      "phone OR email OR contact OR reach us",
}

// RetryStrategies is the number of distinct retry phrasings; attempts beyond
// it cycle back to the first.
const RetryStrategies = 5

// Build returns one query per field for t, in the given order. Unknown
// fields get a generic pair.
func Build(t model.Target, fields []string) []Query {
	domain, name := subjects(t)
	out := make([]Query, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		q := Query{Field: f}
		if tmpl, ok := templates[f]; ok {
			q.Keyword, q.Question = tmpl(domain, name)
		} else {
			label := humanize(f)
			q.Keyword = fmt.Sprintf(`"%s" "%s"`, domain, label)
			q.Question = fmt.Sprintf("What is the %s of %s? %s", label, name, domain)
		}
		out = append(out, q)
	}
	return out
}

// Retry returns an alternative query for a field that is still missing.
// attempt starts at 1; strategies run site-specific, business registries,
// professional networks, news, then synonyms, and cycle after that.
func Retry(t model.Target, field string, attempt int) Query {
	if attempt < 1 {
		attempt = 1
	}
	domain, name := subjects(t)
	label := humanize(field)
	q := Query{Field: field, Attempt: attempt}

	switch ((attempt - 1) % RetryStrategies) + 1 {
	case 1:
		q.Keyword = fmt.Sprintf(`"%s" %s -jobs -careers`, domain, label)
		if tmpl, ok := siteSpecific[field]; ok {
			q.Keyword = strings.NewReplacer("{name}", name, "{domain}", domain).Replace(tmpl)
		}
		q.Question = fmt.Sprintf("%s %s official information", name, label)
	case 2:
		q.Keyword = fmt.Sprintf(`"%s" %s site:companieshouse.gov.uk OR site:endole.co.uk OR site:opencorporates.com`, name, label)
		q.Question = fmt.Sprintf("%s %s business registry company data", domain, label)
	case 3:
		q.Keyword = fmt.Sprintf(`"%s" %s site:linkedin.com OR site:crunchbase.com OR site:zoominfo.com`, name, label)
		q.Question = fmt.Sprintf("%s %s linkedin crunchbase profile", name, label)
	case 4:
		q.Keyword = fmt.Sprintf(`"%s" %s news OR press OR announcement`, name, label)
		q.Question = fmt.Sprintf("%s %s latest news press release", name, label)
	default:
		syn, ok := synonyms[field]
		if !ok {
			syn = label
		}
		q.Keyword = fmt.Sprintf(`"%s" (%s)`, domain, syn)
		q.Question = fmt.Sprintf("everything about %s %s company information", name, domain)
	}
	return q
}

// subjects returns the domain and display name used in query text. Name-only
// targets use the name for both.
func subjects(t model.Target) (domain, name string) {
	name = t.Name
	if name == "" {
		name = t.Label()
	}
	domain = t.Label()
	return domain, name
}

func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
