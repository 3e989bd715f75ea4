package extract

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/atlas-research/internal/model"
)

// systemPrompt is identical for every target so it is sent with a cache
// breakpoint.
const systemPrompt = `You are an expert business data extraction analyst. You receive search engine results and website content about one company and return a single JSON object describing it.

Work through the evidence step by step before answering: identify which sources are about the target company, cross-reference facts that appear in more than one source, and prefer the company's own website over third-party sources. Do not include your reasoning in the output.

Rules:
1. Extract real data only. Never invent information.
2. If a field cannot be determined, use "" for text fields and [] for lists.
3. UK companies often list SIC codes and registration numbers on Companies House.
4. Return ONLY the JSON object. No markdown, no explanations.

Output schema:
{
  "company_name": "Official company name",
  "domain_status": "active, parked, redirecting or inactive",
  "company_registration_number": "",
  "vat_number": "",
  "acronym": "",
  "year_founded": "",
  "long_description": "Comprehensive 2-3 paragraph description: what the company does, mission, services, target market",
  "short_description": "One-sentence tagline, at most 200 characters",
  "industry": "Primary industry, e.g. Information Technology",
  "sub_industry": "Specific niche, e.g. Cybersecurity",
  "sector": "Business sector, e.g. Technology",
  "sic_code": "5-digit SIC code, e.g. 62020",
  "sic_text": "SIC description, e.g. Information technology consultancy activities",
  "service_type": "B2B, B2C or both",
  "tags": ["keyword"],
  "products_services": ["product or service"],
  "certifications": ["ISO 27001"],
  "tech_stack": ["technology"],
  "locations": ["City, Country"],
  "full_address": "",
  "hq_indicator": "Headquarters city or address",
  "contact_email": "",
  "contact_phone": "",
  "sales_phone": "",
  "fax": "",
  "mobile": "",
  "other_numbers": [],
  "hours_of_operation": "",
  "social_linkedin": "",
  "social_facebook": "",
  "social_twitter": "",
  "social_instagram": "",
  "social_youtube": "",
  "social_blog": "",
  "social_articles": [],
  "key_people": [{"name": "", "title": "", "role_category": "Executive, Management or Other", "email": "", "linkedin_url": ""}]
}`

const extractPrompt = `TARGET COMPANY: %s (%s)

=== SEARCH ENGINE RESULTS ===
%s

=== WEBSITE CONTENT ===
%s

Extract the company profile as JSON matching the schema.`

const fieldPrompt = `Extract one specific field for the company.

COMPANY: %s
FIELD TO EXTRACT: %s
FIELD DESCRIPTION: %s

SEARCH RESULTS:
%s

WEBSITE CONTENT:
%s

Instructions:
1. Extract ONLY the requested field value.
2. %s
3. If the value cannot be found, return an empty string "".
4. Do NOT make up information.

Return the extracted value only. No explanations.`

var fieldDescriptions = map[model.FieldName]string{
	model.FieldLongDescription:  "A comprehensive 2-3 paragraph description of what the company does, their mission, and services",
	model.FieldShortDescription: "A brief one-sentence description or tagline of the company",
	model.FieldSICCode:          "The Standard Industrial Classification (SIC) code number (e.g., 62020)",
	model.FieldSICText:          "The description for the SIC code (e.g., 'Information technology consultancy activities')",
	model.FieldSubIndustry:      "The specific sub-industry or niche the company operates in",
	model.FieldIndustry:         "The primary industry category (e.g., Information Technology, Healthcare)",
	model.FieldSector:           "The business sector (e.g., Technology, Finance, Retail)",
	model.ListTags:              "Relevant keywords describing the company's services and products",
}

func describeField(f model.FieldName) string {
	if d, ok := fieldDescriptions[f]; ok {
		return d
	}
	return strings.ReplaceAll(string(f), "_", " ")
}

// buildPrompt renders the full-profile user message.
func buildPrompt(ev Evidence, serpLimit, pageLimit int) string {
	return fmt.Sprintf(extractPrompt,
		ev.Target.Label(), ev.Target.Name,
		clip(formatSERP(ev.SERP, ev.Fields), serpLimit),
		clip(formatPages(ev.Pages), pageLimit),
	)
}

// buildFieldPrompt renders the single-field user message.
func buildFieldPrompt(target model.Target, field model.FieldName, serp string, pages []model.CrawledPage, serpLimit, pageLimit int) string {
	format := "Return the value as plain text."
	if model.IsListField(field) {
		format = `Return the value as a JSON array of strings: ["item1", "item2"].`
	}
	return fmt.Sprintf(fieldPrompt,
		target.Label(), field, describeField(field),
		clip(serp, serpLimit), clip(formatPages(pages), pageLimit), format,
	)
}

// formatSERP renders per-field search text in query order.
func formatSERP(serp map[string]string, order []string) string {
	var b strings.Builder
	seen := make(map[string]bool, len(serp))
	write := func(field string) {
		text := strings.TrimSpace(serp[field])
		if text == "" || seen[field] {
			return
		}
		seen[field] = true
		fmt.Fprintf(&b, "=== %s SEARCH ===\n%s\n\n", strings.ToUpper(field), clip(text, 4000))
	}
	for _, f := range order {
		write(f)
	}
	for _, f := range slices.Sorted(maps.Keys(serp)) {
		write(f)
	}
	return strings.TrimSpace(b.String())
}

func formatPages(pages []model.CrawledPage) string {
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "--- SOURCE: %s ---\n%s\n\n", p.URL, strings.TrimSpace(p.Markdown))
	}
	return strings.TrimSpace(b.String())
}

// clip truncates s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
