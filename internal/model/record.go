package model

import "time"

// FieldName identifies one fact in an ExtractionRecord.
type FieldName string

// Scalar fields.
const (
	FieldCompanyName        FieldName = "company_name"
	FieldDomainStatus       FieldName = "domain_status"
	FieldRegistrationNumber FieldName = "company_registration_number"
	FieldVATNumber          FieldName = "vat_number"
	FieldAcronym            FieldName = "acronym"
	FieldLogoURL            FieldName = "logo_url"
	FieldYearFounded        FieldName = "year_founded"

	FieldLongDescription  FieldName = "long_description"
	FieldShortDescription FieldName = "short_description"
	FieldIndustry         FieldName = "industry"
	FieldSubIndustry      FieldName = "sub_industry"
	FieldSector           FieldName = "sector"
	FieldSICCode          FieldName = "sic_code"
	FieldSICText          FieldName = "sic_text"
	FieldServiceType      FieldName = "service_type"

	FieldFullAddress FieldName = "full_address"
	FieldHQIndicator FieldName = "hq_indicator"
	FieldEmail       FieldName = "contact_email"
	FieldPhone       FieldName = "contact_phone"
	FieldSalesPhone  FieldName = "sales_phone"
	FieldFax         FieldName = "fax"
	FieldMobile      FieldName = "mobile"
	FieldHours       FieldName = "hours_of_operation"

	FieldLinkedIn  FieldName = "social_linkedin"
	FieldFacebook  FieldName = "social_facebook"
	FieldTwitter   FieldName = "social_twitter"
	FieldInstagram FieldName = "social_instagram"
	FieldYouTube   FieldName = "social_youtube"
	FieldBlog      FieldName = "social_blog"
)

// List fields.
const (
	ListTags           FieldName = "tags"
	ListProducts       FieldName = "products_services"
	ListCertifications FieldName = "certifications"
	ListLocations      FieldName = "locations"
	ListOtherNumbers   FieldName = "other_numbers"
	ListArticles       FieldName = "social_articles"
	ListTechStack      FieldName = "tech_stack"
)

// FieldKeyPeople is the name under which key people are extracted.
const FieldKeyPeople FieldName = "key_people"

// ScalarFields returns every scalar field in schema order.
func ScalarFields() []FieldName {
	return []FieldName{
		FieldCompanyName, FieldDomainStatus, FieldRegistrationNumber, FieldVATNumber,
		FieldAcronym, FieldLogoURL, FieldYearFounded,
		FieldLongDescription, FieldShortDescription, FieldIndustry, FieldSubIndustry,
		FieldSector, FieldSICCode, FieldSICText, FieldServiceType,
		FieldFullAddress, FieldHQIndicator, FieldEmail, FieldPhone, FieldSalesPhone,
		FieldFax, FieldMobile, FieldHours,
		FieldLinkedIn, FieldFacebook, FieldTwitter, FieldInstagram, FieldYouTube, FieldBlog,
	}
}

// ListFields returns every list field in schema order.
func ListFields() []FieldName {
	return []FieldName{
		ListTags, ListProducts, ListCertifications, ListLocations,
		ListOtherNumbers, ListArticles, ListTechStack,
	}
}

// IsListField reports whether name holds a list of values.
func IsListField(name FieldName) bool {
	for _, f := range ListFields() {
		if f == name {
			return true
		}
	}
	return false
}

// CriticalFields must be populated for a profile to count as sufficient.
func CriticalFields() []FieldName {
	return []FieldName{FieldLongDescription, FieldIndustry, FieldSector}
}

// ImportantFields should be populated but do not block completion.
func ImportantFields() []FieldName {
	return []FieldName{FieldShortDescription, FieldSICCode, FieldSICText, FieldSubIndustry, ListTags}
}

// KeyPerson is one named individual associated with a company.
type KeyPerson struct {
	Name         string `json:"name" yaml:"name"`
	Title        string `json:"title,omitempty" yaml:"title,omitempty"`
	RoleCategory string `json:"role_category,omitempty" yaml:"role_category,omitempty"`
	Email        string `json:"email,omitempty" yaml:"email,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty" yaml:"linkedin_url,omitempty"`
}

// ExtractionRecord is the normalized fact set for one target. A field missing
// from Fields or Lists is absent; present values are never placeholders.
type ExtractionRecord struct {
	Target      Target                 `json:"target" yaml:"target"`
	Fields      map[FieldName]string   `json:"fields" yaml:"fields"`
	Lists       map[FieldName][]string `json:"lists" yaml:"lists"`
	People      []KeyPerson            `json:"people" yaml:"people"`
	Sources     []string               `json:"sources,omitempty" yaml:"sources,omitempty"`
	ExtractedAt time.Time              `json:"extracted_at" yaml:"extracted_at"`
}

// NewExtractionRecord returns an empty record for t.
func NewExtractionRecord(t Target) ExtractionRecord {
	return ExtractionRecord{
		Target: t,
		Fields: make(map[FieldName]string),
		Lists:  make(map[FieldName][]string),
	}
}

// Get returns a scalar field and whether it is present.
func (r ExtractionRecord) Get(name FieldName) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Value returns a scalar field or "" when absent.
func (r ExtractionRecord) Value(name FieldName) string {
	return r.Fields[name]
}

// List returns a list field, nil when absent.
func (r ExtractionRecord) List(name FieldName) []string {
	return r.Lists[name]
}

// Has reports whether a scalar or list field carries data.
func (r ExtractionRecord) Has(name FieldName) bool {
	if name == FieldKeyPeople {
		return len(r.People) > 0
	}
	if IsListField(name) {
		return len(r.Lists[name]) > 0
	}
	_, ok := r.Fields[name]
	return ok
}
