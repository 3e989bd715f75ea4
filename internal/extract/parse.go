package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
)

// aliases maps alternative keys the model sometimes emits to schema names.
var aliases = map[string]model.FieldName{
	"description_long":    model.FieldLongDescription,
	"description_short":   model.FieldShortDescription,
	"registration_number": model.FieldRegistrationNumber,
	"email":               model.FieldEmail,
	"phone":               model.FieldPhone,
	"linkedin":            model.FieldLinkedIn,
	"twitter":             model.FieldTwitter,
	"facebook":            model.FieldFacebook,
	"instagram":           model.FieldInstagram,
	"youtube":             model.FieldYouTube,
	"blog":                model.FieldBlog,
}

// cleanJSON extracts a JSON object from text that may carry markdown fences
// or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// parseRecord decodes the model's JSON answer into an un-normalized record.
func parseRecord(target model.Target, text string) (model.ExtractionRecord, error) {
	rec := model.NewExtractionRecord(target)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return rec, eris.Wrap(err, "extract: parse json")
	}

	for key, val := range raw {
		name := model.FieldName(strings.ToLower(strings.TrimSpace(key)))
		if alias, ok := aliases[string(name)]; ok {
			if _, dup := raw[string(alias)]; dup {
				continue
			}
			name = alias
		}

		switch {
		case name == model.FieldKeyPeople:
			rec.People = parsePeople(val)
		case model.IsListField(name):
			rec.Lists[name] = toList(val)
		case isScalarField(name):
			rec.Fields[name] = toString(val)
		}
	}
	return rec, nil
}

// parseFieldValue interprets a single-field answer. List fields accept a JSON
// array or a comma-separated line.
func parseFieldValue(field model.FieldName, text string) (string, []string) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.Trim(cleaned, "`")
	cleaned = strings.TrimSpace(cleaned)

	if !model.IsListField(field) {
		return strings.Trim(cleaned, `"'`), nil
	}

	if start, end := strings.Index(cleaned, "["), strings.LastIndex(cleaned, "]"); start >= 0 && end > start {
		var items []any
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err == nil {
			return "", toList(items)
		}
	}
	return "", splitList(strings.Trim(cleaned, `"'`))
}

func isScalarField(name model.FieldName) bool {
	for _, f := range model.ScalarFields() {
		if f == name {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		return strings.Join(toList(t), ", ")
	default:
		return fmt.Sprint(t)
	}
}

func toList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return splitList(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{toString(t)}
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePeople(v any) []model.KeyPerson {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var people []model.KeyPerson
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		people = append(people, model.KeyPerson{
			Name:         toString(m["name"]),
			Title:        toString(m["title"]),
			RoleCategory: toString(m["role_category"]),
			Email:        toString(m["email"]),
			LinkedInURL:  toString(m["linkedin_url"]),
		})
	}
	return people
}
