// Package normalize cleans raw extracted values before they enter an
// ExtractionRecord. Placeholder tokens become absent values.
package normalize

import (
	"strings"

	"github.com/sells-group/atlas-research/internal/model"
)

// DefaultPlaceholders is the vocabulary used when none is configured.
var DefaultPlaceholders = []string{
	"not found",
	"n/a",
	"unknown",
	"none",
	"no information",
	"null",
	"",
}

// Normalizer drops placeholder values. It holds no mutable state and is safe
// for concurrent use.
type Normalizer struct {
	placeholders map[string]struct{}
}

// New creates a Normalizer for the given vocabulary. A nil or empty
// vocabulary falls back to DefaultPlaceholders. The empty string is always a
// placeholder.
func New(vocabulary []string) *Normalizer {
	if len(vocabulary) == 0 {
		vocabulary = DefaultPlaceholders
	}
	set := make(map[string]struct{}, len(vocabulary)+1)
	set[""] = struct{}{}
	for _, v := range vocabulary {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return &Normalizer{placeholders: set}
}

// IsPlaceholder reports whether v is empty or a vocabulary token after
// trimming and case folding.
func (n *Normalizer) IsPlaceholder(v string) bool {
	_, ok := n.placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Value returns the trimmed value and true, or "" and false for placeholders.
func (n *Normalizer) Value(v string) (string, bool) {
	if n.IsPlaceholder(v) {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Fields returns a new map holding only the non-placeholder entries of raw,
// trimmed. The input map is not modified.
func (n *Normalizer) Fields(raw map[model.FieldName]string) map[model.FieldName]string {
	out := make(map[model.FieldName]string, len(raw))
	for k, v := range raw {
		if clean, ok := n.Value(v); ok {
			out[k] = clean
		}
	}
	return out
}

// List trims every item, drops placeholders and duplicate items (first
// occurrence wins, compared case-insensitively). Returns nil when nothing
// survives.
func (n *Normalizer) List(items []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		clean, ok := n.Value(item)
		if !ok {
			continue
		}
		key := strings.ToLower(clean)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, clean)
	}
	return out
}

// Person cleans every attribute of p. The second return is false when the
// name itself is a placeholder, in which case the person should be dropped.
func (n *Normalizer) Person(p model.KeyPerson) (model.KeyPerson, bool) {
	name, ok := n.Value(p.Name)
	if !ok {
		return model.KeyPerson{}, false
	}
	out := model.KeyPerson{Name: name}
	out.Title, _ = n.Value(p.Title)
	out.RoleCategory, _ = n.Value(p.RoleCategory)
	out.Email, _ = n.Value(p.Email)
	out.LinkedInURL, _ = n.Value(p.LinkedInURL)
	return out, true
}

// People applies Person to each entry and keeps the survivors in order.
func (n *Normalizer) People(people []model.KeyPerson) []model.KeyPerson {
	var out []model.KeyPerson
	for _, p := range people {
		if clean, ok := n.Person(p); ok {
			out = append(out, clean)
		}
	}
	return out
}

// Record returns a normalized copy of r with every scalar, list and person
// cleaned. Empty lists are removed.
func (n *Normalizer) Record(r model.ExtractionRecord) model.ExtractionRecord {
	out := r
	out.Fields = n.Fields(r.Fields)
	out.Lists = make(map[model.FieldName][]string, len(r.Lists))
	for k, items := range r.Lists {
		if clean := n.List(items); len(clean) > 0 {
			out.Lists[k] = clean
		}
	}
	out.People = n.People(r.People)
	if len(r.Sources) > 0 {
		out.Sources = append([]string(nil), r.Sources...)
	}
	return out
}
