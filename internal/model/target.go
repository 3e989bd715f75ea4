package model

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Target is a single company or domain under research. Values are immutable
// once built by NewTarget.
type Target struct {
	Input  string `json:"input"`
	Key    string `json:"key"`
	Domain string `json:"domain,omitempty"`
	Name   string `json:"name"`
}

// NewTarget normalizes a raw identifier into a Target. The identifier may be a
// bare domain, a URL, or a company name.
func NewTarget(input string) (Target, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Target{}, NewValidationError("target", "identifier is empty")
	}

	t := Target{Input: raw}
	if host := hostOf(raw); host != "" {
		t.Domain = host
		t.Key = host
		t.Name = nameFromDomain(host)
		return t, nil
	}

	t.Key = strings.ToLower(strings.Join(strings.Fields(raw), " "))
	t.Name = raw
	return t, nil
}

// IsDomain reports whether the target was given as a domain or URL.
func (t Target) IsDomain() bool {
	return t.Domain != ""
}

// Label is the string used in queries and log lines.
func (t Target) Label() string {
	if t.Domain != "" {
		return t.Domain
	}
	return t.Name
}

// hostOf returns the lowercase host without a "www." prefix when s looks like
// a domain or URL, or "" otherwise.
func hostOf(s string) string {
	if strings.ContainsAny(s, " \t") {
		return ""
	}
	candidate := s
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") || strings.HasPrefix(host, ".") {
		return ""
	}
	return host
}

// nameFromDomain derives a display name from the first label of a domain:
// "acme-labs.co.uk" becomes "Acme Labs".
func nameFromDomain(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return cases.Title(language.English).String(label)
}
