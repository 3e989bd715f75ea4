// Package report shapes research outcomes into the profile and workbook
// forms consumed by exporters. Assembly is pure; file output lives in
// Exporter.
package report

import (
	"fmt"

	"github.com/sells-group/atlas-research/internal/model"
)

// maxProducts bounds the product nodes added to a knowledge graph.
const maxProducts = 5

// Node is one entity in a company knowledge graph.
type Node struct {
	ID         string            `json:"id" yaml:"id"`
	Label      string            `json:"label" yaml:"label"`
	Type       string            `json:"type" yaml:"type"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Edge links two nodes.
type Edge struct {
	Source   string `json:"source" yaml:"source"`
	Target   string `json:"target" yaml:"target"`
	Relation string `json:"relation" yaml:"relation"`
}

// Graph is the company-centred knowledge graph of a profile.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Profile is the single-target report.
type Profile struct {
	Record  model.ExtractionRecord `json:"record" yaml:"record"`
	LogoURL string                 `json:"logo_url,omitempty" yaml:"logo_url,omitempty"`
	Graph   Graph                  `json:"graph" yaml:"graph"`
	Usage   model.Usage            `json:"usage" yaml:"usage"`
}

// Report is the assembled output of one or more outcomes. Profile is set
// only for a single successful outcome.
type Report struct {
	Profile  *Profile  `json:"profile,omitempty"`
	Workbook Workbook  `json:"-"`
	Count    int       `json:"count"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure names a target that produced no record.
type Failure struct {
	Target string      `json:"target"`
	Phase  model.Phase `json:"phase,omitempty"`
	Reason string      `json:"reason"`
}

// Assemble builds a report from outcomes in input order.
func Assemble(outcomes []model.Outcome) Report {
	rep := Report{
		Workbook: BuildWorkbook(outcomes),
		Count:    len(outcomes),
	}
	for _, o := range outcomes {
		if !o.Succeeded() {
			rep.Failures = append(rep.Failures, Failure{
				Target: o.Target.Label(),
				Phase:  o.FailedIn,
				Reason: o.Failure,
			})
		}
	}
	if len(outcomes) == 1 && outcomes[0].Succeeded() {
		p := NewProfile(*outcomes[0].Record)
		p.Usage = outcomes[0].Usage
		rep.Profile = &p
	}
	return rep
}

// NewProfile wraps rec with its logo and knowledge graph.
func NewProfile(rec model.ExtractionRecord) Profile {
	return Profile{
		Record:  rec,
		LogoURL: rec.Value(model.FieldLogoURL),
		Graph:   BuildGraph(rec),
	}
}

// BuildGraph derives the knowledge graph of rec: the company at the root,
// people working there, its first products and its locations.
func BuildGraph(rec model.ExtractionRecord) Graph {
	const root = "node_company"

	name := rec.Value(model.FieldCompanyName)
	if name == "" {
		name = rec.Target.Name
	}
	props := map[string]string{}
	if v := rec.Value(model.FieldIndustry); v != "" {
		props["industry"] = v
	}
	if rec.Target.Domain != "" {
		props["domain"] = rec.Target.Domain
	}

	g := Graph{Nodes: []Node{{ID: root, Label: name, Type: "Company", Properties: props}}}

	for i, p := range rec.People {
		id := fmt.Sprintf("node_person_%d", i)
		node := Node{ID: id, Label: p.Name, Type: "Person"}
		if p.Title != "" {
			node.Properties = map[string]string{"title": p.Title}
		}
		g.Nodes = append(g.Nodes, node)
		g.Edges = append(g.Edges, Edge{Source: id, Target: root, Relation: "works_at"})
	}

	for i, prod := range rec.List(model.ListProducts) {
		if i >= maxProducts {
			break
		}
		id := fmt.Sprintf("node_product_%d", i)
		g.Nodes = append(g.Nodes, Node{ID: id, Label: prod, Type: "Product"})
		g.Edges = append(g.Edges, Edge{Source: root, Target: id, Relation: "produces"})
	}

	for i, loc := range rec.List(model.ListLocations) {
		id := fmt.Sprintf("node_location_%d", i)
		g.Nodes = append(g.Nodes, Node{ID: id, Label: loc, Type: "Location"})
		g.Edges = append(g.Edges, Edge{Source: root, Target: id, Relation: "located_at"})
	}
	return g
}
