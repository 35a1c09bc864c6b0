// Package card composes explain cards: per-scope Markdown
// documents generated strictly from the knowledge graph, the metrics
// bundle, and the manifest. Template mode is the only built-in
// composer; an optional local adapter may refine the prose, and its
// absence degrades to template mode with a template-fallback status —
// never a network call.
package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/metrics"
	"github.com/c360studio/codetrail/internal/model"
)

// Scope is the closed set of explain-card scopes.
type Scope string

const (
	ScopeArchitecture Scope = "architecture"
	ScopeQuality      Scope = "quality"
	ScopeTests        Scope = "tests"
)

// Scopes lists every scope in the stable order cards are generated.
var Scopes = []Scope{ScopeArchitecture, ScopeQuality, ScopeTests}

// Status records how a card's prose was produced.
type Status string

const (
	StatusTemplate         Status = "template"
	StatusTemplateFallback Status = "template-fallback"
)

// ReviewEntry is one entry in a card's review history. Every new card
// starts with a single review_pending entry.
type ReviewEntry struct {
	State string `json:"state"`
	Note  string `json:"note,omitempty"`
}

// Traceability lists the inputs a card's claims trace back to. Cards
// reference node IDs by value; they never own graph nodes.
type Traceability struct {
	NodeIDs     []string `json:"node_ids"`
	BundleSeqs  []string `json:"bundle_seqs"`
	MetricsKeys []string `json:"metrics_keys"`
}

// Card is one composed explain card plus its JSON sidecar fields.
type Card struct {
	ID             string        `json:"id"`
	Scope          Scope         `json:"scope"`
	Status         Status        `json:"status"`
	SubgraphDigest string        `json:"subgraph_digest"`
	Traceability   Traceability  `json:"traceability"`
	ReviewHistory  []ReviewEntry `json:"review_history"`
	Markdown       string        `json:"-"`
}

// Adapter optionally refines a template card's prose with a local
// model. Availability is probed once per run; an unavailable adapter
// is indistinguishable from a nil one.
type Adapter interface {
	Available() bool
	Refine(scope Scope, templateMarkdown string) (string, error)
}

// Input is everything the generator consumes for one run.
type Input struct {
	Graph      *graph.Graph
	Metrics    *metrics.Bundle
	Manifest   *model.Manifest
	BundleSeqs map[string][]int // preset -> produced sequence numbers
	Adapter    Adapter
}

// scopeNodeKinds selects which node kinds each scope's subgraph covers.
var scopeNodeKinds = map[Scope]map[model.NodeKind]bool{
	ScopeArchitecture: {model.NodeModule: true, model.NodeFile: true, model.NodeDependency: true},
	ScopeQuality:      {model.NodeFile: true},
	ScopeTests:        {model.NodeTest: true, model.NodeModule: true},
}

// Generate composes one card per scope, in stable scope order.
func Generate(in Input) []Card {
	cards := make([]Card, 0, len(Scopes))
	for _, scope := range Scopes {
		cards = append(cards, generateOne(scope, in))
	}
	return cards
}

func generateOne(scope Scope, in Input) Card {
	nodeIDs := selectNodes(scope, in.Graph)
	subDigest := subgraphDigest(scope, nodeIDs)

	card := Card{
		ID:             digest.NodeID(string(scope), subDigest),
		Scope:          scope,
		Status:         StatusTemplateFallback,
		SubgraphDigest: subDigest,
		Traceability: Traceability{
			NodeIDs:     nodeIDs,
			BundleSeqs:  bundleSeqRefs(in.BundleSeqs),
			MetricsKeys: metricsKeys(in.Metrics),
		},
		ReviewHistory: []ReviewEntry{{State: "review_pending"}},
	}

	card.Markdown = render(scope, card, in)

	if in.Adapter != nil && in.Adapter.Available() {
		refined, err := in.Adapter.Refine(scope, card.Markdown)
		if err == nil {
			card.Markdown = refined
			card.Status = StatusTemplate
		}
	}

	return card
}

func selectNodes(scope Scope, g *graph.Graph) []string {
	if g == nil {
		return []string{}
	}
	allowed := scopeNodeKinds[scope]
	ids := make([]string, 0)
	for _, n := range g.Nodes {
		if allowed[n.Kind] {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func subgraphDigest(scope Scope, nodeIDs []string) string {
	return digest.Bytes([]byte(string(scope) + "\x1f" + strings.Join(nodeIDs, "\x1f")))
}

func bundleSeqRefs(seqs map[string][]int) []string {
	refs := make([]string, 0)
	for preset, numbers := range seqs {
		for _, n := range numbers {
			refs = append(refs, fmt.Sprintf("%s-%d", preset, n))
		}
	}
	sort.Strings(refs)
	return refs
}

func metricsKeys(b *metrics.Bundle) []string {
	keys := make([]string, 0)
	if b == nil {
		return keys
	}
	if b.Tests != nil {
		keys = append(keys, "tests")
	}
	if b.Coverage != nil {
		keys = append(keys, "coverage")
	}
	if b.Lint != nil {
		keys = append(keys, "lint")
	}
	if b.Security != nil {
		keys = append(keys, "security")
	}
	return keys
}

func countKind(g *graph.Graph, kind model.NodeKind) int {
	if g == nil {
		return 0
	}
	n := 0
	for _, node := range g.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func render(scope Scope, card Card, in Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Explain card: %s\n\n", scope)

	sb.WriteString("## Summary\n\n")
	sb.WriteString(summary(scope, in))
	sb.WriteString("\n\n")

	sb.WriteString("## Rationale\n\n")
	sb.WriteString(rationale(scope, in))
	sb.WriteString("\n\n")

	sb.WriteString("## Edge Cases\n\n")
	sb.WriteString(edgeCases(scope, in))
	sb.WriteString("\n\n")

	sb.WriteString("## Traceability\n\n")
	writeList(&sb, "Nodes", card.Traceability.NodeIDs)
	writeList(&sb, "Bundles", card.Traceability.BundleSeqs)
	writeList(&sb, "Metrics", card.Traceability.MetricsKeys)

	return sb.String()
}

func summary(scope Scope, in Input) string {
	switch scope {
	case ScopeArchitecture:
		return fmt.Sprintf("The scanned tree contains %d files organized into %d modules, with %d external dependencies observed.",
			countKind(in.Graph, model.NodeFile), countKind(in.Graph, model.NodeModule), countKind(in.Graph, model.NodeDependency))
	case ScopeQuality:
		if in.Metrics == nil || (in.Metrics.Tests == nil && in.Metrics.Coverage == nil && in.Metrics.Lint == nil && in.Metrics.Security == nil) {
			return "No quality metrics were supplied for this run."
		}
		parts := []string{}
		if in.Metrics.Tests != nil {
			parts = append(parts, fmt.Sprintf("%d of %d tests passed", in.Metrics.Tests.Passed, in.Metrics.Tests.Total))
		}
		if in.Metrics.Coverage != nil {
			parts = append(parts, fmt.Sprintf("line coverage is %.2f%%", in.Metrics.Coverage.LinePercent))
		}
		if in.Metrics.Lint != nil {
			parts = append(parts, fmt.Sprintf("%d lint findings", in.Metrics.Lint.Total))
		}
		if in.Metrics.Security != nil {
			parts = append(parts, fmt.Sprintf("%d security findings", in.Metrics.Security.Total))
		}
		return strings.Join(parts, "; ") + "."
	case ScopeTests:
		return fmt.Sprintf("The graph records %d test declarations across %d modules.",
			countKind(in.Graph, model.NodeTest), countKind(in.Graph, model.NodeModule))
	}
	return ""
}

func rationale(scope Scope, in Input) string {
	switch scope {
	case ScopeArchitecture:
		return "Module boundaries follow the directory structure of the scanned tree; containment edges in the knowledge graph carry the authoritative shape."
	case ScopeQuality:
		return "Metrics are normalized from externally supplied records and evaluated against the configured thresholds in the gate report."
	case ScopeTests:
		return "Test declarations were extracted per file and linked to the modules they exercise; coverage, where supplied, refines this picture per file."
	}
	return ""
}

func edgeCases(scope Scope, in Input) string {
	switch scope {
	case ScopeArchitecture:
		return "Files whose extraction degraded carry only a module declaration; their functions and classes are absent from the graph."
	case ScopeQuality:
		return "Thresholds without a backing metric source are reported as not evaluated and do not affect the overall verdict."
	case ScopeTests:
		return "Test files recognized by path convention but failing extraction contribute no test nodes."
	}
	return ""
}

func writeList(sb *strings.Builder, title string, items []string) {
	fmt.Fprintf(sb, "### %s\n\n", title)
	if len(items) == 0 {
		sb.WriteString("_none_\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(sb, "- `%s`\n", item)
	}
	sb.WriteString("\n")
}

// IndexEntry is one row of cards/index.json.
type IndexEntry struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`
	Path  string `json:"path"`
}

// MarshalIndex renders the card index sorted by scope order.
func MarshalIndex(cards []Card) ([]byte, error) {
	entries := make([]IndexEntry, 0, len(cards))
	for _, c := range cards {
		entries = append(entries, IndexEntry{ID: c.ID, Scope: c.Scope, Path: c.ID + ".md"})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalSidecar renders one card's JSON sidecar.
func MarshalSidecar(c Card) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
