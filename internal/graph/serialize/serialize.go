// Package serialize renders a graph.Graph to the run's two on-disk
// graph formats: JSON-LD (a `@context` prefix map plus sorted node
// and relationship arrays) and GraphML via encoding/xml. Both outputs
// are byte-stable for identical graphs: UTF-8, LF-terminated,
// key-sorted.
package serialize

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/c360studio/codetrail/internal/graph"
	"github.com/c360studio/codetrail/internal/model"
)

// defaultContext mirrors export/rdf.go's defaultPrefixes: a small,
// fixed set of well-known namespace prefixes plus one for this tool's
// own node/relationship vocabulary.
func defaultContext() map[string]string {
	return map[string]string{
		"rdf":       "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		"rdfs":      "http://www.w3.org/2000/01/rdf-schema#",
		"xsd":       "http://www.w3.org/2001/XMLSchema#",
		"prov":      "http://www.w3.org/ns/prov#",
		"codetrail": "https://codetrail.dev/graph/",
	}
}

// JSONLD renders g as JSON-LD: nodes sorted by ID, relationships
// sorted by (source_id, kind, target_id), object keys sorted by
// encoding/json's built-in map-key ordering.
func JSONLD(g *graph.Graph) ([]byte, error) {
	nodes := append([]model.Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	rels := append([]model.Relationship(nil), g.Relationships...)
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].Kind != rels[j].Kind {
			return rels[i].Kind < rels[j].Kind
		}
		return rels[i].TargetID < rels[j].TargetID
	})

	doc := struct {
		Context       map[string]string    `json:"@context"`
		Nodes         []model.Node         `json:"nodes"`
		Relationships []model.Relationship `json:"relationships"`
	}{Context: defaultContext(), Nodes: nodes, Relationships: rels}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GraphML XML element shapes. Attribute keys are declared before any
// node/edge data.
type graphmlDocument struct {
	XMLName xml.Name     `xml:"graphml"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphmlData `xml:"data"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

const (
	keyNodeKind  = "k_kind"
	keyNodeLabel = "k_label"
	keyEdgeKind  = "k_edge_kind"
)

// GraphML renders g as GraphML XML with identical node/edge ordering to
// JSONLD.
func GraphML(g *graph.Graph) ([]byte, error) {
	nodes := append([]model.Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	rels := append([]model.Relationship(nil), g.Relationships...)
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].Kind != rels[j].Kind {
			return rels[i].Kind < rels[j].Kind
		}
		return rels[i].TargetID < rels[j].TargetID
	})

	doc := graphmlDocument{
		Keys: []graphmlKey{
			{ID: keyNodeKind, For: "node", Name: "kind", Type: "string"},
			{ID: keyNodeLabel, For: "node", Name: "label", Type: "string"},
			{ID: keyEdgeKind, For: "edge", Name: "kind", Type: "string"},
		},
		Graph: graphmlGraph{EdgeDefault: "directed"},
	}

	for _, n := range nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphmlNode{
			ID: n.ID,
			Data: []graphmlData{
				{Key: keyNodeKind, Value: string(n.Kind)},
				{Key: keyNodeLabel, Value: n.Label},
			},
		})
	}
	for _, r := range rels {
		doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{
			ID:     r.ID,
			Source: r.SourceID,
			Target: r.TargetID,
			Data:   []graphmlData{{Key: keyEdgeKind, Value: string(r.Kind)}},
		})
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode graphml: %w", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
