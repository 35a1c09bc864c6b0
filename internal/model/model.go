// Package model holds the core data-model types shared across every
// subsystem of a run, with no business logic attached to them.
package model

import "time"

// FileRecord describes one file discovered by the walker during a run.
// Records are immutable for the lifetime of the run that produced them.
type FileRecord struct {
	CanonicalPath string `json:"canonical_path"`
	AbsolutePath  string `json:"-"`
	Digest        string `json:"digest"`
	SizeBytes     int64  `json:"size_bytes"`
	MtimeNs       int64  `json:"mtime_ns"`
	LineCount     int    `json:"line_count"`
	Language      string `json:"language"`
	Cached        bool   `json:"cached"`
	Synopsis      string `json:"synopsis,omitempty"`
}

// CacheEntry is the persisted, cross-run record of a file as last seen.
type CacheEntry struct {
	CanonicalPath          string `json:"canonical_path"`
	Digest                 string `json:"digest"`
	SizeBytes              int64  `json:"size_bytes"`
	MtimeNs                int64  `json:"mtime_ns"`
	LastSeenRunID          string `json:"last_seen_run_id"`
	ExtractionEventsDigest string `json:"extraction_events_digest"`
}

// DeltaState classifies how a file changed between the prior cache state
// and the current walk.
type DeltaState string

const (
	DeltaAdded     DeltaState = "added"
	DeltaChanged   DeltaState = "changed"
	DeltaRemoved   DeltaState = "removed"
	DeltaUnchanged DeltaState = "unchanged"
)

// DeltaRecord is one entry in the per-run delta report, one per union of
// previous cache keys and current FileRecords.
type DeltaRecord struct {
	CanonicalPath  string     `json:"canonical_path"`
	State          DeltaState `json:"state"`
	PreviousDigest string     `json:"previous_digest,omitempty"`
	CurrentDigest  string     `json:"current_digest,omitempty"`
}

// NodeKind enumerates the closed set of knowledge-graph node kinds.
type NodeKind string

const (
	NodeRun        NodeKind = "run"
	NodeFile       NodeKind = "file"
	NodeModule     NodeKind = "module"
	NodeFunction   NodeKind = "function"
	NodeClass      NodeKind = "class"
	NodeTest       NodeKind = "test"
	NodeDependency NodeKind = "dependency"
	NodeArtifact   NodeKind = "artifact"
	NodeAsset      NodeKind = "asset"
	NodeAssetCard  NodeKind = "asset_card"
)

// Node is one vertex of the knowledge graph.
type Node struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind"`
	Label      string         `json:"label"`
	Attributes map[string]any `json:"attributes"`
	Provenance []string       `json:"provenance"`
}

// RelationshipKind enumerates the closed set of knowledge-graph edge kinds.
type RelationshipKind string

const (
	RelContains  RelationshipKind = "contains"
	RelImports   RelationshipKind = "imports"
	RelDependsOn RelationshipKind = "depends_on"
	RelTests     RelationshipKind = "tests"
	RelDefines   RelationshipKind = "defines"
	RelDerives   RelationshipKind = "derives"
	RelDescribes RelationshipKind = "describes"
	RelProduces  RelationshipKind = "produces"
)

// Relationship is one directed, typed edge of the knowledge graph.
type Relationship struct {
	ID       string           `json:"id"`
	SourceID string           `json:"source_id"`
	TargetID string           `json:"target_id"`
	Kind     RelationshipKind `json:"kind"`
}

// BundleUnit is one FileRecord included in a bundle, located by byte and
// line offset within the bundle's concatenated text.
type BundleUnit struct {
	Path        string `json:"unit_path"`
	ByteOffset  int64  `json:"byte_offset"`
	LineOffset  int    `json:"line_offset"`
	LengthBytes int64  `json:"length_bytes"`
	LengthLines int    `json:"length_lines"`
	Oversized   bool   `json:"oversized,omitempty"`
}

// EntityEventKind enumerates the closed set of entity-extractor event
// kinds. Extraction is a tagged variant over this set, never an
// open-ended polymorphic hierarchy.
type EntityEventKind string

const (
	EventModuleDeclared   EntityEventKind = "module_declared"
	EventFunctionDeclared EntityEventKind = "function_declared"
	EventClassDeclared    EntityEventKind = "class_declared"
	EventTestDeclared     EntityEventKind = "test_declared"
	EventImportObserved   EntityEventKind = "import_observed"
	EventFixtureDeclared  EntityEventKind = "fixture_declared"
)

// EntityEvent is one fact emitted by the entity extractor for a single
// file. QualifiedName identifies the declared entity (module/function/
// class/test/fixture); Target carries the import path for
// ImportObserved events. ParentQualifiedName names the nearest enclosing
// module/class so the graph builder can wire single-parent containment.
type EntityEvent struct {
	Kind                EntityEventKind `json:"kind"`
	QualifiedName       string          `json:"qualified_name,omitempty"`
	ParentQualifiedName string          `json:"parent_qualified_name,omitempty"`
	Target              string          `json:"target,omitempty"`
	StartLine           int             `json:"start_line,omitempty"`
	EndLine             int             `json:"end_line,omitempty"`
	Doc                 string          `json:"doc,omitempty"`
}

// ExtractionResult is the digest-memoized output of running the entity
// extractor over one file: the event list plus the synopsis used by the
// bundle builder's header. The synopsis lives in this blob so a cache
// hit never re-derives it.
type ExtractionResult struct {
	Events        []EntityEvent `json:"events"`
	Synopsis      string        `json:"synopsis"`
	Degraded      bool          `json:"degraded,omitempty"`
	DegradeReason string        `json:"degrade_reason,omitempty"`
}

// DependencyScope classifies how a declared dependency is used.
type DependencyScope string

const (
	ScopeRuntime  DependencyScope = "runtime"
	ScopeDev      DependencyScope = "dev"
	ScopeOptional DependencyScope = "optional"
)

// DependencyEvent is one normalized dependency declaration observed in a
// manifest file. VersionSpec is empty when the manifest does not pin
// one.
type DependencyEvent struct {
	Package      string          `json:"package"`
	VersionSpec  string          `json:"version_spec,omitempty"`
	Scope        DependencyScope `json:"scope"`
	ManifestPath string          `json:"manifest_path"`
	OwningModule string          `json:"owning_module"`
}

// ArtifactRecord is one entry in the manifest's artifact registry.
type ArtifactRecord struct {
	Kind         string `json:"kind"`
	RelativePath string `json:"relative_path"`
	Digest       string `json:"digest"`
}

// Environment captures the platform the run executed on.
type Environment struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
}

// Manifest is the run-level record of everything a run produced.
type Manifest struct {
	RunID                string           `json:"run_id"`
	TimestampUTC         time.Time        `json:"timestamp_utc"`
	ToolVersion          string           `json:"tool_version"`
	ConfigVersion        string           `json:"config_version"`
	Seed                 string           `json:"seed"`
	ResolvedConfigDigest string           `json:"resolved_config_digest"`
	Environment          Environment      `json:"environment"`
	FileRecords          []FileRecord     `json:"file_records"`
	Artifacts            []ArtifactRecord `json:"artifacts"`
	Skipped              []SkippedStage   `json:"skipped,omitempty"`
}

// SkippedStage records that a pipeline stage was explicitly skipped
// rather than run; skips are registered in the manifest, never silent.
type SkippedStage struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}
