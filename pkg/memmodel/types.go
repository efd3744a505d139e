// Package memmodel defines the data model shared by every component of the
// conversation memory engine (episodes, facts, actions) and the pluggable
// capability interfaces (Embedder, VectorStore, LlmProvider) the engine is
// built against. Nothing in this package performs I/O.
package memmodel

import "time"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of raw conversation. Immutable once constructed.
// Timestamp may be the zero value — callers must treat that as epoch-zero
// for gap math rather than rejecting the message.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// ProjectContext grounds prompts sent to the LLM. It is never persisted
// inside a fact.
type ProjectContext struct {
	WorkspaceName  string
	Language       string
	Framework      string
	PackageManager string
}

// ToolInvocation optionally enriches the window passed to the FactExtractor
// with the name/params/result of a tool call that produced the assistant's
// response.
type ToolInvocation struct {
	Name       string
	Params     string
	ResultText string
}

// Episode is a contiguous run of messages treated as one conversational unit.
//
// Invariant: EpisodeID depends only on the episode's anchor — its first
// message content (first 120 bytes) and first timestamp, plus the workspace
// — never on messages appended later. Appending messages to the same
// conversation and re-detecting must yield the same ID for that anchor.
type Episode struct {
	EpisodeID          string
	WorkspaceID        string
	Messages           []Message
	StartTime          time.Time
	EndTime            time.Time
	MessageCount       int
	ContextDescription string
}

// ReferenceTime returns the time against which this episode's facts should
// be scored for recency; per spec it is always the episode's end time.
func (e *Episode) ReferenceTime() time.Time {
	return e.EndTime
}

// FactCategory drives conflict-resolution policy and temporal decay.
// New categories require explicit policy additions in pkg/temporal and
// pkg/resolver — there is deliberately no "open" extension point.
type FactCategory string

const (
	CategoryInfrastructure FactCategory = "infrastructure"
	CategoryArchitecture   FactCategory = "architecture"
	CategoryDebugging      FactCategory = "debugging"
	CategoryPattern        FactCategory = "pattern"
)

// KnownCategory reports whether c is one of the four categories the engine
// has an explicit policy for.
func KnownCategory(c FactCategory) bool {
	switch c {
	case CategoryInfrastructure, CategoryArchitecture, CategoryDebugging, CategoryPattern:
		return true
	default:
		return false
	}
}

// CategorizedFactInput is a fact as produced by extraction, before it has
// been assigned storage-level identity (id, ingestion time, workspace).
type CategorizedFactInput struct {
	Content            string
	Category           FactCategory
	Confidence         float64
	Embedding          []float32
	ReferenceTime      time.Time
	ContextDescription string
	EpisodeID          string
	SourceModel        string
}

// EffectiveConfidence returns Confidence, or the 0.7 default per §3 when it
// is unset (zero value).
func (f *CategorizedFactInput) EffectiveConfidence() float64 {
	if f.Confidence == 0 {
		return 0.7
	}
	return f.Confidence
}

// HasEmbedding reports whether the candidate carries a usable embedding.
func (f *CategorizedFactInput) HasEmbedding() bool {
	return len(f.Embedding) > 0
}

// ConversationFact is a fact as stored: the extraction input plus identity,
// provenance, and lifecycle fields.
//
// Invariant: exactly one of {active, superseded, resolved} holds at any
// time. SupersededBy, if set, must name an existing fact's ID. Resolved
// implies ResolvedAt is set. IngestionTime >= ReferenceTime whenever both
// are known.
type ConversationFact struct {
	CategorizedFactInput

	ID                 string
	IngestionTime      time.Time
	WorkspaceID        string
	WorkspacePath      string
	ProjectContext     ProjectContext
	ConversationID     string
	Metadata           map[string]string

	SupersededBy           string
	SupersededAt           time.Time
	Resolved               bool
	ResolvedAt             time.Time
	DerivedFrom            string
	DerivedPatternCreated  bool
	LastConfirmed          time.Time
}

// Active reports whether the fact is neither superseded nor resolved.
func (f *ConversationFact) Active() bool {
	return f.SupersededBy == "" && !f.Resolved
}

// ActionType tags the decision a ConflictResolver makes for a candidate fact.
type ActionType string

const (
	ActionAdd             ActionType = "ADD"
	ActionIgnore          ActionType = "IGNORE"
	ActionSupersede       ActionType = "SUPERSEDE"
	ActionDeleteExisting  ActionType = "DELETE_EXISTING"
	ActionUpdate          ActionType = "UPDATE"
)

// MemoryAction is the outcome of conflict resolution: what to do with a
// candidate fact, and which stored fact IDs (if any) it targets.
type MemoryAction struct {
	Type      ActionType
	Fact      CategorizedFactInput
	TargetIDs []string
}
