package core

import "time"

// ItemStatus is the lifecycle status of an Item. The full transition table
// lives in internal/lifecycle; core only defines the closed set of values.
type ItemStatus string

const (
	StatusPending     ItemStatus = "pending"      // Discovered, not yet extracted
	StatusExtracted   ItemStatus = "extracted"    // Content extracted and passed the quality gate
	StatusClassified  ItemStatus = "classified"   // Destination assigned by a provider
	StatusApproved    ItemStatus = "approved"     // Cleared for artifact generation
	StatusPublished   ItemStatus = "published"    // Terminal: artifact published
	StatusNeedsReview ItemStatus = "needs_review" // Parked for a human; retryable
	StatusRejected    ItemStatus = "rejected"     // Terminal: discarded by an operator
)

// FailureStage records which pipeline stage parked an item in needs_review,
// so a retry knows where to re-enter.
type FailureStage string

const (
	FailureNone           FailureStage = ""
	FailureExtraction     FailureStage = "extraction"
	FailureClassification FailureStage = "classification"
)

// Item is a single content candidate moving through the pipeline.
type Item struct {
	ID               string       `json:"id"`                    // Unique identifier
	URL              string       `json:"url"`                   // Raw URL as discovered (may be an aggregator redirect)
	CleanURL         string       `json:"clean_url"`             // Resolved canonical URL, empty until resolution runs
	Title            string       `json:"title"`                 // Title as discovered
	Publisher        string       `json:"publisher"`             // Publisher/source name
	Description      string       `json:"description"`           // Short description from the source, if any
	DiscoveredAt     time.Time    `json:"discovered_at"`         // When the item entered the system
	UpdatedAt        time.Time    `json:"updated_at"`            // Last mutation timestamp
	Status           ItemStatus   `json:"status"`                // Current lifecycle status
	StatusReason     string       `json:"status_reason"`         // Diagnostic for the last status change (required on failure paths)
	FailedStage      FailureStage `json:"failed_stage"`          // Which stage routed the item to needs_review
	IsValid          bool         `json:"is_valid"`              // Whether the URL parsed as a valid http(s) URL
	DuplicateGroupID string       `json:"duplicate_group_id"`    // Shared by clustered items, empty when ungrouped
	KnownDuplicate   bool         `json:"known_duplicate"`       // Pre-resolved duplicate, excluded from clustering
	Score            *float64     `json:"personalization_score"` // Nullable ranking score
}

// ExtractedContent is the extraction result for an Item, at most one per
// item (upsert keyed by ItemID).
type ExtractedContent struct {
	ItemID       string    `json:"item_id"`       // Owning item
	Markdown     string    `json:"markdown"`      // Extracted body as markdown
	CleanedText  string    `json:"cleaned_text"`  // Markdown with markup stripped, for scoring and prompts
	WordCount    int       `json:"word_count"`    // Words in CleanedText
	QualityScore float64   `json:"quality_score"` // Heuristic usefulness score, 0.0-1.0
	Source       string    `json:"source"`        // Which strategy produced the content ("reader" or "direct")
	Success      bool      `json:"success"`       // Whether extraction produced any content
	ErrorMessage string    `json:"error_message"` // Failure detail when Success is false
	ExtractedAt  time.Time `json:"extracted_at"`  // When extraction last ran
}

// Classification is the routing decision for an Item, at most one per item.
type Classification struct {
	ItemID       string    `json:"item_id"`          // Owning item
	Destination  string    `json:"destination"`      // Target category (e.g. "linkedin", "podcast", "archive", "needs_review")
	Confidence   float64   `json:"confidence_score"` // Provider confidence, 0.0-1.0
	Reasoning    string    `json:"reasoning"`        // Human-readable rationale from the provider
	Approved     bool      `json:"approved"`         // Operator approval flag
	Provider     string    `json:"provider"`         // Provider that produced the decision, empty for the fallback default
	ClassifiedAt time.Time `json:"classified_at"`    // When classification last ran
}

// ArtifactStatus is the publication state of a generated artifact.
type ArtifactStatus string

const (
	ArtifactDraft     ArtifactStatus = "draft"
	ArtifactPublished ArtifactStatus = "published"
)

// Artifact is a derivative piece generated from an item, zero-or-one active
// draft per item/target pair.
type Artifact struct {
	ID           string         `json:"id"`             // Unique identifier
	ItemID       string         `json:"item_id"`        // Owning item
	Target       string         `json:"target"`         // Destination surface (e.g. "linkedin", "podcast")
	Status       ArtifactStatus `json:"status"`         // draft or published
	Content      string         `json:"content"`        // Free-text body of the artifact
	Tone         string         `json:"tone"`           // Structured metadata: voice/tone used
	Tags         []string       `json:"tags"`           // Structured metadata: hashtags/topics
	CallToAction string         `json:"call_to_action"` // Structured metadata: closing CTA line
	Provider     string         `json:"provider"`       // Provider that generated the draft, empty for the local fallback
	GeneratedAt  time.Time      `json:"generated_at"`   // When the draft was generated
}

// Group is one computed duplicate cluster. Membership is derived at
// clustering time; only the group id is stamped back onto items.
type Group struct {
	ID    string `json:"id"`    // Synthetic group identifier
	Items []Item `json:"items"` // Members in first-seen order
	Best  Item   `json:"best"`  // Highest-scoring member, first-seen tie-break
}

// ItemFilter restricts item listings to the fixed query surface the
// pipeline is allowed to depend on: status, group id, and validity.
type ItemFilter struct {
	Status    ItemStatus // Empty matches all statuses
	GroupID   string     // Empty matches all groups
	OnlyValid bool       // Restrict to items with a valid URL
}

// IsTerminal reports whether a status admits no outgoing transitions.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// Valid reports whether s is one of the known status values.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusExtracted, StatusClassified, StatusApproved,
		StatusPublished, StatusNeedsReview, StatusRejected:
		return true
	}
	return false
}
