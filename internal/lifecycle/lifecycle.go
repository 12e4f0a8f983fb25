// Package lifecycle owns item status transitions. Every legal edge lives in
// an explicit transition table; anything not in the table is rejected with a
// typed error, and no failure state is ever entered without a diagnostic.
package lifecycle

import (
	"fmt"
	"time"

	"curator/internal/core"
)

// transitions is the closed transition table. needs_review and rejected are
// reachable from every non-terminal state; published and rejected have no
// outgoing edges.
var transitions = map[core.ItemStatus][]core.ItemStatus{
	core.StatusPending:     {core.StatusExtracted, core.StatusNeedsReview, core.StatusRejected},
	core.StatusExtracted:   {core.StatusClassified, core.StatusNeedsReview, core.StatusRejected},
	core.StatusClassified:  {core.StatusApproved, core.StatusNeedsReview, core.StatusRejected},
	core.StatusApproved:    {core.StatusPublished, core.StatusNeedsReview, core.StatusRejected},
	core.StatusNeedsReview: {core.StatusPending, core.StatusExtracted, core.StatusRejected},
	core.StatusPublished:   {},
	core.StatusRejected:    {},
}

// ErrIllegalTransition identifies a transition not present in the table.
type ErrIllegalTransition struct {
	From core.ItemStatus
	To   core.ItemStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// Manager applies transitions and the extraction quality gate.
type Manager struct {
	qualityFloor float64 // Minimum quality score for extraction to count as success
}

// NewManager creates a Manager with the configured quality floor.
func NewManager(qualityFloor float64) *Manager {
	return &Manager{qualityFloor: qualityFloor}
}

// CanTransition reports whether from -> to is in the transition table.
func (m *Manager) CanTransition(from, to core.ItemStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves item to the target status, recording reason. Transitions
// into needs_review or rejected require a non-empty reason; the table is
// enforced for every call.
func (m *Manager) Transition(item *core.Item, to core.ItemStatus, reason string) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if !m.CanTransition(item.Status, to) {
		return &ErrIllegalTransition{From: item.Status, To: to}
	}
	if (to == core.StatusNeedsReview || to == core.StatusRejected) && reason == "" {
		return fmt.Errorf("transition to %s requires a diagnostic reason", to)
	}

	item.Status = to
	item.StatusReason = reason
	item.UpdatedAt = time.Now().UTC()
	if to != core.StatusNeedsReview {
		item.FailedStage = core.FailureNone
	}
	return nil
}

// RecordExtraction applies the extraction quality gate: a successful result
// with a non-zero word count and a score at or above the floor advances the
// item to extracted; anything else parks it in needs_review with the
// extraction stage tagged for retry.
func (m *Manager) RecordExtraction(item *core.Item, content core.ExtractedContent) error {
	if content.Success && content.WordCount > 0 && content.QualityScore >= m.qualityFloor {
		return m.Transition(item, core.StatusExtracted, fmt.Sprintf("extracted %d words (quality %.2f)", content.WordCount, content.QualityScore))
	}

	reason := content.ErrorMessage
	if reason == "" {
		reason = fmt.Sprintf("extraction below quality floor: %d words, score %.2f (floor %.2f)",
			content.WordCount, content.QualityScore, m.qualityFloor)
	}
	if err := m.Transition(item, core.StatusNeedsReview, reason); err != nil {
		return err
	}
	item.FailedStage = core.FailureExtraction
	return nil
}

// RecordClassification advances an extracted item to classified, unless the
// result itself routes to needs_review, in which case the item is parked
// even though the provider call nominally succeeded.
func (m *Manager) RecordClassification(item *core.Item, cls core.Classification) error {
	if cls.Destination == "needs_review" {
		reason := cls.Reasoning
		if reason == "" {
			reason = "classifier routed item to manual review"
		}
		if err := m.Transition(item, core.StatusNeedsReview, reason); err != nil {
			return err
		}
		item.FailedStage = core.FailureClassification
		return nil
	}
	return m.Transition(item, core.StatusClassified, fmt.Sprintf("classified as %s (confidence %.2f)", cls.Destination, cls.Confidence))
}

// Approve advances a classified item.
func (m *Manager) Approve(item *core.Item) error {
	return m.Transition(item, core.StatusApproved, "approved")
}

// Publish advances an approved item. A generated artifact must exist.
func (m *Manager) Publish(item *core.Item, hasArtifact bool) error {
	if !hasArtifact {
		return fmt.Errorf("cannot publish item %s: no generated artifact", item.ID)
	}
	return m.Transition(item, core.StatusPublished, "published")
}

// Reject halts an item permanently. Legal from any non-terminal state.
func (m *Manager) Reject(item *core.Item, reason string) error {
	return m.Transition(item, core.StatusRejected, reason)
}

// RetryTarget resolves the re-entry state for a needs_review item from the
// stored failure stage: extraction failures re-enter pending, classification
// failures re-enter extracted.
func (m *Manager) RetryTarget(item core.Item) (core.ItemStatus, error) {
	if item.Status != core.StatusNeedsReview {
		return "", fmt.Errorf("retry target is only defined for needs_review, item %s is %s", item.ID, item.Status)
	}
	switch item.FailedStage {
	case core.FailureClassification:
		return core.StatusExtracted, nil
	default:
		// Extraction failures and untagged legacy rows both restart from
		// the beginning.
		return core.StatusPending, nil
	}
}
