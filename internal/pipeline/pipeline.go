// Package pipeline sequences the content engine per action: resolve the
// URL, extract content, record status, classify, generate. Each stage's
// status write is a durable checkpoint; transient network failures are
// retried with backoff, terminal stage failures route the item to
// needs_review instead of surfacing as errors.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"curator/internal/cluster"
	"curator/internal/core"
	"curator/internal/extract"
	"curator/internal/lifecycle"
	"curator/internal/logger"
	"curator/internal/retry"
)

// ControlError reports a dispatch that is not legal for the item's current
// status (advancing a published item, retrying a rejected one). These are
// the only pipeline failures, besides malformed input, that propagate to
// callers.
type ControlError struct {
	ItemID string
	Status core.ItemStatus
	Action string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("cannot %s item %s in status %s", e.Action, e.ItemID, e.Status)
}

// Options configures orchestrator behavior.
type Options struct {
	RetryAttempts     int             // Backoff attempts for network stages (default 3)
	RetryInitialDelay time.Duration   // First backoff delay (default 1s)
	ClusterOptions    cluster.Options // Thresholds for duplicate clustering
}

// Orchestrator wires the pipeline components together. All collaborators
// are injected at construction; the orchestrator owns sequencing and
// nothing else, and each component exclusively writes its own records.
type Orchestrator struct {
	store     ItemStore
	resolver  URLResolver
	extractor ContentExtractor
	chain     TaskChain
	lifecycle *lifecycle.Manager
	opts      Options
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(store ItemStore, resolver URLResolver, extractor ContentExtractor, chain TaskChain, lc *lifecycle.Manager, opts Options) *Orchestrator {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryInitialDelay <= 0 {
		opts.RetryInitialDelay = time.Second
	}
	if opts.ClusterOptions.TitleThreshold == 0 && opts.ClusterOptions.URLThreshold == 0 {
		opts.ClusterOptions = cluster.DefaultOptions()
	}
	return &Orchestrator{
		store:     store,
		resolver:  resolver,
		extractor: extractor,
		chain:     chain,
		lifecycle: lc,
		opts:      opts,
	}
}

// Advance runs the single action appropriate for the item's current status:
// extract for pending, classify for extracted, approve for classified,
// generate-and-publish for approved. Terminal and parked statuses need the
// explicit Retry path and yield a ControlError here.
func (o *Orchestrator) Advance(ctx context.Context, itemID string) (*core.Item, error) {
	item, err := o.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	switch item.Status {
	case core.StatusPending:
		err = o.runExtraction(ctx, item)
	case core.StatusExtracted:
		err = o.runClassification(ctx, item)
	case core.StatusClassified:
		err = o.runApproval(ctx, item)
	case core.StatusApproved:
		err = o.runGenerateAndPublish(ctx, item)
	default:
		return nil, &ControlError{ItemID: item.ID, Status: item.Status, Action: "advance"}
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Retry re-runs the stage an item is stuck on. For needs_review the item
// first re-enters the state recorded by its failure tag; pending and
// extracted re-run in place. Every other status is an illegal retry.
func (o *Orchestrator) Retry(ctx context.Context, itemID string) (*core.Item, error) {
	item, err := o.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	switch item.Status {
	case core.StatusNeedsReview:
		target, err := o.lifecycle.RetryTarget(*item)
		if err != nil {
			return nil, err
		}
		if err := o.lifecycle.Transition(item, target, "manual retry"); err != nil {
			return nil, err
		}
		if err := o.store.SaveItem(ctx, *item); err != nil {
			return nil, fmt.Errorf("failed to checkpoint retry reset: %w", err)
		}
	case core.StatusPending, core.StatusExtracted:
		// Re-run in place.
	default:
		return nil, &ControlError{ItemID: item.ID, Status: item.Status, Action: "retry"}
	}

	if item.Status == core.StatusPending {
		err = o.runExtraction(ctx, item)
	} else {
		err = o.runClassification(ctx, item)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Classify runs classification explicitly for an extracted item.
func (o *Orchestrator) Classify(ctx context.Context, itemID string) (*core.Item, error) {
	item, err := o.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != core.StatusExtracted {
		return nil, &ControlError{ItemID: item.ID, Status: item.Status, Action: "classify"}
	}
	if err := o.runClassification(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Generate produces the artifact draft for an approved item without
// publishing it.
func (o *Orchestrator) Generate(ctx context.Context, itemID string) (*core.Artifact, error) {
	item, err := o.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != core.StatusApproved {
		return nil, &ControlError{ItemID: item.ID, Status: item.Status, Action: "generate"}
	}
	return o.generateArtifact(ctx, item)
}

// Reject permanently halts an item. Legal from any non-terminal state.
func (o *Orchestrator) Reject(ctx context.Context, itemID, reason string) (*core.Item, error) {
	item, err := o.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := o.lifecycle.Reject(item, reason); err != nil {
		return nil, err
	}
	if err := o.store.SaveItem(ctx, *item); err != nil {
		return nil, fmt.Errorf("failed to save rejection: %w", err)
	}
	return item, nil
}

// AdvanceAllPending fans out Advance over every pending item with bounded
// concurrency. Items are independent; failures are logged per item and do
// not stop the batch.
func (o *Orchestrator) AdvanceAllPending(ctx context.Context, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	items, err := o.store.ListItems(ctx, core.ItemFilter{Status: core.StatusPending})
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	advanced := 0

	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := o.Advance(ctx, id); err != nil {
				logger.Error("batch advance failed for item", err, map[string]any{"item_id": id})
				return
			}
			mu.Lock()
			advanced++
			mu.Unlock()
		}(item.ID)
	}
	wg.Wait()
	return advanced, nil
}

// ClusterItems computes duplicate groups over the current item set, stamps
// group ids back through the store, and returns the groups hydrated with
// their member items. Membership itself is derived, never persisted; only
// the group id lands on each item row.
func (o *Orchestrator) ClusterItems(ctx context.Context) ([]core.Group, error) {
	items, err := o.store.ListItems(ctx, core.ItemFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.Item, len(items))
	candidates := make([]cluster.Candidate, 0, len(items))
	for _, item := range items {
		byID[item.ID] = item
		score := 0.0
		if item.Score != nil {
			score = *item.Score
		}
		candidates = append(candidates, cluster.Candidate{
			ID:             item.ID,
			CleanURL:       item.CleanURL,
			Title:          item.Title,
			Score:          score,
			KnownDuplicate: item.KnownDuplicate,
		})
	}

	computed := cluster.Cluster(candidates, o.opts.ClusterOptions)
	groups := make([]core.Group, 0, len(computed))
	for _, group := range computed {
		hydrated := core.Group{ID: group.ID}
		for _, memberID := range group.Members {
			if err := o.store.SetDuplicateGroup(ctx, memberID, group.ID); err != nil {
				return nil, fmt.Errorf("failed to stamp group id on item %s: %w", memberID, err)
			}
			member := byID[memberID]
			member.DuplicateGroupID = group.ID
			hydrated.Items = append(hydrated.Items, member)
			if memberID == group.BestID {
				hydrated.Best = member
			}
		}
		groups = append(groups, hydrated)
	}
	return groups, nil
}

func (o *Orchestrator) loadItem(ctx context.Context, itemID string) (*core.Item, error) {
	if itemID == "" {
		return nil, fmt.Errorf("item id is required")
	}
	item, err := o.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	if item == nil {
		return nil, fmt.Errorf("item %s not found", itemID)
	}
	return item, nil
}

// runExtraction resolves the item's URL, extracts content with backoff on
// transient failures, and records the outcome. A terminal extraction
// failure is absorbed: the item parks in needs_review with the diagnostic
// stored, and no error reaches the caller.
func (o *Orchestrator) runExtraction(ctx context.Context, item *core.Item) error {
	if item.CleanURL == "" {
		item.CleanURL = o.resolver.Resolve(ctx, item.URL)
	}

	parsed, err := url.ParseRequestURI(item.CleanURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		item.IsValid = false
		item.UpdatedAt = time.Now().UTC()
		if saveErr := o.store.SaveItem(ctx, *item); saveErr != nil {
			return fmt.Errorf("failed to save item: %w", saveErr)
		}
		return fmt.Errorf("item %s has no usable url: %q", item.ID, item.CleanURL)
	}
	item.IsValid = true

	result, extractErr := retry.Do(ctx, func(ctx context.Context) (*extract.Result, error) {
		return o.extractor.Extract(ctx, item.CleanURL)
	}, retry.Options{
		MaxAttempts:  o.opts.RetryAttempts,
		InitialDelay: o.opts.RetryInitialDelay,
		OnRetry: func(attempt int, err error) {
			logger.Warn("extraction attempt failed, backing off",
				map[string]any{"item_id": item.ID, "attempt": attempt, "error": err.Error()})
		},
	})

	content := core.ExtractedContent{
		ItemID:      item.ID,
		ExtractedAt: time.Now().UTC(),
	}
	if extractErr != nil {
		content.Success = false
		content.ErrorMessage = extractErr.Error()
	} else {
		content.Success = true
		content.Markdown = result.Markdown
		content.CleanedText = result.CleanedText
		content.WordCount = result.WordCount
		content.QualityScore = result.QualityScore
		content.Source = result.Source
	}

	if err := o.store.UpsertExtractedContent(ctx, content); err != nil {
		return fmt.Errorf("failed to upsert extracted content: %w", err)
	}
	if err := o.lifecycle.RecordExtraction(item, content); err != nil {
		return err
	}
	if err := o.store.SaveItem(ctx, *item); err != nil {
		return fmt.Errorf("failed to checkpoint extraction status: %w", err)
	}
	return nil
}

// runClassification feeds the extracted content through the provider chain
// and records the result. The chain is fail-open, so this stage cannot fail
// on provider trouble; the worst case routes the item to needs_review.
func (o *Orchestrator) runClassification(ctx context.Context, item *core.Item) error {
	content, err := o.store.GetExtractedContent(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to load extracted content for item %s: %w", item.ID, err)
	}
	text := ""
	if content != nil {
		text = content.CleanedText
	}

	cls := o.chain.Classify(ctx, *item, text)
	if err := o.store.UpsertClassification(ctx, cls); err != nil {
		return fmt.Errorf("failed to upsert classification: %w", err)
	}
	if err := o.lifecycle.RecordClassification(item, cls); err != nil {
		return err
	}
	if err := o.store.SaveItem(ctx, *item); err != nil {
		return fmt.Errorf("failed to checkpoint classification status: %w", err)
	}
	return nil
}

func (o *Orchestrator) runApproval(ctx context.Context, item *core.Item) error {
	if err := o.lifecycle.Approve(item); err != nil {
		return err
	}
	if err := o.store.SaveItem(ctx, *item); err != nil {
		return fmt.Errorf("failed to save approval: %w", err)
	}
	return nil
}

// runGenerateAndPublish generates the destination artifact for an approved
// item and publishes it in one action.
func (o *Orchestrator) runGenerateAndPublish(ctx context.Context, item *core.Item) error {
	artifact, err := o.generateArtifact(ctx, item)
	if err != nil {
		return err
	}

	artifact.Status = core.ArtifactPublished
	if err := o.store.UpsertArtifact(ctx, *artifact); err != nil {
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	if err := o.lifecycle.Publish(item, true); err != nil {
		return err
	}
	if err := o.store.SaveItem(ctx, *item); err != nil {
		return fmt.Errorf("failed to checkpoint publish status: %w", err)
	}
	return nil
}

// generateArtifact picks the generation task from the item's classification
// (podcast destinations get a script, everything else a post) and upserts
// the draft.
func (o *Orchestrator) generateArtifact(ctx context.Context, item *core.Item) (*core.Artifact, error) {
	content, err := o.store.GetExtractedContent(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load extracted content for item %s: %w", item.ID, err)
	}
	text := ""
	if content != nil {
		text = content.CleanedText
	}

	cls, err := o.store.GetClassification(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification for item %s: %w", item.ID, err)
	}

	var artifact core.Artifact
	if cls != nil && cls.Destination == "podcast" {
		artifact = o.chain.GenerateScript(ctx, *item, text)
	} else {
		artifact = o.chain.GeneratePost(ctx, *item, text)
	}
	artifact.ID = uuid.NewString()

	if err := o.store.UpsertArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return &artifact, nil
}
