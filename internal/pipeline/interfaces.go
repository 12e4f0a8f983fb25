package pipeline

import (
	"context"

	"curator/internal/core"
	"curator/internal/extract"
)

// ItemStore is the storage contract the pipeline consumes. The core never
// issues queries beyond these verbs; *store.Store satisfies it.
type ItemStore interface {
	// GetItem fetches one item, (nil, nil) when absent.
	GetItem(ctx context.Context, id string) (*core.Item, error)

	// ListItems returns items matching the filter, oldest first.
	ListItems(ctx context.Context, filter core.ItemFilter) ([]core.Item, error)

	// SaveItem upserts the full item row (last-write-wins).
	SaveItem(ctx context.Context, item core.Item) error

	// DeleteItem removes an item and its dependent rows.
	DeleteItem(ctx context.Context, id string) error

	// SetDuplicateGroup stamps a cluster group id on an item.
	SetDuplicateGroup(ctx context.Context, itemID, groupID string) error

	// UpsertExtractedContent overwrites the extraction row keyed by item id.
	UpsertExtractedContent(ctx context.Context, content core.ExtractedContent) error

	// GetExtractedContent fetches the extraction row, (nil, nil) when absent.
	GetExtractedContent(ctx context.Context, itemID string) (*core.ExtractedContent, error)

	// UpsertClassification overwrites the classification keyed by item id.
	UpsertClassification(ctx context.Context, cls core.Classification) error

	// GetClassification fetches the classification, (nil, nil) when absent.
	GetClassification(ctx context.Context, itemID string) (*core.Classification, error)

	// UpsertArtifact overwrites the active draft for an item/target pair.
	UpsertArtifact(ctx context.Context, artifact core.Artifact) error

	// GetArtifact fetches the draft for an item/target pair, (nil, nil) when absent.
	GetArtifact(ctx context.Context, itemID, target string) (*core.Artifact, error)
}

// URLResolver decodes aggregator URLs into canonical source URLs. Resolve
// never fails; unresolvable input comes back as the best available
// candidate.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// ContentExtractor converts a resolved URL into markdown with a quality
// score. A terminal error means every strategy failed.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Result, error)
}

// TaskChain runs AI tasks through the provider fallback chain. All three
// methods are fail-open: exhaustion degrades to a safe default result.
type TaskChain interface {
	Classify(ctx context.Context, item core.Item, content string) core.Classification
	GeneratePost(ctx context.Context, item core.Item, content string) core.Artifact
	GenerateScript(ctx context.Context, item core.Item, content string) core.Artifact
}
