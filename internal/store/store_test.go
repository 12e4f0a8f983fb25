package store

import (
	"context"
	"testing"
	"time"

	"curator/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(id string) core.Item {
	now := time.Now().UTC().Truncate(time.Second)
	return core.Item{
		ID:           id,
		URL:          "https://news.google.com/articles/abc?utm_source=x",
		CleanURL:     "https://example.com/story",
		Title:        "Example story",
		Publisher:    "Example Times",
		Description:  "A story about examples",
		DiscoveredAt: now,
		UpdatedAt:    now,
		Status:       core.StatusPending,
		IsValid:      true,
	}
}

func TestItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	score := 0.75
	item := testItem("item-1")
	item.Score = &score
	item.StatusReason = "just added"

	if err := s.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	got, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected item, got nil")
	}
	if got.URL != item.URL || got.CleanURL != item.CleanURL || got.Title != item.Title {
		t.Errorf("Item fields did not round-trip: %+v", got)
	}
	if got.Status != core.StatusPending {
		t.Errorf("Expected status pending, got %s", got.Status)
	}
	if got.Score == nil || *got.Score != score {
		t.Errorf("Expected score %v, got %v", score, got.Score)
	}
	if !got.IsValid {
		t.Error("Expected IsValid to survive the round-trip")
	}
}

func TestNilScoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	got, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Score != nil {
		t.Errorf("Expected nil score, got %v", *got.Score)
	}
}

func TestGetMissingItemReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetItem(context.Background(), "no-such-item")
	if err != nil {
		t.Fatalf("GetItem on missing id must not error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing item, got %+v", got)
	}
}

func TestSaveItemLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := testItem("item-1")
	if err := s.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	item.Status = core.StatusExtracted
	item.StatusReason = "extracted 500 words"
	if err := s.SaveItem(ctx, item); err != nil {
		t.Fatalf("Second SaveItem failed: %v", err)
	}

	got, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != core.StatusExtracted || got.StatusReason != "extracted 500 words" {
		t.Errorf("Second write must fully replace the row, got %+v", got)
	}

	items, err := s.ListItems(ctx, core.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("Upsert must not multiply rows, got %d", len(items))
	}
}

func TestListItemsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)

	a := testItem("a")
	a.DiscoveredAt = base
	b := testItem("b")
	b.DiscoveredAt = base.Add(time.Minute)
	b.Status = core.StatusNeedsReview
	b.DuplicateGroupID = "group-1"
	c := testItem("c")
	c.DiscoveredAt = base.Add(2 * time.Minute)
	c.IsValid = false

	for _, item := range []core.Item{b, c, a} {
		if err := s.SaveItem(ctx, item); err != nil {
			t.Fatalf("SaveItem failed: %v", err)
		}
	}

	all, err := s.ListItems(ctx, core.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Errorf("Expected [a b c] oldest first, got %v", ids(all))
	}

	byStatus, err := s.ListItems(ctx, core.ItemFilter{Status: core.StatusNeedsReview})
	if err != nil {
		t.Fatalf("ListItems by status failed: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != "b" {
		t.Errorf("Expected [b] by status, got %v", ids(byStatus))
	}

	byGroup, err := s.ListItems(ctx, core.ItemFilter{GroupID: "group-1"})
	if err != nil {
		t.Fatalf("ListItems by group failed: %v", err)
	}
	if len(byGroup) != 1 || byGroup[0].ID != "b" {
		t.Errorf("Expected [b] by group, got %v", ids(byGroup))
	}

	valid, err := s.ListItems(ctx, core.ItemFilter{OnlyValid: true})
	if err != nil {
		t.Fatalf("ListItems valid-only failed: %v", err)
	}
	if len(valid) != 2 {
		t.Errorf("Expected 2 valid items, got %v", ids(valid))
	}
}

func ids(items []core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestSetDuplicateGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if err := s.SetDuplicateGroup(ctx, "item-1", "group-42"); err != nil {
		t.Fatalf("SetDuplicateGroup failed: %v", err)
	}

	got, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.DuplicateGroupID != "group-42" {
		t.Errorf("Expected group-42, got %q", got.DuplicateGroupID)
	}
}

func TestExtractedContentUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	content := core.ExtractedContent{
		ItemID:       "item-1",
		Markdown:     "# Heading\n\nBody text.",
		CleanedText:  "Heading Body text.",
		WordCount:    3,
		QualityScore: 0.6,
		Source:       "reader",
		Success:      true,
		ExtractedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := s.UpsertExtractedContent(ctx, content); err != nil {
		t.Fatalf("UpsertExtractedContent failed: %v", err)
	}

	// A retry replaces the previous result in place.
	content.Markdown = "# Heading\n\nLonger body text after retry."
	content.WordCount = 7
	content.Source = "direct"
	if err := s.UpsertExtractedContent(ctx, content); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := s.GetExtractedContent(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetExtractedContent failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected content, got nil")
	}
	if got.WordCount != 7 || got.Source != "direct" {
		t.Errorf("Upsert must overwrite, got %+v", got)
	}

	missing, err := s.GetExtractedContent(ctx, "never-extracted")
	if err != nil || missing != nil {
		t.Errorf("Missing content must be (nil, nil), got %v, %v", missing, err)
	}
}

func TestClassificationUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cls := core.Classification{
		ItemID:       "item-1",
		Destination:  "linkedin",
		Confidence:   0.8,
		Reasoning:    "professional angle",
		Provider:     "openai",
		ClassifiedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.UpsertClassification(ctx, cls); err != nil {
		t.Fatalf("UpsertClassification failed: %v", err)
	}

	cls.Destination = "podcast"
	cls.Provider = "ollama"
	if err := s.UpsertClassification(ctx, cls); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := s.GetClassification(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetClassification failed: %v", err)
	}
	if got.Destination != "podcast" || got.Provider != "ollama" {
		t.Errorf("Re-classification must supersede, got %+v", got)
	}
}

func TestArtifactTagsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	artifact := core.Artifact{
		ID:           "art-1",
		ItemID:       "item-1",
		Target:       "linkedin",
		Status:       core.ArtifactDraft,
		Content:      "Draft post body",
		Tone:         "professional",
		Tags:         []string{"ai", "golang", "infra"},
		CallToAction: "Read the full story",
		Provider:     "openai",
		GeneratedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := s.UpsertArtifact(ctx, artifact); err != nil {
		t.Fatalf("UpsertArtifact failed: %v", err)
	}

	got, err := s.GetArtifact(ctx, "item-1", "linkedin")
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected artifact, got nil")
	}
	if got.Status != core.ArtifactDraft {
		t.Errorf("Expected draft status, got %s", got.Status)
	}
	if len(got.Tags) != 3 || got.Tags[0] != "ai" || got.Tags[2] != "infra" {
		t.Errorf("Tags did not round-trip, got %v", got.Tags)
	}

	// One artifact per item/target pair; a different target is separate.
	other := artifact
	other.ID = "art-2"
	other.Target = "podcast"
	if err := s.UpsertArtifact(ctx, other); err != nil {
		t.Fatalf("UpsertArtifact for second target failed: %v", err)
	}
	pod, err := s.GetArtifact(ctx, "item-1", "podcast")
	if err != nil || pod == nil || pod.ID != "art-2" {
		t.Errorf("Expected separate artifact per target, got %v, %v", pod, err)
	}

	missing, err := s.GetArtifact(ctx, "item-1", "newsletter")
	if err != nil || missing != nil {
		t.Errorf("Missing artifact must be (nil, nil), got %v, %v", missing, err)
	}
}

func TestDeleteItemCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if err := s.UpsertExtractedContent(ctx, core.ExtractedContent{ItemID: "item-1", Success: true}); err != nil {
		t.Fatalf("UpsertExtractedContent failed: %v", err)
	}
	if err := s.UpsertClassification(ctx, core.Classification{ItemID: "item-1", Destination: "linkedin"}); err != nil {
		t.Fatalf("UpsertClassification failed: %v", err)
	}
	if err := s.UpsertArtifact(ctx, core.Artifact{ID: "art-1", ItemID: "item-1", Target: "linkedin", Status: core.ArtifactDraft}); err != nil {
		t.Fatalf("UpsertArtifact failed: %v", err)
	}

	if err := s.DeleteItem(ctx, "item-1"); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	if got, _ := s.GetItem(ctx, "item-1"); got != nil {
		t.Error("Item must be gone after delete")
	}
	if got, _ := s.GetExtractedContent(ctx, "item-1"); got != nil {
		t.Error("Extracted content must be gone after delete")
	}
	if got, _ := s.GetClassification(ctx, "item-1"); got != nil {
		t.Error("Classification must be gone after delete")
	}
	if got, _ := s.GetArtifact(ctx, "item-1", "linkedin"); got != nil {
		t.Error("Artifact must be gone after delete")
	}
}
