// Package store persists items and their pipeline outputs in SQLite. The
// pipeline consumes it through the narrow ItemStore contract; nothing here
// issues queries beyond get, list, update, delete, and upsert.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"curator/internal/core"
)

// Store is the SQLite-backed item store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "curator.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	itemsTable := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		clean_url TEXT,
		title TEXT,
		publisher TEXT,
		description TEXT,
		discovered_at DATETIME,
		updated_at DATETIME,
		status TEXT,
		status_reason TEXT,
		failed_stage TEXT,
		is_valid INTEGER,
		duplicate_group_id TEXT,
		known_duplicate INTEGER,
		score REAL
	);`

	extractedTable := `
	CREATE TABLE IF NOT EXISTS extracted_content (
		item_id TEXT PRIMARY KEY,
		markdown TEXT,
		cleaned_text TEXT,
		word_count INTEGER,
		quality_score REAL,
		source TEXT,
		success INTEGER,
		error_message TEXT,
		extracted_at DATETIME,
		FOREIGN KEY (item_id) REFERENCES items (id)
	);`

	classificationsTable := `
	CREATE TABLE IF NOT EXISTS classifications (
		item_id TEXT PRIMARY KEY,
		destination TEXT,
		confidence REAL,
		reasoning TEXT,
		approved INTEGER,
		provider TEXT,
		classified_at DATETIME,
		FOREIGN KEY (item_id) REFERENCES items (id)
	);`

	artifactsTable := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT,
		item_id TEXT,
		target TEXT,
		status TEXT,
		content TEXT,
		tone TEXT,
		tags TEXT,
		call_to_action TEXT,
		provider TEXT,
		generated_at DATETIME,
		PRIMARY KEY (item_id, target),
		FOREIGN KEY (item_id) REFERENCES items (id)
	);`

	for _, table := range []string{itemsTable, extractedTable, classificationsTable, artifactsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveItem upserts the full item row. Writes are last-write-wins; there is
// no version check on concurrent updates.
func (s *Store) SaveItem(ctx context.Context, item core.Item) error {
	query := `
	INSERT OR REPLACE INTO items
	(id, url, clean_url, title, publisher, description, discovered_at, updated_at,
	 status, status_reason, failed_stage, is_valid, duplicate_group_id, known_duplicate, score)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var score any
	if item.Score != nil {
		score = *item.Score
	}
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.URL, item.CleanURL, item.Title, item.Publisher, item.Description,
		item.DiscoveredAt, item.UpdatedAt, string(item.Status), item.StatusReason,
		string(item.FailedStage), item.IsValid, item.DuplicateGroupID, item.KnownDuplicate, score,
	)
	return err
}

// GetItem fetches one item by id. A missing item returns (nil, nil).
func (s *Store) GetItem(ctx context.Context, id string) (*core.Item, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, url, clean_url, title, publisher, description, discovered_at, updated_at,
	       status, status_reason, failed_stage, is_valid, duplicate_group_id, known_duplicate, score
	FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return item, nil
}

// ListItems returns items matching the filter, oldest first.
func (s *Store) ListItems(ctx context.Context, filter core.ItemFilter) ([]core.Item, error) {
	query := `
	SELECT id, url, clean_url, title, publisher, description, discovered_at, updated_at,
	       status, status_reason, failed_stage, is_valid, duplicate_group_id, known_duplicate, score
	FROM items WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.GroupID != "" {
		query += " AND duplicate_group_id = ?"
		args = append(args, filter.GroupID)
	}
	if filter.OnlyValid {
		query += " AND is_valid = 1"
	}
	query += " ORDER BY discovered_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item and its dependent rows.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	for _, query := range []string{
		"DELETE FROM extracted_content WHERE item_id = ?",
		"DELETE FROM classifications WHERE item_id = ?",
		"DELETE FROM artifacts WHERE item_id = ?",
		"DELETE FROM items WHERE id = ?",
	} {
		if _, err := s.db.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("failed to delete item %s: %w", id, err)
		}
	}
	return nil
}

// SetDuplicateGroup stamps a group id on an item.
func (s *Store) SetDuplicateGroup(ctx context.Context, itemID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE items SET duplicate_group_id = ?, updated_at = ? WHERE id = ?",
		groupID, time.Now().UTC(), itemID)
	return err
}

// UpsertExtractedContent overwrites the extraction result for an item,
// keyed by item id so extraction never multiplies rows.
func (s *Store) UpsertExtractedContent(ctx context.Context, content core.ExtractedContent) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO extracted_content
	(item_id, markdown, cleaned_text, word_count, quality_score, source, success, error_message, extracted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		content.ItemID, content.Markdown, content.CleanedText, content.WordCount,
		content.QualityScore, content.Source, content.Success, content.ErrorMessage, content.ExtractedAt)
	return err
}

// GetExtractedContent fetches the extraction result for an item, (nil, nil)
// when extraction has not run.
func (s *Store) GetExtractedContent(ctx context.Context, itemID string) (*core.ExtractedContent, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT item_id, markdown, cleaned_text, word_count, quality_score, source, success, error_message, extracted_at
	FROM extracted_content WHERE item_id = ?`, itemID)

	var c core.ExtractedContent
	err := row.Scan(&c.ItemID, &c.Markdown, &c.CleanedText, &c.WordCount,
		&c.QualityScore, &c.Source, &c.Success, &c.ErrorMessage, &c.ExtractedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan extracted content: %w", err)
	}
	return &c, nil
}

// UpsertClassification overwrites the classification for an item; later
// re-classification supersedes it.
func (s *Store) UpsertClassification(ctx context.Context, cls core.Classification) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO classifications
	(item_id, destination, confidence, reasoning, approved, provider, classified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cls.ItemID, cls.Destination, cls.Confidence, cls.Reasoning, cls.Approved, cls.Provider, cls.ClassifiedAt)
	return err
}

// GetClassification fetches the classification for an item, (nil, nil) when
// classification has not run.
func (s *Store) GetClassification(ctx context.Context, itemID string) (*core.Classification, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT item_id, destination, confidence, reasoning, approved, provider, classified_at
	FROM classifications WHERE item_id = ?`, itemID)

	var c core.Classification
	err := row.Scan(&c.ItemID, &c.Destination, &c.Confidence, &c.Reasoning, &c.Approved, &c.Provider, &c.ClassifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan classification: %w", err)
	}
	return &c, nil
}

// UpsertArtifact overwrites the active draft for an item/target pair.
func (s *Store) UpsertArtifact(ctx context.Context, artifact core.Artifact) error {
	tags, _ := json.Marshal(artifact.Tags)
	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO artifacts
	(id, item_id, target, status, content, tone, tags, call_to_action, provider, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID, artifact.ItemID, artifact.Target, string(artifact.Status), artifact.Content,
		artifact.Tone, string(tags), artifact.CallToAction, artifact.Provider, artifact.GeneratedAt)
	return err
}

// GetArtifact fetches the artifact for an item/target pair, (nil, nil) when
// none has been generated.
func (s *Store) GetArtifact(ctx context.Context, itemID, target string) (*core.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, item_id, target, status, content, tone, tags, call_to_action, provider, generated_at
	FROM artifacts WHERE item_id = ? AND target = ?`, itemID, target)

	var a core.Artifact
	var status, tags string
	err := row.Scan(&a.ID, &a.ItemID, &a.Target, &status, &a.Content, &a.Tone, &tags,
		&a.CallToAction, &a.Provider, &a.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}
	a.Status = core.ArtifactStatus(status)
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &a.Tags)
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*core.Item, error) {
	var item core.Item
	var status, failedStage string
	var score sql.NullFloat64

	err := row.Scan(&item.ID, &item.URL, &item.CleanURL, &item.Title, &item.Publisher,
		&item.Description, &item.DiscoveredAt, &item.UpdatedAt, &status, &item.StatusReason,
		&failedStage, &item.IsValid, &item.DuplicateGroupID, &item.KnownDuplicate, &score)
	if err != nil {
		return nil, err
	}

	item.Status = core.ItemStatus(status)
	item.FailedStage = core.FailureStage(failedStage)
	if score.Valid {
		item.Score = &score.Float64
	}
	return &item, nil
}
