package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/secsift/secsift/src/models"
)

const (
	recordKeyPrefix = "analysis_run:"
	recordTTL       = 7 * 24 * time.Hour // Runs are kept for a week
	// maxStoredAnalysis caps how much of the combined answer is persisted
	// per run; the full text lives in the response cache.
	maxStoredAnalysis = 16 * 1024
)

// Store persists per-run analysis records in Redis so analysts can revisit
// recent runs without re-spending tokens.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Save stores or updates a run record
func (s *Store) Save(ctx context.Context, record *models.AnalysisRecord) error {
	key := recordKeyPrefix + record.RunID

	if len(record.Analysis) > maxStoredAnalysis {
		trimmed := *record
		trimmed.Analysis = record.Analysis[:maxStoredAnalysis]
		record = &trimmed
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	if err := s.client.Set(ctx, key, data, recordTTL).Err(); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	return nil
}

// Get retrieves a run record by ID
func (s *Store) Get(ctx context.Context, runID string) (*models.AnalysisRecord, error) {
	key := recordKeyPrefix + runID

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run record: %w", err)
	}

	var record models.AnalysisRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}

	return &record, nil
}

// List returns all stored run records, newest first
func (s *Store) List(ctx context.Context) ([]*models.AnalysisRecord, error) {
	pattern := recordKeyPrefix + "*"

	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]*models.AnalysisRecord, 0, len(keys))
	for _, key := range keys {
		record, err := s.Get(ctx, key[len(recordKeyPrefix):])
		if err != nil {
			continue // expired between KEYS and GET
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// Delete removes a run record
func (s *Store) Delete(ctx context.Context, runID string) error {
	key := recordKeyPrefix + runID

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}

	return nil
}
