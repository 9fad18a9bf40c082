// Package memstore keeps every store in process memory. It backs the test
// suites and the "memory" database driver.
package memstore

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deltadebate/models"
)

// PhaseStore holds the three phase partitions.
type PhaseStore struct {
	mu         sync.RWMutex
	partitions map[models.Partition]map[string]models.PhaseRecord
}

// NewPhaseStore creates an empty PhaseStore.
func NewPhaseStore() *PhaseStore {
	return &PhaseStore{partitions: map[models.Partition]map[string]models.PhaseRecord{
		models.PartitionPending:  {},
		models.PartitionActive:   {},
		models.PartitionArchived: {},
	}}
}

func (s *PhaseStore) Find(_ context.Context, p models.Partition, key string) (*models.PhaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.partitions[p][key]
	if !ok {
		return nil, nil
	}
	out := rec.Clone()
	return &out, nil
}

func (s *PhaseStore) List(_ context.Context, p models.Partition) ([]models.PhaseRecord, error) {
	s.mu.RLock()
	out := make([]models.PhaseRecord, 0, len(s.partitions[p]))
	for _, rec := range s.partitions[p] {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	if p == models.PartitionArchived {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].Key < out[j].Key
			}
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		})
		return out, nil
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PhaseStore) Put(_ context.Context, p models.Partition, rec models.PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.partitions[p][rec.Key]; ok {
		rec.ID = existing.ID
	} else if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	s.partitions[p][rec.Key] = rec.Clone()
	return nil
}

func (s *PhaseStore) Remove(_ context.Context, p models.Partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions[p], key)
	return nil
}
