package phase

import (
	"context"

	"deltadebate/models"
)

// Store is keyed storage for the three phase partitions.
//
// List returns pending and active records oldest first (CreatedAt) and
// archived records most recently updated first. Put replaces the record with
// the same key in the partition or inserts it. Remove is a no-op for a
// missing key. Find returns nil, nil when the key is absent.
type Store interface {
	Find(ctx context.Context, partition models.Partition, key string) (*models.PhaseRecord, error)
	List(ctx context.Context, partition models.Partition) ([]models.PhaseRecord, error)
	Put(ctx context.Context, partition models.Partition, rec models.PhaseRecord) error
	Remove(ctx context.Context, partition models.Partition, key string) error
}
