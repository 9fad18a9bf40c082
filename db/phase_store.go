package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deltadebate/models"
)

// PhaseStore keeps each phase partition in its own collection.
type PhaseStore struct {
	collections map[models.Partition]*mongo.Collection
}

// NewPhaseStore creates a PhaseStore on database.
func NewPhaseStore(database *mongo.Database) *PhaseStore {
	return &PhaseStore{collections: map[models.Partition]*mongo.Collection{
		models.PartitionPending:  database.Collection(PendingPhasesCollection),
		models.PartitionActive:   database.Collection(ActivePhasesCollection),
		models.PartitionArchived: database.Collection(ArchivedPhasesCollection),
	}}
}

func (s *PhaseStore) collection(p models.Partition) (*mongo.Collection, error) {
	coll, ok := s.collections[p]
	if !ok {
		return nil, fmt.Errorf("unknown phase partition %q", p)
	}
	return coll, nil
}

func (s *PhaseStore) Find(ctx context.Context, p models.Partition, key string) (*models.PhaseRecord, error) {
	coll, err := s.collection(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rec models.PhaseRecord
	if err := coll.FindOne(ctx, bson.M{"key": key}).Decode(&rec); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *PhaseStore) List(ctx context.Context, p models.Partition) ([]models.PhaseRecord, error) {
	coll, err := s.collection(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	sort := bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	if p == models.PartitionArchived {
		sort = bson.D{{Key: "updatedAt", Value: -1}, {Key: "key", Value: 1}}
	}
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	recs := []models.PhaseRecord{}
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Put replaces the record with the same key. The stored _id is kept.
func (s *PhaseStore) Put(ctx context.Context, p models.Partition, rec models.PhaseRecord) error {
	coll, err := s.collection(p)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rec.ID = primitive.NilObjectID
	_, err = coll.ReplaceOne(ctx, bson.M{"key": rec.Key}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *PhaseStore) Remove(ctx context.Context, p models.Partition, key string) error {
	coll, err := s.collection(p)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = coll.DeleteOne(ctx, bson.M{"key": key})
	return err
}
