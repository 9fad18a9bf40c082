package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deltadebate/models"
)

// MatchStore keeps dissent match records. Membership changes use $addToSet
// and $pull so concurrent writers never overwrite each other's arrays.
type MatchStore struct {
	matches *mongo.Collection
}

// NewMatchStore creates a MatchStore on database.
func NewMatchStore(database *mongo.Database) *MatchStore {
	return &MatchStore{matches: database.Collection(MatchesCollection)}
}

func (s *MatchStore) Find(ctx context.Context, debateID, reviewer string) (*models.DifferentOpinionMatch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var m models.DifferentOpinionMatch
	if err := s.matches.FindOne(ctx, bson.M{"debate": debateID, "reviewer": reviewer}).Decode(&m); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if m.MatchedOpinions == nil {
		m.MatchedOpinions = []string{}
	}
	return &m, nil
}

func (s *MatchStore) AddOpinions(ctx context.Context, debateID, reviewer string, ids []string) (*models.DifferentOpinionMatch, error) {
	update := bson.M{"$setOnInsert": bson.M{"matchedOpinions": []string{}}}
	if len(ids) > 0 {
		update = bson.M{"$addToSet": bson.M{"matchedOpinions": bson.M{"$each": ids}}}
	}

	opCtx, cancel := withTimeout(ctx)
	_, err := s.matches.UpdateOne(opCtx, bson.M{"debate": debateID, "reviewer": reviewer}, update, options.Update().SetUpsert(true))
	cancel()
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}

	m, err := s.Find(ctx, debateID, reviewer)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, mongo.ErrNoDocuments
	}
	return m, nil
}

func (s *MatchStore) RemoveOpinion(ctx context.Context, debateID, reviewer, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.matches.UpdateOne(ctx,
		bson.M{"debate": debateID, "reviewer": reviewer, "matchedOpinions": id},
		bson.M{"$pull": bson.M{"matchedOpinions": id}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MatchStore) PullOpinion(ctx context.Context, debateID, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.matches.UpdateMany(ctx,
		bson.M{"debate": debateID, "matchedOpinions": id},
		bson.M{"$pull": bson.M{"matchedOpinions": id}},
	)
	return err
}

func (s *MatchStore) DeleteForReviewer(ctx context.Context, debateID, reviewer string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.matches.DeleteOne(ctx, bson.M{"debate": debateID, "reviewer": reviewer})
	return err
}

func (s *MatchStore) DeleteForDebates(ctx context.Context, debates []string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.matches.DeleteMany(ctx, bson.M{"debate": bson.M{"$in": debates}})
	return err
}
