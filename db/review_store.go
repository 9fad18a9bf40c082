package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deltadebate/models"
)

// ReviewStore keeps reviews and frozen score totals.
type ReviewStore struct {
	reviews *mongo.Collection
	scores  *mongo.Collection
}

// NewReviewStore creates a ReviewStore on database.
func NewReviewStore(database *mongo.Database) *ReviewStore {
	return &ReviewStore{
		reviews: database.Collection(ReviewsCollection),
		scores:  database.Collection(ScoresCollection),
	}
}

func (s *ReviewStore) UpsertReview(ctx context.Context, r models.Review) (models.Review, bool, error) {
	filter := bson.M{"reviewer": r.Reviewer, "debate": r.Debate, "opinion": r.Opinion}
	update := bson.M{"$set": bson.M{"score": r.Score, "updatedAt": time.Now()}}

	opCtx, cancel := withTimeout(ctx)
	res, err := s.reviews.UpdateOne(opCtx, filter, update, options.Update().SetUpsert(true))
	cancel()
	if err != nil {
		return models.Review{}, false, err
	}

	stored, err := s.FindReview(ctx, r.Reviewer, r.Debate, r.Opinion)
	if err != nil {
		return models.Review{}, false, err
	}
	if stored == nil {
		return models.Review{}, false, mongo.ErrNoDocuments
	}
	return *stored, res.UpsertedID != nil, nil
}

func (s *ReviewStore) FindReview(ctx context.Context, reviewer, debateID, opinion string) (*models.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var r models.Review
	err := s.reviews.FindOne(ctx, bson.M{"reviewer": reviewer, "debate": debateID, "opinion": opinion}).Decode(&r)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *ReviewStore) ReviewsForOpinion(ctx context.Context, opinion string) ([]models.Review, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "score", Value: -1}, {Key: "reviewer", Value: 1}})
	cursor, err := s.reviews.Find(ctx, bson.M{"opinion": opinion}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reviews := []models.Review{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (s *ReviewStore) findScore(ctx context.Context, filter bson.M) (*models.ScoreRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rec models.ScoreRecord
	if err := s.scores.FindOne(ctx, filter).Decode(&rec); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *ReviewStore) FindScore(ctx context.Context, debateID, opinion string) (*models.ScoreRecord, error) {
	return s.findScore(ctx, bson.M{"debate": debateID, "opinion": opinion})
}

func (s *ReviewStore) FindScoreByOpinion(ctx context.Context, opinion string) (*models.ScoreRecord, error) {
	return s.findScore(ctx, bson.M{"opinion": opinion})
}

// InsertScoreIfAbsent relies on $setOnInsert, so an existing total is never
// touched.
func (s *ReviewStore) InsertScoreIfAbsent(ctx context.Context, rec models.ScoreRecord) (models.ScoreRecord, error) {
	filter := bson.M{"debate": rec.Debate, "opinion": rec.Opinion}
	update := bson.M{"$setOnInsert": bson.M{"totalScore": rec.TotalScore, "createdAt": time.Now()}}

	opCtx, cancel := withTimeout(ctx)
	_, err := s.scores.UpdateOne(opCtx, filter, update, options.Update().SetUpsert(true))
	cancel()
	// A concurrent upsert can lose the race on the unique index; the winner's
	// value is read back below.
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return models.ScoreRecord{}, err
	}

	stored, err := s.findScore(ctx, filter)
	if err != nil {
		return models.ScoreRecord{}, err
	}
	if stored == nil {
		return models.ScoreRecord{}, mongo.ErrNoDocuments
	}
	return *stored, nil
}
