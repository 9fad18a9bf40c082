package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deltadebate/internal/errs"
	"deltadebate/models"
)

// DebateStore keeps debates, opinions and revised opinions.
type DebateStore struct {
	debates  *mongo.Collection
	opinions *mongo.Collection
	revised  *mongo.Collection
}

// NewDebateStore creates a DebateStore on database.
func NewDebateStore(database *mongo.Database) *DebateStore {
	return &DebateStore{
		debates:  database.Collection(DebatesCollection),
		opinions: database.Collection(OpinionsCollection),
		revised:  database.Collection(RevisedOpinionsCollection),
	}
}

func (s *DebateStore) CreateDebate(ctx context.Context, d models.Debate) (models.Debate, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if d.Participants == nil {
		d.Participants = []string{}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if _, err := s.debates.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Debate{}, errs.Conflict("%s already used in a debate!", d.Prompt)
		}
		return models.Debate{}, err
	}
	return d, nil
}

func (s *DebateStore) findDebate(ctx context.Context, filter bson.M) (*models.Debate, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var d models.Debate
	if err := s.debates.FindOne(ctx, filter).Decode(&d); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (s *DebateStore) FindDebate(ctx context.Context, id string) (*models.Debate, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return s.findDebate(ctx, bson.M{"_id": oid})
}

func (s *DebateStore) FindDebateByPrompt(ctx context.Context, prompt string) (*models.Debate, error) {
	return s.findDebate(ctx, bson.M{"prompt": prompt})
}

func (s *DebateStore) DeleteDebate(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err = s.debates.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (s *DebateStore) updateParticipants(ctx context.Context, debateID string, update bson.M) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(debateID)
	if err != nil {
		return false, errs.NotFound("debate %s not found", debateID)
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.debates.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, errs.NotFound("debate %s not found", debateID)
	}
	return res.ModifiedCount > 0, nil
}

// AddParticipant adds user to the participant set and reports whether it
// was missing.
func (s *DebateStore) AddParticipant(ctx context.Context, debateID, user string) (bool, error) {
	return s.updateParticipants(ctx, debateID, bson.M{"$addToSet": bson.M{"participants": user}})
}

// RemoveParticipant removes user from the participant set and reports
// whether it was present.
func (s *DebateStore) RemoveParticipant(ctx context.Context, debateID, user string) (bool, error) {
	return s.updateParticipants(ctx, debateID, bson.M{"$pull": bson.M{"participants": user}})
}

func findOpinion(ctx context.Context, coll *mongo.Collection, filter bson.M) (*models.Opinion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var op models.Opinion
	if err := coll.FindOne(ctx, filter).Decode(&op); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func listOpinions(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]models.Opinion, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	ops := []models.Opinion{}
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// upsertOpinion writes content and stance under (debate, author) and returns
// the stored document.
func upsertOpinion(ctx context.Context, coll *mongo.Collection, op models.Opinion) (models.Opinion, bool, error) {
	filter := bson.M{"debate": op.Debate, "author": op.Author}
	update := bson.M{"$set": bson.M{
		"content":     op.Content,
		"likertScale": op.LikertScale,
		"updatedAt":   time.Now(),
	}}

	opCtx, cancel := withTimeout(ctx)
	res, err := coll.UpdateOne(opCtx, filter, update, options.Update().SetUpsert(true))
	cancel()
	if err != nil {
		return models.Opinion{}, false, err
	}

	stored, err := findOpinion(ctx, coll, filter)
	if err != nil {
		return models.Opinion{}, false, err
	}
	if stored == nil {
		return models.Opinion{}, false, mongo.ErrNoDocuments
	}
	return *stored, res.UpsertedID != nil, nil
}

func (s *DebateStore) FindOpinion(ctx context.Context, debateID, author string) (*models.Opinion, error) {
	return findOpinion(ctx, s.opinions, bson.M{"debate": debateID, "author": author})
}

func (s *DebateStore) OpinionByID(ctx context.Context, id string) (*models.Opinion, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return findOpinion(ctx, s.opinions, bson.M{"_id": oid})
}

func (s *DebateStore) ListOpinions(ctx context.Context, debateID string) ([]models.Opinion, error) {
	return listOpinions(ctx, s.opinions, bson.M{"debate": debateID})
}

func (s *DebateStore) OpinionsByAuthor(ctx context.Context, author string) ([]models.Opinion, error) {
	return listOpinions(ctx, s.opinions, bson.M{"author": author})
}

func (s *DebateStore) UpsertOpinion(ctx context.Context, op models.Opinion) (models.Opinion, bool, error) {
	return upsertOpinion(ctx, s.opinions, op)
}

func (s *DebateStore) DeleteOpinion(ctx context.Context, debateID, author string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.opinions.DeleteOne(ctx, bson.M{"debate": debateID, "author": author})
	return err
}

func (s *DebateStore) DeleteOpinionsForDebate(ctx context.Context, debateID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.opinions.DeleteMany(ctx, bson.M{"debate": debateID})
	return err
}

func (s *DebateStore) FindRevisedOpinion(ctx context.Context, debateID, author string) (*models.RevisedOpinion, error) {
	op, err := findOpinion(ctx, s.revised, bson.M{"debate": debateID, "author": author})
	if err != nil || op == nil {
		return nil, err
	}
	rev := models.RevisedOpinion(*op)
	return &rev, nil
}

func (s *DebateStore) UpsertRevisedOpinion(ctx context.Context, op models.RevisedOpinion) (models.RevisedOpinion, bool, error) {
	stored, created, err := upsertOpinion(ctx, s.revised, models.Opinion(op))
	return models.RevisedOpinion(stored), created, err
}

func (s *DebateStore) DeleteRevisedOpinion(ctx context.Context, debateID, author string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.revised.DeleteOne(ctx, bson.M{"debate": debateID, "author": author})
	return err
}

func (s *DebateStore) DeleteRevisedOpinionsForDebate(ctx context.Context, debateID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.revised.DeleteMany(ctx, bson.M{"debate": debateID})
	return err
}
