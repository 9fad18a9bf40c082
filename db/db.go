package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	PendingPhasesCollection   = "phases_pending"
	ActivePhasesCollection    = "phases_active"
	ArchivedPhasesCollection  = "phases_archived"
	DebatesCollection         = "debates"
	OpinionsCollection        = "opinions"
	RevisedOpinionsCollection = "revised_opinions"
	MatchesCollection         = "opinion_matches"
	ReviewsCollection         = "reviews"
	ScoresCollection          = "scores"
)

const opTimeout = 10 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// extractDBName parses the database name from the URI, defaulting to "deltadebate"
func extractDBName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "deltadebate"
	}
	if u.Path != "" && u.Path != "/" {
		return u.Path[1:] // Trim leading '/'
	}
	return "deltadebate"
}

// ConnectMongoDB establishes a connection to MongoDB using the provided URI
// and returns the database named in its path.
func ConnectMongoDB(ctx context.Context, uri string, logger zerolog.Logger) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection with a ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	logger.Info().Str("database", dbName).Msg("connected to MongoDB")
	return client, client.Database(dbName), nil
}

// EnsureIndexes creates the unique indexes the stores rely on for their
// upsert semantics.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		PendingPhasesCollection:  {{Keys: bson.D{{Key: "key", Value: 1}}, Options: unique}},
		ActivePhasesCollection:   {{Keys: bson.D{{Key: "key", Value: 1}}, Options: unique}},
		ArchivedPhasesCollection: {{Keys: bson.D{{Key: "key", Value: 1}}, Options: unique}, {Keys: bson.D{{Key: "updatedAt", Value: -1}}}},
		DebatesCollection:        {{Keys: bson.D{{Key: "prompt", Value: 1}}, Options: unique}},
		OpinionsCollection: {
			{Keys: bson.D{{Key: "debate", Value: 1}, {Key: "author", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "author", Value: 1}}},
		},
		RevisedOpinionsCollection: {{Keys: bson.D{{Key: "debate", Value: 1}, {Key: "author", Value: 1}}, Options: unique}},
		MatchesCollection:         {{Keys: bson.D{{Key: "debate", Value: 1}, {Key: "reviewer", Value: 1}}, Options: unique}},
		ReviewsCollection: {
			{Keys: bson.D{{Key: "reviewer", Value: 1}, {Key: "debate", Value: 1}, {Key: "opinion", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "opinion", Value: 1}, {Key: "score", Value: -1}}},
		},
		ScoresCollection: {
			{Keys: bson.D{{Key: "debate", Value: 1}, {Key: "opinion", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "opinion", Value: 1}}},
		},
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	for name, idx := range indexes {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func notFound(err error) bool {
	return err == mongo.ErrNoDocuments
}
