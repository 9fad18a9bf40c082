package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review is one reviewer's weight for one opinion.
type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Reviewer  string             `bson:"reviewer" json:"reviewer"`
	Debate    string             `bson:"debate" json:"debate"`
	Opinion   string             `bson:"opinion" json:"opinion"`
	Score     float64            `bson:"score" json:"score"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ScoreRecord freezes the first computed delta of an opinion.
type ScoreRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Debate     string             `bson:"debate" json:"debate"`
	Opinion    string             `bson:"opinion" json:"opinion"`
	TotalScore float64            `bson:"totalScore" json:"totalScore"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
