package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Debate is a prompt that participants write opinions about.
type Debate struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Prompt       string             `bson:"prompt" json:"prompt"`
	Category     string             `bson:"category" json:"category"`
	Participants []string           `bson:"participants" json:"participants"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// HasParticipant reports whether user already submitted an opinion.
func (d *Debate) HasParticipant(user string) bool {
	for _, p := range d.Participants {
		if p == user {
			return true
		}
	}
	return false
}

// Opinion is a participant's stance on a debate prompt.
// LikertScale runs 0-100 by convention.
type Opinion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Content     string             `bson:"content" json:"content"`
	Author      string             `bson:"author" json:"author"`
	LikertScale float64            `bson:"likertScale" json:"likertScale"`
	Debate      string             `bson:"debate" json:"debate"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// RevisedOpinion is the stance a participant submits after reading dissent.
type RevisedOpinion Opinion

// OpinionContent pairs an opinion id with its text.
type OpinionContent struct {
	OpinionID string `json:"opinionId"`
	Content   string `json:"content"`
}

// DifferentOpinionMatch is the dissent sample shown to one reviewer.
type DifferentOpinionMatch struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Reviewer        string             `bson:"reviewer" json:"reviewer"`
	Debate          string             `bson:"debate" json:"debate"`
	MatchedOpinions []string           `bson:"matchedOpinions" json:"matchedOpinions"`
}

// Contains reports whether opinionID is in the match set.
func (m *DifferentOpinionMatch) Contains(opinionID string) bool {
	for _, id := range m.MatchedOpinions {
		if id == opinionID {
			return true
		}
	}
	return false
}
