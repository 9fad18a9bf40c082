package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Partition names the collection a phase record currently lives in.
type Partition string

const (
	PartitionPending  Partition = "pending"
	PartitionActive   Partition = "active"
	PartitionArchived Partition = "archived"
)

// PhaseLabels are the display names of each phase ordinal.
var PhaseLabels = []string{"Proposed", "Start", "Review", "Recently Completed", "Archived"}

// PhaseRecord tracks where a scheduled key is in its lifecycle.
// Deadline is only set while the record is active.
type PhaseRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Key       string             `bson:"key" json:"key"`
	CurPhase  int                `bson:"curPhase" json:"curPhase"`
	Deadline  *time.Time         `bson:"deadline,omitempty" json:"deadline,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PhaseLabel returns the display name for the record's phase.
func (p PhaseRecord) PhaseLabel() string {
	if p.CurPhase >= 0 && p.CurPhase < len(PhaseLabels) {
		return PhaseLabels[p.CurPhase]
	}
	return PhaseLabels[len(PhaseLabels)-1]
}

// Clone returns a deep copy so callers can mutate the deadline freely.
func (p PhaseRecord) Clone() PhaseRecord {
	if p.Deadline != nil {
		d := *p.Deadline
		p.Deadline = &d
	}
	return p
}
