package phase

import (
	"time"

	"deltadebate/models"
)

// Transition describes one record moving during a sweep or intake.
type Transition struct {
	Key       string
	FromPhase int
	ToPhase   int
	Deadline  *time.Time
}

// SweepResult is the outcome of evaluating active records at one instant.
type SweepResult struct {
	// Updated records stay active. Only records whose phase or deadline
	// changed are listed.
	Updated []models.PhaseRecord
	// Archived records left the active partition.
	Archived []models.PhaseRecord
	// ReviewDone holds every key now past the review phase.
	ReviewDone []string
	// Advanced lists every phase change in this sweep.
	Advanced []Transition
	// Remaining is the active partition after the sweep.
	Remaining []models.PhaseRecord
}

// Sweep advances every active record whose deadline passed by exactly one
// phase, collects keys past the review phase, and archives records that
// reached the terminal phase. It does not mutate its input.
func Sweep(now time.Time, cfg Config, active []models.PhaseRecord) SweepResult {
	var res SweepResult
	for _, orig := range active {
		rec := orig.Clone()
		changed := false

		if rec.Deadline != nil && rec.Deadline.Before(now) && rec.CurPhase < cfg.MaxPhase {
			next := rec.Deadline.Add(cfg.DeadlineExtension)
			res.Advanced = append(res.Advanced, Transition{
				Key:       rec.Key,
				FromPhase: rec.CurPhase,
				ToPhase:   rec.CurPhase + 1,
				Deadline:  &next,
			})
			rec.CurPhase++
			rec.Deadline = &next
			rec.UpdatedAt = now
			changed = true
		}

		if rec.CurPhase > 2 {
			res.ReviewDone = append(res.ReviewDone, rec.Key)
		}

		if rec.CurPhase >= cfg.MaxPhase {
			rec.Deadline = nil
			rec.UpdatedAt = now
			res.Archived = append(res.Archived, rec)
			continue
		}
		if changed {
			res.Updated = append(res.Updated, rec)
		}
		res.Remaining = append(res.Remaining, rec)
	}
	return res
}

// Intake promotes pending records into phase 1 until the cap is reached.
// Pending records are taken in the given order; a pending record whose key
// is already active is skipped. The returned records are the new active
// entries.
func Intake(now time.Time, cfg Config, active, pending []models.PhaseRecord) []models.PhaseRecord {
	inPhaseOne := 0
	activeKeys := make(map[string]struct{}, len(active))
	for _, rec := range active {
		activeKeys[rec.Key] = struct{}{}
		if rec.CurPhase == 1 {
			inPhaseOne++
		}
	}

	var promoted []models.PhaseRecord
	for _, rec := range pending {
		if inPhaseOne >= cfg.NumPromptsPerDay {
			break
		}
		if _, ok := activeKeys[rec.Key]; ok {
			continue
		}
		deadline := now.Add(cfg.DeadlineExtension)
		next := rec.Clone()
		next.CurPhase = 1
		next.Deadline = &deadline
		next.UpdatedAt = now
		promoted = append(promoted, next)
		activeKeys[rec.Key] = struct{}{}
		inPhaseOne++
	}
	return promoted
}
