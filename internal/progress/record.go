// Package progress holds per-user, per-concept mastery records and the rules
// for updating them.
package progress

import (
	"fmt"
	"math"
	"time"
)

// MasteryThreshold is the normalized score at which a concept counts as
// mastered. It is fixed for every concept.
const MasteryThreshold = 0.75

// Status is the lifecycle state of a mastery record.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Record is one user's progress on one concept. MasteryScore is normalized to
// [0,1] and never decreases except through Reset.
type Record struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	ConceptID       string     `json:"concept_id"`
	CourseID        string     `json:"course_id,omitempty"`
	MasteryScore    float64    `json:"mastery_score"`
	Attempts        int        `json:"attempts"`
	Mastered        bool       `json:"mastered"`
	MasteredAt      *time.Time `json:"mastered_at,omitempty"`
	Status          Status     `json:"status"`
	DescriptionRead bool       `json:"description_read"`
	VideoWatched    bool       `json:"video_watched"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewRecord returns a zero-progress record.
func NewRecord(userID, conceptID string, now time.Time) Record {
	return Record{
		UserID:    userID,
		ConceptID: conceptID,
		Status:    StatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidatePercent checks that an observed score is on the 0-100 scale.
func ValidatePercent(percent float64) error {
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return fmt.Errorf("score %v outside 0-100", percent)
	}
	return nil
}

// ApplyAttempt folds one observed score (0-100) into the record. The stored
// score becomes the maximum ever seen and attempts grows by one. Reaching the
// threshold marks the record mastered and completed; MasteredAt is set only
// the first time. It returns true when this attempt newly mastered the concept.
func (r *Record) ApplyAttempt(percent float64, courseID string, now time.Time) bool {
	if score := FromPercent(percent); score > r.MasteryScore {
		r.MasteryScore = score
	}
	r.Attempts++
	if courseID != "" {
		r.CourseID = courseID
	}
	r.UpdatedAt = now

	newlyMastered := false
	if r.MasteryScore >= MasteryThreshold {
		if !r.Mastered {
			newlyMastered = true
			r.Mastered = true
		}
		if r.MasteredAt == nil {
			at := now
			r.MasteredAt = &at
		}
		r.Status = StatusCompleted
	} else if r.Status == StatusNotStarted || r.Status == "" {
		r.Status = StatusInProgress
	}
	return newlyMastered
}

// MarkViewed records that the concept's description or video was consumed.
// Flags only move from false to true here.
func (r *Record) MarkViewed(descriptionRead, videoWatched bool, now time.Time) {
	r.DescriptionRead = r.DescriptionRead || descriptionRead
	r.VideoWatched = r.VideoWatched || videoWatched
	if r.Status == StatusNotStarted || r.Status == "" {
		r.Status = StatusInProgress
	}
	r.UpdatedAt = now
}

// Reset returns the record to its unlocked-but-untouched state. The attempt
// count is history and survives; everything that gates or reports mastery is
// cleared.
func (r *Record) Reset(now time.Time) {
	r.MasteryScore = 0
	r.Mastered = false
	r.MasteredAt = nil
	r.Status = StatusNotStarted
	r.DescriptionRead = false
	r.VideoWatched = false
	r.UpdatedAt = now
}

// Percent returns the score on the 0-100 scale used by storage, rounded to
// four decimals so that a stored 90 reads back as exactly 0.9.
func (r Record) Percent() float64 {
	return math.Round(r.MasteryScore*1e6) / 1e4
}

// FromPercent converts a stored 0-100 score to the normalized scale.
func FromPercent(percent float64) float64 {
	return percent / 100
}
