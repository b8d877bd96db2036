package lifecycle

import (
	"strings"
	"time"
)

// Stage is the time-of-day persona variant.
type Stage string

const (
	Baby  Stage = "baby"
	Adult Stage = "adult"
	Old   Stage = "old"

	// Born and Dead are part of the persona vocabulary but never derived from the clock.
	Born Stage = "born"
	Dead Stage = "dead"
)

// StageAt maps a wall-clock time onto a stage: baby in the morning, adult in the
// afternoon, old from the evening until dawn.
func StageAt(t time.Time) Stage {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return Baby
	case h >= 12 && h < 18:
		return Adult
	default:
		return Old
	}
}

func Parse(raw string) (Stage, bool) {
	switch s := Stage(strings.ToLower(strings.TrimSpace(raw))); s {
	case Baby, Adult, Old, Born, Dead:
		return s, true
	default:
		return "", false
	}
}

// Snapshot is what the UI polls to animate the mascot's age.
type Snapshot struct {
	Stage     Stage     `json:"stage"`
	StartedAt time.Time `json:"started_at"`
	Now       time.Time `json:"now"`
	NextAt    time.Time `json:"next_at"`
}

// Clock derives stages in a fixed location and remembers when the process started.
type Clock struct {
	loc       *time.Location
	startedAt time.Time
	now       func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{
		loc:       loc,
		startedAt: time.Now().In(loc),
		now:       time.Now,
	}
}

func (c *Clock) Stage() Stage {
	return StageAt(c.now().In(c.loc))
}

func (c *Clock) StartedAt() time.Time {
	return c.startedAt
}

func (c *Clock) Snapshot() Snapshot {
	now := c.now().In(c.loc)
	return Snapshot{
		Stage:     StageAt(now),
		StartedAt: c.startedAt,
		Now:       now,
		NextAt:    nextBoundary(now),
	}
}

func nextBoundary(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, h := range []int{6, 12, 18} {
		if b := day.Add(time.Duration(h) * time.Hour); b.After(now) {
			return b
		}
	}
	return day.AddDate(0, 0, 1).Add(6 * time.Hour)
}

// Voices holds one persona voice id per living stage.
type Voices struct {
	Baby  string
	Adult string
	Old   string
}

// For picks the voice for a stage. Stages without a voice of their own use Adult.
func (v Voices) For(stage Stage) string {
	switch stage {
	case Baby:
		if v.Baby != "" {
			return v.Baby
		}
	case Old:
		if v.Old != "" {
			return v.Old
		}
	}
	return v.Adult
}
