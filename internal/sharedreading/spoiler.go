package sharedreading

import (
	"bookshelf/internal/models"
)

// Visibility of a discussion message to one viewer
type Visibility int

const (
	Hidden Visibility = iota
	Revealed
)

func (v Visibility) String() string {
	if v == Revealed {
		return "revealed"
	}
	return "hidden"
}

// SpoilerGate tracks which spoilers one viewer has revealed early.
// Reveals are session-local and never persisted. A SpoilerGate is not safe
// for concurrent use.
type SpoilerGate struct {
	viewer   string
	lastSeen models.Date
	revealed map[string]int // message ID -> day the message was written for
}

// NewSpoilerGate returns a gate for the viewer's email
func NewSpoilerGate(viewer string) *SpoilerGate {
	return &SpoilerGate{
		viewer:   viewer,
		revealed: make(map[string]int),
	}
}

// Observe records that the viewer is looking at the reading on today, where
// currentDay is the reading's current day. On the first observation of a new
// calendar day every early reveal of a message whose day has not passed yet
// is dropped, so those spoilers hide again. Reveals made before the gate was
// ever observed carry no date and are dropped by the first observation.
func (g *SpoilerGate) Observe(today models.Date, currentDay int) {
	if today.Equal(g.lastSeen) {
		return
	}
	g.lastSeen = today
	for id, day := range g.revealed {
		if day >= currentDay {
			delete(g.revealed, id)
		}
	}
}

// Reveal shows a spoiler early. Observe the current day first so the reveal
// is dated.
func (g *SpoilerGate) Reveal(msg models.SharedReadingMessage) {
	g.revealed[msg.ID] = msg.DayNumber
}

// Visibility returns whether msg is shown to the viewer on currentDay.
// Non-spoilers and the viewer's own messages are always shown; spoilers are
// shown once their day has passed or after an early reveal.
func (g *SpoilerGate) Visibility(msg models.SharedReadingMessage, currentDay int) Visibility {
	if !msg.IsSpoiler || msg.Author == g.viewer {
		return Revealed
	}
	if currentDay > msg.DayNumber {
		return Revealed
	}
	if _, ok := g.revealed[msg.ID]; ok {
		return Revealed
	}
	return Hidden
}
