// internal/model/statistics.go
package model

import (
	"time"
)

// EventKind is the counter a statistics event increments.
type EventKind string

const (
	EventViews  EventKind = "views"
	EventClicks EventKind = "clicks"
)

// Valid reports whether k is one of the two counters.
func (k EventKind) Valid() bool {
	return k == EventViews || k == EventClicks
}

// StatisticsKey identifies one counter record. An empty WidgetID is the
// profile-level record and never merges with a widget-scoped one.
type StatisticsKey struct {
	ProfileID string `json:"profileId"`
	WidgetID  string `json:"widgetId"`
}

// StatisticsEvent is a single page view or click.
type StatisticsEvent struct {
	Key       StatisticsKey
	Kind      EventKind
	VisitorID string // Optional; empty means anonymous
}

// Statistics is the per-(profile, widget) counter record.
// UniqueIDs never holds duplicates and UniqueViews equals its length.
type Statistics struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profileId"`
	WidgetID    string    `json:"widgetId"`
	Views       int64     `json:"views"`
	Clicks      int64     `json:"clicks"`
	UniqueViews int64     `json:"uniqueViews"`
	UniqueIDs   []string  `json:"uniqueIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Key returns the record's composite key.
func (s Statistics) Key() StatisticsKey {
	return StatisticsKey{ProfileID: s.ProfileID, WidgetID: s.WidgetID}
}

// NewStatistics builds the record created by the first event for a key.
func NewStatistics(id string, ev StatisticsEvent, now time.Time) Statistics {
	s := Statistics{
		ID:        id,
		ProfileID: ev.Key.ProfileID,
		WidgetID:  ev.Key.WidgetID,
		UniqueIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ev.Kind == EventViews {
		s.Views = 1
	}
	if ev.Kind == EventClicks {
		s.Clicks = 1
	}
	if ev.VisitorID != "" {
		s.UniqueViews = 1
		s.UniqueIDs = []string{ev.VisitorID}
	}
	return s
}

// Apply merges a subsequent event into an existing record and reports whether
// the visitor was seen for the first time.
// A first-seen visitor counts toward UniqueViews for clicks as well as views.
func (s *Statistics) Apply(ev StatisticsEvent, now time.Time) bool {
	switch ev.Kind {
	case EventViews:
		s.Views++
	case EventClicks:
		s.Clicks++
	}

	isNew := ev.VisitorID != "" && !s.HasVisitor(ev.VisitorID)
	if isNew {
		s.UniqueViews++
		s.UniqueIDs = append(s.UniqueIDs, ev.VisitorID)
	}
	s.UpdatedAt = now
	return isNew
}

// HasVisitor reports whether id was already counted.
func (s *Statistics) HasVisitor(id string) bool {
	for _, v := range s.UniqueIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of a store.
func (s Statistics) Clone() Statistics {
	c := s
	c.UniqueIDs = append([]string{}, s.UniqueIDs...)
	return c
}
