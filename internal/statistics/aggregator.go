// Package statistics records page views and clicks per profile and widget.
package statistics

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/metrics"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
)

// Validation errors returned before any store access.
var (
	ErrMissingProfile = errors.New("profileId is required")
	ErrInvalidKind    = errors.New("type must be views or clicks")
)

// Event is one statistics event as received from a client.
type Event struct {
	ProfileID string
	WidgetID  string // Optional; empty is the profile-level record
	Kind      model.EventKind
	VisitorID string // Optional
}

// Aggregator validates events and merges them into the statistics store.
type Aggregator struct {
	store     storage.StatisticsStore
	publisher event.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an aggregator over store. A nil publisher discards events.
func NewAggregator(store storage.StatisticsStore, publisher event.Publisher, opts ...Option) *Aggregator {
	if publisher == nil {
		publisher = event.Noop{}
	}
	a := &Aggregator{
		store:     store,
		publisher: publisher,
		metrics:   metrics.NewMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordEvent merges ev into the record for (ProfileID, WidgetID) and returns
// the record after the merge. The store applies the merge atomically.
func (a *Aggregator) RecordEvent(ctx context.Context, ev Event) (*model.Statistics, error) {
	profileID := strings.TrimSpace(ev.ProfileID)
	if profileID == "" {
		return nil, ErrMissingProfile
	}
	if !ev.Kind.Valid() {
		return nil, ErrInvalidKind
	}

	se := model.StatisticsEvent{
		Key:       model.StatisticsKey{ProfileID: profileID, WidgetID: strings.TrimSpace(ev.WidgetID)},
		Kind:      ev.Kind,
		VisitorID: strings.TrimSpace(ev.VisitorID),
	}

	start := time.Now()
	s, err := a.store.RecordStatistics(ctx, se, a.now())
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.StorageOperationTotal.WithLabelValues("record_statistics", status).Inc()
	a.metrics.StorageOperationDuration.WithLabelValues("record_statistics", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	a.metrics.StatisticsEventTotal.WithLabelValues(string(se.Kind), strconv.FormatBool(se.VisitorID != "")).Inc()

	if err := a.publisher.PublishStatisticsRecorded(ctx, *s); err != nil {
		a.metrics.EventPublishTotal.WithLabelValues("statistics.recorded", "error").Inc()
		slog.Warn("failed to publish statistics event", "profileId", profileID, "error", err)
	} else {
		a.metrics.EventPublishTotal.WithLabelValues("statistics.recorded", "success").Inc()
	}
	return s, nil
}

// GetStatistics returns the record for (profileID, widgetID), or storage.ErrNotFound.
func (a *Aggregator) GetStatistics(ctx context.Context, profileID, widgetID string) (*model.Statistics, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrMissingProfile
	}
	return a.store.GetStatistics(ctx, model.StatisticsKey{ProfileID: profileID, WidgetID: strings.TrimSpace(widgetID)})
}
