package service

import (
	"context"

	"webhook-ingest/backend/internal/models"
	"webhook-ingest/backend/internal/store"
	"webhook-ingest/backend/pkg/metrics"
)

// StatsService computes on-demand statistics
type StatsService struct {
	store store.MessageStore
}

// NewStatsService creates a StatsService
func NewStatsService(messages store.MessageStore) *StatsService {
	return &StatsService{store: messages}
}

// Stats returns totals, the top senders and the ts range from one snapshot
func (s *StatsService) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.store.Aggregate(ctx)
	if err != nil {
		metrics.QueryRequestsTotal.WithLabelValues("stats", "error").Inc()
		return nil, err
	}
	metrics.QueryRequestsTotal.WithLabelValues("stats", "ok").Inc()

	if stats.MessagesPerSender == nil {
		stats.MessagesPerSender = []models.SenderCount{}
	}
	return stats, nil
}
