// Package export pushes finished topics to an external sink through a
// rate-limited upsert contract.
package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"scout/internal/core"
	"scout/internal/logger"
)

// sinkRate is the external sink's request budget, 2.5 req/s.
const sinkRate = 2.5

// Action reports what an upsert did.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// Sink is the upsert contract an external destination implements.
type Sink interface {
	UpsertTopic(ctx context.Context, topic core.Topic) (Action, error)
}

// Publisher marks topics published after a successful upsert.
type Publisher interface {
	MarkTopicPublished(id string) error
}

// BatchResult aggregates one export run.
type BatchResult struct {
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Errors   []error
	Duration time.Duration
}

// Exporter drives a sink under the rate budget.
type Exporter struct {
	sink      Sink
	publisher Publisher
	limiter   *rate.Limiter
}

// New wires an exporter. publisher may be nil when the caller handles
// publication state itself.
func New(sink Sink, publisher Publisher) *Exporter {
	return &Exporter{
		sink:      sink,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Limit(sinkRate), 1),
	}
}

// ExportTopic upserts one topic and marks it published on success.
func (e *Exporter) ExportTopic(ctx context.Context, topic core.Topic) (Action, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}
	action, err := e.sink.UpsertTopic(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("failed to export topic %s: %w", topic.ID, err)
	}
	if e.publisher != nil && action != ActionSkipped {
		if err := e.publisher.MarkTopicPublished(topic.ID); err != nil {
			logger.Warn("exported but not marked published", "topic", topic.ID, "error", err.Error())
		}
	}
	return action, nil
}

// ExportBatch upserts many topics. With skipErrors set, per-topic
// failures are collected and the batch continues; otherwise the first
// failure aborts.
func (e *Exporter) ExportBatch(ctx context.Context, topics []core.Topic, skipErrors bool) (*BatchResult, error) {
	started := time.Now()
	result := &BatchResult{}
	for _, topic := range topics {
		action, err := e.ExportTopic(ctx, topic)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			if !skipErrors {
				result.Duration = time.Since(started)
				return result, err
			}
			continue
		}
		switch action {
		case ActionCreated:
			result.Created++
		case ActionUpdated:
			result.Updated++
		default:
			result.Skipped++
		}
	}
	result.Duration = time.Since(started)
	logger.Info("export batch finished",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}
