package analytics

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/siteforge-io/siteforge/internal/pkg/cache"
)

// eventsKey is the Redis list consumed by the downstream analytics exporter.
const eventsKey = "siteforge:analytics:events"

// maxQueueLen caps the event backlog when the exporter is down.
const maxQueueLen = 100000

// Event is a single tracked product event.
type Event struct {
	Name       string                 `json:"event"`
	UserID     uint                   `json:"userId,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Tracker records product events. Implementations are fire-and-forget:
// tracking never fails the calling operation.
type Tracker interface {
	Track(event string, userID uint, properties map[string]interface{})
}

// RedisTracker pushes events onto a Redis list for the exporter to drain.
type RedisTracker struct{}

// NewRedisTracker creates the default tracker.
func NewRedisTracker() *RedisTracker {
	return &RedisTracker{}
}

// Track serializes and enqueues one event.
func (t *RedisTracker) Track(event string, userID uint, properties map[string]interface{}) {
	if event == "" {
		return
	}

	payload, err := json.Marshal(Event{
		Name:       event,
		UserID:     userID,
		Properties: properties,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("analytics: marshal %s failed: %v", event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := cache.GetClient()
	if err := client.RPush(ctx, eventsKey, payload).Err(); err != nil {
		log.Printf("analytics: enqueue %s failed: %v", event, err)
		return
	}
	// Trim oldest entries past the cap. Best-effort.
	client.LTrim(ctx, eventsKey, -maxQueueLen, -1)
}

// LogTracker writes events to the process log. Used in tests and local
// development without Redis.
type LogTracker struct{}

func (LogTracker) Track(event string, userID uint, properties map[string]interface{}) {
	log.Printf("analytics: %s user=%d props=%v", event, userID, properties)
}

// NopTracker drops all events.
type NopTracker struct{}

func (NopTracker) Track(string, uint, map[string]interface{}) {}
