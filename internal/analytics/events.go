// Package analytics records what users search for and where they navigate.
// Events flow from the search service through Kafka (or directly, when Kafka
// is disabled) into an Aggregator that serves rolling statistics.
package analytics

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/kafka"
)

type EventType string

const (
	EventSearch   EventType = "search"
	EventNavigate EventType = "navigate"
)

// SearchEvent describes one applied search.
type SearchEvent struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Query       string    `json:"query"`
	Groups      int       `json:"groups"`
	TotalGroups int       `json:"total_groups"`
	Truncated   bool      `json:"truncated"`
	CacheHit    bool      `json:"cache_hit"`
	ShardErrors int       `json:"shard_errors"`
	LatencyMs   float64   `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// NavigateEvent describes one commit of a result.
type NavigateEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Query     string    `json:"query"`
	Key       string    `json:"key"`
	Scope     string    `json:"scope,omitempty"`
	PageID    string    `json:"page_id"`
	Anchor    string    `json:"anchor,omitempty"`
	Resolved  bool      `json:"resolved"`
	Timestamp time.Time `json:"timestamp"`
}

// partitionKey groups a session's events on one Kafka partition.
func partitionKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		if e.SessionID != "" {
			return e.SessionID
		}
		return "search"
	case NavigateEvent:
		if e.SessionID != "" {
			return e.SessionID
		}
		return "navigate"
	}
	return "analytics"
}

// DecodeEvent unmarshals a wire event by its type field.
func DecodeEvent(value []byte) (any, error) {
	head, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch head.Type {
	case EventSearch:
		e, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EventNavigate:
		e, err := kafka.DecodeJSON[NavigateEvent](value)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown analytics event type %q", head.Type)
}
