package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Wire format, comma separated:
//
//	score:  user,team,score,timestamp_ms,readable_timestamp,event_id
//	action: user,timestamp_ms,readable_timestamp,event_id
//
// The readable timestamp is for humans only and is ignored. A missing
// event_id falls back to "none" so malformed producers still correlate
// into a (useless but counted) bucket instead of failing the parse.

const fallbackEventID = "none"

// ParseScoreEvent parses one score event line.
func ParseScoreEvent(line string, ingest time.Time) (Event, error) {
	parts := splitFields(line)
	if len(parts) < 4 {
		return Event{}, fmt.Errorf("score event: want at least 4 fields, got %d", len(parts))
	}
	score, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("score event: bad score %q: %w", parts[2], err)
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("score event: bad timestamp %q: %w", parts[3], err)
	}
	id := fallbackEventID
	if len(parts) >= 6 {
		id = parts[5]
	}
	return Event{
		Kind:       KindScore,
		EventID:    id,
		User:       parts[0],
		Team:       parts[1],
		Score:      score,
		EventTime:  time.UnixMilli(ts),
		IngestTime: ingest,
	}, nil
}

// ParseActionEvent parses one play-action event line.
func ParseActionEvent(line string, ingest time.Time) (Event, error) {
	parts := splitFields(line)
	if len(parts) < 4 {
		return Event{}, fmt.Errorf("action event: want at least 4 fields, got %d", len(parts))
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("action event: bad timestamp %q: %w", parts[1], err)
	}
	return Event{
		Kind:       KindAction,
		EventID:    parts[3],
		User:       parts[0],
		EventTime:  time.UnixMilli(ts),
		IngestTime: ingest,
	}, nil
}

func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
