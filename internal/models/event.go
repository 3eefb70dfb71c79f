package models

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/varianta/varianta/internal/database"
)

// EventRecord is one raw exposure or conversion row from the event store.
type EventRecord struct {
	ExperimentID uuid.UUID `json:"experiment_id"`
	VariantID    uuid.UUID `json:"variant_id"`
	SessionID    string    `json:"session_id"`
	EventType    string    `json:"event_type"`
	Country      *string   `json:"country,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// InsertEvent records a single event.
func InsertEvent(ctx context.Context, ev *EventRecord) error {
	query := `
		INSERT INTO experiment_event (experiment_id, variant_id, session_id, event_type, country, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`

	country := ""
	if ev.Country != nil {
		country = *ev.Country
	}
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := database.DB.ExecContext(ctx, query,
		ev.ExperimentID, ev.VariantID, ev.SessionID, ev.EventType, country, at)
	return err
}

// GetEvents returns the raw events for an experiment over the trailing
// window, oldest first.
func GetEvents(ctx context.Context, experimentID uuid.UUID, days int) ([]*EventRecord, error) {
	query := `
		SELECT experiment_id, variant_id, session_id, event_type, country, created_at
		FROM experiment_event
		WHERE experiment_id = $1
		  AND created_at >= NOW() - make_interval(days => $2)
		ORDER BY created_at ASC`

	rows, err := database.DB.QueryContext(ctx, query, experimentID, days)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.ExperimentID, &ev.VariantID, &ev.SessionID,
			&ev.EventType, &ev.Country, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountrySlice holds per-country conversion counts for the breakdown API.
type CountrySlice struct {
	Country     string `json:"country"`
	Visitors    int    `json:"visitors"`
	Conversions int    `json:"conversions"`
}

// GetCountryBreakdown aggregates distinct sessions and converting sessions
// per country for an experiment. Events without geography group under "".
func GetCountryBreakdown(ctx context.Context, experimentID uuid.UUID, goal string, days int) ([]*CountrySlice, error) {
	query := `
		SELECT COALESCE(country, ''),
		       COUNT(DISTINCT session_id),
		       COUNT(DISTINCT session_id) FILTER (WHERE event_type = $2)
		FROM experiment_event
		WHERE experiment_id = $1
		  AND created_at >= NOW() - make_interval(days => $3)
		GROUP BY COALESCE(country, '')
		ORDER BY COUNT(DISTINCT session_id) DESC`

	rows, err := database.DB.QueryContext(ctx, query, experimentID, goal, days)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var slices []*CountrySlice
	for rows.Next() {
		var s CountrySlice
		if err := rows.Scan(&s.Country, &s.Visitors, &s.Conversions); err != nil {
			return nil, err
		}
		slices = append(slices, &s)
	}
	return slices, rows.Err()
}

// VariantCounts is a live rollup of one variant's totals.
type VariantCounts struct {
	VariantID   uuid.UUID `json:"variant_id"`
	VariantName string    `json:"variant_name"`
	Visitors    int       `json:"visitors"`
	Conversions int       `json:"conversions"`
}

// GetLiveCounts returns current per-variant visitor/conversion totals,
// used by the live websocket feed.
func GetLiveCounts(ctx context.Context, experimentID uuid.UUID, goal string) ([]*VariantCounts, error) {
	query := `
		SELECT v.variant_id, v.name,
		       COUNT(DISTINCT e.session_id),
		       COUNT(DISTINCT e.session_id) FILTER (WHERE e.event_type = $2)
		FROM variant v
		LEFT JOIN experiment_event e ON e.variant_id = v.variant_id
		WHERE v.experiment_id = $1
		GROUP BY v.variant_id, v.name, v.is_control, v.created_at
		ORDER BY v.is_control DESC, v.created_at ASC`

	rows, err := database.DB.QueryContext(ctx, query, experimentID, goal)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var counts []*VariantCounts
	for rows.Next() {
		var c VariantCounts
		if err := rows.Scan(&c.VariantID, &c.VariantName, &c.Visitors, &c.Conversions); err != nil {
			return nil, err
		}
		counts = append(counts, &c)
	}
	return counts, rows.Err()
}
