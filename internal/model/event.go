package model

import "time"

// AccessEvent is the telemetry payload emitted by the access gate on
// every successful grant and carried through the Redis event queue as
// JSON. Delivery is at-least-once: the analytics worker must tolerate
// duplicates, which the additive aggregates do by construction.
type AccessEvent struct {
	UserID     uint64    `json:"user_id"`
	MaterialID uint64    `json:"material_id"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	OccurredAt time.Time `json:"ts"`
}
