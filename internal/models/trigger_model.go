package models

import "time"

// Trigger is a deferred wake-up bound to an Approved post. It is a hint only:
// the post record decides whether anything is published when it fires.
type Trigger struct {
	UID          string    `json:"uid"`
	FireAt       time.Time `json:"fireAt"`
	RegisteredAt time.Time `json:"registeredAt"`
	Backend      string    `json:"backend,omitempty"`
}

type TriggerDocument struct {
	Triggers    []*Trigger `json:"triggers"`
	LastUpdated time.Time  `json:"lastUpdated"`
}
