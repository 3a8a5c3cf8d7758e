// Package action holds the playback action record and the small value types
// shared by the scheduler, the stores and the player drivers.
package action

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type is the playback control verb sent to the player.
type Type string

const (
	Play  Type = "play"
	Pause Type = "pause"
	Stop  Type = "stop"
)

// DefaultMaxRetries applies when a record leaves MaxRetries unset.
const DefaultMaxRetries = 3

var (
	ErrNotFound    = errors.New("action not found")
	ErrInvalidType = errors.New("invalid action type")
	ErrMissingID   = errors.New("action id is required")
	ErrMissingDate = errors.New("one-time action requires a date")
)

func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Play, Pause, Stop:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

func (t Type) Valid() bool {
	switch t {
	case Play, Pause, Stop:
		return true
	}
	return false
}

// Record is the persisted description of one scheduled playback action.
//
// Daily records fire at Time (wall clock in Timezone); one-time records fire
// at Date. LastRun and NextRun are epoch seconds, 0 meaning unset.
type Record struct {
	ID        string    `json:"id"`
	Type      Type      `json:"action_type"`
	Time      string    `json:"time,omitempty"`
	Date      time.Time `json:"date,omitempty"`
	IsDaily   bool      `json:"is_daily"`
	Timezone  string    `json:"timezone,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	EventName string    `json:"event_name,omitempty"`
	Target    string    `json:"target,omitempty"`
	IsActive  bool      `json:"is_active"`

	LastRun    int64 `json:"last_run,omitempty"`
	NextRun    int64 `json:"next_run,omitempty"`
	RetryCount int   `json:"retry_count"`
	MaxRetries int   `json:"max_retries"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ResolveTarget returns what the player should act on: the explicit target,
// or the linked event name for play actions.
func (r Record) ResolveTarget() string {
	if t := strings.TrimSpace(r.Target); t != "" {
		return t
	}
	if r.Type == Play {
		return strings.TrimSpace(r.EventName)
	}
	return ""
}

// RetryLimit returns MaxRetries, or def when the record leaves it unset.
func (r Record) RetryLimit(def int) int {
	if r.MaxRetries > 0 {
		return r.MaxRetries
	}
	if def > 0 {
		return def
	}
	return DefaultMaxRetries
}

// Validate reports malformed records. Inactive records are still validated.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if r.IsDaily {
		if _, err := ParseTimeOfDay(r.Time); err != nil {
			return err
		}
		return nil
	}
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	IsActive   *bool
	RetryCount *int
	LastRun    *int64
	NextRun    *int64
}

func (p Patch) Empty() bool {
	return p.IsActive == nil && p.RetryCount == nil && p.LastRun == nil && p.NextRun == nil
}

// Apply returns r with the patch applied.
func (p Patch) Apply(r Record) Record {
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.RetryCount != nil {
		r.RetryCount = *p.RetryCount
	}
	if p.LastRun != nil {
		r.LastRun = *p.LastRun
	}
	if p.NextRun != nil {
		r.NextRun = *p.NextRun
	}
	return r
}

// Result is what the player reports for one control call.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RecoveryState is the small process-scoped state kept across restarts.
type RecoveryState struct {
	LastInitialization time.Time `json:"last_initialization,omitempty"`
	ExhaustedIDs       []string  `json:"exhausted_action_ids,omitempty"`
}

// MarkExhausted adds id once. It reports whether the set changed.
func (s *RecoveryState) MarkExhausted(id string) bool {
	for _, v := range s.ExhaustedIDs {
		if v == id {
			return false
		}
	}
	s.ExhaustedIDs = append(s.ExhaustedIDs, id)
	return true
}

// ClearExhausted removes id. It reports whether the set changed.
func (s *RecoveryState) ClearExhausted(id string) bool {
	for i, v := range s.ExhaustedIDs {
		if v == id {
			s.ExhaustedIDs = append(s.ExhaustedIDs[:i:i], s.ExhaustedIDs[i+1:]...)
			return true
		}
	}
	return false
}

func Bool(v bool) *bool    { return &v }
func Int(v int) *int       { return &v }
func Int64(v int64) *int64 { return &v }
