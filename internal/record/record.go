// Package record defines the persisted units of phototag: tagged photo
// records and the one-shot alarms bound to them.
package record

// TaggedRecord binds an externally stored photo to its tags and comment.
type TaggedRecord struct {
	// ID is a ULID that uniquely identifies this record
	ID string `json:"id"`

	// PhotoRef is an opaque handle or URI owned by the photo library
	PhotoRef string `json:"photo_ref"`

	// Tags is the normalized, de-duplicated tag set in insertion order
	Tags []string `json:"tags"`

	// Comment is free text and may be empty
	Comment string `json:"comment"`

	// CreatedAt is the Unix timestamp when the record was created
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last tag or comment edit
	UpdatedAt int64 `json:"updated_at"`
}

// HasTag reports whether the record carries tag exactly.
func (r *TaggedRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AlarmStatus is the lifecycle state of an alarm.
type AlarmStatus string

const (
	StatusPending   AlarmStatus = "pending"
	StatusFired     AlarmStatus = "fired"
	StatusCancelled AlarmStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s AlarmStatus) Terminal() bool {
	return s == StatusFired || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s AlarmStatus) Valid() bool {
	switch s {
	case StatusPending, StatusFired, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
// Only pending alarms move, and only to fired or cancelled.
func (s AlarmStatus) CanTransition(next AlarmStatus) bool {
	return s == StatusPending && next.Terminal()
}

// Alarm is a one-shot reminder bound to exactly one TaggedRecord.
// Its ID doubles as the platform notification identifier.
type Alarm struct {
	ID       string      `json:"id"`
	RecordID string      `json:"record_id"`
	FireAt   int64       `json:"fire_at"`
	Status   AlarmStatus `json:"status"`

	// ScheduleError holds the last timer service rejection, nil once accepted
	ScheduleError *string `json:"schedule_error,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}
