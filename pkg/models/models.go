// Package models defines the entity records synchronized by the engine and
// the typed identifiers that travel between the in-memory stores, the local
// snapshot cache, and the remote SurrealDB tables.
//
// Every record carries a stable locally-generated UUID identity and an owner
// reference; relationships between records are held by identifier, never by
// embedded pointer, so that a child can be created optimistically while its
// parent's remote confirmation is still in flight.
package models

import "time"

// Table names as they exist in the remote store. These double as the keys of
// the local cache snapshots and the routing keys of realtime change events.
const (
	TableCourses     = "courses"
	TableAssignments = "assignments"
	TableEvents      = "events"
	TableCategories  = "categories"
)

// Record is implemented by every synchronized entity type.
type Record interface {
	// Key returns the entity's identifier rendered as a string, unique
	// within the entity's table.
	Key() string
	// Owner returns the authenticated user the record belongs to.
	Owner() UserID
}

// Course is a class the user is enrolled in. Assignments reference their
// course by ID; deleting a course cascades to its assignments.
type Course struct {
	ID         CourseID   `json:"id"`
	OwnerID    UserID     `json:"owner_id"`
	Name       string     `json:"name"`
	Code       string     `json:"code,omitempty"`
	ColorHex   string     `json:"color_hex,omitempty"`
	ScheduleID ScheduleID `json:"schedule_id,omitempty"`
	Grade      *float64   `json:"grade,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c Course) Key() string   { return c.ID.String() }
func (c Course) Owner() UserID { return c.OwnerID }

// Assignment is graded work belonging to a course.
type Assignment struct {
	ID        AssignmentID `json:"id"`
	OwnerID   UserID       `json:"owner_id"`
	CourseID  CourseID     `json:"course_id"`
	Title     string       `json:"title"`
	Notes     string       `json:"notes,omitempty"`
	DueAt     time.Time    `json:"due_at"`
	Weight    float64      `json:"weight,omitempty"`
	Completed bool         `json:"completed"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (a Assignment) Key() string   { return a.ID.String() }
func (a Assignment) Owner() UserID { return a.OwnerID }

// Event is a calendar entry, optionally grouped under a category. Deleting a
// category detaches its events rather than removing them.
type Event struct {
	ID         EventID    `json:"id"`
	OwnerID    UserID     `json:"owner_id"`
	CategoryID CategoryID `json:"category_id,omitempty"`
	Title      string     `json:"title"`
	StartAt    time.Time  `json:"start_at"`
	EndAt      time.Time  `json:"end_at"`
	Location   string     `json:"location,omitempty"`
	Reminder   bool       `json:"reminder"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (e Event) Key() string   { return e.ID.String() }
func (e Event) Owner() UserID { return e.OwnerID }

// Category groups events for display and filtering.
type Category struct {
	ID        CategoryID `json:"id"`
	OwnerID   UserID     `json:"owner_id"`
	Name      string     `json:"name"`
	ColorHex  string     `json:"color_hex,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c Category) Key() string   { return c.ID.String() }
func (c Category) Owner() UserID { return c.OwnerID }
