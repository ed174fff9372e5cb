package models

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Typed IDs wrap a UUID so that a CourseID can never be handed to an API
// expecting an AssignmentID. Each type knows its SurrealDB table and marshals
// to a RecordID (CBOR tag 8) on the wire, and to a bare UUID string in JSON
// for the local cache snapshot.

// UserID identifies the authenticated owner of every entity.
type UserID struct {
	uuid uuid.UUID
}

func NewUserID() UserID { return UserID{uuid: uuid.New()} }

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user ID: %w", err)
	}
	return UserID{uuid: id}, nil
}

func (u UserID) UUID() uuid.UUID { return u.uuid }
func (u UserID) String() string  { return u.uuid.String() }
func (u UserID) IsZero() bool    { return u.uuid == uuid.Nil }

func (u UserID) RecordID() surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: "users", ID: u.uuid.String()}
}

func (u UserID) MarshalJSON() ([]byte, error) { return marshalJSONID(u.uuid) }

func (u *UserID) UnmarshalJSON(data []byte) error { return unmarshalJSONID(data, &u.uuid) }

func (u UserID) MarshalCBOR() ([]byte, error) { return marshalCBORID("users", u.uuid) }

func (u *UserID) UnmarshalCBOR(data []byte) error { return unmarshalCBORID(data, "users", &u.uuid) }

// CourseID identifies a course.
type CourseID struct {
	uuid uuid.UUID
}

func NewCourseID() CourseID { return CourseID{uuid: uuid.New()} }

func ParseCourseID(s string) (CourseID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CourseID{}, fmt.Errorf("invalid course ID: %w", err)
	}
	return CourseID{uuid: id}, nil
}

func (c CourseID) UUID() uuid.UUID { return c.uuid }
func (c CourseID) String() string  { return c.uuid.String() }
func (c CourseID) IsZero() bool    { return c.uuid == uuid.Nil }

func (c CourseID) RecordID() surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: TableCourses, ID: c.uuid.String()}
}

func (c CourseID) MarshalJSON() ([]byte, error) { return marshalJSONID(c.uuid) }

func (c *CourseID) UnmarshalJSON(data []byte) error { return unmarshalJSONID(data, &c.uuid) }

func (c CourseID) MarshalCBOR() ([]byte, error) { return marshalCBORID(TableCourses, c.uuid) }

func (c *CourseID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, TableCourses, &c.uuid)
}

// AssignmentID identifies an assignment.
type AssignmentID struct {
	uuid uuid.UUID
}

func NewAssignmentID() AssignmentID { return AssignmentID{uuid: uuid.New()} }

func ParseAssignmentID(s string) (AssignmentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AssignmentID{}, fmt.Errorf("invalid assignment ID: %w", err)
	}
	return AssignmentID{uuid: id}, nil
}

func (a AssignmentID) UUID() uuid.UUID { return a.uuid }
func (a AssignmentID) String() string  { return a.uuid.String() }
func (a AssignmentID) IsZero() bool    { return a.uuid == uuid.Nil }

func (a AssignmentID) RecordID() surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: TableAssignments, ID: a.uuid.String()}
}

func (a AssignmentID) MarshalJSON() ([]byte, error) { return marshalJSONID(a.uuid) }

func (a *AssignmentID) UnmarshalJSON(data []byte) error { return unmarshalJSONID(data, &a.uuid) }

func (a AssignmentID) MarshalCBOR() ([]byte, error) { return marshalCBORID(TableAssignments, a.uuid) }

func (a *AssignmentID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, TableAssignments, &a.uuid)
}

// EventID identifies a calendar event.
type EventID struct {
	uuid uuid.UUID
}

func NewEventID() EventID { return EventID{uuid: uuid.New()} }

func ParseEventID(s string) (EventID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, fmt.Errorf("invalid event ID: %w", err)
	}
	return EventID{uuid: id}, nil
}

func (e EventID) UUID() uuid.UUID { return e.uuid }
func (e EventID) String() string  { return e.uuid.String() }
func (e EventID) IsZero() bool    { return e.uuid == uuid.Nil }

func (e EventID) RecordID() surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: TableEvents, ID: e.uuid.String()}
}

func (e EventID) MarshalJSON() ([]byte, error) { return marshalJSONID(e.uuid) }

func (e *EventID) UnmarshalJSON(data []byte) error { return unmarshalJSONID(data, &e.uuid) }

func (e EventID) MarshalCBOR() ([]byte, error) { return marshalCBORID(TableEvents, e.uuid) }

func (e *EventID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, TableEvents, &e.uuid)
}

// CategoryID identifies an event category.
type CategoryID struct {
	uuid uuid.UUID
}

func NewCategoryID() CategoryID { return CategoryID{uuid: uuid.New()} }

func ParseCategoryID(s string) (CategoryID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CategoryID{}, fmt.Errorf("invalid category ID: %w", err)
	}
	return CategoryID{uuid: id}, nil
}

func (c CategoryID) UUID() uuid.UUID { return c.uuid }
func (c CategoryID) String() string  { return c.uuid.String() }
func (c CategoryID) IsZero() bool    { return c.uuid == uuid.Nil }

func (c CategoryID) RecordID() surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: TableCategories, ID: c.uuid.String()}
}

func (c CategoryID) MarshalJSON() ([]byte, error) { return marshalJSONID(c.uuid) }

func (c *CategoryID) UnmarshalJSON(data []byte) error { return unmarshalJSONID(data, &c.uuid) }

func (c CategoryID) MarshalCBOR() ([]byte, error) { return marshalCBORID(TableCategories, c.uuid) }

func (c *CategoryID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, TableCategories, &c.uuid)
}

// ScheduleID references the weekly schedule a course belongs to. Schedules
// themselves are managed outside this core; only the reference travels with
// the course record.
type ScheduleID struct {
	uuid uuid.UUID
}

func NewScheduleID() ScheduleID { return ScheduleID{uuid: uuid.New()} }

func ParseScheduleID(s string) (ScheduleID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ScheduleID{}, fmt.Errorf("invalid schedule ID: %w", err)
	}
	return ScheduleID{uuid: id}, nil
}

func (s ScheduleID) UUID() uuid.UUID { return s.uuid }
func (s ScheduleID) String() string  { return s.uuid.String() }
func (s ScheduleID) IsZero() bool    { return s.uuid == uuid.Nil }

func (s ScheduleID) RecordID() surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: "schedules", ID: s.uuid.String()}
}

func (s ScheduleID) MarshalJSON() ([]byte, error) { return marshalJSONID(s.uuid) }

func (s *ScheduleID) UnmarshalJSON(data []byte) error { return unmarshalJSONID(data, &s.uuid) }

func (s ScheduleID) MarshalCBOR() ([]byte, error) { return marshalCBORID("schedules", s.uuid) }

func (s *ScheduleID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, "schedules", &s.uuid)
}

// Helper functions

func marshalJSONID(id uuid.UUID) ([]byte, error) {
	if id == uuid.Nil {
		return json.Marshal("")
	}
	return json.Marshal(id.String())
}

func unmarshalJSONID(data []byte, target *uuid.UUID) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*target = uuid.Nil
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*target = id
	return nil
}

// marshalCBORID encodes the ID as a SurrealDB RecordID. SurrealDB uses CBOR
// tag 8 with [table, id] content to identify record pointers in its binary
// protocol.
func marshalCBORID(table string, id uuid.UUID) ([]byte, error) {
	if id == uuid.Nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{table, id.String()},
	})
}

// unmarshalCBORID accepts either a tag-8 RecordID for the expected table or a
// plain UUID string; both shapes occur in live notification payloads.
func unmarshalCBORID(data []byte, expectedTable string, target *uuid.UUID) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	// Major type 6 is a CBOR tag; anything else is treated as a bare string.
	if data[0]>>5 == 6 {
		var tag cbor.Tag
		if err := cbor.Unmarshal(data, &tag); err != nil {
			return fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
		}
		if tag.Number != 8 {
			return fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
		}
		arr, ok := tag.Content.([]any)
		if !ok || len(arr) != 2 {
			return fmt.Errorf("invalid RecordID format: expected [table, id] array")
		}
		table, ok := arr[0].(string)
		if !ok {
			return fmt.Errorf("invalid RecordID format: table name must be string")
		}
		if table != expectedTable {
			return fmt.Errorf("expected table %s, got %s", expectedTable, table)
		}
		idStr, ok := arr[1].(string)
		if !ok {
			return fmt.Errorf("invalid RecordID format: ID must be string")
		}
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("invalid UUID in RecordID: %w", err)
		}
		*target = parsed
		return nil
	}

	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*target = uuid.Nil
		return nil
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}
