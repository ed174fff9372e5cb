// Package validate holds the stateless precondition checks consulted before
// any mutation reaches an entity store. Checks never error and never mutate;
// they return a verdict the operation manager turns into a ValidationError.
package validate

import (
	"fmt"
	"strings"

	"github.com/VishalT25/companion-sync/pkg/models"
)

// Result is the verdict of a validation pass.
type Result struct {
	OK       bool
	Problems []string
}

func failure(problems ...string) Result { return Result{Problems: problems} }

func ok() Result { return Result{OK: true} }

// Course checks a course record before create or update.
func Course(c models.Course) Result {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "course name must not be empty")
	}
	if c.OwnerID.IsZero() {
		problems = append(problems, "course owner must be set")
	}
	if c.Grade != nil && (*c.Grade < 0 || *c.Grade > 100) {
		problems = append(problems, fmt.Sprintf("course grade %.2f out of range [0,100]", *c.Grade))
	}
	if len(problems) > 0 {
		return failure(problems...)
	}
	return ok()
}

// Assignment checks an assignment record. The referenced course must be named
// by a non-zero identifier, but its existence is not checked here: during a
// creation race the parent may not yet be visible anywhere.
func Assignment(a models.Assignment) Result {
	var problems []string
	if strings.TrimSpace(a.Title) == "" {
		problems = append(problems, "assignment title must not be empty")
	}
	if a.OwnerID.IsZero() {
		problems = append(problems, "assignment owner must be set")
	}
	if a.CourseID.IsZero() {
		problems = append(problems, "assignment must reference a course")
	}
	if a.Weight < 0 || a.Weight > 100 {
		problems = append(problems, fmt.Sprintf("assignment weight %.2f out of range [0,100]", a.Weight))
	}
	if len(problems) > 0 {
		return failure(problems...)
	}
	return ok()
}

// Event checks a calendar event record. The category reference is optional.
func Event(e models.Event) Result {
	var problems []string
	if strings.TrimSpace(e.Title) == "" {
		problems = append(problems, "event title must not be empty")
	}
	if e.OwnerID.IsZero() {
		problems = append(problems, "event owner must be set")
	}
	if !e.EndAt.IsZero() && !e.StartAt.IsZero() && e.EndAt.Before(e.StartAt) {
		problems = append(problems, "event must not end before it starts")
	}
	if len(problems) > 0 {
		return failure(problems...)
	}
	return ok()
}

// Category checks a category record.
func Category(c models.Category) Result {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "category name must not be empty")
	}
	if c.OwnerID.IsZero() {
		problems = append(problems, "category owner must be set")
	}
	if len(problems) > 0 {
		return failure(problems...)
	}
	return ok()
}
