package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/VishalT25/companion-sync/pkg/cache"
	"github.com/VishalT25/companion-sync/pkg/models"
	"github.com/VishalT25/companion-sync/pkg/realtime"
	"github.com/VishalT25/companion-sync/pkg/remote"
	"github.com/VishalT25/companion-sync/pkg/retry"
	"github.com/VishalT25/companion-sync/pkg/store"
	"github.com/VishalT25/companion-sync/pkg/validate"
)

// DefaultAssignmentRetry is the bounded policy for assignment creates that
// race their course's remote creation: one retry after a short fixed delay.
func DefaultAssignmentRetry() retry.Policy {
	return retry.NewFixed(2*time.Second, 1)
}

// CoursesConfig wires a Courses manager. Repositories and caches are
// injected; the manager never reaches for shared singletons.
type CoursesConfig struct {
	Owner models.UserID
	Gate  Gate

	CourseRepo     remote.Repository[models.Course]
	AssignmentRepo remote.Repository[models.Assignment]

	CourseCache     cache.TableCache[models.Course]
	AssignmentCache cache.TableCache[models.Assignment]

	// AssignmentRetry bounds the dependent-create retries. Defaults to
	// DefaultAssignmentRetry.
	AssignmentRetry retry.Policy

	Meter metric.Meter
	Log   zerolog.Logger
}

// Courses is the operation manager for the courses+assignments domain. It
// exclusively owns both entity stores; all mutation, local or reconciled,
// goes through it.
type Courses struct {
	mu    sync.Mutex
	owner models.UserID
	gate  Gate

	courses     *collection[models.Course]
	assignments *collection[models.Assignment]

	assignmentRetry retry.Policy
	log             zerolog.Logger
}

// NewCourses builds the manager and bootstraps both stores from the cache
// snapshots, so consumers have data before the first network round trip.
func NewCourses(cfg CoursesConfig) *Courses {
	if cfg.Gate == nil {
		cfg.Gate = OpenGate{}
	}
	if cfg.AssignmentRetry == nil {
		cfg.AssignmentRetry = DefaultAssignmentRetry()
	}
	log := cfg.Log.With().Str("domain", "courses").Logger()
	m := &Courses{
		owner:           cfg.Owner,
		gate:            cfg.Gate,
		assignmentRetry: cfg.AssignmentRetry,
		log:             log,
	}
	m.courses = newCollection(
		&m.mu, models.TableCourses,
		cfg.CourseRepo, cfg.CourseCache,
		store.NewStats(models.TableCourses, cfg.Meter),
		validate.Course, log,
	)
	m.assignments = newCollection(
		&m.mu, models.TableAssignments,
		cfg.AssignmentRepo, cfg.AssignmentCache,
		store.NewStats(models.TableAssignments, cfg.Meter),
		validate.Assignment, log,
	)
	m.courses.bootstrap()
	m.assignments.bootstrap()
	return m
}

// LoadCourses replaces the course store with the remote state. On failure the
// cached snapshot keeps serving.
func (m *Courses) LoadCourses(ctx context.Context) error {
	return m.courses.load(ctx, m.owner)
}

// LoadAssignments replaces the assignment store with the remote state.
func (m *Courses) LoadAssignments(ctx context.Context) error {
	return m.assignments.load(ctx, m.owner)
}

// Courses returns the current course collection.
func (m *Courses) Courses() []models.Course { return m.courses.all() }

// Assignments returns the current assignment collection.
func (m *Courses) Assignments() []models.Assignment { return m.assignments.all() }

// Course returns one course by id.
func (m *Courses) Course(id models.CourseID) (models.Course, bool) {
	return m.courses.get(id.String())
}

// Assignment returns one assignment by id.
func (m *Courses) Assignment(id models.AssignmentID) (models.Assignment, bool) {
	return m.assignments.get(id.String())
}

// AssignmentsForCourse derives the assignments grouped under one course. The
// grouping is recomputed from current state on every call, so it reflects any
// reconciliation that has already been applied.
func (m *Courses) AssignmentsForCourse(id models.CourseID) []models.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Assignment
	for _, a := range m.assignments.store.All() {
		if a.CourseID == id {
			out = append(out, a)
		}
	}
	return out
}

// SubscribeCourses registers fn for synchronous course store notifications.
func (m *Courses) SubscribeCourses(fn func(store.Change[models.Course])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses.store.Subscribe(fn)
}

// SubscribeAssignments registers fn for synchronous assignment store
// notifications.
func (m *Courses) SubscribeAssignments(fn func(store.Change[models.Assignment])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments.store.Subscribe(fn)
}

// CreateCourse validates and optimistically creates a course. Courses have no
// foreign-key dependency, so a single failed attempt rolls back immediately.
func (m *Courses) CreateCourse(ctx context.Context, c models.Course) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		c.OwnerID = m.owner
		stampNew(&c.CreatedAt, &c.UpdatedAt)
		return m.courses.create(ctx, c, createOpts{})
	})
}

// UpdateCourse replaces a course in place. A missing target is a silent
// no-op. A remote failure reloads the whole domain from the backend.
func (m *Courses) UpdateCourse(ctx context.Context, c models.Course) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		c.OwnerID = m.owner
		stampTouched(&c.UpdatedAt)
		return m.courses.update(ctx, c)
	})
}

// DeleteCourse removes the course and cascades to its assignments in the same
// synchronous call, before any network response. A remote failure restores
// the course and every cascaded assignment.
func (m *Courses) DeleteCourse(ctx context.Context, id models.CourseID) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		return m.courses.remove(ctx, id.String(), func() func() {
			// Lock already held by remove; touch the store directly.
			orphaned := m.assignments.store.RemoveWhere(func(a models.Assignment) bool {
				return a.CourseID == id
			})
			for _, a := range orphaned {
				if err := m.assignments.cache.Delete(a.Key()); err != nil {
					m.log.Warn().Err(err).Str("id", a.Key()).Msg("snapshot delete failed")
				}
			}
			return func() {
				for _, a := range orphaned {
					m.assignments.store.Upsert(a)
					if err := m.assignments.cache.Put(a); err != nil {
						m.log.Warn().Err(err).Str("id", a.Key()).Msg("snapshot write failed")
					}
				}
			}
		})
	})
}

// CreateAssignment validates and optimistically creates an assignment. The
// referenced course may still be unconfirmed remotely; a constraint rejection
// triggers the bounded dependent-create retry after verifying the parent.
func (m *Courses) CreateAssignment(ctx context.Context, a models.Assignment) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		a.OwnerID = m.owner
		stampNew(&a.CreatedAt, &a.UpdatedAt)
		courseID := a.CourseID
		return m.assignments.create(ctx, a, createOpts{
			parentVisible: func(ctx context.Context) (bool, error) {
				return m.courses.repo.Exists(ctx, courseID.String())
			},
			policy: m.assignmentRetry,
		})
	})
}

// UpdateAssignment replaces an assignment in place; missing targets no-op.
func (m *Courses) UpdateAssignment(ctx context.Context, a models.Assignment) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		a.OwnerID = m.owner
		stampTouched(&a.UpdatedAt)
		return m.assignments.update(ctx, a)
	})
}

// DeleteAssignment removes an assignment. No cascade: assignments are leaves.
func (m *Courses) DeleteAssignment(ctx context.Context, id models.AssignmentID) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		return m.assignments.remove(ctx, id.String(), nil)
	})
}

// ImportCourses creates each course sequentially; per-item failures are
// counted and skipped, the import never aborts partway.
func (m *Courses) ImportCourses(ctx context.Context, items []models.Course) (*Pending, error) {
	return gated(ctx, m.gate, func() (*Pending, error) {
		for i := range items {
			items[i].OwnerID = m.owner
			stampNew(&items[i].CreatedAt, &items[i].UpdatedAt)
		}
		return m.courses.bulkImport(ctx, items, createOpts{}), nil
	})
}

// ReconcileCourses applies an externally pushed course change. Deletes
// cascade to assignments exactly like a local delete, since the remote
// backend has already dropped the children.
func (m *Courses) ReconcileCourses(ev realtime.Event[models.Course]) {
	m.courses.reconcile(ev, func() {
		if ev.Action != realtime.ActionDelete {
			return
		}
		id, err := models.ParseCourseID(ev.ID)
		if err != nil {
			return
		}
		orphaned := m.assignments.store.RemoveWhere(func(a models.Assignment) bool {
			return a.CourseID == id
		})
		for _, a := range orphaned {
			if err := m.assignments.cache.Delete(a.Key()); err != nil {
				m.log.Warn().Err(err).Str("id", a.Key()).Msg("snapshot delete failed")
			}
		}
	})
}

// ReconcileAssignments applies an externally pushed assignment change.
func (m *Courses) ReconcileAssignments(ev realtime.Event[models.Assignment]) {
	m.assignments.reconcile(ev, nil)
}

// CourseStats returns the course operation counters.
func (m *Courses) CourseStats() store.StatsSnapshot { return m.courses.stats.Snapshot() }

// AssignmentStats returns the assignment operation counters.
func (m *Courses) AssignmentStats() store.StatsSnapshot { return m.assignments.stats.Snapshot() }

func stampNew(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func stampTouched(updated *time.Time) {
	*updated = time.Now().UTC()
}
