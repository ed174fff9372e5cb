package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishalT25/companion-sync/pkg/models"
	"github.com/VishalT25/companion-sync/pkg/remote"
	"github.com/VishalT25/companion-sync/pkg/retry"
)

// stubRepo is an in-memory Repository with scriptable failures. Create
// failures are consumed one per call, so a test can fail the first attempt
// and let the retry through.
type stubRepo[T models.Record] struct {
	mu sync.Mutex

	createErrs  []error
	updateErr   error
	deleteErr   error
	readAll     []T
	readAllErr  error
	exists      bool
	canonical   func(T) T

	createCalls int
	updateCalls int
	deleteCalls int

	// When set, Delete signals deleteEntered and blocks until
	// deleteRelease is closed.
	deleteEntered chan struct{}
	deleteRelease chan struct{}
}

func (r *stubRepo[T]) Create(ctx context.Context, rec T, owner models.UserID) (T, error) {
	r.mu.Lock()
	i := r.createCalls
	r.createCalls++
	var err error
	if i < len(r.createErrs) {
		err = r.createErrs[i]
	}
	r.mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	if r.canonical != nil {
		return r.canonical(rec), nil
	}
	return rec, nil
}

func (r *stubRepo[T]) ReadAll(ctx context.Context, owner models.UserID) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readAllErr != nil {
		return nil, r.readAllErr
	}
	out := make([]T, len(r.readAll))
	copy(out, r.readAll)
	return out, nil
}

func (r *stubRepo[T]) Update(ctx context.Context, rec T, owner models.UserID) (T, error) {
	r.mu.Lock()
	r.updateCalls++
	err := r.updateErr
	r.mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	if r.canonical != nil {
		return r.canonical(rec), nil
	}
	return rec, nil
}

func (r *stubRepo[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	r.deleteCalls++
	err := r.deleteErr
	entered, release := r.deleteEntered, r.deleteRelease
	r.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return err
}

func (r *stubRepo[T]) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exists, nil
}

func (r *stubRepo[T]) calls() (create, update, del int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createCalls, r.updateCalls, r.deleteCalls
}

// memCache is a goroutine-safe in-memory TableCache.
type memCache[T models.Record] struct {
	mu    sync.Mutex
	items []T
	index map[string]int
}

func newMemCache[T models.Record](seed ...T) *memCache[T] {
	c := &memCache[T]{index: map[string]int{}}
	c.StoreAll(seed)
	return c
}

func (c *memCache[T]) StoreAll(items []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.index = map[string]int{}
	for _, item := range items {
		c.index[item.Key()] = len(c.items)
		c.items = append(c.items, item)
	}
	return nil
}

func (c *memCache[T]) Put(item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[item.Key()]; ok {
		c.items[i] = item
		return nil
	}
	c.index[item.Key()] = len(c.items)
	c.items = append(c.items, item)
	return nil
}

func (c *memCache[T]) Update(item T) error { return c.Put(item) }

func (c *memCache[T]) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return nil
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].Key()] = j
	}
	return nil
}

func (c *memCache[T]) Retrieve() ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out, nil
}

func (c *memCache[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

type fixture struct {
	owner       models.UserID
	courseRepo  *stubRepo[models.Course]
	assignRepo  *stubRepo[models.Assignment]
	courseCache *memCache[models.Course]
	assignCache *memCache[models.Assignment]
}

func newFixture() *fixture {
	return &fixture{
		owner:       models.NewUserID(),
		courseRepo:  &stubRepo[models.Course]{exists: true},
		assignRepo:  &stubRepo[models.Assignment]{},
		courseCache: newMemCache[models.Course](),
		assignCache: newMemCache[models.Assignment](),
	}
}

func (f *fixture) manager(opts ...func(*CoursesConfig)) *Courses {
	cfg := CoursesConfig{
		Owner:           f.owner,
		CourseRepo:      f.courseRepo,
		AssignmentRepo:  f.assignRepo,
		CourseCache:     f.courseCache,
		AssignmentCache: f.assignCache,
		AssignmentRetry: retry.NewFixed(time.Millisecond, 1),
		Log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewCourses(cfg)
}

func (f *fixture) course(name string) models.Course {
	return models.Course{ID: models.NewCourseID(), OwnerID: f.owner, Name: name}
}

func (f *fixture) assignment(title string, courseID models.CourseID) models.Assignment {
	return models.Assignment{
		ID: models.NewAssignmentID(), OwnerID: f.owner, CourseID: courseID, Title: title,
	}
}

func netErr() error {
	return &remote.NetworkError{Op: "create", Table: "courses", Err: errors.New("connection reset")}
}

func constraintErr() error {
	return &remote.ConstraintError{Op: "create", Table: "assignments", Err: errors.New("record reference")}
}

func TestLoadCourses(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the store with the remote state", func(t *testing.T) {
		f := newFixture()
		calc := f.course("Calculus I")
		f.courseRepo.readAll = []models.Course{calc}
		m := f.manager()

		require.NoError(t, m.LoadCourses(ctx))

		got := m.Courses()
		require.Len(t, got, 1)
		assert.Equal(t, calc.ID, got[0].ID)
		assert.Equal(t, "Calculus I", got[0].Name)
		assert.Equal(t, int64(1), m.CourseStats().Loaded)

		cached, err := f.courseCache.Retrieve()
		require.NoError(t, err)
		assert.Len(t, cached, 1)
	})

	t.Run("failure keeps the cache bootstrap", func(t *testing.T) {
		f := newFixture()
		cached := f.course("From cache")
		f.courseCache = newMemCache(cached)
		f.courseRepo.readAllErr = netErr()
		m := f.manager()

		// bootstrap happened at construction
		require.Len(t, m.Courses(), 1)

		err := m.LoadCourses(ctx)
		require.Error(t, err)
		got := m.Courses()
		require.Len(t, got, 1)
		assert.Equal(t, cached.ID, got[0].ID)
	})
}

func TestCreateCourse(t *testing.T) {
	ctx := context.Background()

	t.Run("adopts the canonical server copy", func(t *testing.T) {
		f := newFixture()
		f.courseRepo.canonical = func(c models.Course) models.Course {
			c.Code = "MATH-101" // server enrichment
			return c
		}
		m := f.manager()

		p, err := m.CreateCourse(ctx, f.course("Calculus I"))
		require.NoError(t, err)
		require.NoError(t, p.Wait(ctx))

		got := m.Courses()
		require.Len(t, got, 1)
		assert.Equal(t, "MATH-101", got[0].Code)
		snap := m.CourseStats()
		assert.Equal(t, int64(1), snap.Created)
		assert.Zero(t, snap.Errors)
	})

	t.Run("applies optimistically before the remote leg settles", func(t *testing.T) {
		f := newFixture()
		m := f.manager()

		p, err := m.CreateCourse(ctx, f.course("Calculus I"))
		require.NoError(t, err)
		// Visible immediately, whatever the remote outcome will be.
		assert.Len(t, m.Courses(), 1)
		require.NoError(t, p.Wait(ctx))
	})

	t.Run("rolls back on remote failure", func(t *testing.T) {
		f := newFixture()
		f.courseRepo.createErrs = []error{netErr()}
		m := f.manager()

		p, err := m.CreateCourse(ctx, f.course("Calculus I"))
		require.NoError(t, err)

		werr := p.Wait(ctx)
		require.Error(t, werr)
		assert.Empty(t, m.Courses())
		assert.Zero(t, f.courseCache.len())
		snap := m.CourseStats()
		assert.Equal(t, int64(1), snap.Created)
		assert.Equal(t, int64(1), snap.Errors)
	})

	t.Run("validation failure touches nothing", func(t *testing.T) {
		f := newFixture()
		m := f.manager()

		_, err := m.CreateCourse(ctx, f.course("   "))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, models.TableCourses, verr.Table)
		assert.Empty(t, m.Courses())
		creates, _, _ := f.courseRepo.calls()
		assert.Zero(t, creates)
	})

	t.Run("distinct creates get distinct identifiers", func(t *testing.T) {
		f := newFixture()
		m := f.manager()

		p1, err := m.CreateCourse(ctx, f.course("A"))
		require.NoError(t, err)
		p2, err := m.CreateCourse(ctx, f.course("B"))
		require.NoError(t, err)
		require.NoError(t, p1.Wait(ctx))
		require.NoError(t, p2.Wait(ctx))

		got := m.Courses()
		require.Len(t, got, 2)
		assert.NotEqual(t, got[0].Key(), got[1].Key())
	})
}

func TestCreateThenDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.manager()

	c := f.course("Ephemeral")
	p, err := m.CreateCourse(ctx, c)
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	p, err = m.DeleteCourse(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, p.Wait(ctx))

	assert.Empty(t, m.Courses())
	assert.Zero(t, f.courseCache.len())
	creates, _, deletes := f.courseRepo.calls()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, deletes)
}

func TestUpdateCourse(t *testing.T) {
	ctx := context.Background()

	t.Run("missing target is a silent no-op", func(t *testing.T) {
		f := newFixture()
		m := f.manager()

		p, err := m.UpdateCourse(ctx, f.course("Ghost"))
		require.NoError(t, err)
		require.NoError(t, p.Wait(ctx))
		_, updates, _ := f.courseRepo.calls()
		assert.Zero(t, updates)
		assert.Empty(t, m.Courses())
	})

	t.Run("remote failure reloads the domain", func(t *testing.T) {
		f := newFixture()
		c := f.course("Calculus I")
		f.courseRepo.readAll = []models.Course{c}
		m := f.manager()
		require.NoError(t, m.LoadCourses(ctx))

		server := c
		server.Name = "Calculus I (canonical)"
		f.courseRepo.mu.Lock()
		f.courseRepo.updateErr = netErr()
		f.courseRepo.readAll = []models.Course{server}
		f.courseRepo.mu.Unlock()

		edited := c
		edited.Name = "Calculus I (local edit)"
		p, err := m.UpdateCourse(ctx, edited)
		require.NoError(t, err)
		// optimistic value is visible first
		got, ok := m.Course(c.ID)
		require.True(t, ok)
		assert.Equal(t, "Calculus I (local edit)", got.Name)

		require.Error(t, p.Wait(ctx))
		got, ok = m.Course(c.ID)
		require.True(t, ok)
		assert.Equal(t, "Calculus I (canonical)", got.Name)
		assert.Equal(t, int64(1), m.CourseStats().Errors)
	})
}

func TestDeleteCourseCascade(t *testing.T) {
	ctx := context.Background()

	seed := func(f *fixture) (models.Course, models.Assignment, models.Assignment) {
		c := f.course("Calculus I")
		a1 := f.assignment("PS1", c.ID)
		a2 := f.assignment("PS2", c.ID)
		f.courseRepo.readAll = []models.Course{c}
		f.assignRepo.readAll = []models.Assignment{a1, a2}
		return c, a1, a2
	}

	t.Run("assignments vanish before the network responds", func(t *testing.T) {
		f := newFixture()
		c, _, _ := seed(f)
		f.courseRepo.deleteEntered = make(chan struct{}, 1)
		f.courseRepo.deleteRelease = make(chan struct{})
		m := f.manager()
		require.NoError(t, m.LoadCourses(ctx))
		require.NoError(t, m.LoadAssignments(ctx))

		p, err := m.DeleteCourse(ctx, c.ID)
		require.NoError(t, err)

		// The remote delete is still in flight.
		<-f.courseRepo.deleteEntered
		assert.Empty(t, m.Courses())
		assert.Empty(t, m.Assignments())

		close(f.courseRepo.deleteRelease)
		require.NoError(t, p.Wait(ctx))
		assert.Empty(t, m.Assignments())
	})

	t.Run("remote failure restores course and assignments", func(t *testing.T) {
		f := newFixture()
		c, a1, a2 := seed(f)
		f.courseRepo.deleteErr = netErr()
		m := f.manager()
		require.NoError(t, m.LoadCourses(ctx))
		require.NoError(t, m.LoadAssignments(ctx))

		p, err := m.DeleteCourse(ctx, c.ID)
		require.NoError(t, err)
		require.Error(t, p.Wait(ctx))

		require.Len(t, m.Courses(), 1)
		got := m.AssignmentsForCourse(c.ID)
		require.Len(t, got, 2)
		keys := []string{got[0].Key(), got[1].Key()}
		assert.Contains(t, keys, a1.Key())
		assert.Contains(t, keys, a2.Key())
		assert.Equal(t, int64(1), m.CourseStats().Errors)
	})
}

func TestCreateAssignmentRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("constraint rejection retries once and adopts the canonical copy", func(t *testing.T) {
		f := newFixture()
		f.assignRepo.createErrs = []error{constraintErr()}
		m := f.manager()

		a := f.assignment("PS1", models.NewCourseID())
		p, err := m.CreateAssignment(ctx, a)
		require.NoError(t, err)
		require.NoError(t, p.Wait(ctx))

		creates, _, _ := f.assignRepo.calls()
		assert.Equal(t, 2, creates)
		require.Len(t, m.Assignments(), 1)
		snap := m.AssignmentStats()
		assert.Equal(t, int64(1), snap.Created)
		assert.Zero(t, snap.Errors)
	})

	t.Run("exhausted retries roll back", func(t *testing.T) {
		f := newFixture()
		f.assignRepo.createErrs = []error{constraintErr(), constraintErr()}
		m := f.manager()

		p, err := m.CreateAssignment(ctx, f.assignment("PS1", models.NewCourseID()))
		require.NoError(t, err)
		require.Error(t, p.Wait(ctx))

		creates, _, _ := f.assignRepo.calls()
		assert.Equal(t, 2, creates, "one initial attempt plus exactly one retry")
		assert.Empty(t, m.Assignments())
		assert.Equal(t, int64(1), m.AssignmentStats().Errors)
	})

	t.Run("network failure is not retried", func(t *testing.T) {
		f := newFixture()
		f.assignRepo.createErrs = []error{netErr()}
		m := f.manager()

		p, err := m.CreateAssignment(ctx, f.assignment("PS1", models.NewCourseID()))
		require.NoError(t, err)
		require.Error(t, p.Wait(ctx))

		creates, _, _ := f.assignRepo.calls()
		assert.Equal(t, 1, creates)
		assert.Empty(t, m.Assignments())
	})
}

func TestImportCourses(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.manager()

	items := []models.Course{f.course("A"), f.course("   "), f.course("C")}
	p, err := m.ImportCourses(ctx, items)
	require.NoError(t, err)

	werr := p.Wait(ctx)
	var verr *ValidationError
	require.ErrorAs(t, werr, &verr, "the skipped item surfaces as the import outcome")

	assert.Len(t, m.Courses(), 2)
	snap := m.CourseStats()
	assert.Equal(t, int64(2), snap.Created)
	assert.Equal(t, int64(1), snap.Errors)
}

// promptGate reports unauthenticated and resolves prompts with a fixed
// answer.
type promptGate struct {
	allow   bool
	prompts int
}

func (g *promptGate) IsAuthenticated() bool { return false }

func (g *promptGate) PromptSignIn(_ context.Context, resume func(bool)) {
	g.prompts++
	resume(g.allow)
}

func TestAuthGate(t *testing.T) {
	ctx := context.Background()

	t.Run("declined prompt drops the operation", func(t *testing.T) {
		f := newFixture()
		gate := &promptGate{allow: false}
		m := f.manager(func(cfg *CoursesConfig) { cfg.Gate = gate })

		p, err := m.CreateCourse(ctx, f.course("Calculus I"))
		require.NoError(t, err)
		assert.ErrorIs(t, p.Wait(ctx), ErrSignInDeclined)
		assert.Equal(t, 1, gate.prompts)
		assert.Empty(t, m.Courses())
		creates, _, _ := f.courseRepo.calls()
		assert.Zero(t, creates)
	})

	t.Run("granted prompt resumes the operation", func(t *testing.T) {
		f := newFixture()
		m := f.manager(func(cfg *CoursesConfig) { cfg.Gate = &promptGate{allow: true} })

		p, err := m.CreateCourse(ctx, f.course("Calculus I"))
		require.NoError(t, err)
		require.NoError(t, p.Wait(ctx))
		assert.Len(t, m.Courses(), 1)
	})
}
