package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VishalT25/companion-sync/pkg/models"
)

func TestDecodeRecord(t *testing.T) {
	owner := models.NewUserID()
	id := models.NewCourseID()

	t.Run("typed identifiers survive the round trip", func(t *testing.T) {
		payload := map[string]any{
			"id":        id,
			"owner_id":  owner,
			"name":      "Calculus I",
			"color_hex": "#FF8800",
		}
		rec, err := decodeRecord[models.Course](payload)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, owner, rec.OwnerID)
		assert.Equal(t, "Calculus I", rec.Name)
	})

	t.Run("string identifiers are accepted", func(t *testing.T) {
		payload := map[string]any{
			"id":       id.String(),
			"owner_id": owner.String(),
			"name":     "Calculus I",
		}
		rec, err := decodeRecord[models.Course](payload)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
	})

	t.Run("undecodable payload errors", func(t *testing.T) {
		_, err := decodeRecord[models.Course](map[string]any{"id": 42})
		assert.Error(t, err)
	})
}

// stubFeed replays a fixed event sequence and closes.
type stubFeed struct {
	ch chan Event[models.Course]
}

func newStubFeed(evs ...Event[models.Course]) *stubFeed {
	f := &stubFeed{ch: make(chan Event[models.Course], len(evs))}
	for _, ev := range evs {
		f.ch <- ev
	}
	return f
}

func (f *stubFeed) Events() <-chan Event[models.Course] { return f.ch }

func (f *stubFeed) Run(ctx context.Context) { close(f.ch) }

func TestCoordinatorRoutesUntilFeedCloses(t *testing.T) {
	c := models.Course{ID: models.NewCourseID(), OwnerID: models.NewUserID(), Name: "Calc"}
	feed := newStubFeed(
		Event[models.Course]{Table: models.TableCourses, Action: ActionInsert, Record: c},
		Event[models.Course]{Table: models.TableCourses, Action: ActionDelete, ID: c.Key()},
	)

	applied := make(chan Event[models.Course], 2)
	coord := NewCoordinator()
	Route[models.Course](context.Background(), coord, feed, func(ev Event[models.Course]) {
		applied <- ev
	})

	done := make(chan struct{})
	go func() {
		coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not drain the closed feed")
	}

	require.Len(t, applied, 2)
	first := <-applied
	assert.Equal(t, ActionInsert, first.Action)
	second := <-applied
	assert.Equal(t, ActionDelete, second.Action)
	assert.Equal(t, c.Key(), second.ID)
}
