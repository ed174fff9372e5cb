package models

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseIDJSON(t *testing.T) {
	id := NewCourseID()

	raw, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(raw))

	var back CourseID
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, id, back)

	t.Run("zero value renders empty", func(t *testing.T) {
		raw, err := json.Marshal(CourseID{})
		require.NoError(t, err)
		assert.Equal(t, `""`, string(raw))

		var back CourseID
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.True(t, back.IsZero())
	})
}

func TestCourseIDCBOR(t *testing.T) {
	id := NewCourseID()

	t.Run("encodes as a record pointer", func(t *testing.T) {
		raw, err := cbor.Marshal(id)
		require.NoError(t, err)

		var tag cbor.Tag
		require.NoError(t, cbor.Unmarshal(raw, &tag))
		assert.Equal(t, uint64(8), tag.Number)
		arr, ok := tag.Content.([]any)
		require.True(t, ok)
		require.Len(t, arr, 2)
		assert.Equal(t, TableCourses, arr[0])
		assert.Equal(t, id.String(), arr[1])

		var back CourseID
		require.NoError(t, cbor.Unmarshal(raw, &back))
		assert.Equal(t, id, back)
	})

	t.Run("accepts a bare string", func(t *testing.T) {
		raw, err := cbor.Marshal(id.String())
		require.NoError(t, err)
		var back CourseID
		require.NoError(t, cbor.Unmarshal(raw, &back))
		assert.Equal(t, id, back)
	})

	t.Run("rejects a pointer into another table", func(t *testing.T) {
		raw, err := cbor.Marshal(cbor.Tag{Number: 8, Content: []any{TableEvents, id.String()}})
		require.NoError(t, err)
		var back CourseID
		assert.Error(t, cbor.Unmarshal(raw, &back))
	})
}

func TestParseIDs(t *testing.T) {
	id := NewAssignmentID()
	parsed, err := ParseAssignmentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseAssignmentID("not-a-uuid")
	assert.Error(t, err)
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		k := NewEventID().String()
		require.False(t, seen[k])
		seen[k] = true
	}
}
