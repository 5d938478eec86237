package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noted struct {
	Text string `json:"text"`
}

func (noted) EventKind() string { return "Noted" }

type note struct {
	Root
}

func newNote(id string) *note {
	n := &note{}
	n.Init(id, "Note", "tenant-1")
	return n
}

// ============================================
// Emit Tests
// ============================================

func TestRoot_Emit_StampsIdentity(t *testing.T) {
	n := newNote("note-1")

	e := n.Emit(noted{Text: "hello"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "Noted", e.Kind)
	assert.Equal(t, "note-1", e.AggregateID)
	assert.Equal(t, "Note", e.AggregateType)
	assert.Equal(t, "tenant-1", e.TenantID)
	assert.False(t, e.OccurredAt.IsZero())
	assert.Equal(t, noted{Text: "hello"}, e.Payload)
}

func TestRoot_Emit_DoesNotDrain(t *testing.T) {
	n := newNote("note-1")

	n.Emit(noted{Text: "a"})
	n.Emit(noted{Text: "b"})

	assert.Len(t, n.Pending(), 2)
}

// ============================================
// Drain Tests
// ============================================

func TestRoot_Drain_ReturnsInOrder(t *testing.T) {
	n := newNote("note-1")
	n.Emit(noted{Text: "a"})
	n.Emit(noted{Text: "b"})

	drained := n.Drain()

	require.Len(t, drained, 2)
	assert.Equal(t, noted{Text: "a"}, drained[0].Payload)
	assert.Equal(t, noted{Text: "b"}, drained[1].Payload)
}

func TestRoot_Drain_SecondCallEmpty(t *testing.T) {
	n := newNote("note-1")
	n.Emit(noted{Text: "a"})

	first := n.Drain()
	second := n.Drain()

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Empty(t, n.Pending())
}

func TestRoot_ImplementsAggregate(t *testing.T) {
	var agg Aggregate = newNote("note-1")
	assert.Equal(t, "note-1", agg.AggregateID())
	assert.Equal(t, "Note", agg.AggregateType())
}
