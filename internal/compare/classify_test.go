package compare

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusOf(entries []Classification) map[string]Status {
	m := make(map[string]Status, len(entries))
	for _, e := range entries {
		m[e.Path] = e.Status
	}
	return m
}

func TestClassify_Partitions(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 50; round++ {
		a, b := PathSet{}, PathSet{}
		na, nb := rng.IntN(40), rng.IntN(40)
		for i := 0; i < na; i++ {
			a[fmt.Sprintf("dir%d/img%d.png", rng.IntN(3), rng.IntN(30))] = struct{}{}
		}
		for i := 0; i < nb; i++ {
			b[fmt.Sprintf("dir%d/img%d.png", rng.IntN(3), rng.IntN(30))] = struct{}{}
		}

		entries := Classify(a, b)
		got := statusOf(entries)

		// Every path of the union appears exactly once.
		require.Len(t, entries, len(got), "duplicate path in round %d", round)
		union := PathSet{}
		for p := range a {
			union[p] = struct{}{}
		}
		for p := range b {
			union[p] = struct{}{}
		}
		require.Len(t, got, len(union))

		for p := range union {
			_, inA := a[p]
			_, inB := b[p]
			switch {
			case inA && inB:
				assert.Equal(t, Common, got[p], p)
			case inA:
				assert.Equal(t, New, got[p], p)
			default:
				assert.Equal(t, Deleted, got[p], p)
			}
		}
	}
}

func TestClassify_Ordering(t *testing.T) {
	a := NewPathSet("z.png", "b.png", "common2.png", "common1.png")
	b := NewPathSet("common2.png", "y.png", "common1.png", "a.png")

	want := []Classification{
		{Path: "common1.png", Status: Common},
		{Path: "common2.png", Status: Common},
		{Path: "b.png", Status: New},
		{Path: "z.png", Status: New},
		{Path: "a.png", Status: Deleted},
		{Path: "y.png", Status: Deleted},
	}
	assert.Equal(t, want, Classify(a, b))
}

func TestClassify_EdgeCases(t *testing.T) {
	a := NewPathSet("a.png", "sub/b.png")

	t.Run("same set is all common", func(t *testing.T) {
		entries := Classify(a, NewPathSet("a.png", "sub/b.png"))
		counts := CountStatuses(entries)
		assert.Equal(t, Counts{Common: 2}, counts)
	})

	t.Run("both empty", func(t *testing.T) {
		assert.Empty(t, Classify(PathSet{}, PathSet{}))
		assert.Empty(t, Classify(nil, nil))
	})

	t.Run("empty destination is all new", func(t *testing.T) {
		assert.Equal(t, Counts{New: 2}, CountStatuses(Classify(a, PathSet{})))
	})

	t.Run("empty source is all deleted", func(t *testing.T) {
		assert.Equal(t, Counts{Deleted: 2}, CountStatuses(Classify(nil, a)))
	})
}

func TestClassify_DoesNotMutateInputs(t *testing.T) {
	a := NewPathSet("a.png", "b.png")
	b := NewPathSet("b.png")

	Classify(a, b)
	assert.Len(t, a, 2)
	assert.Len(t, b, 1)
}

func TestStatus_Text(t *testing.T) {
	for _, s := range []Status{Common, New, Deleted} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s Status
	assert.Error(t, s.UnmarshalText([]byte("renamed")))
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestStatus_Sides(t *testing.T) {
	assert.True(t, Common.InSource())
	assert.True(t, Common.InDestination())
	assert.True(t, New.InSource())
	assert.False(t, New.InDestination())
	assert.False(t, Deleted.InSource())
	assert.True(t, Deleted.InDestination())
}
