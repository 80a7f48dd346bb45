package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetModeReplace(t *testing.T) {
	s := New[string, int](ModeSet, 4, nil)

	s.Insert("a", 1, SlotNone)
	v, _, ok := s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	s.Insert("a", 2, SlotNone)
	v, _, ok = s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, s.Size())
}

func TestDuplicateBagPreservesOrder(t *testing.T) {
	s := New[string, int](ModeDuplicateBag, 4, nil)

	for i := 0; i < 5; i++ {
		s.Insert("k", i, SlotNone)
	}

	_, values, ok := s.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, values)
	assert.Equal(t, 5, s.Size())
}

func TestDuplicateBagKeepsRepeatedValue(t *testing.T) {
	s := New[string, int](ModeDuplicateBag, 4, nil)

	s.Insert("k", 1, SlotNone)
	s.Insert("k", 1, SlotNone)

	_, values, ok := s.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, []int{1, 1}, values)
	assert.Equal(t, 2, s.Size())
}

func TestBagModeIgnoresDuplicateValue(t *testing.T) {
	s := New[string, int](ModeBag, 4, nil)

	assert.True(t, s.Insert("k", 1, SlotNone))
	assert.False(t, s.Insert("k", 1, SlotNone))
	assert.True(t, s.Insert("k", 2, SlotNone))

	_, values, ok := s.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, values)
	assert.Equal(t, 2, s.Size())
}

func TestBagModeHonorsCustomEqual(t *testing.T) {
	type pair struct {
		id     int
		ignore string
	}
	equal := func(a, b pair) bool { return a.id == b.id }
	s := New[string, pair](ModeBag, 4, equal)

	assert.True(t, s.Insert("k", pair{id: 1, ignore: "x"}, SlotNone))
	assert.False(t, s.Insert("k", pair{id: 1, ignore: "y"}, SlotNone))

	_, values, ok := s.Lookup("k")
	require.True(t, ok)
	require.Len(t, values, 1)
	assert.Equal(t, "x", values[0].ignore)
}

func TestInsertNewRefusesExisting(t *testing.T) {
	s := New[string, int](ModeSet, 4, nil)

	assert.True(t, s.InsertNew("a", 1, SlotNone))
	assert.False(t, s.InsertNew("a", 2, SlotNone))

	v, _, _ := s.Lookup("a")
	assert.Equal(t, 1, v)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New[string, int](ModeSet, 4, nil)

	s.Insert("a", 1, SlotNone)
	s.Delete("a")
	s.Delete("a")

	_, _, ok := s.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Size())
}

func TestLookupNeverBlocksOnConcurrentWrites(t *testing.T) {
	s := New[string, int](ModeSet, 8, nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "key"
			s.Insert(key, i, SlotNone)
			s.Lookup(key)
		}(i)
	}

	wg.Wait()
	_, _, ok := s.Lookup("key")
	assert.True(t, ok)
}

func TestSlotRoundTrip(t *testing.T) {
	s := New[string, int](ModeSet, 4, nil)
	s.Insert("a", 1, 7)

	slot, ok := s.Slot("a")
	require.True(t, ok)
	assert.Equal(t, uint32(7), slot)

	s.SetSlot("a", 9)
	slot, ok = s.Slot("a")
	require.True(t, ok)
	assert.Equal(t, uint32(9), slot)
}
