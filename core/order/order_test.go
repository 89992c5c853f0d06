package order

import (
	"errors"
	"testing"

	"gridloop/core/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gridItem struct {
	id    string
	index interface{}
}

func (g gridItem) Field(key string) (interface{}, bool) {
	switch key {
	case "id":
		return g.id, true
	case "index":
		if g.index == nil {
			return nil, false
		}
		return g.index, true
	}
	return nil, false
}

func items(indices ...int) []gridItem {
	out := make([]gridItem, len(indices))
	for i, n := range indices {
		out[i] = gridItem{id: string(rune('a' + i)), index: n}
	}
	return out
}

func TestNextIndexEmpty(t *testing.T) {
	next, err := NextIndex([]gridItem{}, "index")
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestNextIndexDense(t *testing.T) {
	next, err := NextIndex(items(0, 1, 2), "index")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestNextIndexGapped(t *testing.T) {
	// gaps don't matter, only the greatest value does
	next, err := NextIndex(items(0, 7, 3), "index")
	require.NoError(t, err)
	assert.Equal(t, 8, next)
}

func TestNextIndexUnordered(t *testing.T) {
	next, err := NextIndex(items(5, 2, 4), "index")
	require.NoError(t, err)
	assert.Equal(t, 6, next)
}

func TestNextIndexMalformed(t *testing.T) {
	malformed := []gridItem{
		{id: "a", index: 0},
		{id: "b", index: nil},
		{id: "c", index: "two"},
		{id: "d", index: 3},
	}
	_, err := NextIndex(malformed, "index")
	require.Error(t, err)

	var merr *apperr.MalformedIndexError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "index", merr.Key)
	assert.Equal(t, []int{1, 2}, merr.Positions)
}

func TestReorderForward(t *testing.T) {
	seq := items(0, 1, 2, 3)
	result, err := ReorderByField(seq, "id", "a", 2)
	require.NoError(t, err)

	ids := make([]string, len(result))
	for i, item := range result {
		ids[i] = item.id
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestReorderBackward(t *testing.T) {
	seq := items(0, 1, 2, 3)
	result, err := ReorderByField(seq, "id", "d", 0)
	require.NoError(t, err)

	ids := make([]string, len(result))
	for i, item := range result {
		ids[i] = item.id
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestReorderNoOp(t *testing.T) {
	seq := items(0, 1, 2)
	result, err := ReorderByField(seq, "id", "b", 1)
	require.NoError(t, err)
	assert.Equal(t, seq, result)
}

func TestReorderClampsPastEnd(t *testing.T) {
	seq := items(0, 1, 2)
	result, err := ReorderByField(seq, "id", "a", 99)
	require.NoError(t, err)

	ids := make([]string, len(result))
	for i, item := range result {
		ids[i] = item.id
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestReorderNegativeTarget(t *testing.T) {
	_, err := ReorderByField(items(0, 1), "id", "a", -1)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestReorderUnknownValue(t *testing.T) {
	_, err := ReorderByField(items(0, 1), "id", "zz", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestReorderDoesNotMutateInput(t *testing.T) {
	seq := items(0, 1, 2)
	_, err := ReorderByField(seq, "id", "c", 0)
	require.NoError(t, err)
	assert.Equal(t, items(0, 1, 2), seq)
}
