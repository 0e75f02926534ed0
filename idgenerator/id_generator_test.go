package idgenerator

import (
	"bytes"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("returns non-nil generator", func(t *testing.T) {
		gen := NewIdGenerator()
		require.NotNil(t, gen)
	})

	t.Run("ids are version 4 uuids", func(t *testing.T) {
		id := NewIdGenerator().Id()
		assert.NotEqual(t, uuid.Nil, id)
		assert.Equal(t, uuid.Version(4), id.Version())
	})
}

func TestNewIdGeneratorFromReader(t *testing.T) {
	t.Run("same bytes give same id", func(t *testing.T) {
		seed := bytes.Repeat([]byte{0x42}, 16)
		a := NewIdGeneratorFromReader(bytes.NewReader(seed)).Id()
		b := NewIdGeneratorFromReader(bytes.NewReader(seed)).Id()
		assert.Equal(t, a, b)
	})

	t.Run("exhausted reader falls back to random", func(t *testing.T) {
		gen := NewIdGeneratorFromReader(bytes.NewReader(nil))
		assert.NotEqual(t, uuid.Nil, gen.Id())
	})
}

func TestIdGenerator_String_Parse(t *testing.T) {
	id := NewIdGenerator().Id()
	s := id.String()
	assert.Len(t, s, 36)

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = Parse("not-a-uuid")
	assert.Error(t, err)
}

func TestIdGenerator_Id_concurrent(t *testing.T) {
	gen := NewIdGenerator()
	const n = 500
	ids := make([]uuid.UUID, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Id()
		}(i)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
