package request

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorMix(t *testing.T) {
	const (
		draws   = 1_000_000
		numKeys = 1000
	)
	g := NewGenerator(numKeys, 7, 11)

	var ranges int
	for range draws {
		r := g.Next()
		require.Less(t, r.Key, uint64(numKeys))
		switch r.Type {
		case TypeRange:
			ranges++
			require.Equal(t, uint64(numKeys), r.Span)
		case TypePoint:
			require.Zero(t, r.Span)
		default:
			t.Fatalf("unexpected type %v", r.Type)
		}
	}

	pRange := float64(ranges) / draws
	assert.InDelta(t, 0.01, pRange, 0.005)
	assert.InDelta(t, 0.99, 1-pRange, 0.005)
}

func TestGeneratorSingleKey(t *testing.T) {
	g := NewGenerator(1, 1, 1)
	for range 1000 {
		assert.Zero(t, g.Next().Key)
	}
}

func TestGeneratorIndependentSeeds(t *testing.T) {
	a := NewGenerator(math.MaxUint32, 1, 2)
	b := NewGenerator(math.MaxUint32, 3, 4)

	same := 0
	for range 100 {
		if a.Next().Key == b.Next().Key {
			same++
		}
	}
	assert.Less(t, same, 5)
}

func TestGeneratorZeroKeysPanics(t *testing.T) {
	assert.Panics(t, func() { NewGenerator(0, 1, 1) })
}
