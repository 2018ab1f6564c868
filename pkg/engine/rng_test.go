package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomSequenceIsReproducible(t *testing.T) {
	state := uint32(1)
	var first []uint32
	for i := 0; i < 8; i++ {
		first = append(first, nextRandomU32(&state))
	}

	state = 1
	var second []uint32
	for i := 0; i < 8; i++ {
		second = append(second, nextRandomU32(&state))
	}
	require.Equal(t, first, second)
}

func TestSeedsProduceDistinctSequences(t *testing.T) {
	a, b := uint32(1), uint32(2)
	var sameCount int
	for i := 0; i < 8; i++ {
		if nextRandomU32(&a) == nextRandomU32(&b) {
			sameCount++
		}
	}
	require.Less(t, sameCount, 8)
}

func TestBoundedDrawStaysInRange(t *testing.T) {
	state := uint32(7)
	for i := 0; i < 1000; i++ {
		draw := nextRandomBounded(&state, 6)
		require.Less(t, draw, uint32(6))
	}
}

func TestBoundedDrawRejectsBiasedTail(t *testing.T) {
	// For bound 3 the threshold is floor(2^32/3)*3 = 4294967295, so a
	// raw draw of exactly 4294967295 must be rejected and redrawn.
	raws := []uint32{4294967295, 7}
	i := 0
	next := func(*uint32) uint32 {
		v := raws[i]
		i++
		return v
	}
	var state uint32
	draw := nextRandomBoundedWith(&state, 3, next)
	require.Equal(t, uint32(1), draw)
	require.Equal(t, 2, i)
}
