package engine

// mulberry32. Small, fast, and the full generator state is a single
// word, which keeps it trivial to carry through snapshots.
func nextRandomU32(state *uint32) uint32 {
	*state += 0x6d2b79f5
	z := *state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

func nextRandomBounded(state *uint32, bound uint32) uint32 {
	return nextRandomBoundedWith(state, bound, nextRandomU32)
}

// Rejection sampling keeps the bounded draw unbiased.
func nextRandomBoundedWith(state *uint32, bound uint32, next func(*uint32) uint32) uint32 {
	threshold := (uint64(1) << 32) / uint64(bound) * uint64(bound)
	candidate := next(state)
	for uint64(candidate) >= threshold {
		candidate = next(state)
	}
	return candidate % bound
}
