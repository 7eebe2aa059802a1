// Package prng provides splittable deterministic random keys.
//
// Every consumer of randomness derives fresh child keys from its own key
// instead of sharing a stream. Two keys derived from different parents, or
// with different indices from the same parent, yield independent streams.
// Reusing a key after it has been split or consumed is a correctness bug:
// split first, hand the children out, and keep only unconsumed keys.
package prng

import "math/rand"

// Key is an immutable handle on a deterministic random stream.
// The zero value is a valid (fixed) key; prefer NewKey with an explicit seed.
type Key struct {
	state uint64
}

// NewKey derives a key from a seed.
func NewKey(seed int64) Key {
	return Key{state: mix(uint64(seed))}
}

// Split returns two independent child keys. The receiver must not be used
// again after splitting.
func (k Key) Split() (Key, Key) {
	return k.child(0), k.child(1)
}

// SplitN returns n independent child keys, one per consumer.
func (k Key) SplitN(n int) []Key {
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = k.child(uint64(i))
	}
	return keys
}

// Rand materializes the key's stream as a *rand.Rand. The key is consumed;
// do not split it afterwards.
func (k Key) Rand() *rand.Rand {
	return rand.New(rand.NewSource(int64(mix(k.state ^ 0xa5a5a5a5a5a5a5a5))))
}

// Uint64 consumes the key as a single 64-bit draw.
func (k Key) Uint64() uint64 {
	return mix(k.state ^ 0x5bd1e9955bd1e995)
}

// Perm consumes the key to draw one random permutation of [0, n).
func (k Key) Perm(n int) []int {
	return k.Rand().Perm(n)
}

func (k Key) child(i uint64) Key {
	return Key{state: mix(k.state ^ mix(i+0x9e3779b97f4a7c15))}
}

// mix is the splitmix64 finalizer. Distinct inputs map to well-separated
// outputs, which is what makes child keys independent.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
