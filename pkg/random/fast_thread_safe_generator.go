// Package random supplies the jitter source pkg/epochzone's background
// cleaner uses to spread its wakeups across ±10% of its configured
// sleep interval, so that multiple zone heaps sharing a machine don't
// all poll in lockstep.
package random

import (
	crypto_rand "crypto/rand"
	"fmt"
	"math/rand/v2"
)

// mustCryptoRandRead fills p with cryptographically secure random
// bytes, panicking on failure since crypto/rand.Read only fails when
// the operating system's entropy source itself is broken.
func mustCryptoRandRead(p []byte) (int, error) {
	n, err := crypto_rand.Read(p)
	if err != nil {
		panic(fmt.Sprintf("Failed to obtain random data: %s", err))
	}
	return n, nil
}

type fastThreadSafeGenerator struct{}

func (fastThreadSafeGenerator) IsThreadSafe() {}

func (fastThreadSafeGenerator) Float64() float64 {
	return rand.Float64()
}

func (fastThreadSafeGenerator) Int63n(n int64) int64 {
	return rand.Int64N(n)
}

func (fastThreadSafeGenerator) Intn(n int) int {
	return rand.IntN(n)
}

func (fastThreadSafeGenerator) Read(p []byte) (int, error) {
	return mustCryptoRandRead(p)
}

func (fastThreadSafeGenerator) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

func (fastThreadSafeGenerator) Uint32() uint32 {
	return rand.Uint32()
}

func (fastThreadSafeGenerator) Uint64() uint64 {
	return rand.Uint64()
}

// FastThreadSafeGenerator is an instance of ThreadSafeGenerator that is
// not suitable for cryptographic purposes. The generator is randomly
// seeded on startup.
var FastThreadSafeGenerator ThreadSafeGenerator = fastThreadSafeGenerator{}
