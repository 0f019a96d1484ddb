package game

import (
	"math/rand"
	"time"
)

// Spawner picks the kind of the next piece.
type Spawner interface {
	Next() Kind
}

// RandomSpawner selects uniformly from the seven kinds. A fixed seed replays
// the same piece sequence.
type RandomSpawner struct {
	rng  *rand.Rand
	seed int64
}

// NewRandomSpawner creates a spawner. Seed 0 picks a time-based seed.
func NewRandomSpawner(seed int64) *RandomSpawner {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSpawner{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Next returns a uniformly random kind
func (s *RandomSpawner) Next() Kind {
	return Kinds[s.rng.Intn(len(Kinds))]
}

// Seed returns the seed the spawner was created with.
func (s *RandomSpawner) Seed() int64 {
	return s.seed
}
