package exam

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"sort"
	"sync"
)

// process-random source; crypto-seeded once so restarts never replay a
// shuffle order. rand.Rand is not safe for concurrent use, hence the lock.
var (
	rngMu sync.Mutex
	rng   = mrand.New(mrand.NewSource(cryptoSeed()))
)

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("seeding set distributor: %v", err))
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// setLabel returns the deterministic label of the i-th set: A, B, C... as
// printed on the papers, falling back to numbered labels past Z.
func setLabel(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("S%d", i+1)
}

// distribute shuffles the roll numbers and deals them round-robin across
// numberOfSets buckets, so bucket sizes never differ by more than 1 and every
// roll lands in exactly one bucket. Each bucket is sorted for stable display.
func distribute(rolls []int, numberOfSets int) []SetAssignment {
	if numberOfSets < 1 {
		numberOfSets = 1
	}

	shuffled := append([]int(nil), rolls...)
	rngMu.Lock()
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	rngMu.Unlock()

	setMap := make([]SetAssignment, numberOfSets)
	for i := range setMap {
		setMap[i].SetID = setLabel(i)
	}
	for i, roll := range shuffled {
		idx := i % numberOfSets
		setMap[idx].RollNumbers = append(setMap[idx].RollNumbers, roll)
	}
	for i := range setMap {
		sort.Ints(setMap[i].RollNumbers)
	}
	return setMap
}
