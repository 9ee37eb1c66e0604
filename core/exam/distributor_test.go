package exam

import (
	"testing"
)

func TestSetLabel(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "A"},
		{1, "B"},
		{2, "C"},
		{25, "Z"},
		{26, "S27"},
	}
	for _, tt := range tests {
		if got := setLabel(tt.i); got != tt.want {
			t.Errorf("setLabel(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name         string
		rolls        []int
		numberOfSets int
	}{
		{name: "five rolls two sets", rolls: []int{1, 2, 3, 4, 5}, numberOfSets: 2},
		{name: "even split", rolls: []int{1, 2, 3, 4, 5, 6}, numberOfSets: 3},
		{name: "more sets than rolls", rolls: []int{7, 9}, numberOfSets: 4},
		{name: "single set", rolls: []int{1, 2, 3}, numberOfSets: 1},
		{name: "zero sets treated as one", rolls: []int{1, 2, 3}, numberOfSets: 0},
		{name: "no rolls", rolls: nil, numberOfSets: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMap := distribute(tt.rolls, tt.numberOfSets)

			wantSets := tt.numberOfSets
			if wantSets < 1 {
				wantSets = 1
			}
			if len(setMap) != wantSets {
				t.Fatalf("distribute() returned %d sets, want %d", len(setMap), wantSets)
			}

			// every roll in exactly one bucket
			seen := make(map[int]string)
			for _, sa := range setMap {
				for _, roll := range sa.RollNumbers {
					if prev, ok := seen[roll]; ok {
						t.Errorf("roll %d assigned to both %s and %s", roll, prev, sa.SetID)
					}
					seen[roll] = sa.SetID
				}
			}
			if len(seen) != len(tt.rolls) {
				t.Errorf("distribute() covered %d rolls, want %d", len(seen), len(tt.rolls))
			}
			for _, roll := range tt.rolls {
				if _, ok := seen[roll]; !ok {
					t.Errorf("roll %d missing from set map", roll)
				}
			}

			// bucket sizes differ by at most 1
			min, max := len(tt.rolls), 0
			for _, sa := range setMap {
				if n := len(sa.RollNumbers); n < min {
					min = n
				}
				if n := len(sa.RollNumbers); n > max {
					max = n
				}
			}
			if len(setMap) > 0 && max-min > 1 {
				t.Errorf("bucket sizes differ by %d, want <= 1", max-min)
			}
		})
	}
}

func TestDistributeShuffles(t *testing.T) {
	rolls := make([]int, 50)
	for i := range rolls {
		rolls[i] = i + 1
	}

	// with 50 rolls over 2 sets, identical partitions over several runs mean
	// the shuffle is not being applied
	first := distribute(rolls, 2)
	same := true
	for i := 0; i < 5; i++ {
		next := distribute(rolls, 2)
		if len(next[0].RollNumbers) != len(first[0].RollNumbers) {
			t.Fatalf("unbalanced partition across runs")
		}
		for j, roll := range next[0].RollNumbers {
			if roll != first[0].RollNumbers[j] {
				same = false
			}
		}
	}
	if same {
		t.Errorf("distribute() produced identical partitions on repeated runs")
	}
}
