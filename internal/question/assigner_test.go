package question

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPick(t *testing.T) {
	seq := func(n int) []int64 {
		ids := make([]int64, n)
		for i := range ids {
			ids[i] = int64(i + 1)
		}
		return ids
	}

	tests := map[string]struct {
		ids     []int64
		n       int
		wantLen int
	}{
		"fresh game takes exactly n":       {ids: seq(300), n: 20, wantLen: 20},
		"resumed game takes the remainder": {ids: seq(293), n: 13, wantLen: 13},
		"fewer available than required":    {ids: seq(5), n: 20, wantLen: 5},
		"nothing required":                  {ids: seq(10), n: 0, wantLen: 0},
		"negative remainder":                {ids: seq(10), n: -3, wantLen: 0},
		"no questions":                      {ids: nil, n: 20, wantLen: 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			all := make(map[int64]bool, len(tt.ids))
			for _, id := range tt.ids {
				all[id] = true
			}

			got := pick(tt.ids, tt.n, rand.New(rand.NewPCG(1, 2)).IntN)

			require.Len(t, got, tt.wantLen)
			seen := make(map[int64]bool, len(got))
			for _, id := range got {
				assert.True(t, all[id], "picked id must come from the input: %d", id)
				assert.False(t, seen[id], "picked ids must be distinct: %d", id)
				seen[id] = true
			}
		})
	}
}

func TestPick_IsUniform(t *testing.T) {
	const (
		rounds = 60000
		n      = 3
	)

	// Every ordered triple drawn from 3 elements should come up about rounds/6 times.
	counts := make(map[[n]int64]int)
	r := rand.New(rand.NewPCG(42, 7))
	for range rounds {
		got := pick([]int64{1, 2, 3}, n, r.IntN)
		counts[[n]int64(got)]++
	}

	require.Len(t, counts, 6)
	for perm, c := range counts {
		assert.InDelta(t, rounds/6, c, rounds/6*0.1, "permutation %v drawn %d times", perm, c)
	}
}
