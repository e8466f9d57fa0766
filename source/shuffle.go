package source

import (
	"context"
	"math/rand/v2"

	"github.com/dcshock/datamux/stream"
)

// shardOrder returns the order in which n shards are visited on this pass. Without
// shuffling shards are read in index order. With shuffling the permutation is drawn
// from the shard seed mixed with the repeat pass, so every pass is reshuffled while a
// fixed seed still reproduces the same sequence of passes.
func shardOrder(ctx context.Context, n int, shuffle bool, seed stream.SeedPolicy) ([]int, error) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if !shuffle || n < 2 {
		return order, nil
	}
	base, err := seed.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	s := stream.DeriveSeed(base, uint64(stream.PassFrom(ctx)))
	rng := rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order, nil
}
