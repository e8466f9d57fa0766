// Package stream provides lazy, pull-based entry streams and the operators that
// combine them into one infinite training stream.
//
// A Stream is an immutable description; nothing is read until Open returns an
// Iterator, and each Open starts an independent pass. Iterators follow the io.EOF
// convention and must be closed; closing a wrapper or multiplexer closes everything
// it opened, so a consumer that simply stops pulling and calls Close never leaves a
// file handle behind.
//
// Building blocks:
//
//   - FromSource wraps a Source (the boundary to manifest and archive readers).
//   - Repeat makes a finite stream infinite by re-opening it after each pass.
//   - Map applies Stages to each entry; AttachTags stamps metadata keys.
//   - Mux interleaves streams by weighted random choice. With MuxOptions.MaxOpen set
//     only that many inputs are open at once and exhausted inputs are replaced.
//
// Random order is governed by a SeedPolicy that is committed on the first pull of each
// iterator:
//
//	FixedSeed(n)         same order in every consumer
//	RandomizedSeed(base) distinct per Consumer (rank, worker), reproducible from base
//	TRNGSeed()           fresh entropy per consumer
//
// Consumers identify themselves with WithConsumer:
//
//	ctx = stream.WithConsumer(ctx, stream.Consumer{Rank: rank, Worker: worker})
//	it, err := s.Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for {
//		e, err := it.Next(ctx)
//		if err != nil {
//			return err
//		}
//		train(e)
//	}
package stream
