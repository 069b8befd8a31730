// Package testutil provides stream generators and exact ground truth for
// sketch tests and benchmarks.
//
//	rng := testutil.NewRNG(4711)
//	keys := rng.ZipfKeys(100_000, 5_000, 1.2)
//	truth := testutil.TopExact(testutil.ExactCounts(keys), 10)
//	recall := testutil.Recall(truth, approxKeys)
package testutil
