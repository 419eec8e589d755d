// Package asyncx provides the small set of concurrency helpers the service
// layer relies on: fire-and-forget dispatch, settled fan-out, ordered
// concurrent mapping and deadline-bound calls.
//
// # Fire-and-forget
//
// [Do] hands a function to a new goroutine. The job scheduler uses it to
// start a run without blocking its tick.
//
// # Fan-out
//
// [AllSettled] runs every function and returns one [Result] per function, so
// a failing notification sink never hides the outcome of the others.
//
//	results := asyncx.AllSettled(ctx,
//	    func(ctx context.Context) (struct{}, error) { return struct{}{}, push(ctx) },
//	    func(ctx context.Context) (struct{}, error) { return struct{}{}, persist(ctx) },
//	)
//
// [Map] transforms a slice concurrently and preserves input order; it is used
// to sign every source sample URL of a generation in parallel.
//
// # Deadlines
//
// [WithTimeout] bounds a single call, e.g. one status poll against the
// synthesis backend. [Sleep] is a context-aware time.Sleep.
package asyncx
