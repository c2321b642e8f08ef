// Package build runs the incremental build pipeline.
//
// A Runner performs one BuildRun: it loads the build cache, discovers the
// source tree, classifies every item, dispatches the resulting work to the
// Scheduler's worker pool, writes artifacts, collects the outputs of
// deleted sources and finally commits the cache. The cache is mutated only
// by the coordinating goroutine after every worker has returned, and it is
// committed only when the run was not canceled.
package build
