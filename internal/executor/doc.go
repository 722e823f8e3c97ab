// Package executor defines how a dequeued task is actually carried out. The
// engine resolves one Executor per task by name through a Registry; names
// without a registered executor fall back to the registry's default.
package executor
