// Package engine provides the asynchronous task processing engine. Callers
// submit named tasks and receive an identity immediately; a fixed pool of
// workers drains the bounded pending queue, resolves an executor per task and
// records each task's progress in the store, where callers poll for it.
//
// For any single task the store sees pending, then processing, then exactly
// one of completed or failed. No ordering holds across tasks.
package engine
