// Package catalog is the durable, single-writer map from media file
// identity to lifecycle state.
//
// Every mutation goes through Store's exported operations
// (UpsertByPath, Classify, ClaimNext, Begin, Finish, MarkGone, Enqueue,
// EnqueueBest) and is committed to an embedded SQLite database before the
// call returns. Reads (Get, List) and writes share one database
// connection, so they run one at a time; writes are retried with backoff
// on SQLITE_BUSY.
//
// Store also exposes Wake/WaitForWork, the condition variable the worker
// loop parks on between claims.
package catalog
