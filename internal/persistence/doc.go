// Package persistence records completed analyses.
//
// Every record is appended to a local JSONL log, which is always available.
// When a RemoteStore is configured and the HealthMonitor reports it
// Available, the record is also inserted remotely with a bounded retry.
// Exhausting the retries flips the monitor to Degraded; a later successful
// probe flips it back. Recording never returns an error to the caller.
package persistence
