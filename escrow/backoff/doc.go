// Package backoff computes exponential retry delays with full jitter and runs
// retry loops for purse I/O.
package backoff
