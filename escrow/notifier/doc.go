// Package notifier publishes a stream of state snapshots to observers.
//
// NewKit returns an Updater, kept by the producer, and a Notifier, handed to
// observers. Observers long-poll with GetUpdateSince, passing the count of the
// last update they saw, or receive every snapshot through Subscribe. The
// stream ends with Finish (a final value) or Fail (an error); both are sticky.
package notifier
