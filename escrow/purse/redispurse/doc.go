// Package redispurse implements purse.Purse on Redis. Each purse keeps its
// balance under one key and the ids of deposited payments in a companion
// set; every balance change runs as an optimistic WATCH/MULTI transaction.
package redispurse
