// Package retention reclaims expired media.
//
// A Sweeper deletes every clip and asset older than the retention window,
// removing its files before its record so a crash between the two leaves at
// worst a record without files, never files without a record. Clips are
// swept before assets.
//
// Sweeps are idempotent: files already gone are not errors, and a record
// deleted by someone else is skipped. A failure on one record is logged and
// counted and the sweep moves on. Schedule runs a sweep on a fixed interval
// until its context ends.
package retention
