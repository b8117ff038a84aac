// Package database provides SQLite storage for clipper's Asset and Clip
// records.
//
// Every mutation made by a job is a read-modify-write inside a single
// transaction, guarded by the status state machine in models.go. A record
// that disappears between a job starting and a mutation landing is reported
// as the Vanished outcome rather than an error.
//
// The database uses WAL mode for concurrent readers and includes automatic
// schema initialization.
package database
