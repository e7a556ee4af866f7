// Package stats records finished races off the game path.
//
// Rooms report a win to the Recorder inside their publish section, so the
// Recorder only queues it. A background Run loop writes each match to storage
// with its own timeout.
package stats
