// Package worker provides the pollable background worker shared by every
// component of the bridge. A worker runs at most one blocking operation at a
// time on a persistent goroutine and hands results back to the polling host
// through a channel, so the host never blocks and never observes two
// operations of the same worker overlapping.
package worker
