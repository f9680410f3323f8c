// Package transfer drives chunked uploads and downloads over a transport.
//
// A controller owns at most one session. The chunk loop is a single
// goroutine issuing one exchange at a time; Pause, Resume and Cancel only
// flip the guarded state variable, so every transition is linearized against
// the loop and each session delivers exactly one terminal observer event.
package transfer
