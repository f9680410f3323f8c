package transfer

import "time"

// DownloadObserver receives progress and the single terminal event of one
// download session. Callbacks run on the session's dispatcher goroutine,
// never on the chunk loop, so a slow observer cannot stall the transfer.
type DownloadObserver interface {
	OnProgress(current, total int64, ts time.Time)
	OnCompleted(data []byte)
	OnCancelled()
	OnFailed(err error)
}

// UploadObserver is the upload mirror of DownloadObserver.
type UploadObserver interface {
	OnProgress(current, total int64, ts time.Time)
	OnCompleted()
	OnCancelled()
	OnFailed(err error)
}

type eventKind int

const (
	eventProgress eventKind = iota
	eventCompleted
	eventCancelled
	eventFailed
)

type event struct {
	kind    eventKind
	current int64
	total   int64
	ts      time.Time
	data    []byte
	err     error
}
