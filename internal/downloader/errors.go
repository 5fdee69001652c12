package downloader

import "errors"

var (
	// ErrNoDataTarball is returned when an unpacked archive has no data.tar member.
	ErrNoDataTarball = errors.New("no data.tar member found in archive")

	// ErrToolNotStarted is returned when a tool could not be launched at all,
	// as opposed to exiting non-zero.
	ErrToolNotStarted = errors.New("tool could not be started")

	// ErrSorterFailed is returned in strict mode when the sorter exits non-zero.
	ErrSorterFailed = errors.New("symbol sorter failed")
)
