package domain

import "fmt"

// TransferError reports a failed media download or temp file write.
type TransferError struct {
	FileID string
	Op     string // resolve | download | write
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("media transfer %s failed for file %s: %v", e.Op, e.FileID, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PublishError reports a failed call against the destination platform.
type PublishError struct {
	Op  string // status | media-upload | media-status
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
