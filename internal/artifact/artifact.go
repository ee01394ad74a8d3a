// Package artifact holds the opaque handles that pass between the pipeline
// controller and its collaborators.
package artifact

import (
	"errors"
	"fmt"
	"io"
)

// DocumentRef identifies a document stored by the upload collaborator.
type DocumentRef string

// AudioRef identifies a generated audio artifact.
type AudioRef string

func (r DocumentRef) String() string { return string(r) }
func (r AudioRef) String() string    { return string(r) }

// UploadResult is what a successful upload returns.
type UploadResult struct {
	Ref        DocumentRef
	Preview    string
	TextLength int
}

// Media is an audio payload for streaming or download. Callers must close Body.
type Media struct {
	Name        string // suggested filename
	ContentType string
	Size        int64 // -1 when unknown
	Body        io.ReadCloser
}

// RemoteError is a failure reported by a collaborator. Message is the
// collaborator's own description and may be empty.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error (status %d)", e.StatusCode)
	}
	return e.Message
}

// UserMessage returns the collaborator's description.
func (e *RemoteError) UserMessage() string { return e.Message }

// UserFacing is implemented by errors that carry text meant for the user.
type UserFacing interface {
	error
	UserMessage() string
}

// UserMessage returns the user-facing text carried by err, if any.
func UserMessage(err error) (string, bool) {
	var uf UserFacing
	if errors.As(err, &uf) {
		return uf.UserMessage(), true
	}
	return "", false
}

// NotFound reports whether the error is a remote not-found.
func (e *RemoteError) NotFound() bool {
	return e.StatusCode == 404
}
