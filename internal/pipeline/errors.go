package pipeline

import "github.com/rotisserie/eris"

// Pipeline failure taxonomy. Handlers map these to HTTP statuses; anything
// else becomes a generic 500.
var (
	// ErrMissingInput means no file (or no label, for training) was supplied.
	ErrMissingInput = eris.New("missing required input")

	// ErrUnprocessableImage means the upload could not be decoded as an image.
	ErrUnprocessableImage = eris.New("unprocessable image")

	// ErrStorageUnavailable means the blob upload failed; nothing was persisted.
	ErrStorageUnavailable = eris.New("blob storage unavailable")

	// ErrPersistenceFailure means the database insert failed after a
	// successful upload and classification.
	ErrPersistenceFailure = eris.New("persistence failure")
)
