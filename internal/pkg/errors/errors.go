package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")

	// Ingestion pipeline taxonomy. Extraction and embedding errors are fatal
	// for the document; a description error is absorbed per image.
	ErrExtraction  = errors.New("extraction failed")
	ErrDescription = errors.New("image description failed")
	ErrEmbedding   = errors.New("embedding failed")

	// Answer path taxonomy. Both terminate the event stream with a single
	// error event; neither crashes the orchestrator.
	ErrRetrieval = errors.New("retrieval failed")
	ErrAgent     = errors.New("agent failed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
