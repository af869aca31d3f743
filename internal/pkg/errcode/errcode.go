package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrExtraction
	ErrEmbedding
	ErrRetrieval
	ErrAgent
	ErrAIUnavailable
)
