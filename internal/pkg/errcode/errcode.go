package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrDuplicate
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrUploadFailed
	ErrProviderFailed
	ErrStorageFailed
	ErrTimeout
)
