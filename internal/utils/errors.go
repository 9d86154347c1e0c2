package util

import "errors"

var (
	ErrOutOfRange        = errors.New("slot index out of range")
	ErrNotLoaded         = errors.New("page buffer not loaded")
	ErrPageNotFound      = errors.New("page not found")
	ErrIO                = errors.New("i/o error")
	ErrFlush             = errors.New("flush failed")
	ErrPoolExhausted     = errors.New("buffer pool exhausted: every frame is pinned")
	ErrCapacityViolation = errors.New("capacity below resident page count")
	ErrUnderflowPin      = errors.New("unpin of a page that is not pinned")
	ErrNotResident       = errors.New("page is not resident")
	ErrNoVictim          = errors.New("no evictable frame")
	ErrHandleReleased    = errors.New("page handle used after unpin")

	ErrInvalidPageSize     = errors.New("invalid page size")
	ErrInvalidInitialPages = errors.New("initial pages must be positive")
	ErrMaxMapSizeExceeded  = errors.New("initial size exceeds maximum mapping size")
	ErrFileManagerNil      = errors.New("file manager is nil")
	ErrStoreClosed         = errors.New("page store is closed")
	ErrNotMapped           = errors.New("page file is not mapped")
	ErrInvalidPoolSize     = errors.New("invalid pool size")
	ErrOutBoundOfFrame     = errors.New("frame idx out of bound")
	ErrUnknownPolicy       = errors.New("unknown replacement policy")
	ErrUnknownStore        = errors.New("unknown store type")
)

// ErrorType classifies errors returned by the storage layer.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeOutOfRange
	ErrTypeNotLoaded
	ErrTypeNotFound
	ErrTypeIOError
	ErrTypePoolExhausted
	ErrTypeCapacityViolation
	ErrTypeUnderflowPin
	ErrTypeNotResident
)

var errorTypeNames = [...]string{
	ErrTypeUnknown:           "Unknown",
	ErrTypeOutOfRange:        "OutOfRange",
	ErrTypeNotLoaded:         "NotLoaded",
	ErrTypeNotFound:          "NotFound",
	ErrTypeIOError:           "IoError",
	ErrTypePoolExhausted:     "PoolExhausted",
	ErrTypeCapacityViolation: "CapacityViolation",
	ErrTypeUnderflowPin:      "UnderflowPin",
	ErrTypeNotResident:       "NotResident",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "Unknown"
	}
	return errorTypeNames[t]
}

// IsProgrammingError reports kinds that signal caller misuse rather than a
// runtime condition.
func (t ErrorType) IsProgrammingError() bool {
	switch t {
	case ErrTypeOutOfRange, ErrTypeUnderflowPin, ErrTypeNotResident:
		return true
	}
	return false
}

// KindOf returns the ErrorType of err. A flush failure is an IoError.
func KindOf(err error) ErrorType {
	switch {
	case err == nil:
		return ErrTypeUnknown
	case errors.Is(err, ErrOutOfRange):
		return ErrTypeOutOfRange
	case errors.Is(err, ErrNotLoaded):
		return ErrTypeNotLoaded
	case errors.Is(err, ErrPoolExhausted):
		return ErrTypePoolExhausted
	case errors.Is(err, ErrCapacityViolation):
		return ErrTypeCapacityViolation
	case errors.Is(err, ErrUnderflowPin):
		return ErrTypeUnderflowPin
	case errors.Is(err, ErrNotResident):
		return ErrTypeNotResident
	case errors.Is(err, ErrIO), errors.Is(err, ErrFlush):
		return ErrTypeIOError
	case errors.Is(err, ErrPageNotFound):
		return ErrTypeNotFound
	}
	return ErrTypeUnknown
}
