package fetcher

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors returned (wrapped) by Fetch.
var (
	ErrNotFound  = errors.New("channel not found")
	ErrForbidden = errors.New("channel is private or restricted")
	ErrTransient = errors.New("transient fetch failure")
)

// Kind classifies a fetch error.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindTransient
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// KindOf maps err to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
