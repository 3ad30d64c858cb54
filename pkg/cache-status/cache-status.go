package cachestatus

import (
	"fmt"
	"strings"
)

// HeaderName is the response header carrying the cache status.
const HeaderName = "Cache-Status"

// CacheName identifies this cache in the Cache-Status header.
const CacheName = "Stepper-Cache"

type FwdReason string

const (
	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
)

// CacheStatus describes how the cache handled a request.
// See RFC 9211.
type CacheStatus struct {
	Hit        bool
	FwdReason  FwdReason
	TimeToLive int
	Stored     bool
}

// NewHit returns the status of a response served from the cache.
// A negative ttl marks a stale hit.
func NewHit(ttl int) CacheStatus {
	return CacheStatus{Hit: true, TimeToLive: ttl}
}

// NewForward returns the status of a response fetched from the network.
func NewForward(reason FwdReason, stored bool) CacheStatus {
	return CacheStatus{FwdReason: reason, Stored: stored}
}

func (cs CacheStatus) String() string {
	parts := []string{CacheName}
	if cs.Hit {
		parts = append(parts, "hit", fmt.Sprintf("ttl=%d", cs.TimeToLive))
	} else if cs.FwdReason != "" {
		parts = append(parts, "fwd="+string(cs.FwdReason))
	}
	if cs.Stored {
		parts = append(parts, "stored")
	}
	return strings.Join(parts, "; ")
}
