package requestgate

import "strings"

// writeMethods are the request methods that change state on the server.
// Requests using them are never served from or written to the cache.
var writeMethods = map[string]struct{}{
	"POST":   {},
	"PUT":    {},
	"DELETE": {},
	"PATCH":  {},
}

// Accepts reports whether a request with the given method may go through the caching path.
// Write requests are rejected and should be passed through to the network as-is.
func Accepts(method string) bool {
	_, write := writeMethods[strings.ToUpper(method)]
	return !write
}
