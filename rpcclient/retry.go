package rpcclient

import (
	"errors"
	"io"
	"net"
	"strings"
)

// isTransientNetworkError reports whether err is the kind of connection
// hiccup worth retrying — reset/aborted connections, a connection closed
// mid-response, or a timeout — as opposed to a malformed request or an
// unreachable/nonexistent host, which retrying cannot fix.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, transient := range []string{
		"connection reset",
		"connection aborted",
		"broken pipe",
		"use of closed network connection",
		"http: server closed idle connection",
		"eof",
	} {
		if strings.Contains(strings.ToLower(msg), transient) {
			return true
		}
	}
	return false
}
