package desim

import (
	"bytes"
	"runtime"
	"strconv"
)

// getGoroutineID returns the numeric id of the calling goroutine, parsed
// out of a runtime.Stack trace. Grounded on eventloop/loop.go's
// getGoroutineID/isLoopThread thread-affinity check, reused here to
// confirm a blocking call is made from the fiber goroutine it was
// dispatched on rather than from some other goroutine the entity
// happens to have spawned.
//
// This is not cheap; it is called once per Invoke dispatch (when the
// fiber goroutine starts) and on every blocking-call thread check.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]

	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
