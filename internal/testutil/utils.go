package testutil

import (
	"log"
	"os"
	"sync"
	"testing"
)

// testWriter forwards component log output to the test log so lines are
// attributed to the test that produced them. Connection pumps and room
// goroutines can outlive the test body; writes after cleanup go to stderr
// instead of a finished testing.T.
type testWriter struct {
	mu   sync.Mutex
	t    *testing.T
	done bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return os.Stderr.Write(p)
	}

	w.t.Logf("%s", p)
	return len(p), nil
}

func TestLogger(t *testing.T) *log.Logger {
	w := &testWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})

	return log.New(w, "", log.Lshortfile)
}
