package ffmpeg

import (
	"strings"
	"sync"
)

// LineRing keeps the last N lines written to it. It is used as the stdout
// and stderr sink of a worker so diagnostics survive the process.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial strings.Builder
}

// NewLineRing creates a LineRing with the specified capacity
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write implements io.Writer. Partial lines are held until their newline arrives.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := string(p)
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			r.partial.WriteString(data)
			break
		}
		r.partial.WriteString(data[:i])
		r.push(strings.TrimRight(r.partial.String(), "\r"))
		r.partial.Reset()
		data = data[i+1:]
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Lines returns the buffered lines oldest first, including an unterminated tail
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count+1)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	if r.partial.Len() > 0 {
		out = append(out, r.partial.String())
	}
	return out
}

// Tail returns the last n lines joined by newlines
func (r *LineRing) Tail(n int) string {
	lines := r.Lines()
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
