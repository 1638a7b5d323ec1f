package artifacts

import "sync"

// Limits caps what a Recorder keeps.
type Limits struct {
	MaxLogLines   int
	MaxScreenshot int
}

// DefaultLimits keeps the last 5000 log lines and 20 screenshots.
var DefaultLimits = Limits{MaxLogLines: 5000, MaxScreenshot: 20}

// Recorder collects the diagnostics of one live session. It keeps the
// newest entries once a limit is reached.
type Recorder struct {
	mu          sync.Mutex
	limits      Limits
	lines       []string
	screenshots [][]byte
}

// NewRecorder creates an empty recorder.
func NewRecorder(limits Limits) *Recorder {
	if limits.MaxLogLines <= 0 {
		limits.MaxLogLines = DefaultLimits.MaxLogLines
	}
	if limits.MaxScreenshot <= 0 {
		limits.MaxScreenshot = DefaultLimits.MaxScreenshot
	}
	return &Recorder{limits: limits}
}

// AddLog records a device log line.
func (r *Recorder) AddLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.limits.MaxLogLines; over > 0 {
		r.lines = r.lines[over:]
	}
}

// AddScreenshot records a fallback screenshot frame.
func (r *Recorder) AddScreenshot(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screenshots = append(r.screenshots, frame)
	if over := len(r.screenshots) - r.limits.MaxScreenshot; over > 0 {
		r.screenshots = r.screenshots[over:]
	}
}

// Empty reports whether nothing was recorded.
func (r *Recorder) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines) == 0 && len(r.screenshots) == 0
}

func (r *Recorder) snapshot() ([]string, [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...), append([][]byte(nil), r.screenshots...)
}
