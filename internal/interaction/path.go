package interaction

import "strings"

// PathSeparator joins path elements into a cache key. Record ids never contain it.
const PathSeparator = "\x1f"

// PathTracker derives the cache key from the interactions since the last app
// open and keeps the matching history window.
type PathTracker struct {
	path    []string
	history *History
}

func NewPathTracker(maxHistory int) *PathTracker {
	return &PathTracker{history: NewHistory(maxHistory)}
}

// OpenApp resets the path to [appID] and the history to a single app_open record.
func (t *PathTracker) OpenApp(appID string) Record {
	rec := NewRecord(appID, KindAppOpen, appID, "", appID)
	t.path = append(t.path[:0], rec.ID)
	t.history.Reset(rec)
	return rec
}

// Record appends the interaction to the path and history.
func (t *PathTracker) Record(rec Record) {
	t.path = append(t.path, rec.ID)
	t.history.Push(rec)
}

// Reset clears path and history, as when returning home.
func (t *PathTracker) Reset() {
	t.path = t.path[:0]
	t.history.Reset()
}

// Key is the cache key for the current path.
func (t *PathTracker) Key() string {
	return strings.Join(t.path, PathSeparator)
}

func (t *PathTracker) Path() []string {
	out := make([]string, len(t.path))
	copy(out, t.path)
	return out
}

func (t *PathTracker) History() []Record { return t.history.Records() }

// DisplayKey renders a cache key for logs.
func DisplayKey(key string) string {
	return strings.ReplaceAll(key, PathSeparator, " > ")
}
