package interaction

// DefaultMaxHistory is the default window length H.
const DefaultMaxHistory = 10

// History is a bounded, most-recent-first window of interactions.
type History struct {
	max     int
	records []Record
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{max: max, records: make([]Record, 0, max)}
}

// Push prepends r and silently drops the oldest entries beyond the cap.
func (h *History) Push(r Record) {
	if len(h.records) < h.max {
		h.records = append(h.records, Record{})
	}
	copy(h.records[1:], h.records[:len(h.records)-1])
	h.records[0] = r
}

// Reset replaces the window with the given records, most recent first.
func (h *History) Reset(records ...Record) {
	h.records = h.records[:0]
	for i := len(records) - 1; i >= 0; i-- {
		h.Push(records[i])
	}
}

// Records returns a copy of the window, most recent first.
func (h *History) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) Len() int { return len(h.records) }

func (h *History) Cap() int { return h.max }
