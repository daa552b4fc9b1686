package generation

import "strings"

// Accumulator concatenates fragments in arrival order. It is what the UI
// renders while a stream is in flight.
type Accumulator struct {
	b   strings.Builder
	err error
}

func (a *Accumulator) Add(f Fragment) {
	a.b.WriteString(f.Text)
	if f.Kind == FragmentError && a.err == nil {
		a.err = f.Err
		if a.err == nil {
			a.err = errNoContent
		}
	}
}

func (a *Accumulator) Content() string { return a.b.String() }

// Err is the terminal stream error, if any.
func (a *Accumulator) Err() error { return a.err }
