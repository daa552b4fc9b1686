package interaction

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryBoundedMostRecentFirst(t *testing.T) {
	const h = 4
	hist := NewHistory(h)
	for i := 0; i < 25; i++ {
		hist.Push(NewRecord(fmt.Sprintf("el-%d", i), KindGenericClick, "", "", "notes_app"))
		require.LessOrEqual(t, hist.Len(), h)

		records := hist.Records()
		assert.Equal(t, fmt.Sprintf("el-%d", i), records[0].ID)
		for j := 1; j < len(records); j++ {
			assert.Equal(t, fmt.Sprintf("el-%d", i-j), records[j].ID, "position %d after push %d", j, i)
		}
	}
}

func TestHistoryRecordsIsACopy(t *testing.T) {
	hist := NewHistory(3)
	hist.Push(NewRecord("a", KindGenericClick, "", "", ""))
	records := hist.Records()
	records[0].ID = "mutated"
	assert.Equal(t, "a", hist.Records()[0].ID)
}

func TestNewRecordNormalizes(t *testing.T) {
	long := strings.Repeat("é", MaxLabelRunes+10)
	rec := NewRecord(" save"+PathSeparator+"btn ", "", long, `{"x":1}`, " notes_app ")

	assert.Equal(t, "savebtn", rec.ID)
	assert.Equal(t, KindGenericClick, rec.Kind)
	assert.Equal(t, MaxLabelRunes, len([]rune(rec.ElementLabel)))
	assert.Equal(t, "notes_app", rec.AppContext)
	assert.Equal(t, `{"x":1}`, rec.Payload)
}

func TestPathTrackerLifecycle(t *testing.T) {
	tr := NewPathTracker(3)

	open := tr.OpenApp("calendar_app")
	assert.Equal(t, KindAppOpen, open.Kind)
	assert.Equal(t, "calendar_app", tr.Key())
	require.Len(t, tr.History(), 1)
	assert.Equal(t, KindAppOpen, tr.History()[0].Kind)

	tr.Record(NewRecord("next_month", KindGenericClick, "Next month", "", "calendar_app"))
	tr.Record(NewRecord("day_14", KindGenericClick, "14", "", "calendar_app"))
	assert.Equal(t, "calendar_app"+PathSeparator+"next_month"+PathSeparator+"day_14", tr.Key())
	assert.Equal(t, "calendar_app > next_month > day_14", DisplayKey(tr.Key()))
	assert.Equal(t, "day_14", tr.History()[0].ID)

	tr.Record(NewRecord("add_event", KindGenericClick, "", "", "calendar_app"))
	assert.Len(t, tr.History(), 3, "history stays capped while the path keeps growing")
	assert.Len(t, tr.Path(), 4)

	tr.OpenApp("notes_app")
	assert.Equal(t, "notes_app", tr.Key())
	assert.Len(t, tr.History(), 1)

	tr.Reset()
	assert.Equal(t, "", tr.Key())
	assert.Empty(t, tr.History())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Open", NewRecord("open_btn", KindGenericClick, "Open", "", "").DisplayName())
	assert.Equal(t, "open_btn", NewRecord("open_btn", KindGenericClick, "", "", "").DisplayName())
	assert.Equal(t, "Unknown Element", Record{}.DisplayName())
}
