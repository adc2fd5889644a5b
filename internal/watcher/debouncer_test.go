package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDebouncer(t *testing.T) *Debouncer {
	t.Helper()
	d := NewDebouncer(20*time.Millisecond, 4, nil)
	t.Cleanup(d.Stop)
	return d
}

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncer_CoalescesSamePath(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"create then modify", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify then delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create", []Operation{OpDelete, OpCreate}, OpModify},
		{"modify twice", []Operation{OpModify, OpModify}, OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer
			d := newTestDebouncer(t)

			// When: several events for one path arrive inside the window
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/data/history.json", Operation: op})
			}

			// Then: one merged event is emitted
			batch := receive(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := newTestDebouncer(t)

	d.Add(FileEvent{Path: "/a", Operation: OpCreate})
	d.Add(FileEvent{Path: "/a", Operation: OpDelete})
	d.Add(FileEvent{Path: "/b", Operation: OpModify})

	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/b", batch[0].Path)
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := newTestDebouncer(t)

	d.Add(FileEvent{Path: "/z", Operation: OpModify})
	d.Add(FileEvent{Path: "/a", Operation: OpModify})

	batch := receive(t, d)
	require.Len(t, batch, 2)
	assert.Equal(t, "/a", batch[0].Path)
	assert.Equal(t, "/z", batch[1].Path)
}

func TestDebouncer_StopClosesOutputAndIgnoresAdds(t *testing.T) {
	d := NewDebouncer(time.Hour, 1, nil)

	d.Add(FileEvent{Path: "/a", Operation: OpModify})
	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/b", Operation: OpModify})

	_, open := <-d.Output()
	assert.False(t, open)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}
