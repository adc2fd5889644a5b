package watcher

import (
	"context"
	"os"
	"time"
)

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// diff returns the operation that turns prev into cur.
func diff(prev, cur fileSnapshot) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
		return OpModify, true
	default:
		return 0, false
	}
}

// poll compares snapshots of paths every interval until ctx ends or stop
// closes.
func poll(ctx context.Context, paths []string, interval time.Duration, stop <-chan struct{}, emit func(FileEvent)) error {
	state := make(map[string]fileSnapshot, len(paths))
	for _, p := range paths {
		state[p] = snapshot(p)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			for _, p := range paths {
				cur := snapshot(p)
				if op, changed := diff(state[p], cur); changed {
					emit(FileEvent{Path: p, Operation: op, Timestamp: time.Now()})
				}
				state[p] = cur
			}
		}
	}
}
