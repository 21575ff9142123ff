package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/pkg/logger"
)

// DefaultWindow is how long a user stays online without any activity.
const DefaultWindow = 5 * time.Minute

// MemoryTracker is the single-node presence map. Entries that stop being
// touched are evicted by Run, so a crashed connection heals on its own.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	window  time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	record      entity.PresenceRecord
	connections map[string]struct{}
}

func NewMemoryTracker(window time.Duration) *MemoryTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryTracker{
		entries: make(map[string]*memoryEntry),
		window:  window,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Tests use it to age entries.
func (t *MemoryTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *MemoryTracker) SetOnline(ctx context.Context, userID, connectionRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hold(userID, connectionRef)
	return nil
}

func (t *MemoryTracker) SetOffline(ctx context.Context, userID, connectionRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[userID]
	if !ok {
		return nil
	}
	delete(entry.connections, connectionRef)
	if len(entry.connections) == 0 {
		delete(t.entries, userID)
		return nil
	}
	if entry.record.ConnectionRef == connectionRef {
		for ref := range entry.connections {
			entry.record.ConnectionRef = ref
			break
		}
	}
	return nil
}

func (t *MemoryTracker) Touch(ctx context.Context, userID, connectionRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hold(userID, connectionRef)
	return nil
}

// hold records connectionRef for userID and refreshes the entry. Callers hold
// t.mu.
func (t *MemoryTracker) hold(userID, connectionRef string) {
	entry, ok := t.entries[userID]
	if !ok {
		entry = &memoryEntry{connections: make(map[string]struct{})}
		t.entries[userID] = entry
	}
	entry.connections[connectionRef] = struct{}{}
	entry.record = entity.PresenceRecord{
		UserID:        userID,
		ConnectionRef: connectionRef,
		LastSeen:      t.now(),
		Status:        entity.PresenceOnline,
	}
}

func (t *MemoryTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[userID]
	return ok && t.fresh(entry.record), nil
}

func (t *MemoryTracker) ListOnline(ctx context.Context) ([]entity.PresenceRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]entity.PresenceRecord, 0, len(t.entries))
	for _, entry := range t.entries {
		if t.fresh(entry.record) {
			record := entry.record
			record.Connections = len(entry.connections)
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Sweep evicts entries idle for longer than the window and returns their
// user ids.
func (t *MemoryTracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	for userID, entry := range t.entries {
		if !t.fresh(entry.record) {
			delete(t.entries, userID)
			evicted = append(evicted, userID)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Run sweeps every interval until ctx is done.
func (t *MemoryTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := t.Sweep(); len(evicted) > 0 {
				logger.Debug("Presence sweep evicted %d idle users", len(evicted))
			}
		}
	}
}

func (t *MemoryTracker) fresh(record entity.PresenceRecord) bool {
	return t.now().Sub(record.LastSeen) <= t.window
}
