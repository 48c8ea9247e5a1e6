package worker

import "sync"

// Progress is the guarded, non-durable view of the in-flight job. It is
// never persisted: a crash loses it, and Recovery reconstructs whatever
// matters from the catalog and the workdir on disk.
type Progress struct {
	mu      sync.RWMutex
	entryID string
	percent float64
	stage   string
	message string
	active  bool
}

// Snapshot is a point-in-time read of Progress.
type Snapshot struct {
	EntryID string
	Percent float64
	Stage   string
	Message string
	Active  bool
}

func (p *Progress) start(entryID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entryID = entryID
	p.percent = 0
	p.stage = ""
	p.message = ""
	p.active = true
}

func (p *Progress) update(percent float64, stage, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.percent = percent
	p.stage = stage
	p.message = message
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
}

// Snapshot returns the current progress state for status reporting.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		EntryID: p.entryID,
		Percent: p.percent,
		Stage:   p.stage,
		Message: p.message,
		Active:  p.active,
	}
}
