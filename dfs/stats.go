package dfs

import "sync"

// Recorder accumulates per-extension operation counters for the optional
// administrative HTTP API. Its default implementation is in-process; a
// Redis-backed Recorder lives in internal/dfsutil for sharing counters
// across multiple router processes.
type Recorder interface {
	IncUpload(ext Extension)
	IncDownload(ext Extension)
	IncRemove(ext Extension)
	AddBytes(ext Extension, n int64)
	IncSession()
	Snapshot() Stats
}

// Stats is a point-in-time copy of a Recorder's counters.
type Stats struct {
	Uploads   map[Extension]int64
	Downloads map[Extension]int64
	Removes   map[Extension]int64
	Bytes     map[Extension]int64
	Sessions  int64
}

// MemRecorder is the default in-process Recorder, with a single mutex
// guarding all counters.
type MemRecorder struct {
	mu        sync.Mutex
	uploads   map[Extension]int64
	downloads map[Extension]int64
	removes   map[Extension]int64
	bytes     map[Extension]int64
	sessions  int64
}

// NewMemRecorder constructs an empty in-process Recorder.
func NewMemRecorder() *MemRecorder {
	return &MemRecorder{
		uploads:   make(map[Extension]int64),
		downloads: make(map[Extension]int64),
		removes:   make(map[Extension]int64),
		bytes:     make(map[Extension]int64),
	}
}

func (r *MemRecorder) IncUpload(ext Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[ext]++
}

func (r *MemRecorder) IncDownload(ext Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[ext]++
}

func (r *MemRecorder) IncRemove(ext Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes[ext]++
}

func (r *MemRecorder) AddBytes(ext Extension, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes[ext] += n
}

// IncSession bumps the lifetime session counter, which has no extension
// dimension so it sits outside the per-extension counter methods above.
func (r *MemRecorder) IncSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions++
}

func (r *MemRecorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		Uploads:   make(map[Extension]int64, len(r.uploads)),
		Downloads: make(map[Extension]int64, len(r.downloads)),
		Removes:   make(map[Extension]int64, len(r.removes)),
		Bytes:     make(map[Extension]int64, len(r.bytes)),
		Sessions:  r.sessions,
	}
	for k, v := range r.uploads {
		s.Uploads[k] = v
	}
	for k, v := range r.downloads {
		s.Downloads[k] = v
	}
	for k, v := range r.removes {
		s.Removes[k] = v
	}
	for k, v := range r.bytes {
		s.Bytes[k] = v
	}
	return s
}
