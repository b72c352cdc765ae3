package session

import (
	"strings"
	"sync"
)

// windowPhase is the per-window state machine: a window accepts partials
// while open and exactly one final, which closes it. Late partials for a
// finalized window are discarded.
type windowPhase int

const (
	windowOpen windowPhase = iota
	windowFinalized
)

// aggregator merges dispatcher output into the session transcript. It keeps
// two shapes: an append-only log of every accepted chunk (audit), and the
// visible view where a window's final result supersedes its partials. The
// dispatcher worker is the sole writer.
type aggregator struct {
	mu        sync.Mutex
	log       []TranscriptChunk
	view      []TranscriptChunk
	viewIndex map[int64]int
	phase     map[int64]windowPhase
}

func newAggregator() *aggregator {
	return &aggregator{
		viewIndex: make(map[int64]int),
		phase:     make(map[int64]windowPhase),
	}
}

// append applies one transcript chunk. It returns false when the chunk is
// discarded: a partial (or duplicate final) arriving after the window was
// finalized.
func (a *aggregator) append(chunk TranscriptChunk) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase[chunk.WindowID] == windowFinalized {
		return false
	}

	a.log = append(a.log, chunk)

	if idx, ok := a.viewIndex[chunk.WindowID]; ok {
		a.view[idx] = chunk
	} else {
		a.viewIndex[chunk.WindowID] = len(a.view)
		a.view = append(a.view, chunk)
	}

	if !chunk.IsPartial {
		a.phase[chunk.WindowID] = windowFinalized
	}
	return true
}

// viewChunks returns the visible transcript, most recent last. A non-positive
// limit returns everything; otherwise the tail of at most limit chunks.
func (a *aggregator) viewChunks(limit int) []TranscriptChunk {
	a.mu.Lock()
	defer a.mu.Unlock()

	chunks := a.view
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[len(chunks)-limit:]
	}
	out := make([]TranscriptChunk, len(chunks))
	copy(out, chunks)
	return out
}

// viewCount returns the number of windows in the visible transcript.
func (a *aggregator) viewCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.view)
}

// transcriptText joins the visible view into one string.
func (a *aggregator) transcriptText() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	parts := make([]string, 0, len(a.view))
	for _, chunk := range a.view {
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// logLen returns the size of the append-only audit log.
func (a *aggregator) logLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.log)
}
