package uciengine

import (
	"context"
	"sync"

	"github.com/seekerror/logw"
)

// Registry pools engine subprocesses keyed by (path, options fingerprint).
// Acquire reuses a live process or spawns a new one; handles are reference
// counted and the process is reaped when the count reaches zero.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*entry
}

type entry struct {
	handle *Handle
	refs   int
}

func NewRegistry() *Registry {
	return &Registry{handles: map[string]*entry{}}
}

// Acquire returns a handle for the engine at path with the given options. A
// dead pooled process is replaced transparently.
func (r *Registry) Acquire(ctx context.Context, path string, opts Options) (*Handle, error) {
	key := path + "|" + opts.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.handles[key]; ok && !e.handle.Dead() {
		e.refs++
		logw.Debugf(ctx, "Engine %v reused (refs=%v)", path, e.refs)
		return e.handle, nil
	}

	proc, err := startProcess(ctx, path)
	if err != nil {
		return nil, err
	}

	h := &Handle{path: path, fp: key, reg: r, proc: proc, opts: opts}
	r.handles[key] = &entry{handle: h, refs: 1}
	return h, nil
}

// Close quits every pooled engine regardless of reference counts.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.handles {
		e.handle.proc.quit(ctx)
		delete(r.handles, key)
	}
}

func (r *Registry) release(ctx context.Context, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.handles[h.fp]
	if !ok || e.handle != h {
		return // already replaced after a crash
	}

	e.refs--
	if e.refs > 0 {
		return
	}

	delete(r.handles, h.fp)
	h.proc.quit(ctx)
	logw.Infof(ctx, "Engine %v reaped", h.path)
}
