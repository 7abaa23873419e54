package models

import (
	"context"
	"sort"
	"sync"

	"sublingo/internal/services"
)

// Registry owns the closed set of model backends and mediates every call
// through a per-backend concurrency semaphore. It is constructed once at
// process start and injected; nothing resolves backends at request time
// except through Resolve*.
type Registry struct {
	mu           sync.RWMutex
	transcribers map[string]*guardedTranscriber
	translators  map[string]*guardedTranslator
	closed       bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transcribers: make(map[string]*guardedTranscriber),
		translators:  make(map[string]*guardedTranslator),
	}
}

type guardedTranscriber struct {
	desc    Descriptor
	backend Transcriber
	sem     *semaphore
}

type guardedTranslator struct {
	desc    Descriptor
	backend Translator
	sem     *semaphore
}

// RegisterTranscriber adds a transcription backend under its logical name.
// Duplicate names fail fast.
func (r *Registry) RegisterTranscriber(desc Descriptor, backend Transcriber) error {
	if backend == nil {
		return services.Wrap(services.ErrConfiguration, "", "register transcriber", "nil backend "+desc.Name, nil)
	}
	desc.Capability = CapabilityTranscription
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transcribers[desc.Name]; exists {
		return services.Wrap(services.ErrConfiguration, "", "register transcriber", "duplicate backend "+desc.Name, nil)
	}
	r.transcribers[desc.Name] = &guardedTranscriber{
		desc:    desc,
		backend: backend,
		sem:     newSemaphore(desc.ConcurrencyLimit),
	}
	return nil
}

// RegisterTranslator adds a translation backend under its logical name.
func (r *Registry) RegisterTranslator(desc Descriptor, backend Translator) error {
	if backend == nil {
		return services.Wrap(services.ErrConfiguration, "", "register translator", "nil backend "+desc.Name, nil)
	}
	desc.Capability = CapabilityTranslation
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.translators[desc.Name]; exists {
		return services.Wrap(services.ErrConfiguration, "", "register translator", "duplicate backend "+desc.Name, nil)
	}
	r.translators[desc.Name] = &guardedTranslator{
		desc:    desc,
		backend: backend,
		sem:     newSemaphore(desc.ConcurrencyLimit),
	}
	return nil
}

// ValidateTranscriber reports whether a transcription backend exists.
// Checked at task creation so unknown names never reach the pipeline.
func (r *Registry) ValidateTranscriber(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.transcribers[name]; !ok {
		return services.Wrap(services.ErrConfiguration, "", "resolve backend", "unknown transcription model "+name, nil)
	}
	return nil
}

// ValidateTranslator reports whether a translation backend exists.
func (r *Registry) ValidateTranslator(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.translators[name]; !ok {
		return services.Wrap(services.ErrConfiguration, "", "resolve backend", "unknown translation model "+name, nil)
	}
	return nil
}

// Transcribe resolves the named backend, acquires its concurrency slot
// (a suspension point), and runs the inference call.
func (r *Registry) Transcribe(ctx context.Context, name, audioPath, lang string) ([]Segment, error) {
	r.mu.RLock()
	guarded, ok := r.transcribers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "", "resolve backend", "unknown transcription model "+name, nil)
	}
	if err := guarded.sem.acquire(ctx); err != nil {
		return nil, err
	}
	defer guarded.sem.release()
	return guarded.backend.Transcribe(ctx, audioPath, lang)
}

// TryTranscribe behaves like Transcribe but surfaces backpressure instead of
// waiting when every slot is busy.
func (r *Registry) TryTranscribe(ctx context.Context, name, audioPath, lang string) ([]Segment, error) {
	r.mu.RLock()
	guarded, ok := r.transcribers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "", "resolve backend", "unknown transcription model "+name, nil)
	}
	if !guarded.sem.tryAcquire() {
		return nil, services.Wrap(services.ErrResourceExhausted, "", "transcribe",
			"all concurrency slots busy for "+name, nil)
	}
	defer guarded.sem.release()
	return guarded.backend.Transcribe(ctx, audioPath, lang)
}

// Translate resolves the named backend, acquires its concurrency slot, and
// runs the inference call.
func (r *Registry) Translate(ctx context.Context, name, text, sourceLang, targetLang string) (string, error) {
	r.mu.RLock()
	guarded, ok := r.translators[name]
	r.mu.RUnlock()
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, "", "resolve backend", "unknown translation model "+name, nil)
	}
	if err := guarded.sem.acquire(ctx); err != nil {
		return "", err
	}
	defer guarded.sem.release()
	return guarded.backend.Translate(ctx, text, sourceLang, targetLang)
}

// Descriptors returns every registered backend sorted by name, for status
// output.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.transcribers)+len(r.translators))
	for _, g := range r.transcribers {
		out = append(out, g.desc)
	}
	for _, g := range r.translators {
		out = append(out, g.desc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Capability != out[j].Capability {
			return out[i].Capability < out[j].Capability
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Close releases backend resources. Backends implementing io.Closer are
// closed; the registry rejects further registration afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var firstErr error
	closeBackend := func(backend any) {
		if closer, ok := backend.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, g := range r.transcribers {
		closeBackend(g.backend)
	}
	for _, g := range r.translators {
		closeBackend(g.backend)
	}
	return firstErr
}
