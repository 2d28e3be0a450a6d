package forms

import (
	"sync"
)

// Registry holds the forms of the most recent scan. Every scan replaces the
// whole set; readers get a snapshot that later scans never modify.
type Registry struct {
	mu     sync.RWMutex
	forms  []DetectedForm
	scanID string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Replace swaps in the result of a scan.
func (r *Registry) Replace(scanID string, detected []DetectedForm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms = detected
	r.scanID = scanID
}

// Snapshot returns the current forms and the id of the scan that produced them.
func (r *Registry) Snapshot() ([]DetectedForm, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DetectedForm(nil), r.forms...), r.scanID
}

// Len returns the number of detected forms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// Clear empties the registry, as a navigation would.
func (r *Registry) Clear() {
	r.Replace("", nil)
}
