package hub

import (
	"errors"
	"sort"
	"sync"
)

// Directory errors.
var (
	ErrHubNotFound = errors.New("hub: not found")
	ErrHubExists   = errors.New("hub: already registered")
)

// Directory is the set of running hubs keyed by site ID. It is created once
// by the entry point and passed to whatever needs fleet-wide enumeration.
type Directory struct {
	mu   sync.RWMutex
	hubs map[string]*Hub
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{hubs: make(map[string]*Hub)}
}

// Add registers h under its site ID.
func (d *Directory) Add(h *Hub) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.hubs[h.ID()]; ok {
		return ErrHubExists
	}
	d.hubs[h.ID()] = h
	return nil
}

// Get returns the hub for siteID.
func (d *Directory) Get(siteID string) (*Hub, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.hubs[siteID]
	if !ok {
		return nil, ErrHubNotFound
	}
	return h, nil
}

// Remove unregisters and returns the hub for siteID. It does not stop it.
func (d *Directory) Remove(siteID string) (*Hub, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.hubs[siteID]
	if !ok {
		return nil, ErrHubNotFound
	}
	delete(d.hubs, siteID)
	return h, nil
}

// All returns every hub ordered by site ID.
func (d *Directory) All() []*Hub {
	d.mu.RLock()
	hubs := make([]*Hub, 0, len(d.hubs))
	for _, h := range d.hubs {
		hubs = append(hubs, h)
	}
	d.mu.RUnlock()

	sort.Slice(hubs, func(i, j int) bool { return hubs[i].ID() < hubs[j].ID() })
	return hubs
}

// Default returns the only hub when exactly one is registered.
func (d *Directory) Default() (*Hub, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.hubs) != 1 {
		return nil, false
	}
	for _, h := range d.hubs {
		return h, true
	}
	return nil, false
}

// StopAll stops every registered hub.
func (d *Directory) StopAll() {
	for _, h := range d.All() {
		h.Stop()
	}
}
