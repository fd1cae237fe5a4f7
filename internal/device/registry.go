package device

import (
	"sort"
	"sync"
)

// Logger is the slice of a structured logger the registry calls.
// Both *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger swallows everything. NewRegistry starts with it so a
// registry without SetLogger still works.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory device catalogue. The cloud is the source
// of truth; the poller keeps the registry current and the API, bridge
// and poller all read from it.
//
// Devices are keyed by their unique ID, the identifier the cloud
// command API addresses. Every read returns a deep copy and every
// write stores one, so callers can never mutate registry internals
// through a shared pointer.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by UniqueID
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  noopLogger{},
		devices: make(map[string]*Device),
	}
}

// SetLogger replaces the registry's logger.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Upsert inserts or replaces a device by its unique ID.
//
// Catalogue fields always come from the argument. Locally tracked
// state, availability and last-seen are preserved from the existing
// entry when the incoming device carries no state, so a discovery
// sweep does not wipe what the status poller has learned.
func (r *Registry) Upsert(d *Device) {
	cpy := d.DeepCopy()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.devices[cpy.UniqueID]
	if ok && cpy.State == nil {
		cpy.State = existing.State
		cpy.Online = existing.Online
		cpy.LastSeen = existing.LastSeen
	}
	r.devices[cpy.UniqueID] = cpy

	if !ok {
		r.logger.Debug("device registered",
			"unique_id", cpy.UniqueID,
			"name", cpy.Name,
			"type", string(cpy.Type))
	}
}

// Get retrieves a device by unique ID.
// Returns ErrNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(uniqueID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[uniqueID]
	if !ok {
		return nil, ErrNotFound
	}
	return d.DeepCopy(), nil
}

// List returns deep copies of all devices, sorted by name and then
// unique ID for stable listings.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d.DeepCopy())
	}
	sortDevices(devices)
	return devices
}

// ListByNetwork returns deep copies of the devices belonging to a
// network, sorted by name and then unique ID.
func (r *Registry) ListByNetwork(networkID string) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*Device
	for _, d := range r.devices {
		if d.NetworkID == networkID {
			devices = append(devices, d.DeepCopy())
		}
	}
	sortDevices(devices)
	return devices
}

func sortDevices(devices []*Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].UniqueID < devices[j].UniqueID
	})
}

// Remove deletes a device by unique ID.
// Returns ErrNotFound if the device does not exist.
func (r *Registry) Remove(uniqueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[uniqueID]; !ok {
		return ErrNotFound
	}
	delete(r.devices, uniqueID)
	r.logger.Debug("device removed", "unique_id", uniqueID)
	return nil
}

// Prune removes every device whose unique ID is not in keep and
// returns deep copies of the removed devices, so callers can retract
// anything published for them. A discovery sweep calls this after
// upserting the full cloud inventory.
func (r *Registry) Prune(keep map[string]bool) []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Device
	for id, d := range r.devices {
		if !keep[id] {
			removed = append(removed, d.DeepCopy())
			delete(r.devices, id)
		}
	}
	if len(removed) > 0 {
		r.logger.Info("pruned devices no longer in cloud inventory", "count", len(removed))
	}
	return removed
}

// SetState replaces a device's state and marks it online. LastSeen is
// taken from the state's UpdatedAt. Returns a deep copy of the updated
// device so callers can publish it without a second lookup.
func (r *Registry) SetState(uniqueID string, st State) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[uniqueID]
	if !ok {
		return nil, ErrNotFound
	}

	d.State = st.DeepCopy()
	d.Online = true
	d.LastSeen = st.UpdatedAt
	return d.DeepCopy(), nil
}

// SetAvailability updates a device's online flag. The returned bool
// reports whether the flag actually changed, so callers publish
// availability transitions exactly once.
func (r *Registry) SetAvailability(uniqueID string, online bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[uniqueID]
	if !ok {
		return false, ErrNotFound
	}
	if d.Online == online {
		return false, nil
	}
	d.Online = online
	return true, nil
}

// Count returns the number of devices in the registry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Stats summarises the registry contents for health and diagnostics
// endpoints.
type Stats struct {
	Total     int            `json:"total"`
	Online    int            `json:"online"`
	Lights    int            `json:"lights"`
	Sockets   int            `json:"sockets"`
	Sensors   int            `json:"sensors"`
	ByNetwork map[string]int `json:"by_network"`
}

// GetStats computes registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{ByNetwork: make(map[string]int)}
	for _, d := range r.devices {
		stats.Total++
		if d.Online {
			stats.Online++
		}
		switch {
		case d.Type.IsLight():
			stats.Lights++
		case d.Type.IsSocket():
			stats.Sockets++
		case d.Type.IsSensor():
			stats.Sensors++
		}
		stats.ByNetwork[d.NetworkID]++
	}
	return stats
}
