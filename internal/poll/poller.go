package poll

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/store"
)

// statusConcurrency bounds how many device status polls run at once.
// The cloud client's per-device rate limiter sits beneath this.
const statusConcurrency = 4

// Default cadences, used when the options leave an interval zero.
const (
	defaultStatusInterval      = 30 * time.Second
	defaultDetailsInterval     = 5 * time.Minute
	defaultDiscoveryInterval   = 15 * time.Minute
	defaultAvailabilityTimeout = 2 * time.Minute
)

// CloudClient is the read side of the cloud API the poller consumes.
type CloudClient interface {
	Networks(ctx context.Context) ([]cloud.Network, error)
	Devices(ctx context.Context) ([]cloud.Device, error)
	DeviceStatus(ctx context.Context, deviceID string) (*cloud.DeviceStatus, error)
	Groups(ctx context.Context) ([]cloud.Group, error)
	Scenes(ctx context.Context) ([]cloud.Scene, error)
}

// Registry is the in-memory device registry the poller maintains.
type Registry interface {
	Get(uniqueID string) (*device.Device, error)
	List() []*device.Device
	Upsert(d *device.Device)
	Prune(keep map[string]bool) []*device.Device
	SetState(uniqueID string, st device.State) (*device.Device, error)
	SetAvailability(uniqueID string, online bool) (bool, error)
}

// Events receives registry change notifications, normally the MQTT
// bridge. Calls arrive from poller goroutines and must be safe for
// concurrent use.
type Events interface {
	HandleDeviceUpsert(d *device.Device)
	HandleStateChange(d *device.Device)
	HandleAvailability(d *device.Device)
	HandleDeviceRemoved(uniqueID string)
	SyncGroups(groups []cloud.Group)
	SyncScenes(scenes []cloud.Scene)
}

// DeviceStore persists device snapshots so listings survive restarts
// and cloud outages.
type DeviceStore interface {
	Upsert(ctx context.Context, d *device.Device) error
	ReplaceNetwork(ctx context.Context, networkID string, devices []*device.Device) error
}

// NetworkStore persists network summary rows.
type NetworkStore interface {
	Upsert(ctx context.Context, row *store.NetworkRow) error
}

// Telemetry records availability transitions and per-cycle statistics.
type Telemetry interface {
	WriteAvailability(deviceID, networkID string, online bool)
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Logger is the minimal logging interface the poller needs.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Options configures a Poller.
type Options struct {
	Cloud    CloudClient
	Registry Registry
	Events   Events

	// Optional persistence and telemetry sinks.
	Devices   DeviceStore
	Networks  NetworkStore
	Telemetry Telemetry

	// Intervals; zero values take the defaults.
	StatusInterval      time.Duration
	DetailsInterval     time.Duration
	DiscoveryInterval   time.Duration
	AvailabilityTimeout time.Duration

	Logger Logger
}

// Poller drives the status, details and discovery loops.
type Poller struct {
	cloud     CloudClient
	registry  Registry
	events    Events
	devices   DeviceStore
	networks  NetworkStore
	telemetry Telemetry

	statusInterval      time.Duration
	detailsInterval     time.Duration
	discoveryInterval   time.Duration
	availabilityTimeout time.Duration

	// lastSuccess holds the most recent successful status poll per
	// device; inFlight guards against overlapping polls for one device.
	pollMu      sync.Mutex
	lastSuccess map[string]time.Time
	inFlight    map[string]bool

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Poller. Cloud, Registry and Events are required; the
// stores and telemetry sink may be nil.
func New(opts Options) (*Poller, error) {
	if opts.Cloud == nil {
		return nil, fmt.Errorf("cloud client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("events sink is required")
	}

	p := &Poller{
		cloud:               opts.Cloud,
		registry:            opts.Registry,
		events:              opts.Events,
		devices:             opts.Devices,
		networks:            opts.Networks,
		telemetry:           opts.Telemetry,
		statusInterval:      opts.StatusInterval,
		detailsInterval:     opts.DetailsInterval,
		discoveryInterval:   opts.DiscoveryInterval,
		availabilityTimeout: opts.AvailabilityTimeout,
		lastSuccess:         make(map[string]time.Time),
		inFlight:            make(map[string]bool),
		done:                make(chan struct{}),
		logger:              opts.Logger,
	}
	if p.statusInterval <= 0 {
		p.statusInterval = defaultStatusInterval
	}
	if p.detailsInterval <= 0 {
		p.detailsInterval = defaultDetailsInterval
	}
	if p.discoveryInterval <= 0 {
		p.discoveryInterval = defaultDiscoveryInterval
	}
	if p.availabilityTimeout <= 0 {
		p.availabilityTimeout = defaultAvailabilityTimeout
	}
	p.ctx, p.ctxCancel = context.WithCancel(context.Background())

	return p, nil
}

// Start launches the three loops. The discovery loop runs a sweep
// immediately so a fresh start converges without waiting a full
// interval; status and details begin after their first tick.
// Cancelling ctx stops the loops and aborts in-flight cloud calls.
func (p *Poller) Start(ctx context.Context) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-ctx.Done():
			p.ctxCancel()
		case <-p.done:
		}
	}()

	p.wg.Add(3)
	go p.statusLoop()
	go p.detailsLoop()
	go p.discoveryLoop()

	p.logInfo("poller started",
		"status_interval", p.statusInterval,
		"details_interval", p.detailsInterval,
		"discovery_interval", p.discoveryInterval,
		"availability_timeout", p.availabilityTimeout)
	return nil
}

// Stop halts the loops and waits for in-flight polls to drain. Safe to
// call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.ctxCancel()
		p.wg.Wait()
		p.logInfo("poller stopped")
	})
}

func (p *Poller) statusLoop() {
	defer p.wg.Done()

	timer := time.NewTimer(p.jittered(p.statusInterval))
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		case <-timer.C:
			p.statusCycle()
			timer.Reset(p.jittered(p.statusInterval))
		}
	}
}

func (p *Poller) detailsLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.detailsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.detailsRefresh()
		}
	}
}

func (p *Poller) discoveryLoop() {
	defer p.wg.Done()

	p.discoverySweep()

	ticker := time.NewTicker(p.discoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.discoverySweep()
		}
	}
}

// jittered spreads an interval by ±10% so repeated cycles drift apart
// instead of thundering in step with other periodic work.
func (p *Poller) jittered(interval time.Duration) time.Duration {
	j := int64(interval) / 10
	if j <= 0 {
		return interval
	}
	return interval + time.Duration(rand.Int63n(2*j+1)-j)
}

// statusCycle polls the status of every registered device through a
// bounded worker pool and records cycle statistics.
func (p *Poller) statusCycle() {
	devices := p.registry.List()
	if len(devices) == 0 {
		return
	}

	started := time.Now()
	sem := make(chan struct{}, statusConcurrency)

	var (
		cycleWG  sync.WaitGroup
		statMu   sync.Mutex
		failures int
	)

	for _, d := range devices {
		if p.ctx.Err() != nil {
			break
		}
		if !p.markInFlight(d.UniqueID) {
			continue
		}

		sem <- struct{}{}
		cycleWG.Add(1)
		go func(d *device.Device) {
			defer cycleWG.Done()
			defer func() { <-sem }()
			defer p.clearInFlight(d.UniqueID)

			if !p.pollStatus(d) {
				statMu.Lock()
				failures++
				statMu.Unlock()
			}
		}(d)
	}

	cycleWG.Wait()
	p.recordCycle("status", started, len(devices), failures)
}

// pollStatus fetches one device's status and folds it into the
// registry. Returns false when the fetch failed.
func (p *Poller) pollStatus(d *device.Device) bool {
	status, err := p.cloud.DeviceStatus(p.ctx, d.UniqueID)
	now := time.Now()

	if err != nil {
		p.logDebug("status poll failed", "device_id", d.UniqueID, "error", err)
		p.markPollFailed(d, now)
		return false
	}

	p.pollMu.Lock()
	p.lastSuccess[d.UniqueID] = now
	p.pollMu.Unlock()

	// The cloud answered but the gateway may still be unable to reach
	// the node over the mesh; its verdict wins.
	p.applyAvailability(d, status.Online)

	if status.Online && status.State != nil {
		st := device.StateFromCloud(*status.State, now)
		if stateChanged(d.State, st) {
			updated, err := p.registry.SetState(d.UniqueID, st)
			if err != nil {
				// Pruned between the snapshot and now.
				return true
			}
			p.events.HandleStateChange(updated)
			p.persistDevice(updated)
		}
	}
	return true
}

// markPollFailed flips a device offline once its last successful poll
// falls outside the availability window.
func (p *Poller) markPollFailed(d *device.Device, now time.Time) {
	p.pollMu.Lock()
	last := p.lastSuccess[d.UniqueID]
	p.pollMu.Unlock()

	if !last.IsZero() && now.Sub(last) <= p.availabilityTimeout {
		return
	}
	p.applyAvailability(d, false)
}

// applyAvailability records an availability verdict and publishes the
// transition if the device actually changed sides.
func (p *Poller) applyAvailability(d *device.Device, online bool) {
	changed, err := p.registry.SetAvailability(d.UniqueID, online)
	if err != nil || !changed {
		return
	}

	if current, err := p.registry.Get(d.UniqueID); err == nil {
		p.events.HandleAvailability(current)
	}
	if p.telemetry != nil {
		p.telemetry.WriteAvailability(d.UniqueID, d.NetworkID, online)
	}
	if online {
		p.logInfo("device online", "device_id", d.UniqueID, "name", d.Name)
	} else {
		p.logWarn("device offline", "device_id", d.UniqueID, "name", d.Name)
	}
}

// detailsRefresh re-reads the device catalogue and folds metadata
// changes (renames, firmware updates, moves) into known devices. New
// and vanished devices are the discovery sweep's job.
func (p *Poller) detailsRefresh() {
	listing, err := p.cloud.Devices(p.ctx)
	if err != nil {
		p.logWarn("details refresh failed", "error", err)
		return
	}

	refreshed := 0
	for _, cd := range listing {
		existing, err := p.registry.Get(cd.UniqueID)
		if err != nil {
			continue
		}

		fresh := device.FromCloud(cd)
		if !metadataChanged(existing, fresh) {
			continue
		}

		p.registry.Upsert(fresh)
		if current, err := p.registry.Get(fresh.UniqueID); err == nil {
			p.events.HandleDeviceUpsert(current)
			p.persistDevice(current)
		}
		refreshed++
	}

	if refreshed > 0 {
		p.logInfo("device details refreshed", "devices", refreshed)
	}
}

// discoverySweep reconciles the registry against the full cloud
// catalogue: new devices are added and announced, vanished ones pruned
// and retracted, and groups, scenes and network summaries re-synced.
func (p *Poller) discoverySweep() {
	started := time.Now()

	networks, err := p.cloud.Networks(p.ctx)
	if err != nil {
		p.logWarn("discovery sweep failed", "stage", "networks", "error", err)
		return
	}
	devices, err := p.cloud.Devices(p.ctx)
	if err != nil {
		p.logWarn("discovery sweep failed", "stage", "devices", "error", err)
		return
	}

	byNetwork := make(map[string][]*device.Device)
	keep := make(map[string]bool, len(devices))
	added, updated := 0, 0

	for _, cd := range devices {
		d := device.FromCloud(cd)
		keep[d.UniqueID] = true
		byNetwork[d.NetworkID] = append(byNetwork[d.NetworkID], d)

		existing, err := p.registry.Get(d.UniqueID)
		isNew := err != nil

		if !isNew && !metadataChanged(existing, d) {
			continue
		}

		p.registry.Upsert(d)
		if current, err := p.registry.Get(d.UniqueID); err == nil {
			p.events.HandleDeviceUpsert(current)
		}
		if isNew {
			added++
			p.logInfo("device discovered",
				"device_id", d.UniqueID, "name", d.Name, "type", d.Type)
		} else {
			updated++
		}
	}

	removed := p.registry.Prune(keep)
	for _, d := range removed {
		p.events.HandleDeviceRemoved(d.UniqueID)
		p.pollMu.Lock()
		delete(p.lastSuccess, d.UniqueID)
		p.pollMu.Unlock()
		p.logInfo("device removed", "device_id", d.UniqueID, "name", d.Name)
	}

	if p.devices != nil {
		for _, n := range networks {
			if err := p.devices.ReplaceNetwork(p.ctx, n.ID, byNetwork[n.ID]); err != nil {
				p.logError("persisting network devices", "network_id", n.ID, "error", err)
			}
		}
	}

	var groups []cloud.Group
	if groups, err = p.cloud.Groups(p.ctx); err != nil {
		p.logWarn("group sync failed", "error", err)
	} else {
		p.events.SyncGroups(groups)
	}

	if scenes, err := p.cloud.Scenes(p.ctx); err != nil {
		p.logWarn("scene sync failed", "error", err)
	} else {
		p.events.SyncScenes(scenes)
	}

	if p.networks != nil {
		groupCounts := make(map[string]int)
		for _, g := range groups {
			groupCounts[g.NetworkID]++
		}
		for _, n := range networks {
			row := &store.NetworkRow{
				ID:          n.ID,
				Name:        n.Name,
				DeviceCount: len(byNetwork[n.ID]),
				GroupCount:  groupCounts[n.ID],
			}
			if err := p.networks.Upsert(p.ctx, row); err != nil {
				p.logError("persisting network", "network_id", n.ID, "error", err)
			}
		}
	}

	p.recordCycle("discovery", started, len(devices), 0)
	p.logInfo("discovery sweep complete",
		"networks", len(networks),
		"devices", len(devices),
		"added", added,
		"updated", updated,
		"removed", len(removed))
}

func (p *Poller) persistDevice(d *device.Device) {
	if p.devices == nil {
		return
	}
	if err := p.devices.Upsert(p.ctx, d); err != nil {
		p.logError("persisting device", "device_id", d.UniqueID, "error", err)
	}
}

func (p *Poller) recordCycle(kind string, started time.Time, devices, failures int) {
	if p.telemetry == nil {
		return
	}
	p.telemetry.WritePoint("poll_cycle",
		map[string]string{"kind": kind},
		map[string]interface{}{
			"duration_ms": time.Since(started).Milliseconds(),
			"devices":     devices,
			"failures":    failures,
		})
}

// markInFlight claims a device for polling. Returns false when a poll
// for it is already running.
func (p *Poller) markInFlight(uniqueID string) bool {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	if p.inFlight[uniqueID] {
		return false
	}
	p.inFlight[uniqueID] = true
	return true
}

func (p *Poller) clearInFlight(uniqueID string) {
	p.pollMu.Lock()
	delete(p.inFlight, uniqueID)
	p.pollMu.Unlock()
}

// stateChanged reports whether the polled state differs from the last
// known one in any field worth publishing. Timestamps alone do not
// count.
func stateChanged(prev *device.State, next device.State) bool {
	if prev == nil {
		return true
	}
	if prev.Power != next.Power {
		return true
	}
	if !intPtrEqual(prev.Lightness, next.Lightness) {
		return true
	}
	if !intPtrEqual(prev.Temperature, next.Temperature) {
		return true
	}
	if !floatPtrEqual(prev.Hue, next.Hue) {
		return true
	}
	if !floatPtrEqual(prev.Saturation, next.Saturation) {
		return true
	}
	return false
}

// metadataChanged reports whether catalogue metadata differs between
// the registry copy and a freshly fetched one. State and availability
// are ignored; the status loop owns those.
func metadataChanged(a, b *device.Device) bool {
	return a.Name != b.Name ||
		a.Description != b.Description ||
		a.Type != b.Type ||
		a.NetworkID != b.NetworkID ||
		a.UnicastAddress != b.UnicastAddress ||
		a.BootloaderVersion != b.BootloaderVersion
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SetLogger installs or replaces the logger. Safe for concurrent use.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	defer p.loggerMu.Unlock()
	p.logger = logger
}

func (p *Poller) logDebug(msg string, keyvals ...interface{}) {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	if p.logger != nil {
		p.logger.Debug(msg, keyvals...)
	}
}

func (p *Poller) logInfo(msg string, keyvals ...interface{}) {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	if p.logger != nil {
		p.logger.Info(msg, keyvals...)
	}
}

func (p *Poller) logWarn(msg string, keyvals ...interface{}) {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	if p.logger != nil {
		p.logger.Warn(msg, keyvals...)
	}
}

func (p *Poller) logError(msg string, keyvals ...interface{}) {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	if p.logger != nil {
		p.logger.Error(msg, keyvals...)
	}
}
