package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/mqtt"
)

// commandTimeout bounds each cloud call triggered by an MQTT command.
// Slightly above the cloud's own per-command timeout so its error
// surfaces before ours.
const commandTimeout = 12 * time.Second

// Bridge translates between Home Assistant's MQTT conventions and the
// Connect Mesh cloud API. It handles:
//   - Publishing retained discovery configs, state and availability
//   - Receiving entity commands and issuing the matching cloud calls
//   - Optimistic state updates so the UI reacts before the next poll
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt      MQTTClient
	commander Commander
	registry  Registry
	telemetry Telemetry // Optional telemetry sink, may be nil
	version   string
	qos       byte

	// Groups and scenes from the last catalogue sync
	groups map[string]cloud.Group
	scenes map[string]cloud.Scene
	meshMu sync.RWMutex

	// Retained config topics published per entity, so removal can
	// retract them
	discovered   map[string][]string
	discoveredMu sync.Mutex

	// Command counters for the API metrics endpoint
	commandsOK     uint64
	commandsFailed uint64
	statsMu        sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// PublishRetained sends a retained message at QoS 1.
	PublishRetained(topic string, payload []byte) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Topics exposes the topic layout the client was configured with.
	Topics() mqtt.Topics

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Commander issues device, group and scene commands against the cloud.
// Satisfied by *cloud.Client; nil options mean the acknowledged
// defaults.
type Commander interface {
	SetPower(ctx context.Context, deviceID string, on bool, opts *cloud.CommandOptions) error
	SetLightness(ctx context.Context, deviceID string, lightness float64, opts *cloud.CommandOptions) error
	SetTemperature(ctx context.Context, deviceID string, temperature int, opts *cloud.CommandOptions) error
	SetHSL(ctx context.Context, deviceID string, hue, saturation, lightness float64, opts *cloud.CommandOptions) error
	SetGroupPower(ctx context.Context, groupID string, on bool, opts *cloud.CommandOptions) error
	SetGroupLightness(ctx context.Context, groupID string, lightness float64, opts *cloud.CommandOptions) error
	RecallScene(ctx context.Context, sceneID, target string, opts *cloud.CommandOptions) error
}

// Registry is the slice of the device registry the bridge needs.
// Satisfied by *device.Registry.
type Registry interface {
	Get(uniqueID string) (*device.Device, error)
	List() []*device.Device
	SetState(uniqueID string, st device.State) (*device.Device, error)
}

// Telemetry records state samples for history queries.
// It is optional - if nil, the bridge operates without telemetry.
type Telemetry interface {
	WriteDeviceState(p influxdb.StatePoint)
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the MQTT client implementation.
	MQTT MQTTClient

	// Commander executes cloud commands.
	Commander Commander

	// Registry is the in-memory device registry.
	Registry Registry

	// Telemetry is optional; if nil, no samples are recorded.
	Telemetry Telemetry

	// QoS for subscriptions and non-retained publishes.
	QoS byte

	// Version is reported in discovery origin blocks.
	Version string

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a bridge instance. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Commander == nil {
		return nil, fmt.Errorf("commander is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	// Bridge-level context so in-flight commands abort on Stop()
	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:       opts.MQTT,
		commander:  opts.Commander,
		registry:   opts.Registry,
		telemetry:  opts.Telemetry, // May be nil (optional)
		version:    opts.Version,
		qos:        opts.QoS,
		groups:     make(map[string]cloud.Group),
		scenes:     make(map[string]cloud.Scene),
		discovered: make(map[string][]string),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}, nil
}

// Start subscribes to the command topics and announces every device
// already in the registry. Groups and scenes follow via SyncGroups and
// SyncScenes once the poller has fetched the catalogue.
func (b *Bridge) Start(ctx context.Context) error {
	t := b.mqtt.Topics()

	if err := b.mqtt.Subscribe(t.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to device commands: %w", err)
	}
	if err := b.mqtt.Subscribe(t.AllSceneRecalls(), b.qos, b.handleSceneRecall); err != nil {
		return fmt.Errorf("subscribe to scene recalls: %w", err)
	}

	devices := b.registry.List()
	for _, d := range devices {
		b.HandleDeviceUpsert(d)
	}

	b.logInfo("bridge started", "devices", len(devices))
	return nil
}

// Stop gracefully shuts down the bridge. In-flight commands are
// cancelled and their handlers drained before returning.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// stopping reports whether Stop has begun, so handlers refuse new work
// during shutdown.
func (b *Bridge) stopping() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// HandleDeviceUpsert publishes the retained discovery configs for a
// device plus its current availability and state. Safe to call again
// when metadata changes; the retained configs are simply replaced.
func (b *Bridge) HandleDeviceUpsert(d *device.Device) {
	msgs := deviceDiscovery(d, b.mqtt.Topics(), b.version)
	b.publishDiscovery("device/"+d.UniqueID, msgs)
	b.HandleAvailability(d)
	if d.State != nil {
		b.HandleStateChange(d)
	}
}

// HandleStateChange publishes the retained state document and records a
// telemetry sample.
func (b *Bridge) HandleStateChange(d *device.Device) {
	payload, err := json.Marshal(buildState(d))
	if err != nil {
		b.logError("marshal state payload", err)
		return
	}
	topic := b.mqtt.Topics().DeviceState(d.UniqueID)
	if err := b.mqtt.PublishRetained(topic, payload); err != nil {
		b.logError("publish state", err)
		return
	}
	b.recordState(d)
}

// HandleAvailability publishes the retained per-device availability
// payload.
func (b *Bridge) HandleAvailability(d *device.Device) {
	payload := mqtt.PayloadOffline
	if d.Online {
		payload = mqtt.PayloadOnline
	}
	topic := b.mqtt.Topics().DeviceAvailability(d.UniqueID)
	if err := b.mqtt.PublishRetained(topic, []byte(payload)); err != nil {
		b.logError("publish availability", err)
	}
}

// HandleDeviceRemoved retracts everything retained for a device:
// discovery configs, state and availability. Home Assistant removes the
// entities when their configs clear.
func (b *Bridge) HandleDeviceRemoved(uniqueID string) {
	t := b.mqtt.Topics()
	b.retract("device/"+uniqueID, t.DeviceState(uniqueID), t.DeviceAvailability(uniqueID))
	b.logInfo("device retracted", "device_id", uniqueID)
}

// SyncGroups replaces the known group set, publishing configs for the
// current groups and retracting removed ones.
func (b *Bridge) SyncGroups(groups []cloud.Group) {
	next := make(map[string]cloud.Group, len(groups))
	for _, g := range groups {
		next[g.ID] = g
	}

	b.meshMu.Lock()
	prev := b.groups
	b.groups = next
	b.meshMu.Unlock()

	for _, g := range groups {
		b.publishDiscovery("group/"+g.ID, groupDiscovery(g, b.mqtt.Topics(), b.version))
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			b.retract("group/" + id)
			b.logInfo("group retracted", "group_id", id)
		}
	}
}

// SyncScenes replaces the known scene set, publishing configs for the
// current scenes and retracting removed ones.
func (b *Bridge) SyncScenes(scenes []cloud.Scene) {
	next := make(map[string]cloud.Scene, len(scenes))
	for _, s := range scenes {
		next[s.ID] = s
	}

	b.meshMu.Lock()
	prev := b.scenes
	b.scenes = next
	b.meshMu.Unlock()

	for _, s := range scenes {
		b.publishDiscovery("scene/"+s.ID, sceneDiscovery(s, b.mqtt.Topics(), b.version))
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			b.retract("scene/" + id)
			b.logInfo("scene retracted", "scene_id", id)
		}
	}
}

// handleCommand dispatches an inbound entity command to the device or
// group it addresses.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	if b.stopping() {
		return nil
	}
	id := b.mqtt.Topics().EntityID(topic)
	if id == "" {
		return nil
	}

	if d, err := b.registry.Get(id); err == nil {
		return b.handleDeviceCommand(d, payload)
	}

	b.meshMu.RLock()
	g, ok := b.groups[id]
	b.meshMu.RUnlock()
	if ok {
		return b.handleGroupCommand(g, payload)
	}

	b.logDebug("command for unknown entity", "entity_id", id)
	return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
}

// handleDeviceCommand parses and executes a single device command, then
// publishes the optimistic result. On failure the current state is
// republished so Home Assistant snaps back.
func (b *Bridge) handleDeviceCommand(d *device.Device, payload []byte) error {
	if !d.Type.IsLight() && !d.Type.IsSocket() {
		b.logDebug("ignoring command for uncontrollable device",
			"device_id", d.UniqueID, "type", string(d.Type))
		return nil
	}

	cmd, err := parseLightCommand(payload)
	if err != nil {
		b.logWarn("bad command payload", "device_id", d.UniqueID, "error", err)
		return err
	}

	b.wg.Add(1)
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.executeDeviceCommand(ctx, d, cmd); err != nil {
		b.countCommand(false)
		b.logError("device command failed", err)
		b.HandleStateChange(d)
		return err
	}
	b.countCommand(true)

	updated, err := b.registry.SetState(d.UniqueID, optimisticState(d, cmd, time.Now()))
	if err != nil {
		b.logError("optimistic state update", err)
		return nil
	}
	b.HandleStateChange(updated)

	b.logDebug("device command executed",
		"device_id", d.UniqueID, "state", cmd.State)
	return nil
}

// executeDeviceCommand maps a parsed command onto cloud calls. Colour
// wins over temperature when both are present; a lightness-carrying
// call turns the lamp on by itself, so the explicit power call is made
// only when no such call ran.
func (b *Bridge) executeDeviceCommand(ctx context.Context, d *device.Device, cmd lightCommand) error {
	id := d.UniqueID

	if cmd.State == "OFF" {
		return b.commander.SetPower(ctx, id, false, nil)
	}

	raisesLamp := false
	if cmd.Color != nil && d.Type.SupportsHSL() {
		lightness := b.commandLightness(d, cmd)
		if err := b.commander.SetHSL(ctx, id, *cmd.Color.H, *cmd.Color.S/100, lightness, nil); err != nil {
			return err
		}
		raisesLamp = true
	} else {
		if cmd.ColorTemp != nil && d.Type.SupportsColorTemp() {
			mesh, err := device.MiredsToMesh(*cmd.ColorTemp)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
			if err := b.commander.SetTemperature(ctx, id, mesh, nil); err != nil {
				return err
			}
		}
		if cmd.Brightness != nil && d.Type.IsLight() {
			fraction, err := device.BrightnessToFraction(*cmd.Brightness)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
			if err := b.commander.SetLightness(ctx, id, fraction, nil); err != nil {
				return err
			}
			raisesLamp = true
		}
	}

	if cmd.State == "ON" && !raisesLamp {
		return b.commander.SetPower(ctx, id, true, nil)
	}
	return nil
}

// commandLightness picks the lightness fraction for an HSL call: the
// commanded brightness when present, else the cached level, else full.
func (b *Bridge) commandLightness(d *device.Device, cmd lightCommand) float64 {
	if cmd.Brightness != nil {
		if f, err := device.BrightnessToFraction(*cmd.Brightness); err == nil {
			return f
		}
	}
	if d.State != nil && d.State.Lightness != nil {
		if f, err := device.MeshToFraction(*d.State.Lightness); err == nil && f > 0 {
			return f
		}
	}
	return 1.0
}

// handleGroupCommand executes a group command. Groups have no polled
// state, so nothing is published back; the group light runs optimistic.
func (b *Bridge) handleGroupCommand(g cloud.Group, payload []byte) error {
	cmd, err := parseLightCommand(payload)
	if err != nil {
		b.logWarn("bad group command payload", "group_id", g.ID, "error", err)
		return err
	}

	b.wg.Add(1)
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	switch {
	case cmd.State == "OFF":
		err = b.commander.SetGroupPower(ctx, g.ID, false, nil)
	case cmd.Brightness != nil:
		var fraction float64
		fraction, err = device.BrightnessToFraction(*cmd.Brightness)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrBadPayload, err)
			break
		}
		err = b.commander.SetGroupLightness(ctx, g.ID, fraction, nil)
	default:
		err = b.commander.SetGroupPower(ctx, g.ID, true, nil)
	}

	if err != nil {
		b.countCommand(false)
		b.logError("group command failed", err)
		return err
	}
	b.countCommand(true)
	b.logDebug("group command executed", "group_id", g.ID, "state", cmd.State)
	return nil
}

// handleSceneRecall triggers a scene, optionally narrowed to one
// target device or group.
func (b *Bridge) handleSceneRecall(topic string, payload []byte) error {
	if b.stopping() {
		return nil
	}
	sceneID := b.mqtt.Topics().SceneID(topic)
	if sceneID == "" {
		return nil
	}

	b.meshMu.RLock()
	_, known := b.scenes[sceneID]
	b.meshMu.RUnlock()
	if !known {
		b.logDebug("recall for unknown scene", "scene_id", sceneID)
		return fmt.Errorf("%w: scene %s", ErrUnknownEntity, sceneID)
	}

	target, err := parseSceneTarget(payload)
	if err != nil {
		b.logWarn("bad scene payload", "scene_id", sceneID, "error", err)
		return err
	}

	b.wg.Add(1)
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.commander.RecallScene(ctx, sceneID, target, nil); err != nil {
		b.countCommand(false)
		b.logError("scene recall failed", err)
		return err
	}
	b.countCommand(true)
	b.logInfo("scene recalled", "scene_id", sceneID, "target", target)
	return nil
}

// publishDiscovery publishes a set of retained discovery configs and
// remembers their topics under key for later retraction.
func (b *Bridge) publishDiscovery(key string, msgs []discoveryMessage) {
	topics := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			b.logError("marshal discovery payload", err)
			continue
		}
		if err := b.mqtt.PublishRetained(msg.Topic, payload); err != nil {
			b.logError("publish discovery", err)
			continue
		}
		topics = append(topics, msg.Topic)
	}

	b.discoveredMu.Lock()
	b.discovered[key] = topics
	b.discoveredMu.Unlock()
}

// retract clears the retained configs tracked under key plus any extra
// retained topics the caller names.
func (b *Bridge) retract(key string, extra ...string) {
	b.discoveredMu.Lock()
	topics := b.discovered[key]
	delete(b.discovered, key)
	b.discoveredMu.Unlock()

	for _, topic := range append(topics, extra...) {
		if err := b.mqtt.PublishRetained(topic, nil); err != nil {
			b.logError("retract retained topic", err)
		}
	}
}

// recordState forwards the device's current state to telemetry.
func (b *Bridge) recordState(d *device.Device) {
	if b.telemetry == nil || d.State == nil {
		return
	}
	st := d.State
	b.telemetry.WriteDeviceState(influxdb.StatePoint{
		DeviceID:    d.UniqueID,
		NetworkID:   d.NetworkID,
		DeviceType:  string(d.Type),
		Power:       st.Power,
		Lightness:   st.Lightness,
		Temperature: st.Temperature,
		Hue:         st.Hue,
		Saturation:  st.Saturation,
		Time:        st.UpdatedAt,
	})
}

func (b *Bridge) countCommand(ok bool) {
	b.statsMu.Lock()
	if ok {
		b.commandsOK++
	} else {
		b.commandsFailed++
	}
	b.statsMu.Unlock()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// Metrics contains bridge counters for the API metrics endpoint.
type Metrics struct {
	Connected      bool
	Groups         int
	Scenes         int
	CommandsOK     uint64
	CommandsFailed uint64
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() Metrics {
	b.meshMu.RLock()
	groups := len(b.groups)
	scenes := len(b.scenes)
	b.meshMu.RUnlock()

	b.statsMu.Lock()
	ok := b.commandsOK
	failed := b.commandsFailed
	b.statsMu.Unlock()

	return Metrics{
		Connected:      b.mqtt.IsConnected(),
		Groups:         groups,
		Scenes:         scenes,
		CommandsOK:     ok,
		CommandsFailed: failed,
	}
}
