package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/mqtt"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	topics    mqtt.Topics
	published []mockPublish
	subs      []mockSubscription
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		topics: mqtt.NewTopics(config.MQTTConfig{
			BaseTopic:       "meshbridge",
			DiscoveryPrefix: "homeassistant",
		}),
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) PublishRetained(topic string, payload []byte) error {
	return m.Publish(topic, payload, 1, true)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Topics() mqtt.Topics {
	return m.topics
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSubscription(nil), m.subs...)
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers a message to the handler whose subscription
// filter matches the topic, returning the handler's error.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range m.handlers {
		if matchTopicFilter(filter, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(topic, payload)
}

func matchTopicFilter(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// MockCommander implements Commander and records every call.
type MockCommander struct {
	mu              sync.Mutex
	powerCalls      []powerCall
	lightnessCalls  []lightnessCall
	tempCalls       []temperatureCall
	hslCalls        []hslCall
	groupPower      []powerCall
	groupLightness  []lightnessCall
	recalls         []recallCall
	err             error
}

type powerCall struct {
	ID string
	On bool
}

type lightnessCall struct {
	ID       string
	Fraction float64
}

type temperatureCall struct {
	ID   string
	Mesh int
}

type hslCall struct {
	ID      string
	H, S, L float64
}

type recallCall struct {
	SceneID string
	Target  string
}

func NewMockCommander() *MockCommander {
	return &MockCommander{}
}

func (m *MockCommander) SetPower(ctx context.Context, deviceID string, on bool, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.powerCalls = append(m.powerCalls, powerCall{ID: deviceID, On: on})
	return nil
}

func (m *MockCommander) SetLightness(ctx context.Context, deviceID string, lightness float64, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.lightnessCalls = append(m.lightnessCalls, lightnessCall{ID: deviceID, Fraction: lightness})
	return nil
}

func (m *MockCommander) SetTemperature(ctx context.Context, deviceID string, temperature int, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tempCalls = append(m.tempCalls, temperatureCall{ID: deviceID, Mesh: temperature})
	return nil
}

func (m *MockCommander) SetHSL(ctx context.Context, deviceID string, hue, saturation, lightness float64, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.hslCalls = append(m.hslCalls, hslCall{ID: deviceID, H: hue, S: saturation, L: lightness})
	return nil
}

func (m *MockCommander) SetGroupPower(ctx context.Context, groupID string, on bool, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.groupPower = append(m.groupPower, powerCall{ID: groupID, On: on})
	return nil
}

func (m *MockCommander) SetGroupLightness(ctx context.Context, groupID string, lightness float64, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.groupLightness = append(m.groupLightness, lightnessCall{ID: groupID, Fraction: lightness})
	return nil
}

func (m *MockCommander) RecallScene(ctx context.Context, sceneID, target string, opts *cloud.CommandOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recalls = append(m.recalls, recallCall{SceneID: sceneID, Target: target})
	return nil
}

func (m *MockCommander) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockCommander) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.powerCalls) + len(m.lightnessCalls) + len(m.tempCalls) +
		len(m.hslCalls) + len(m.groupPower) + len(m.groupLightness) + len(m.recalls)
}

func (m *MockCommander) GetPowerCalls() []powerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]powerCall(nil), m.powerCalls...)
}

func (m *MockCommander) GetLightnessCalls() []lightnessCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]lightnessCall(nil), m.lightnessCalls...)
}

func (m *MockCommander) GetTemperatureCalls() []temperatureCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]temperatureCall(nil), m.tempCalls...)
}

func (m *MockCommander) GetHSLCalls() []hslCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]hslCall(nil), m.hslCalls...)
}

func (m *MockCommander) GetGroupPowerCalls() []powerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]powerCall(nil), m.groupPower...)
}

func (m *MockCommander) GetGroupLightnessCalls() []lightnessCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]lightnessCall(nil), m.groupLightness...)
}

func (m *MockCommander) GetRecalls() []recallCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recallCall(nil), m.recalls...)
}

// mockTelemetry records state points.
type mockTelemetry struct {
	mu     sync.Mutex
	points []influxdb.StatePoint
}

func (m *mockTelemetry) WriteDeviceState(p influxdb.StatePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *mockTelemetry) GetPoints() []influxdb.StatePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]influxdb.StatePoint(nil), m.points...)
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func testDevice(id string, typ device.Type) *device.Device {
	return &device.Device{
		ID:                "db-" + id,
		UniqueID:          id,
		NetworkID:         "net-1",
		Name:              "Test " + id,
		Type:              typ,
		BootloaderVersion: "2.4.0",
	}
}

func newTestBridge(t *testing.T) (*Bridge, *MockMQTTClient, *MockCommander, *device.Registry) {
	t.Helper()
	m := NewMockMQTTClient()
	c := NewMockCommander()
	reg := device.NewRegistry()

	b, err := New(Options{
		MQTT:      m,
		Commander: c,
		Registry:  reg,
		QoS:       1,
		Version:   "1.0.0",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return b, m, c, reg
}

// findPublished returns the most recent publish on a topic.
func findPublished(pubs []mockPublish, topic string) (mockPublish, bool) {
	for i := len(pubs) - 1; i >= 0; i-- {
		if pubs[i].Topic == topic {
			return pubs[i], true
		}
	}
	return mockPublish{}, false
}

func decodePayload(t *testing.T, p mockPublish) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(p.Payload, &m); err != nil {
		t.Fatalf("unmarshal payload on %s: %v", p.Topic, err)
	}
	return m
}

func TestNew(t *testing.T) {
	b, _, _, _ := newTestBridge(t)
	if b == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewMissingMQTT(t *testing.T) {
	_, err := New(Options{Commander: NewMockCommander(), Registry: device.NewRegistry()})
	if err == nil {
		t.Error("New() expected error for nil MQTT client")
	}
}

func TestNewMissingCommander(t *testing.T) {
	_, err := New(Options{MQTT: NewMockMQTTClient(), Registry: device.NewRegistry()})
	if err == nil {
		t.Error("New() expected error for nil commander")
	}
}

func TestNewMissingRegistry(t *testing.T) {
	_, err := New(Options{MQTT: NewMockMQTTClient(), Commander: NewMockCommander()})
	if err == nil {
		t.Error("New() expected error for nil registry")
	}
}

func TestStartSubscribesAndAnnounces(t *testing.T) {
	b, m, _, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDMultiwhiteSpot))

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	subs := m.GetSubscriptions()
	topics := make(map[string]bool, len(subs))
	for _, s := range subs {
		topics[s.Topic] = true
	}
	if !topics["meshbridge/+/set"] {
		t.Error("expected subscription to device commands")
	}
	if !topics["meshbridge/scene/+/recall"] {
		t.Error("expected subscription to scene recalls")
	}

	pubs := m.GetPublished()
	cfg, ok := findPublished(pubs, "homeassistant/light/dev-1/light/config")
	if !ok {
		t.Fatal("expected light discovery config to be published")
	}
	if !cfg.Retained {
		t.Error("discovery config should be retained")
	}
	if _, ok := findPublished(pubs, "homeassistant/sensor/dev-1/last_update/config"); !ok {
		t.Error("expected last-update sensor config")
	}
	if _, ok := findPublished(pubs, "homeassistant/binary_sensor/dev-1/connectivity/config"); !ok {
		t.Error("expected connectivity config")
	}

	avail, ok := findPublished(pubs, "meshbridge/dev-1/availability")
	if !ok {
		t.Fatal("expected availability to be published")
	}
	if string(avail.Payload) != "offline" {
		t.Errorf("availability = %q, want offline before first poll", avail.Payload)
	}
}

func TestHandleStateChangePublishesRetained(t *testing.T) {
	b, m, _, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDMultiwhiteSpot))
	updated, err := reg.SetState("dev-1", device.State{
		Power:       true,
		Lightness:   intPtr(32768),
		Temperature: intPtr(32768),
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("SetState() error: %v", err)
	}

	b.HandleStateChange(updated)

	pub, ok := findPublished(m.GetPublished(), "meshbridge/dev-1/state")
	if !ok {
		t.Fatal("expected state to be published")
	}
	if !pub.Retained {
		t.Error("state should be retained")
	}

	st := decodePayload(t, pub)
	if st["state"] != "ON" {
		t.Errorf("state = %v, want ON", st["state"])
	}
	if st["brightness"] != float64(128) {
		t.Errorf("brightness = %v, want 128", st["brightness"])
	}
	if st["color_mode"] != "color_temp" {
		t.Errorf("color_mode = %v, want color_temp", st["color_mode"])
	}
	if st["color_temp"] != float64(327) {
		t.Errorf("color_temp = %v, want 327", st["color_temp"])
	}
	if st["updated_at"] != "2026-03-01T12:00:00Z" {
		t.Errorf("updated_at = %v", st["updated_at"])
	}
}

func TestHandleAvailabilityTransitions(t *testing.T) {
	b, m, _, reg := newTestBridge(t)
	d := testDevice("dev-1", device.TypeSocket)
	reg.Upsert(d)

	d.Online = true
	b.HandleAvailability(d)
	pub, ok := findPublished(m.GetPublished(), "meshbridge/dev-1/availability")
	if !ok || string(pub.Payload) != "online" {
		t.Errorf("availability = %q, want online", pub.Payload)
	}

	d.Online = false
	b.HandleAvailability(d)
	pub, _ = findPublished(m.GetPublished(), "meshbridge/dev-1/availability")
	if string(pub.Payload) != "offline" {
		t.Errorf("availability = %q, want offline", pub.Payload)
	}
}

func TestCommandPowerOff(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDMultiwhiteSpot))
	if _, err := reg.SetState("dev-1", device.State{Power: true, Lightness: intPtr(65535), UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	m.ClearPublished()

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte(`{"state":"OFF"}`)); err != nil {
		t.Fatalf("command error: %v", err)
	}

	calls := c.GetPowerCalls()
	if len(calls) != 1 || calls[0].ID != "dev-1" || calls[0].On {
		t.Fatalf("power calls = %+v, want one off call", calls)
	}

	pub, ok := findPublished(m.GetPublished(), "meshbridge/dev-1/state")
	if !ok {
		t.Fatal("expected optimistic state publish")
	}
	st := decodePayload(t, pub)
	if st["state"] != "OFF" {
		t.Errorf("state = %v, want OFF", st["state"])
	}

	d, err := reg.Get("dev-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if d.State.Power {
		t.Error("registry state should be powered off")
	}
	if d.State.LastLightness == nil || *d.State.LastLightness != 65535 {
		t.Error("expected last lightness to be remembered on power off")
	}
}

func TestCommandBrightness(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDWhite))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte(`{"state":"ON","brightness":128}`)); err != nil {
		t.Fatalf("command error: %v", err)
	}

	calls := c.GetLightnessCalls()
	if len(calls) != 1 {
		t.Fatalf("lightness calls = %d, want 1", len(calls))
	}
	if math.Abs(calls[0].Fraction-128.0/255.0) > 1e-9 {
		t.Errorf("fraction = %v, want %v", calls[0].Fraction, 128.0/255.0)
	}
	if n := len(c.GetPowerCalls()); n != 0 {
		t.Errorf("power calls = %d, lightness already raises the lamp", n)
	}

	d, _ := reg.Get("dev-1")
	if d.State == nil || !d.State.Power {
		t.Fatal("optimistic state should be powered on")
	}
	if d.State.Lightness == nil || *d.State.Lightness != 32896 {
		t.Errorf("lightness = %v, want 32896", d.State.Lightness)
	}
}

func TestCommandColorTemp(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDMultiwhiteSpot))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte(`{"state":"ON","color_temp":327}`)); err != nil {
		t.Fatalf("command error: %v", err)
	}

	temps := c.GetTemperatureCalls()
	if len(temps) != 1 || temps[0].Mesh != 32862 {
		t.Fatalf("temperature calls = %+v, want one call with mesh 32862", temps)
	}

	// A temperature write alone does not raise the lamp, so the
	// explicit ON still becomes a power call.
	powers := c.GetPowerCalls()
	if len(powers) != 1 || !powers[0].On {
		t.Fatalf("power calls = %+v, want one on call", powers)
	}

	d, _ := reg.Get("dev-1")
	if d.State.Temperature == nil || *d.State.Temperature != 32862 {
		t.Errorf("temperature = %v, want 32862", d.State.Temperature)
	}
}

func TestCommandHSL(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDRGB))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	payload := []byte(`{"state":"ON","brightness":204,"color":{"h":210,"s":50}}`)
	if err := m.SimulateMessage("meshbridge/dev-1/set", payload); err != nil {
		t.Fatalf("command error: %v", err)
	}

	calls := c.GetHSLCalls()
	if len(calls) != 1 {
		t.Fatalf("hsl calls = %d, want 1", len(calls))
	}
	if calls[0].H != 210 {
		t.Errorf("hue = %v, want 210", calls[0].H)
	}
	if math.Abs(calls[0].S-0.5) > 1e-9 {
		t.Errorf("saturation = %v, want 0.5", calls[0].S)
	}
	if math.Abs(calls[0].L-0.8) > 1e-9 {
		t.Errorf("lightness = %v, want 0.8", calls[0].L)
	}
	if c.CallCount() != 1 {
		t.Errorf("call count = %d, colour command should be a single call", c.CallCount())
	}

	d, _ := reg.Get("dev-1")
	if d.State.Hue == nil || *d.State.Hue != 210 {
		t.Errorf("hue = %v, want 210", d.State.Hue)
	}
	if d.State.Saturation == nil || math.Abs(*d.State.Saturation-0.5) > 1e-9 {
		t.Errorf("saturation = %v, want 0.5", d.State.Saturation)
	}
}

func TestCommandBareString(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeSocket))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte("ON")); err != nil {
		t.Fatalf("command error: %v", err)
	}

	calls := c.GetPowerCalls()
	if len(calls) != 1 || !calls[0].On {
		t.Fatalf("power calls = %+v, want one on call", calls)
	}
}

func TestCommandBadPayload(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeSocket))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	err := m.SimulateMessage("meshbridge/dev-1/set", []byte("definitely-not-a-command"))
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("error = %v, want ErrBadPayload", err)
	}
	if c.CallCount() != 0 {
		t.Error("bad payload should not reach the cloud")
	}
}

func TestCommandUnknownEntity(t *testing.T) {
	b, m, c, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	err := m.SimulateMessage("meshbridge/ghost/set", []byte("ON"))
	if !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("error = %v, want ErrUnknownEntity", err)
	}
	if c.CallCount() != 0 {
		t.Error("unknown entity should not reach the cloud")
	}
}

func TestCommandFailureRepublishesCurrentState(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDWhite))
	if _, err := reg.SetState("dev-1", device.State{Power: true, Lightness: intPtr(65535), UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	m.ClearPublished()

	c.SetError(errors.New("cloud unreachable"))
	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte(`{"state":"OFF"}`)); err == nil {
		t.Fatal("expected command error")
	}

	// The retained state snaps back to what the registry still holds.
	pub, ok := findPublished(m.GetPublished(), "meshbridge/dev-1/state")
	if !ok {
		t.Fatal("expected state republish after failure")
	}
	st := decodePayload(t, pub)
	if st["state"] != "ON" {
		t.Errorf("state = %v, want ON after failed off command", st["state"])
	}

	d, _ := reg.Get("dev-1")
	if !d.State.Power {
		t.Error("registry state should be unchanged after failure")
	}

	metrics := b.GetMetrics()
	if metrics.CommandsFailed != 1 {
		t.Errorf("CommandsFailed = %d, want 1", metrics.CommandsFailed)
	}
}

func TestCommandIgnoredForSensor(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeMotionSensor))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte("ON")); err != nil {
		t.Errorf("sensor command should be dropped silently, got %v", err)
	}
	if c.CallCount() != 0 {
		t.Error("sensors accept no commands")
	}
}

func TestGroupCommands(t *testing.T) {
	b, m, c, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	b.SyncGroups([]cloud.Group{{ID: "grp-1", NetworkID: "net-1", Name: "Kitchen"}})

	cfg, ok := findPublished(m.GetPublished(), "homeassistant/light/grp-1/light/config")
	if !ok {
		t.Fatal("expected group discovery config")
	}
	gc := decodePayload(t, cfg)
	if gc["optimistic"] != true {
		t.Error("group light should be optimistic")
	}
	if _, has := gc["state_topic"]; has {
		t.Error("group light should have no state topic")
	}

	if err := m.SimulateMessage("meshbridge/grp-1/set", []byte(`{"state":"ON","brightness":51}`)); err != nil {
		t.Fatalf("group command error: %v", err)
	}
	gl := c.GetGroupLightnessCalls()
	if len(gl) != 1 || math.Abs(gl[0].Fraction-0.2) > 1e-9 {
		t.Fatalf("group lightness calls = %+v, want one call at 0.2", gl)
	}

	if err := m.SimulateMessage("meshbridge/grp-1/set", []byte(`{"state":"OFF"}`)); err != nil {
		t.Fatalf("group command error: %v", err)
	}
	if err := m.SimulateMessage("meshbridge/grp-1/set", []byte(`{"state":"ON"}`)); err != nil {
		t.Fatalf("group command error: %v", err)
	}
	gp := c.GetGroupPowerCalls()
	if len(gp) != 2 || gp[0].On || !gp[1].On {
		t.Fatalf("group power calls = %+v, want off then on", gp)
	}
}

func TestSceneRecall(t *testing.T) {
	b, m, c, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	b.SyncScenes([]cloud.Scene{{ID: "scn-1", NetworkID: "net-1", Name: "Movie night", Number: 3}})

	if _, ok := findPublished(m.GetPublished(), "homeassistant/scene/scn-1/scene/config"); !ok {
		t.Fatal("expected scene discovery config")
	}

	if err := m.SimulateMessage("meshbridge/scene/scn-1/recall", []byte("recall")); err != nil {
		t.Fatalf("recall error: %v", err)
	}
	if err := m.SimulateMessage("meshbridge/scene/scn-1/recall", []byte(`{"target":"dev-9"}`)); err != nil {
		t.Fatalf("recall error: %v", err)
	}

	recalls := c.GetRecalls()
	if len(recalls) != 2 {
		t.Fatalf("recalls = %d, want 2", len(recalls))
	}
	if recalls[0].SceneID != "scn-1" || recalls[0].Target != "" {
		t.Errorf("first recall = %+v, want scn-1 with no target", recalls[0])
	}
	if recalls[1].Target != "dev-9" {
		t.Errorf("second recall target = %q, want dev-9", recalls[1].Target)
	}

	err := m.SimulateMessage("meshbridge/scene/ghost/recall", []byte("recall"))
	if !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("error = %v, want ErrUnknownEntity for unknown scene", err)
	}
}

func TestDeviceRemovedRetractsRetained(t *testing.T) {
	b, m, _, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeLEDMultiwhiteSpot))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	m.ClearPublished()

	b.HandleDeviceRemoved("dev-1")

	pubs := m.GetPublished()
	wantCleared := []string{
		"homeassistant/light/dev-1/light/config",
		"homeassistant/sensor/dev-1/last_update/config",
		"homeassistant/binary_sensor/dev-1/connectivity/config",
		"meshbridge/dev-1/state",
		"meshbridge/dev-1/availability",
	}
	for _, topic := range wantCleared {
		pub, ok := findPublished(pubs, topic)
		if !ok {
			t.Errorf("expected retraction on %s", topic)
			continue
		}
		if len(pub.Payload) != 0 {
			t.Errorf("retraction on %s should be empty, got %q", topic, pub.Payload)
		}
		if !pub.Retained {
			t.Errorf("retraction on %s should be retained", topic)
		}
	}
}

func TestSyncGroupsRetractsRemoved(t *testing.T) {
	b, m, _, _ := newTestBridge(t)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	b.SyncGroups([]cloud.Group{
		{ID: "grp-1", Name: "Kitchen"},
		{ID: "grp-2", Name: "Hallway"},
	})
	m.ClearPublished()

	b.SyncGroups([]cloud.Group{{ID: "grp-1", Name: "Kitchen"}})

	pub, ok := findPublished(m.GetPublished(), "homeassistant/light/grp-2/light/config")
	if !ok {
		t.Fatal("expected retraction for removed group")
	}
	if len(pub.Payload) != 0 {
		t.Errorf("retraction payload = %q, want empty", pub.Payload)
	}
}

func TestStopRefusesCommands(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeSocket))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	b.Stop()
	// Calling Stop again should be safe (sync.Once)
	b.Stop()

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte("ON")); err != nil {
		t.Errorf("command after stop = %v, want nil", err)
	}
	if c.CallCount() != 0 {
		t.Error("commands after stop should be refused")
	}
}

func TestTelemetryRecordsStateChanges(t *testing.T) {
	m := NewMockMQTTClient()
	c := NewMockCommander()
	reg := device.NewRegistry()
	tel := &mockTelemetry{}

	b, err := New(Options{
		MQTT:      m,
		Commander: c,
		Registry:  reg,
		Telemetry: tel,
		QoS:       1,
		Version:   "1.0.0",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	d := testDevice("dev-1", device.TypeLEDMultiwhiteSpot)
	d.State = &device.State{
		Power:       true,
		Lightness:   intPtr(32768),
		Temperature: intPtr(16384),
		UpdatedAt:   time.Now(),
	}
	b.HandleStateChange(d)

	points := tel.GetPoints()
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	p := points[0]
	if p.DeviceID != "dev-1" || p.NetworkID != "net-1" {
		t.Errorf("point identity = %s/%s", p.DeviceID, p.NetworkID)
	}
	if !p.Power {
		t.Error("point power should be true")
	}
	if p.Lightness == nil || *p.Lightness != 32768 {
		t.Errorf("point lightness = %v, want 32768", p.Lightness)
	}
}

func TestGetMetrics(t *testing.T) {
	b, m, c, reg := newTestBridge(t)
	reg.Upsert(testDevice("dev-1", device.TypeSocket))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	b.SyncGroups([]cloud.Group{{ID: "grp-1", Name: "Kitchen"}})
	b.SyncScenes([]cloud.Scene{{ID: "scn-1", Name: "Movie"}})

	if err := m.SimulateMessage("meshbridge/dev-1/set", []byte("ON")); err != nil {
		t.Fatalf("command error: %v", err)
	}
	c.SetError(errors.New("cloud unreachable"))
	_ = m.SimulateMessage("meshbridge/dev-1/set", []byte("OFF"))

	metrics := b.GetMetrics()
	if !metrics.Connected {
		t.Error("Connected should be true")
	}
	if metrics.Groups != 1 || metrics.Scenes != 1 {
		t.Errorf("Groups/Scenes = %d/%d, want 1/1", metrics.Groups, metrics.Scenes)
	}
	if metrics.CommandsOK != 1 {
		t.Errorf("CommandsOK = %d, want 1", metrics.CommandsOK)
	}
	if metrics.CommandsFailed != 1 {
		t.Errorf("CommandsFailed = %d, want 1", metrics.CommandsFailed)
	}
}
