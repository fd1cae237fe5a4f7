package meshexport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NetworkExport is the typed form of a schema-valid export document.
// Decode is the only constructor that guarantees the invariants the
// schema declares; a hand-assembled value carries no such guarantee.
type NetworkExport struct {
	ID           string        `json:"id"`
	Partial      bool          `json:"partial"`
	Schema       string        `json:"$schema"`
	Version      string        `json:"version"`
	MeshName     string        `json:"meshName"`
	Timestamp    time.Time     `json:"timestamp"`
	MeshUUID     string        `json:"meshUUID"`
	NetKeys      []NetKey      `json:"netKeys"`
	AppKeys      []AppKey      `json:"appKeys"`
	Provisioners []Provisioner `json:"provisioners"`
	Groups       []Group       `json:"groups"`
	Scenes       []Scene       `json:"scenes"`
	Nodes        []Node        `json:"nodes"`
}

// NetKey is a network-layer encryption key.
type NetKey struct {
	Name        string    `json:"name"`
	Index       int       `json:"index"`
	Key         string    `json:"key"`
	MinSecurity string    `json:"minSecurity"`
	Phase       int       `json:"phase"`
	Timestamp   time.Time `json:"timestamp"`
}

// AppKey is an application-layer key bound to a NetKey by index.
type AppKey struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	BoundNetKey int    `json:"boundNetKey"`
	Key         string `json:"key"`
}

// Provisioner records the address and scene ranges allocated to one
// provisioning entity.
type Provisioner struct {
	ProvisionerName       string         `json:"provisionerName"`
	UUID                  string         `json:"UUID"`
	AllocatedUnicastRange []AddressRange `json:"allocatedUnicastRange"`
	AllocatedGroupRange   []AddressRange `json:"allocatedGroupRange"`
	AllocatedSceneRange   []SceneRange   `json:"allocatedSceneRange"`
}

// AddressRange is an inclusive low/high pair of 4-hex addresses.
type AddressRange struct {
	LowAddress  string `json:"lowAddress"`
	HighAddress string `json:"highAddress"`
}

// SceneRange is an inclusive first/last pair of scene numbers. Unlike
// every other address field these are lowercase hex.
type SceneRange struct {
	FirstScene string `json:"firstScene"`
	LastScene  string `json:"lastScene"`
}

// Group is a named group address, forming a tree via ParentAddress.
// Root groups carry the sentinel parent "0000".
type Group struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	ParentAddress string `json:"parentAddress"`
}

// Scene is a recallable preset applied to a set of addresses.
type Scene struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses"`
	Number    string   `json:"number"`
}

// Node is one provisioned mesh device. TosNode and TosDevices are vendor
// extension payloads carried through byte for byte, never interpreted.
type Node struct {
	ConfigComplete bool            `json:"configComplete"`
	Excluded       bool            `json:"excluded"`
	UUID           string          `json:"UUID"`
	UnicastAddress string          `json:"unicastAddress"`
	Security       string          `json:"security"`
	DeviceKey      string          `json:"deviceKey"`
	Elements       []Element       `json:"elements"`
	TosNode        json.RawMessage `json:"tos_node,omitempty"`
	TosDevices     json.RawMessage `json:"tos_devices,omitempty"`
}

// Element is an addressable sub-unit of a node. Its unicast address is
// the node's address plus the element index.
type Element struct {
	Location string  `json:"location"`
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Models   []Model `json:"models"`
}

// Model is a functional unit on an element with its subscriptions, bound
// AppKey indices, and optional publication target.
type Model struct {
	ModelID   string   `json:"modelId"`
	Subscribe []string `json:"subscribe"`
	Bind      []int    `json:"bind"`
	Publish   *Publish `json:"publish,omitempty"`
}

// Publish is a model's single publication target.
type Publish struct {
	Address     string            `json:"address"`
	Index       int               `json:"index"`
	TTL         int               `json:"ttl"`
	Period      PublishPeriod     `json:"period"`
	Retransmit  PublishRetransmit `json:"retransmit"`
	Credentials int               `json:"credentials"`
}

// PublishPeriod controls periodic publication cadence.
type PublishPeriod struct {
	NumberOfSteps int `json:"numberOfSteps"`
	Resolution    int `json:"resolution"`
}

// PublishRetransmit controls publication retransmission.
type PublishRetransmit struct {
	Count    int `json:"count"`
	Interval int `json:"interval"`
}

// Decode validates data and, only when it conforms, unmarshals it into a
// NetworkExport. The three outcomes are disjoint:
//
//   - malformed JSON: nil export, nil result, error wrapping ErrParse
//   - schema violations: nil export, populated result, nil error
//   - valid: populated export, valid (empty) result, nil error
func Decode(data []byte) (*NetworkExport, *Result, error) {
	validator := NewValidator()
	result, err := validator.ValidateJSON(data)
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid() {
		return nil, result, nil
	}

	var export NetworkExport
	if err := json.Unmarshal(data, &export); err != nil {
		// Validation passed, so the document shape is known good; only a
		// non-RFC3339 timestamp layout could still trip time.Time.
		return nil, nil, fmt.Errorf("decoding export: %w", err)
	}
	return &export, result, nil
}

// ElementAddress derives an element's unicast address from its node's
// address and the element index, in the export's 4-hex form.
func ElementAddress(nodeAddress string, index int) (string, error) {
	base, err := strconv.ParseUint(nodeAddress, 16, 16)
	if err != nil {
		return "", fmt.Errorf("parsing unicast address %q: %w", nodeAddress, err)
	}
	addr := base + uint64(index)
	if addr > 0xFFFF {
		return "", fmt.Errorf("element address %04X+%d overflows the address space", base, index)
	}
	return fmt.Sprintf("%04X", addr), nil
}

// FindNetKey returns the NetKey with the given index, or nil.
func (e *NetworkExport) FindNetKey(index int) *NetKey {
	for i := range e.NetKeys {
		if e.NetKeys[i].Index == index {
			return &e.NetKeys[i]
		}
	}
	return nil
}

// FindAppKey returns the AppKey with the given index, or nil.
func (e *NetworkExport) FindAppKey(index int) *AppKey {
	for i := range e.AppKeys {
		if e.AppKeys[i].Index == index {
			return &e.AppKeys[i]
		}
	}
	return nil
}

// FindGroup returns the group with the given address, or nil.
func (e *NetworkExport) FindGroup(address string) *Group {
	for i := range e.Groups {
		if e.Groups[i].Address == address {
			return &e.Groups[i]
		}
	}
	return nil
}

// FindScene returns the scene with the given number, or nil.
func (e *NetworkExport) FindScene(number string) *Scene {
	for i := range e.Scenes {
		if e.Scenes[i].Number == number {
			return &e.Scenes[i]
		}
	}
	return nil
}

// FindNode returns the node with the given device UUID, or nil.
func (e *NetworkExport) FindNode(uuid string) *Node {
	for i := range e.Nodes {
		if e.Nodes[i].UUID == uuid {
			return &e.Nodes[i]
		}
	}
	return nil
}
