package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nerrad567/connectmesh-bridge/internal/meshexport"
)

// Network is a Connect Mesh network as reported by the cloud.
type Network struct {
	ID           string    `json:"id"`
	NetworkKey   string    `json:"networkKey"`
	Name         string    `json:"name"`
	CreationDate Timestamp `json:"creationDate"`
	UpdateDate   Timestamp `json:"updateDate"`

	// Mesh is the embedded mesh configuration. It is populated on detail
	// fetches and stays nil when the cloud omits it or the payload does
	// not parse.
	Mesh *meshexport.NetworkExport `json:"-"`
}

// Networks lists all networks visible to the configured token.
//
// The cloud assembles network summaries server-side, which can be slow on
// large accounts, so this call runs with an extended timeout.
func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/networks", nil, &raw, networkFetchTimeout); err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	var networks []Network
	if err := json.Unmarshal(ensureList(raw), &networks); err != nil {
		return nil, fmt.Errorf("failed to decode networks: %w", err)
	}
	return networks, nil
}

// Network fetches one network including its embedded mesh configuration.
//
// The cloud double-encodes parts of the detail payload, so embedded JSON
// strings are expanded before decoding. A mesh configuration that does not
// parse is logged and dropped rather than failing the whole fetch.
func (c *Client) Network(ctx context.Context, networkID string) (*Network, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/networks/"+url.PathEscape(networkID), &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch network %s: %w", networkID, err)
	}

	expanded, err := expandNestedJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode network %s: %w", networkID, err)
	}

	var detail struct {
		Network
		MeshDocument json.RawMessage `json:"network"`
	}
	if err := json.Unmarshal(expanded, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode network %s: %w", networkID, err)
	}

	network := detail.Network
	if len(detail.MeshDocument) > 0 {
		var mesh meshexport.NetworkExport
		if err := json.Unmarshal(detail.MeshDocument, &mesh); err != nil {
			c.logger.Warn("ignoring unparseable mesh configuration",
				"network_id", networkID,
				"error", err.Error())
		} else {
			network.Mesh = &mesh
		}
	}
	return &network, nil
}

// ensureList wraps a bare object in a single-element array. List endpoints
// return an object instead of an array when exactly one item exists.
func ensureList(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		wrapped := make([]byte, 0, len(trimmed)+2)
		wrapped = append(wrapped, '[')
		wrapped = append(wrapped, trimmed...)
		wrapped = append(wrapped, ']')
		return wrapped
	}
	return trimmed
}

// expandNestedJSON decodes the double-encoded values in a network detail
// payload, where object and array fields arrive as embedded JSON strings.
// Strings that do not look like JSON containers are left untouched.
func expandNestedJSON(raw json.RawMessage) (json.RawMessage, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return json.Marshal(expandValue(value))
}

func expandValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = expandValue(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = expandValue(item)
		}
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
			return v
		}
		var nested any
		if err := json.Unmarshal([]byte(trimmed), &nested); err != nil {
			return v
		}
		return expandValue(nested)
	default:
		return value
	}
}
