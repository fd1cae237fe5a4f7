package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Gateway is a mesh-to-cloud gateway as reported by the cloud.
type Gateway struct {
	ID        string `json:"id"`
	NetworkID string `json:"networkId"`
	Firmware  string `json:"firmware"`
	Connected bool   `json:"connected"`
}

// Gateways lists every gateway visible to the configured token.
func (c *Client) Gateways(ctx context.Context) ([]Gateway, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/gateways", &raw); err != nil {
		return nil, fmt.Errorf("failed to list gateways: %w", err)
	}
	var gateways []Gateway
	if err := json.Unmarshal(ensureList(raw), &gateways); err != nil {
		return nil, fmt.Errorf("failed to decode gateways: %w", err)
	}
	return gateways, nil
}

// PingGateway checks whether a gateway is reachable from the cloud.
func (c *Client) PingGateway(ctx context.Context, gatewayID string) error {
	if err := c.get(ctx, "/gateway/ping/"+url.PathEscape(gatewayID), nil); err != nil {
		return fmt.Errorf("failed to ping gateway %s: %w", gatewayID, err)
	}
	return nil
}
