// Package client implements propagate.OutboundClient over HTTP+JSON,
// grounded on UnifiedClient::Hello / Notify's framed-RPC-with-timeout
// idiom (1000ms per call in the original).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/rpc"
)

const requestTimeout = 1 * time.Second

// Client calls the Hello and Notify endpoints exposed by another
// registrycenter-fronted instance's RPC server.
type Client struct {
	httpClient *http.Client
	selfAddr   string
}

// New builds a Client. selfAddr identifies this service manager in the
// Hello probe body, matching UnifiedClient::Hello's "The hello is service
// manager from <addr>" text.
func New(selfAddr string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		selfAddr:   selfAddr,
	}
}

// Hello probes addr and succeeds only if it answers with result "ok"
// (case-insensitively), matching the original's response check.
func (c *Client) Hello(ctx context.Context, addr string) error {
	req := rpc.HelloRequest{From: fmt.Sprintf("The hello is service manager from %s", c.selfAddr)}
	var resp rpc.HelloResponse
	if err := c.postJSON(ctx, addr, "/rpc/hello", req, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Result, "ok") {
		return fmt.Errorf("client: hello to %s: unexpected result %q", addr, resp.Result)
	}
	return nil
}

// Notify delivers a changed-instance record to addr.
func (c *Client) Notify(ctx context.Context, addr string, changed model.ServiceInstance) error {
	req := struct {
		ServiceInfo rpc.ServiceInfo `json:"service_info"`
	}{ServiceInfo: rpc.ToWire(changed)}
	var resp rpc.HelloResponse
	if err := c.postJSON(ctx, addr, "/rpc/notify", req, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Result, "ok") {
		return fmt.Errorf("client: notify to %s: unexpected result %q", addr, resp.Result)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, addr, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client: marshal request: %w", err)
	}
	url := "http://" + addr + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("client: request to %s failed: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("client: %s returned status %d", addr, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response from %s: %w", addr, err)
		}
	}
	return nil
}
