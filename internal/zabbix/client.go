package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIError is a JSON-RPC error returned by the Zabbix server.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("zabbix API error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("zabbix API error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is the Zabbix "object does not exist"
// condition. The API folds missing objects and permission failures into a
// single message, so callers treat both as absence.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Data, "does not exist")
}

// Client wraps the Zabbix JSON-RPC API.
type Client struct {
	httpClient *http.Client
	url        string
	token      string
	limiter    *rate.Limiter
	logger     *zap.Logger
	nextID     atomic.Int64
}

// NewClient creates a Zabbix API client for the given endpoint
// (e.g. "https://zabbix.example.com/api_jsonrpc.php"). A rps of 0 disables
// request pacing.
func NewClient(url, token string, timeout time.Duration, rps float64, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimRight(url, "/"),
		token:      token,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// HostGetByName retrieves a host by its technical name, including tags,
// groups, templates, interfaces, and inventory. Returns ok=false when no
// such host exists.
func (c *Client) HostGetByName(ctx context.Context, name string) (*Host, bool, error) {
	params := map[string]any{
		"filter":                map[string]any{"host": []string{name}},
		"selectTags":            "extend",
		"selectGroups":          []string{"groupid", "name"},
		"selectParentTemplates": []string{"templateid", "name"},
		"selectInterfaces":      "extend",
		"selectInventory":       "extend",
	}
	var hosts []Host
	if err := c.call(ctx, "host.get", params, &hosts); err != nil {
		return nil, false, fmt.Errorf("get host %q: %w", name, err)
	}
	if len(hosts) == 0 {
		return nil, false, nil
	}
	return &hosts[0], true, nil
}

// HostGetByID retrieves a host by id with the same sub-selections as
// HostGetByName. Returns ok=false when the host is gone.
func (c *Client) HostGetByID(ctx context.Context, hostID string) (*Host, bool, error) {
	params := map[string]any{
		"hostids":               []string{hostID},
		"selectTags":            "extend",
		"selectGroups":          []string{"groupid", "name"},
		"selectParentTemplates": []string{"templateid", "name"},
		"selectInterfaces":      "extend",
		"selectInventory":       "extend",
	}
	var hosts []Host
	if err := c.call(ctx, "host.get", params, &hosts); err != nil {
		return nil, false, fmt.Errorf("get host %s: %w", hostID, err)
	}
	if len(hosts) == 0 {
		return nil, false, nil
	}
	return &hosts[0], true, nil
}

// HostInterfaces lists the interfaces of a host in raw wire form.
func (c *Client) HostInterfaces(ctx context.Context, hostID string) ([]RawInterface, error) {
	params := map[string]any{
		"hostids": []string{hostID},
		"output":  "extend",
	}
	var ifaces []RawInterface
	if err := c.call(ctx, "hostinterface.get", params, &ifaces); err != nil {
		return nil, fmt.Errorf("get interfaces of host %s: %w", hostID, err)
	}
	return ifaces, nil
}

// HostCreate creates a host and returns the assigned host ids.
func (c *Client) HostCreate(ctx context.Context, params map[string]any) ([]string, error) {
	var res idsResult
	if err := c.call(ctx, "host.create", params, &res); err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	return res.HostIDs, nil
}

// HostUpdate applies an update payload. The payload must carry "hostid".
func (c *Client) HostUpdate(ctx context.Context, params map[string]any) error {
	var res idsResult
	if err := c.call(ctx, "host.update", params, &res); err != nil {
		return fmt.Errorf("update host: %w", err)
	}
	return nil
}

// HostDelete permanently removes a host.
func (c *Client) HostDelete(ctx context.Context, hostID string) error {
	var res idsResult
	if err := c.call(ctx, "host.delete", []string{hostID}, &res); err != nil {
		return fmt.Errorf("delete host %s: %w", hostID, err)
	}
	return nil
}

// HostGroupByName looks up a host group by exact name.
func (c *Client) HostGroupByName(ctx context.Context, name string) (*HostGroup, bool, error) {
	params := map[string]any{
		"filter": map[string]any{"name": []string{name}},
	}
	var groups []HostGroup
	if err := c.call(ctx, "hostgroup.get", params, &groups); err != nil {
		return nil, false, fmt.Errorf("get host group %q: %w", name, err)
	}
	if len(groups) == 0 {
		return nil, false, nil
	}
	return &groups[0], true, nil
}

// HostGroupCreate creates a host group and returns its id.
func (c *Client) HostGroupCreate(ctx context.Context, name string) (string, error) {
	var res groupIDsResult
	if err := c.call(ctx, "hostgroup.create", map[string]any{"name": name}, &res); err != nil {
		return "", fmt.Errorf("create host group %q: %w", name, err)
	}
	if len(res.GroupIDs) == 0 {
		return "", fmt.Errorf("create host group %q: no id returned", name)
	}
	return res.GroupIDs[0], nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// call performs a single JSON-RPC request with bearer-token auth.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	id := c.nextID.Add(1)
	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("zabbix %s returned %d: %s", method, resp.StatusCode, string(body))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	c.logger.Debug("zabbix call",
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	)

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}
