package zabbix

// Zabbix API entity shapes used by the sync client.
// The Zabbix JSON-RPC API stringifies every numeric field, so ids, ports,
// and flags are carried as strings and coerced where the engine needs them.

// Host represents a Zabbix host as returned by host.get.
type Host struct {
	HostID        string            `json:"hostid,omitempty"`
	Host          string            `json:"host"`
	Name          string            `json:"name,omitempty"`
	Status        string            `json:"status,omitempty"`
	Description   string            `json:"description,omitempty"`
	MonitoredBy   string            `json:"monitored_by,omitempty"`
	ProxyID       string            `json:"proxyid,omitempty"`
	ProxyGroupID  string            `json:"proxy_groupid,omitempty"`
	InventoryMode string            `json:"inventory_mode,omitempty"`
	Inventory     map[string]string `json:"inventory,omitempty"`
	Tags          []HostTag         `json:"tags,omitempty"`
	Groups        []HostGroup       `json:"groups,omitempty"`
	Templates     []Template        `json:"parentTemplates,omitempty"`
	Interfaces    []RawInterface    `json:"interfaces,omitempty"`
}

// HostTag is a single tag on a Zabbix host.
type HostTag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// HostGroup represents a Zabbix host group.
type HostGroup struct {
	GroupID string `json:"groupid"`
	Name    string `json:"name"`
}

// Template represents a Zabbix template reference.
type Template struct {
	TemplateID string `json:"templateid"`
	Name       string `json:"name,omitempty"`
	Host       string `json:"host,omitempty"`
}

// RawInterface is a host interface exactly as the API returns it: flat
// string-encoded fields plus an optional nested details object for SNMP.
// The reconcile package normalizes it into a typed record.
type RawInterface map[string]any

// idsResult is the envelope host.create / host.delete return.
type idsResult struct {
	HostIDs []string `json:"hostids"`
}

// groupIDsResult is the envelope hostgroup.create returns.
type groupIDsResult struct {
	GroupIDs []string `json:"groupids"`
}
