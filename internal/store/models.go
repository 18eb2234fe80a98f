package store

// HostConfig is the desired-state record for one monitored host: the local
// side of reconciliation. It mirrors what the NetBox source of truth knows
// about the device plus the Zabbix ids written back after provisioning.
type HostConfig struct {
	ID          int64
	ObjectID    int64 // source-of-truth primary key of the backing device
	Name        string
	Enabled     bool   // sync enabled for this host
	Status      string // "enabled" or "disabled" (monitoring status)
	MonitoredBy string // "", "proxy", or "proxy_group"
	Description string
	HostID      string // Zabbix host id, empty until created remotely

	InventoryMode string // "disabled", "manual", "automatic"
	IPAssignment  string // "primary" or "linked"

	TLSConnect     string // "none" or "psk"
	TLSPSKIdentity string
	TLSPSK         string

	PrimaryIP  string
	PrimaryDNS string

	Proxy      *Proxy
	ProxyGroup *ProxyGroup
	Templates  []Template
	Groups     []HostGroup
	Interfaces []Interface
	Tags       []Tag          // the device's own tags
	Facts      map[string]any // attribute document for dotted-path resolution
}

// Template is a cached Zabbix template reference.
type Template struct {
	ID         int64
	Name       string
	TemplateID string
}

// HostGroup is a cached Zabbix host group reference.
type HostGroup struct {
	ID      int64
	Name    string
	GroupID string
}

// Proxy is a cached Zabbix proxy reference.
type Proxy struct {
	ID      int64
	Name    string
	ProxyID string
}

// ProxyGroup is a cached Zabbix proxy group reference.
type ProxyGroup struct {
	ID           int64
	Name         string
	ProxyGroupID string
}

// Tag is a key/value tag carried by a device.
type Tag struct {
	Key   string
	Value string
}

// Interface is a configured monitoring interface. Kind selects the variant;
// the SNMPv3 fields are meaningful only for kind "snmpv3".
type Interface struct {
	ID           int64
	HostConfigID int64
	Kind         string // "agent" or "snmpv3"
	NetIfID      int64  // local network interface backing this record
	Address      string // explicitly linked IP (used when IPAssignment is "linked")
	DNSName      string
	Port         int
	InterfaceID  int // Zabbix interface id, 0 until linked
	Main         bool
	UseIP        bool

	SecurityName   string
	SecurityLevel  int
	AuthProtocol   int
	AuthPassphrase string
	PrivProtocol   int
	PrivPassphrase string
	ContextName    string
	Bulk           bool
	MaxRepetitions int
}

// Address is a locally known IP/DNS assignment on a device.
type Address struct {
	ID       int64
	ObjectID int64
	Address  string
	DNSName  string
	NetIfID  int64 // 0 when the address is not bound to a network interface
}

// TagMapping is a field-selection tag rule: resolve Path against the device
// facts and emit one tag named Name per resolved value.
type TagMapping struct {
	ID      int64
	Name    string
	Path    string
	Enabled bool
}

// InventoryMapping maps a Zabbix inventory property to candidate fact paths
// tried in priority order.
type InventoryMapping struct {
	ID      int64
	Key     string
	Paths   []string
	Enabled bool
}

// MappingRules bundles the configured tag/inventory derivation rules the
// payload builder consumes.
type MappingRules struct {
	AllowedTags []string // device tags passed through when present
	FieldTags   []TagMapping
	Inventory   []InventoryMapping
}
