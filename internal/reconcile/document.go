// Package reconcile implements the host reconciliation engine: it builds the
// desired-state document for a managed host, normalizes the actual state
// fetched from Zabbix, diffs the two, and drives idempotent create, update,
// and delete operations with compensating rollback on partial failure.
package reconcile

import (
	"strconv"

	"github.com/pergus/netbox-zabbix/internal/zabbix"
)

// HostStatus is the monitoring status of a host.
type HostStatus int

const (
	StatusEnabled  HostStatus = 0 // monitored
	StatusDisabled HostStatus = 1 // not monitored
)

// MonitoredBy selects what monitors the host.
type MonitoredBy int

const (
	MonitoredByServer     MonitoredBy = 0
	MonitoredByProxy      MonitoredBy = 1
	MonitoredByProxyGroup MonitoredBy = 2
)

// InventoryMode controls host inventory population.
type InventoryMode int

const (
	InventoryDisabled  InventoryMode = -1
	InventoryManual    InventoryMode = 0
	InventoryAutomatic InventoryMode = 1
)

// TLSMode is a Zabbix host TLS connect/accept setting.
type TLSMode int

const (
	TLSNone TLSMode = 1
	TLSPSK  TLSMode = 2
)

// InterfaceType discriminates the interface variants.
type InterfaceType int

const (
	InterfaceAgent InterfaceType = 1
	InterfaceSNMP  InterfaceType = 2
)

func (t InterfaceType) String() string {
	switch t {
	case InterfaceAgent:
		return "Agent"
	case InterfaceSNMP:
		return "SNMP"
	}
	return "type " + strconv.Itoa(int(t))
}

// SNMP security levels.
const (
	SecurityNoAuthNoPriv = 0
	SecurityAuthNoPriv   = 1
	SecurityAuthPriv     = 2
)

// Tag is a key/value pair on a host. Keys need not be unique across pairs.
type Tag struct {
	Key   string
	Value string
}

// GroupRef names a Zabbix host group by id.
type GroupRef struct {
	GroupID string
	Name    string
}

// TemplateRef names a Zabbix template by id.
type TemplateRef struct {
	TemplateID string
	Name       string
}

// SNMPDetails carries the SNMP portion of an interface. Only version 3 is
// provisioned; versions 1 and 2 are parsed for round-tripping and carry just
// Version, Bulk, and Community.
type SNMPDetails struct {
	Version        int
	Bulk           int
	MaxRepetitions int
	Community      string
	SecurityName   string
	SecurityLevel  int
	AuthProtocol   int
	AuthPassphrase string
	PrivProtocol   int
	PrivPassphrase string
	ContextName    string
}

// InterfaceRecord is a strictly typed host interface. SNMP is nil for the
// Agent variant.
type InterfaceRecord struct {
	Type        InterfaceType
	InterfaceID int // remote id, 0 before creation
	Main        bool
	UseIP       bool
	IP          string
	DNS         string
	Port        int
	SNMP        *SNMPDetails
}

// Address returns the endpoint the interface actually connects through.
func (r *InterfaceRecord) Address() string {
	if r.UseIP {
		return r.IP
	}
	return r.DNS
}

// HostDocument is the canonical representation of a monitored host, built
// either locally (desired state) or from a Zabbix response (actual state).
// It is a transient value object, never persisted.
type HostDocument struct {
	HostID        string // remote id, empty before creation
	Name          string
	Status        HostStatus
	MonitoredBy   MonitoredBy
	ProxyID       string
	ProxyGroupID  string
	Description   string
	Tags          []Tag
	Groups        []GroupRef
	Templates     []TemplateRef
	InventoryMode InventoryMode
	Inventory     map[string]string // populated only in Manual mode
	Interfaces    []InterfaceRecord

	TLSConnect     TLSMode
	TLSAccept      TLSMode
	TLSPSKIdentity string
	TLSPSK         string
}

// Comparable renders the document as the nested key/value tree the comparator
// works on. Tags, groups, and templates follow the singleton-map convention
// (one {key: value} map per element); every scalar is string-encoded the way
// the wire protocol encodes it, so local and remote trees compare cleanly.
func (d *HostDocument) Comparable() map[string]any {
	m := map[string]any{
		"host":           d.Name,
		"status":         strconv.Itoa(int(d.Status)),
		"monitored_by":   strconv.Itoa(int(d.MonitoredBy)),
		"description":    d.Description,
		"inventory_mode": strconv.Itoa(int(d.InventoryMode)),
	}

	if d.MonitoredBy == MonitoredByProxy {
		m["proxyid"] = d.ProxyID
	}
	if d.MonitoredBy == MonitoredByProxyGroup {
		m["proxy_groupid"] = d.ProxyGroupID
	}

	tags := make([]any, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, map[string]any{t.Key: t.Value})
	}
	m["tags"] = tags

	groups := make([]any, 0, len(d.Groups))
	for _, g := range d.Groups {
		groups = append(groups, map[string]any{g.Name: g.GroupID})
	}
	m["groups"] = groups

	templates := make([]any, 0, len(d.Templates))
	for _, t := range d.Templates {
		templates = append(templates, map[string]any{t.Name: t.TemplateID})
	}
	m["templates"] = templates

	if d.InventoryMode == InventoryManual {
		inv := make(map[string]any, len(d.Inventory))
		for k, v := range d.Inventory {
			inv[k] = v
		}
		m["inventory"] = inv
	}

	ifaces := make([]any, 0, len(d.Interfaces))
	for i := range d.Interfaces {
		ifaces = append(ifaces, d.Interfaces[i].Wire())
	}
	m["interfaces"] = ifaces

	if d.TLSConnect == TLSPSK {
		m["tls_connect"] = strconv.Itoa(int(TLSPSK))
		m["tls_accept"] = strconv.Itoa(int(d.TLSAccept))
	}

	return m
}

// Wire renders the interface in the string-encoded form the API exchanges.
// The details object is present only for SNMP interfaces.
func (r *InterfaceRecord) Wire() map[string]any {
	m := map[string]any{
		"type":  strconv.Itoa(int(r.Type)),
		"main":  boolWire(r.Main),
		"useip": boolWire(r.UseIP),
		"ip":    r.IP,
		"dns":   r.DNS,
		"port":  strconv.Itoa(r.Port),
	}
	if r.InterfaceID > 0 {
		m["interfaceid"] = strconv.Itoa(r.InterfaceID)
	}
	if r.SNMP != nil {
		m["details"] = r.SNMP.wire()
	}
	return m
}

func (s *SNMPDetails) wire() map[string]any {
	d := map[string]any{
		"version": strconv.Itoa(s.Version),
		"bulk":    strconv.Itoa(s.Bulk),
	}
	if s.Version != 3 {
		d["community"] = s.Community
		return d
	}
	d["max_repetitions"] = strconv.Itoa(s.MaxRepetitions)
	d["securityname"] = s.SecurityName
	d["securitylevel"] = strconv.Itoa(s.SecurityLevel)
	d["authprotocol"] = strconv.Itoa(s.AuthProtocol)
	d["authpassphrase"] = s.AuthPassphrase
	d["privprotocol"] = strconv.Itoa(s.PrivProtocol)
	d["privpassphrase"] = s.PrivPassphrase
	d["contextname"] = s.ContextName
	return d
}

// CreateParams renders the document as a host.create payload.
func (d *HostDocument) CreateParams() map[string]any {
	p := map[string]any{
		"host":           d.Name,
		"status":         strconv.Itoa(int(d.Status)),
		"description":    d.Description,
		"monitored_by":   strconv.Itoa(int(d.MonitoredBy)),
		"inventory_mode": strconv.Itoa(int(d.InventoryMode)),
	}

	if d.MonitoredBy == MonitoredByProxy {
		p["proxyid"] = d.ProxyID
	}
	if d.MonitoredBy == MonitoredByProxyGroup {
		p["proxy_groupid"] = d.ProxyGroupID
	}

	tags := make([]map[string]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, map[string]string{"tag": t.Key, "value": t.Value})
	}
	p["tags"] = tags

	groups := make([]map[string]string, 0, len(d.Groups))
	for _, g := range d.Groups {
		groups = append(groups, map[string]string{"groupid": g.GroupID})
	}
	p["groups"] = groups

	templates := make([]map[string]string, 0, len(d.Templates))
	for _, t := range d.Templates {
		templates = append(templates, map[string]string{"templateid": t.TemplateID})
	}
	p["templates"] = templates

	if d.InventoryMode == InventoryManual && len(d.Inventory) > 0 {
		p["inventory"] = d.Inventory
	}

	ifaces := make([]map[string]any, 0, len(d.Interfaces))
	for i := range d.Interfaces {
		ifaces = append(ifaces, d.Interfaces[i].Wire())
	}
	p["interfaces"] = ifaces

	if d.TLSConnect == TLSPSK {
		p["tls_connect"] = strconv.Itoa(int(TLSPSK))
		p["tls_accept"] = strconv.Itoa(int(d.TLSAccept))
		p["tls_psk_identity"] = d.TLSPSKIdentity
		p["tls_psk"] = d.TLSPSK
	}

	return p
}

// UpdateParams renders the document as a host.update payload. The caller may
// add a "templates_clear" entry for templates being unassigned.
func (d *HostDocument) UpdateParams() map[string]any {
	p := d.CreateParams()
	p["hostid"] = d.HostID
	return p
}

// FromRemote converts a Zabbix host response into a normalized HostDocument.
func FromRemote(h *zabbix.Host) (*HostDocument, error) {
	doc := &HostDocument{
		HostID:        h.HostID,
		Name:          h.Host,
		Status:        HostStatus(atoiDefault(h.Status, 0)),
		MonitoredBy:   MonitoredBy(atoiDefault(h.MonitoredBy, 0)),
		ProxyID:       zeroIDToEmpty(h.ProxyID),
		ProxyGroupID:  zeroIDToEmpty(h.ProxyGroupID),
		Description:   h.Description,
		InventoryMode: InventoryMode(atoiDefault(h.InventoryMode, int(InventoryDisabled))),
	}

	for _, t := range h.Tags {
		doc.Tags = append(doc.Tags, Tag{Key: t.Tag, Value: t.Value})
	}
	for _, g := range h.Groups {
		doc.Groups = append(doc.Groups, GroupRef{GroupID: g.GroupID, Name: g.Name})
	}
	for _, t := range h.Templates {
		doc.Templates = append(doc.Templates, TemplateRef{TemplateID: t.TemplateID, Name: t.Name})
	}
	if doc.InventoryMode == InventoryManual && len(h.Inventory) > 0 {
		doc.Inventory = make(map[string]string, len(h.Inventory))
		for k, v := range h.Inventory {
			doc.Inventory[k] = v
		}
	}

	for _, raw := range h.Interfaces {
		rec, err := NormalizeInterface(raw)
		if err != nil {
			return nil, err
		}
		doc.Interfaces = append(doc.Interfaces, *rec)
	}

	return doc, nil
}

func boolWire(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// zeroIDToEmpty folds the API's "0" placeholder for unset references into the
// empty string the document model uses.
func zeroIDToEmpty(id string) string {
	if id == "0" {
		return ""
	}
	return id
}
