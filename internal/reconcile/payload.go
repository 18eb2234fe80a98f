package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pergus/netbox-zabbix/internal/store"
	"go.uber.org/zap"
)

// Builder assembles the desired-state HostDocument for a managed host from
// its local configuration record.
type Builder struct {
	cfg    Settings
	logger *zap.Logger
}

// NewBuilder creates a payload builder.
func NewBuilder(cfg Settings, logger *zap.Logger) *Builder {
	return &Builder{cfg: cfg, logger: logger}
}

// Build constructs the canonical desired-state document. On forUpdate the
// document carries the remote host id and each interface carries its remote
// interface id, recovered from previous (the last fetched remote document)
// when not yet known locally. Build never returns a partial document: any
// unmet precondition yields a ConfigurationError.
func (b *Builder) Build(hc *store.HostConfig, rules *store.MappingRules, forUpdate bool, previous *HostDocument) (*HostDocument, error) {
	doc := &HostDocument{
		Name:        hc.Name,
		Description: hc.Description,
	}

	switch hc.Status {
	case "enabled", "":
		doc.Status = StatusEnabled
	case "disabled":
		doc.Status = StatusDisabled
	default:
		return nil, configErrf("host %q has invalid status %q", hc.Name, hc.Status)
	}

	switch hc.MonitoredBy {
	case "":
		doc.MonitoredBy = MonitoredByServer
	case "proxy":
		if hc.Proxy == nil {
			return nil, configErrf("host %q is monitored by proxy but no proxy is assigned", hc.Name)
		}
		doc.MonitoredBy = MonitoredByProxy
		doc.ProxyID = hc.Proxy.ProxyID
	case "proxy_group":
		if hc.ProxyGroup == nil {
			return nil, configErrf("host %q is monitored by proxy group but no proxy group is assigned", hc.Name)
		}
		doc.MonitoredBy = MonitoredByProxyGroup
		doc.ProxyGroupID = hc.ProxyGroup.ProxyGroupID
	default:
		return nil, configErrf("host %q has invalid monitored_by %q", hc.Name, hc.MonitoredBy)
	}

	doc.Tags = b.deriveTags(hc, rules)

	if len(hc.Groups) == 0 {
		return nil, configErrf("host %q has no host groups assigned", hc.Name)
	}
	for _, g := range hc.Groups {
		doc.Groups = append(doc.Groups, GroupRef{GroupID: g.GroupID, Name: g.Name})
	}
	for _, t := range hc.Templates {
		doc.Templates = append(doc.Templates, TemplateRef{TemplateID: t.TemplateID, Name: t.Name})
	}

	switch hc.InventoryMode {
	case "disabled", "":
		doc.InventoryMode = InventoryDisabled
	case "manual":
		doc.InventoryMode = InventoryManual
		doc.Inventory = b.buildInventory(hc, rules)
	case "automatic":
		doc.InventoryMode = InventoryAutomatic
	default:
		return nil, configErrf("host %q has invalid inventory mode %q", hc.Name, hc.InventoryMode)
	}

	if hc.TLSConnect == "psk" {
		if hc.TLSPSKIdentity == "" || hc.TLSPSK == "" {
			return nil, configErrf("host %q uses PSK but identity or key is unset", hc.Name)
		}
		doc.TLSConnect = TLSPSK
		doc.TLSAccept = TLSPSK
		doc.TLSPSKIdentity = hc.TLSPSKIdentity
		doc.TLSPSK = hc.TLSPSK
	}

	if len(hc.Interfaces) == 0 {
		return nil, configErrf("host %q has no interfaces configured", hc.Name)
	}
	for i := range hc.Interfaces {
		rec, err := b.buildInterface(hc, &hc.Interfaces[i])
		if err != nil {
			return nil, err
		}
		if forUpdate && rec.InterfaceID == 0 && previous != nil {
			// Recover the remote id by matching address, type, and port
			// against the last fetched remote document. An unmatched new
			// interface goes out without an id; the server assigns one.
			rec.InterfaceID = recoverInterfaceID(rec, previous)
		}
		doc.Interfaces = append(doc.Interfaces, *rec)
	}

	if forUpdate {
		if hc.HostID == "" {
			return nil, configErrf("host %q has no remote host id to update", hc.Name)
		}
		doc.HostID = hc.HostID
	}

	return doc, nil
}

// deriveTags computes the host tag set: the default tag carrying the source
// object id, the allow-listed subset of the device's own tags, and the
// field-selection tags resolved from the device facts. Every key gets the
// configured prefix and case folding; duplicate key+value pairs are dropped,
// first occurrence wins.
func (b *Builder) deriveTags(hc *store.HostConfig, rules *store.MappingRules) []Tag {
	var raw []Tag

	if b.cfg.DefaultTag != "" {
		raw = append(raw, Tag{Key: b.cfg.DefaultTag, Value: strconv.FormatInt(hc.ObjectID, 10)})
	}

	for _, allowed := range rules.AllowedTags {
		for _, t := range hc.Tags {
			if t.Key == allowed {
				raw = append(raw, Tag{Key: t.Key, Value: t.Value})
			}
		}
	}

	for _, ft := range rules.FieldTags {
		v, ok := resolvePath(hc.Facts, ft.Path)
		if !ok || v == nil {
			continue
		}
		if list, isList := v.([]any); isList {
			for _, el := range list {
				raw = append(raw, Tag{Key: ft.Name, Value: anyToString(el)})
			}
			continue
		}
		raw = append(raw, Tag{Key: ft.Name, Value: anyToString(v)})
	}

	seen := map[Tag]bool{}
	var tags []Tag
	for _, t := range raw {
		folded := Tag{Key: b.cfg.foldCase(b.cfg.TagPrefix + t.Key), Value: t.Value}
		if seen[folded] {
			continue
		}
		seen[folded] = true
		tags = append(tags, folded)
	}
	return tags
}

// buildInventory resolves each enabled inventory mapping by trying its fact
// paths in priority order and taking the first non-null value. Unknown
// inventory property keys are logged and skipped.
func (b *Builder) buildInventory(hc *store.HostConfig, rules *store.MappingRules) map[string]string {
	inv := map[string]string{}
	for _, m := range rules.Inventory {
		if !inventoryKeys[m.Key] {
			b.logger.Warn("unknown inventory property, skipping",
				zap.String("host", hc.Name),
				zap.String("key", m.Key),
			)
			continue
		}
		for _, path := range m.Paths {
			v, ok := resolvePath(hc.Facts, path)
			if ok && v != nil {
				inv[m.Key] = anyToString(v)
				break
			}
		}
	}
	return inv
}

func (b *Builder) buildInterface(hc *store.HostConfig, cfg *store.Interface) (*InterfaceRecord, error) {
	rec := &InterfaceRecord{
		InterfaceID: cfg.InterfaceID,
		Main:        cfg.Main,
		UseIP:       cfg.UseIP,
		Port:        cfg.Port,
	}

	switch cfg.Kind {
	case "agent":
		rec.Type = InterfaceAgent
		if rec.Port == 0 {
			rec.Port = 10050
		}
	case "snmpv3":
		rec.Type = InterfaceSNMP
		if rec.Port == 0 {
			rec.Port = 161
		}
		rec.SNMP = &SNMPDetails{
			Version:        3,
			Bulk:           boolToInt(cfg.Bulk),
			MaxRepetitions: cfg.MaxRepetitions,
			SecurityName:   cfg.SecurityName,
			SecurityLevel:  cfg.SecurityLevel,
			AuthProtocol:   cfg.AuthProtocol,
			AuthPassphrase: cfg.AuthPassphrase,
			PrivProtocol:   cfg.PrivProtocol,
			PrivPassphrase: cfg.PrivPassphrase,
			ContextName:    cfg.ContextName,
		}
	default:
		return nil, configErrf("host %q interface %d has unsupported kind %q", hc.Name, cfg.ID, cfg.Kind)
	}

	ip, dns, err := resolveAddress(hc, cfg)
	if err != nil {
		return nil, err
	}
	rec.IP = ip
	rec.DNS = dns

	if rec.UseIP && rec.IP == "" {
		return nil, configErrf("host %q interface %d connects via IP but none is available", hc.Name, cfg.ID)
	}
	if !rec.UseIP && rec.DNS == "" {
		return nil, configErrf("host %q interface %d connects via DNS but no name is available", hc.Name, cfg.ID)
	}

	return rec, nil
}

// resolveAddress picks the interface endpoint per the configured IP
// assignment method: the device's primary address, or the address explicitly
// linked to the interface record.
func resolveAddress(hc *store.HostConfig, cfg *store.Interface) (ip, dns string, err error) {
	switch hc.IPAssignment {
	case "primary", "":
		return hc.PrimaryIP, hc.PrimaryDNS, nil
	case "linked":
		return cfg.Address, cfg.DNSName, nil
	}
	return "", "", configErrf("host %q has invalid ip assignment method %q", hc.Name, hc.IPAssignment)
}

// recoverInterfaceID matches a local interface against the previously fetched
// remote document by (address, type, port).
func recoverInterfaceID(rec *InterfaceRecord, previous *HostDocument) int {
	for i := range previous.Interfaces {
		p := &previous.Interfaces[i]
		if p.Type == rec.Type && p.Port == rec.Port && p.Address() == rec.Address() {
			return p.InterfaceID
		}
	}
	return 0
}

// resolvePath walks a dotted attribute path through the nested facts
// document. Returns false when any step is missing or not a map.
func resolvePath(facts map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := any(facts)
	for _, step := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[step]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func anyToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inventoryKeys is the set of Zabbix host inventory properties the builder
// will populate.
var inventoryKeys = map[string]bool{
	"alias": true, "asset_tag": true, "chassis": true, "contact": true,
	"hardware": true, "hardware_full": true, "hw_arch": true, "location": true,
	"location_lat": true, "location_lon": true, "macaddress_a": true,
	"macaddress_b": true, "model": true, "name": true, "notes": true,
	"os": true, "os_full": true, "os_short": true, "serialno_a": true,
	"serialno_b": true, "site_address_a": true, "site_city": true,
	"site_country": true, "software": true, "software_full": true,
	"tag": true, "type": true, "url_a": true, "vendor": true,
}
