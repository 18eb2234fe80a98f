package reconcile

import (
	"errors"
	"reflect"
	"testing"

	"github.com/pergus/netbox-zabbix/internal/store"
	"go.uber.org/zap"
)

func testHostConfig() *store.HostConfig {
	return &store.HostConfig{
		ID:       1,
		ObjectID: 42,
		Name:     "router1",
		Status:   "enabled",
		Groups:   []store.HostGroup{{ID: 1, Name: "Routers", GroupID: "5"}},
		Templates: []store.Template{
			{ID: 1, Name: "Linux by agent", TemplateID: "1001"},
		},
		Interfaces: []store.Interface{
			{ID: 10, Kind: "agent", Main: true, UseIP: true},
		},
		IPAssignment: "primary",
		PrimaryIP:    "10.0.0.1",
		PrimaryDNS:   "router1.example.com",
		Facts:        map[string]any{},
	}
}

func testBuilder(t *testing.T, cfg Settings) *Builder {
	t.Helper()
	return NewBuilder(cfg, zap.NewNop())
}

func TestBuildMinimal(t *testing.T) {
	b := testBuilder(t, DefaultSettings())
	doc, err := b.Build(testHostConfig(), &store.MappingRules{}, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if doc.Name != "router1" || doc.Status != StatusEnabled {
		t.Errorf("unexpected document head: %+v", doc)
	}
	if doc.MonitoredBy != MonitoredByServer {
		t.Errorf("monitored_by = %d, want server", doc.MonitoredBy)
	}
	if len(doc.Interfaces) != 1 {
		t.Fatalf("interfaces = %d, want 1", len(doc.Interfaces))
	}
	if got := doc.Interfaces[0].Port; got != 10050 {
		t.Errorf("agent default port = %d, want 10050", got)
	}
	if got := doc.Interfaces[0].IP; got != "10.0.0.1" {
		t.Errorf("interface ip = %q, want primary ip", got)
	}
}

func TestBuildDefaultTag(t *testing.T) {
	b := testBuilder(t, DefaultSettings())
	doc, err := b.Build(testHostConfig(), &store.MappingRules{}, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(doc.Tags) != 1 {
		t.Fatalf("tags = %v, want one default tag", doc.Tags)
	}
	want := Tag{Key: "netbox/netbox_id", Value: "42"}
	if doc.Tags[0] != want {
		t.Errorf("default tag = %+v, want %+v", doc.Tags[0], want)
	}
}

func TestBuildTagDerivation(t *testing.T) {
	cfg := DefaultSettings()
	cfg.DefaultTag = ""
	cfg.TagPrefix = "nb/"
	cfg.TagCase = "lower"
	b := testBuilder(t, cfg)

	hc := testHostConfig()
	hc.Tags = []store.Tag{
		{Key: "Env", Value: "prod"},
		{Key: "Secret", Value: "hidden"}, // not allow-listed, must be dropped
	}
	hc.Facts = map[string]any{
		"platform": map[string]any{"slug": "junos"},
		"services": []any{"bgp", "ospf"},
	}
	rules := &store.MappingRules{
		AllowedTags: []string{"Env"},
		FieldTags: []store.TagMapping{
			{Name: "Platform", Path: "platform.slug"},
			{Name: "Service", Path: "services"},
			{Name: "Missing", Path: "platform.series"},
		},
	}

	doc, err := b.Build(hc, rules, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []Tag{
		{Key: "nb/env", Value: "prod"},
		{Key: "nb/platform", Value: "junos"},
		{Key: "nb/service", Value: "bgp"},
		{Key: "nb/service", Value: "ospf"},
	}
	if len(doc.Tags) != len(want) {
		t.Fatalf("tags = %+v, want %+v", doc.Tags, want)
	}
	for i, tag := range want {
		if doc.Tags[i] != tag {
			t.Errorf("tag[%d] = %+v, want %+v", i, doc.Tags[i], tag)
		}
	}
}

func TestBuildTagDeduplication(t *testing.T) {
	cfg := DefaultSettings()
	cfg.DefaultTag = ""
	cfg.TagPrefix = ""
	b := testBuilder(t, cfg)

	hc := testHostConfig()
	hc.Tags = []store.Tag{{Key: "env", Value: "prod"}}
	hc.Facts = map[string]any{"site": map[string]any{"env": "prod"}}
	rules := &store.MappingRules{
		AllowedTags: []string{"env"},
		FieldTags:   []store.TagMapping{{Name: "env", Path: "site.env"}},
	}

	doc, err := b.Build(hc, rules, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(doc.Tags) != 1 {
		t.Errorf("tags = %+v, want single deduplicated tag", doc.Tags)
	}
}

func TestBuildInventory(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	hc := testHostConfig()
	hc.InventoryMode = "manual"
	hc.Facts = map[string]any{
		"serial": "ABC123",
		"device_type": map[string]any{
			"model":        "MX204",
			"manufacturer": map[string]any{"name": "Juniper"},
		},
	}
	rules := &store.MappingRules{
		Inventory: []store.InventoryMapping{
			// First path misses, second resolves.
			{Key: "serialno_a", Paths: []string{"asset.serial", "serial"}},
			{Key: "model", Paths: []string{"device_type.model"}},
			{Key: "vendor", Paths: []string{"device_type.manufacturer.name"}},
			{Key: "bogus_property", Paths: []string{"serial"}}, // unknown, skipped
		},
	}

	doc, err := b.Build(hc, rules, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.InventoryMode != InventoryManual {
		t.Fatalf("inventory mode = %d, want manual", doc.InventoryMode)
	}

	want := map[string]string{
		"serialno_a": "ABC123",
		"model":      "MX204",
		"vendor":     "Juniper",
	}
	if len(doc.Inventory) != len(want) {
		t.Fatalf("inventory = %v, want %v", doc.Inventory, want)
	}
	for k, v := range want {
		if doc.Inventory[k] != v {
			t.Errorf("inventory[%q] = %q, want %q", k, doc.Inventory[k], v)
		}
	}
}

func TestBuildConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*store.HostConfig)
	}{
		{"invalid status", func(hc *store.HostConfig) { hc.Status = "paused" }},
		{"proxy mode without proxy", func(hc *store.HostConfig) { hc.MonitoredBy = "proxy" }},
		{"proxy group mode without group", func(hc *store.HostConfig) { hc.MonitoredBy = "proxy_group" }},
		{"no groups", func(hc *store.HostConfig) { hc.Groups = nil }},
		{"no interfaces", func(hc *store.HostConfig) { hc.Interfaces = nil }},
		{"invalid inventory mode", func(hc *store.HostConfig) { hc.InventoryMode = "full" }},
		{"psk without key", func(hc *store.HostConfig) { hc.TLSConnect = "psk"; hc.TLSPSKIdentity = "id" }},
		{"ip interface without address", func(hc *store.HostConfig) { hc.PrimaryIP = "" }},
		{"dns interface without name", func(hc *store.HostConfig) {
			hc.Interfaces[0].UseIP = false
			hc.PrimaryDNS = ""
		}},
		{"unsupported interface kind", func(hc *store.HostConfig) { hc.Interfaces[0].Kind = "jmx" }},
		{"invalid ip assignment", func(hc *store.HostConfig) { hc.IPAssignment = "floating" }},
	}

	b := testBuilder(t, DefaultSettings())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hc := testHostConfig()
			tc.mutate(hc)

			_, err := b.Build(hc, &store.MappingRules{}, false, nil)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestBuildProxyMode(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	hc := testHostConfig()
	hc.MonitoredBy = "proxy"
	hc.Proxy = &store.Proxy{ID: 1, Name: "proxy-ams", ProxyID: "7"}

	doc, err := b.Build(hc, &store.MappingRules{}, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.MonitoredBy != MonitoredByProxy || doc.ProxyID != "7" {
		t.Errorf("proxy assignment = %+v", doc)
	}
}

func TestBuildSNMPv3Interface(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	hc := testHostConfig()
	hc.Interfaces = []store.Interface{{
		ID: 11, Kind: "snmpv3", Main: true, UseIP: true,
		SecurityName: "ops", SecurityLevel: SecurityAuthPriv,
		AuthProtocol: 1, AuthPassphrase: "a", PrivProtocol: 1, PrivPassphrase: "p",
		Bulk: true, MaxRepetitions: 10,
	}}

	doc, err := b.Build(hc, &store.MappingRules{}, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	iface := doc.Interfaces[0]
	if iface.Type != InterfaceSNMP || iface.Port != 161 {
		t.Errorf("snmp interface = %+v, want type SNMP port 161", iface)
	}
	if iface.SNMP == nil || iface.SNMP.Version != 3 || iface.SNMP.Bulk != 1 {
		t.Errorf("snmp details = %+v", iface.SNMP)
	}
}

func TestBuildLinkedAddressAssignment(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	hc := testHostConfig()
	hc.IPAssignment = "linked"
	hc.Interfaces[0].Address = "192.168.1.5"

	doc, err := b.Build(hc, &store.MappingRules{}, false, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := doc.Interfaces[0].IP; got != "192.168.1.5" {
		t.Errorf("interface ip = %q, want linked address", got)
	}
}

func TestBuildForUpdateRequiresHostID(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	_, err := b.Build(testHostConfig(), &store.MappingRules{}, true, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestBuildForUpdateRecoversInterfaceID(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	hc := testHostConfig()
	hc.HostID = "1001"

	previous := &HostDocument{
		Interfaces: []InterfaceRecord{
			{Type: InterfaceAgent, InterfaceID: 55, Main: true, UseIP: true, IP: "10.0.0.1", Port: 10050},
			{Type: InterfaceSNMP, InterfaceID: 56, UseIP: true, IP: "10.0.0.1", Port: 161},
		},
	}

	doc, err := b.Build(hc, &store.MappingRules{}, true, previous)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.HostID != "1001" {
		t.Errorf("host id = %q, want 1001", doc.HostID)
	}
	if got := doc.Interfaces[0].InterfaceID; got != 55 {
		t.Errorf("recovered interface id = %d, want 55", got)
	}
}

func TestBuildForUpdateUnmatchedInterfaceStaysUnlinked(t *testing.T) {
	b := testBuilder(t, DefaultSettings())

	hc := testHostConfig()
	hc.HostID = "1001"

	previous := &HostDocument{
		Interfaces: []InterfaceRecord{
			{Type: InterfaceAgent, InterfaceID: 55, UseIP: true, IP: "10.9.9.9", Port: 10050},
		},
	}

	doc, err := b.Build(hc, &store.MappingRules{}, true, previous)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := doc.Interfaces[0].InterfaceID; got != 0 {
		t.Errorf("interface id = %d, want 0 for unmatched interface", got)
	}
}

func TestResolvePath(t *testing.T) {
	facts := map[string]any{
		"site": map[string]any{"region": map[string]any{"slug": "emea"}},
		"rack": nil,
	}

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"site.region.slug", "emea", true},
		{"site.region", map[string]any{"slug": "emea"}, true},
		{"site.missing", nil, false},
		{"rack.name", nil, false},
		{"", nil, false},
	}
	for _, tc := range tests {
		got, ok := resolvePath(facts, tc.path)
		if ok != tc.ok {
			t.Errorf("resolvePath(%q) ok = %v, want %v", tc.path, ok, tc.ok)
			continue
		}
		if tc.ok && !reflect.DeepEqual(got, tc.want) {
			t.Errorf("resolvePath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
