package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(context.Background(), "store", Migrations()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	// Running the same migrations again must be a no-op.
	if err := s.Migrate(context.Background(), "store", Migrations()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestCheckVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("dev always passes", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.CheckVersion(ctx, "dev"); err != nil {
			t.Fatalf("CheckVersion(dev): %v", err)
		}
		if err := s.CheckVersion(ctx, "dev"); err != nil {
			t.Fatalf("second CheckVersion(dev): %v", err)
		}
	})

	t.Run("newer database rejected", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.CheckVersion(ctx, "2.0.0"); err != nil {
			t.Fatalf("CheckVersion(2.0.0): %v", err)
		}
		err := s.CheckVersion(ctx, "1.0.0")
		if !errors.Is(err, ErrNewerSchema) {
			t.Fatalf("expected ErrNewerSchema, got %v", err)
		}
	})

	t.Run("upgrade updates stored version", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.CheckVersion(ctx, "1.0.0"); err != nil {
			t.Fatalf("CheckVersion(1.0.0): %v", err)
		}
		if err := s.CheckVersion(ctx, "1.1.0"); err != nil {
			t.Fatalf("CheckVersion(1.1.0): %v", err)
		}
		// The older binary must now be refused.
		if err := s.CheckVersion(ctx, "1.0.0"); !errors.Is(err, ErrNewerSchema) {
			t.Fatalf("expected ErrNewerSchema, got %v", err)
		}
	})
}

// seedHostConfig inserts a fully associated host configuration and returns
// its row id along with the interface row id.
func seedHostConfig(t *testing.T, s *Store) (configID, ifaceID int64) {
	t.Helper()
	ctx := context.Background()

	proxyID, err := s.InsertProxy(ctx, Proxy{Name: "proxy-ams", ProxyID: "7"})
	if err != nil {
		t.Fatalf("InsertProxy: %v", err)
	}

	configID, err = s.InsertHostConfig(ctx, &HostConfig{
		ObjectID:      42,
		Name:          "router1",
		Enabled:       true,
		Status:        "enabled",
		MonitoredBy:   "proxy",
		Description:   "core router",
		InventoryMode: "manual",
		IPAssignment:  "primary",
		TLSConnect:    "none",
		PrimaryIP:     "10.0.0.1",
		PrimaryDNS:    "router1.example.com",
		Proxy:         &Proxy{ID: proxyID},
		Tags:          []Tag{{Key: "env", Value: "prod"}},
		Facts:         map[string]any{"serial": "ABC123"},
	})
	if err != nil {
		t.Fatalf("InsertHostConfig: %v", err)
	}

	tplID, err := s.InsertTemplate(ctx, Template{Name: "Linux by agent", TemplateID: "1001"})
	if err != nil {
		t.Fatalf("InsertTemplate: %v", err)
	}
	if err := s.AttachTemplate(ctx, configID, tplID); err != nil {
		t.Fatalf("AttachTemplate: %v", err)
	}

	grpID, err := s.InsertHostGroup(ctx, HostGroup{Name: "Routers", GroupID: "5"})
	if err != nil {
		t.Fatalf("InsertHostGroup: %v", err)
	}
	if err := s.AttachGroup(ctx, configID, grpID); err != nil {
		t.Fatalf("AttachGroup: %v", err)
	}

	ifaceID, err = s.InsertInterface(ctx, Interface{
		HostConfigID: configID,
		Kind:         "agent",
		NetIfID:      7,
		Port:         10050,
		Main:         true,
		UseIP:        true,
	})
	if err != nil {
		t.Fatalf("InsertInterface: %v", err)
	}
	return configID, ifaceID
}

func TestHostConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	configID, _ := seedHostConfig(t, s)

	configs, err := s.ListEnabledHostConfigs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledHostConfigs: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("configs = %d, want 1", len(configs))
	}

	hc := configs[0]
	if hc.ID != configID || hc.Name != "router1" || hc.ObjectID != 42 {
		t.Errorf("unexpected config head: %+v", hc)
	}
	if hc.Proxy == nil || hc.Proxy.Name != "proxy-ams" || hc.Proxy.ProxyID != "7" {
		t.Errorf("proxy = %+v", hc.Proxy)
	}
	if hc.ProxyGroup != nil {
		t.Errorf("proxy group should be nil, got %+v", hc.ProxyGroup)
	}
	if len(hc.Templates) != 1 || hc.Templates[0].TemplateID != "1001" {
		t.Errorf("templates = %+v", hc.Templates)
	}
	if len(hc.Groups) != 1 || hc.Groups[0].GroupID != "5" {
		t.Errorf("groups = %+v", hc.Groups)
	}
	if len(hc.Interfaces) != 1 || hc.Interfaces[0].Kind != "agent" {
		t.Errorf("interfaces = %+v", hc.Interfaces)
	}
	if len(hc.Tags) != 1 || hc.Tags[0].Key != "env" {
		t.Errorf("tags = %+v", hc.Tags)
	}
	if hc.Facts["serial"] != "ABC123" {
		t.Errorf("facts = %+v", hc.Facts)
	}
}

func TestGetHostConfigByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedHostConfig(t, s)

	hc, ok, err := s.GetHostConfigByName(ctx, "router1")
	if err != nil {
		t.Fatalf("GetHostConfigByName: %v", err)
	}
	if !ok || hc.Name != "router1" {
		t.Errorf("got %+v ok=%v", hc, ok)
	}

	_, ok, err = s.GetHostConfigByName(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetHostConfigByName(ghost): %v", err)
	}
	if ok {
		t.Error("expected ok=false for unknown name")
	}
}

func TestHostIDLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	configID, ifaceID := seedHostConfig(t, s)

	if err := s.SetHostID(ctx, configID, "1001"); err != nil {
		t.Fatalf("SetHostID: %v", err)
	}
	if err := s.SetInterfaceID(ctx, ifaceID, 55); err != nil {
		t.Fatalf("SetInterfaceID: %v", err)
	}

	hc, _, err := s.GetHostConfigByName(ctx, "router1")
	if err != nil {
		t.Fatalf("GetHostConfigByName: %v", err)
	}
	if hc.HostID != "1001" {
		t.Errorf("host id = %q, want 1001", hc.HostID)
	}
	if hc.Interfaces[0].InterfaceID != 55 {
		t.Errorf("interface id = %d, want 55", hc.Interfaces[0].InterfaceID)
	}

	if err := s.ClearHostID(ctx, configID); err != nil {
		t.Fatalf("ClearHostID: %v", err)
	}
	hc, _, err = s.GetHostConfigByName(ctx, "router1")
	if err != nil {
		t.Fatalf("GetHostConfigByName: %v", err)
	}
	if hc.HostID != "" {
		t.Errorf("host id = %q after clear, want empty", hc.HostID)
	}
}

func TestSaveHostGroupUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveHostGroup(ctx, HostGroup{Name: "Graveyard", GroupID: "90"}); err != nil {
		t.Fatalf("SaveHostGroup: %v", err)
	}
	// Same name with a new remote id must update in place.
	if err := s.SaveHostGroup(ctx, HostGroup{Name: "Graveyard", GroupID: "99"}); err != nil {
		t.Fatalf("SaveHostGroup upsert: %v", err)
	}

	var groupID string
	err := s.DB().QueryRowContext(ctx,
		"SELECT group_id FROM host_group WHERE name = ?", "Graveyard").Scan(&groupID)
	if err != nil {
		t.Fatalf("query group: %v", err)
	}
	if groupID != "99" {
		t.Errorf("group id = %q, want 99", groupID)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM host_group WHERE name = ?", "Graveyard").Scan(&count); err != nil {
		t.Fatalf("count groups: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestTemplateIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, tpl := range []Template{
		{Name: "Linux by agent", TemplateID: "1001"},
		{Name: "ICMP Ping", TemplateID: "1002"},
	} {
		if _, err := s.InsertTemplate(ctx, tpl); err != nil {
			t.Fatalf("InsertTemplate: %v", err)
		}
	}

	ids, err := s.TemplateIDs(ctx)
	if err != nil {
		t.Fatalf("TemplateIDs: %v", err)
	}
	if len(ids) != 2 || !ids["1001"] || !ids["1002"] {
		t.Errorf("ids = %v", ids)
	}
}

func TestAddressesFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, a := range []Address{
		{ObjectID: 42, Address: "10.0.0.1", DNSName: "router1.example.com", NetIfID: 7},
		{ObjectID: 42, Address: "10.0.0.2", NetIfID: 8},
		{ObjectID: 99, Address: "192.168.0.1", NetIfID: 1},
	} {
		if _, err := s.InsertAddress(ctx, a); err != nil {
			t.Fatalf("InsertAddress: %v", err)
		}
	}

	addrs, err := s.AddressesFor(ctx, 42)
	if err != nil {
		t.Fatalf("AddressesFor: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("addrs = %+v, want 2 entries", addrs)
	}
	if addrs[0].Address != "10.0.0.1" || addrs[0].NetIfID != 7 {
		t.Errorf("addr[0] = %+v", addrs[0])
	}
}

func TestRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertTagMapping(ctx, "allow", "env", ""); err != nil {
		t.Fatalf("InsertTagMapping: %v", err)
	}
	if err := s.InsertTagMapping(ctx, "field", "platform", "platform.slug"); err != nil {
		t.Fatalf("InsertTagMapping: %v", err)
	}
	if err := s.InsertInventoryMapping(ctx, "serialno_a", []string{"asset.serial", "serial"}); err != nil {
		t.Fatalf("InsertInventoryMapping: %v", err)
	}

	rules, err := s.Rules(ctx)
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(rules.AllowedTags) != 1 || rules.AllowedTags[0] != "env" {
		t.Errorf("allowed tags = %v", rules.AllowedTags)
	}
	if len(rules.FieldTags) != 1 || rules.FieldTags[0].Path != "platform.slug" {
		t.Errorf("field tags = %+v", rules.FieldTags)
	}
	if len(rules.Inventory) != 1 {
		t.Fatalf("inventory = %+v", rules.Inventory)
	}
	if got := rules.Inventory[0].Paths; len(got) != 2 || got[0] != "asset.serial" {
		t.Errorf("inventory paths = %v", got)
	}
}

func TestListSkipsDisabledConfigs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedHostConfig(t, s)

	if _, err := s.InsertHostConfig(ctx, &HostConfig{
		ObjectID: 43,
		Name:     "router2",
		Enabled:  false,
		Status:   "enabled",
	}); err != nil {
		t.Fatalf("InsertHostConfig: %v", err)
	}

	configs, err := s.ListEnabledHostConfigs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledHostConfigs: %v", err)
	}
	if len(configs) != 1 || configs[0].Name != "router1" {
		t.Errorf("configs = %+v, want only router1", configs)
	}
}

func TestTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO template (name, template_id) VALUES ('X', '9')"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Tx error = %v, want sentinel", err)
	}

	ids, err := s.TemplateIDs(ctx)
	if err != nil {
		t.Fatalf("TemplateIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want rollback to discard the insert", ids)
	}
}
