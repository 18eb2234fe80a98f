package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Insert helpers used by the importer and by tests to populate the store.

// InsertHostConfig inserts a host configuration and returns its row id.
// Associations (templates, groups, interfaces) are attached separately.
func (s *Store) InsertHostConfig(ctx context.Context, hc *HostConfig) (int64, error) {
	tagsJSON, err := json.Marshal(hc.Tags)
	if err != nil {
		return 0, fmt.Errorf("encode tags: %w", err)
	}
	factsJSON, err := json.Marshal(hc.Facts)
	if err != nil {
		return 0, fmt.Errorf("encode facts: %w", err)
	}
	if hc.Tags == nil {
		tagsJSON = []byte("[]")
	}
	if hc.Facts == nil {
		factsJSON = []byte("{}")
	}

	var proxyRef, proxyGroupRef any
	if hc.Proxy != nil {
		proxyRef = hc.Proxy.ID
	}
	if hc.ProxyGroup != nil {
		proxyGroupRef = hc.ProxyGroup.ID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO host_config (
			object_id, name, enabled, status, monitored_by, description, host_id,
			inventory_mode, ip_assignment, tls_connect, tls_psk_identity, tls_psk,
			primary_ip, primary_dns, proxy_id, proxy_group_id, tags_json, facts_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hc.ObjectID, hc.Name, hc.Enabled, hc.Status, hc.MonitoredBy, hc.Description, hc.HostID,
		hc.InventoryMode, hc.IPAssignment, hc.TLSConnect, hc.TLSPSKIdentity, hc.TLSPSK,
		hc.PrimaryIP, hc.PrimaryDNS, proxyRef, proxyGroupRef, string(tagsJSON), string(factsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert host config %q: %w", hc.Name, err)
	}
	return res.LastInsertId()
}

// InsertTemplate inserts a template cache entry.
func (s *Store) InsertTemplate(ctx context.Context, t Template) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO template (name, template_id) VALUES (?, ?)", t.Name, t.TemplateID)
	if err != nil {
		return 0, fmt.Errorf("insert template %q: %w", t.Name, err)
	}
	return res.LastInsertId()
}

// InsertHostGroup inserts a host group cache entry.
func (s *Store) InsertHostGroup(ctx context.Context, g HostGroup) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO host_group (name, group_id) VALUES (?, ?)", g.Name, g.GroupID)
	if err != nil {
		return 0, fmt.Errorf("insert host group %q: %w", g.Name, err)
	}
	return res.LastInsertId()
}

// InsertProxy inserts a proxy cache entry.
func (s *Store) InsertProxy(ctx context.Context, p Proxy) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO proxy (name, proxy_id) VALUES (?, ?)", p.Name, p.ProxyID)
	if err != nil {
		return 0, fmt.Errorf("insert proxy %q: %w", p.Name, err)
	}
	return res.LastInsertId()
}

// InsertProxyGroup inserts a proxy group cache entry.
func (s *Store) InsertProxyGroup(ctx context.Context, pg ProxyGroup) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO proxy_group (name, proxy_group_id) VALUES (?, ?)", pg.Name, pg.ProxyGroupID)
	if err != nil {
		return 0, fmt.Errorf("insert proxy group %q: %w", pg.Name, err)
	}
	return res.LastInsertId()
}

// AttachTemplate links a template to a host configuration.
func (s *Store) AttachTemplate(ctx context.Context, configID, templateRowID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO host_config_template (host_config_id, template_id) VALUES (?, ?)",
		configID, templateRowID)
	if err != nil {
		return fmt.Errorf("attach template %d to config %d: %w", templateRowID, configID, err)
	}
	return nil
}

// AttachGroup links a host group to a host configuration.
func (s *Store) AttachGroup(ctx context.Context, configID, groupRowID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO host_config_group (host_config_id, group_id) VALUES (?, ?)",
		configID, groupRowID)
	if err != nil {
		return fmt.Errorf("attach group %d to config %d: %w", groupRowID, configID, err)
	}
	return nil
}

// InsertInterface inserts a monitoring interface record.
func (s *Store) InsertInterface(ctx context.Context, i Interface) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO host_interface (
			host_config_id, kind, netif_id, address, dns_name, port,
			interface_id, main, use_ip,
			security_name, security_level, auth_protocol, auth_passphrase,
			priv_protocol, priv_passphrase, context_name, bulk, max_repetitions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.HostConfigID, i.Kind, i.NetIfID, i.Address, i.DNSName, i.Port,
		i.InterfaceID, i.Main, i.UseIP,
		i.SecurityName, i.SecurityLevel, i.AuthProtocol, i.AuthPassphrase,
		i.PrivProtocol, i.PrivPassphrase, i.ContextName, i.Bulk, i.MaxRepetitions)
	if err != nil {
		return 0, fmt.Errorf("insert interface for config %d: %w", i.HostConfigID, err)
	}
	return res.LastInsertId()
}

// InsertAddress inserts a device address record.
func (s *Store) InsertAddress(ctx context.Context, a Address) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO address (object_id, address, dns_name, netif_id) VALUES (?, ?, ?, ?)",
		a.ObjectID, a.Address, a.DNSName, a.NetIfID)
	if err != nil {
		return 0, fmt.Errorf("insert address %q: %w", a.Address, err)
	}
	return res.LastInsertId()
}

// InsertTagMapping inserts a tag mapping rule. Kind is "allow" or "field".
func (s *Store) InsertTagMapping(ctx context.Context, kind, name, path string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tag_mapping (kind, name, path, enabled) VALUES (?, ?, ?, 1)",
		kind, name, path)
	if err != nil {
		return fmt.Errorf("insert tag mapping %q: %w", name, err)
	}
	return nil
}

// InsertInventoryMapping inserts an inventory mapping rule.
func (s *Store) InsertInventoryMapping(ctx context.Context, key string, paths []string) error {
	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return fmt.Errorf("encode inventory paths: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO inventory_mapping (key, paths_json, enabled) VALUES (?, ?, 1)",
		key, string(pathsJSON))
	if err != nil {
		return fmt.Errorf("insert inventory mapping %q: %w", key, err)
	}
	return nil
}
