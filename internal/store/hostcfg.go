package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ListEnabledHostConfigs returns all host configurations with sync enabled,
// fully loaded (templates, groups, interfaces, proxy references, facts).
func (s *Store) ListEnabledHostConfigs(ctx context.Context) ([]HostConfig, error) {
	rows, err := s.db.QueryContext(ctx, hostConfigSelect+" WHERE hc.enabled = 1 ORDER BY hc.name")
	if err != nil {
		return nil, fmt.Errorf("list host configs: %w", err)
	}
	defer rows.Close()

	var configs []HostConfig
	for rows.Next() {
		hc, err := scanHostConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *hc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate host configs: %w", err)
	}

	for i := range configs {
		if err := s.loadAssociations(ctx, &configs[i]); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// GetHostConfigByName loads a single host configuration by host name.
// Returns ok=false when no configuration exists for the name.
func (s *Store) GetHostConfigByName(ctx context.Context, name string) (*HostConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, hostConfigSelect+" WHERE hc.name = ?", name)
	hc, err := scanHostConfig(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.loadAssociations(ctx, hc); err != nil {
		return nil, false, err
	}
	return hc, true, nil
}

// SetHostID records the Zabbix host id assigned to a configuration.
// Written exactly once per creation; the id is immutable afterwards.
func (s *Store) SetHostID(ctx context.Context, configID int64, hostID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE host_config SET host_id = ? WHERE id = ?", hostID, configID)
	if err != nil {
		return fmt.Errorf("set host id for config %d: %w", configID, err)
	}
	return nil
}

// ClearHostID removes the Zabbix host id after remote deletion.
func (s *Store) ClearHostID(ctx context.Context, configID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE host_config SET host_id = '' WHERE id = ?", configID)
	if err != nil {
		return fmt.Errorf("clear host id for config %d: %w", configID, err)
	}
	return nil
}

// SetInterfaceID records the Zabbix interface id for a local interface record.
func (s *Store) SetInterfaceID(ctx context.Context, interfaceRowID int64, zabbixID int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE host_interface SET interface_id = ? WHERE id = ?", zabbixID, interfaceRowID)
	if err != nil {
		return fmt.Errorf("set interface id for interface %d: %w", interfaceRowID, err)
	}
	return nil
}

// SaveHostGroup upserts a host group into the local cache.
func (s *Store) SaveHostGroup(ctx context.Context, g HostGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO host_group (name, group_id) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET group_id = excluded.group_id`,
		g.Name, g.GroupID)
	if err != nil {
		return fmt.Errorf("save host group %q: %w", g.Name, err)
	}
	return nil
}

// TemplateIDs returns the set of locally known Zabbix template ids.
func (s *Store) TemplateIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT template_id FROM template")
	if err != nil {
		return nil, fmt.Errorf("list template ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// AddressesFor returns the locally known addresses of a device.
func (s *Store) AddressesFor(ctx context.Context, objectID int64) ([]Address, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, object_id, address, dns_name, netif_id FROM address WHERE object_id = ?",
		objectID)
	if err != nil {
		return nil, fmt.Errorf("list addresses for object %d: %w", objectID, err)
	}
	defer rows.Close()

	var addrs []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.ObjectID, &a.Address, &a.DNSName, &a.NetIfID); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// Rules loads the enabled tag and inventory mapping rules.
func (s *Store) Rules(ctx context.Context) (*MappingRules, error) {
	rules := &MappingRules{}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, name, path FROM tag_mapping WHERE enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tag mappings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var kind, name, path string
		if err := rows.Scan(&id, &kind, &name, &path); err != nil {
			return nil, err
		}
		switch kind {
		case "allow":
			rules.AllowedTags = append(rules.AllowedTags, name)
		case "field":
			rules.FieldTags = append(rules.FieldTags, TagMapping{ID: id, Name: name, Path: path, Enabled: true})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	invRows, err := s.db.QueryContext(ctx,
		"SELECT id, key, paths_json FROM inventory_mapping WHERE enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list inventory mappings: %w", err)
	}
	defer invRows.Close()
	for invRows.Next() {
		var m InventoryMapping
		var pathsJSON string
		if err := invRows.Scan(&m.ID, &m.Key, &pathsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pathsJSON), &m.Paths); err != nil {
			return nil, fmt.Errorf("decode inventory paths for %q: %w", m.Key, err)
		}
		m.Enabled = true
		rules.Inventory = append(rules.Inventory, m)
	}
	return rules, invRows.Err()
}

const hostConfigSelect = `
	SELECT hc.id, hc.object_id, hc.name, hc.enabled, hc.status, hc.monitored_by,
	       hc.description, hc.host_id, hc.inventory_mode, hc.ip_assignment,
	       hc.tls_connect, hc.tls_psk_identity, hc.tls_psk,
	       hc.primary_ip, hc.primary_dns, hc.tags_json, hc.facts_json,
	       p.id, p.name, p.proxy_id,
	       pg.id, pg.name, pg.proxy_group_id
	FROM host_config hc
	LEFT JOIN proxy p        ON p.id  = hc.proxy_id
	LEFT JOIN proxy_group pg ON pg.id = hc.proxy_group_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHostConfig(row rowScanner) (*HostConfig, error) {
	var hc HostConfig
	var tagsJSON, factsJSON string
	var pID, pgID sql.NullInt64
	var pName, pZbxID, pgName, pgZbxID sql.NullString

	err := row.Scan(
		&hc.ID, &hc.ObjectID, &hc.Name, &hc.Enabled, &hc.Status, &hc.MonitoredBy,
		&hc.Description, &hc.HostID, &hc.InventoryMode, &hc.IPAssignment,
		&hc.TLSConnect, &hc.TLSPSKIdentity, &hc.TLSPSK,
		&hc.PrimaryIP, &hc.PrimaryDNS, &tagsJSON, &factsJSON,
		&pID, &pName, &pZbxID,
		&pgID, &pgName, &pgZbxID,
	)
	if err != nil {
		return nil, err
	}

	if pID.Valid {
		hc.Proxy = &Proxy{ID: pID.Int64, Name: pName.String, ProxyID: pZbxID.String}
	}
	if pgID.Valid {
		hc.ProxyGroup = &ProxyGroup{ID: pgID.Int64, Name: pgName.String, ProxyGroupID: pgZbxID.String}
	}
	if err := json.Unmarshal([]byte(tagsJSON), &hc.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %q: %w", hc.Name, err)
	}
	if err := json.Unmarshal([]byte(factsJSON), &hc.Facts); err != nil {
		return nil, fmt.Errorf("decode facts for %q: %w", hc.Name, err)
	}
	return &hc, nil
}

func (s *Store) loadAssociations(ctx context.Context, hc *HostConfig) error {
	tplRows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.template_id
		FROM template t
		JOIN host_config_template hct ON hct.template_id = t.id
		WHERE hct.host_config_id = ?
		ORDER BY t.name`, hc.ID)
	if err != nil {
		return fmt.Errorf("load templates for %q: %w", hc.Name, err)
	}
	defer tplRows.Close()
	for tplRows.Next() {
		var t Template
		if err := tplRows.Scan(&t.ID, &t.Name, &t.TemplateID); err != nil {
			return err
		}
		hc.Templates = append(hc.Templates, t)
	}
	if err := tplRows.Err(); err != nil {
		return err
	}

	grpRows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.group_id
		FROM host_group g
		JOIN host_config_group hcg ON hcg.group_id = g.id
		WHERE hcg.host_config_id = ?
		ORDER BY g.name`, hc.ID)
	if err != nil {
		return fmt.Errorf("load groups for %q: %w", hc.Name, err)
	}
	defer grpRows.Close()
	for grpRows.Next() {
		var g HostGroup
		if err := grpRows.Scan(&g.ID, &g.Name, &g.GroupID); err != nil {
			return err
		}
		hc.Groups = append(hc.Groups, g)
	}
	if err := grpRows.Err(); err != nil {
		return err
	}

	ifRows, err := s.db.QueryContext(ctx, `
		SELECT id, host_config_id, kind, netif_id, address, dns_name, port,
		       interface_id, main, use_ip,
		       security_name, security_level, auth_protocol, auth_passphrase,
		       priv_protocol, priv_passphrase, context_name, bulk, max_repetitions
		FROM host_interface
		WHERE host_config_id = ?
		ORDER BY id`, hc.ID)
	if err != nil {
		return fmt.Errorf("load interfaces for %q: %w", hc.Name, err)
	}
	defer ifRows.Close()
	for ifRows.Next() {
		var i Interface
		if err := ifRows.Scan(
			&i.ID, &i.HostConfigID, &i.Kind, &i.NetIfID, &i.Address, &i.DNSName, &i.Port,
			&i.InterfaceID, &i.Main, &i.UseIP,
			&i.SecurityName, &i.SecurityLevel, &i.AuthProtocol, &i.AuthPassphrase,
			&i.PrivProtocol, &i.PrivPassphrase, &i.ContextName, &i.Bulk, &i.MaxRepetitions,
		); err != nil {
			return err
		}
		hc.Interfaces = append(hc.Interfaces, i)
	}
	return ifRows.Err()
}
