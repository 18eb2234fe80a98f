package store

import "database/sql"

// Migrations returns the schema for the configuration store.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create host configuration tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS host_config (
						id               INTEGER PRIMARY KEY AUTOINCREMENT,
						object_id        INTEGER NOT NULL,
						name             TEXT    NOT NULL UNIQUE,
						enabled          INTEGER NOT NULL DEFAULT 1,
						status           TEXT    NOT NULL DEFAULT 'enabled',
						monitored_by     TEXT    NOT NULL DEFAULT '',
						description      TEXT    NOT NULL DEFAULT '',
						host_id          TEXT    NOT NULL DEFAULT '',
						inventory_mode   TEXT    NOT NULL DEFAULT 'disabled',
						ip_assignment    TEXT    NOT NULL DEFAULT 'primary',
						tls_connect      TEXT    NOT NULL DEFAULT 'none',
						tls_psk_identity TEXT    NOT NULL DEFAULT '',
						tls_psk          TEXT    NOT NULL DEFAULT '',
						primary_ip       TEXT    NOT NULL DEFAULT '',
						primary_dns      TEXT    NOT NULL DEFAULT '',
						proxy_id         INTEGER REFERENCES proxy(id),
						proxy_group_id   INTEGER REFERENCES proxy_group(id),
						tags_json        TEXT    NOT NULL DEFAULT '[]',
						facts_json       TEXT    NOT NULL DEFAULT '{}'
					)`,
					`CREATE TABLE IF NOT EXISTS template (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						name        TEXT NOT NULL,
						template_id TEXT NOT NULL UNIQUE
					)`,
					`CREATE TABLE IF NOT EXISTS host_group (
						id       INTEGER PRIMARY KEY AUTOINCREMENT,
						name     TEXT NOT NULL UNIQUE,
						group_id TEXT NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS proxy (
						id       INTEGER PRIMARY KEY AUTOINCREMENT,
						name     TEXT NOT NULL,
						proxy_id TEXT NOT NULL UNIQUE
					)`,
					`CREATE TABLE IF NOT EXISTS proxy_group (
						id             INTEGER PRIMARY KEY AUTOINCREMENT,
						name           TEXT NOT NULL,
						proxy_group_id TEXT NOT NULL UNIQUE
					)`,
					`CREATE TABLE IF NOT EXISTS host_config_template (
						host_config_id INTEGER NOT NULL REFERENCES host_config(id) ON DELETE CASCADE,
						template_id    INTEGER NOT NULL REFERENCES template(id),
						PRIMARY KEY (host_config_id, template_id)
					)`,
					`CREATE TABLE IF NOT EXISTS host_config_group (
						host_config_id INTEGER NOT NULL REFERENCES host_config(id) ON DELETE CASCADE,
						group_id       INTEGER NOT NULL REFERENCES host_group(id),
						PRIMARY KEY (host_config_id, group_id)
					)`,
					`CREATE TABLE IF NOT EXISTS host_interface (
						id              INTEGER PRIMARY KEY AUTOINCREMENT,
						host_config_id  INTEGER NOT NULL REFERENCES host_config(id) ON DELETE CASCADE,
						kind            TEXT    NOT NULL,
						netif_id        INTEGER NOT NULL DEFAULT 0,
						address         TEXT    NOT NULL DEFAULT '',
						dns_name        TEXT    NOT NULL DEFAULT '',
						port            INTEGER NOT NULL,
						interface_id    INTEGER NOT NULL DEFAULT 0,
						main            INTEGER NOT NULL DEFAULT 0,
						use_ip          INTEGER NOT NULL DEFAULT 1,
						security_name   TEXT    NOT NULL DEFAULT '',
						security_level  INTEGER NOT NULL DEFAULT 0,
						auth_protocol   INTEGER NOT NULL DEFAULT 0,
						auth_passphrase TEXT    NOT NULL DEFAULT '',
						priv_protocol   INTEGER NOT NULL DEFAULT 0,
						priv_passphrase TEXT    NOT NULL DEFAULT '',
						context_name    TEXT    NOT NULL DEFAULT '',
						bulk            INTEGER NOT NULL DEFAULT 1,
						max_repetitions INTEGER NOT NULL DEFAULT 10
					)`,
					`CREATE INDEX IF NOT EXISTS idx_host_interface_config ON host_interface(host_config_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "create address and mapping rule tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS address (
						id        INTEGER PRIMARY KEY AUTOINCREMENT,
						object_id INTEGER NOT NULL,
						address   TEXT    NOT NULL,
						dns_name  TEXT    NOT NULL DEFAULT '',
						netif_id  INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX IF NOT EXISTS idx_address_object ON address(object_id)`,
					`CREATE TABLE IF NOT EXISTS tag_mapping (
						id      INTEGER PRIMARY KEY AUTOINCREMENT,
						kind    TEXT    NOT NULL,
						name    TEXT    NOT NULL,
						path    TEXT    NOT NULL DEFAULT '',
						enabled INTEGER NOT NULL DEFAULT 1
					)`,
					`CREATE TABLE IF NOT EXISTS inventory_mapping (
						id         INTEGER PRIMARY KEY AUTOINCREMENT,
						key        TEXT    NOT NULL UNIQUE,
						paths_json TEXT    NOT NULL DEFAULT '[]',
						enabled    INTEGER NOT NULL DEFAULT 1
					)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
