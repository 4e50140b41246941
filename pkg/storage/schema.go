// Package storage implements the persisted state layer: SQLite-backed
// repositories for ExternalServices, AuthorizedAccounts, ConfiguredAddons,
// and OperationInvocations, plus the schema migration that creates them.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cos/gravyvalet/pkg/errors"
)

// schemaSQL creates every table the gateway needs, with lookup indices on
// authorized_accounts (platform_user_id, service_id), configured_addons
// (platform_resource_id), and operation_invocations (addon_id,
// created_at_utc) and (operation_name).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS external_services (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	addon_imp_key TEXT NOT NULL,
	base_url TEXT NOT NULL DEFAULT '',
	auth_type TEXT NOT NULL,
	oauth1_config_json TEXT,
	oauth2_config_json TEXT
);

CREATE TABLE IF NOT EXISTS authorized_accounts (
	id TEXT PRIMARY KEY,
	platform_user_id TEXT NOT NULL,
	service_id TEXT NOT NULL REFERENCES external_services(id),
	display_name TEXT NOT NULL,
	remote_account_id TEXT NOT NULL DEFAULT '',
	credentials_kind TEXT NOT NULL,
	credentials_params_json TEXT NOT NULL,
	credentials_ciphertext BLOB NOT NULL,
	capabilities INTEGER NOT NULL,
	created_at_utc INTEGER NOT NULL,
	deactivated_at_utc INTEGER
);
CREATE INDEX IF NOT EXISTS idx_authorized_accounts_user_service
	ON authorized_accounts (platform_user_id, service_id);

CREATE TABLE IF NOT EXISTS configured_addons (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES authorized_accounts(id),
	platform_resource_id TEXT NOT NULL,
	capabilities INTEGER NOT NULL,
	root_folder_id TEXT NOT NULL DEFAULT '',
	created_at_utc INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_configured_addons_resource
	ON configured_addons (platform_resource_id);

CREATE TABLE IF NOT EXISTS operation_invocations (
	id TEXT PRIMARY KEY,
	addon_id TEXT NOT NULL REFERENCES configured_addons(id),
	operation_name TEXT NOT NULL,
	arguments_json TEXT NOT NULL,
	status TEXT NOT NULL,
	result_json TEXT,
	error_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	dibs_holder TEXT NOT NULL DEFAULT '',
	dibs_expires_at_utc INTEGER,
	created_at_utc INTEGER NOT NULL,
	updated_at_utc INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operation_invocations_addon
	ON operation_invocations (addon_id, created_at_utc);
CREATE INDEX IF NOT EXISTS idx_operation_invocations_operation_name
	ON operation_invocations (operation_name);
`

// DB wraps a *sql.DB opened against the gateway's SQLite file.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// Migrate against it.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewUnexpectedAddonError("opening sqlite database", err)
	}
	db := &DB{sqlDB}
	if err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema. It is idempotent: re-running it against an
// already-migrated database is a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.NewUnexpectedAddonError(fmt.Sprintf("applying schema: %v", err), err)
	}
	return nil
}
