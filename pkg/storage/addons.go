package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
)

// AddonRepository persists ConfiguredAddons.
type AddonRepository struct {
	db       *DB
	accounts *AccountRepository
}

func NewAddonRepository(db *DB, accounts *AccountRepository) *AddonRepository {
	return &AddonRepository{db: db, accounts: accounts}
}

func (r *AddonRepository) Create(ctx context.Context, a domain.ConfiguredAddon) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO configured_addons (id, account_id, platform_resource_id, capabilities, root_folder_id, created_at_utc)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Account.ID, a.Resource.PlatformResourceID, uint32(a.Capabilities), a.RootFolderID, a.CreatedAtUTC.Unix())
	if err != nil {
		return gverrors.NewUnexpectedAddonError("inserting configured addon", err)
	}
	return nil
}

func (r *AddonRepository) Get(ctx context.Context, id string) (domain.ConfiguredAddon, error) {
	var (
		addon         domain.ConfiguredAddon
		accountID     string
		capabilities  uint32
		createdAtUnix int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, platform_resource_id, capabilities, root_folder_id, created_at_utc
		FROM configured_addons WHERE id = ?`, id).
		Scan(&addon.ID, &accountID, &addon.Resource.PlatformResourceID, &capabilities, &addon.RootFolderID, &createdAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfiguredAddon{}, gverrors.New(gverrors.InvalidArguments, "configured addon not found", err)
	}
	if err != nil {
		return domain.ConfiguredAddon{}, gverrors.NewUnexpectedAddonError("scanning configured addon row", err)
	}

	account, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return domain.ConfiguredAddon{}, err
	}

	addon.Account = account
	addon.Capabilities = domain.CapabilitySet(capabilities)
	addon.CreatedAtUTC = time.Unix(createdAtUnix, 0).UTC()
	return addon, nil
}

// ListForResource returns every ConfiguredAddon attached to a platform
// resource.
func (r *AddonRepository) ListForResource(ctx context.Context, platformResourceID string) ([]domain.ConfiguredAddon, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM configured_addons WHERE platform_resource_id = ?`, platformResourceID)
	if err != nil {
		return nil, gverrors.NewUnexpectedAddonError("listing configured addons", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, gverrors.NewUnexpectedAddonError("scanning configured addon id", err)
		}
		ids = append(ids, id)
	}

	out := make([]domain.ConfiguredAddon, 0, len(ids))
	for _, id := range ids {
		addon, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, addon)
	}
	return out, nil
}
