package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
)

// AccountRepository persists AuthorizedAccounts.
type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new AuthorizedAccount.
func (r *AccountRepository) Create(ctx context.Context, a domain.AuthorizedAccount) error {
	paramsJSON, err := json.Marshal(a.Credentials.Sealed.Params)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("marshaling credential params", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO authorized_accounts
			(id, platform_user_id, service_id, display_name, remote_account_id,
			 credentials_kind, credentials_params_json, credentials_ciphertext,
			 capabilities, created_at_utc, deactivated_at_utc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.User.PlatformUserID, a.ServiceID, a.DisplayName, a.RemoteAccountID,
		a.Credentials.Kind, string(paramsJSON), a.Credentials.Sealed.Ciphertext,
		uint32(a.Capabilities), a.CreatedAtUTC.Unix(), nullableTime(a.DeactivatedAtUTC))
	if err != nil {
		return gverrors.NewUnexpectedAddonError("inserting authorized account", err)
	}
	return nil
}

// Get fetches a single AuthorizedAccount by id.
func (r *AccountRepository) Get(ctx context.Context, id string) (domain.AuthorizedAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform_user_id, service_id, display_name, remote_account_id,
		       credentials_kind, credentials_params_json, credentials_ciphertext,
		       capabilities, created_at_utc, deactivated_at_utc
		FROM authorized_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListForUser returns every AuthorizedAccount belonging to platformUserID,
// including deactivated ones (callers filter via IsActive as needed).
func (r *AccountRepository) ListForUser(ctx context.Context, platformUserID string) ([]domain.AuthorizedAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, platform_user_id, service_id, display_name, remote_account_id,
		       credentials_kind, credentials_params_json, credentials_ciphertext,
		       capabilities, created_at_utc, deactivated_at_utc
		FROM authorized_accounts WHERE platform_user_id = ?`, platformUserID)
	if err != nil {
		return nil, gverrors.NewUnexpectedAddonError("listing authorized accounts", err)
	}
	defer rows.Close()

	var out []domain.AuthorizedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Deactivate marks an account inactive as of now.
func (r *AccountRepository) Deactivate(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorized_accounts SET deactivated_at_utc = ?
		WHERE id = ? AND deactivated_at_utc IS NULL`, now.Unix(), id)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("deactivating account", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return gverrors.New(gverrors.InvalidArguments, "account not found or already deactivated", nil)
	}
	return nil
}

// UpdateCredentials replaces an account's sealed credentials, used after
// an OAuth2 refresh or a key-rotation pass.
func (r *AccountRepository) UpdateCredentials(ctx context.Context, id string, sealed crypto.Sealed) error {
	paramsJSON, err := json.Marshal(sealed.Params)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("marshaling credential params", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE authorized_accounts SET credentials_params_json = ?, credentials_ciphertext = ?
		WHERE id = ?`, string(paramsJSON), sealed.Ciphertext, id)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("updating account credentials", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAccount(row scannable) (domain.AuthorizedAccount, error) {
	var (
		a              domain.AuthorizedAccount
		paramsJSON     string
		capabilities   uint32
		createdAtUnix  int64
		deactivatedAt  sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.User.PlatformUserID, &a.ServiceID, &a.DisplayName, &a.RemoteAccountID,
		&a.Credentials.Kind, &paramsJSON, &a.Credentials.Sealed.Ciphertext,
		&capabilities, &createdAtUnix, &deactivatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorizedAccount{}, gverrors.New(gverrors.InvalidArguments, "authorized account not found", err)
	}
	if err != nil {
		return domain.AuthorizedAccount{}, gverrors.NewUnexpectedAddonError("scanning authorized account row", err)
	}

	if err := json.Unmarshal([]byte(paramsJSON), &a.Credentials.Sealed.Params); err != nil {
		return domain.AuthorizedAccount{}, gverrors.NewUnexpectedAddonError("unmarshaling credential params", err)
	}
	a.Capabilities = domain.CapabilitySet(capabilities)
	a.CreatedAtUTC = time.Unix(createdAtUnix, 0).UTC()
	if deactivatedAt.Valid {
		t := time.Unix(deactivatedAt.Int64, 0).UTC()
		a.DeactivatedAtUTC = &t
	}
	return a, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
