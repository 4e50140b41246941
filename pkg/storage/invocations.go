package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
)

// InvocationRepository persists OperationInvocations and implements the
// CAS-based dibs lease: AcquireDibs only succeeds if no other holder's
// lease is still live, so concurrent dispatch attempts for the same
// invocation never both proceed.
type InvocationRepository struct {
	db *DB
}

func NewInvocationRepository(db *DB) *InvocationRepository {
	return &InvocationRepository{db: db}
}

func (r *InvocationRepository) Create(ctx context.Context, inv domain.OperationInvocation) error {
	argsJSON, err := json.Marshal(inv.Arguments)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("marshaling invocation arguments", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO operation_invocations
			(id, addon_id, operation_name, arguments_json, status, created_at_utc, updated_at_utc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AddonID, inv.OperationName, string(argsJSON), inv.Status, inv.CreatedAtUTC.Unix(), inv.UpdatedAtUTC.Unix())
	if err != nil {
		return gverrors.NewUnexpectedAddonError("inserting operation invocation", err)
	}
	return nil
}

// AcquireDibs attempts to claim the invocation for holder until
// leaseExpiresAt, succeeding only if the row is still STARTING or its
// prior lease has expired. Mirrors the compare-and-swap the original's
// "dibs" mechanism performs to guarantee at-most-one worker executes a
// given deferred operation.
func (r *InvocationRepository) AcquireDibs(ctx context.Context, id, holder string, leaseExpiresAt, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE operation_invocations
		SET status = ?, dibs_holder = ?, dibs_expires_at_utc = ?, updated_at_utc = ?
		WHERE id = ? AND (status = ? OR (status = ? AND dibs_expires_at_utc < ?))`,
		domain.StatusInProgress, holder, leaseExpiresAt.Unix(), now.Unix(),
		id, domain.StatusStarting, domain.StatusInProgress, now.Unix())
	if err != nil {
		return false, gverrors.NewUnexpectedAddonError("acquiring dibs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, gverrors.NewUnexpectedAddonError("checking dibs acquisition result", err)
	}
	return n == 1, nil
}

// Complete records a terminal SUCCESS/PROBLEM outcome.
func (r *InvocationRepository) Complete(ctx context.Context, id string, status domain.InvocationStatus, result any, errKind, errMessage string, now time.Time) error {
	var resultJSON sql.NullString
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return gverrors.NewUnexpectedAddonError("marshaling invocation result", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE operation_invocations
		SET status = ?, result_json = ?, error_kind = ?, error_message = ?, updated_at_utc = ?
		WHERE id = ?`, status, resultJSON, errKind, errMessage, now.Unix(), id)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("completing operation invocation", err)
	}
	return nil
}

// ListForAddon returns every OperationInvocation recorded against addonID,
// most recent first.
func (r *InvocationRepository) ListForAddon(ctx context.Context, addonID string) ([]domain.OperationInvocation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM operation_invocations WHERE addon_id = ? ORDER BY created_at_utc DESC`, addonID)
	if err != nil {
		return nil, gverrors.NewUnexpectedAddonError("listing operation invocations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, gverrors.NewUnexpectedAddonError("scanning operation invocation id", err)
		}
		ids = append(ids, id)
	}

	out := make([]domain.OperationInvocation, 0, len(ids))
	for _, id := range ids {
		inv, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *InvocationRepository) Get(ctx context.Context, id string) (domain.OperationInvocation, error) {
	var (
		inv             domain.OperationInvocation
		argsJSON        string
		resultJSON      sql.NullString
		dibsExpiresUnix sql.NullInt64
		createdAtUnix   int64
		updatedAtUnix   int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, addon_id, operation_name, arguments_json, status, result_json,
		       error_kind, error_message, dibs_holder, dibs_expires_at_utc,
		       created_at_utc, updated_at_utc
		FROM operation_invocations WHERE id = ?`, id).Scan(
		&inv.ID, &inv.AddonID, &inv.OperationName, &argsJSON, &inv.Status, &resultJSON,
		&inv.ErrorKind, &inv.ErrorMessage, &inv.DibsHolder, &dibsExpiresUnix,
		&createdAtUnix, &updatedAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OperationInvocation{}, gverrors.New(gverrors.InvalidArguments, "operation invocation not found", err)
	}
	if err != nil {
		return domain.OperationInvocation{}, gverrors.NewUnexpectedAddonError("scanning operation invocation row", err)
	}

	if err := json.Unmarshal([]byte(argsJSON), &inv.Arguments); err != nil {
		return domain.OperationInvocation{}, gverrors.NewUnexpectedAddonError("unmarshaling invocation arguments", err)
	}
	if resultJSON.Valid {
		if err := json.Unmarshal([]byte(resultJSON.String), &inv.Result); err != nil {
			return domain.OperationInvocation{}, gverrors.NewUnexpectedAddonError("unmarshaling invocation result", err)
		}
	}
	if dibsExpiresUnix.Valid {
		t := time.Unix(dibsExpiresUnix.Int64, 0).UTC()
		inv.DibsExpiresAtUTC = &t
	}
	inv.CreatedAtUTC = time.Unix(createdAtUnix, 0).UTC()
	inv.UpdatedAtUTC = time.Unix(updatedAtUnix, 0).UTC()
	return inv, nil
}
