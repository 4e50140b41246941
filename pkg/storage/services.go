package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
)

// ServiceRepository persists ExternalServices: the static catalogue of
// which addon implementation backs a service, where its API lives, and
// (for OAuth services) the client credentials and endpoints to drive the
// handshake.
type ServiceRepository struct {
	db *DB
}

func NewServiceRepository(db *DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Create inserts a new ExternalService.
func (r *ServiceRepository) Create(ctx context.Context, s domain.ExternalService) error {
	oauth1JSON, oauth2JSON, err := marshalServiceConfigs(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO external_services
			(id, name, addon_imp_key, base_url, auth_type, oauth1_config_json, oauth2_config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.AddonImpKey, s.BaseURL, string(s.AuthType), oauth1JSON, oauth2JSON)
	if err != nil {
		return gverrors.NewUnexpectedAddonError("inserting external service", err)
	}
	return nil
}

// Get fetches a single ExternalService by id.
func (r *ServiceRepository) Get(ctx context.Context, id string) (domain.ExternalService, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, addon_imp_key, base_url, auth_type, oauth1_config_json, oauth2_config_json
		FROM external_services WHERE id = ?`, id)
	return scanService(row)
}

// ListAll returns every registered ExternalService, used by the CLI's
// `services` subcommand.
func (r *ServiceRepository) ListAll(ctx context.Context) ([]domain.ExternalService, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, addon_imp_key, base_url, auth_type, oauth1_config_json, oauth2_config_json
		FROM external_services`)
	if err != nil {
		return nil, gverrors.NewUnexpectedAddonError("listing external services", err)
	}
	defer rows.Close()

	var out []domain.ExternalService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func marshalServiceConfigs(s domain.ExternalService) (oauth1JSON, oauth2JSON sql.NullString, err error) {
	if s.OAuth1Config != nil {
		b, marshalErr := json.Marshal(s.OAuth1Config)
		if marshalErr != nil {
			return oauth1JSON, oauth2JSON, gverrors.NewUnexpectedAddonError("marshaling oauth1 config", marshalErr)
		}
		oauth1JSON = sql.NullString{String: string(b), Valid: true}
	}
	if s.OAuth2Config != nil {
		b, marshalErr := json.Marshal(s.OAuth2Config)
		if marshalErr != nil {
			return oauth1JSON, oauth2JSON, gverrors.NewUnexpectedAddonError("marshaling oauth2 config", marshalErr)
		}
		oauth2JSON = sql.NullString{String: string(b), Valid: true}
	}
	return oauth1JSON, oauth2JSON, nil
}

func scanService(row scannable) (domain.ExternalService, error) {
	var (
		s          domain.ExternalService
		authType   string
		oauth1JSON sql.NullString
		oauth2JSON sql.NullString
	)
	err := row.Scan(&s.ID, &s.Name, &s.AddonImpKey, &s.BaseURL, &authType, &oauth1JSON, &oauth2JSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExternalService{}, gverrors.New(gverrors.InvalidArguments, "external service not found", err)
	}
	if err != nil {
		return domain.ExternalService{}, gverrors.NewUnexpectedAddonError("scanning external service row", err)
	}
	s.AuthType = domain.AuthType(authType)

	if oauth1JSON.Valid {
		var cfg domain.OAuth1ClientConfig
		if err := json.Unmarshal([]byte(oauth1JSON.String), &cfg); err != nil {
			return domain.ExternalService{}, gverrors.NewUnexpectedAddonError("unmarshaling oauth1 config", err)
		}
		s.OAuth1Config = &cfg
	}
	if oauth2JSON.Valid {
		var cfg domain.OAuth2ClientConfig
		if err := json.Unmarshal([]byte(oauth2JSON.String), &cfg); err != nil {
			return domain.ExternalService{}, gverrors.NewUnexpectedAddonError("unmarshaling oauth2 config", err)
		}
		s.OAuth2Config = &cfg
	}
	return s, nil
}
