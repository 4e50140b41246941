package domain

import "testing"

func TestExternalService_Validate(t *testing.T) {
	tests := []struct {
		name    string
		svc     ExternalService
		wantErr bool
	}{
		{
			name:    "oauth2 with config",
			svc:     ExternalService{AuthType: AuthOAuth2, OAuth2Config: &OAuth2ClientConfig{ClientID: "x"}},
			wantErr: false,
		},
		{
			name:    "oauth2 without config",
			svc:     ExternalService{AuthType: AuthOAuth2},
			wantErr: true,
		},
		{
			name:    "oauth1 without config",
			svc:     ExternalService{AuthType: AuthOAuth1},
			wantErr: true,
		},
		{
			name:    "static token with oauth config",
			svc:     ExternalService{AuthType: AuthStaticToken, OAuth2Config: &OAuth2ClientConfig{}},
			wantErr: true,
		},
		{
			name:    "static token bare",
			svc:     ExternalService{AuthType: AuthStaticToken},
			wantErr: false,
		},
		{
			name:    "unrecognized auth type",
			svc:     ExternalService{AuthType: "carrier-pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.svc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOAuth2Quirks_Has(t *testing.T) {
	q := QuirkRequiresAccessTypeOffline | QuirkRefreshDoesNotRotateRefreshToken
	if !q.Has(QuirkRequiresAccessTypeOffline) {
		t.Error("Has(QuirkRequiresAccessTypeOffline) = false")
	}
	if q.Has(QuirkRequiresApprovalPromptForce) {
		t.Error("Has(QuirkRequiresApprovalPromptForce) = true")
	}
}
