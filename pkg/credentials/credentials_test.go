package credentials

import (
	"testing"

	"github.com/cos/gravyvalet/pkg/crypto"
)

func TestAccessToken_IterAuthHeaders(t *testing.T) {
	c, err := NewAccessToken("tok123")
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	headers := c.IterAuthHeaders()
	if len(headers) != 1 || headers[0].Value != "Bearer tok123" {
		t.Errorf("IterAuthHeaders() = %+v, want single Bearer header", headers)
	}
}

func TestNewAccessToken_RejectsEmpty(t *testing.T) {
	if _, err := NewAccessToken(""); err == nil {
		t.Error("NewAccessToken(\"\") want error, got nil")
	}
}

func TestUsernamePassword_IterAuthHeaders(t *testing.T) {
	c, err := NewUsernamePassword("alice", "hunter2")
	if err != nil {
		t.Fatalf("NewUsernamePassword() error = %v", err)
	}
	headers := c.IterAuthHeaders()
	if len(headers) != 1 || headers[0].Name != "Authorization" {
		t.Fatalf("IterAuthHeaders() = %+v", headers)
	}
	if headers[0].Value != "Basic YWxpY2U6aHVudGVyMg==" {
		t.Errorf("IterAuthHeaders() value = %q", headers[0].Value)
	}
}

func TestNewOAuth2_RequiresAccessToken(t *testing.T) {
	if _, err := NewOAuth2("", "refresh", 0); err == nil {
		t.Error("NewOAuth2 with empty access token: want error, got nil")
	}
	c, err := NewOAuth2("access", "refresh", 1700000000)
	if err != nil {
		t.Fatalf("NewOAuth2() error = %v", err)
	}
	if c.IterAuthHeaders()[0].Value != "Bearer access" {
		t.Errorf("IterAuthHeaders() = %+v", c.IterAuthHeaders())
	}
}

func TestNewOAuth1_RequiresBothFields(t *testing.T) {
	if _, err := NewOAuth1("token", ""); err == nil {
		t.Error("NewOAuth1 with empty secret: want error, got nil")
	}
	if _, err := NewOAuth1("", "secret"); err == nil {
		t.Error("NewOAuth1 with empty token: want error, got nil")
	}
	c, err := NewOAuth1("token", "secret")
	if err != nil {
		t.Fatalf("NewOAuth1() error = %v", err)
	}
	if c.OAuthToken != "token" || c.OAuthTokenSecret != "secret" {
		t.Errorf("NewOAuth1() = %+v", c)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		c    Credentials
		want Kind
	}{
		{"access token", AccessToken{Token: "t"}, KindAccessToken},
		{"access key secret key", AccessKeySecretKey{AccessKey: "a", SecretKey: "s"}, KindAccessKeySecretKey},
		{"username password", UsernamePassword{Username: "u", Password: "p"}, KindUsernamePassword},
		{"oauth1", OAuth1{OAuthToken: "t", OAuthTokenSecret: "s"}, KindOAuth1},
		{"oauth2", OAuth2{AccessToken: "t"}, KindOAuth2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KindOf(tt.c)
			if err != nil {
				t.Fatalf("KindOf() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnseal_RoundTrip(t *testing.T) {
	ring := crypto.NewRing("current-secret")
	params, err := crypto.DefaultKeyParameters()
	if err != nil {
		t.Fatalf("DefaultKeyParameters() error = %v", err)
	}

	tests := []struct {
		name string
		c    Credentials
		kind Kind
	}{
		{"access token", AccessToken{Token: "tok"}, KindAccessToken},
		{"access key secret key", AccessKeySecretKey{AccessKey: "ak", SecretKey: "sk"}, KindAccessKeySecretKey},
		{"username password", UsernamePassword{Username: "alice", Password: "hunter2"}, KindUsernamePassword},
		{"oauth1", OAuth1{OAuthToken: "t", OAuthTokenSecret: "s"}, KindOAuth1},
		{"oauth2", OAuth2{AccessToken: "a", RefreshToken: "r", ExpiresAtUTC: 1700000000}, KindOAuth2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := crypto.EncryptJSON(ring, params, tt.c)
			if err != nil {
				t.Fatalf("EncryptJSON() error = %v", err)
			}
			got, err := Unseal(ring, tt.kind, sealed)
			if err != nil {
				t.Fatalf("Unseal() error = %v", err)
			}
			if got != tt.c {
				t.Errorf("Unseal() = %+v, want %+v", got, tt.c)
			}
		})
	}
}

func TestUnseal_UnrecognizedKind(t *testing.T) {
	ring := crypto.NewRing("current-secret")
	params, err := crypto.DefaultKeyParameters()
	if err != nil {
		t.Fatalf("DefaultKeyParameters() error = %v", err)
	}
	sealed, err := crypto.EncryptJSON(ring, params, AccessToken{Token: "tok"})
	if err != nil {
		t.Fatalf("EncryptJSON() error = %v", err)
	}
	if _, err := Unseal(ring, "carrier-pigeon", sealed); err == nil {
		t.Error("Unseal() with unrecognized kind: want error, got nil")
	}
}
