package oauthflow

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cos/gravyvalet/pkg/errors"
)

// pendingOAuth1Claims is signed into a short-lived cookie value while the
// user is off at the provider's authorize page: a signed, stateless token
// the callback can verify without a server-side session store.
type pendingOAuth1Claims struct {
	jwt.RegisteredClaims
	AccountID          string `json:"account_id"`
	RequestToken       string `json:"request_token"`
	RequestTokenSecret string `json:"request_token_secret"`
}

// SignPendingOAuth1 produces the token to stash (as a cookie or in the
// redirect URL's state-equivalent parameter) between RequestOAuth1Token
// and CompleteOAuth1.
func (c *Coordinator) SignPendingOAuth1(accountID string, reqToken OAuth1RequestToken) (string, error) {
	claims := pendingOAuth1Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		AccountID:          accountID,
		RequestToken:       reqToken.Token,
		RequestTokenSecret: reqToken.Secret,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.stateSigningKey)
	if err != nil {
		return "", errors.NewUnexpectedAddonError("signing oauth1 pending-account token", err)
	}
	return signed, nil
}

// PendingOAuth1 is what a pending-account token resolves to.
type PendingOAuth1 struct {
	AccountID          string
	RequestToken       string
	RequestTokenSecret string
}

// ResolvePendingOAuth1 validates and decodes a token produced by
// SignPendingOAuth1, additionally checking that the oauth_token the
// provider's callback echoed back matches the one we started the
// handshake with, before trusting the verifier.
func (c *Coordinator) ResolvePendingOAuth1(token, callbackOAuthToken string) (PendingOAuth1, error) {
	var claims pendingOAuth1Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.stateSigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return PendingOAuth1{}, errors.NewUnauthorized("oauth1 pending-account token is invalid or expired", err)
	}
	if claims.RequestToken != callbackOAuthToken {
		return PendingOAuth1{}, errors.NewUnauthorized("oauth1 callback token does not match the pending handshake", nil)
	}
	return PendingOAuth1{AccountID: claims.AccountID, RequestToken: claims.RequestToken, RequestTokenSecret: claims.RequestTokenSecret}, nil
}
