package oauthflow

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is OAuth1a's mandated signature method, not used for anything else
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
)

// OAuth1RequestToken is the temporary credential pair issued by step one
// of the handshake (RequestTokenURL), exchanged for an access token pair
// once the user authorizes the request token.
type OAuth1RequestToken struct {
	Token  string
	Secret string
}

// RequestOAuth1Token performs the handshake's first leg: obtaining a
// temporary request token/secret pair, signed with an empty token secret
// per RFC 5849 §6.1.
func (c *Coordinator) RequestOAuth1Token(ctx context.Context, client *http.Client, cfg *domain.OAuth1ClientConfig, callbackURL string) (OAuth1RequestToken, error) {
	params := baseOAuth1Params(cfg.ConsumerKey)
	params.Set("oauth_callback", callbackURL)

	signed, err := signOAuth1(http.MethodPost, cfg.RequestTokenURL, params, cfg.ConsumerSecret, "")
	if err != nil {
		return OAuth1RequestToken{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RequestTokenURL, nil)
	if err != nil {
		return OAuth1RequestToken{}, errors.NewUnexpectedAddonError("building oauth1 request-token request", err)
	}
	req.Header.Set("Authorization", authorizationHeader(signed))

	resp, err := client.Do(req)
	if err != nil {
		return OAuth1RequestToken{}, errors.NewCredentialError("requesting oauth1 request token", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OAuth1RequestToken{}, errors.NewCredentialError("reading oauth1 request-token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return OAuth1RequestToken{}, errors.NewCredentialError(fmt.Sprintf("oauth1 request-token endpoint returned %d", resp.StatusCode), nil)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return OAuth1RequestToken{}, errors.NewCredentialError("parsing oauth1 request-token response", err)
	}
	return OAuth1RequestToken{Token: values.Get("oauth_token"), Secret: values.Get("oauth_token_secret")}, nil
}

// AuthorizeURL builds the URL to send the user's browser to for the
// handshake's second leg.
func AuthorizeURL(cfg *domain.OAuth1ClientConfig, requestToken string) string {
	u, _ := url.Parse(cfg.AuthorizeURL)
	q := u.Query()
	q.Set("oauth_token", requestToken)
	u.RawQuery = q.Encode()
	return u.String()
}

// CompleteOAuth1 performs the handshake's third leg: exchanging the
// authorized request token (plus the verifier the callback supplied) for
// a permanent access token pair.
func (c *Coordinator) CompleteOAuth1(ctx context.Context, client *http.Client, cfg *domain.OAuth1ClientConfig, requestToken, requestTokenSecret, verifier string) (credentials.OAuth1, error) {
	params := baseOAuth1Params(cfg.ConsumerKey)
	params.Set("oauth_token", requestToken)
	params.Set("oauth_verifier", verifier)

	signed, err := signOAuth1(http.MethodPost, cfg.AccessTokenURL, params, cfg.ConsumerSecret, requestTokenSecret)
	if err != nil {
		return credentials.OAuth1{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AccessTokenURL, nil)
	if err != nil {
		return credentials.OAuth1{}, errors.NewUnexpectedAddonError("building oauth1 access-token request", err)
	}
	req.Header.Set("Authorization", authorizationHeader(signed))

	resp, err := client.Do(req)
	if err != nil {
		return credentials.OAuth1{}, errors.NewCredentialError("requesting oauth1 access token", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return credentials.OAuth1{}, errors.NewCredentialError("reading oauth1 access-token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return credentials.OAuth1{}, errors.NewCredentialError(fmt.Sprintf("oauth1 access-token endpoint returned %d", resp.StatusCode), nil)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return credentials.OAuth1{}, errors.NewCredentialError("parsing oauth1 access-token response", err)
	}
	return credentials.NewOAuth1(values.Get("oauth_token"), values.Get("oauth_token_secret"))
}

func baseOAuth1Params(consumerKey string) url.Values {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	params := url.Values{}
	params.Set("oauth_consumer_key", consumerKey)
	params.Set("oauth_nonce", base64.RawURLEncoding.EncodeToString(nonce))
	params.Set("oauth_signature_method", "HMAC-SHA1")
	params.Set("oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	params.Set("oauth_version", "1.0")
	return params
}

// signOAuth1 computes the oauth_signature per RFC 5849 §3.4 and returns
// params with it set.
func signOAuth1(method, rawURL string, params url.Values, consumerSecret, tokenSecret string) (url.Values, error) {
	base, err := signatureBaseString(method, rawURL, params)
	if err != nil {
		return nil, err
	}
	key := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("oauth_signature", sig)
	return signed, nil
}

func signatureBaseString(method, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.NewUnexpectedAddonError("parsing oauth1 endpoint URL", err)
	}
	u.RawQuery = ""

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range params[k] {
			pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
		}
	}
	normalizedParams := strings.Join(pairs, "&")

	return strings.ToUpper(method) + "&" + percentEncode(u.String()) + "&" + percentEncode(normalizedParams), nil
}

// percentEncode implements RFC 3986 unreserved-char percent encoding, the
// stricter variant OAuth1 requires (standard url.QueryEscape encodes
// spaces as '+' and is otherwise too permissive).
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func authorizationHeader(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "oauth_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, percentEncode(k), percentEncode(params.Get(k))))
	}
	return "OAuth " + strings.Join(pairs, ", ")
}
