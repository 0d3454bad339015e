package sheets

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	spreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"

	// tokenEarlyExpiry refreshes tokens a little before the server-side
	// deadline so in-flight requests never carry a stale one.
	tokenEarlyExpiry = time.Minute
)

// TokenSource mints bearer tokens for spreadsheet API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Tests use it; so do environments
// that inject pre-issued credentials.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}

// serviceAccountKey is the subset of the service account JSON file we read.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// TokenOptions configure a JWTTokenSource beyond its credentials.
type TokenOptions struct {
	Scope      string
	HTTPClient *http.Client
	Now        func() time.Time
}

// JWTTokenSource implements the service-account JWT bearer grant: sign an
// RS256 assertion, swap it for an access token, cache until near expiry.
type JWTTokenSource struct {
	key      serviceAccountKey
	signer   *rsa.PrivateKey
	scope    string
	tokenURL string
	client   *http.Client
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewJWTTokenSource(credentialsJSON []byte, opts TokenOptions) (*JWTTokenSource, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(credentialsJSON, &key); err != nil {
		return nil, fmt.Errorf("decode service account JSON: %w", err)
	}
	if strings.TrimSpace(key.ClientEmail) == "" {
		return nil, fmt.Errorf("service account JSON is missing client_email")
	}

	signer, err := parsePrivateKey(key.PrivateKey)
	if err != nil {
		return nil, err
	}

	scope := strings.TrimSpace(opts.Scope)
	if scope == "" {
		scope = spreadsheetsScope
	}
	tokenURL := strings.TrimSpace(key.TokenURI)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &JWTTokenSource{
		key:      key,
		signer:   signer,
		scope:    scope,
		tokenURL: tokenURL,
		client:   client,
		now:      now,
	}, nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("service account private_key is not PEM encoded")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("service account private_key is not an RSA key")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse service account private_key: %w", err)
	}
	return rsaKey, nil
}

// Token returns the cached access token, minting a fresh one when the cache
// is empty or close to expiring.
func (s *JWTTokenSource) Token(ctx context.Context) (string, error) {
	if s == nil || s.signer == nil {
		return "", fmt.Errorf("token source is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry) {
		return s.token, nil
	}

	assertion, err := s.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", fmt.Errorf("token response is missing access_token")
	}

	s.token = parsed.AccessToken
	s.expiry = s.now().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenEarlyExpiry)
	return s.token, nil
}

func (s *JWTTokenSource) signAssertion() (string, error) {
	now := s.now()
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]any{
		"iss":   s.key.ClientEmail,
		"scope": s.scope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshal assertion header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal assertion claims: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)
	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.signer, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
