package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
)

const tokenCacheKey = "kis:access_token"

// MetadataStore is the persistence the token source needs: a plain
// key-value table (satisfied by storage.Store).
type MetadataStore interface {
	GetMetadata(ctx context.Context, key string) (string, error)
	UpsertMetadata(ctx context.Context, key, value string, ts int64) error
}

type cachedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"access_token_token_expired"` // "2006-01-02 15:04:05"
}

// TokenSource issues and caches the oauth2 access token. KIS limits token
// issuance per day, so tokens survive restarts through the metadata store.
type TokenSource struct {
	cfg   *infra.Config
	store MetadataStore
	http  *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source. store may be nil, in which case
// tokens are held in memory only.
func NewTokenSource(cfg *infra.Config, store MetadataStore) *TokenSource {
	return &TokenSource{
		cfg:   cfg,
		store: store,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Token returns a valid access token, issuing a fresh one when the cached
// token is absent or expired.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.token != "" && now.Before(t.expiry) {
		return t.token, nil
	}

	if tok, exp, ok := t.loadCached(ctx, now); ok {
		t.token, t.expiry = tok, exp
		return tok, nil
	}

	return t.issue(ctx)
}

func (t *TokenSource) loadCached(ctx context.Context, now time.Time) (string, time.Time, bool) {
	if t.store == nil {
		return "", time.Time{}, false
	}
	raw, err := t.store.GetMetadata(ctx, tokenCacheKey)
	if err != nil || raw == "" {
		return "", time.Time{}, false
	}
	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return "", time.Time{}, false
	}
	exp, err := time.ParseInLocation("2006-01-02 15:04:05", cached.ExpiresAt, time.Local)
	if err != nil || !now.Before(exp) {
		return "", time.Time{}, false
	}
	return cached.AccessToken, exp, true
}

func (t *TokenSource) issue(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     t.cfg.API.AppKey,
		"appsecret":  t.cfg.API.AppSecret,
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		ExpiredAt   string `json:"access_token_token_expired"`
	}
	if err := t.post(ctx, "oauth2/tokenP", body, &resp); err != nil {
		return "", fmt.Errorf("token issuance: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("token issuance: empty access_token in response")
	}

	exp, err := time.ParseInLocation("2006-01-02 15:04:05", resp.ExpiredAt, time.Local)
	if err != nil {
		// Fall back to expires_in with a safety margin.
		exp = time.Now().Add(time.Duration(resp.ExpiresIn-600) * time.Second)
	}

	t.token = resp.AccessToken
	t.expiry = exp

	if t.store != nil {
		cached, _ := json.Marshal(cachedToken{AccessToken: resp.AccessToken, ExpiresAt: exp.Format("2006-01-02 15:04:05")})
		if err := t.store.UpsertMetadata(ctx, tokenCacheKey, string(cached), time.Now().Unix()); err != nil {
			// Cache failure costs one issuance on the next restart, nothing more.
			return t.token, nil
		}
	}

	return t.token, nil
}

// ApprovalKey obtains the short-lived websocket approval credential.
// It is never cached; the vendor expects a fresh key per session.
func (t *TokenSource) ApprovalKey(ctx context.Context) (string, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     t.cfg.API.AppKey,
		"secretkey":  t.cfg.API.AppSecret,
	}

	var resp struct {
		ApprovalKey string `json:"approval_key"`
	}
	if err := t.post(ctx, "oauth2/Approval", body, &resp); err != nil {
		return "", fmt.Errorf("approval key: %w", err)
	}
	if resp.ApprovalKey == "" {
		return "", fmt.Errorf("approval key: empty approval_key in response")
	}
	return resp.ApprovalKey, nil
}

func (t *TokenSource) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.API.RestURL+"/"+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, truncate(data, 200))
	}

	return json.Unmarshal(data, out)
}
