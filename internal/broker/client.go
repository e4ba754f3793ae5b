package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
)

// Client talks to the KIS overseas-stock REST API. It owns token refresh,
// request signing headers, rate limiting, and the translation of rt_cd
// business codes into typed errors. One Client serves both the polling
// loop and the push channel's credential needs; all methods are safe for
// concurrent use.
type Client struct {
	cfg     *infra.Config
	http    *http.Client
	limiter *infra.RateLimiter
	tokens  *TokenSource
	breaker *infra.CircuitBreaker
}

// NewClient builds a client from the loaded configuration.
func NewClient(cfg *infra.Config, store MetadataStore) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: infra.NewKISLimiter(cfg.API.Virtual),
		tokens:  NewTokenSource(cfg, store),
		breaker: infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("kis-order")),
	}
}

// ApprovalKey obtains the websocket credential for the push channel.
func (c *Client) ApprovalKey(ctx context.Context) (string, error) {
	return c.tokens.ApprovalKey(ctx)
}

// trID returns the transaction id for the environment: virtual accounts
// use the same ids with the leading character replaced by V.
func (c *Client) trID(real string) string {
	if c.cfg.API.Virtual && len(real) > 0 {
		return "V" + real[1:]
	}
	return real
}

// apiEnvelope is the common KIS response wrapper. Endpoint-specific
// output blocks stay raw until the caller unmarshals them.
type apiEnvelope struct {
	RtCd    string          `json:"rt_cd"`
	MsgCd   string          `json:"msg_cd"`
	Msg1    string          `json:"msg1"`
	Output  json.RawMessage `json:"output"`
	Output1 json.RawMessage `json:"output1"`
	Output2 json.RawMessage `json:"output2"`
	Output3 json.RawMessage `json:"output3"`
	// Continuation cursor, echoed verbatim on the next page request.
	CtxAreaFK200 string `json:"ctx_area_fk200"`
	CtxAreaNK200 string `json:"ctx_area_nk200"`
}

// send performs one authenticated API exchange. trCont is the
// continuation flag ("" for a first call, "N" for follow-up pages); the
// returned string is the response's continuation status.
func (c *Client) send(ctx context.Context, method, path, trID, trCont string, query url.Values, body any) (*apiEnvelope, string, error) {
	c.limiter.Wait()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("access token: %w", err)
	}

	endpoint := c.cfg.API.RestURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.cfg.API.AppKey)
	req.Header.Set("appsecret", c.cfg.API.AppSecret)
	req.Header.Set("tr_id", trID)
	if trCont != "" {
		req.Header.Set("tr_cont", trCont)
	}
	// Minute-chart queries additionally require the personal customer type.
	if trID == "HHDFS76950200" {
		req.Header.Set("custtype", "P")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("kis %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("kis %s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("kis %s %s: status %d: %s", method, path, resp.StatusCode, truncate(raw, 200))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("kis %s %s: decode: %w", method, path, err)
	}

	if env.RtCd != "0" {
		return nil, "", &BusinessError{TrID: trID, MsgCd: env.MsgCd, Msg: env.Msg1}
	}

	return &env, resp.Header.Get("tr_cont"), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
