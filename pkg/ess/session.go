package ess

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/metrics"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

const semsLoginPath = "/api/v2/Common/Crosslogin"

// preAuthToken is sent in the Token header of the login request. The portal
// only accepts these exact bytes.
const preAuthToken = `{"uid": "", "timestamp": 0, "token": "", "client": "web", "version": "", "language": "en"}`

// RegionBaseURL returns the portal root for a region such as "eu" or "us".
func RegionBaseURL(region string) string {
	return fmt.Sprintf("https://%s.semsportal.com", region)
}

// Session holds the token issued by the SEMS portal. The token has no
// client-side expiry and is only replaced by logging in again.
type Session struct {
	client  *http.Client
	baseURL func(region string) string

	mu       sync.RWMutex
	current  types.Session
	password string

	refresh singleflight.Group
}

// NewSession returns a Session that has not logged in yet.
func NewSession(client *http.Client) *Session {
	return &Session{
		client:  client,
		baseURL: RegionBaseURL,
	}
}

// Token returns the current session token, empty before the first login.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// BaseURL returns the portal root of the logged in region.
func (s *Session) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL(s.current.Region)
}

// Current returns a copy of the session state.
func (s *Session) Current() types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

type crossloginRequest struct {
	Account   string `json:"account"`
	Pwd       string `json:"pwd"`
	Agreement int    `json:"agreement_agreement"`
	IsLocal   bool   `json:"is_local"`
}

type semsResponse struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// code normalizes the response code which the portal sends either as a
// number or as a string.
func (r semsResponse) code() string {
	return strings.Trim(strings.TrimSpace(string(r.Code)), `"`)
}

func (r semsResponse) hasData() bool {
	d := bytes.TrimSpace(r.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Login authenticates against the portal of region and stores the resulting
// token. Any failure is returned as a *types.AuthError.
func (s *Session) Login(ctx context.Context, account, password, region string) (types.Session, error) {
	start := time.Now()
	token, err := s.crosslogin(ctx, account, password, region)
	metrics.ObserveUpstream("Crosslogin", start, err)
	metrics.SessionLogins.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "sems login failed", slog.String("account", account), slog.Any("error", err))
		return types.Session{}, err
	}

	sess := types.Session{Token: token, Account: account, Region: region}
	s.mu.Lock()
	s.current = sess
	s.password = password
	s.mu.Unlock()

	log.Ctx(ctx).DebugContext(ctx, "sems login success", slog.String("account", account), slog.String("region", region))
	return sess, nil
}

func (s *Session) crosslogin(ctx context.Context, account, password, region string) (string, error) {
	if account == "" {
		return "", &types.AuthError{Message: "missing account"}
	}
	if password == "" {
		return "", &types.AuthError{Account: account, Message: "missing password"}
	}

	body, err := json.Marshal(crossloginRequest{Account: account, Pwd: password})
	if err != nil {
		return "", &types.AuthError{Account: account, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL(region)+semsLoginPath, bytes.NewReader(body))
	if err != nil {
		return "", &types.AuthError{Account: account, Err: err}
	}
	req.Header.Set("Token", base64.StdEncoding.EncodeToString([]byte(preAuthToken)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &types.AuthError{Account: account, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.AuthError{Account: account, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &types.AuthError{Account: account, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var sr semsResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", &types.AuthError{Account: account, Message: "undecodable response", Err: err}
	}
	switch sr.code() {
	case "0", "1", "200":
	default:
		return "", &types.AuthError{Account: account, Code: sr.code(), Message: sr.Msg}
	}
	if !sr.hasData() {
		return "", &types.AuthError{Account: account, Code: sr.code(), Message: "response has no data"}
	}

	data, err := compactSEMS(sr.Data)
	if err != nil {
		return "", &types.AuthError{Account: account, Message: "failed to encode session data", Err: err}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Refresh logs in again with the stored credentials and replaces the token.
// Concurrent callers share a single login round-trip.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	account, password, region := s.current.Account, s.password, s.current.Region
	s.mu.RUnlock()
	if account == "" {
		return errors.New("session has never logged in")
	}

	_, err, shared := s.refresh.Do("refresh", func() (interface{}, error) {
		return s.Login(ctx, account, password, region)
	})
	if shared {
		log.Ctx(ctx).DebugContext(ctx, "joined in-flight sems token refresh")
	}
	return err
}
