package kis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/httputil"
	"github.com/wonny/aegis/kisrt/pkg/logger"
	"github.com/wonny/aegis/kisrt/pkg/redis"
)

// ErrNoCredentials is returned when the requested domain has no app key.
var ErrNoCredentials = errors.New("kis app key not configured")

// ApprovalIssuer issues WebSocket approval keys (/oauth2/Approval) per domain.
// Keys are cached in memory and, when Redis is enabled, shared across processes.
// ⭐ SSOT: 웹소켓 접속키 발급은 여기서만
type ApprovalIssuer struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	cfg        config.KISConfig

	mu   sync.Mutex
	keys map[bool]approvalEntry
	now  func() time.Time
}

type approvalEntry struct {
	key     string
	expires time.Time
}

// ApprovalResponse represents the /oauth2/Approval response
type ApprovalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// NewApprovalIssuer creates an issuer. cache may be nil.
func NewApprovalIssuer(cfg config.KISConfig, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *ApprovalIssuer {
	return &ApprovalIssuer{
		httpClient: httpClient,
		cache:      cache,
		logger:     log.Component("kis"),
		cfg:        cfg,
		keys:       make(map[bool]approvalEntry),
		now:        time.Now,
	}
}

type credentials struct {
	domain    string
	baseURL   string
	appKey    string
	appSecret string
}

func (a *ApprovalIssuer) credentials(virtual bool) credentials {
	if virtual {
		return credentials{
			domain:    "virtual",
			baseURL:   a.cfg.VirtualBaseURL,
			appKey:    a.cfg.VirtualAppKey,
			appSecret: a.cfg.VirtualAppSecret,
		}
	}
	return credentials{
		domain:    "real",
		baseURL:   a.cfg.BaseURL,
		appKey:    a.cfg.AppKey,
		appSecret: a.cfg.AppSecret,
	}
}

// ApprovalKey returns a valid approval key for the domain, issuing one if needed.
func (a *ApprovalIssuer) ApprovalKey(ctx context.Context, virtual bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.keys[virtual]; ok && a.now().Before(e.expires) {
		return e.key, nil
	}

	creds := a.credentials(virtual)
	if creds.appKey == "" {
		return "", fmt.Errorf("%w: %s", ErrNoCredentials, creds.domain)
	}

	cacheKey := redis.ApprovalKeyKey(creds.domain, creds.appKey)
	if a.cache != nil {
		var cached string
		found, err := a.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			a.logger.WithError(err).Warn("Approval key cache read failed")
		}
		if found && cached != "" {
			a.remember(virtual, cached)
			return cached, nil
		}
	}

	key, err := a.issue(ctx, creds)
	if err != nil {
		return "", err
	}
	a.remember(virtual, key)

	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, key, redis.TTLApprovalKey); err != nil {
			a.logger.WithError(err).Warn("Approval key cache write failed")
		}
	}

	a.logger.WithField("domain", creds.domain).Info("KIS approval key issued")
	return key, nil
}

// Invalidate forgets the in-memory key for the domain.
func (a *ApprovalIssuer) Invalidate(virtual bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, virtual)
}

func (a *ApprovalIssuer) remember(virtual bool, key string) {
	a.keys[virtual] = approvalEntry{key: key, expires: a.now().Add(redis.TTLApprovalKey)}
}

func (a *ApprovalIssuer) issue(ctx context.Context, creds credentials) (string, error) {
	url := fmt.Sprintf("%s/oauth2/Approval", creds.baseURL)
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     creds.appKey,
		"secretkey":  creds.appSecret,
	}

	resp, err := a.httpClient.PostJSON(ctx, url, body)
	if err != nil {
		return "", fmt.Errorf("approval request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read approval response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("approval request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ApprovalResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode approval response: %w", err)
	}
	if result.ApprovalKey == "" {
		return "", fmt.Errorf("approval response carried no key")
	}

	return result.ApprovalKey, nil
}
