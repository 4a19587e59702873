package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
)

const (
	defaultAPIBase = "https://i.instagram.com/api/v1"
	defaultWebBase = "https://www.instagram.com"
	appID          = "936619743392459"
	userAgent      = "Instagram 275.0.0.27.98 Android (33/13; 420dpi; 1080x2400; samsung; SM-G991B; o1s; exynos2100; en_US; 458229237)"
	webUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrThreadNotFound = errors.New("thread not found")
	ErrLoginRequired  = errors.New("login required")
)

// APIError is a non-200 response from the private API.
type APIError struct {
	StatusCode int
	Message    string
	ErrorType  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("instagram api: status %v (%v)", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("instagram api: status %v", e.StatusCode)
}

type Config struct {
	Username    string
	Password    string
	TOTPSecret  string
	Proxy       string
	SessionFile string
	Timeout     time.Duration
	// PageDelay spaces out chunk requests when DirectThread paginates
	// internally.
	PageDelay time.Duration
	// BaseURL and WebBaseURL exist for tests.
	BaseURL    string
	WebBaseURL string
}

// Client talks to the private mobile API with a persisted device identity.
type Client struct {
	cfg        Config
	httpClient http.Client
	apiBase    string
	webBase    string
	session    Session
	log        zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: http.Client{Timeout: cfg.Timeout},
		apiBase:    cfg.BaseURL,
		webBase:    cfg.WebBaseURL,
		log:        log.With().Str("component", "instagram").Logger(),
	}
	if c.apiBase == "" {
		c.apiBase = defaultAPIBase
	}
	if c.webBase == "" {
		c.webBase = defaultWebBase
	}

	if cfg.Proxy != "" {
		transport, err := proxyTransport(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		c.httpClient.Transport = transport
	}

	session, err := LoadSession(cfg.SessionFile)
	if err != nil || session.Username != cfg.Username {
		session = NewSession(cfg.Username)
	}
	c.session = session

	return c, nil
}

func proxyTransport(addr string) (*http.Transport, error) {
	if !strings.Contains(addr, "://") {
		addr = "socks5://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy %v: %w", addr, err)
	}
	if u.Scheme != "socks5" {
		return nil, fmt.Errorf("unsupported proxy scheme %v", u.Scheme)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("building proxy dialer: %w", err)
	}

	transport := &http.Transport{Dial: dialer.Dial}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.Dial = nil
		transport.DialContext = cd.DialContext
	}
	return transport, nil
}

// UserID returns the logged-in account's pk, zero before Login.
func (c *Client) UserID() int64 {
	return c.session.UserID
}

func (c *Client) request(ctx context.Context, method, path string, query, form url.Values) ([]byte, http.Header, error) {
	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("building request %v: %w", path, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-IG-App-ID", appID)
	req.Header.Set("X-IG-Device-ID", c.session.SessionUUID)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if c.session.Authorization != "" {
		req.Header.Set("Authorization", c.session.Authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("requesting %v: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response of %v: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return data, resp.Header, apiError(resp.StatusCode, data)
	}

	return data, resp.Header, nil
}

func apiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		apiErr.ErrorType = payload.ErrorType
	}

	if apiErr.Message == "login_required" {
		return fmt.Errorf("%w: %v", ErrLoginRequired, apiErr)
	}
	return apiErr
}
