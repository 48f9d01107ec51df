package signalr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// at most one negotiation per second
	negotiateRate  = 1
	negotiateBurst = 2

	handshakeTimeout = 15 * time.Second
)

// StreamHandler receives the events of one persistent connection
type StreamHandler interface {
	// OnOpen runs after the socket is established and before the subscribe request is sent
	OnOpen(ctx context.Context, generation uint64) error
	OnFrame(ctx context.Context, frame RawFrame)
}

// ClientConfig configures the upstream client. Zero values fall back to defaults.
type ClientConfig struct {
	BaseURL       string // https://host/signalr
	Hub           string
	Topics        []string
	NegotiateRate rate.Limit
	HTTPClient    *http.Client
	Dialer        *websocket.Dialer
	Logger        *slog.Logger
}

// Client negotiates with the upstream hub and runs persistent connections. It never retries;
// that is the Supervisor's job.
type Client struct {
	baseURL     string
	hub         string
	topics      []string
	httpClient  *http.Client
	dialer      *websocket.Dialer
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Hub == "" {
		cfg.Hub = DefaultHub
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = DefaultTopics
	}
	if cfg.NegotiateRate == 0 {
		cfg.NegotiateRate = rate.Limit(negotiateRate)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		hub:         cfg.Hub,
		topics:      cfg.Topics,
		httpClient:  cfg.HTTPClient,
		dialer:      cfg.Dialer,
		rateLimiter: rate.NewLimiter(cfg.NegotiateRate, negotiateBurst),
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// connectionData is the url-encoded hub list both endpoints expect
func (c *Client) connectionData() string {
	data, _ := json.Marshal([]hubDescriptor{{Name: c.hub}})
	return string(data)
}

// Negotiate asks the provider for a connection token and session cookie
func (c *Client) Negotiate(ctx context.Context) (Session, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return Session{}, fmt.Errorf("%w: rate limiter: %w", ErrNegotiation, err)
	}

	params := url.Values{}
	params.Set("connectionData", c.connectionData())
	params.Set("clientProtocol", clientProtocol)
	fullURL := c.baseURL + "/negotiate?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Session{}, fmt.Errorf("%w: create request: %w", ErrNegotiation, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("%w: request: %w", ErrNegotiation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Session{}, fmt.Errorf("%w: HTTP %d: %s", ErrNegotiation, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var negotiated negotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&negotiated); err != nil {
		return Session{}, fmt.Errorf("%w: parse response: %w", ErrNegotiation, err)
	}

	session := Session{
		Cookie:          cookieHeader(resp),
		ConnectionToken: negotiated.ConnectionToken,
	}
	if session.Cookie == "" {
		return Session{}, fmt.Errorf("%w: response carried no session cookie", ErrNegotiation)
	}
	if session.ConnectionToken == "" {
		return Session{}, fmt.Errorf("%w: response carried no connection token", ErrNegotiation)
	}

	c.logger.Info("upstream_negotiated", "connection_id", negotiated.ConnectionID)
	return session, nil
}

// cookieHeader folds every Set-Cookie of the response into a request Cookie header
func cookieHeader(resp *http.Response) string {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return resp.Header.Get("Set-Cookie")
	}
	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	return strings.Join(pairs, "; ")
}

func (c *Client) connectURL(session Session) (string, error) {
	u, err := url.Parse(c.baseURL + "/connect")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	params := url.Values{}
	params.Set("clientProtocol", clientProtocol)
	params.Set("transport", "webSockets")
	params.Set("connectionToken", session.ConnectionToken)
	params.Set("connectionData", c.connectionData())
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Stream opens the persistent connection, subscribes to every configured topic and hands
// each received message to handler tagged with generation. It blocks until the connection
// fails, returning an error wrapping ErrConnection, or until ctx is done.
func (c *Client) Stream(ctx context.Context, session Session, generation uint64, handler StreamHandler) error {
	target, err := c.connectURL(session)
	if err != nil {
		return fmt.Errorf("%w: build url: %w", ErrConnection, err)
	}

	header := http.Header{}
	header.Set("User-Agent", userAgent)
	header.Set("Accept-Encoding", "gzip,identity")
	header.Set("Cookie", session.Cookie)

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: dial: HTTP %d: %w", ErrConnection, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: dial: %w", ErrConnection, err)
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Info("upstream_connected", "generation", generation)

	if err := handler.OnOpen(ctx, generation); err != nil {
		return fmt.Errorf("%w: open: %w", ErrConnection, err)
	}
	if err := conn.WriteJSON(newSubscribeRequest(c.hub, c.topics)); err != nil {
		return fmt.Errorf("%w: subscribe: %w", ErrConnection, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read: %w", ErrConnection, err)
		}
		handler.OnFrame(ctx, RawFrame{
			Generation: generation,
			Data:       data,
			ReceivedAt: c.now(),
		})
	}
}
