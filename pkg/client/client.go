package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/transport"
)

// Client talks to an appconnect daemon. It implements transport.Transport,
// so the core can run against a remote host unchanged.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
	user    string
	pass    string
	cfg     Config
}

var _ transport.Transport = (*Client)(nil)

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration // per request; sends add their own timeout on top
	Logger   *slog.Logger
	Username string
	Password string
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:" + DefaultPort + "/api",
		Timeout: 90 * time.Second,
	}
}

// New creates a new appconnect API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			tr.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		timeout: config.Timeout,
		user:    config.Username,
		pass:    config.Password,
		cfg:     config,
		client:  &http.Client{Transport: tr},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	c.logger.Debug("Daemon reachability check", "reachable", err == nil, "error", err)
	return err == nil
}

// Running reports whether the application at path runs on the daemon host.
func (c *Client) Running(ctx context.Context, path string) (bool, error) {
	var out RunningResponse
	err := c.do(ctx, http.MethodGet, "/running?path="+url.QueryEscape(path), nil, &out)
	return out.Running, err
}

// Connect returns the address of the application, launching it first
// when needed.
func (c *Client) Connect(ctx context.Context, path string) (address.Descriptor, error) {
	var out AddressResponse
	if err := c.do(ctx, http.MethodPost, "/connect", PathRequest{Path: path}, &out); err != nil {
		return address.Descriptor{}, err
	}
	return out.Address, nil
}

// Notify delivers the launch-notify event, launching the application
// when needed.
func (c *Client) Notify(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "/notify", PathRequest{Path: path}, nil)
}

func (c *Client) QueryProcessByPath(path string) (address.ProcessHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	var out HandleResponse
	err := c.do(ctx, http.MethodGet, "/query?path="+url.QueryEscape(path), nil, &out)
	return out.Handle, err
}

func (c *Client) Launch(path string, ev event.Event, flags transport.LaunchFlags) (address.ProcessHandle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	f := uint32(flags)
	var out HandleResponse
	err := c.do(ctx, http.MethodPost, "/launch", LaunchRequest{Path: path, Event: ev.Code(), Flags: &f}, &out)
	return out.Handle, err
}

// Send delivers ev through the daemon. ApplicationURL addresses are sent
// to the daemon the URL names instead.
func (c *Client) Send(ev event.Event, addr address.Descriptor, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	if u, ok := addr.URL(); ok {
		return NewURLSender(c.cfg).SendURL(ev, u, timeout, mode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout+timeout)
	defer cancel()
	req := SendRequest{Address: addr, Event: ev.Code(), Reply: mode == event.WaitReply}
	if timeout > 0 {
		req.Timeout = timeout.String()
	}
	var out ReplyResponse
	err := c.do(ctx, http.MethodPost, "/send", req, &out)
	return out.Reply, err
}

// URLSender sends events to applications named by ApplicationURL
// addresses. It resolves the application on the remote daemon and sends
// to the running instance.
type URLSender struct {
	cfg Config
}

func NewURLSender(cfg Config) *URLSender { return &URLSender{cfg: cfg} }

func (s *URLSender) SendURL(ev event.Event, raw string, timeout time.Duration, mode event.ReplyMode) (event.Reply, error) {
	t, err := ParseAppURL(raw)
	if err != nil {
		return event.Reply{}, oserr.New("send", oserr.CodeDescNotFound, err)
	}
	cfg := s.cfg
	cfg.BaseURL = t.BaseURL
	if t.Username != "" {
		cfg.Username, cfg.Password = t.Username, t.Password
	}
	c := New(cfg)
	h, err := c.QueryProcessByPath(t.AppPath)
	if err != nil {
		return event.Reply{}, err
	}
	return c.Send(ev, address.FromProcessHandle(h), timeout, mode)
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- explicit opt-in
		return tlsConfig, nil
	}
	if config.TLS == nil {
		return tlsConfig, nil
	}
	if config.TLS.ServerName != "" {
		tlsConfig.ServerName = config.TLS.ServerName
	}
	if config.TLS.CACert != "" {
		if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

// do performs one JSON request. Failures reaching the daemon become
// connection-failed OS errors; API errors are rebuilt from the body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "method", method, "path", path)
		code := oserr.CodeConnectionFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = oserr.CodeTimeout
		}
		return oserr.New("remote", code, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse rebuilds the typed error carried by an API error body.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := oserr.FromKind(er.Kind, er.Code, er.Error); err != nil {
		return err
	}
	return fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, er.Error)
}
