package client

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultPort is the daemon port assumed for eppc URLs without one.
const DefaultPort = "8760"

// Target is a remote application named by an ApplicationURL address.
type Target struct {
	BaseURL  string // daemon API root
	AppPath  string // bundle path on the remote host
	Username string
	Password string
}

// ParseAppURL accepts
//
//	eppc://[user:pass@]host[:port]/Applications/Mail.app
//	http(s)://[user:pass@]host:port/api?app=/Applications/Mail.app
//
// eppc URLs map to http://host:port/api.
func ParseAppURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, err
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("application URL %q has no host", redact(u))
	}
	var t Target
	if u.User != nil {
		t.Username = u.User.Username()
		t.Password, _ = u.User.Password()
	}
	switch strings.ToLower(u.Scheme) {
	case "eppc":
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), DefaultPort)
		}
		t.BaseURL = "http://" + host + "/api"
		t.AppPath = u.Path
	case "http", "https":
		t.AppPath = u.Query().Get("app")
		base := url.URL{Scheme: u.Scheme, Host: u.Host, Path: strings.TrimRight(u.Path, "/")}
		t.BaseURL = base.String()
	default:
		return Target{}, fmt.Errorf("unsupported application URL scheme %q", u.Scheme)
	}
	if t.AppPath == "" || !strings.HasPrefix(t.AppPath, "/") {
		return Target{}, errors.New("application URL must name an absolute application path")
	}
	return t, nil
}

func redact(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	c := *u
	c.User = url.User(u.User.Username())
	return c.String()
}
