package ui

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// BuildURL returns the authenticated control UI URL for a gateway bound on
// loopback. The token is carried as a query parameter and URL-encoded.
func BuildURL(port int, token string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/?token=%s", port, url.QueryEscape(token))
}

// IsLoopbackURL reports whether the URL's host resolves textually to a
// loopback address. Only loopback attach failures are worth retrying; a
// non-loopback URL failing is a configuration problem, not a race with
// gateway startup.
func IsLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
