package callback

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/keenchase/auth-center/pkg/config"
)

// defaultAllowedDomains are the hosts the broker serves out of the box.
// Configured domains are merged on top, never replacing these.
var defaultAllowedDomains = []string{
	"pr.crazyaigc.com",
	"www.crazyaigc.com",
	"os.crazyaigc.com",
	"localhost",
}

// Validator checks post-login redirect targets against a host allow-list so
// the broker never hands a session token to an arbitrary site.
type Validator struct {
	exact     map[string]struct{}
	wildcards []string
}

// NewValidator merges the configured domains with the built-in defaults.
// Entries of the form "*.example.com" match any subdomain of example.com.
func NewValidator(cfg config.CallbackConfig) *Validator {
	v := &Validator{exact: make(map[string]struct{})}
	for _, domain := range append(append([]string{}, defaultAllowedDomains...), cfg.AllowedDomains...) {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(domain, "*."); ok {
			v.wildcards = append(v.wildcards, suffix)
			continue
		}
		v.exact[domain] = struct{}{}
	}
	return v
}

// Validate returns nil when rawURL is an acceptable redirect target. HTTPS is
// required everywhere except localhost.
func (v *Validator) Validate(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("callback url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("callback url is not a valid url")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("callback url has no host")
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !isLoopback(host) {
			return fmt.Errorf("callback url must use https")
		}
	default:
		return fmt.Errorf("callback url scheme %q is not allowed", parsed.Scheme)
	}

	if !v.hostAllowed(host) {
		return fmt.Errorf("callback host %q is not in the allow-list", host)
	}
	return nil
}

// Host extracts the hostname for login-source logging. Returns "" when the
// URL does not parse.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func (v *Validator) hostAllowed(host string) bool {
	// Loopback hosts are always acceptable; local development never needs an
	// allow-list entry.
	if isLoopback(host) {
		return true
	}
	if _, ok := v.exact[host]; ok {
		return true
	}
	for _, suffix := range v.wildcards {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
