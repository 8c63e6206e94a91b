package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const maxMediaRedirects = 5

// requireToken rejects requests that do not carry the shared webhook secret,
// either as "Authorization: Bearer <token>" or in X-Webhook-Token. An empty
// token rejects everything.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Token")
			if auth := r.Header.Get("Authorization"); auth != "" {
				bearer := strings.TrimPrefix(auth, "Bearer ")
				if bearer == auth {
					writeError(w, http.StatusUnauthorized, "invalid authorization format")
					return
				}
				got = bearer
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing webhook token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mediaPolicy limits which URLs the daemon will download media from.
type mediaPolicy struct {
	hosts map[string]bool
}

func newMediaPolicy(hosts []string) mediaPolicy {
	p := mediaPolicy{hosts: make(map[string]bool, len(hosts))}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			p.hosts[h] = true
		}
	}
	return p
}

var errMediaURLDisabled = errors.New("media urls are disabled: no allowed hosts configured")

func (p mediaPolicy) check(u *url.URL) error {
	if len(p.hosts) == 0 {
		return errMediaURLDisabled
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("media url scheme %q not allowed", u.Scheme)
	}
	if host := strings.ToLower(u.Hostname()); !p.hosts[host] {
		return fmt.Errorf("media host %q not allowed", host)
	}
	return nil
}

func (p mediaPolicy) checkString(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid media url: %w", err)
	}
	return p.check(u)
}

// client returns a copy of c whose redirects are held to the same policy.
func (p mediaPolicy) client(c *http.Client) *http.Client {
	cp := *c
	cp.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxMediaRedirects {
			return errors.New("too many redirects")
		}
		return p.check(req.URL)
	}
	return &cp
}
