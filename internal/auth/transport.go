package auth

import (
	"io"
	"net/http"

	"github.com/starford/glide/internal/apperr"
)

// Transport injects the stored bearer token into every request. On a 401
// it refreshes through the Coordinator and retries the request once.
type Transport struct {
	Base        http.RoundTripper
	Credentials Credentials
	Coordinator *Coordinator
}

// NewTransport returns a Transport over http.DefaultTransport.
func NewTransport(creds Credentials, coord *Coordinator) *Transport {
	return &Transport{Base: http.DefaultTransport, Credentials: creds, Coordinator: coord}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) token() string {
	v, _, _ := t.Credentials.Get(KeyAccessToken)
	return v
}

func authorize(req *http.Request, token string) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	sent := t.token()
	first, err := authorize(req, sent)
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	// A streamed body cannot be replayed; let the caller see the 401.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	// Another request refreshed while this one was out; reuse its token.
	if cur := t.token(); cur != "" && cur != sent {
		drain(resp)
		return t.retry(req, cur)
	}
	refreshToken, ok, _ := t.Credentials.Get(KeyRefreshToken)
	if !ok || refreshToken == "" || t.Coordinator == nil {
		return resp, nil
	}

	pair, rerr := t.Coordinator.Refresh(req.Context(), refreshToken)
	if rerr != nil {
		if apperr.IsAuth(rerr) {
			// The original 401 carries the outcome.
			return resp, nil
		}
		drain(resp)
		return nil, rerr
	}
	drain(resp)
	return t.retry(req, pair.AccessToken)
}

func (t *Transport) retry(req *http.Request, token string) (*http.Response, error) {
	r, err := authorize(req, token)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(r)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
