package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// supplierSource adapts a Supplier to oauth2.TokenSource.
type supplierSource struct {
	ctx      context.Context
	supplier *Supplier
}

// TokenSource returns an oauth2.TokenSource bound to ctx.
func (s *Supplier) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &supplierSource{ctx: ctx, supplier: s}
}

// Token implements oauth2.TokenSource.
func (ts *supplierSource) Token() (*oauth2.Token, error) {
	token, err := ts.supplier.Token(ts.ctx)
	if err != nil {
		return nil, err
	}

	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if e, err := ts.supplier.store.Local.Get(ts.ctx); err == nil && e.Token == token {
		t.Expiry = e.ExpiresAt
	}
	return t, nil
}

// Transport returns a RoundTripper that authorizes each request with a
// token obtained under that request's context.
func (s *Supplier) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &supplierTransport{supplier: s, base: base}
}

type supplierTransport struct {
	supplier *Supplier
	base     http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *supplierTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	inner := &oauth2.Transport{
		Source: t.supplier.TokenSource(req.Context()),
		Base:   t.base,
	}
	return inner.RoundTrip(req)
}
