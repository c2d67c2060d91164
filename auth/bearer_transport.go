package auth

import "net/http"

// Interceptor hooks into outbound HTTP exchanges.
type Interceptor interface {
	// OnRequest may mutate the outgoing request.
	OnRequest(req *http.Request)

	// OnResponse observes the response.
	OnResponse(resp *http.Response)
}

// BearerTransport attaches a fixed bearer token to every outbound request.
//
// The token is resolved once, before construction; rotating it means
// building a new transport.
type BearerTransport struct {
	token string
	base  http.RoundTripper
}

// NewBearerTransport wraps base. A nil base means http.DefaultTransport.
func NewBearerTransport(token string, base http.RoundTripper) *BearerTransport {
	return &BearerTransport{token: token, base: base}
}

// OnRequest sets the Authorization header.
func (t *BearerTransport) OnRequest(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+t.token)
}

// OnResponse is a no-op.
func (t *BearerTransport) OnResponse(*http.Response) {}

// RoundTrip runs OnRequest on a clone of req, so the caller's request is left
// untouched.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	t.OnRequest(out)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	t.OnResponse(resp)
	return resp, nil
}

var (
	_ http.RoundTripper = (*BearerTransport)(nil)
	_ Interceptor       = (*BearerTransport)(nil)
)
