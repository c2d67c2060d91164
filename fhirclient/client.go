package fhirclient

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

	"github.com/jonwraymond/fhirgate/auth"
	"github.com/jonwraymond/fhirgate/observe"
)

// DefaultTimeout bounds a whole exchange with the FHIR server.
const DefaultTimeout = 5 * time.Minute

// MaxResponseBytes caps a response body read from the FHIR server. Larger
// bodies fail with ErrResponseTooLarge.
const MaxResponseBytes = 32 << 20

// ErrResponseTooLarge is returned when a body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("fhirclient: response body too large")

// ErrUnexpectedStatus matches every *StatusError.
var ErrUnexpectedStatus = errors.New("fhirclient: unexpected status")

// StatusError is a non-2xx response from the FHIR server.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int

	// Outcome is the OperationOutcome body, when the server sent one.
	Outcome *auth.OperationOutcome
}

// Error returns the error message.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Outcome != nil && len(e.Outcome.Issue) > 0 && e.Outcome.Issue[0].Diagnostics != "" {
		msg += ": " + e.Outcome.Issue[0].Diagnostics
	}
	return msg
}

// Is reports whether this error matches the target.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Resource is a decoded FHIR resource.
type Resource map[string]any

// ResourceType returns the resourceType element.
func (r Resource) ResourceType() string {
	s, _ := r["resourceType"].(string)
	return s
}

// ID returns the id element.
func (r Resource) ID() string {
	s, _ := r["id"].(string)
	return s
}

// Client talks FHIR JSON to one server base URL.
type Client struct {
	base    string
	http    *http.Client
	logger  observe.Logger
	header  http.Header
	maxBody int64
}

// New creates a client for base over hc. A nil hc gets http.DefaultTransport
// and DefaultTimeout.
func New(base string, hc *http.Client, logger observe.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    hc,
		logger:  observe.WithComponent(logger, "fhirclient"),
		header:  http.Header{},
		maxBody: MaxResponseBytes,
	}
}

// BaseURL returns the server base.
func (c *Client) BaseURL() string { return c.base }

// HTTPClient returns the underlying client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Capabilities fetches the server's CapabilityStatement.
func (c *Client) Capabilities(ctx context.Context) (Resource, error) {
	return c.get(ctx, c.base+"/metadata")
}

// Read fetches one resource by type and id.
func (c *Client) Read(ctx context.Context, resourceType, id string) (Resource, error) {
	if resourceType == "" || id == "" {
		return nil, errors.New("fhirclient: resource type and id are required")
	}
	return c.get(ctx, c.base+"/"+url.PathEscape(resourceType)+"/"+url.PathEscape(id))
}

func (c *Client) get(ctx context.Context, target string) (Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", auth.FHIRContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("fhirclient: read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrResponseTooLarge, target, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: req.Method, URL: target, StatusCode: resp.StatusCode}
		var oo auth.OperationOutcome
		if json.Unmarshal(body, &oo) == nil && oo.ResourceType == "OperationOutcome" {
			se.Outcome = &oo
		}
		c.logger.Warn(ctx, "request failed",
			observe.F("url", target), observe.F("status", resp.StatusCode))
		return nil, se
	}

	var r Resource
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("fhirclient: decode %s: %w", target, err)
	}
	return r, nil
}
