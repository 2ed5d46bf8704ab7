// Package transport issues the background fetches for partial navigation
// over resty. Every request carries the identifying header and marker
// parameter; every in-flight request is represented by an abortable Handle
// whose completion is delivered exactly once.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"

	"github.com/webfold/partialnav/internal/urlx"
)

const (
	// HeaderRequest marks a request as a partial-navigation fetch so a
	// server can opt into returning partial content.
	HeaderRequest = "X-PJAX"

	// HeaderContainer carries the stable selector of the target container.
	HeaderContainer = "X-PJAX-Container"

	// HeaderCanonicalURL is the response header whose value, when present,
	// supersedes the request URL for all downstream purposes.
	HeaderCanonicalURL = "X-PJAX-URL"
)

// AbortReason classifies a deliberate cancellation.
type AbortReason string

const (
	// ReasonTimeout is used when the controller's timer expired.
	ReasonTimeout AbortReason = "timeout"

	// ReasonSuperseded is used when a newer navigation cancelled this one.
	ReasonSuperseded AbortReason = "superseded"
)

// AbortError is the error delivered for an aborted request.
type AbortError struct {
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transport: request aborted (%s)", e.Reason)
}

// Aborted extracts the abort reason from an error chain.
func Aborted(err error) (AbortReason, bool) {
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}

// Request describes one outgoing fetch.
type Request struct {
	URL       string
	Method    string
	Data      url.Values
	Container string
	Header    http.Header
}

// Response is a completed fetch.
type Response struct {
	Status  int
	Header  http.Header
	Body    string
	success bool
}

// IsSuccess reports the transport layer's own status-code interpretation of
// the outcome.
func (r *Response) IsSuccess() bool { return r.success }

// CanonicalURL returns the canonical URL supplied by the server, marker
// stripped, or "" when the header is absent.
func (r *Response) CanonicalURL() string {
	v := r.Header.Get(HeaderCanonicalURL)
	if v == "" {
		return ""
	}
	return urlx.Strip(v)
}

// Result is the single completion value of a Handle.
type Result struct {
	Response *Response
	Err      error
}

// Handle is one in-flight request. Completion and abort race; whichever
// settles the handle first wins and the loser's event is a no-op.
type Handle struct {
	cancel  context.CancelCauseFunc
	done    chan Result
	settled atomic.Bool
	reason  atomic.Value // AbortReason
}

// Done delivers the handle's single Result.
func (h *Handle) Done() <-chan Result { return h.done }

// Abort cancels the request. A handle that already settled is unaffected;
// otherwise its result becomes an AbortError carrying reason and the
// transport's own completion, whenever it arrives, is suppressed.
func (h *Handle) Abort(reason AbortReason) {
	if !h.settled.CompareAndSwap(false, true) {
		return
	}
	h.reason.Store(reason)
	h.cancel(&AbortError{Reason: reason})
	h.done <- Result{Err: &AbortError{Reason: reason}}
}

// AbortedWith returns the abort reason, if this handle was aborted.
func (h *Handle) AbortedWith() (AbortReason, bool) {
	if r, ok := h.reason.Load().(AbortReason); ok {
		return r, true
	}
	return "", false
}

func (h *Handle) settle(res Result) {
	if !h.settled.CompareAndSwap(false, true) {
		return
	}
	h.done <- res
}

// Client issues partial-navigation fetches.
type Client struct {
	rest *resty.Client
}

// NewClient creates a transport client. No native client timeout is set:
// the navigation controller owns the timeout race with its own timer.
func NewClient() *Client {
	return &Client{rest: resty.New()}
}

// NewClientWith wraps an existing resty client, for tests and embedders.
func NewClientWith(rest *resty.Client) *Client {
	return &Client{rest: rest}
}

// Do issues req asynchronously and returns its Handle. The marker parameter
// is merged into the query for GET requests and into the form body
// otherwise, so the host cache can distinguish this fetch from a page load.
func (c *Client) Do(req *Request) *Handle {
	ctx, cancel := context.WithCancelCause(context.Background())
	h := &Handle{cancel: cancel, done: make(chan Result, 1)}

	go func() {
		res := c.execute(ctx, req)
		h.settle(res)
	}()

	return h
}

func (c *Client) execute(ctx context.Context, req *Request) Result {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	r := c.rest.R().SetContext(ctx)
	r.SetHeader(HeaderRequest, "true")
	if req.Container != "" {
		r.SetHeader(HeaderContainer, req.Container)
	}
	for name, values := range req.Header {
		for _, v := range values {
			r.SetHeader(name, v)
		}
	}

	data := url.Values{}
	for k, vs := range req.Data {
		data[k] = vs
	}
	data.Set(urlx.MarkerParam, "true")

	if method == http.MethodGet || method == http.MethodHead {
		r.SetQueryParamsFromValues(data)
	} else {
		r.SetFormDataFromValues(data)
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return Result{Err: cause}
		}
		return Result{Err: err}
	}

	return Result{Response: &Response{
		Status:  resp.StatusCode(),
		Header:  resp.Header(),
		Body:    resp.String(),
		success: resp.IsSuccess(),
	}}
}
