package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"
)

// ErrUnsupportedEvent is returned for payloads that are not API Gateway HTTP events.
var ErrUnsupportedEvent = errors.New("handler: unsupported event")

// Request is an API Gateway event reduced to what the router needs.
type Request struct {
	Method  string
	Path    string
	Headers http.Header
	Query   url.Values
	Body    []byte
}

type eventProbe struct {
	Version string `json:"version"`
	RawPath string `json:"rawPath"`
}

// NormalizeEvent accepts REST API (payload 1.0) and HTTP API (payload 2.0)
// events, decodes base64 bodies and strips the first matching base path.
func NormalizeEvent(raw json.RawMessage, basePaths []string) (Request, error) {
	var probe eventProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
	}

	var (
		req Request
		err error
	)
	if probe.Version == "2.0" || probe.RawPath != "" {
		req, err = fromHTTPAPI(raw)
	} else {
		req, err = fromRESTAPI(raw)
	}
	if err != nil {
		return Request{}, err
	}
	if req.Method == "" {
		return Request{}, fmt.Errorf("%w: no HTTP method", ErrUnsupportedEvent)
	}
	req.Method = strings.ToUpper(req.Method)
	req.Path = stripBasePath(req.Path, basePaths)
	return req, nil
}

func fromRESTAPI(raw json.RawMessage) (Request, error) {
	var ev events.APIGatewayProxyRequest
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
	}
	body, err := eventBody(ev.Body, ev.IsBase64Encoded)
	if err != nil {
		return Request{}, err
	}

	method := firstNonEmpty(ev.HTTPMethod, ev.RequestContext.HTTPMethod)
	path := firstNonEmpty(ev.Path, ev.RequestContext.Path)

	headers := http.Header{}
	if len(ev.MultiValueHeaders) > 0 {
		for k, vs := range ev.MultiValueHeaders {
			for _, v := range vs {
				headers.Add(k, v)
			}
		}
	} else {
		for k, v := range ev.Headers {
			headers.Set(k, v)
		}
	}

	query := url.Values{}
	if len(ev.MultiValueQueryStringParameters) > 0 {
		for k, vs := range ev.MultiValueQueryStringParameters {
			query[k] = append(query[k], vs...)
		}
	} else {
		for k, v := range ev.QueryStringParameters {
			query.Set(k, v)
		}
	}

	return Request{Method: method, Path: path, Headers: headers, Query: query, Body: body}, nil
}

func fromHTTPAPI(raw json.RawMessage) (Request, error) {
	var ev events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
	}
	body, err := eventBody(ev.Body, ev.IsBase64Encoded)
	if err != nil {
		return Request{}, err
	}

	headers := http.Header{}
	for k, v := range ev.Headers {
		headers.Set(k, v)
	}
	if len(ev.Cookies) > 0 {
		headers.Set("Cookie", strings.Join(ev.Cookies, "; "))
	}

	query, err := url.ParseQuery(ev.RawQueryString)
	if err != nil || len(query) == 0 {
		query = url.Values{}
		for k, v := range ev.QueryStringParameters {
			query.Set(k, v)
		}
	}

	return Request{
		Method:  ev.RequestContext.HTTP.Method,
		Path:    firstNonEmpty(ev.RawPath, ev.RequestContext.HTTP.Path),
		Headers: headers,
		Query:   query,
		Body:    body,
	}, nil
}

func eventBody(body string, encoded bool) ([]byte, error) {
	if !encoded {
		return []byte(body), nil
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: body is not valid base64: %v", ErrUnsupportedEvent, err)
	}
	return b, nil
}

// stripBasePath removes a deployment prefix such as /default/fairstay-mvp-backend.
// Only whole path segments match, so /fairstay-mvp-backend-v2 is left alone.
func stripBasePath(path string, basePaths []string) string {
	if path == "" {
		return "/"
	}
	for _, base := range basePaths {
		base = strings.TrimRight(base, "/")
		if base == "" {
			continue
		}
		if path == base {
			return "/"
		}
		if strings.HasPrefix(path, base+"/") {
			return path[len(base):]
		}
	}
	return path
}

// HTTPRequest builds the *http.Request the router serves.
func (r Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	u := &url.URL{Path: r.Path, RawQuery: r.Query.Encode()}
	req, err := http.NewRequestWithContext(ctx, r.Method, u.RequestURI(), bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("handler: build request: %w", err)
	}
	if r.Headers != nil {
		req.Header = r.Headers.Clone()
	}
	req.Host = req.Header.Get("Host")
	req.RequestURI = u.RequestURI()
	return req, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
