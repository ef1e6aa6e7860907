package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"

	"fairstay-backend/internal/logging"
	"fairstay-backend/internal/usecase"
)

// Connector is the record store's lazy connection check.
type Connector interface {
	EnsureConnected(ctx context.Context) error
}

type LambdaConfig struct {
	Router    http.Handler
	DB        Connector
	BasePaths []string
	// ConfigErr, when set, is reported for every invocation and nothing else runs.
	ConfigErr error
}

// Lambda adapts API Gateway events to the router.
type Lambda struct {
	router    http.Handler
	db        Connector
	basePaths []string
	configErr error
}

func NewLambda(cfg LambdaConfig) (*Lambda, error) {
	if cfg.ConfigErr == nil {
		if cfg.Router == nil {
			return nil, errors.New("handler: router must not be nil")
		}
		if cfg.DB == nil {
			return nil, errors.New("handler: connector must not be nil")
		}
	}
	return &Lambda{
		router:    cfg.Router,
		db:        cfg.DB,
		basePaths: cfg.BasePaths,
		configErr: cfg.ConfigErr,
	}, nil
}

func (l *Lambda) Handle(ctx context.Context, raw json.RawMessage) (events.APIGatewayProxyResponse, error) {
	log := logging.Ctx(ctx)

	if l.configErr != nil {
		log.Error().Err(l.configErr).Msg("configuration invalid")
		return staticError(usecase.Configuration("Server configuration error", l.configErr)), nil
	}
	if err := l.db.EnsureConnected(ctx); err != nil {
		log.Error().Err(err).Msg("database connection failed")
		return staticError(usecase.Upstream("Database connection failed", err)), nil
	}

	req, err := NormalizeEvent(raw, l.basePaths)
	if err != nil {
		log.Warn().Err(err).Msg("rejected event")
		return staticError(&usecase.Error{Code: usecase.ErrorValidation, Reason: "Invalid request", Err: err}), nil
	}
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("rejected event")
		return staticError(&usecase.Error{Code: usecase.ErrorValidation, Reason: "Invalid request", Err: err}), nil
	}

	rw := newBufferedResponse()
	l.router.ServeHTTP(rw, httpReq)
	return rw.proxyResponse(), nil
}

// staticError answers without going through the router. The cause is always
// included since these failures happen before any request is served.
func staticError(ue *usecase.Error) events.APIGatewayProxyResponse {
	out := errorResponse{Success: false, Message: ue.Reason, Code: string(ue.Code)}
	if ue.Err != nil {
		out.Error = ue.Err.Error()
	}
	body, err := json.Marshal(out)
	if err != nil {
		body = []byte(`{"success":false,"message":"Internal server error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: statusFor(ue.Code),
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(body),
	}
}

// bufferedResponse collects a router response in memory.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: http.Header{}}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) proxyResponse() events.APIGatewayProxyResponse {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(b.header))
	for k, vs := range b.header {
		headers[k] = strings.Join(vs, ",")
	}
	resp := events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	if isTextual(b.header.Get("Content-Type")) {
		resp.Body = b.body.String()
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(b.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/xml",
		mt == "application/javascript",
		strings.HasSuffix(mt, "+json"),
		strings.HasSuffix(mt, "+xml"):
		return true
	}
	return false
}
