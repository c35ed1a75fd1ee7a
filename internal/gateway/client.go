// Package gateway talks to the property-management REST API: paginated downloads and batch reading upload.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/and161185/neptus-sync/internal/convert"
	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
)

const (
	DefaultPageSize         = 50
	DefaultPropertyPageSize = 10
	DefaultTimeout          = 30 * time.Second

	readingsPath   = "/v1/leituras"
	batchPath      = "/v1/leituras/lote"
	tanksPath      = "/v1/super/tanques/{propertyId}"
	propertiesPath = "/v1/super/propriedades"
)

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	RetryCount       int
	RetryWait        time.Duration
	PageSize         int
	PropertyPageSize int
	// MaxParallel caps concurrent page requests in FetchAll; 0 means no cap.
	MaxParallel int
	Logger      *zap.Logger
	// Transport replaces the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client is the REST gateway. It is safe for concurrent use.
type Client struct {
	http             *resty.Client
	log              *zap.Logger
	pageSize         int
	propertyPageSize int
	maxParallel      int
}

// New builds a Client from opts.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PropertyPageSize <= 0 {
		opts.PropertyPageSize = DefaultPropertyPageSize
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(4 * opts.RetryWait).
		AddRetryCondition(retryReads).
		OnAfterResponse(logResponse(log)).
		OnError(logError(log))
	if opts.Transport != nil {
		hc.SetTransport(opts.Transport)
	}

	return &Client{
		http:             hc,
		log:              log,
		pageSize:         opts.PageSize,
		propertyPageSize: opts.PropertyPageSize,
		maxParallel:      opts.MaxParallel,
	}
}

// retryReads retries GETs on network errors and 5xx. The batch POST is never
// retried so a lost response cannot upload the same readings twice.
func retryReads(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || r.StatusCode() >= http.StatusInternalServerError
}

func logResponse(log *zap.Logger) resty.ResponseMiddleware {
	return func(_ *resty.Client, r *resty.Response) error {
		lvl := zap.DebugLevel
		if r.IsError() {
			lvl = zap.WarnLevel
		}
		log.Check(lvl, "http").Write(
			zap.String("method", r.Request.Method),
			zap.String("path", r.Request.RawRequest.URL.Path),
			zap.Int("status", r.StatusCode()),
			zap.Duration("dur", r.Time()),
		)
		return nil
	}
}

func logError(log *zap.Logger) resty.ErrorHook {
	return func(req *resty.Request, err error) {
		log.Warn("http failed", zap.String("method", req.Method), zap.String("url", req.URL), zap.Error(err))
	}
}

func (c *Client) request(ctx context.Context, token string) (*resty.Request, error) {
	if token == "" {
		return nil, errs.ErrNoCredentials
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		ForceContentType("application/json"), nil
}

// FetchReadingPage fetches one page of a tank's readings.
func (c *Client) FetchReadingPage(ctx context.Context, token, tankID string, page, perPage int) (model.Page[model.Reading], error) {
	req, err := c.request(ctx, token)
	if err != nil {
		return model.Page[model.Reading]{}, err
	}
	var out convert.ReadingsPage
	res, err := req.
		SetQueryParams(map[string]string{
			"tanque_id": tankID,
			"page":      strconv.Itoa(page),
			"per_page":  strconv.Itoa(perPage),
		}).
		SetResult(&out).
		SetError(&convert.ErrorBody{}).
		Get(readingsPath)
	if err := checkOK(res, err); err != nil {
		return model.Page[model.Reading]{}, err
	}
	return convert.ReadingPage(out), nil
}

// FetchTankPage fetches one page of a property's tanks.
func (c *Client) FetchTankPage(ctx context.Context, token, propertyID string, page, perPage int) (model.Page[model.Tank], error) {
	req, err := c.request(ctx, token)
	if err != nil {
		return model.Page[model.Tank]{}, err
	}
	var out convert.TanksPage
	res, err := req.
		SetPathParam("propertyId", propertyID).
		SetQueryParams(map[string]string{
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
		}).
		SetResult(&out).
		SetError(&convert.ErrorBody{}).
		Get(tanksPath)
	if err := checkOK(res, err); err != nil {
		return model.Page[model.Tank]{}, err
	}
	return convert.TankPage(out), nil
}

// FetchPropertyPage fetches one page of the properties visible to the token.
func (c *Client) FetchPropertyPage(ctx context.Context, token string, page, perPage int) (model.Page[model.Property], error) {
	req, err := c.request(ctx, token)
	if err != nil {
		return model.Page[model.Property]{}, err
	}
	var out convert.PropertiesPage
	res, err := req.
		SetQueryParams(map[string]string{
			"pagina_atual":     strconv.Itoa(page),
			"itens_por_pagina": strconv.Itoa(perPage),
		}).
		SetResult(&out).
		SetError(&convert.ErrorBody{}).
		Get(propertiesPath)
	if err := checkOK(res, err); err != nil {
		return model.Page[model.Property]{}, err
	}
	return convert.PropertyPage(out), nil
}

// FetchReadings downloads every reading of a tank.
func (c *Client) FetchReadings(ctx context.Context, token, tankID string) ([]model.Reading, error) {
	return FetchAll(ctx, c.pageSize, c.maxParallel, func(ctx context.Context, page, perPage int) (model.Page[model.Reading], error) {
		return c.FetchReadingPage(ctx, token, tankID, page, perPage)
	})
}

// FetchTanks downloads every tank of a property.
func (c *Client) FetchTanks(ctx context.Context, token, propertyID string) ([]model.Tank, error) {
	return FetchAll(ctx, c.pageSize, c.maxParallel, func(ctx context.Context, page, perPage int) (model.Page[model.Tank], error) {
		return c.FetchTankPage(ctx, token, propertyID, page, perPage)
	})
}

// FetchProperties downloads every property visible to the token.
func (c *Client) FetchProperties(ctx context.Context, token string) ([]model.Property, error) {
	return FetchAll(ctx, c.propertyPageSize, c.maxParallel, func(ctx context.Context, page, perPage int) (model.Page[model.Property], error) {
		return c.FetchPropertyPage(ctx, token, page, perPage)
	})
}

// PostBatch uploads readings in one request.
//
// 201 yields an empty outcome. 409 yields the rejected tank ids from the body.
// Any other response is a *errs.TransportError.
func (c *Client) PostBatch(ctx context.Context, token string, readings []model.Reading) (model.BatchOutcome, error) {
	if len(readings) == 0 {
		return model.BatchOutcome{}, nil
	}
	req, err := c.request(ctx, token)
	if err != nil {
		return model.BatchOutcome{}, err
	}
	conflict := &convert.ConflictBody{}
	res, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(convert.ToBatch(readings)).
		SetError(conflict).
		Post(batchPath)
	if err != nil {
		return model.BatchOutcome{}, transportErr(res, err)
	}

	switch res.StatusCode() {
	case http.StatusCreated:
		return model.BatchOutcome{}, nil
	case http.StatusConflict:
		rejected := conflict.RejectedTanks()
		c.log.Info("batch partially rejected",
			zap.Int("readings", len(readings)),
			zap.Strings("rejected_tanks", rejected),
		)
		return model.BatchOutcome{RejectedTanks: rejected}, nil
	default:
		return model.BatchOutcome{}, statusErr(res, &conflict.ErrorBody)
	}
}

// checkOK maps a non-2xx response or a client error to a TransportError.
func checkOK(res *resty.Response, err error) error {
	if err != nil {
		return transportErr(res, err)
	}
	if res.IsSuccess() {
		return nil
	}
	body, _ := res.Error().(*convert.ErrorBody)
	return statusErr(res, body)
}

func transportErr(res *resty.Response, err error) error {
	te := &errs.TransportError{Err: err}
	if res != nil && res.RawResponse != nil {
		te.Status = res.StatusCode()
		te.Message = err.Error()
	}
	return te
}

func statusErr(res *resty.Response, body *convert.ErrorBody) error {
	te := &errs.TransportError{Status: res.StatusCode()}
	if body != nil {
		te.Code, te.Message = body.Code, body.Message
	}
	if te.Message == "" {
		te.Message = http.StatusText(te.Status)
	}
	return te
}
