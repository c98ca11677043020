package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"travel-service/internal/util"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	opInitialize = "initialize"
	opVerify     = "verify"

	statusSuccess = "success"
	statusPending = "pending"
)

// Config holds the Chapa client settings. SecretKey is sent as a bearer token
// and is never logged.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client talks to the Chapa transaction API
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a Chapa client. Every request shares cfg.Timeout.
func NewClient(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: util.GetLogger().Named("chapa"),
	}
}

// Initialize opens a hosted checkout for req and returns its URL
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	ctx, span := util.StartSpan(ctx, "ChapaClient.Initialize", attribute.String("tx_ref", req.TxRef))
	defer span.End()

	start := time.Now()
	result, err := c.initialize(ctx, req)
	c.observe(opInitialize, start, err)
	util.SpanError(span, err)
	return result, err
}

func (c *Client) initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	payload := initializePayload{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		Customization: customization{
			Title:       req.Title,
			Description: req.Description,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/transaction/initialize")
	if err != nil {
		c.logger.Error("Chapa initialize request failed",
			zap.String("tx_ref", req.TxRef),
			zap.Error(err))
		return nil, &Error{Kind: KindUnreachable, Op: opInitialize, Err: err}
	}

	if !isSuccessStatus(resp.StatusCode()) {
		return nil, c.rejected(opInitialize, req.TxRef, resp)
	}

	var body initializeResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: opInitialize, Err: fmt.Errorf("decode body: %w", err)}
	}

	if body.Status != statusSuccess {
		msg := string(body.Message)
		if msg == "" {
			msg = "Initialization failed"
		}
		c.logger.Warn("Chapa declined initialization",
			zap.String("tx_ref", req.TxRef),
			zap.String("status", body.Status),
			zap.String("message", msg))
		return nil, &Error{Kind: KindDeclined, Op: opInitialize, StatusCode: resp.StatusCode(), Message: msg}
	}

	if body.Data == nil || body.Data.CheckoutURL == "" {
		return nil, &Error{Kind: KindMalformed, Op: opInitialize, Message: "missing data.checkout_url"}
	}

	txRef := body.Data.TxRef
	if txRef == "" {
		txRef = req.TxRef
	}

	return &InitializeResult{
		CheckoutURL: body.Data.CheckoutURL,
		TxRef:       txRef,
	}, nil
}

// Verify asks Chapa for the current state of txRef. A transaction that Chapa
// reports as anything but "success" is returned with Succeeded=false, not as an error.
func (c *Client) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "ChapaClient.Verify", attribute.String("tx_ref", txRef))
	defer span.End()

	start := time.Now()
	result, err := c.verify(ctx, txRef)

	outcome := err
	if err == nil && !result.Succeeded {
		outcome = errNotSucceeded
	}
	c.observe(opVerify, start, outcome)
	util.SpanError(span, err)
	return result, err
}

var errNotSucceeded = errors.New("not succeeded")

func (c *Client) verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/transaction/verify/" + url.PathEscape(txRef))
	if err != nil {
		c.logger.Error("Chapa verify request failed",
			zap.String("tx_ref", txRef),
			zap.Error(err))
		return nil, &Error{Kind: KindUnreachable, Op: opVerify, Err: err}
	}

	if !isSuccessStatus(resp.StatusCode()) {
		return nil, c.rejected(opVerify, txRef, resp)
	}

	var body verifyResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: opVerify, Err: fmt.Errorf("decode body: %w", err)}
	}
	if body.Status == "" {
		return nil, &Error{Kind: KindMalformed, Op: opVerify, Message: "missing status"}
	}

	result := &VerifyResult{
		Status:  body.Status,
		Message: string(body.Message),
		TxRef:   txRef,
	}

	if body.Status != statusSuccess {
		return result, nil
	}
	if body.Data == nil || body.Data.Status == "" {
		return nil, &Error{Kind: KindMalformed, Op: opVerify, Message: "missing data.status"}
	}

	result.Status = body.Data.Status
	result.Succeeded = body.Data.Status == statusSuccess
	result.Pending = strings.EqualFold(body.Data.Status, statusPending)
	result.Amount = body.Data.Amount
	result.Currency = body.Data.Currency
	if body.Data.TxRef != "" {
		result.TxRef = body.Data.TxRef
	}

	c.logger.Info("Chapa verification result",
		zap.String("tx_ref", txRef),
		zap.String("status", result.Status))

	return result, nil
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

func (c *Client) rejected(op, txRef string, resp *resty.Response) error {
	msg := resp.Status()
	var body errorResponse
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		msg = string(body.Message)
	}

	c.logger.Error("Chapa API returned an error",
		zap.String("operation", op),
		zap.String("tx_ref", txRef),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("message", msg))

	return &Error{Kind: KindRejected, Op: op, StatusCode: resp.StatusCode(), Message: msg}
}

func (c *Client) observe(op string, start time.Time, err error) {
	outcome := "ok"
	var gwErr *Error
	switch {
	case errors.As(err, &gwErr):
		outcome = gwErr.Kind.String()
	case errors.Is(err, errNotSucceeded):
		outcome = "not_succeeded"
	case err != nil:
		outcome = "error"
	}
	util.GatewayRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
