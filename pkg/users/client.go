package users

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/types"
)

const tracerName = "github.com/memtensor/userdesk/pkg/users"

// Default client settings
const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 200 * time.Millisecond
	DefaultMaxListLimit  = 100
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always returns the same token
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	MaxListLimit  int
	Tokens        TokenSource
	Logger        interfaces.Logger
	Metrics       interfaces.Metrics
	Tracer        trace.Tracer
	HTTPClient    *http.Client
}

// Client is the REST client for the user backend
type Client struct {
	http         *resty.Client
	tokens       TokenSource
	attempts     uint
	delay        time.Duration
	maxListLimit int
	logger       interfaces.Logger
	metrics      interfaces.Metrics
	tracer       trace.Tracer
}

// NewClient creates a client for the backend at opts.BaseURL
func NewClient(opts ClientOptions) (*Client, error) {
	if !IsSafeURL(opts.BaseURL) {
		return nil, errors.NewInvalidFormatError("base_url", "absolute http(s) URL")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxListLimit <= 0 {
		opts.MaxListLimit = DefaultMaxListLimit
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(opts.BaseURL)
	rc.SetTimeout(opts.Timeout)
	rc.SetHeader("Content-Type", "application/json")
	rc.SetHeader("Accept", "application/json")
	rc.SetHeader("User-Agent", "userdesk/1.0")

	return &Client{
		http:         rc,
		tokens:       opts.Tokens,
		attempts:     opts.RetryAttempts,
		delay:        opts.RetryDelay,
		maxListLimit: opts.MaxListLimit,
		logger:       opts.Logger.WithFields(map[string]interface{}{"component": "users.client"}),
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
	}, nil
}

// GetUser fetches one user
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var user User
	err := c.retrying(ctx, "get_user", func(ctx context.Context) error {
		req, err := c.authorized(ctx)
		if err != nil {
			return err
		}
		resp, err := req.SetPathParam("id", id).SetResult(&user).Get("/users/{id}")
		return c.check("get user", resp, err)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser sends a partial update with only the changed fields and
// returns the user as stored by the backend
func (c *Client) UpdateUser(ctx context.Context, id string, changes map[string]interface{}) (*User, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := ValidateUpdate(changes); err != nil {
		return nil, err
	}

	var user User
	err := c.once(ctx, "update_user", func(ctx context.Context) error {
		req, err := c.authorized(ctx)
		if err != nil {
			return err
		}
		resp, err := req.SetPathParam("id", id).SetBody(changes).SetResult(&user).Patch("/users/{id}")
		return c.check("update user", resp, err)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers fetches one page of users. page is 1-based and limit must not
// exceed the configured maximum.
func (c *Client) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		return nil, errors.NewInvalidInputError("page must be at least 1").WithDetail("page", page)
	}
	if limit < 1 || limit > c.maxListLimit {
		return nil, errors.NewInvalidInputError("limit out of range").
			WithDetail("limit", limit).WithDetail("max", c.maxListLimit)
	}

	var result UserPage
	err := c.retrying(ctx, "list_users", func(ctx context.Context) error {
		req, err := c.authorized(ctx)
		if err != nil {
			return err
		}
		resp, err := req.SetQueryParams(map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(limit),
		}).SetResult(&result).Get("/users")
		return c.check("list users", resp, err)
	})
	if err != nil {
		return nil, err
	}
	if result.Page == 0 {
		result.Page = page
	}
	if result.Limit == 0 {
		result.Limit = limit
	}
	if result.Users == nil {
		result.Users = []User{}
	}
	return &result, nil
}

// DeleteUser deletes one user
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	return c.once(ctx, "delete_user", func(ctx context.Context) error {
		req, err := c.authorized(ctx)
		if err != nil {
			return err
		}
		resp, err := req.SetPathParam("id", id).Delete("/users/{id}")
		return c.check("delete user", resp, err)
	})
}

// Login exchanges credentials for a token. Unknown users and wrong
// passwords fail with the same error.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := validate.Struct(creds); err != nil {
		return nil, errors.NewValidationError("username and password are required")
	}

	var result LoginResult
	err := c.once(ctx, "login", func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetBody(creds).SetResult(&result).Post("/login")
		if err == nil {
			switch resp.StatusCode() {
			case http.StatusUnauthorized, http.StatusNotFound, http.StatusForbidden:
				return errors.NewUnauthorizedError(InvalidCredentialsMessage)
			}
		}
		return c.check("login", resp, err)
	})
	if err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, errors.NewAPIError("login", http.StatusOK).WithDetail("reason", "no token in response")
	}
	return &result, nil
}

// InvalidCredentialsMessage is the only message a failed login reports
const InvalidCredentialsMessage = "invalid username or password"

// ChangePassword asks the backend to replace the caller's password
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	if change.OldPassword == "" || change.NewPassword == "" {
		return errors.NewValidationError("old and new password are required")
	}
	return c.once(ctx, "change_password", func(ctx context.Context) error {
		req, err := c.authorized(ctx)
		if err != nil {
			return err
		}
		resp, err := req.SetBody(change).Post("/change-password")
		return c.check("change password", resp, err)
	})
}

// HealthCheck probes the backend's user list with the smallest page
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListUsers(ctx, 1, 1)
	if errors.IsCode(err, errors.ErrCodeUnauthorized) {
		return nil
	}
	return err
}

func (c *Client) authorized(ctx context.Context) (*resty.Request, error) {
	if c.tokens == nil {
		return nil, errors.NewUnauthorizedError("not signed in")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.NewUnauthorizedError("not signed in")
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

// check maps a transport error or a non-2xx status to a structured error.
// The response body is never included.
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		var netErr net.Error
		switch {
		case stderrors.Is(err, context.Canceled):
			return err
		case stderrors.Is(err, context.DeadlineExceeded), stderrors.As(err, &netErr) && netErr.Timeout():
			return errors.NewTimeoutError(op)
		default:
			return errors.WrapError(err, types.ErrorTypeExternal, errors.ErrCodeServiceUnavailable,
				op+" failed: backend unreachable")
		}
	}

	status := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return nil
	case status == http.StatusUnauthorized:
		return errors.NewUnauthorizedError("session is not valid")
	case status == http.StatusForbidden:
		return errors.NewForbiddenError(op + " is not permitted")
	case status == http.StatusNotFound:
		return errors.NewNotFoundError("user")
	case status == http.StatusConflict:
		return errors.NewConflictError(op + " conflicts with the current state")
	case status == http.StatusTooManyRequests:
		return errors.NewRateLimitedError(op + " was rate limited")
	default:
		return errors.NewAPIError(op, status)
	}
}

// retrying runs an idempotent call with backoff on retryable failures
func (c *Client) retrying(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.once(ctx, op, func(ctx context.Context) error {
		return retry.Do(
			func() error { return fn(ctx) },
			retry.Attempts(c.attempts),
			retry.Delay(c.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(errors.IsRetryable),
			retry.OnRetry(func(n uint, err error) {
				c.metrics.Counter("users_client_retries_total", 1, map[string]string{"op": op})
				c.logger.Warn("retrying backend call", map[string]interface{}{
					"op":      op,
					"attempt": n + 1,
					"error":   err.Error(),
				})
			}),
			retry.Context(ctx),
		)
	})
}

// once wraps a call in a span and records its outcome
func (c *Client) once(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "users."+op, trace.WithAttributes(attribute.String("users.op", op)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = string(errors.GetCode(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	labels := map[string]string{"op": op, "outcome": outcome}
	c.metrics.Counter("users_client_requests_total", 1, labels)
	c.metrics.Timer("users_client_request_duration_seconds", time.Since(start).Seconds(), map[string]string{"op": op})
	return err
}

func checkID(id string) error {
	if !userIDPattern.MatchString(id) {
		return errors.NewInvalidFormatError("id", "1-64 letters, digits, '-' or '_'")
	}
	return nil
}
