// Package gateway is the thin HTTP boundary to the opname backend. Each
// method issues exactly one request and normalizes the outcome into typed
// results and errors; retry policy belongs to the caller and none is applied
// here.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/rekadana/opname/internal/config"
	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/model"
)

const (
	masterPath = "/master"
	helpPath   = "/help"
)

// Client is a resty-backed implementation of the backend surface.
type Client struct {
	http     *resty.Client
	authPath string
	mainPath string
	log      *zap.Logger
}

// New builds a backend client from the API configuration.
func New(cfg config.APIConfig, logger *zap.Logger) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/") + cfg.APIPath

	rc := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     rc,
		authPath: cfg.AuthPath,
		mainPath: cfg.MainPath,
		log:      logger.Named("gateway"),
	}
}

// apiError is the structured error payload the backend attaches to non-2xx
// responses.
type apiError struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *apiError) message() string {
	if e == nil {
		return ""
	}
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// LoginResult is the successful login payload.
type LoginResult struct {
	Token string            `json:"token"`
	User  model.UserProfile `json:"user"`
}

// RefreshResult is the token validation payload. An empty Token means the
// current token is still valid and no replacement was issued.
type RefreshResult struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    model.UserProfile `json:"user"`
}

// ItemsResult is the item listing for one draft.
type ItemsResult struct {
	Date  string             `json:"date"`
	Items []model.ItemRecord `json:"items"`
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login authenticates with username/password and returns the issued token and
// profile.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	out := new(LoginResult)
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(out).
		SetError(apiErr).
		Post(c.authPath + "/users/login")
	if rerr := c.normalize("login", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if out.Token == "" {
		return nil, &errs.BackendError{Message: "invalid login response"}
	}
	c.log.Info("login ok", zap.String("username", out.User.Username))
	return out, nil
}

// Logout tells the backend to invalidate the token. Best-effort: callers are
// expected to clear local state whether or not this succeeds.
func (c *Client) Logout(ctx context.Context, token string) error {
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetError(apiErr).
		Post(c.authPath + "/users/logout")
	return c.normalize("logout", resp, apiErr, err)
}

// ValidateToken asks the backend to validate the token and possibly issue a
// fresh one.
func (c *Client) ValidateToken(ctx context.Context, token string) (*RefreshResult, error) {
	out := new(RefreshResult)
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(out).
		SetError(apiErr).
		Get(c.mainPath + "/token/refresh")
	if rerr := c.normalize("validate token", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if !out.Success {
		return nil, fmt.Errorf("validate token: %w", errs.ErrUnauthorized)
	}
	return out, nil
}

// ListDrafts fetches the draft sessions for one office/department.
func (c *Client) ListDrafts(ctx context.Context, office, department, token string) ([]model.DraftRecord, error) {
	var out struct {
		envelope
		Data []model.DraftRecord `json:"data"`
	}
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"office": office, "department": department}).
		SetResult(&out).
		SetError(apiErr).
		Post(c.mainPath + "/records/drafts")
	if rerr := c.normalize("list drafts", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if !out.Success {
		return nil, &errs.BackendError{Message: out.Message}
	}
	return out.Data, nil
}

// ListItems fetches all item lines of one draft.
func (c *Client) ListItems(ctx context.Context, noref, token string) (*ItemsResult, error) {
	var out struct {
		envelope
		Data ItemsResult `json:"data"`
	}
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"noref": noref}).
		SetResult(&out).
		SetError(apiErr).
		Post(c.mainPath + "/records/items")
	if rerr := c.normalize("list items", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if !out.Success {
		return nil, &errs.BackendError{Message: out.Message}
	}
	return &out.Data, nil
}

// GetProgress fetches draft vs updated counters for one draft.
func (c *Client) GetProgress(ctx context.Context, noref, token string) ([]model.ProgressRecord, error) {
	var out struct {
		envelope
		Data []model.ProgressRecord `json:"data"`
	}
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"noref": noref}).
		SetResult(&out).
		SetError(apiErr).
		Post(c.mainPath + "/records/progress")
	if rerr := c.normalize("get progress", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if !out.Success {
		return nil, &errs.BackendError{Message: out.Message}
	}
	return out.Data, nil
}

// CheckItem looks up an item inside a draft by serial number or asset tag.
// An empty slice means the serial is unknown to this draft.
func (c *Client) CheckItem(ctx context.Context, noref, noid, token string) ([]model.ItemRecord, error) {
	var out struct {
		envelope
		Data []model.ItemRecord `json:"data"`
	}
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"noref": noref, "noid": noid}).
		SetResult(&out).
		SetError(apiErr).
		Post(c.mainPath + "/records/process")
	if rerr := c.normalize("check item", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if !out.Success {
		return nil, &errs.BackendError{Message: out.Message}
	}
	return out.Data, nil
}

// SaveItem persists one counted item, photo payload included when present.
func (c *Client) SaveItem(ctx context.Context, req model.SaveItemRequest, token string) error {
	body := map[string]any{
		"nocode":    req.ItemID,
		"noid":      req.Serial,
		"condition": req.ConditionID,
		"location":  req.Location,
		"user":      req.Username,
	}
	if req.PhotoBase64 != "" {
		body["photo"] = req.PhotoBase64
	} else {
		body["photo"] = nil
	}

	var out envelope
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&out).
		SetError(apiErr).
		Put(c.mainPath + "/records/process/" + req.NoRef)
	if rerr := c.normalize("save item", resp, apiErr, err); rerr != nil {
		return rerr
	}
	if !out.Success {
		return &errs.BackendError{Message: out.Message}
	}
	c.log.Info("item saved", zap.String("noref", req.NoRef), zap.String("item", req.ItemID))
	return nil
}

// ListConditions fetches the condition code enumeration.
func (c *Client) ListConditions(ctx context.Context, token string) ([]model.ConditionCode, error) {
	var out struct {
		envelope
		Kondisi []model.ConditionCode `json:"kondisi"`
	}
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		SetError(apiErr).
		Get(masterPath + "/kondisi")
	if rerr := c.normalize("list conditions", resp, apiErr, err); rerr != nil {
		return nil, rerr
	}
	if !out.Success {
		return nil, &errs.BackendError{Message: out.Message}
	}
	return out.Kondisi, nil
}

// UploadLog ships the application log file with a user message attached.
func (c *Client) UploadLog(ctx context.Context, message, logFilePath, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	fileName := fmt.Sprintf("app-log-%s.log", now)

	var out envelope
	apiErr := new(apiError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetFile("file", filepath.Clean(logFilePath)).
		SetFormData(map[string]string{
			"platform":  runtime.GOOS,
			"timestamp": now,
			"message":   message,
			"name":      fileName,
		}).
		SetResult(&out).
		SetError(apiErr).
		Post(helpPath + "/upload-log")
	if rerr := c.normalize("upload log", resp, apiErr, err); rerr != nil {
		return rerr
	}
	if !out.Success {
		return &errs.BackendError{Message: out.Message}
	}
	return nil
}

// normalize maps transport failures and non-2xx statuses to the error
// taxonomy: a structured backend message wins over the transport text, and
// 401 always surfaces as ErrUnauthorized.
func (c *Client) normalize(op string, resp *resty.Response, apiErr *apiError, err error) error {
	if err != nil {
		c.log.Error(op, zap.Error(err))
		return fmt.Errorf("%s: %w: %v", op, errs.ErrTransport, err)
	}
	if resp == nil {
		return fmt.Errorf("%s: %w: empty response", op, errs.ErrTransport)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		msg := apiErr.message()
		c.log.Error(op, zap.Int("status", resp.StatusCode()), zap.String("message", msg))
		if resp.StatusCode() == http.StatusUnauthorized {
			if msg != "" {
				return fmt.Errorf("%s: %w: %s", op, errs.ErrUnauthorized, msg)
			}
			return fmt.Errorf("%s: %w", op, errs.ErrUnauthorized)
		}
		if msg != "" {
			return &errs.BackendError{Message: msg}
		}
		return fmt.Errorf("%s: %w: status %d", op, errs.ErrTransport, resp.StatusCode())
	}
	return nil
}
