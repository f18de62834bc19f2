// Package backend talks to the hospital REST API: the unauthenticated auth
// endpoints through Client, and every authorized call through Gateway.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
	domainerr "github.com/securemedai/portal/domain/error"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

const (
	loginPath         = "/user/login/"
	federatedAuthPath = "/user/firebase-auth/"
	maxBodyBytes      = 10 << 20
)

var registrationPaths = map[entity.Role]string{
	entity.RoleDoctor:  "/api/doctor/registration/",
	entity.RolePatient: "/api/patient/registration/",
}

// ErrResponseTooLarge reports an upstream body over the read limit.
var ErrResponseTooLarge = errors.New("backend response exceeds size limit")

// Response is a fully read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client calls the endpoints that establish a session. They carry no
// credential and never tear a session down.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

var _ outbound.BackendClient = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

func (c *Client) Login(ctx context.Context, req outbound.BackendLoginRequest) (*outbound.BackendAuthResult, error) {
	var result outbound.BackendAuthResult
	if err := c.postJSON(ctx, loginPath, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ExchangeIDToken(ctx context.Context, idToken string) (*outbound.BackendAuthResult, error) {
	var result outbound.BackendAuthResult
	body := map[string]string{"id_token": idToken}
	if err := c.postJSON(ctx, federatedAuthPath, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Register(ctx context.Context, role entity.Role, req outbound.BackendRegistration) (map[string]interface{}, error) {
	path, ok := registrationPaths[role]
	if !ok {
		return nil, domainerr.ErrValidation(domainerr.ErrCodeInvalidRole, "role", "Registration is only available for patients and doctors")
	}
	var result map[string]interface{}
	if err := c.postJSON(ctx, path, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := send(ctx, c.httpClient, http.MethodPost, c.baseURL+path, bytes.NewReader(payload), header, maxBodyBytes)
	if err != nil {
		c.logger.Error(ctx, "Backend request failed", err, map[string]interface{}{"path": path})
		return domainerr.ErrExternalService(GenericErrorMessage, err)
	}

	if resp.Status >= http.StatusBadRequest {
		c.logger.Warn(ctx, "Backend rejected request", map[string]interface{}{"path": path, "status": resp.Status})
		return &APIError{Status: resp.Status, Message: ExtractMessage(resp.Body, ""), Body: resp.Body}
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return domainerr.ErrExternalService(GenericErrorMessage, fmt.Errorf("failed to decode %s response: %w", path, err))
	}
	return nil
}

func send(ctx context.Context, client *http.Client, method, url string, body io.Reader, header http.Header, limit int64) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body, limit)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// readBody reads at most limit bytes and fails rather than truncate.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, limit)
	}
	return data, nil
}
