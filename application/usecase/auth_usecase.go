package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/application/usecase/federated"
	"github.com/securemedai/portal/domain/entity"
	domainerr "github.com/securemedai/portal/domain/error"
	"github.com/securemedai/portal/domain/valueobject"
)

const RegistrationSuccessMessage = "Registration successful! Please wait for admin approval."

// upstreamError is satisfied by hospital API failures that carry a message
// meant for the user.
type upstreamError interface {
	error
	HTTPStatus() int
	UserMessage() string
}

// LoginLimits configures per-IP throttling of password logins.
type LoginLimits struct {
	IPAttempts    int
	IPWindow      time.Duration
	BlockDuration time.Duration
}

type AuthUseCase struct {
	backend          outbound.BackendClient
	sessions         outbound.SessionStore
	federated        *federated.Service
	resolver         inbound.IdentityResolver
	rateLimitService inbound.RateLimitService
	notifier         outbound.Notifier
	logger           outbound.Logger
	limits           LoginLimits
	newSessionID     func() string
}

func NewAuthUseCase(
	backend outbound.BackendClient,
	sessions outbound.SessionStore,
	federatedService *federated.Service,
	resolver inbound.IdentityResolver,
	rateLimitService inbound.RateLimitService,
	notifier outbound.Notifier,
	logger outbound.Logger,
	limits LoginLimits,
) inbound.AuthUseCase {
	if limits.IPAttempts <= 0 {
		limits.IPAttempts = 5
	}
	if limits.IPWindow <= 0 {
		limits.IPWindow = 15 * time.Minute
	}
	if limits.BlockDuration <= 0 {
		limits.BlockDuration = 30 * time.Minute
	}
	return &AuthUseCase{
		backend:          backend,
		sessions:         sessions,
		federated:        federatedService,
		resolver:         resolver,
		rateLimitService: rateLimitService,
		notifier:         notifier,
		logger:           logger,
		limits:           limits,
		newSessionID:     uuid.NewString,
	}
}

func (uc *AuthUseCase) FederatedEnabled() bool {
	return uc.federated.Enabled()
}

func (uc *AuthUseCase) Login(ctx context.Context, sessionID string, req inbound.LoginRequest) (*inbound.LoginResponse, error) {
	ip := inbound.ClientIPFromContext(ctx)

	creds, err := valueobject.NewCredentials(req.Email, req.Password, req.Role)
	if err != nil {
		outbound.LogAuthEvent(ctx, uc.logger, "login_validation_failed", sessionID, ip, false, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, validationError(err)
	}

	if err := uc.checkRateLimit(ctx, ip); err != nil {
		return nil, err
	}

	res, err := uc.backend.Login(ctx, outbound.BackendLoginRequest{
		Email:    creds.Email(),
		Password: creds.Password(),
		Role:     string(creds.Role()),
	})
	if err != nil {
		var upstream upstreamError
		if errors.As(err, &upstream) {
			uc.recordFailure(ctx, ip)
			err = domainerr.ErrInvalidCredentials(upstreamMessage(err))
		}
		outbound.LogAuthEvent(ctx, uc.logger, "login_failed", sessionID, ip, false, map[string]interface{}{
			"role":  creds.Role(),
			"error": err.Error(),
		})
		uc.notify(ctx, sessionID, outbound.NotificationError, userMessage(err))
		return nil, err
	}

	role, ok := backendRole(res)
	if !ok {
		uc.logger.Warn(ctx, "Login response without token or role", map[string]interface{}{"role": res.Role})
		return nil, domainerr.ErrInvalidCredentials("")
	}

	email := res.Email
	if email == "" {
		email = creds.Email()
	}
	newID := uc.newSessionID()
	commit := entity.NewSessionCommit(res.Token.AccessToken, res.Token.RefreshToken, res.Name, role, email, res.UserDetails)
	if err := uc.sessions.Set(ctx, newID, commit); err != nil {
		return nil, domainerr.ErrInternal(fmt.Errorf("failed to commit session: %w", err))
	}
	// A password sign-in replaces whatever the pre-login session held,
	// including a provider-backed session.
	uc.retire(ctx, sessionID)

	outbound.LogAuthEvent(ctx, uc.logger, "login_success", newID, ip, true, map[string]interface{}{"role": role})
	uc.notify(ctx, newID, outbound.NotificationSuccess, "Login successful!")

	return &inbound.LoginResponse{
		Redirect:    entity.DashboardPath(role),
		DisplayName: entity.FirstName(res.Name),
		Role:        role,
		SessionID:   newID,
	}, nil
}

// retire ends the pre-login session after its credentials moved to a fresh
// id, so a planted session id never becomes authenticated.
func (uc *AuthUseCase) retire(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if uc.federated.Enabled() && uc.federated.Active(ctx, sessionID) {
		if err := uc.federated.SignOut(ctx, sessionID); err != nil {
			uc.logger.Warn(ctx, "Failed to end previous federated session", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := uc.sessions.Clear(ctx, sessionID); err != nil {
		uc.logger.Warn(ctx, "Failed to clear previous session", map[string]interface{}{"error": err.Error()})
	}
	uc.resolver.Discard(sessionID)
}

func (uc *AuthUseCase) BeginFederated(ctx context.Context) (*inbound.FederatedStart, error) {
	if !uc.federated.Enabled() {
		return nil, domainerr.ErrFederatedDisabled
	}
	req, err := uc.federated.Provider().BeginAuth()
	if err != nil {
		return nil, domainerr.ErrInternal(fmt.Errorf("failed to start federated sign-in: %w", err))
	}
	return &inbound.FederatedStart{
		AuthURL:      req.URL,
		State:        req.State,
		CodeVerifier: req.CodeVerifier,
	}, nil
}

func (uc *AuthUseCase) CompleteFederated(ctx context.Context, sessionID string, cb inbound.FederatedCallback) (*inbound.LoginResponse, error) {
	if !uc.federated.Enabled() {
		return nil, domainerr.ErrFederatedDisabled
	}
	if cb.Code == "" || cb.CodeVerifier == "" {
		return nil, domainerr.ErrInvalidState()
	}
	cred, err := uc.federated.Provider().ExchangeCode(ctx, cb.Code, cb.CodeVerifier)
	if err != nil {
		return nil, uc.providerFailed(ctx, sessionID, err)
	}
	return uc.completeFederated(ctx, sessionID, cred)
}

func (uc *AuthUseCase) SignInWithIDToken(ctx context.Context, sessionID, rawIDToken string) (*inbound.LoginResponse, error) {
	if !uc.federated.Enabled() {
		return nil, domainerr.ErrFederatedDisabled
	}
	if strings.TrimSpace(rawIDToken) == "" {
		return nil, domainerr.ErrValidation(domainerr.ErrCodeInvalidRequest, "id_token", "id_token is required")
	}
	cred, err := uc.federated.Provider().VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, uc.providerFailed(ctx, sessionID, err)
	}
	return uc.completeFederated(ctx, sessionID, cred)
}

// completeFederated exchanges a proven provider identity for an application
// session. The backend decides the role. Nothing is committed unless both
// steps succeed, and a failed exchange ends the provider session.
func (uc *AuthUseCase) completeFederated(ctx context.Context, sessionID string, cred *entity.FederatedCredential) (*inbound.LoginResponse, error) {
	newID := uc.newSessionID()
	if err := uc.federated.Establish(ctx, newID, *cred); err != nil {
		return nil, domainerr.ErrInternal(fmt.Errorf("failed to record federated session: %w", err))
	}

	fail := func(appErr *domainerr.AppError) (*inbound.LoginResponse, error) {
		if err := uc.federated.SignOut(ctx, newID); err != nil {
			uc.logger.Error(ctx, "Failed to tear down federated session", err, nil)
		}
		outbound.LogAuthEvent(ctx, uc.logger, "federated_exchange_failed", sessionID, inbound.ClientIPFromContext(ctx), false, map[string]interface{}{
			"provider": cred.Provider,
			"error":    appErr.Error(),
		})
		uc.notify(ctx, sessionID, outbound.NotificationError, appErr.Message)
		return nil, appErr
	}

	res, err := uc.backend.ExchangeIDToken(ctx, cred.IDToken)
	if err != nil {
		return fail(domainerr.ErrTokenExchangeFailed(upstreamMessage(err), err))
	}
	role, ok := backendRole(res)
	if !ok {
		return fail(domainerr.ErrTokenExchangeFailed("", errors.New("exchange response without token or role")))
	}

	name := res.Name
	if name == "" {
		name = cred.Name
	}
	email := res.Email
	if email == "" {
		email = cred.Email
	}
	commit := entity.NewSessionCommit(res.Token.AccessToken, res.Token.RefreshToken, name, role, email, res.UserDetails).AsFederated()
	if err := uc.sessions.Set(ctx, newID, commit); err != nil {
		return fail(domainerr.ErrInternal(fmt.Errorf("failed to commit session: %w", err)))
	}
	uc.retire(ctx, sessionID)

	outbound.LogAuthEvent(ctx, uc.logger, "federated_login_success", newID, inbound.ClientIPFromContext(ctx), true, map[string]interface{}{
		"provider": cred.Provider,
		"role":     role,
	})
	uc.notify(ctx, newID, outbound.NotificationSuccess, "Login successful!")

	return &inbound.LoginResponse{
		Redirect:    entity.DashboardPath(role),
		DisplayName: entity.FirstName(name),
		Role:        role,
		SessionID:   newID,
	}, nil
}

func (uc *AuthUseCase) Register(ctx context.Context, req inbound.RegisterRequest) (*inbound.RegisterResponse, error) {
	role, ok := entity.ParseRole(req.Role)
	if !ok || role == entity.RoleHospitalAdmin {
		return nil, domainerr.ErrValidation(domainerr.ErrCodeInvalidRole, "role", "Please select your role")
	}
	if req.UserData == nil {
		return nil, domainerr.ErrValidation(domainerr.ErrCodeInvalidRequest, "user_data", "user_data is required")
	}
	email, _ := req.UserData["email"].(string)
	if !valueobject.ValidEmail(email) {
		return nil, domainerr.ErrValidation(domainerr.ErrCodeInvalidEmail, "email", "Invalid email address")
	}
	if password, _ := req.UserData["password"].(string); password == "" {
		return nil, domainerr.ErrValidation(domainerr.ErrCodeMissingPassword, "password", "Password is required")
	}
	profile := req.ProfileData
	if profile == nil {
		profile = map[string]interface{}{}
	}

	data, err := uc.backend.Register(ctx, role, outbound.BackendRegistration{UserData: req.UserData, ProfileData: profile})
	if err != nil {
		var upstream upstreamError
		if errors.As(err, &upstream) {
			err = domainerr.ErrRegistrationRejected(upstreamMessage(err))
		}
		outbound.LogAuthEvent(ctx, uc.logger, "registration_failed", "", inbound.ClientIPFromContext(ctx), false, map[string]interface{}{
			"role":  role,
			"error": err.Error(),
		})
		return nil, err
	}

	outbound.LogAuthEvent(ctx, uc.logger, "registration_submitted", "", inbound.ClientIPFromContext(ctx), true, map[string]interface{}{"role": role})
	return &inbound.RegisterResponse{Message: RegistrationSuccessMessage, Data: data}, nil
}

// Logout is idempotent: it always leaves the session empty.
func (uc *AuthUseCase) Logout(ctx context.Context, sessionID string) (*inbound.LogoutResponse, error) {
	if uc.federated.Enabled() {
		if err := uc.federated.SignOut(ctx, sessionID); err != nil {
			uc.logger.Error(ctx, "Federated sign-out failed during logout", err, nil)
		}
	}
	if err := uc.sessions.Clear(ctx, sessionID); err != nil {
		return nil, domainerr.ErrInternal(fmt.Errorf("failed to clear session: %w", err))
	}
	uc.resolver.Discard(sessionID)

	outbound.LogAuthEvent(ctx, uc.logger, "logout", sessionID, inbound.ClientIPFromContext(ctx), true, nil)
	uc.notify(ctx, sessionID, outbound.NotificationSuccess, "Logged out successfully")
	return &inbound.LogoutResponse{Redirect: entity.LoginPath}, nil
}

func (uc *AuthUseCase) checkRateLimit(ctx context.Context, ip string) error {
	if uc.rateLimitService == nil {
		return nil
	}
	key := "login:ip:" + ip

	blocked, err := uc.rateLimitService.IsBlocked(ctx, key)
	if err != nil {
		uc.logger.Error(ctx, "Failed to check IP block status", err, map[string]interface{}{"ip": ip})
	}
	if blocked {
		outbound.LogSecurityEvent(ctx, uc.logger, "blocked_ip_login_attempt", "MEDIUM", map[string]interface{}{"ip": ip})
		return domainerr.ErrIPBlocked(ip)
	}

	allowed, err := uc.rateLimitService.CheckLimit(ctx, key, uc.limits.IPAttempts, uc.limits.IPWindow)
	if err != nil {
		uc.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"ip": ip})
		return nil
	}
	if !allowed {
		if err := uc.rateLimitService.Block(ctx, key, uc.limits.BlockDuration, "Rate limit exceeded"); err != nil {
			uc.logger.Error(ctx, "Failed to block IP", err, map[string]interface{}{"ip": ip})
		}
		outbound.LogSecurityEvent(ctx, uc.logger, "ip_rate_limit_exceeded", "HIGH", map[string]interface{}{"ip": ip})
		return domainerr.ErrRateLimitExceeded(uc.limits.IPAttempts, uc.limits.IPWindow.String())
	}
	return nil
}

func (uc *AuthUseCase) recordFailure(ctx context.Context, ip string) {
	if uc.rateLimitService == nil {
		return
	}
	if err := uc.rateLimitService.Increment(ctx, "login:ip:"+ip, uc.limits.IPWindow); err != nil {
		uc.logger.Error(ctx, "Failed to record login failure", err, map[string]interface{}{"ip": ip})
	}
}

func (uc *AuthUseCase) providerFailed(ctx context.Context, sessionID string, cause error) error {
	appErr := domainerr.ErrProviderFailed(cause)
	outbound.LogAuthEvent(ctx, uc.logger, "federated_provider_failed", sessionID, inbound.ClientIPFromContext(ctx), false, map[string]interface{}{
		"error": cause.Error(),
	})
	uc.notify(ctx, sessionID, outbound.NotificationError, appErr.Message)
	return appErr
}

func (uc *AuthUseCase) notify(ctx context.Context, sessionID string, level outbound.NotificationLevel, message string) {
	if uc.notifier == nil || sessionID == "" {
		return
	}
	err := uc.notifier.Push(ctx, sessionID, outbound.Notification{Level: level, Message: message, CreatedAt: time.Now().UTC()})
	if err != nil {
		uc.logger.Warn(ctx, "Failed to queue notification", map[string]interface{}{"error": err.Error()})
	}
}

// backendRole normalizes known role names and keeps unknown ones verbatim;
// the backend is authoritative for role assignment.
func backendRole(res *outbound.BackendAuthResult) (entity.Role, bool) {
	if res == nil || res.Token.AccessToken == "" || strings.TrimSpace(res.Role) == "" {
		return "", false
	}
	if role, ok := entity.ParseRole(res.Role); ok {
		return role, true
	}
	return entity.Role(strings.TrimSpace(res.Role)), true
}

func validationError(err error) error {
	var fieldErr *valueobject.FieldError
	if !errors.As(err, &fieldErr) {
		return domainerr.ErrInvalidRequest(err.Error())
	}
	code := domainerr.ErrCodeInvalidRequest
	switch fieldErr.Field {
	case "email":
		code = domainerr.ErrCodeInvalidEmail
	case "password":
		code = domainerr.ErrCodeMissingPassword
	case "role":
		code = domainerr.ErrCodeInvalidRole
	}
	return domainerr.ErrValidation(code, fieldErr.Field, fieldErr.Message)
}

// upstreamMessage returns the user-facing message of a hospital API
// failure, or "" so the caller's generic fallback applies.
func upstreamMessage(err error) string {
	var upstream upstreamError
	if !errors.As(err, &upstream) {
		return ""
	}
	return upstream.UserMessage()
}

func userMessage(err error) string {
	var appErr *domainerr.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An error occurred"
}
