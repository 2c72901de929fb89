package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/booking"
	"github.com/iliyamo/cinema-ticket-booking/internal/config"
	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/queue"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
	"github.com/iliyamo/cinema-ticket-booking/internal/utils"
)

const minPasswordLen = 6

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	OTPs   *repository.OTPRepo
	Events EventPublisher
	Log    *zap.Logger
	Now    func() time.Time
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, o *repository.OTPRepo, ev EventPublisher, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, OTPs: o, Events: ev, Log: log, Now: time.Now}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotReq struct {
	Email string `json:"email"`
}

type otpReq struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    *model.User `json:"user"`
	Access  tokenPart   `json:"access"`
	Refresh tokenPart   `json:"refresh"`
}

// issue creates an access/refresh pair for u and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u *model.User) (authResp, error) {
	now := h.Now()
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin, now)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays, now)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates a CUSTOMER account and returns tokens immediately.
// Admin accounts are only created by bootstrap or promoted by an admin.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = repository.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return badRequest(c, "name is required")
	}
	if !booking.ValidEmail(req.Email) {
		return badRequest(c, "invalid email")
	}
	if len(req.Password) < minPasswordLen {
		return badRequest(c, "password must be at least 6 characters")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u := &model.User{Name: req.Name, Email: req.Email, Phone: req.Phone, Role: model.RoleCustomer}
	if err := h.Users.Create(ctx, u, req.Password, h.Cfg.BcryptCost); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(c, http.StatusConflict, "email already exists", nil)
		}
		return fail(c, http.StatusInternalServerError, "create user failed", err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue tokens failed", err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = repository.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid credentials", nil)
		}
		return dbError(c, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "invalid credentials", nil)
	}
	if !u.IsActive {
		return fail(c, http.StatusForbidden, "account disabled", nil)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue tokens failed", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is returned.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	oldHash := utils.HashRefreshRaw(req.RefreshToken)
	uid, err := h.Tokens.ValidateRefresh(ctx, oldHash, h.Now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token", nil)
		}
		return dbError(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token", nil)
		}
		return dbError(c, err)
	}
	if !u.IsActive {
		return fail(c, http.StatusForbidden, "account disabled", nil)
	}

	now := h.Now()
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin, now)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue access failed", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays, now)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue refresh failed", err)
	}
	if err := h.Tokens.Rotate(ctx, u.ID, oldHash, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}

// Logout revokes the presented refresh token.  It succeeds even when the
// token is unknown.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(req.RefreshToken)); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusNotFound, "user not found", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

const forgotMessage = "if the account exists, a code has been sent"

// ForgotPassword issues a one-time code and hands it to the mailer queue.
// The response is identical whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email := repository.NormalizeEmail(req.Email)
	if !booking.ValidEmail(email) {
		return badRequest(c, "invalid email")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"message": forgotMessage})
		}
		return dbError(c, err)
	}
	if !u.IsActive {
		return c.JSON(http.StatusOK, echo.Map{"message": forgotMessage})
	}

	code, err := utils.NewOTP(6)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "generate code failed", err)
	}
	hash, err := utils.HashPassword(code, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "generate code failed", err)
	}
	now := h.Now().UTC()
	otp := &model.PasswordOTP{UserID: u.ID, CodeHash: hash, ExpiresAt: now.Add(h.Cfg.OTPTTL)}
	if err := h.OTPs.Create(ctx, otp); err != nil {
		return dbError(c, err)
	}
	if h.Events != nil {
		ev := queue.PasswordResetRequestedEvent{
			UserID:      u.ID,
			Email:       u.Email,
			Code:        code,
			ExpiresAt:   otp.ExpiresAt.Format(time.RFC3339),
			RequestedAt: now.Format(time.RFC3339),
		}
		if err := h.Events.PublishPasswordReset(ctx, ev); err != nil {
			h.Log.Warn("publish password reset failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": forgotMessage})
}

var errBadCode = errors.New("invalid or expired code")

// checkCode validates code for email.  Wrong guesses count towards
// OTPMaxAttempts; once exhausted the code is burned.
func (h *AuthHandler) checkCode(ctx context.Context, email, code string) (*model.User, *model.PasswordOTP, error) {
	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, errBadCode
		}
		return nil, nil, err
	}
	otp, err := h.OTPs.LatestActive(ctx, u.ID, h.Now())
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, nil, errBadCode
		}
		return nil, nil, err
	}
	limit := uint32(h.Cfg.OTPMaxAttempts)
	if otp.Attempts >= limit {
		_ = h.OTPs.MarkUsed(ctx, otp.ID)
		return nil, nil, errBadCode
	}
	if !utils.VerifyPassword(otp.CodeHash, code) {
		n, err := h.OTPs.IncrementAttempts(ctx, otp.ID)
		if err != nil {
			return nil, nil, err
		}
		if n >= limit {
			_ = h.OTPs.MarkUsed(ctx, otp.ID)
		}
		return nil, nil, errBadCode
	}
	return u, otp, nil
}

// VerifyOTP checks a code without consuming it so the client can move on
// to the new-password form.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req otpReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = repository.NormalizeEmail(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		return badRequest(c, "email and code required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if _, _, err := h.checkCode(ctx, req.Email, req.Code); err != nil {
		if errors.Is(err, errBadCode) {
			return badRequest(c, errBadCode.Error())
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

// ResetPassword consumes a valid code, sets the new password and revokes
// every refresh token of the account.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req otpReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = repository.NormalizeEmail(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		return badRequest(c, "email and code required")
	}
	if len(req.NewPassword) < minPasswordLen {
		return badRequest(c, "password must be at least 6 characters")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, otp, err := h.checkCode(ctx, req.Email, req.Code)
	if err != nil {
		if errors.Is(err, errBadCode) {
			return badRequest(c, errBadCode.Error())
		}
		return dbError(c, err)
	}
	if err := h.OTPs.MarkUsed(ctx, otp.ID); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return badRequest(c, errBadCode.Error())
		}
		return dbError(c, err)
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, req.NewPassword, h.Cfg.BcryptCost); err != nil {
		return dbError(c, err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
