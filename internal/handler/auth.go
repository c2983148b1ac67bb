package handler

import (
	"context"  // request-scoped timeouts for store calls
	"errors"   // sentinel matching on service results
	"log/slog" // structured logging of faults
	"net/http" // HTTP status codes
	"strings"  // email normalization before ownership checks
	"time"     // token expiries in responses

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/clinicflow/identity-service/internal/logging"
	"github.com/clinicflow/identity-service/internal/middleware"
	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/service"
	"github.com/clinicflow/identity-service/internal/utils"
)

// AuthHandler bundles dependencies for the identity endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Logger  *slog.Logger
	Timeout time.Duration
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{Auth: auth, Logger: logger, Timeout: 5 * time.Second}
}

// ----- DTOs -----

type registerReq struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // SuperAdmin | ClinicAdmin | Doctor | Patient
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}
type logoutReq struct {
	Email string `json:"email"`
}
type changePasswordReq struct {
	UserID          string `json:"userId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Email       string `json:"email"`
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// userView is the public shape of a user; hashes and token digests never leave the service.
type userView struct {
	ID        string     `json:"id"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

type authResp struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	User             userView  `json:"user"`
}

func toUserView(u *model.User) userView {
	return userView{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func toAuthResp(res *service.AuthResult) authResp {
	return authResp{
		AccessToken:      res.Tokens.AccessToken,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshToken:     res.Tokens.RefreshToken,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		User:             toUserView(res.User),
	}
}

// Register: create the account. Tokens are obtained through /login.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.Register(ctx, service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return h.fail(c, "register", err)
	}
	return c.JSON(http.StatusCreated, toUserView(u))
}

// Login: verify credentials and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, "login", err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

// Refresh: rotate the refresh token and return a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Auth.RefreshTokens(ctx, req.UserID, req.RefreshToken)
	if err != nil {
		return h.fail(c, "refresh", err)
	}
	return c.JSON(http.StatusOK, toAuthResp(res))
}

// Logout: empty the refresh slot of the account named in the body. The
// bearer must own that account unless it carries an admin role.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if middleware.Email(c) != req.Email && !middleware.Role(c).IsAdmin() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, req.Email); err != nil {
		return h.fail(c, "logout", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword: the bearer may only change its own password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.UserID == "" || middleware.UserID(c) != req.UserID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, req.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.fail(c, "change password", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword answers 202 whether or not the email is registered, so
// the endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	err := h.Auth.ForgotPassword(ctx, req.Email)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUserNotFound):
		h.Logger.InfoContext(ctx, "password reset requested for unknown email")
	case errors.Is(err, service.ErrNotificationFailed):
		logging.LogError(h.Logger, "password reset notice not sent", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "mail service unavailable"})
	default:
		return h.fail(c, "forgot password", err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account exists, a reset link has been sent"})
}

// ResetPassword: redeem a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.Email, req.ResetToken, req.NewPassword); err != nil {
		return h.fail(c, "reset password", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

// fail maps service errors to responses. Rejections become 4xx with a
// fixed message; anything else is logged and answered with 500.
func (h *AuthHandler) fail(c echo.Context, operation string, err error) error {
	status, msg := rejectionStatus(err)
	if status == 0 {
		logging.LogError(h.Logger, operation+" failed", err, "path", c.Path())
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": msg})
}

var passwordRules = []error{
	utils.ErrPasswordTooShort,
	utils.ErrPasswordTooLong,
	utils.ErrPasswordNoDigit,
	utils.ErrPasswordNoLower,
	utils.ErrPasswordNoUpper,
}

var rejectionStatuses = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrInvalidRole, http.StatusBadRequest},
	{service.ErrWeakPassword, http.StatusBadRequest},
	{service.ErrSamePassword, http.StatusBadRequest},
	{service.ErrInvalidResetToken, http.StatusBadRequest},
	{service.ErrEmailTaken, http.StatusConflict},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized},
	{service.ErrUserNotFound, http.StatusNotFound},
}

// rejectionStatus returns the status and public message for a rejection,
// or 0 for a fault. A weak password reports the rule it failed.
func rejectionStatus(err error) (int, string) {
	for _, r := range rejectionStatuses {
		if !errors.Is(err, r.err) {
			continue
		}
		if r.err == service.ErrWeakPassword {
			for _, rule := range passwordRules {
				if errors.Is(err, rule) {
					return r.status, rule.Error()
				}
			}
		}
		return r.status, r.err.Error()
	}
	return 0, ""
}
