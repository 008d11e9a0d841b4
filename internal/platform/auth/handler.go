package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// Handler serves staff login and logout.
type Handler struct {
	creds   CredentialStore
	issuer  *TokenIssuer
	revoked *TokenRevocationStore
	logger  zerolog.Logger
}

func NewHandler(creds CredentialStore, issuer *TokenIssuer, revoked *TokenRevocationStore, logger zerolog.Logger) *Handler {
	return &Handler{creds: creds, issuer: issuer, revoked: revoked, logger: logger}
}

// RegisterRoutes mounts login on public and logout on staff, the /staff group
// that already runs JWTMiddleware.
func (h *Handler) RegisterRoutes(public, staff *echo.Group) {
	public.POST("/staff/login", h.Login)
	staff.POST("/logout", h.Logout)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "BadRequest", "message": "invalid request body",
		})
	}

	username := NormalizeUsername(req.Username)
	err := h.creds.Verify(c.Request().Context(), username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		h.logger.Warn().Str("username", username).Str("remote_ip", c.RealIP()).Msg("staff login rejected")
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "InvalidCredentials", "message": ErrInvalidCredentials.Error(),
		})
	}
	if err != nil {
		h.logger.Error().Err(err).Str("username", username).Msg("staff login failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "StorageFailure", "message": "could not verify credentials",
		})
	}

	token, exp, err := h.issuer.Issue(username)
	if err != nil {
		h.logger.Error().Err(err).Msg("issue staff token")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}

	h.logger.Info().Str("username", username).Msg("staff login")
	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: exp.UTC(),
		Username:  username,
	})
}

// Logout revokes the bearer token of the request.
func (h *Handler) Logout(c echo.Context) error {
	ti, ok := TokenFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	if h.revoked != nil {
		h.revoked.Revoke(ti.ID, ti.ExpiresAt)
	}
	return c.NoContent(http.StatusNoContent)
}
