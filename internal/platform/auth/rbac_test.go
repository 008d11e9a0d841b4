package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithRoles(roles []string, mw echo.MiddlewareFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
	return rec, err
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runWithRoles([]string{RoleStaff}, RequireRole(RoleStaff))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := runWithRoles([]string{"viewer"}, RequireRole(RoleStaff))
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoRoles(t *testing.T) {
	_, err := runWithRoles(nil, RequireRole(RoleStaff))
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	_, err := runWithRoles([]string{"admin"}, RequireRole(RoleStaff))
	if err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestWithUser(t *testing.T) {
	ctx := WithUser(context.Background(), "city-care", RoleStaff)
	if UserIDFromContext(ctx) != "city-care" {
		t.Errorf("unexpected user id %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleStaff {
		t.Errorf("unexpected roles %v", roles)
	}
}
