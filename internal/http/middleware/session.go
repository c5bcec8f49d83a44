package middleware

import (
	"net/http"
	"strings"

	"github.com/prestigewebb/twilio-manager/internal/auth"
	echo "github.com/labstack/echo/v4"
)

const SessionCookie = "twimgr_session"

// OperatorFromCtx extracts the authenticated operator username set by
// SessionMiddleware.
func OperatorFromCtx(c echo.Context) (string, bool) {
	v := c.Get("operator")
	name, ok := v.(string)
	return name, ok
}

// SessionMiddleware authenticates requests using the session cookie issued
// at login. Browser requests are redirected to the login page; API requests
// get a 401.
func SessionMiddleware(authn *auth.Authenticator, loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				return reject(c, loginPath)
			}
			operator, err := authn.Verify(cookie.Value)
			if err != nil {
				return reject(c, loginPath)
			}
			c.Set("operator", operator)
			return next(c)
		}
	}
}

func reject(c echo.Context, loginPath string) error {
	if strings.Contains(c.Request().URL.Path, "/api/") {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	return c.Redirect(http.StatusFound, loginPath)
}
