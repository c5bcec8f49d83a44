package http

import (
	"errors"
	"net/http"

	"github.com/prestigewebb/twilio-manager/internal/auth"
	"github.com/prestigewebb/twilio-manager/internal/http/middleware"
	echo "github.com/labstack/echo/v4"
)

type loginPageData struct {
	BasePath string
	Error    string
}

func loginPageHandler(base string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Render(http.StatusOK, "login.html", loginPageData{BasePath: base})
	}
}

func loginHandler(authn *auth.Authenticator, base string) echo.HandlerFunc {
	return func(c echo.Context) error {
		username := c.FormValue("username")
		password := c.FormValue("password")

		token, err := authn.Login(username, password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return c.Render(http.StatusUnauthorized, "login.html", loginPageData{
					BasePath: base,
					Error:    "Invalid username or password",
				})
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
		}

		c.SetCookie(&http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    token,
			Path:     base + "/",
			MaxAge:   int(authn.SessionTTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		return c.Redirect(http.StatusSeeOther, base+"/")
	}
}

func logoutHandler(base string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.SetCookie(&http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    "",
			Path:     base + "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		return c.Redirect(http.StatusSeeOther, base+"/login")
	}
}
