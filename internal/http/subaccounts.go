package http

import (
	"net/http"
	"strings"

	"github.com/prestigewebb/twilio-manager/internal/manager"
	echo "github.com/labstack/echo/v4"
)

func listSubaccountsHandler(mgr *manager.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		friendlyName := strings.TrimSpace(c.QueryParam("friendly_name"))

		accounts, err := mgr.ListSubaccounts(c.Request().Context(), friendlyName)
		if err != nil {
			return upstreamJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(accounts),
			"results": accounts,
		})
	}
}

func refreshSubaccountsHandler(mgr *manager.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := mgr.RefreshSubaccounts(c.Request().Context()); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "cache refresh failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{"refreshed": true})
	}
}
