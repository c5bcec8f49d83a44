package http

import (
	"net/http"

	"github.com/prestigewebb/twilio-manager/internal/manager"
	echo "github.com/labstack/echo/v4"
)

func listAddressesHandler(mgr *manager.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		sid := c.Param("sid")

		addresses, err := mgr.Addresses(c.Request().Context(), sid)
		if err != nil {
			return upstreamJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"account_sid": sid,
			"count":       len(addresses),
			"results":     addresses,
		})
	}
}
