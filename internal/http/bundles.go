package http

import (
	"net/http"
	"strings"

	"github.com/prestigewebb/twilio-manager/internal/manager"
	"github.com/prestigewebb/twilio-manager/internal/twilio"
	echo "github.com/labstack/echo/v4"
)

func listBundlesHandler(mgr *manager.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		sid := c.Param("sid")

		var bt twilio.BundleType
		switch strings.TrimSpace(c.QueryParam("number_type")) {
		case "":
		case "national":
			bt = twilio.BundleTypeNational
		case "mobile":
			bt = twilio.BundleTypeMobile
		default:
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid number_type"})
		}

		bundles, err := mgr.ListRegulatoryBundles(c.Request().Context(), sid, bt)
		if err != nil {
			return upstreamJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"account_sid": sid,
			"count":       len(bundles),
			"results":     bundles,
		})
	}
}
