package http

import (
	"net/http"
	"strconv"

	"github.com/prestigewebb/twilio-manager/internal/store"
	echo "github.com/labstack/echo/v4"
)

func listTransfersHandler(transfers store.TransfersRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if transfers == nil {
			return c.JSON(http.StatusNotImplemented, map[string]string{"error": "audit trail disabled"})
		}

		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		recs, err := transfers.Recent(c.Request().Context(), limit)
		if err != nil {
			c.Logger().Errorf("audit query failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"count":   len(recs),
			"results": recs,
		})
	}
}
