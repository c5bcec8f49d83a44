package http

import (
	"net/http"
	"strings"

	"github.com/prestigewebb/twilio-manager/internal/manager"
	echo "github.com/labstack/echo/v4"
)

func transferHandler(mgr *manager.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req manager.TransferRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.SourceAccountSID = strings.TrimSpace(req.SourceAccountSID)
		req.PhoneNumberSID = strings.TrimSpace(req.PhoneNumberSID)
		req.TargetAccountSID = strings.TrimSpace(req.TargetAccountSID)

		if req.SourceAccountSID == "" || req.PhoneNumberSID == "" || req.TargetAccountSID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "source_account_sid, phone_number_sid and target_account_sid are required",
			})
		}
		if req.SourceAccountSID == req.TargetAccountSID {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "source and target accounts must differ",
			})
		}

		res, err := mgr.TransferNumber(c.Request().Context(), req)
		if err != nil {
			return upstreamJSON(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}
