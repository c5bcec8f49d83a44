package http

import (
	"errors"
	"net/http"

	"github.com/prestigewebb/twilio-manager/internal/manager"
	"github.com/prestigewebb/twilio-manager/internal/twilio"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// upstreamJSON maps manager/twilio failures onto API responses. Vendor
// errors keep Twilio's own code and message so the operator sees what
// Twilio said.
func upstreamJSON(c echo.Context, err error) error {
	var apiErr *twilio.APIError
	switch {
	case errors.Is(err, manager.ErrNumberNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, manager.ErrNoBundle):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, twilio.ErrBreakerOpen):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "twilio upstream unavailable"})
	case errors.As(err, &apiErr):
		return c.JSON(http.StatusBadGateway, map[string]any{
			"error":     "twilio_error",
			"code":      apiErr.Code,
			"message":   apiErr.Message,
			"more_info": apiErr.MoreInfo,
		})
	default:
		log.Errorf("upstream call failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// upstreamHTTP is the UI-page variant of upstreamJSON.
func upstreamHTTP(err error) error {
	var apiErr *twilio.APIError
	if errors.As(err, &apiErr) {
		return echo.NewHTTPError(http.StatusBadGateway, apiErr.Error())
	}
	if errors.Is(err, twilio.ErrBreakerOpen) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "twilio upstream unavailable")
	}
	return err
}
