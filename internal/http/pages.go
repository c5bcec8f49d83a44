package http

import (
	"embed"
	"html/template"
	"io"
	"net/http"
	"net/url"

	"github.com/prestigewebb/twilio-manager/internal/http/middleware"
	"github.com/prestigewebb/twilio-manager/internal/manager"
	"github.com/prestigewebb/twilio-manager/internal/store"
	"github.com/prestigewebb/twilio-manager/internal/twilio"
	echo "github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templatesFS embed.FS

type renderer struct{ t *template.Template }

func newRenderer() *renderer {
	return &renderer{t: template.Must(template.ParseFS(templatesFS, "templates/*.html"))}
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.t.ExecuteTemplate(w, name, data)
}

type dashboardData struct {
	BasePath      string
	Operator      string
	Subaccounts   []twilio.Account
	Selected      twilio.Account
	Numbers       []twilio.IncomingPhoneNumber
	Bundles       []twilio.Bundle
	BundlesError  string
	Others        []twilio.Account
	Transferred   string
	TransferError string
}

func dashboardHandler(mgr *manager.Manager, base string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		operator, _ := middleware.OperatorFromCtx(c)

		subaccounts, err := mgr.ListSubaccounts(ctx, "")
		if err != nil {
			return upstreamHTTP(err)
		}

		data := dashboardData{
			BasePath:      base,
			Operator:      operator,
			Subaccounts:   subaccounts,
			Transferred:   c.QueryParam("transferred"),
			TransferError: c.QueryParam("transfer_error"),
		}
		if len(subaccounts) == 0 {
			return c.Render(http.StatusOK, "dashboard.html", data)
		}

		data.Selected = subaccounts[0]
		if sel := c.QueryParam("account"); sel != "" {
			for _, sa := range subaccounts {
				if sa.SID == sel {
					data.Selected = sa
					break
				}
			}
		}
		for _, sa := range subaccounts {
			if sa.SID != data.Selected.SID {
				data.Others = append(data.Others, sa)
			}
		}

		data.Numbers, err = mgr.AccountNumbers(ctx, data.Selected.SID)
		if err != nil {
			return upstreamHTTP(err)
		}

		// bundles are fetched with the subaccount's own credentials and fail
		// independently; keep the page usable when they do
		data.Bundles, err = mgr.ListRegulatoryBundles(ctx, data.Selected.SID, "")
		if err != nil {
			data.BundlesError = err.Error()
		}

		return c.Render(http.StatusOK, "dashboard.html", data)
	}
}

func transferFormHandler(mgr *manager.Manager, base string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req manager.TransferRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "bad request")
		}

		q := url.Values{}
		if req.SourceAccountSID != "" {
			q.Set("account", req.SourceAccountSID)
		}

		if req.SourceAccountSID == "" || req.PhoneNumberSID == "" || req.TargetAccountSID == "" {
			q.Set("transfer_error", "source, number and target are required")
			return c.Redirect(http.StatusSeeOther, base+"/?"+q.Encode())
		}

		res, err := mgr.TransferNumber(c.Request().Context(), req)
		if err != nil {
			q.Set("transfer_error", err.Error())
		} else {
			label := res.Number.PhoneNumber
			if label == "" {
				label = req.PhoneNumberSID
			}
			q.Set("transferred", label)
		}
		return c.Redirect(http.StatusSeeOther, base+"/?"+q.Encode())
	}
}

type auditPageData struct {
	BasePath string
	Operator string
	Records  []store.TransferRecord
	Error    string
}

func auditPageHandler(transfers store.TransfersRepository, base string) echo.HandlerFunc {
	return func(c echo.Context) error {
		operator, _ := middleware.OperatorFromCtx(c)
		data := auditPageData{BasePath: base, Operator: operator}

		if transfers == nil {
			data.Error = "audit trail disabled"
			return c.Render(http.StatusOK, "audit.html", data)
		}

		recs, err := transfers.Recent(c.Request().Context(), 100)
		if err != nil {
			c.Logger().Errorf("audit query failed: %v", err)
			data.Error = "audit query failed"
		} else {
			data.Records = recs
		}
		return c.Render(http.StatusOK, "audit.html", data)
	}
}
