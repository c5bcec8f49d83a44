package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prestigewebb/twilio-manager/internal/metrics"
)

const (
	apiVersion      = "2010-04-01"
	defaultPageSize = "50"
)

// ErrBreakerOpen is returned without hitting the network while an upstream
// host is considered unhealthy.
var ErrBreakerOpen = errors.New("twilio: upstream circuit open")

type Options struct {
	AccountSID     string
	AuthToken      string
	APIBaseURL     string // default https://api.twilio.com
	NumbersBaseURL string // default https://numbers.twilio.com
	Timeout        time.Duration
	FailThreshold  int
	OpenFor        time.Duration
	HTTPClient     *http.Client // optional, overrides Timeout
}

// Client is a REST client for the two Twilio API hosts the manager talks to:
// api.twilio.com (accounts, phone numbers, addresses) and numbers.twilio.com
// (regulatory compliance). Each host is guarded by its own breaker.
type Client struct {
	accountSID  string
	authToken   string
	apiBase     string
	numbersBase string
	httpClient  *http.Client
	apiBr       *MicroBreaker
	numbersBr   *MicroBreaker
}

func NewClient(opts Options) *Client {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = "https://api.twilio.com"
	}
	if opts.NumbersBaseURL == "" {
		opts.NumbersBaseURL = "https://numbers.twilio.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = 5
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 15 * time.Second
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		accountSID:  opts.AccountSID,
		authToken:   opts.AuthToken,
		apiBase:     strings.TrimRight(opts.APIBaseURL, "/"),
		numbersBase: strings.TrimRight(opts.NumbersBaseURL, "/"),
		httpClient:  hc,
		apiBr:       NewMicroBreaker(opts.FailThreshold, opts.OpenFor),
		numbersBr:   NewMicroBreaker(opts.FailThreshold, opts.OpenFor),
	}
}

// AccountSID returns the SID the client authenticates as.
func (c *Client) AccountSID() string { return c.accountSID }

// ForSubaccount derives a client that authenticates with the subaccount's
// own credentials. The HTTP client and breakers are shared with the parent.
func (c *Client) ForSubaccount(accountSID, authToken string) *Client {
	cp := *c
	cp.accountSID = accountSID
	cp.authToken = authToken
	return &cp
}

// ---- Accounts ----

// ListAccounts lists the subaccounts of the authenticated account,
// optionally filtered by friendly name. All pages are followed.
func (c *Client) ListAccounts(ctx context.Context, friendlyName string) ([]Account, error) {
	q := url.Values{"PageSize": {defaultPageSize}}
	if friendlyName != "" {
		q.Set("FriendlyName", friendlyName)
	}

	var accounts []Account
	next := fmt.Sprintf("%s/%s/Accounts.json?%s", c.apiBase, apiVersion, q.Encode())
	for next != "" {
		var page accountsPage
		if err := c.get(ctx, c.apiBr, "accounts", next, &page); err != nil {
			return nil, err
		}
		accounts = append(accounts, page.Accounts...)
		next = ""
		if page.NextPageURI != "" {
			next = c.apiBase + page.NextPageURI
		}
	}
	return accounts, nil
}

// FetchAccount fetches a single account, including its auth token.
func (c *Client) FetchAccount(ctx context.Context, accountSID string) (Account, error) {
	var acc Account
	err := c.get(ctx, c.apiBr, "accounts", c.accountURL(accountSID)+".json", &acc)
	return acc, err
}

// ---- Incoming phone numbers ----

// ListIncomingNumbers lists the Local or Mobile inventory of an account.
// An empty accountSID means the client's own account. Entries are tagged
// with the requested number type.
func (c *Client) ListIncomingNumbers(ctx context.Context, accountSID string, nt NumberType) ([]IncomingPhoneNumber, error) {
	sub := "Local"
	if nt == NumberTypeMobile {
		sub = "Mobile"
	}

	var numbers []IncomingPhoneNumber
	next := fmt.Sprintf("%s/IncomingPhoneNumbers/%s.json?PageSize=%s", c.accountURL(accountSID), sub, defaultPageSize)
	for next != "" {
		var page incomingNumbersPage
		if err := c.get(ctx, c.apiBr, "numbers", next, &page); err != nil {
			return nil, err
		}
		numbers = append(numbers, page.IncomingPhoneNumbers...)
		next = ""
		if page.NextPageURI != "" {
			next = c.apiBase + page.NextPageURI
		}
	}

	for i := range numbers {
		numbers[i].NumberType = nt
	}
	return numbers, nil
}

// UpdateNumberParams carries the mutable fields of an incoming phone number
// update. Empty fields are left untouched.
type UpdateNumberParams struct {
	AccountSID string // target account, moves the number between accounts
	AddressSID string
	BundleSID  string
}

// UpdateIncomingNumber posts an update to a phone number owned by
// accountSID. Setting params.AccountSID re-parents the number.
func (c *Client) UpdateIncomingNumber(ctx context.Context, accountSID, numberSID string, params UpdateNumberParams) (IncomingPhoneNumber, error) {
	form := url.Values{}
	if params.AccountSID != "" {
		form.Set("AccountSid", params.AccountSID)
	}
	if params.AddressSID != "" {
		form.Set("AddressSid", params.AddressSID)
	}
	if params.BundleSID != "" {
		form.Set("BundleSid", params.BundleSID)
	}

	var n IncomingPhoneNumber
	u := fmt.Sprintf("%s/IncomingPhoneNumbers/%s.json", c.accountURL(accountSID), numberSID)
	err := c.postForm(ctx, c.apiBr, "numbers", u, form, &n)
	return n, err
}

// ---- Addresses ----

// ListAddresses lists the validated addresses of an account.
func (c *Client) ListAddresses(ctx context.Context, accountSID string) ([]Address, error) {
	var addrs []Address
	next := fmt.Sprintf("%s/Addresses.json?PageSize=%s", c.accountURL(accountSID), defaultPageSize)
	for next != "" {
		var page addressesPage
		if err := c.get(ctx, c.apiBr, "addresses", next, &page); err != nil {
			return nil, err
		}
		addrs = append(addrs, page.Addresses...)
		next = ""
		if page.NextPageURI != "" {
			next = c.apiBase + page.NextPageURI
		}
	}
	return addrs, nil
}

type CreateAddressParams struct {
	CustomerName string
	FriendlyName string
	Street       string
	City         string
	Region       string
	PostalCode   string
	IsoCountry   string
}

// CreateAddress creates an address under an account.
func (c *Client) CreateAddress(ctx context.Context, accountSID string, p CreateAddressParams) (Address, error) {
	form := url.Values{
		"CustomerName": {p.CustomerName},
		"Street":       {p.Street},
		"City":         {p.City},
		"Region":       {p.Region},
		"PostalCode":   {p.PostalCode},
		"IsoCountry":   {p.IsoCountry},
	}
	if p.FriendlyName != "" {
		form.Set("FriendlyName", p.FriendlyName)
	}

	var addr Address
	err := c.postForm(ctx, c.apiBr, "addresses", c.accountURL(accountSID)+"/Addresses.json", form, &addr)
	return addr, err
}

// ---- Regulatory compliance ----

// ListBundles lists regulatory bundles of the authenticated account for one
// bundle type and country. v2 pagination returns absolute next-page URLs.
func (c *Client) ListBundles(ctx context.Context, bt BundleType, isoCountry string) ([]Bundle, error) {
	q := url.Values{
		"NumberType": {string(bt)},
		"PageSize":   {defaultPageSize},
	}
	if isoCountry != "" {
		q.Set("IsoCountry", isoCountry)
	}

	var bundles []Bundle
	next := c.numbersBase + "/v2/RegulatoryCompliance/Bundles?" + q.Encode()
	for next != "" {
		var page bundlesPage
		if err := c.get(ctx, c.numbersBr, "bundles", next, &page); err != nil {
			return nil, err
		}
		bundles = append(bundles, page.Results...)
		next = page.Meta.NextPageURL
	}

	for i := range bundles {
		bundles[i].NumberType = bt
	}
	return bundles, nil
}

// CloneBundle copies an approved bundle of the authenticated account into a
// target subaccount.
func (c *Client) CloneBundle(ctx context.Context, bundleSID, targetAccountSID, friendlyName string) (Bundle, error) {
	form := url.Values{"TargetAccountSid": {targetAccountSID}}
	if friendlyName != "" {
		form.Set("FriendlyName", friendlyName)
	}

	var b Bundle
	err := c.postForm(ctx, c.numbersBr, "bundles", c.numbersBase+"/v2/BundleClone/"+bundleSID, form, &b)
	return b, err
}

// ---- Transport ----

func (c *Client) accountURL(accountSID string) string {
	if accountSID == "" {
		accountSID = c.accountSID
	}
	return fmt.Sprintf("%s/%s/Accounts/%s", c.apiBase, apiVersion, accountSID)
}

func (c *Client) get(ctx context.Context, br *MicroBreaker, resource, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.do(br, resource, req, out)
}

func (c *Client) postForm(ctx context.Context, br *MicroBreaker, resource, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(br, resource, req, out)
}

func (c *Client) do(br *MicroBreaker, resource string, req *http.Request, out any) error {
	if !br.TryAcquire() {
		metrics.TwilioRequestsTotal.WithLabelValues(resource, "error").Inc()
		return ErrBreakerOpen
	}

	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		br.OnFailure()
		metrics.TwilioRequestsTotal.WithLabelValues(resource, "error").Inc()
		return fmt.Errorf("twilio request: %w", err)
	}
	defer res.Body.Close()

	// 5xx and transport errors trip the breaker; 4xx is the caller's problem.
	if res.StatusCode >= 500 {
		br.OnFailure()
		metrics.TwilioRequestsTotal.WithLabelValues(resource, "error").Inc()
		return decodeAPIError(res)
	}
	br.OnSuccess()

	if res.StatusCode/100 != 2 {
		metrics.TwilioRequestsTotal.WithLabelValues(resource, "error").Inc()
		return decodeAPIError(res)
	}
	metrics.TwilioRequestsTotal.WithLabelValues(resource, "ok").Inc()

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode twilio response: %w", err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Status == 0 {
			apiErr.Status = res.StatusCode
		}
		return &apiErr
	}
	return fmt.Errorf("twilio: unexpected status %d", res.StatusCode)
}
