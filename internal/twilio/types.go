package twilio

import "fmt"

// NumberType distinguishes the two incoming phone number inventories Twilio
// exposes as separate subresources.
type NumberType string

const (
	NumberTypeLocal  NumberType = "local"
	NumberTypeMobile NumberType = "mobile"
)

func (t NumberType) String() string { return string(t) }

func (t NumberType) Valid() bool {
	return t == NumberTypeLocal || t == NumberTypeMobile
}

// BundleType returns the regulatory bundle type covering numbers of this
// type. Local numbers are regulated by national bundles.
func (t NumberType) BundleType() BundleType {
	if t == NumberTypeMobile {
		return BundleTypeMobile
	}
	return BundleTypeNational
}

// BundleType is the number_type dimension of regulatory-compliance bundles.
type BundleType string

const (
	BundleTypeNational BundleType = "national"
	BundleTypeMobile   BundleType = "mobile"
)

func (t BundleType) String() string { return string(t) }

// Account is a Twilio account or subaccount.
type Account struct {
	SID             string `json:"sid"`
	FriendlyName    string `json:"friendly_name"`
	AuthToken       string `json:"auth_token"`
	Status          string `json:"status"`
	OwnerAccountSID string `json:"owner_account_sid"`
	DateCreated     string `json:"date_created"`
}

type accountsPage struct {
	Accounts    []Account `json:"accounts"`
	NextPageURI string    `json:"next_page_uri"`
}

// IncomingPhoneNumber is a provisioned phone number. NumberType is not part
// of the Twilio payload; it is tagged client-side from the subresource the
// number was listed under.
type IncomingPhoneNumber struct {
	SID          string     `json:"sid"`
	AccountSID   string     `json:"account_sid"`
	PhoneNumber  string     `json:"phone_number"`
	FriendlyName string     `json:"friendly_name"`
	AddressSID   string     `json:"address_sid"`
	BundleSID    string     `json:"bundle_sid"`
	Status       string     `json:"status"`
	NumberType   NumberType `json:"number_type"`
}

type incomingNumbersPage struct {
	IncomingPhoneNumbers []IncomingPhoneNumber `json:"incoming_phone_numbers"`
	NextPageURI          string                `json:"next_page_uri"`
}

// Address is a validated emergency address owned by an account.
type Address struct {
	SID          string `json:"sid"`
	AccountSID   string `json:"account_sid"`
	CustomerName string `json:"customer_name"`
	FriendlyName string `json:"friendly_name"`
	Street       string `json:"street"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	IsoCountry   string `json:"iso_country"`
}

type addressesPage struct {
	Addresses   []Address `json:"addresses"`
	NextPageURI string    `json:"next_page_uri"`
}

// Bundle is a regulatory-compliance bundle. NumberType is tagged client-side
// from the query the bundle was listed with.
type Bundle struct {
	SID           string     `json:"sid"`
	AccountSID    string     `json:"account_sid"`
	FriendlyName  string     `json:"friendly_name"`
	RegulationSID string     `json:"regulation_sid"`
	Status        string     `json:"status"`
	ValidUntil    string     `json:"valid_until"`
	NumberType    BundleType `json:"number_type"`
}

type bundlesPage struct {
	Results []Bundle `json:"results"`
	Meta    struct {
		NextPageURL string `json:"next_page_url"`
	} `json:"meta"`
}

// APIError is the error document Twilio returns for failed requests.
type APIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %s (code %d, status %d)", e.Message, e.Code, e.Status)
}
