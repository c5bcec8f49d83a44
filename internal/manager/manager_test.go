package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prestigewebb/twilio-manager/internal/events"
	"github.com/prestigewebb/twilio-manager/internal/store"
	"github.com/prestigewebb/twilio-manager/internal/twilio"
	"go.uber.org/zap"
)

const (
	mainSID   = "ACmain00000000000000000000000000"
	sourceSID = "ACsource000000000000000000000000"
	targetSID = "ACtarget000000000000000000000000"
)

// fakeTwilio is an in-memory stand-in for the two Twilio hosts. Regulatory
// bundles are keyed by the basic-auth account SID, mirroring how the real
// numbers API only shows the authenticated account's bundles.
type fakeTwilio struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	accounts  map[string]twilio.Account
	local     map[string][]twilio.IncomingPhoneNumber
	mobile    map[string][]twilio.IncomingPhoneNumber
	addresses map[string][]twilio.Address
	bundles   map[string][]twilio.Bundle

	failNextUpdate bool
	cloneCalls     int
}

func newFakeTwilio(t *testing.T) *fakeTwilio {
	t.Helper()
	f := &fakeTwilio{
		t:         t,
		accounts:  map[string]twilio.Account{},
		local:     map[string][]twilio.IncomingPhoneNumber{},
		mobile:    map[string][]twilio.IncomingPhoneNumber{},
		addresses: map[string][]twilio.Address{},
		bundles:   map[string][]twilio.Bundle{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /2010-04-01/Accounts.json", f.listAccounts)
	mux.HandleFunc("GET /2010-04-01/Accounts/{acct}", f.fetchAccount)
	mux.HandleFunc("GET /2010-04-01/Accounts/{acct}/IncomingPhoneNumbers/{res}", f.listNumbers)
	mux.HandleFunc("POST /2010-04-01/Accounts/{acct}/IncomingPhoneNumbers/{res}", f.updateNumber)
	mux.HandleFunc("GET /2010-04-01/Accounts/{acct}/Addresses.json", f.listAddresses)
	mux.HandleFunc("POST /2010-04-01/Accounts/{acct}/Addresses.json", f.createAddress)
	mux.HandleFunc("GET /v2/RegulatoryCompliance/Bundles", f.listBundles)
	mux.HandleFunc("POST /v2/BundleClone/{sid}", f.cloneBundle)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTwilio) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("encode response: %v", err)
	}
}

func (f *fakeTwilio) listAccounts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var accounts []twilio.Account
	for _, a := range f.accounts {
		if a.SID != mainSID {
			accounts = append(accounts, a)
		}
	}
	f.writeJSON(w, map[string]any{"accounts": accounts})
}

func (f *fakeTwilio) fetchAccount(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sid := strings.TrimSuffix(r.PathValue("acct"), ".json")
	acc, ok := f.accounts[sid]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":20404,"message":"Not Found","status":404}`)
		return
	}
	f.writeJSON(w, acc)
}

func (f *fakeTwilio) listNumbers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := r.PathValue("acct")
	pool := f.local
	if r.PathValue("res") == "Mobile.json" {
		pool = f.mobile
	}
	f.writeJSON(w, map[string]any{"incoming_phone_numbers": pool[acct]})
}

func (f *fakeTwilio) updateNumber(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct := r.PathValue("acct")
	sid := strings.TrimSuffix(r.PathValue("res"), ".json")
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("parse update form: %v", err)
	}

	var updated twilio.IncomingPhoneNumber
	found := false
	for _, pool := range []map[string][]twilio.IncomingPhoneNumber{f.local, f.mobile} {
		for i, n := range pool[acct] {
			if n.SID != sid {
				continue
			}
			found = true
			if v := r.PostForm.Get("AddressSid"); v != "" {
				n.AddressSID = v
			}
			if v := r.PostForm.Get("BundleSid"); v != "" {
				n.BundleSID = v
			}
			if target := r.PostForm.Get("AccountSid"); target != "" && target != acct {
				n.AccountSID = target
				pool[acct] = append(pool[acct][:i], pool[acct][i+1:]...)
				pool[target] = append(pool[target], n)
			} else {
				pool[acct][i] = n
			}
			updated = n
			break
		}
		if found {
			break
		}
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"code":20404,"message":"Not Found","status":404}`)
		return
	}

	// the move above is already committed, matching Twilio's occasional
	// error-after-commit behavior
	if f.failNextUpdate {
		f.failNextUpdate = false
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":20500,"message":"Internal Server Error","status":500}`)
		return
	}
	f.writeJSON(w, updated)
}

func (f *fakeTwilio) listAddresses(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeJSON(w, map[string]any{"addresses": f.addresses[r.PathValue("acct")]})
}

func (f *fakeTwilio) createAddress(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("parse address form: %v", err)
	}
	acct := r.PathValue("acct")
	addr := twilio.Address{
		SID:          fmt.Sprintf("AD%d", len(f.addresses[acct])+1),
		AccountSID:   acct,
		CustomerName: r.PostForm.Get("CustomerName"),
		Street:       r.PostForm.Get("Street"),
		City:         r.PostForm.Get("City"),
		IsoCountry:   r.PostForm.Get("IsoCountry"),
	}
	f.addresses[acct] = append(f.addresses[acct], addr)
	f.writeJSON(w, addr)
}

func (f *fakeTwilio) listBundles(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, _, _ := r.BasicAuth()
	nt := r.URL.Query().Get("NumberType")
	results := []twilio.Bundle{}
	for _, b := range f.bundles[user] {
		if nt == "" || string(b.NumberType) == nt {
			results = append(results, b)
		}
	}
	f.writeJSON(w, map[string]any{"results": results, "meta": map[string]any{}})
}

func (f *fakeTwilio) cloneBundle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("parse clone form: %v", err)
	}
	f.cloneCalls++
	sid := r.PathValue("sid")
	target := r.PostForm.Get("TargetAccountSid")

	for _, bundles := range f.bundles {
		for _, b := range bundles {
			if b.SID != sid {
				continue
			}
			clone := b
			clone.SID = fmt.Sprintf("BUclone%d", f.cloneCalls)
			clone.AccountSID = target
			f.bundles[target] = append(f.bundles[target], clone)
			f.writeJSON(w, clone)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"code":20404,"message":"Not Found","status":404}`)
}

func (f *fakeTwilio) manager(t *testing.T, opts Options) *Manager {
	t.Helper()
	client := twilio.NewClient(twilio.Options{
		AccountSID:     mainSID,
		AuthToken:      "main-token",
		APIBaseURL:     f.srv.URL,
		NumbersBaseURL: f.srv.URL,
	})
	if opts.IsoCountry == "" {
		opts.IsoCountry = "FR"
	}
	if opts.VerifyWait == 0 {
		opts.VerifyWait = 10 * time.Millisecond
	}
	return New(client, zap.NewNop(), opts)
}

func setupAuditStore(t *testing.T) store.TransfersRepository {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewTransfersRepository(db)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.TransferEvent
}

func (p *capturePublisher) Publish(_ context.Context, ev events.TransferEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestManager_AccountNumbers(t *testing.T) {
	t.Run("should merge local and mobile inventories in order", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.local[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN1", PhoneNumber: "+33100000001"}}
		f.mobile[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN2", PhoneNumber: "+33600000002"}}

		numbers, err := f.manager(t, Options{}).AccountNumbers(context.Background(), sourceSID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(numbers) != 2 {
			t.Fatalf("\nwanted:\n2 numbers\ngot:\n%d", len(numbers))
		}
		if numbers[0].SID != "PN1" || numbers[0].NumberType != twilio.NumberTypeLocal {
			t.Fatalf("\nwanted:\nPN1 local first\ngot:\n%s %s", numbers[0].SID, numbers[0].NumberType)
		}
		if numbers[1].SID != "PN2" || numbers[1].NumberType != twilio.NumberTypeMobile {
			t.Fatalf("\nwanted:\nPN2 mobile second\ngot:\n%s %s", numbers[1].SID, numbers[1].NumberType)
		}
	})
}

func TestManager_ListRegulatoryBundles(t *testing.T) {
	t.Run("should list subaccount bundles with the subaccount credentials", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.accounts[targetSID] = twilio.Account{SID: targetSID, AuthToken: "target-token"}
		f.bundles[targetSID] = []twilio.Bundle{
			{SID: "BU1", NumberType: twilio.BundleTypeNational},
			{SID: "BU2", NumberType: twilio.BundleTypeMobile},
		}
		f.bundles[mainSID] = []twilio.Bundle{{SID: "BUmain", NumberType: twilio.BundleTypeNational}}

		bundles, err := f.manager(t, Options{}).ListRegulatoryBundles(context.Background(), targetSID, "")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(bundles) != 2 {
			t.Fatalf("\nwanted:\n2 bundles\ngot:\n%d", len(bundles))
		}
		for _, b := range bundles {
			if b.SID == "BUmain" {
				t.Fatalf("\nwanted:\ntarget bundles only\ngot:\nmain account bundle %s", b.SID)
			}
		}
	})

	t.Run("should filter by bundle type", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.accounts[targetSID] = twilio.Account{SID: targetSID, AuthToken: "target-token"}
		f.bundles[targetSID] = []twilio.Bundle{
			{SID: "BU1", NumberType: twilio.BundleTypeNational},
			{SID: "BU2", NumberType: twilio.BundleTypeMobile},
		}

		bundles, err := f.manager(t, Options{}).ListRegulatoryBundles(context.Background(), targetSID, twilio.BundleTypeMobile)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(bundles) != 1 || bundles[0].SID != "BU2" {
			t.Fatalf("\nwanted:\nBU2 only\ngot:\n%+v", bundles)
		}
	})
}

func TestManager_TransferNumber(t *testing.T) {
	t.Run("should move the number with the provided bundle and address", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.local[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN1", AccountSID: sourceSID, PhoneNumber: "+33100000001"}}

		repo := setupAuditStore(t)
		pub := &capturePublisher{}
		m := f.manager(t, Options{Transfers: repo, Events: pub})

		res, err := m.TransferNumber(context.Background(), TransferRequest{
			SourceAccountSID: sourceSID,
			TargetAccountSID: targetSID,
			PhoneNumberSID:   "PN1",
			BundleSID:        "BU1",
			AddressSID:       "AD1",
		})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if res.Status != store.TransferCompleted {
			t.Fatalf("\nwanted:\ncompleted\ngot:\n%s", res.Status)
		}
		if res.Number.AccountSID != targetSID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", targetSID, res.Number.AccountSID)
		}
		if len(f.local[targetSID]) != 1 || len(f.local[sourceSID]) != 0 {
			t.Fatalf("\nwanted:\nnumber moved to target\ngot:\nsource=%d target=%d",
				len(f.local[sourceSID]), len(f.local[targetSID]))
		}

		recs, err := repo.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("read audit trail: %v", err)
		}
		if len(recs) != 1 || recs[0].Status != store.TransferCompleted || recs[0].ID != res.ID {
			t.Fatalf("\nwanted:\none completed audit row for %s\ngot:\n%+v", res.ID, recs)
		}
		if len(pub.events) != 1 || pub.events[0].Status != "completed" {
			t.Fatalf("\nwanted:\none completed event\ngot:\n%+v", pub.events)
		}
	})

	t.Run("should clone a bundle and create the default address when the target is empty", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.local[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN1", AccountSID: sourceSID, PhoneNumber: "+33100000001"}}
		f.accounts[targetSID] = twilio.Account{SID: targetSID, AuthToken: "target-token"}
		f.bundles[mainSID] = []twilio.Bundle{{SID: "BUmain", FriendlyName: "fr national", NumberType: twilio.BundleTypeNational}}

		m := f.manager(t, Options{
			DefaultAddress: twilio.CreateAddressParams{
				CustomerName: "PrestigeWebb",
				Street:       "22 rue du pont aux choux",
				City:         "Paris",
			},
		})

		res, err := m.TransferNumber(context.Background(), TransferRequest{
			SourceAccountSID: sourceSID,
			TargetAccountSID: targetSID,
			PhoneNumberSID:   "PN1",
		})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if f.cloneCalls == 0 {
			t.Fatalf("\nwanted:\nbundle cloned into target\ngot:\nno clone calls")
		}
		if !strings.HasPrefix(res.BundleSID, "BUclone") {
			t.Fatalf("\nwanted:\ncloned bundle sid\ngot:\n%s", res.BundleSID)
		}
		if len(f.addresses[targetSID]) != 1 {
			t.Fatalf("\nwanted:\ndefault address created\ngot:\n%d addresses", len(f.addresses[targetSID]))
		}
		addr := f.addresses[targetSID][0]
		if addr.CustomerName != "PrestigeWebb" || addr.IsoCountry != "FR" {
			t.Fatalf("\nwanted:\nconfigured default address with FR fallback\ngot:\n%+v", addr)
		}
		if res.AddressSID != addr.SID {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", addr.SID, res.AddressSID)
		}
	})

	t.Run("should report recovered when the update errors but the number lands", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.local[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN1", AccountSID: sourceSID, PhoneNumber: "+33100000001"}}
		f.failNextUpdate = true

		repo := setupAuditStore(t)
		m := f.manager(t, Options{Transfers: repo})

		res, err := m.TransferNumber(context.Background(), TransferRequest{
			SourceAccountSID: sourceSID,
			TargetAccountSID: targetSID,
			PhoneNumberSID:   "PN1",
			BundleSID:        "BU1",
			AddressSID:       "AD1",
		})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if res.Status != store.TransferRecovered {
			t.Fatalf("\nwanted:\nrecovered\ngot:\n%s", res.Status)
		}
		if res.Number.SID != "PN1" || res.Number.AccountSID != targetSID {
			t.Fatalf("\nwanted:\nPN1 on target\ngot:\n%+v", res.Number)
		}

		recs, err := repo.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("read audit trail: %v", err)
		}
		if len(recs) != 1 || recs[0].Status != store.TransferRecovered {
			t.Fatalf("\nwanted:\none recovered audit row\ngot:\n%+v", recs)
		}
	})

	t.Run("should fail when the number is not in the source account", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.local[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN1", AccountSID: sourceSID}}

		repo := setupAuditStore(t)
		m := f.manager(t, Options{Transfers: repo})

		_, err := m.TransferNumber(context.Background(), TransferRequest{
			SourceAccountSID: sourceSID,
			TargetAccountSID: targetSID,
			PhoneNumberSID:   "PNmissing",
		})
		if !errors.Is(err, ErrNumberNotFound) {
			t.Fatalf("\nwanted:\nErrNumberNotFound\ngot:\n%v", err)
		}

		recs, err := repo.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("read audit trail: %v", err)
		}
		if len(recs) != 1 || recs[0].Status != store.TransferFailed || recs[0].Error == "" {
			t.Fatalf("\nwanted:\none failed audit row with an error\ngot:\n%+v", recs)
		}
	})

	t.Run("should give up when no bundle can be resolved", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.local[sourceSID] = []twilio.IncomingPhoneNumber{{SID: "PN1", AccountSID: sourceSID}}
		f.accounts[targetSID] = twilio.Account{SID: targetSID, AuthToken: "target-token"}
		// main account has no bundles to clone either

		m := f.manager(t, Options{})

		_, err := m.TransferNumber(context.Background(), TransferRequest{
			SourceAccountSID: sourceSID,
			TargetAccountSID: targetSID,
			PhoneNumberSID:   "PN1",
		})
		if !errors.Is(err, ErrNoBundle) {
			t.Fatalf("\nwanted:\nErrNoBundle\ngot:\n%v", err)
		}
	})
}

func TestManager_SubaccountAuthToken(t *testing.T) {
	t.Run("should fetch the token through the main account", func(t *testing.T) {
		f := newFakeTwilio(t)
		f.accounts[targetSID] = twilio.Account{SID: targetSID, AuthToken: "target-token"}

		token, err := f.manager(t, Options{}).SubaccountAuthToken(context.Background(), targetSID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if token != "target-token" {
			t.Fatalf("\nwanted:\ntarget-token\ngot:\n%s", token)
		}
	})
}
