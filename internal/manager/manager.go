package manager

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prestigewebb/twilio-manager/internal/events"
	"github.com/prestigewebb/twilio-manager/internal/metrics"
	"github.com/prestigewebb/twilio-manager/internal/store"
	"github.com/prestigewebb/twilio-manager/internal/twilio"
	"github.com/prestigewebb/twilio-manager/internal/util"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNumberNotFound = errors.New("phone number not found in source account")
	ErrNoBundle       = errors.New("no regulatory bundle available in target account")
)

const subaccountsCacheKey = "twimgr:subaccounts"

// EventPublisher pushes transfer events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.TransferEvent) error
}

type Options struct {
	Cache          *redis.Client             // optional subaccount list cache
	CacheTTL       time.Duration             // default 5m
	Transfers      store.TransfersRepository // optional audit trail
	Events         EventPublisher            // optional
	IsoCountry     string                    // bundle country filter, e.g. "FR"
	DefaultAddress twilio.CreateAddressParams
	VerifyWait     time.Duration // pause before post-failure verification
}

// Manager wraps the Twilio client with the workflows the dashboard exposes:
// cached subaccount listing, merged number inventories, bundle resolution
// and the number transfer orchestration.
type Manager struct {
	client         *twilio.Client
	cache          *redis.Client
	cacheTTL       time.Duration
	transfers      store.TransfersRepository
	events         EventPublisher
	isoCountry     string
	defaultAddress twilio.CreateAddressParams
	verifyWait     time.Duration
	log            *zap.Logger
}

func New(client *twilio.Client, log *zap.Logger, opts Options) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.VerifyWait <= 0 {
		opts.VerifyWait = 2 * time.Second
	}
	return &Manager{
		client:         client,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		transfers:      opts.Transfers,
		events:         opts.Events,
		isoCountry:     opts.IsoCountry,
		defaultAddress: opts.DefaultAddress,
		verifyWait:     opts.VerifyWait,
		log:            log,
	}
}

// ---- Subaccounts ----

// ListSubaccounts lists subaccounts of the main account. The unfiltered
// listing is cached in Redis when a cache is configured; a friendly-name
// filter always goes upstream.
func (m *Manager) ListSubaccounts(ctx context.Context, friendlyName string) ([]twilio.Account, error) {
	if friendlyName != "" || m.cache == nil {
		if m.cache != nil {
			metrics.SubaccountCacheTotal.WithLabelValues("bypass").Inc()
		}
		return m.client.ListAccounts(ctx, friendlyName)
	}

	if data, err := m.cache.Get(ctx, subaccountsCacheKey).Bytes(); err == nil {
		var accounts []twilio.Account
		if json.Unmarshal(data, &accounts) == nil {
			metrics.SubaccountCacheTotal.WithLabelValues("hit").Inc()
			return accounts, nil
		}
	}
	metrics.SubaccountCacheTotal.WithLabelValues("miss").Inc()

	accounts, err := m.client.ListAccounts(ctx, "")
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(accounts); err == nil {
		if err := m.cache.Set(ctx, subaccountsCacheKey, b, m.cacheTTL).Err(); err != nil {
			m.log.Warn("subaccount cache write failed", zap.Error(err))
		}
	}
	return accounts, nil
}

// RefreshSubaccounts drops the cached subaccount list.
func (m *Manager) RefreshSubaccounts(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Del(ctx, subaccountsCacheKey).Err()
}

// SubaccountAuthToken fetches the auth token of a subaccount via the main
// account.
func (m *Manager) SubaccountAuthToken(ctx context.Context, accountSID string) (string, error) {
	acc, err := m.client.FetchAccount(ctx, accountSID)
	if err != nil {
		return "", err
	}
	if acc.AuthToken == "" {
		return "", errors.New("account has no auth token")
	}
	return acc.AuthToken, nil
}

// ---- Phone numbers ----

// AccountNumbers merges the Local and Mobile inventories of an account,
// each entry tagged with its number type. Both subresources are fetched
// concurrently. An empty accountSID means the main account.
func (m *Manager) AccountNumbers(ctx context.Context, accountSID string) ([]twilio.IncomingPhoneNumber, error) {
	type listing struct {
		nt      twilio.NumberType
		numbers []twilio.IncomingPhoneNumber
		err     error
	}

	types := []twilio.NumberType{twilio.NumberTypeLocal, twilio.NumberTypeMobile}
	ch := make(chan listing, len(types))
	for _, nt := range types {
		go func(nt twilio.NumberType) {
			numbers, err := m.client.ListIncomingNumbers(ctx, accountSID, nt)
			ch <- listing{nt: nt, numbers: numbers, err: err}
		}(nt)
	}

	byType := make(map[twilio.NumberType][]twilio.IncomingPhoneNumber, len(types))
	for range types {
		l := <-ch
		if l.err != nil {
			return nil, l.err
		}
		byType[l.nt] = l.numbers
	}

	merged := append(byType[twilio.NumberTypeLocal], byType[twilio.NumberTypeMobile]...)
	return merged, nil
}

// ---- Addresses ----

func (m *Manager) Addresses(ctx context.Context, accountSID string) ([]twilio.Address, error) {
	return m.client.ListAddresses(ctx, accountSID)
}

// CreateDefaultAddress creates the configured fallback address in an
// account so transfers into empty subaccounts can proceed.
func (m *Manager) CreateDefaultAddress(ctx context.Context, accountSID string) (twilio.Address, error) {
	p := m.defaultAddress
	if p.IsoCountry == "" {
		p.IsoCountry = m.isoCountry
	}
	return m.client.CreateAddress(ctx, accountSID, p)
}

// ---- Regulatory bundles ----

// ListRegulatoryBundles lists bundles of a subaccount (using the
// subaccount's own credentials) or of the main account when accountSID is
// empty. An empty bundle type fetches national and mobile bundles.
func (m *Manager) ListRegulatoryBundles(ctx context.Context, accountSID string, bt twilio.BundleType) ([]twilio.Bundle, error) {
	client := m.client
	if accountSID != "" && accountSID != m.client.AccountSID() {
		token, err := m.SubaccountAuthToken(ctx, accountSID)
		if err != nil {
			return nil, err
		}
		client = m.client.ForSubaccount(accountSID, token)
	}

	if bt != "" {
		return client.ListBundles(ctx, bt, m.isoCountry)
	}

	var bundles []twilio.Bundle
	for _, t := range []twilio.BundleType{twilio.BundleTypeNational, twilio.BundleTypeMobile} {
		bs, err := client.ListBundles(ctx, t, m.isoCountry)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, bs...)
	}
	return bundles, nil
}

// DuplicateBundlesTo clones every main-account bundle into the target
// subaccount.
func (m *Manager) DuplicateBundlesTo(ctx context.Context, targetAccountSID string) ([]twilio.Bundle, error) {
	var cloned []twilio.Bundle
	for _, t := range []twilio.BundleType{twilio.BundleTypeNational, twilio.BundleTypeMobile} {
		bundles, err := m.client.ListBundles(ctx, t, m.isoCountry)
		if err != nil {
			return nil, err
		}
		for _, b := range bundles {
			cb, err := m.client.CloneBundle(ctx, b.SID, targetAccountSID, b.FriendlyName)
			if err != nil {
				return nil, err
			}
			cloned = append(cloned, cb)
		}
	}
	return cloned, nil
}

// ---- Transfers ----

type TransferRequest struct {
	SourceAccountSID string `json:"source_account_sid" form:"source_account_sid"`
	PhoneNumberSID   string `json:"phone_number_sid" form:"phone_number_sid"`
	TargetAccountSID string `json:"target_account_sid" form:"target_account_sid"`
	AddressSID       string `json:"address_sid" form:"address_sid"`
	BundleSID        string `json:"bundle_sid" form:"bundle_sid"`
}

type TransferResult struct {
	ID         string                     `json:"id"`
	Status     store.TransferStatus       `json:"status"`
	Number     twilio.IncomingPhoneNumber `json:"number"`
	BundleSID  string                     `json:"bundle_sid"`
	AddressSID string                     `json:"address_sid"`
}

// TransferNumber moves an incoming phone number between subaccounts. When
// the request carries no bundle or address, matching ones are resolved on
// the target: bundles are cloned from the main account and the default
// address is created if the target has none. Twilio occasionally reports an
// error after committing the move, so a failed update is verified against
// the target inventory before being treated as a failure.
func (m *Manager) TransferNumber(ctx context.Context, req TransferRequest) (TransferResult, error) {
	res := TransferResult{ID: util.New()}
	rec := store.TransferRecord{
		ID:               res.ID,
		SourceAccountSID: req.SourceAccountSID,
		TargetAccountSID: req.TargetAccountSID,
		PhoneNumberSID:   req.PhoneNumberSID,
	}

	bundleSID := req.BundleSID
	if bundleSID == "" {
		number, err := m.findNumber(ctx, req.SourceAccountSID, req.PhoneNumberSID)
		if err != nil {
			return res, m.finish(ctx, res, rec, err)
		}
		rec.PhoneNumber = number.PhoneNumber

		bundleSID, err = m.resolveBundle(ctx, req.TargetAccountSID, number.NumberType.BundleType())
		if err != nil {
			return res, m.finish(ctx, res, rec, err)
		}
	}
	rec.BundleSID = bundleSID
	res.BundleSID = bundleSID

	addressSID := req.AddressSID
	if addressSID == "" {
		var err error
		addressSID, err = m.resolveAddress(ctx, req.TargetAccountSID)
		if err != nil {
			return res, m.finish(ctx, res, rec, err)
		}
	}
	rec.AddressSID = addressSID
	res.AddressSID = addressSID

	updated, err := m.client.UpdateIncomingNumber(ctx, req.SourceAccountSID, req.PhoneNumberSID, twilio.UpdateNumberParams{
		AccountSID: req.TargetAccountSID,
		AddressSID: addressSID,
		BundleSID:  bundleSID,
	})
	status := store.TransferCompleted
	if err != nil {
		if recovered, ok := m.verifyTransfer(ctx, req.TargetAccountSID, req.PhoneNumberSID); ok {
			m.log.Info("transfer reported an error but the number reached the target",
				zap.String("phone_number_sid", req.PhoneNumberSID),
				zap.String("target_account_sid", req.TargetAccountSID))
			updated = recovered
			status = store.TransferRecovered
			err = nil
		}
	}

	if err != nil {
		return res, m.finish(ctx, res, rec, err)
	}

	res.Status = status
	res.Number = updated
	rec.Status = status
	rec.PhoneNumber = updated.PhoneNumber

	m.log.Info("phone number transferred",
		zap.String("id", res.ID),
		zap.String("phone_number_sid", req.PhoneNumberSID),
		zap.String("source_account_sid", req.SourceAccountSID),
		zap.String("target_account_sid", req.TargetAccountSID),
		zap.String("status", status.String()))

	return res, m.finish(ctx, res, rec, nil)
}

// finish records the audit row, bumps metrics and publishes the transfer
// event. Audit and event failures are logged, never returned: the Twilio
// side of the operation already settled.
func (m *Manager) finish(ctx context.Context, res TransferResult, rec store.TransferRecord, opErr error) error {
	if opErr != nil {
		rec.Status = store.TransferFailed
		rec.Error = opErr.Error()
	}
	metrics.TransfersTotal.WithLabelValues(rec.Status.String()).Inc()

	if m.transfers != nil {
		if err := m.transfers.Insert(ctx, rec); err != nil {
			m.log.Warn("transfer audit insert failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	if m.events != nil {
		ev := events.TransferEvent{
			ID:               rec.ID,
			SourceAccountSID: rec.SourceAccountSID,
			TargetAccountSID: rec.TargetAccountSID,
			PhoneNumberSID:   rec.PhoneNumberSID,
			PhoneNumber:      rec.PhoneNumber,
			Status:           rec.Status.String(),
			OccurredAt:       time.Now().UTC(),
		}
		if err := m.events.Publish(ctx, ev); err != nil {
			m.log.Warn("transfer event publish failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return opErr
}

func (m *Manager) findNumber(ctx context.Context, accountSID, numberSID string) (twilio.IncomingPhoneNumber, error) {
	numbers, err := m.AccountNumbers(ctx, accountSID)
	if err != nil {
		return twilio.IncomingPhoneNumber{}, err
	}
	for _, n := range numbers {
		if n.SID == numberSID {
			return n, nil
		}
	}
	return twilio.IncomingPhoneNumber{}, ErrNumberNotFound
}

func (m *Manager) resolveBundle(ctx context.Context, targetAccountSID string, bt twilio.BundleType) (string, error) {
	bundles, err := m.ListRegulatoryBundles(ctx, targetAccountSID, bt)
	if err != nil {
		return "", err
	}
	if len(bundles) == 0 {
		m.log.Info("target has no matching bundle, cloning main account bundles",
			zap.String("target_account_sid", targetAccountSID),
			zap.String("bundle_type", bt.String()))
		if _, err := m.DuplicateBundlesTo(ctx, targetAccountSID); err != nil {
			return "", err
		}
		bundles, err = m.ListRegulatoryBundles(ctx, targetAccountSID, bt)
		if err != nil {
			return "", err
		}
		if len(bundles) == 0 {
			return "", ErrNoBundle
		}
	}
	return bundles[0].SID, nil
}

func (m *Manager) resolveAddress(ctx context.Context, targetAccountSID string) (string, error) {
	addresses, err := m.Addresses(ctx, targetAccountSID)
	if err != nil {
		return "", err
	}
	if len(addresses) > 0 {
		return addresses[0].SID, nil
	}

	m.log.Info("target has no address, creating default",
		zap.String("target_account_sid", targetAccountSID))
	addr, err := m.CreateDefaultAddress(ctx, targetAccountSID)
	if err != nil {
		return "", err
	}
	return addr.SID, nil
}

// verifyTransfer checks whether a number reached the target account despite
// an upstream error, after a short settle pause.
func (m *Manager) verifyTransfer(ctx context.Context, targetAccountSID, numberSID string) (twilio.IncomingPhoneNumber, bool) {
	select {
	case <-ctx.Done():
		return twilio.IncomingPhoneNumber{}, false
	case <-time.After(m.verifyWait):
	}

	numbers, err := m.AccountNumbers(ctx, targetAccountSID)
	if err != nil {
		m.log.Warn("transfer verification failed", zap.Error(err))
		return twilio.IncomingPhoneNumber{}, false
	}
	for _, n := range numbers {
		if n.SID == numberSID {
			return n, true
		}
	}
	return twilio.IncomingPhoneNumber{}, false
}
