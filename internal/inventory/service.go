// Package inventory ties the API client, the local cache and the add-product form together.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/expiry"
)

// LookupTTL is how long a cached barcode lookup is trusted
const LookupTTL = 7 * 24 * time.Hour

var (
	// ErrNotLoggedIn is returned when no session has been saved
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrSessionExpired is returned when the saved token is no longer accepted
	ErrSessionExpired = errors.New("session expired, please log in again")
)

// API is the part of the REST client the service uses
type API interface {
	Login(ctx context.Context, username, password string) (*api.AuthResponse, error)
	Signup(ctx context.Context, req api.SignupRequest) (*api.AuthResponse, error)
	CurrentUser(ctx context.Context) (*api.User, error)
	ListProducts(ctx context.Context) ([]api.Product, error)
	AddProduct(ctx context.Context, in api.ProductInput) (*api.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	Statistics(ctx context.Context) (*api.Statistics, error)
	SendExpiryAlerts(ctx context.Context) (*api.AlertResponse, error)
	ProductByBarcode(ctx context.Context, code string) (*api.BarcodeProduct, error)
	ParseVoice(ctx context.Context, transcript string) (*api.VoiceResult, error)
	SetSchedulerTime(ctx context.Context, hour, minute int) (*api.MessageResponse, error)
	SetNotifications(ctx context.Context, on bool) (*api.MessageResponse, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles inventory operations
type Service struct {
	client     API
	db         DB
	timeSource TimeSource
	log        zerolog.Logger
}

// NewService creates a new Service with the default time source
func NewService(client API, db DB, log zerolog.Logger) *Service {
	return &Service{
		client:     client,
		db:         db,
		timeSource: &defaultTimeSource{},
		log:        log,
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(client API, db DB, timeSrc TimeSource, log zerolog.Logger) *Service {
	return &Service{
		client:     client,
		db:         db,
		timeSource: timeSrc,
		log:        log,
	}
}

// Login authenticates and persists the token
func (s *Service) Login(ctx context.Context, username, password string) (*api.User, error) {
	resp, err := s.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := s.saveSession(resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Signup registers an account and persists its token
func (s *Service) Signup(ctx context.Context, req api.SignupRequest) (*api.User, error) {
	resp, err := s.client.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.saveSession(resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (s *Service) saveSession(resp *api.AuthResponse) error {
	session := &Session{
		Token:    resp.AccessToken,
		Username: resp.User.Username,
		SavedAt:  s.timeSource.Now(),
	}
	if err := s.db.SaveToken(session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Logout forgets the saved token
func (s *Service) Logout() error {
	if err := s.db.ClearToken(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Restore returns the user of the saved session. An expired or rejected token is cleared.
func (s *Service) Restore(ctx context.Context) (*api.User, error) {
	session, err := s.db.Session()
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	if api.TokenExpired(session.Token, s.timeSource.Now()) {
		s.log.Info().Str("username", session.Username).Msg("saved token expired")
		return nil, s.expire()
	}

	user, err := s.client.CurrentUser(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		s.log.Info().Str("username", session.Username).Msg("saved token rejected")
		return nil, s.expire()
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) expire() error {
	if err := s.db.ClearToken(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return ErrSessionExpired
}

// LookupBarcode finds the product behind a barcode. A fresh cached result is used when there
// is one. An unknown barcode returns nil, nil.
func (s *Service) LookupBarcode(ctx context.Context, code string) (*api.BarcodeProduct, error) {
	now := s.timeSource.Now()

	cached, err := s.db.GetLookup(code)
	switch {
	case err == nil && now.Sub(cached.CachedAt) < LookupTTL:
		s.log.Debug().Str("barcode", code).Msg("barcode lookup cache hit")
		return cached.Product(), nil
	case err != nil && !errors.Is(err, ErrNotFound):
		s.log.Warn().Err(err).Str("barcode", code).Msg("reading lookup cache")
	}

	product, err := s.client.ProductByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	lookup := &CachedLookup{
		Barcode:     code,
		ProductName: product.ProductName,
		Source:      product.Source,
		CachedAt:    now,
	}
	if err := s.db.SaveLookup(lookup); err != nil {
		s.log.Warn().Err(err).Str("barcode", code).Msg("caching barcode lookup")
	}
	return product, nil
}

// AddProduct stores a new product
func (s *Service) AddProduct(ctx context.Context, in api.ProductInput) (*api.Product, error) {
	product, err := s.client.AddProduct(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("product_id", product.ID).Str("product_name", product.ProductName).Msg("product added")
	return product, nil
}

// DeleteProduct removes a product
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.client.DeleteProduct(ctx, id)
}

// ParseVoice turns a spoken sentence into product fields
func (s *Service) ParseVoice(ctx context.Context, transcript string) (*api.VoiceResult, error) {
	return s.client.ParseVoice(ctx, transcript)
}

// Dashboard lists the user's products with their status on today, soonest expiry first.
// Status is recomputed locally since the stored one is only correct on the day it was added.
func (s *Service) Dashboard(ctx context.Context, today time.Time) (*Dashboard, error) {
	products, err := s.client.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{
		Items: make([]Item, 0, len(products)),
		Counts: map[expiry.Status]int{
			expiry.StatusSafe:    0,
			expiry.StatusNear:    0,
			expiry.StatusExpired: 0,
		},
	}
	for _, p := range products {
		item := Item{
			Product: p,
			Status:  expiry.Classify(p.ExpiryDate, today),
			Alert:   expiry.NeedsAlert(p.ExpiryDate, today),
		}
		if days, err := expiry.DaysUntil(p.ExpiryDate, today); err == nil {
			item.DaysLeft = days
		} else {
			s.log.Warn().Str("product_id", p.ID).Str("expiry_date", p.ExpiryDate).Msg("unreadable expiry date")
		}
		dash.Items = append(dash.Items, item)
		dash.Counts[item.Status]++
	}

	expiry.SortByExpiry(dash.Items, func(i Item) string { return i.ExpiryDate })
	for _, item := range dash.Items {
		if item.Status != expiry.StatusSafe {
			dash.Attention = append(dash.Attention, item)
		}
	}
	return dash, nil
}

// Statistics returns the server side counters
func (s *Service) Statistics(ctx context.Context) (*api.Statistics, error) {
	return s.client.Statistics(ctx)
}

// SendExpiryAlerts triggers the alert email for products close to expiry
func (s *Service) SendExpiryAlerts(ctx context.Context) (*api.AlertResponse, error) {
	return s.client.SendExpiryAlerts(ctx)
}

// SetAlertTime sets the daily alert time
func (s *Service) SetAlertTime(ctx context.Context, hour, minute int) (*api.MessageResponse, error) {
	return s.client.SetSchedulerTime(ctx, hour, minute)
}

// SetNotifications turns alert emails on or off
func (s *Service) SetNotifications(ctx context.Context, on bool) (*api.MessageResponse, error) {
	return s.client.SetNotifications(ctx, on)
}
