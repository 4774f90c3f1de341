// Package premium manages premium grants, their lazy expiry and the manual payment flow.
package premium

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"kinobot/internal/model"
	"kinobot/internal/storage"
)

// ErrNotPending is returned when deciding a payment that was already reviewed.
var ErrNotPending = errors.New("payment is not pending")

// Store is the persistence the Service needs.
type Store interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetPremium(ctx context.Context, userID int64, until *time.Time) error
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id int64) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus) error
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	EnsureSetting(ctx context.Context, key, value string) error
}

// Defaults are the initial settings and grant length.
type Defaults struct {
	Days       int
	Price      int64
	CardNumber string
	CardOwner  string
}

// Service implements premium grants and payments.
type Service struct {
	store    Store
	defaults Defaults
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Service.
func New(store Store, d Defaults, log *slog.Logger) *Service {
	if d.Days <= 0 {
		d.Days = 30
	}
	return &Service{store: store, defaults: d, now: time.Now, log: log}
}

// SetClock overrides time.Now.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// EnsureDefaults seeds the payment settings that are not stored yet.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	seed := map[string]string{
		model.SettingPremiumPrice: strconv.FormatInt(s.defaults.Price, 10),
		model.SettingCardNumber:   s.defaults.CardNumber,
		model.SettingCardOwner:    s.defaults.CardOwner,
	}
	for k, v := range seed {
		if err := s.store.EnsureSetting(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile reports whether u currently holds premium. An expired grant is revoked as a
// side effect and u is updated in place, so later reads no longer see it. A flag without
// an expiry is read as non-premium and left as stored.
func (s *Service) Reconcile(ctx context.Context, u *model.User) (bool, error) {
	if u == nil || !u.IsPremium || u.PremiumUntil == nil {
		return false, nil
	}
	if storage.IsPremiumActive(u, s.now()) {
		return true, nil
	}
	if err := s.store.SetPremium(ctx, u.ID, nil); err != nil {
		return false, fmt.Errorf("revoke expired premium: %w", err)
	}
	s.log.Info("premium expired", "user_id", u.ID, "until", u.PremiumUntil)
	u.IsPremium = false
	u.PremiumUntil = nil
	return false, nil
}

// IsPremium loads the user and reconciles their grant.
func (s *Service) IsPremium(ctx context.Context, userID int64) (bool, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.Reconcile(ctx, u)
}

// Grant gives the user premium for days days from now. Non-positive days uses the default length.
func (s *Service) Grant(ctx context.Context, userID int64, days int) (time.Time, error) {
	if days <= 0 {
		days = s.defaults.Days
	}
	until := s.now().AddDate(0, 0, days)
	if err := s.store.SetPremium(ctx, userID, &until); err != nil {
		return time.Time{}, fmt.Errorf("grant premium: %w", err)
	}
	return until, nil
}

// Revoke removes the user's premium.
func (s *Service) Revoke(ctx context.Context, userID int64) error {
	if err := s.store.SetPremium(ctx, userID, nil); err != nil {
		return fmt.Errorf("revoke premium: %w", err)
	}
	return nil
}

// Submit records a pending card payment at the current price.
func (s *Service) Submit(ctx context.Context, userID int64) (*model.Payment, error) {
	p := &model.Payment{
		UserID:    userID,
		Amount:    s.Price(ctx),
		Type:      "card",
		Status:    model.PaymentPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// Decide approves or denies a pending payment. Approval grants the default premium length
// and returns the new expiry.
func (s *Service) Decide(ctx context.Context, paymentID int64, approve bool) (*model.Payment, time.Time, error) {
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if p.Status != model.PaymentPending {
		return p, time.Time{}, ErrNotPending
	}

	status := model.PaymentDenied
	if approve {
		status = model.PaymentApproved
	}
	if err := s.store.UpdatePaymentStatus(ctx, p.ID, status); err != nil {
		return nil, time.Time{}, fmt.Errorf("update payment: %w", err)
	}
	p.Status = status

	if !approve {
		return p, time.Time{}, nil
	}
	until, err := s.Grant(ctx, p.UserID, s.defaults.Days)
	if err != nil {
		return p, time.Time{}, err
	}
	return p, until, nil
}

// Price returns the monthly premium price, falling back to the default when unset or malformed.
func (s *Service) Price(ctx context.Context) int64 {
	v, err := s.store.GetSetting(ctx, model.SettingPremiumPrice)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("get premium price", "error", err)
		}
		return s.defaults.Price
	}
	n, err := ParsePrice(v)
	if err != nil {
		return s.defaults.Price
	}
	return n
}

// SetPrice stores a new monthly price.
func (s *Service) SetPrice(ctx context.Context, price int64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %d", price)
	}
	return s.store.SetSetting(ctx, model.SettingPremiumPrice, strconv.FormatInt(price, 10))
}

// Card returns the card number and owner users should pay to.
func (s *Service) Card(ctx context.Context) (number, owner string) {
	number = s.setting(ctx, model.SettingCardNumber, s.defaults.CardNumber)
	owner = s.setting(ctx, model.SettingCardOwner, s.defaults.CardOwner)
	return number, owner
}

// SetCard stores the card number and owner. Empty values leave the current setting unchanged.
func (s *Service) SetCard(ctx context.Context, number, owner string) error {
	if number != "" {
		if err := s.store.SetSetting(ctx, model.SettingCardNumber, number); err != nil {
			return err
		}
	}
	if owner != "" {
		if err := s.store.SetSetting(ctx, model.SettingCardOwner, owner); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) setting(ctx context.Context, key, def string) string {
	v, err := s.store.GetSetting(ctx, key)
	if err != nil || v == "" {
		return def
	}
	return v
}

// ParsePrice accepts digits with optional spaces, commas or dots as thousands separators.
func ParsePrice(s string) (int64, error) {
	cleaned := strings.NewReplacer(" ", "", ",", "", ".", "", "_", "").Replace(strings.TrimSpace(s))
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return n, nil
}
