package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/clock"
	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const sessionIssuer = "ticketing-checkin"

// Session is the door-staff capability handed out after a correct PIN.
type Session struct {
	Token     string    `json:"token"`
	EventID   uint      `json:"event_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OrderSnapshot is what door staff see before admitting anyone.
type OrderSnapshot struct {
	Code       string             `json:"code"`
	BuyerName  string             `json:"buyer_name"`
	TicketType string             `json:"ticket_type"`
	Purchased  int                `json:"purchased"`
	Claimed    int                `json:"claimed"`
	Remaining  int                `json:"remaining"`
	Status     models.OrderStatus `json:"status"`
}

type ClaimResult struct {
	Code      string `json:"code"`
	Admitted  int    `json:"admitted"`
	Claimed   int    `json:"claimed"`
	Remaining int    `json:"remaining"`
	Purchased int    `json:"purchased"`
}

type sessionClaims struct {
	EventID        uint   `json:"eid"`
	PINFingerprint string `json:"pin"`
	jwt.RegisteredClaims
}

type CheckInService interface {
	Authenticate(ctx context.Context, eventID uint, pin string) (*Session, error)
	Lookup(ctx context.Context, token, code string) (*OrderSnapshot, error)
	Claim(ctx context.Context, token, code string, count int) (*ClaimResult, error)
}

type checkInService struct {
	store  repository.Store
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewCheckInService(store repository.Store, secret []byte, ttl time.Duration, clk clock.Clock) CheckInService {
	return &checkInService{store: store, secret: secret, ttl: ttl, clock: clk}
}

func (s *checkInService) Authenticate(ctx context.Context, eventID uint, pin string) (*Session, error) {
	event, err := s.store.Events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, storeErr("find event", err)
	}

	if event.VerificationPIN == "" || subtle.ConstantTimeCompare([]byte(pin), []byte(event.VerificationPIN)) != 1 {
		log.Printf("[CheckIn] wrong PIN for event %d", eventID)
		return nil, ErrInvalidPIN
	}

	now := s.clock.Now()
	expires := now.Add(s.ttl)
	claims := sessionClaims{
		EventID:        event.ID,
		PINFingerprint: s.fingerprint(event.ID, event.VerificationPIN),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   strconv.FormatUint(uint64(event.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign check-in session: %w", err)
	}

	return &Session{Token: token, EventID: event.ID, ExpiresAt: expires}, nil
}

func (s *checkInService) Lookup(ctx context.Context, token, code string) (*OrderSnapshot, error) {
	event, err := s.verify(ctx, token)
	if err != nil {
		return nil, err
	}

	order, err := s.findOrder(ctx, event.ID, code)
	if err != nil {
		return nil, err
	}

	snap := &OrderSnapshot{
		Code:      order.Code,
		BuyerName: order.BuyerName,
		Purchased: order.Purchased,
		Claimed:   order.Claimed,
		Remaining: order.Remaining(),
		Status:    order.Status,
	}
	if order.TicketType != nil {
		snap.TicketType = order.TicketType.Name
	}
	return snap, nil
}

// Claim admits count entries on the ticket. The bound check and the
// increment happen in one conditional update; the order is re-read only to
// explain a refusal.
func (s *checkInService) Claim(ctx context.Context, token, code string, count int) (*ClaimResult, error) {
	event, err := s.verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	order, err := s.findOrder(ctx, event.ID, code)
	if err != nil {
		return nil, err
	}
	// No state could satisfy a count above purchased; keep it out of the
	// claimed+count arithmetic in the update.
	if count > order.Purchased {
		if order.Status != models.StatusTicketSent {
			return nil, ErrNotPayable
		}
		return nil, &OverClaimError{Code: order.Code, Requested: count, Remaining: order.Remaining()}
	}

	claimed, ok, err := s.store.Orders.IncrementClaimed(ctx, order.ID, count, s.clock.Now())
	if err != nil {
		return nil, storeErr("claim entries", err)
	}
	if ok {
		log.Printf("[CheckIn] ticket %s: admitted %d, %d/%d claimed", order.Code, count, claimed, order.Purchased)
		return &ClaimResult{
			Code:      order.Code,
			Admitted:  count,
			Claimed:   claimed,
			Remaining: order.Purchased - claimed,
			Purchased: order.Purchased,
		}, nil
	}

	cur, err := s.store.Orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, storeErr("find order", err)
	}
	if cur.Status != models.StatusTicketSent {
		return nil, ErrNotPayable
	}
	return nil, &OverClaimError{Code: cur.Code, Requested: count, Remaining: cur.Remaining()}
}

// verify re-checks the session on every call: signature, expiry, and that
// the PIN it was issued under is still the event's PIN.
func (s *checkInService) verify(ctx context.Context, token string) (*models.Event, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	event, err := s.store.Events.FindByID(ctx, claims.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, storeErr("find event", err)
	}

	want := s.fingerprint(event.ID, event.VerificationPIN)
	if event.VerificationPIN == "" || !hmac.Equal([]byte(want), []byte(claims.PINFingerprint)) {
		return nil, ErrInvalidSession
	}
	return event, nil
}

func (s *checkInService) findOrder(ctx context.Context, eventID uint, code string) (*models.Order, error) {
	order, err := s.store.Orders.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find order", err)
	}
	if order.EventID != eventID {
		return nil, ErrNotFound
	}
	return order, nil
}

func (s *checkInService) fingerprint(eventID uint, pin string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%s", eventID, pin)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
