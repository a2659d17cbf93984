package service

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"

	"github.com/dextersy/label-dashboard-sub004/internal/repository"
	"gorm.io/gorm"
)

var referrerCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type ReferralService interface {
	// Attribute resolves a referrer code to its id, or nil. It never fails.
	Attribute(ctx context.Context, eventID uint, code string) *uint
}

type referralService struct {
	referrers repository.ReferrerRepository
}

func NewReferralService(referrers repository.ReferrerRepository) ReferralService {
	return &referralService{referrers: referrers}
}

func (s *referralService) Attribute(ctx context.Context, eventID uint, code string) *uint {
	code = strings.TrimSpace(code)
	if !referrerCodePattern.MatchString(code) {
		return nil
	}

	ref, err := s.referrers.FindByCode(ctx, eventID, code)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Referral] lookup of %q for event %d failed: %v", code, eventID, err)
		}
		return nil
	}
	return &ref.ID
}
