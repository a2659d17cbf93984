package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"

	"github.com/dextersy/label-dashboard-sub004/internal/models"
	"github.com/dextersy/label-dashboard-sub004/internal/repository"
)

const (
	// No 0/O, 1/I: codes are read aloud and typed at the door.
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

type CodeGenerator func() (string, error)

// RandomCode draws codeLength characters uniformly from codeAlphabet. The
// alphabet has 32 symbols, so masking a random byte keeps the draw unbiased.
func RandomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)&(len(codeAlphabet)-1)]
	}
	return string(buf), nil
}

// insertWithFreshCode inserts order under a newly generated code, retrying on
// collisions. Each attempt runs in its own savepoint so a unique violation
// does not poison the surrounding transaction.
func insertWithFreshCode(ctx context.Context, store repository.Store, gen CodeGenerator, order *models.Order) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := gen()
		if err != nil {
			return fmt.Errorf("generate ticket code: %w", err)
		}
		order.ID = 0
		order.Code = code

		err = store.Tx.WithTx(ctx, func(ctx context.Context) error {
			return store.Orders.Create(ctx, order)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return storeErr("create order", err)
		}
		log.Printf("[OrderService] ticket code %s taken (attempt %d/%d)", code, attempt, maxCodeAttempts)
	}
	return ErrCodeGenerationExhausted
}
