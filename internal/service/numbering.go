package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/avelory/drop-page-reservation/internal/repository"
)

// OrderNumberService issues unique, page-type-scoped order numbers of the
// form PREFIX-YYYYMMDD-XXXXXX (e.g. DROP-20260827-9F3A1C).  Uniqueness is
// checked against the orders table and guaranteed by its unique index;
// the random suffix makes collisions vanishingly rare, the retry loop
// handles the rest.
type OrderNumberService struct {
	orders *repository.OrderRepo
}

// NewOrderNumberService returns a numbering service backed by the order
// repository.
func NewOrderNumberService(orders *repository.OrderRepo) *OrderNumberService {
	return &OrderNumberService{orders: orders}
}

// Next generates the next free order number for the given page type.
func (s *OrderNumberService) Next(ctx context.Context, pageType string) (string, error) {
	prefix := strings.ToUpper(strings.TrimSpace(pageType))
	if prefix == "" {
		prefix = "ORD"
	}
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	date := time.Now().UTC().Format("20060102")
	for attempt := 0; attempt < 5; attempt++ {
		suffix, err := randomSuffix(3)
		if err != nil {
			return "", err
		}
		number := fmt.Sprintf("%s-%s-%s", prefix, date, strings.ToUpper(suffix))
		taken, err := s.orders.NumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("order numbering: exhausted retries for page type %q", pageType)
}

// randomSuffix returns a hex string of n random bytes (2n characters).
func randomSuffix(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
