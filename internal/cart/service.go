package cart

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Notifier receives the cart-count refresh signal after every successful mutation.
type Notifier interface {
	CartChanged(ctx context.Context, userID string, count int)
}

// Notifiers fans a refresh signal out to several notifiers.
type Notifiers []Notifier

func (n Notifiers) CartChanged(ctx context.Context, userID string, count int) {
	for _, notifier := range n {
		notifier.CartChanged(ctx, userID, count)
	}
}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
}

func NewService(repo Repository, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

func (s *Service) AddItem(ctx context.Context, userID, productID string) (Change, error) {
	if strings.TrimSpace(userID) == "" {
		return Change{}, ErrSignedOut
	}

	l, inserted, err := s.repo.Add(ctx, userID, productID)
	if err != nil {
		s.logger.Error("add to cart failed", zap.String("user_id", userID), zap.String("product_id", productID), zap.Error(err))
		return Change{}, err
	}

	msg := "Item quantity updated in cart!"
	if inserted {
		msg = "Added to cart!"
	}
	return Change{Line: &l, Count: s.refresh(ctx, userID), Message: msg}, nil
}

// UpdateQuantity persists n, or removes the line when n < 1.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID string, n int) (Change, error) {
	if strings.TrimSpace(userID) == "" {
		return Change{}, ErrSignedOut
	}
	if n < 1 {
		return s.RemoveItem(ctx, userID, lineID)
	}

	l, err := s.repo.SetQuantity(ctx, userID, lineID, n)
	if err != nil {
		s.logger.Error("update cart quantity failed", zap.String("user_id", userID), zap.String("line_id", lineID), zap.Error(err))
		return Change{}, err
	}
	return Change{Line: &l, Count: s.refresh(ctx, userID), Message: "Cart updated"}, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, lineID string) (Change, error) {
	if strings.TrimSpace(userID) == "" {
		return Change{}, ErrSignedOut
	}

	if err := s.repo.Delete(ctx, userID, lineID); err != nil {
		s.logger.Error("remove from cart failed", zap.String("user_id", userID), zap.String("line_id", lineID), zap.Error(err))
		return Change{}, err
	}
	return Change{Removed: true, Count: s.refresh(ctx, userID), Message: "Item removed from cart"}, nil
}

func (s *Service) ListCart(ctx context.Context, userID string) ([]Line, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrSignedOut
	}
	return s.repo.ListWithProducts(ctx, userID)
}

func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrSignedOut
	}
	return s.repo.Count(ctx, userID)
}

// refresh recounts the cart and emits the refresh signal. The mutation has
// already been persisted, so a failed recount is logged and reported as zero.
func (s *Service) refresh(ctx context.Context, userID string) int {
	n, err := s.repo.Count(ctx, userID)
	if err != nil {
		s.logger.Warn("recount cart failed", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	s.notifier.CartChanged(ctx, userID, n)
	return n
}
