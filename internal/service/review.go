package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

const maxReviewList = 100

type reviewInput struct {
	Rating  int    `validate:"min=1,max=5"`
	Comment string `validate:"max=2000"`
}

// ProductReviews is a product's rating together with its latest reviews.
type ProductReviews struct {
	Rating  model.Rating
	Reviews []model.Review
}

type ReviewService struct {
	gw  repository.Gateway
	hub *notify.Hub
	log *slog.Logger
}

func NewReviewService(gw repository.Gateway, hub *notify.Hub, log *slog.Logger) *ReviewService {
	return &ReviewService{gw: gw, hub: hub, log: log}
}

// Submit writes the user's review of a product, replacing an earlier one.
// Ratings run from 1 to 5.
func (s *ReviewService) Submit(ctx context.Context, userID, productID uuid.UUID, rating int, comment string) (*model.Review, error) {
	in := reviewInput{Rating: rating, Comment: strings.TrimSpace(comment)}
	if err := check(in); err != nil {
		return nil, err
	}

	review := &model.Review{UserID: userID, ProductID: productID, Rating: in.Rating, Comment: in.Comment}
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		user, err := st.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		product, err := st.Products().GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if user == nil || product == nil {
			return ErrNotFound
		}
		review.Username = user.Username
		return st.Reviews().Upsert(ctx, review)
	})
	if err != nil {
		return nil, classify("submit review", err)
	}
	s.log.Debug("review submitted", "product_id", productID, "user_id", userID, "rating", rating)
	return review, nil
}

// Delete is a no-op when the user has not reviewed the product.
func (s *ReviewService) Delete(ctx context.Context, userID, productID uuid.UUID) error {
	if _, err := s.gw.Reviews().Delete(ctx, userID, productID); err != nil {
		return classify("delete review", err)
	}
	return nil
}

// List returns up to limit reviews of a product, newest first.
func (s *ReviewService) List(ctx context.Context, productID uuid.UUID, limit int) ([]model.Review, error) {
	if limit <= 0 || limit > maxReviewList {
		limit = maxReviewList
	}
	reviews, err := s.gw.Reviews().ListByProduct(ctx, productID, limit)
	if err != nil {
		return nil, classify("list reviews", err)
	}
	return reviews, nil
}

// Rating returns the review count and the average rating rounded to two
// places.
func (s *ReviewService) Rating(ctx context.Context, productID uuid.UUID) (*model.Rating, error) {
	rating, err := s.gw.Reviews().Rating(ctx, productID)
	if err != nil {
		return nil, classify("product rating", err)
	}
	rating.Average = rating.Average.Round(2)
	return rating, nil
}

// UserReview returns the user's own review of a product, or ErrNotFound.
func (s *ReviewService) UserReview(ctx context.Context, userID, productID uuid.UUID) (*model.Review, error) {
	reviews, err := s.gw.Reviews().ListByProduct(ctx, productID, 0)
	if err != nil {
		return nil, classify("get review", err)
	}
	i := slices.IndexFunc(reviews, func(r model.Review) bool { return r.UserID == userID })
	if i < 0 {
		return nil, ErrNotFound
	}
	return &reviews[i], nil
}

// Watch streams a product's rating and latest reviews after every review
// change.
func (s *ReviewService) Watch(ctx context.Context, productID uuid.UUID) (<-chan ProductReviews, error) {
	filter := func(c notify.Change) bool {
		return c.Topic == notify.TopicReviews && slices.Contains(c.ProductIDs, productID)
	}
	return feed(ctx, s.hub, filter, s.log, func(ctx context.Context) (ProductReviews, error) {
		rating, err := s.Rating(ctx, productID)
		if err != nil {
			return ProductReviews{}, err
		}
		reviews, err := s.List(ctx, productID, 0)
		if err != nil {
			return ProductReviews{}, err
		}
		return ProductReviews{Rating: *rating, Reviews: reviews}, nil
	})
}
