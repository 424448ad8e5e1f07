package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewService_SubmitReplacesAndAverages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	p := f.product(t, "P", "10", 1)

	first, err := f.reviews.Submit(ctx, alice, p.ID, 1, "  broke on day one ")
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, "broke on day one", first.Comment)

	_, err = f.reviews.Submit(ctx, bob, p.ID, 5, "")
	require.NoError(t, err)
	_, err = f.reviews.Submit(ctx, carol, p.ID, 5, "")
	require.NoError(t, err)
	again, err := f.reviews.Submit(ctx, alice, p.ID, 2, "replaced, works now")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	rating, err := f.reviews.Rating(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rating.Count)
	assert.Equal(t, "4", rating.Average.String())

	require.NoError(t, f.reviews.Delete(ctx, carol, p.ID))
	require.NoError(t, f.reviews.Delete(ctx, carol, p.ID))
	rating, err = f.reviews.Rating(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.5", rating.Average.String())

	mine, err := f.reviews.UserReview(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Rating)
	_, err = f.reviews.UserReview(ctx, carol, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewService_AverageRoundsToTwoPlaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P", "10", 1)
	for i, r := range []int{5, 4, 4} {
		_, err := f.reviews.Submit(ctx, f.user(t, "user"+string(rune('a'+i))), p.ID, r, "")
		require.NoError(t, err)
	}

	rating, err := f.reviews.Rating(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.33", rating.Average.String())
}

func TestReviewService_Submit_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.user(t, "alice")
	p := f.product(t, "P", "10", 1)

	tests := []struct {
		name    string
		user    uuid.UUID
		product uuid.UUID
		rating  int
		comment string
		want    error
	}{
		{"rating too low", user, p.ID, 0, "", ErrInvalidInput},
		{"rating too high", user, p.ID, 6, "", ErrInvalidInput},
		{"comment too long", user, p.ID, 3, strings.Repeat("x", 2001), ErrInvalidInput},
		{"unknown product", user, uuid.New(), 3, "", ErrNotFound},
		{"unknown user", uuid.New(), p.ID, 3, "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reviews.Submit(ctx, tt.user, tt.product, tt.rating, tt.comment)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	rating, err := f.reviews.Rating(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, rating.Count)
}

func TestReviewService_Watch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	user := f.user(t, "alice")
	p, other := f.product(t, "P", "10", 1), f.product(t, "Q", "10", 1)

	ch, err := f.reviews.Watch(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, (<-ch).Rating.Count)

	_, err = f.reviews.Submit(ctx, user, other.ID, 1, "")
	require.NoError(t, err)
	_, err = f.reviews.Submit(ctx, user, p.ID, 4, "nice")
	require.NoError(t, err)

	var latest ProductReviews
	assert.Eventually(t, func() bool {
		select {
		case latest = <-ch:
		default:
		}
		return latest.Rating.Count == 1
	}, time.Second, 5*time.Millisecond)
	require.Len(t, latest.Reviews, 1)
	assert.Equal(t, "nice", latest.Reviews[0].Comment)
}
