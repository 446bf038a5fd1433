package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/medistore/internal/domain"
)

func TestReviewRepository_PostgresReviewsAndReplies(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedMedicine(t, store, "med-1", "seller-1", domain.Tracked(10), true)

	now := time.Now().UTC().Round(time.Microsecond)
	review := domain.Review{
		ID:         "review-1",
		MedicineID: "med-1",
		CustomerID: "customer-1",
		Rating:     5,
		Comment:    "helped quickly",
		CreatedAt:  now,
	}
	reply := domain.Review{
		ID:         "reply-1",
		MedicineID: "med-1",
		SellerID:   "seller-1",
		ParentID:   review.ID,
		Comment:    "thank you",
		CreatedAt:  now.Add(time.Second),
	}

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Reviews().Create(ctx, review))
		require.NoError(t, tx.Reviews().Create(ctx, reply))
		return nil
	})

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		got, err := tx.Reviews().Get(ctx, reply.ID)
		require.NoError(t, err)
		require.True(t, got.IsReply())
		require.Zero(t, got.Rating)
		require.Equal(t, "seller-1", got.SellerID)

		list, err := tx.Reviews().ListByMedicine(ctx, "med-1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, reply.ID, list[0].ID)

		_, err = tx.Reviews().Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrReviewNotFound)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	second := review
	second.ID = "review-2"
	err := store.Do(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Reviews().Create(ctx, second)
	})
	require.ErrorIs(t, err, domain.ErrAlreadyReviewed)
}
