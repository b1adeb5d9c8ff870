package service

import (
	"testing"

	"commerce-core/internal/apperr"
	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeItemsCombinesDuplicates(t *testing.T) {
	items := []CartItem{
		{ProductID: "prod-b", Quantity: 2},
		{ProductID: "prod-a", Quantity: 1},
		{ProductID: "prod-b", Quantity: 3},
	}

	merged, err := mergeItems(items)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	assert.Equal(t, CartItem{ProductID: "prod-a", Quantity: 1}, merged[0])
	assert.Equal(t, CartItem{ProductID: "prod-b", Quantity: 5}, merged[1])
}

func TestMergeItemsSortsByProductID(t *testing.T) {
	items := []CartItem{
		{ProductID: "prod-c", Quantity: 1},
		{ProductID: "prod-a", Quantity: 1},
		{ProductID: "prod-b", Quantity: 1},
	}

	merged, err := mergeItems(items)
	require.NoError(t, err)
	assert.Equal(t, "prod-a", merged[0].ProductID)
	assert.Equal(t, "prod-b", merged[1].ProductID)
	assert.Equal(t, "prod-c", merged[2].ProductID)
}

func TestMergeItemsRejectsBadLines(t *testing.T) {
	_, err := mergeItems([]CartItem{{ProductID: "", Quantity: 1}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = mergeItems([]CartItem{{ProductID: "prod-a", Quantity: 0}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = mergeItems([]CartItem{{ProductID: "prod-a", Quantity: -2}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStatusEventType(t *testing.T) {
	assert.Equal(t, models.EventTypeOrderPaid, statusEventType(models.OrderStatusPaid))
	assert.Equal(t, models.EventTypeOrderShipped, statusEventType(models.OrderStatusShipped))
	assert.Equal(t, models.EventTypeOrderCompleted, statusEventType(models.OrderStatusCompleted))
	assert.Equal(t, models.EventTypeOrderCancelled, statusEventType(models.OrderStatusCancelled))
}
