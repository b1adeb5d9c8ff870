package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"commerce-core/internal/apperr"
	"commerce-core/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGatewayAlwaysSucceeds(t *testing.T) {
	gw := NewMockGateway(1.0)
	for i := 0; i < 20; i++ {
		result, err := gw.ProcessIntent(context.Background(), "pi_test")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Empty(t, result.Reason)
	}
}

func TestMockGatewayAlwaysDeclines(t *testing.T) {
	gw := NewMockGateway(0.0)
	for i := 0; i < 20; i++ {
		result, err := gw.ProcessIntent(context.Background(), "pi_test")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "card declined", result.Reason)
	}
}

func TestMockGatewayConcurrentConfirmations(t *testing.T) {
	// Handlers and the gateway worker settle intents against the same
	// gateway instance at the same time.
	gw := NewMockGateway(0.5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				result, err := gw.ProcessIntent(context.Background(), "pi_test")
				assert.NoError(t, err)
				if !result.Success {
					assert.Equal(t, "card declined", result.Reason)
				}
			}
		}()
	}
	wg.Wait()
}

func TestWebhookPayloadDecoding(t *testing.T) {
	raw := `{
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_1a2b3c"}}
	}`

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Equal(t, "payment_intent.succeeded", payload.Type)
	assert.Equal(t, "pi_1a2b3c", payload.Data.Object.ID)
}

func TestHandleWebhookRejectsEmptyIntentID(t *testing.T) {
	ps := &PaymentService{logger: util.GetLogger()}

	var payload WebhookPayload
	payload.Type = "payment_intent.succeeded"

	err := ps.HandleWebhook(context.Background(), &payload)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestHandleWebhookIgnoresUnrelatedEvents(t *testing.T) {
	ps := &PaymentService{logger: util.GetLogger()}

	var payload WebhookPayload
	payload.Type = "charge.refunded"
	payload.Data.Object.ID = "pi_1a2b3c"

	// Unhandled event types are acknowledged without touching any state.
	assert.NoError(t, ps.HandleWebhook(context.Background(), &payload))
}
