package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holiday-status-api/internal/models"
	"holiday-status-api/internal/services"
)

// cityInvoker answers per city, keyed by the city in the proxied request body
type cityInvoker struct {
	status map[string]int
	errs   map[string]error
}

func (c *cityInvoker) Invoke(ctx context.Context, params *lambdaclient.InvokeInput, optFns ...func(*lambdaclient.Options)) (*lambdaclient.InvokeOutput, error) {
	var req events.APIGatewayProxyRequest
	if err := json.Unmarshal(params.Payload, &req); err != nil {
		return nil, err
	}
	var body models.RefreshRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return nil, err
	}
	if err := c.errs[body.City]; err != nil {
		return nil, err
	}
	payload, err := json.Marshal(events.APIGatewayProxyResponse{StatusCode: c.status[body.City], Body: `{}`})
	if err != nil {
		return nil, err
	}
	return &lambdaclient.InvokeOutput{StatusCode: 200, Payload: payload}, nil
}

func withTrigger(t *testing.T, inv services.LambdaInvoker, scheduled ...string) {
	t.Helper()
	prevTrigger, prevCities, prevLogger := trigger, cities, logger
	trigger = services.NewRefreshTrigger(inv, "holiday-api", "secret")
	cities = scheduled
	logger = zerolog.Nop()
	t.Cleanup(func() { trigger, cities, logger = prevTrigger, prevCities, prevLogger })
}

func TestHandler_PartialFailure(t *testing.T) {
	withTrigger(t, &cityInvoker{
		status: map[string]int{"Tehran": 200, "Karaj": 503},
		errs:   map[string]error{"Isfahan": errors.New("throttled")},
	}, "Tehran", "Karaj", "Isfahan")

	resp, err := handler(context.Background(), events.CloudWatchEvent{ID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tehran"}, resp.Refreshed)
	assert.Contains(t, resp.Failed["Karaj"], "status 503")
	assert.Contains(t, resp.Failed["Isfahan"], "throttled")
}

func TestHandler_AllFailed(t *testing.T) {
	withTrigger(t, &cityInvoker{status: map[string]int{"Tehran": 403}}, "Tehran")

	resp, err := handler(context.Background(), events.CloudWatchEvent{})
	assert.Error(t, err)
	assert.Empty(t, resp.Refreshed)
	assert.Len(t, resp.Failed, 1)
}
