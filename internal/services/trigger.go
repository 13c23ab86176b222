package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"holiday-status-api/internal/models"
)

// AdminTokenHeader carries the admin token on refresh requests
const AdminTokenHeader = "X-Admin-Token"

// LambdaInvoker is the subset of the Lambda client used by RefreshTrigger
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambdaclient.InvokeInput, optFns ...func(*lambdaclient.Options)) (*lambdaclient.InvokeOutput, error)
}

// RefreshTrigger asks the holiday API function to refresh a city, the same
// way an operator would through API Gateway.
type RefreshTrigger struct {
	client       LambdaInvoker
	functionName string
	adminToken   string
}

// NewRefreshTrigger creates a trigger for the named function
func NewRefreshTrigger(client LambdaInvoker, functionName, adminToken string) *RefreshTrigger {
	return &RefreshTrigger{
		client:       client,
		functionName: functionName,
		adminToken:   adminToken,
	}
}

// Trigger synchronously invokes a model refresh and returns the proxied response
func (t *RefreshTrigger) Trigger(ctx context.Context, city string) (*events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(models.RefreshRequest{City: city})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	payload, err := json.Marshal(events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/holiday",
		Headers: map[string]string{
			"Content-Type":   "application/json",
			AdminTokenHeader: t.adminToken,
		},
		Body: string(body),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoke payload: %w", err)
	}

	out, err := t.client.Invoke(ctx, &lambdaclient.InvokeInput{
		FunctionName:   aws.String(t.functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", t.functionName, err)
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("%s failed: %s: %s", t.functionName, aws.ToString(out.FunctionError), string(out.Payload))
	}

	var resp events.APIGatewayProxyResponse
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", t.functionName, err)
	}
	return &resp, nil
}
