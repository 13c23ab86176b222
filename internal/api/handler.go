package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"holiday-status-api/internal/models"
	"holiday-status-api/internal/services"
)

// HolidayStatusService is what the handler needs from the service layer
type HolidayStatusService interface {
	Get(ctx context.Context, city string) (*models.AnalysisResult, error)
	RefreshManual(ctx context.Context, city string, manual json.RawMessage) (*models.AnalysisResult, error)
	RefreshFromModel(ctx context.Context, city string, rc *models.RefreshContext) (*models.AnalysisResult, error)
}

// ContentType is set on every response
const ContentType = "application/json; charset=utf-8"

// Handler serves /api/holiday over API Gateway proxy events
type Handler struct {
	service     HolidayStatusService
	adminToken  string
	defaultCity string
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewHandler creates the handler. An empty adminToken rejects every POST.
func NewHandler(service HolidayStatusService, adminToken, defaultCity string, logger zerolog.Logger) *Handler {
	return &Handler{
		service:     service,
		adminToken:  adminToken,
		defaultCity: defaultCity,
		validate:    validator.New(),
		logger:      logger,
	}
}

// Handle dispatches on the HTTP method
func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := request.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := h.logger.With().
		Str("request_id", requestID).
		Str("method", request.HTTPMethod).
		Logger()

	switch strings.ToUpper(request.HTTPMethod) {
	case http.MethodGet:
		return h.handleGet(ctx, request, logger), nil
	case http.MethodPost:
		return h.handlePost(ctx, request, logger), nil
	case http.MethodOptions:
		// CORS preflight for the admin page
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: responseHeaders()}, nil
	default:
		return errorResponse(http.StatusMethodNotAllowed, models.ErrCodeMethodNotAllowed, ""), nil
	}
}

func (h *Handler) handleGet(ctx context.Context, request events.APIGatewayProxyRequest, logger zerolog.Logger) events.APIGatewayProxyResponse {
	city, ok := h.resolveCity(request, bodyCity(request))
	if !ok {
		return errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, "invalid city")
	}

	result, err := h.service.Get(ctx, city)
	if errors.Is(err, services.ErrNotFound) {
		return errorResponse(http.StatusNotFound, models.ErrCodeNoCachedData, "")
	}
	if err != nil {
		logger.Error().Err(err).Str("city", city).Msg("failed to read holiday status")
		return errorResponse(http.StatusInternalServerError, models.ErrCodeInternal, "")
	}
	return jsonResponse(http.StatusOK, result)
}

func (h *Handler) handlePost(ctx context.Context, request events.APIGatewayProxyRequest, logger zerolog.Logger) events.APIGatewayProxyResponse {
	if resp, ok := h.checkAdminToken(request); !ok {
		logger.Warn().Int("status", resp.StatusCode).Msg("refresh rejected")
		return resp
	}

	body, err := requestBody(request)
	if err != nil {
		return errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, "body is not valid base64")
	}

	var req models.RefreshRequest
	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, "body is not valid JSON")
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, err.Error())
	}

	city, ok := h.resolveCity(request, req.City)
	if !ok {
		return errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, "invalid city")
	}
	logger = logger.With().Str("city", city).Logger()

	var result *models.AnalysisResult
	if req.HasManual() {
		result, err = h.service.RefreshManual(ctx, city, req.Manual)
	} else {
		result, err = h.service.RefreshFromModel(ctx, city, req.Context)
	}
	if err != nil {
		return refreshErrorResponse(err, logger)
	}
	return jsonResponse(http.StatusOK, result)
}

// checkAdminToken returns the rejection response when the request may not refresh
func (h *Handler) checkAdminToken(request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, bool) {
	if h.adminToken == "" {
		return errorResponse(http.StatusInternalServerError, models.ErrCodeTokenNotConfigured, "ADMIN_HOLIDAY_TOKEN is not set"), false
	}

	provided := strings.TrimSpace(headerValue(request, services.AdminTokenHeader))
	if provided == "" {
		return errorResponse(http.StatusUnauthorized, models.ErrCodeTokenRequired, ""), false
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminToken)) != 1 {
		return errorResponse(http.StatusForbidden, models.ErrCodeInvalidToken, ""), false
	}
	return events.APIGatewayProxyResponse{}, true
}

// resolveCity picks the query city, then the body city, then the default
func (h *Handler) resolveCity(request events.APIGatewayProxyRequest, bodyCity string) (string, bool) {
	city := strings.TrimSpace(request.QueryStringParameters["city"])
	if city == "" {
		city = strings.TrimSpace(bodyCity)
	}
	if city == "" {
		city = h.defaultCity
	}
	if err := h.validate.Var(city, "required,max=64"); err != nil {
		return "", false
	}
	return city, true
}

func refreshErrorResponse(err error, logger zerolog.Logger) events.APIGatewayProxyResponse {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, services.ErrInvalidManual):
		return errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, services.ErrProviderNotConfigured):
		status, code = http.StatusInternalServerError, models.ErrCodeAINotConfigured
	case errors.Is(err, services.ErrQuotaExceeded):
		status, code = http.StatusServiceUnavailable, models.ErrCodeAIQuotaExceeded
	case errors.Is(err, services.ErrMalformedUpstream):
		status, code = http.StatusInternalServerError, models.ErrCodeAIMalformed
	case errors.Is(err, services.ErrUpstream):
		status, code = http.StatusInternalServerError, models.ErrCodeAIUpstream
	default:
		status, code = http.StatusInternalServerError, models.ErrCodeInternal
	}

	logger.Error().Err(err).Int("status", status).Str("code", code).Msg("refresh failed")
	if code == models.ErrCodeInternal {
		// details stay in the log
		return errorResponse(status, code, "")
	}
	return errorResponse(status, code, err.Error())
}

// headerValue looks a header up case-insensitively
func headerValue(request events.APIGatewayProxyRequest, name string) string {
	for k, v := range request.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, values := range request.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// bodyCity reads an optional city from a GET body, ignoring bodies that do not parse
func bodyCity(request events.APIGatewayProxyRequest) string {
	body, err := requestBody(request)
	if err != nil || strings.TrimSpace(body) == "" {
		return ""
	}
	var req struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return ""
	}
	return req.City
}

func requestBody(request events.APIGatewayProxyRequest) (string, error) {
	if !request.IsBase64Encoded {
		return request.Body, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(request.Body)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func responseHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                 ContentType,
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type," + services.AdminTokenHeader,
		"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
		"Cache-Control":                "no-store",
	}
}

func jsonResponse(status int, body any) events.APIGatewayProxyResponse {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    responseHeaders(),
			Body:       `{"error":"internal-error"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders(),
		Body:       string(bodyJSON),
	}
}

func errorResponse(status int, code, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, models.ErrorBody{Error: code, Message: message})
}
