package api

import (
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"holiday-status-api/internal/models"
)

// NewRouter exposes the handler over plain HTTP for local development.
// gatherer may be nil to skip /metrics.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	if h == nil {
		panic("api.NewRouter: nil handler")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.HandleFunc("/api/holiday", h.ServeHTTP)
	return r
}

// ServeHTTP adapts a plain HTTP request into the API Gateway proxy shape
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeProxyResponse(w, errorResponse(http.StatusBadRequest, models.ErrCodeInvalidRequest, "failed to read body"))
		return
	}

	request := events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               make(map[string]string, len(r.Header)),
		MultiValueHeaders:     map[string][]string(r.Header),
		QueryStringParameters: make(map[string]string),
		Body:                  string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID: middleware.GetReqID(r.Context()),
		},
	}
	for k := range r.Header {
		request.Headers[k] = r.Header.Get(k)
	}
	for k := range r.URL.Query() {
		request.QueryStringParameters[k] = r.URL.Query().Get(k)
	}

	resp, err := h.Handle(r.Context(), request)
	if err != nil {
		writeProxyResponse(w, errorResponse(http.StatusInternalServerError, models.ErrCodeInternal, ""))
		return
	}
	writeProxyResponse(w, resp)
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
