package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRequest struct {
	Symbol string `query:"symbol" validate:"required,max=5"`
	Limit  int    `query:"limit" default:"10"`
}

type testHandler struct{}

func (testHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		req := &pingRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("nothing here").WithParam("id", 7))
	})
	e.GET("/boom", func(echo.Context) error {
		panic("kaboom")
	})
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServerRoutesAndEnvelope(t *testing.T) {
	s := NewServer([]Handler{testHandler{}, nil}, WithMetrics("/metrics", prometheus.NewRegistry()))

	rec := serve(s, "/ping?symbol=AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	var ok struct {
		Status int         `json:"status"`
		Data   pingRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, http.StatusOK, ok.Status)
	assert.Equal(t, "AAPL", ok.Data.Symbol)
	assert.Equal(t, 10, ok.Data.Limit)

	rec = serve(s, "/ping?symbol=TOOLONG")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var bad struct {
		Data []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	require.Len(t, bad.Data, 1)
	assert.Equal(t, "ERR_MAX", bad.Data[0].Code)
	assert.Equal(t, "symbol", bad.Data[0].Field)

	rec = serve(s, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestServerRecoversPanics(t *testing.T) {
	s := NewServer([]Handler{testHandler{}}, WithMetrics("", prometheus.NewRegistry()))
	rec := serve(s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerExposesMetrics(t *testing.T) {
	s := NewServer([]Handler{testHandler{}}, WithMetrics("/metrics", prometheus.NewRegistry()))
	serve(s, "/ping?symbol=AAPL")

	rec := serve(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tickstock_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}
