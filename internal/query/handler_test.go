package query

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/internal/storage/mock"
)

func mustParse(t *testing.T, rawQuery string) Params {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	p, appErr := ParseParams(values, testLimits)
	require.Nil(t, appErr)
	return p
}

func setupRouter(store storage.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc := NewService(store, logger.NopLogger(), testLimits)
	NewHandler(svc, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandler_List(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store,
		msg("m1", "+1415551234", "2025-01-15T10:00:00Z", "Hello"),
		msg("m2", "+1415551234", "2025-01-15T11:00:00Z", "Bye"),
	)
	noText := msg("m3", "+1999", "2025-01-15T12:00:00Z", "")
	noText.Text = nil
	seed(t, store, noText)

	router := setupRouter(store)

	w := get(router, "/messages?from=+1415551234&limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data   []map[string]interface{} `json:"data"`
		Total  int64                    `json:"total"`
		Limit  int                      `json:"limit"`
		Offset int                      `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 1, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, map[string]interface{}{
		"message_id": "m1",
		"from":       "+1415551234",
		"to":         "+14155550100",
		"ts":         "2025-01-15T10:00:00Z",
		"text":       "Hello",
	}, resp.Data[0])

	w = get(router, "/messages?from=%2B1999")
	require.Equal(t, http.StatusOK, w.Code)
	resp.Data = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Contains(t, resp.Data[0], "text")
	assert.Nil(t, resp.Data[0]["text"])
}

func TestHandler_List_InvalidParams(t *testing.T) {
	router := setupRouter(storage.NewMemoryStore())

	w := get(router, "/messages?limit=0&since=2025-01-15")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp["error_code"])
	details := resp["details"].(map[string]interface{})
	assert.Len(t, details["fields"], 2)
}

func TestHandler_List_StoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "backend failure", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
		{name: "breaker open", err: storage.ErrCircuitOpen, status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := mock.NewMockStore(ctrl)
			store.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, int64(0), tt.err).Times(1)

			w := get(setupRouter(store), "/messages")
			assert.Equal(t, tt.status, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp["error_code"])
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}
