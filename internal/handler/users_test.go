package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemetry-lab/faultline/internal/store"
)

func TestCreateUser_Success(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"ada@example.com","age":36}`, nil)

	require.Equal(t, http.StatusCreated, rec.Code)

	var user store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	require.NotNil(t, user.Age)
	assert.Equal(t, 36, *user.Age)
}

func TestCreateUser_ValidationBeforeFaultDraws(t *testing.T) {
	// rate_limit_errors is on and the low draw would produce a 429, but
	// the invalid email must be rejected first with the real reason.
	h := newTestHandler(t,
		&scriptedSource{draws: []float64{0.01}},
		&scriptedSource{draws: []float64{0.99}})
	_, err := h.Injector().Set(map[string]bool{"rate_limit_errors": true})
	require.NoError(t, err)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"not-an-email"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestCreateUser_DuplicateEmailConflict(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"ada@example.com"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Imposter","email":"ada@example.com"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateUser_InvalidAge(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Old","email":"old@example.com","age":151}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUser_MissingName(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"email":"anon@example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUser_RateLimitDraw(t *testing.T) {
	h := newTestHandler(t,
		&scriptedSource{draws: []float64{0.01}},
		&scriptedSource{draws: []float64{0.99}})
	_, err := h.Injector().Set(map[string]bool{"rate_limit_errors": true})
	require.NoError(t, err)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"ada@example.com"}`, nil)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "error", env["status"])
	assert.Equal(t, "HTTP_429", env["classification"])
}

func TestCreateUser_DatabaseDraw(t *testing.T) {
	h := newTestHandler(t,
		&scriptedSource{draws: []float64{0.01}},
		&scriptedSource{draws: []float64{0.99}})
	_, err := h.Injector().Set(map[string]bool{"database_errors": true})
	require.NoError(t, err)

	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"ada@example.com"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The store must be untouched when the draw short-circuits.
	rec = doJSON(h.ListUsers, http.MethodGet, "/api/users", "", nil)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["total"])
}

func TestListUsers_PaginationValidation(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.ListUsers, http.MethodGet, "/api/users?offset=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(h.ListUsers, http.MethodGet, "/api/users?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(h.ListUsers, http.MethodGet, "/api/users?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUsers_SearchAndCount(t *testing.T) {
	h := quietHandler(t)
	for _, body := range []string{
		`{"name":"Ada Lovelace","email":"ada@example.com"}`,
		`{"name":"Grace Hopper","email":"grace@example.com"}`,
	} {
		rec := doJSON(h.CreateUser, http.MethodPost, "/api/users", body, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(h.ListUsers, http.MethodGet, "/api/users?search=grace", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(2), body["total"])
}

func TestListUsers_ServiceErrorDraw(t *testing.T) {
	h := newTestHandler(t,
		&scriptedSource{draws: []float64{0.01}},
		&scriptedSource{draws: []float64{0.99}})
	_, err := h.Injector().Set(map[string]bool{"service_errors": true})
	require.NoError(t, err)

	rec := doJSON(h.ListUsers, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetUser_InvalidID(t *testing.T) {
	h := quietHandler(t)

	for _, id := range []string{"abc", "0", "-3"} {
		rec := doJSON(h.GetUser, http.MethodGet, "/api/users/"+id, "", map[string]string{"id": id})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "id %q", id)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.GetUser, http.MethodGet, "/api/users/42", "", map[string]string{"id": "42"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUser_Found(t *testing.T) {
	h := quietHandler(t)
	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"ada@example.com"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(h.GetUser, http.MethodGet, "/api/users/1", "", map[string]string{"id": "1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var user store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "Ada", user.Name)
}

func TestDeleteUser_RemovesAndReturns(t *testing.T) {
	h := quietHandler(t)
	rec := doJSON(h.CreateUser, http.MethodPost, "/api/users",
		`{"name":"Ada","email":"ada@example.com"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(h.DeleteUser, http.MethodDelete, "/api/users/1", "", map[string]string{"id": "1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	user := body["user"].(map[string]interface{})
	assert.Equal(t, float64(1), user["id"])

	rec = doJSON(h.GetUser, http.MethodGet, "/api/users/1", "", map[string]string{"id": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUser_NotFound(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.DeleteUser, http.MethodDelete, "/api/users/9", "", map[string]string{"id": "9"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimulateWork_Succeeds(t *testing.T) {
	// Three failure chances miss, then the duration draw of 0.0 picks the
	// 100ms minimum.
	h := newTestHandler(t,
		&scriptedSource{draws: []float64{0.99, 0.99, 0.99, 0.0}},
		&scriptedSource{draws: []float64{0.99}})

	rec := doJSON(h.SimulateWork, http.MethodGet, "/api/simulate-work", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(100), body["processing_time_ms"])
}

func TestSimulateWork_TimeoutDraw(t *testing.T) {
	h := newTestHandler(t,
		&scriptedSource{draws: []float64{0.01}},
		&scriptedSource{draws: []float64{0.99}})

	rec := doJSON(h.SimulateWork, http.MethodGet, "/api/simulate-work", "", nil)
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestTriggerError_DefaultMessage(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.TriggerError, http.MethodPost, "/api/trigger-error/404", "",
		map[string]string{"code": "404"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "Not Found - Resource does not exist", env["message"])
	assert.Equal(t, "HTTP_404", env["classification"])
}

func TestTriggerError_CustomMessageAndRetryAfter(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.TriggerError, http.MethodPost, "/api/trigger-error/429?message=backoff", "",
		map[string]string{"code": "429"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "backoff", env["message"])
}

func TestTriggerError_UnsupportedCode(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.TriggerError, http.MethodPost, "/api/trigger-error/418", "",
		map[string]string{"code": "418"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Contains(t, env["message"], "Unsupported error code: 418")
}

func TestTriggerError_NonInteger(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.TriggerError, http.MethodPost, "/api/trigger-error/abc", "",
		map[string]string{"code": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRootAndPing(t *testing.T) {
	h := quietHandler(t)

	rec := doJSON(h.Root, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "faultline", body["service"])

	rec = doJSON(h.Ping, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}
