package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	OrdersPlaced.Add(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var vars map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vars))
	for _, name := range []string{
		"options_chain_refreshes", "options_chain_refresh_errors", "options_price_refresh_errors",
		"orders_placed", "order_errors", "ledger_write_errors",
	} {
		assert.Contains(t, vars, name)
	}

	var placed int64
	require.NoError(t, json.Unmarshal(vars["orders_placed"], &placed))
	assert.GreaterOrEqual(t, placed, int64(1))
}

func TestHandlerUnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
