package paymentsvc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"InterShop/internal/payment"
)

func newPaymentsTS(t *testing.T) *httptest.Server {
	t.Helper()

	s := &Server{Balance: decimal.NewFromInt(1000), Log: zap.NewNop()}
	h := NewHandler(s, HTTPDeps{Log: zap.NewNop(), Service: "payments"})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestBalance(t *testing.T) {
	ts := newPaymentsTS(t)

	resp, err := http.Get(ts.URL + "/payments/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got balanceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestPay(t *testing.T) {
	ts := newPaymentsTS(t)

	cases := []struct {
		name      string
		body      string
		status    int
		code      string
		remaining string
	}{
		{name: "whole balance", body: `{"amount":"1000"}`, status: http.StatusOK, remaining: "0"},
		{name: "numeric amount", body: `{"amount":250.25}`, status: http.StatusOK, remaining: "749.75"},
		{name: "zero", body: `{"amount":"0"}`, status: http.StatusOK, remaining: "1000"},
		{name: "over balance", body: `{"amount":"1000.01"}`, status: http.StatusBadRequest, code: payment.CodeInsufficientFunds},
		{name: "negative", body: `{"amount":"-1"}`, status: http.StatusBadRequest, code: payment.CodeInvalidAmount},
		{name: "missing amount", body: `{}`, status: http.StatusBadRequest, code: payment.CodeInvalidAmount},
		{name: "not json", body: `amount=5`, status: http.StatusBadRequest, code: payment.CodeInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, raw := post(t, ts.URL+"/payments/pay", tc.body)
			require.Equal(t, tc.status, status, string(raw))

			if tc.code != "" {
				var ge payment.GatewayError
				require.NoError(t, json.Unmarshal(raw, &ge))
				assert.Equal(t, tc.code, ge.Code)
				assert.NotEmpty(t, ge.Message)
				return
			}

			var pr payResponse
			require.NoError(t, json.Unmarshal(raw, &pr))
			assert.True(t, pr.Success)
			assert.Equal(t, tc.remaining, pr.RemainingBalance.String())
		})
	}
}
