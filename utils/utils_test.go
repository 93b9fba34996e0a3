package utils_test

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		expected string
		expErr   bool
	}{
		{"1", 6, "1000000", false},
		{"12.5", 6, "12500000", false},
		{"0.000001", 6, "1", false},
		{"1000", 0, "1000", false},
		{"1.5", 18, "1500000000000000000", false},
		{"0.0000001", 6, "", true},
		{"-1", 6, "", true},
		{"ten", 6, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			amount, err := utils.ParseAmount(tt.amount, tt.decimals)
			if tt.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, amount.String())
		})
	}
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "12.5", utils.FormatAmount(big.NewInt(12_500_000), 6))
	require.Equal(t, "0.000001", utils.FormatAmount(big.NewInt(1), 6))
	require.Equal(t, "996", utils.FormatAmount(big.NewInt(996), 0))
	require.Equal(t, "0", utils.FormatAmount(nil, 6))
}

func TestWaitForCondition(t *testing.T) {
	ctx := context.Background()

	calls := 0
	require.NoError(t, utils.WaitForCondition(ctx, time.Second, time.Millisecond, func() (bool, error) {
		calls++
		return calls == 3, nil
	}))
	require.Equal(t, 3, calls)

	err := utils.WaitForCondition(ctx, 10*time.Millisecond, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	require.ErrorContains(t, err, "failed waiting for condition")

	err = utils.WaitForCondition(ctx, time.Second, time.Millisecond, func() (bool, error) {
		return false, errors.New("boom")
	})
	require.ErrorContains(t, err, "boom")
}

func TestHttpRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			utils.WriteError(w, zap.NewNop(), http.StatusNotFound, errors.New("chain not found: solana"))
			return
		}
		utils.WriteJSON(w, zap.NewNop(), http.StatusOK, map[string]string{"method": r.Method})
	}))
	defer server.Close()

	resp, err := utils.HttpRequest[map[string]string](context.Background(), zap.NewNop(), server.URL+"/ok", http.MethodGet, nil)
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, resp["method"])

	_, err = utils.HttpRequest[map[string]string](context.Background(), zap.NewNop(), server.URL+"/missing", http.MethodGet, nil)
	require.ErrorContains(t, err, "chain not found: solana")
}
