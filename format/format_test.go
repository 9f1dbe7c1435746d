package format

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestUSD(t *testing.T) {
	require.Equal(t, "$1,234.50", USD(decimal.RequireFromString("1234.5")))
	require.Equal(t, "$0.00", USD(decimal.Zero))
	require.Equal(t, "$10,240.00", USD(decimal.RequireFromString("10240.0000")))
	require.Equal(t, "-$3.10", USD(decimal.RequireFromString("-3.1")))
	require.Equal(t, "$0.13", USD(decimal.RequireFromString("0.1250")))
}

func TestCashFlow(t *testing.T) {
	require.Equal(t, "+$240.00", CashFlow(decimal.NewFromInt(240)))
	require.Equal(t, "-$500.00", CashFlow(decimal.NewFromInt(-500)))
}

func TestPercent(t *testing.T) {
	require.Equal(t, "+1.23%", Percent(decimal.RequireFromString("0.0123")))
	require.Equal(t, "-0.66%", Percent(decimal.RequireFromString("-0.006553")))
}

func TestShares(t *testing.T) {
	require.Equal(t, "1 share", Shares(1))
	require.Equal(t, "6 shares", Shares(6))
}
