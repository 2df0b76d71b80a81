package main

import (
	"testing"
	"time"

	"github.com/itchyny/gojq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natspkg "github.com/chainvest/chainvest/service/nats"
)

func compileFilters(t *testing.T, filters ...string) []*gojq.Code {
	t.Helper()
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		require.NoError(t, err)
		compiled[i], err = gojq.Compile(query)
		require.NoError(t, err)
	}
	return compiled
}

func sampleEvent() natspkg.DepositEvent {
	return natspkg.DepositEvent{
		TxID:        "tx1",
		Address:     "tb1qtest",
		Network:     "testnet",
		AmountSats:  5000,
		AmountBTC:   "0.00005000",
		CreditedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		PublishedAt: time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
	}
}

func TestBuildDepositMatcher_TxID(t *testing.T) {
	matcher := buildDepositMatcher("tx1", 0, nil)
	assert.True(t, matcher(sampleEvent()))

	other := sampleEvent()
	other.TxID = "tx2"
	assert.False(t, matcher(other))
}

func TestBuildDepositMatcher_Amount(t *testing.T) {
	matcher := buildDepositMatcher("", 5000, nil)
	assert.True(t, matcher(sampleEvent()))

	small := sampleEvent()
	small.AmountSats = 100
	assert.False(t, matcher(small))
}

func TestBuildDepositMatcher_JQFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{
			name:    "amount threshold matches",
			filters: []string{".amountSats >= 1000"},
			want:    true,
		},
		{
			name:    "amount threshold fails",
			filters: []string{".amountSats > 10000"},
			want:    false,
		},
		{
			name:    "network equality",
			filters: []string{`.network == "testnet"`},
			want:    true,
		},
		{
			name:    "all filters must match",
			filters: []string{".amountSats >= 1000", `.network == "mainnet"`},
			want:    false,
		},
		{
			name:    "field selection is truthy",
			filters: []string{".txid"},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := buildDepositMatcher("", 0, compileFilters(t, tt.filters...))
			assert.Equal(t, tt.want, matcher(sampleEvent()))
		})
	}
}

func TestBuildDepositMatcher_CombinedFilters(t *testing.T) {
	matcher := buildDepositMatcher("tx1", 5000, compileFilters(t, ".amountSats >= 1000"))
	assert.True(t, matcher(sampleEvent()))

	wrongAmount := sampleEvent()
	wrongAmount.AmountSats = 500
	assert.False(t, matcher(wrongAmount))
}

func TestIsTruthy(t *testing.T) {
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy("non-empty"))
	assert.True(t, isTruthy(0)) // jq treats 0 as truthy
	assert.False(t, isTruthy(false))
	assert.False(t, isTruthy(nil))
}
