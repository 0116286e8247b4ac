package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAndBase(t *testing.T) {
	assert.Equal(t, "ETH-PERP", Normalize(" eth–perp "))
	assert.Equal(t, "ETH", Base("ETH-PERP"))
	assert.Equal(t, "ETH", Base("eth"))
	assert.Equal(t, "BTC-PERP", Perp("btc"))
	assert.True(t, IsPerp("sol-perp"))
	assert.False(t, IsPerp("SOL"))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("ETH", "ETH-PERP"))
	assert.True(t, Matches("ETH-PERP", "eth-perp"))
	assert.False(t, Matches("BTC", "ETH-PERP"))
	assert.False(t, Matches("", "ETH-PERP"))
}
