package tollwallet

import (
	"strings"
	"testing"

	"github.com/elnosh/gonuts/cashu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trustedMint   = "https://mint.example.com"
	untrustedMint = "https://rogue.example.com"
)

// fabricatedToken builds a syntactically valid token without a live mint.
// Its proofs are unspendable, which is fine for parsing and policy tests.
func fabricatedToken(t *testing.T, mint string) cashu.Token {
	t.Helper()
	proofs := cashu.Proofs{
		{
			Amount: 16,
			Id:     "009a1f293253e41e",
			Secret: "d5d6e9e7c7b3a5e1",
			C:      "02bc9097997d81afb2cc7346b5e4345a9346bd2a506eb7958598a72f0cf85163ea",
		},
		{
			Amount: 5,
			Id:     "009a1f293253e41e",
			Secret: "a1b2c3d4e5f60718",
			C:      "0359bc9097997d81afb2cc7346b5e4345a9346bd2a506eb7958598a72f0cf85163",
		},
	}
	token, err := cashu.NewTokenV4(proofs, mint, cashu.Sat, false)
	require.NoError(t, err)
	return token
}

func TestNewRequiresAtLeastOneMint(t *testing.T) {
	_, err := New(t.TempDir(), nil, false)
	assert.Error(t, err)

	_, err = New(t.TempDir(), []string{}, true)
	assert.Error(t, err)
}

func TestReceiveRejectsUntrustedMintWithoutSwap(t *testing.T) {
	w := &TollWallet{acceptedMints: []string{trustedMint}}

	_, err := w.Receive(fabricatedToken(t, untrustedMint))
	require.Error(t, err)
	assert.Contains(t, err.Error(), untrustedMint)
}

func TestSwapForMint(t *testing.T) {
	w := &TollWallet{acceptedMints: []string{trustedMint}}

	swap, err := w.swapForMint(trustedMint)
	require.NoError(t, err)
	assert.False(t, swap, "trusted mint must be credited directly")

	_, err = w.swapForMint(untrustedMint)
	assert.Error(t, err)

	w.allowAndSwapUntrustedMints = true
	swap, err = w.swapForMint(untrustedMint)
	require.NoError(t, err)
	assert.True(t, swap, "untrusted mint must be swapped when allowed")
}

func TestParseTokenRoundTrip(t *testing.T) {
	w := &TollWallet{}
	original := fabricatedToken(t, trustedMint)

	serialized, err := original.Serialize()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(serialized, "cashu"))

	parsed, err := w.ParseToken(serialized)
	require.NoError(t, err)
	assert.Equal(t, trustedMint, parsed.Mint())
	assert.Equal(t, uint64(21), parsed.Amount())
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	w := &TollWallet{}
	_, err := w.ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	mints := []string{trustedMint, "https://other.example.com"}
	assert.True(t, contains(mints, trustedMint))
	assert.False(t, contains(mints, "https://unknown.example.com"))
	assert.False(t, contains(nil, "anything"))
}
