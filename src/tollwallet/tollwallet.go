// Package tollwallet wraps a Cashu wallet for paying TollGates. Payments are
// bearer tokens minted from the wallet's balance; once a token string leaves
// this package it is spendable by whoever holds it.
package tollwallet

import (
	"context"
	"fmt"

	"github.com/elnosh/gonuts/cashu"
	"github.com/elnosh/gonuts/wallet"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("module", "tollwallet")

// TollWallet represents a Cashu wallet that can receive, swap, and send tokens.
type TollWallet struct {
	wallet                     *wallet.Wallet
	acceptedMints              []string
	allowAndSwapUntrustedMints bool
}

// New creates a new Cashu wallet instance backed by the database at walletPath.
func New(walletPath string, acceptedMints []string, allowAndSwapUntrustedMints bool) (*TollWallet, error) {
	if len(acceptedMints) < 1 {
		return nil, fmt.Errorf("no mints provided, wallet requires at least 1 accepted mint")
	}

	config := wallet.Config{WalletPath: walletPath, CurrentMintURL: acceptedMints[0]}
	cashuWallet, err := wallet.LoadWallet(config)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	return &TollWallet{
		wallet:                     cashuWallet,
		acceptedMints:              acceptedMints,
		allowAndSwapUntrustedMints: allowAndSwapUntrustedMints,
	}, nil
}

// Receive redeems a token into the wallet. Tokens from untrusted mints are
// swapped into the default mint when the operator allows it, rejected
// otherwise.
func (w *TollWallet) Receive(token cashu.Token) (uint64, error) {
	swapToTrusted, err := w.swapForMint(token.Mint())
	if err != nil {
		return 0, err
	}
	return w.wallet.Receive(token, swapToTrusted)
}

// swapForMint decides whether a token from mint must be swapped into a
// trusted mint before it is credited.
func (w *TollWallet) swapForMint(mint string) (bool, error) {
	if contains(w.acceptedMints, mint) {
		return false, nil
	}
	if !w.allowAndSwapUntrustedMints {
		return false, fmt.Errorf("token rejected: mint %s is not accepted and swapping of untrusted mints is disabled", mint)
	}
	return true, nil
}

// Send withdraws amount from the given mint and packs the proofs into a token.
func (w *TollWallet) Send(amount uint64, mintURL string, includeFees bool) (cashu.Token, error) {
	logger.WithFields(logrus.Fields{
		"amount":       amount,
		"mint":         mintURL,
		"include_fees": includeFees,
	}).Debug("Sending from wallet")

	proofs, err := w.wallet.Send(amount, mintURL, includeFees)
	if err != nil {
		return nil, fmt.Errorf("failed to send %d from %s: %w", amount, mintURL, err)
	}
	if len(proofs) == 0 {
		return nil, fmt.Errorf("wallet returned no proofs for %d sats from %s", amount, mintURL)
	}

	token, err := cashu.NewTokenV4(proofs, mintURL, cashu.Sat, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return token, nil
}

// AcquireToken withdraws amount from mintURL and returns the serialized token
// ready to be embedded in a purchase event. The spend is irreversible: if the
// context is already cancelled nothing is withdrawn.
func (w *TollWallet) AcquireToken(ctx context.Context, amount uint64, mintURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := w.Send(amount, mintURL, true)
	if err != nil {
		return "", err
	}
	serialized, err := token.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	return serialized, nil
}

// ParseToken decodes a serialized Cashu token.
func (w *TollWallet) ParseToken(token string) (cashu.Token, error) {
	return cashu.DecodeToken(token)
}

// GetBalance returns the current balance of the wallet across all mints.
func (w *TollWallet) GetBalance() uint64 {
	return w.wallet.GetBalance()
}

// GetBalanceByMint returns the balance held at a specific mint.
func (w *TollWallet) GetBalanceByMint(mintURL string) uint64 {
	if balance, exists := w.wallet.GetBalanceByMints()[mintURL]; exists {
		return balance
	}
	return 0
}

func contains(slice []string, str string) bool {
	for _, item := range slice {
		if item == str {
			return true
		}
	}
	return false
}
