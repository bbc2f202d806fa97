// Command generate_key prints a fresh Nostr keypair in hex and nsec form,
// handy for provisioning test gateways and inspecting session keys.
package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/nbd-wtf/go-nostr"
)

func main() {
	privateKeyHex := nostr.GeneratePrivateKey()
	publicKeyHex, err := nostr.GetPublicKey(privateKeyHex)
	if err != nil {
		panic(err)
	}
	fmt.Println("Hex Private Key:", privateKeyHex)
	fmt.Println("Hex Public Key:", publicKeyHex)

	privateKeyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		panic(err)
	}

	fiveBitGroups, err := bech32.ConvertBits(privateKeyBytes, 8, 5, true)
	if err != nil {
		panic(err)
	}

	nsec, err := bech32.Encode("nsec", fiveBitGroups)
	if err != nil {
		panic(err)
	}
	fmt.Println("Bech32 Encoded Private Key (nsec):", nsec)
}
