package lib

import (
	"github.com/libsv/go-bk/bec"
	"github.com/libsv/go-bk/wif"
	"github.com/libsv/go-bt/v2/bscript"
	"github.com/libsv/go-bt/v2/unlocker"
)

// Wallet wraps the single signing key a deployment runs under. The key and
// its carriers are exclusive per process: concurrent deployments against
// the same key risk double-spend.
type Wallet struct {
	priv    *bec.PrivateKey
	address string
	script  *bscript.Script
}

func NewWallet(wifStr string) (*Wallet, error) {
	decoded, err := wif.DecodeWIF(wifStr)
	if err != nil {
		return nil, err
	}
	addr, err := bscript.NewAddressFromPublicKey(decoded.PrivKey.PubKey(), true)
	if err != nil {
		return nil, err
	}
	script, err := bscript.NewP2PKHFromAddress(addr.AddressString)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		priv:    decoded.PrivKey,
		address: addr.AddressString,
		script:  script,
	}, nil
}

// Address is the funding address the key controls.
func (w *Wallet) Address() string {
	return w.address
}

// LockingScript is the P2PKH script paying the wallet.
func (w *Wallet) LockingScript() *bscript.Script {
	return w.script
}

func (w *Wallet) LockingScriptHex() string {
	return w.script.String()
}

// Unlocker signs inputs spending the wallet's outputs.
func (w *Wallet) Unlocker() *unlocker.Getter {
	return &unlocker.Getter{PrivateKey: w.priv}
}
