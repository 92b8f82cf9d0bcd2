// Command walletctl is a thin command-line front end over the wallet core,
// for manual exercise of the public API. It owns no persistent keystore of
// its own: the seed phrase is read from a file (or generated into one) and
// the Database is in-memory only, so no transaction state survives past
// one run.
//
// Grounded on pktwallet/cmd/wallettool's flag-parsing and command-dispatch
// shape (flags.Parse into a struct, `ops` map of subcommand to handler,
// `mainInt() int` returning the process exit code).
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	flags "github.com/jessevdk/go-flags"
	"github.com/tyler-smith/go-bip39"

	"github.com/elastos-sidechain/spvwallet/addr"
	"github.com/elastos-sidechain/spvwallet/did"
	"github.com/elastos-sidechain/spvwallet/internal/er"
	"github.com/elastos-sidechain/spvwallet/keys"
	"github.com/elastos-sidechain/spvwallet/money"
	"github.com/elastos-sidechain/spvwallet/store"
	"github.com/elastos-sidechain/spvwallet/txbuilder"
	"github.com/elastos-sidechain/spvwallet/txtypes"
	"github.com/elastos-sidechain/spvwallet/wallet"
)

const defaultNet = "spvwallet"

var homedir, _ = os.UserHomeDir()

var opts = struct {
	SeedFile string `long:"seed-file" description:"Path to the wallet's mnemonic seed phrase"`
	Password string `long:"password" description:"BIP39 passphrase combined with the seed phrase when deriving the master key"`
}{
	SeedFile: filepath.Join(homedir, "."+defaultNet, "seed.txt"),
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	args, errr := flags.Parse(&opts)
	if errr != nil {
		return 1
	}
	if len(args) < 1 || ops[args[0]] == nil {
		printUsage()
		return 1
	}

	w, err := loadWallet()
	if err != nil {
		fmt.Println("failed to load wallet:", err)
		return 1
	}

	if err := ops[args[0]](w, args[1:]); err != nil {
		fmt.Println(err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("Usage: walletctl [--seed-file <path>] COMMAND [args...]")
	fmt.Println("    init                         # create the seed file if it does not exist, and exit")
	fmt.Println("    address                      # print the next receive address")
	fmt.Println("    balance [asset-id-hex]        # print the native (or given asset's) balance")
	fmt.Println("    send <address> <amount>       # build and sign a simple send, print the tx hash")
	fmt.Println("    consolidate                  # sweep every UTXO into one fresh output")
	fmt.Println("    did-create <did-id>           # build and sign a DID create transaction, print the tx hash")
	fmt.Println("    balance-info                 # print available/locked balance per known asset")
	fmt.Println("    addresses <start> <count>    # list external addresses [start, start+count)")
}

var ops = map[string]func(w *wallet.Wallet, args []string) error{
	"init":         cmdInit,
	"address":      cmdAddress,
	"balance":      cmdBalance,
	"send":         cmdSend,
	"consolidate":  cmdConsolidate,
	"did-create":   cmdDIDCreate,
	"balance-info": cmdBalanceInfo,
	"addresses":    cmdAddresses,
}

// loadWallet reads the mnemonic seed file, creating it first if it does not
// exist, and constructs an ephemeral Wallet Core over it.
func loadWallet() (*wallet.Wallet, er.R) {
	mnemonic, err := readOrCreateSeedFile(opts.SeedFile)
	if err != nil {
		return nil, err
	}
	seed, mErr := bip39.NewSeedWithErrorChecking(mnemonic, opts.Password)
	if mErr != nil {
		return nil, er.E(mErr)
	}
	master, hErr := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if hErr != nil {
		return nil, er.E(hErr)
	}
	provider, pErr := keys.NewHDProvider(master, func([]byte) er.R { return nil })
	if pErr != nil {
		return nil, pErr
	}
	return wallet.New(defaultNet, provider, store.NewMemDatabase(), "native", 8)
}

// cmdInit has nothing left to do: loadWallet has already read the seed file
// or created it.
func cmdInit(_ *wallet.Wallet, _ []string) error { return nil }

func readOrCreateSeedFile(path string) (string, er.R) {
	if data, rErr := os.ReadFile(path); rErr == nil {
		return string(data), nil
	}
	entropy, eErr := bip39.NewEntropy(256)
	if eErr != nil {
		return "", er.E(eErr)
	}
	mnemonic, mErr := bip39.NewMnemonic(entropy)
	if mErr != nil {
		return "", er.E(mErr)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", er.E(err)
	}
	if err := os.WriteFile(path, []byte(mnemonic), 0600); err != nil {
		return "", er.E(err)
	}
	fmt.Println("generated new seed phrase at", path)
	return mnemonic, nil
}

func cmdAddress(w *wallet.Wallet, _ []string) error {
	a, err := w.ReceiveAddress()
	if err != nil {
		return err
	}
	fmt.Println(a.String())
	return nil
}

func cmdBalance(w *wallet.Wallet, args []string) error {
	assetID := txtypes.NativeAssetId
	if len(args) == 1 {
		raw, err := hex.DecodeString(args[0])
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("asset id must be 32 bytes hex")
		}
		copy(assetID[:], raw)
	}
	fmt.Println(w.Balance(assetID).String())
	return nil
}

func cmdSend(w *wallet.Wallet, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: send <address> <amount>")
	}
	dest, aErr := addr.Parse(args[0])
	if aErr != nil {
		return aErr
	}
	sats, sErr := strconv.ParseInt(args[1], 10, 64)
	if sErr != nil {
		return sErr
	}
	amt, mErr := money.NewAmount(sats)
	if mErr != nil {
		return mErr
	}

	tx, err := w.CreateTransaction(txtypes.NativeAssetId, txbuilder.Request{
		Type:    txtypes.TypeNormal,
		Payload: txtypes.PayloadNormal{},
		Outputs: []txbuilder.OutputRequest{{Address: dest, Amount: amt}},
	})
	if err != nil {
		return err
	}
	if err := w.SignTransaction(txtypes.NativeAssetId, tx, nil); err != nil {
		return err
	}
	h := tx.Hash()
	fmt.Println(hex.EncodeToString(h[:]))
	return nil
}

func cmdConsolidate(w *wallet.Wallet, _ []string) error {
	tx, err := w.Consolidate("", txtypes.NativeAssetId)
	if err != nil {
		return err
	}
	if err := w.SignTransaction(txtypes.NativeAssetId, tx, nil); err != nil {
		return err
	}
	h := tx.Hash()
	fmt.Println(hex.EncodeToString(h[:]))
	return nil
}

func cmdBalanceInfo(w *wallet.Wallet, _ []string) error {
	for _, b := range w.BalanceInfo() {
		fmt.Printf("%s available=%s locked=%s\n", hex.EncodeToString(b.AssetID[:]), b.Available.String(), b.Locked.String())
	}
	return nil
}

func cmdAddresses(w *wallet.Wallet, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: addresses <start> <count>")
	}
	start, sErr := strconv.ParseUint(args[0], 10, 32)
	if sErr != nil {
		return sErr
	}
	count, cErr := strconv.Atoi(args[1])
	if cErr != nil {
		return cErr
	}
	addrs, err := w.AllAddresses(uint32(start), count, false)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		fmt.Println(a.String())
	}
	return nil
}

func cmdDIDCreate(w *wallet.Wallet, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: did-create <did-id>")
	}
	tx, err := w.CreateDIDTransaction(did.Descriptor{
		ID:        args[0],
		Operation: did.OperationCreate,
		Expires:   "2035-01-01T00:00:00Z",
	}, "", nil)
	if err != nil {
		return err
	}
	if err := w.SignTransaction(txtypes.NativeAssetId, tx, nil); err != nil {
		return err
	}
	h := tx.Hash()
	fmt.Println(hex.EncodeToString(h[:]))
	return nil
}
