package wallet

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sipeed/clawvault/pkg/chain"
	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/executor"
	"github.com/sipeed/clawvault/pkg/keys"
	"github.com/sipeed/clawvault/pkg/store"
)

const testPhrase = "witch collapse practice feed shame open despair creek road again ice least"
const testAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"

type fakeRunner struct {
	executed []executor.Operation
}

func (f *fakeRunner) Execute(ctx context.Context, op executor.Operation, signer executor.Signer) (*executor.Result, error) {
	f.executed = append(f.executed, op)
	return &executor.Result{State: executor.StateConfirmed}, nil
}

type fakeQuotes struct {
	out            *big.Int
	allowance      *big.Int
	allowanceCalls int
}

func (f *fakeQuotes) CallView(ctx context.Context, chainID int64, contract common.Address, abiName, method string, args ...interface{}) ([]interface{}, error) {
	if method != "getAmountsOut" {
		return nil, errors.New("unexpected view call: " + method)
	}
	amountIn := args[0].(*big.Int)
	return []interface{}{[]*big.Int{amountIn, f.out}}, nil
}

func (f *fakeQuotes) Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error) {
	f.allowanceCalls++
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return f.allowance, nil
}

func testService(t *testing.T, runner Runner, reader ChainReader) (*Service, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()

	st, err := store.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	abis, err := chain.NewABIRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewABIRegistry failed: %v", err)
	}
	return NewService(cfg, st, reader, runner, abis), cfg
}

func TestCreateAndBackup(t *testing.T) {
	svc, _ := testService(t, &fakeRunner{}, nil)

	w, phrase, err := svc.Create("primary", "1234")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(strings.Fields(phrase)) != 12 {
		t.Errorf("expected 12-word phrase, got %q", phrase)
	}
	if !common.IsHexAddress(w.Address) {
		t.Errorf("invalid derived address: %s", w.Address)
	}

	// The address must be re-derivable from the phrase.
	derived, err := keys.Derive(phrase, keys.DefaultPath)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if derived.Address.Hex() != w.Address {
		t.Errorf("address mismatch: wallet %s, derived %s", w.Address, derived.Address.Hex())
	}
	derived.Zero()

	got, err := svc.Backup(w.ID, "1234")
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if got != keys.Normalize(phrase) {
		t.Errorf("backup phrase mismatch")
	}
}

func TestBackupWrongPIN(t *testing.T) {
	svc, _ := testService(t, &fakeRunner{}, nil)

	w, _, err := svc.Create("primary", "1234")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Backup(w.ID, "4321"); !errors.Is(err, ErrWrongPIN) {
		t.Errorf("err = %v, want ErrWrongPIN", err)
	}
	if _, err := svc.Backup(w.ID, "12"); !errors.Is(err, ErrInvalidPIN) {
		t.Errorf("err = %v, want ErrInvalidPIN", err)
	}
	if _, err := svc.Backup("missing", "1234"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("err = %v, want ErrWalletNotFound", err)
	}
}

func TestImportDerivesKnownAddress(t *testing.T) {
	svc, _ := testService(t, &fakeRunner{}, nil)

	w, err := svc.Import("imported", testPhrase, "1234")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if w.Address != testAddress {
		t.Errorf("address = %s, want %s", w.Address, testAddress)
	}
}

func TestImportInvalidPhrase(t *testing.T) {
	svc, _ := testService(t, &fakeRunner{}, nil)

	_, err := svc.Import("bad", "not a valid phrase at all", "1234")
	if !errors.Is(err, keys.ErrInvalidSecretPhrase) {
		t.Errorf("err = %v, want ErrInvalidSecretPhrase", err)
	}
}

func TestFirstWalletIsSelected(t *testing.T) {
	svc, _ := testService(t, &fakeRunner{}, nil)

	w, _, err := svc.Create("first", "1234")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active, chainCfg, err := svc.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.ID != w.ID {
		t.Errorf("active wallet = %s, want %s", active.ID, w.ID)
	}
	if chainCfg.ChainID != 7441 {
		t.Errorf("active chain = %d, want 7441", chainCfg.ChainID)
	}

	// A second wallet does not steal the selection.
	if _, _, err := svc.Create("second", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	active, _, err = svc.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.ID != w.ID {
		t.Errorf("selection moved to %s unexpectedly", active.ID)
	}
}

func TestCreateWithNoChainsConfigured(t *testing.T) {
	svc, cfg := testService(t, &fakeRunner{}, nil)
	cfg.Chains = nil

	w, _, err := svc.Create("solo", "1234")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !common.IsHexAddress(w.Address) {
		t.Errorf("invalid derived address: %s", w.Address)
	}

	// Nothing to auto-select without a chain.
	if _, _, err := svc.Active(); !errors.Is(err, ErrNoWalletSelected) {
		t.Errorf("err = %v, want ErrNoWalletSelected", err)
	}
}

func TestSendNative(t *testing.T) {
	runner := &fakeRunner{}
	svc, _ := testService(t, runner, nil)

	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	res, err := svc.Send(context.Background(), "1234", "CLAW", "0x00000000000000000000000000000000000000aa", "1.5")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.State != executor.StateConfirmed {
		t.Errorf("state = %s, want confirmed", res.State)
	}
	if len(runner.executed) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(runner.executed))
	}

	op := runner.executed[0]
	if op.Asset != "CLAW" || op.Amount != "1.5" {
		t.Errorf("op = %+v", op)
	}
	if len(op.Calls) != 1 || op.Calls[0].Value.String() != "1500000000000000000" {
		t.Errorf("native transfer call mismatch: %+v", op.Calls)
	}
}

func TestSendUnknownAsset(t *testing.T) {
	runner := &fakeRunner{}
	svc, _ := testService(t, runner, nil)

	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	_, err := svc.Send(context.Background(), "1234", "DOGE", "0x00000000000000000000000000000000000000aa", "1")
	if !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("err = %v, want ErrUnknownAsset", err)
	}
	if len(runner.executed) != 0 {
		t.Error("unknown asset must not execute")
	}
}

func TestSendWrongPINDoesNotExecute(t *testing.T) {
	runner := &fakeRunner{}
	svc, _ := testService(t, runner, nil)

	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	_, err := svc.Send(context.Background(), "9999", "CLAW", "0x00000000000000000000000000000000000000aa", "1")
	if !errors.Is(err, ErrWrongPIN) {
		t.Errorf("err = %v, want ErrWrongPIN", err)
	}
	if len(runner.executed) != 0 {
		t.Error("wrong PIN must not execute")
	}
}

func TestSendTokenBatchesApproveAndTransfer(t *testing.T) {
	runner := &fakeRunner{}
	quotes := &fakeQuotes{}
	svc, cfg := testService(t, runner, quotes)

	cfg.Chains[0].BatchRouter = "0x00000000000000000000000000000000000000cc"
	cfg.Chains[0].Tokens = []config.Token{
		{Symbol: "USDT", Name: "Tether", Address: "0x00000000000000000000000000000000000000a1", Decimals: 6},
	}

	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if _, err := svc.Send(context.Background(), "1234", "USDT", "0x00000000000000000000000000000000000000aa", "1"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	op := runner.executed[0]
	if len(op.Calls) != 2 {
		t.Fatalf("token transfer must batch approve + transfer, got %d calls", len(op.Calls))
	}
	tokenAddr := common.HexToAddress(cfg.Chains[0].Tokens[0].Address)
	if op.Calls[0].To != tokenAddr || op.Calls[1].To != tokenAddr {
		t.Errorf("both calls must target the token contract: %+v", op.Calls)
	}
	if !bytes.Equal(op.Calls[0].Data[:4], []byte{0x09, 0x5e, 0xa7, 0xb3}) {
		t.Error("first call must be approve")
	}
	if !bytes.Equal(op.Calls[1].Data[:4], []byte{0xa9, 0x05, 0x9c, 0xbb}) {
		t.Error("second call must be transfer")
	}
	if quotes.allowanceCalls != 1 {
		t.Errorf("allowance lookups = %d, want 1", quotes.allowanceCalls)
	}
}

func TestSendTokenSkipsApproveWhenAllowanceCovers(t *testing.T) {
	runner := &fakeRunner{}
	quotes := &fakeQuotes{allowance: big.NewInt(2_000_000)}
	svc, cfg := testService(t, runner, quotes)

	cfg.Chains[0].BatchRouter = "0x00000000000000000000000000000000000000cc"
	cfg.Chains[0].Tokens = []config.Token{
		{Symbol: "USDT", Name: "Tether", Address: "0x00000000000000000000000000000000000000a1", Decimals: 6},
	}

	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if _, err := svc.Send(context.Background(), "1234", "USDT", "0x00000000000000000000000000000000000000aa", "1"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	op := runner.executed[0]
	if len(op.Calls) != 1 {
		t.Fatalf("covered allowance must skip the approve, got %d calls", len(op.Calls))
	}
	if !bytes.Equal(op.Calls[0].Data[:4], []byte{0xa9, 0x05, 0x9c, 0xbb}) {
		t.Error("remaining call must be the transfer")
	}
}

func TestSwapBatchesApproveAndSwap(t *testing.T) {
	runner := &fakeRunner{}
	quotes := &fakeQuotes{out: big.NewInt(990_000)}
	svc, cfg := testService(t, runner, quotes)

	cfg.Chains[0].Router = "0x00000000000000000000000000000000000000cc"
	cfg.Chains[0].Tokens = []config.Token{
		{Symbol: "USDT", Name: "Tether", Address: "0x00000000000000000000000000000000000000a1", Decimals: 6},
		{Symbol: "WCLAW", Name: "Wrapped CLAW", Address: "0x00000000000000000000000000000000000000a2", Decimals: 18},
	}

	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	res, err := svc.Swap(context.Background(), "1234", "USDT", "WCLAW", "1")
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if res.State != executor.StateConfirmed {
		t.Errorf("state = %s, want confirmed", res.State)
	}

	op := runner.executed[0]
	if len(op.Calls) != 2 {
		t.Fatalf("swap must batch approve + swap, got %d calls", len(op.Calls))
	}
	// First call approves the router on the input token.
	if op.Calls[0].To.Hex() != common.HexToAddress(cfg.Chains[0].Tokens[0].Address).Hex() {
		t.Errorf("approve target = %s", op.Calls[0].To.Hex())
	}
	if op.Calls[1].To.Hex() != common.HexToAddress(cfg.Chains[0].Router).Hex() {
		t.Errorf("swap target = %s", op.Calls[1].To.Hex())
	}
}

func TestSwapUnknownToken(t *testing.T) {
	svc, _ := testService(t, &fakeRunner{}, &fakeQuotes{out: big.NewInt(1)})
	if _, err := svc.Import("w", testPhrase, "1234"); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	_, err := svc.Swap(context.Background(), "1234", "USDT", "WCLAW", "1")
	if !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("err = %v, want ErrUnknownAsset", err)
	}
}

func TestPhraseVaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.phrase")

	if err := sealPhrase(path, testPhrase, "1234"); err != nil {
		t.Fatalf("sealPhrase failed: %v", err)
	}

	got, err := openPhrase(path, "1234")
	if err != nil {
		t.Fatalf("openPhrase failed: %v", err)
	}
	if got != testPhrase {
		t.Error("phrase round trip mismatch")
	}

	if _, err := openPhrase(path, "0000"); !errors.Is(err, ErrWrongPIN) {
		t.Errorf("err = %v, want ErrWrongPIN", err)
	}
}

func TestGeneratePIN(t *testing.T) {
	for i := 0; i < 32; i++ {
		pin, err := GeneratePIN()
		if err != nil {
			t.Fatalf("GeneratePIN failed: %v", err)
		}
		if err := CheckPIN(pin); err != nil {
			t.Errorf("GeneratePIN produced invalid PIN %q: %v", pin, err)
		}
	}
}

func TestCheckPIN(t *testing.T) {
	for _, pin := range []string{"0000", "1234", "9999"} {
		if err := CheckPIN(pin); err != nil {
			t.Errorf("CheckPIN(%q) = %v, want nil", pin, err)
		}
	}
	for _, pin := range []string{"", "123", "12345", "12a4", "١٢٣٤"} {
		if err := CheckPIN(pin); !errors.Is(err, ErrInvalidPIN) {
			t.Errorf("CheckPIN(%q) = %v, want ErrInvalidPIN", pin, err)
		}
	}
}
