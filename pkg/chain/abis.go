package chain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Built-in ABI names.
const (
	ABIERC20       = "erc20"
	ABIReferral    = "referral"
	ABIRouter      = "router"
	ABIBatchRouter = "batchrouter"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

const referralABI = `[
	{"type":"function","name":"bindReferrer","stateMutability":"nonpayable","inputs":[{"name":"referrer","type":"address"}],"outputs":[]},
	{"type":"function","name":"claimReward","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"getReferrer","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getInviteCount","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"rewardClaimed","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"totalRewardsEarned","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalCommissionsEarned","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getInvitees","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"wallet","type":"address"},{"name":"bindTime","type":"uint256"}]}]}
]`

const routerABI = `[
	{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const batchRouterABI = `[
	{"type":"function","name":"executeBatch","stateMutability":"payable","inputs":[{"name":"targets","type":"address[]"},{"name":"values","type":"uint256[]"},{"name":"datas","type":"bytes[]"}],"outputs":[]}
]`

// ABIRegistry holds the built-in contract ABIs plus any user-uploaded
// ones persisted under the workspace.
type ABIRegistry struct {
	mu           sync.RWMutex
	workspaceDir string
	abis         map[string]*abi.ABI
}

// NewABIRegistry creates a registry with the built-in ABIs and loads any
// previously uploaded ABIs from workspaceDir/abis.
func NewABIRegistry(workspaceDir string) (*ABIRegistry, error) {
	abisDir := filepath.Join(workspaceDir, "abis")
	if err := os.MkdirAll(abisDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ABIs directory: %w", err)
	}

	r := &ABIRegistry{
		workspaceDir: workspaceDir,
		abis:         make(map[string]*abi.ABI),
	}

	for name, raw := range map[string]string{
		ABIERC20:       erc20ABI,
		ABIReferral:    referralABI,
		ABIRouter:      routerABI,
		ABIBatchRouter: batchRouterABI,
	} {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid built-in ABI %s: %w", name, err)
		}
		r.abis[name] = &parsed
	}

	if err := r.loadUploaded(); err != nil {
		return nil, fmt.Errorf("failed to load ABIs: %w", err)
	}

	return r, nil
}

// Get returns a parsed ABI by name.
func (r *ABIRegistry) Get(name string) (*abi.ABI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parsed, ok := r.abis[name]
	if !ok {
		return nil, fmt.Errorf("ABI not found: %s", name)
	}
	return parsed, nil
}

// Upload registers a new ABI and persists it to the workspace.
func (r *ABIRegistry) Upload(name, abiJSON string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return fmt.Errorf("invalid ABI JSON: %w", err)
	}

	abiFile := filepath.Join(r.workspaceDir, "abis", fmt.Sprintf("%s.json", name))
	if err := os.WriteFile(abiFile, []byte(abiJSON), 0o644); err != nil {
		return fmt.Errorf("failed to save ABI file: %w", err)
	}

	r.abis[name] = &parsed
	return nil
}

// List returns the names of all registered ABIs.
func (r *ABIRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.abis))
	for name := range r.abis {
		names = append(names, name)
	}
	return names
}

func (r *ABIRegistry) loadUploaded() error {
	abisDir := filepath.Join(r.workspaceDir, "abis")
	entries, err := os.ReadDir(abisDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(abisDir, entry.Name()))
		if err != nil {
			return err
		}

		parsed, err := abi.JSON(strings.NewReader(string(data)))
		if err != nil {
			// Skip unparseable files rather than refusing to start.
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		r.abis[name] = &parsed
	}

	return nil
}
