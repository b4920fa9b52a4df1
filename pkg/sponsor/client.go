package sponsor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/sipeed/clawvault/pkg/logger"
)

// Call is one call inside a sponsored operation payload.
type Call struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// Operation is the batch submitted for sponsorship evaluation.
type Operation struct {
	Sender      string `json:"sender"`
	Calls       []Call `json:"calls"`
	GasEstimate uint64 `json:"gasEstimate"`
}

// Decision is the tagged outcome of a sponsorship request. A denial is a
// normal, expected outcome and is never reported as an error.
type Decision struct {
	Granted       bool
	Reason        string
	PaymasterData []byte
	GasLimit      uint64
}

// Envelope is a signed sponsored operation ready for relay submission.
type Envelope struct {
	Sender        string `json:"sender"`
	Calls         []Call `json:"calls"`
	PaymasterData string `json:"paymasterData"`
	GasLimit      uint64 `json:"gasLimit"`
	Signature     string `json:"signature"`
}

// Client talks to the gas sponsor endpoint. The sponsor is untrusted: any
// non-2xx or malformed response is treated as a denial.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a sponsor client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a sponsor endpoint is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

type sponsorRequest struct {
	ChainID   int64     `json:"chainId"`
	Operation Operation `json:"operation"`
}

type sponsorResponse struct {
	PaymasterData string `json:"paymasterData"`
	GasLimit      uint64 `json:"gasLimit"`
	Error         string `json:"error"`
}

func deny(reason string) Decision {
	return Decision{Granted: false, Reason: reason}
}

// RequestSponsorship asks the sponsor to cover the operation's network
// fee. The result is a tagged decision: callers branch on Granted, never
// on an error value.
func (c *Client) RequestSponsorship(ctx context.Context, chainID int64, op Operation) Decision {
	if !c.Configured() {
		return deny("no sponsor endpoint configured")
	}

	payload, err := json.Marshal(sponsorRequest{ChainID: chainID, Operation: op})
	if err != nil {
		return deny(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sponsor", bytes.NewReader(payload))
	if err != nil {
		return deny(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return deny(fmt.Sprintf("sponsor unreachable: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return deny(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := strings.TrimSpace(string(body))
		if reason == "" {
			reason = resp.Status
		}
		logger.InfoCF("sponsor", "Sponsorship denied", map[string]any{
			"chainId": chainID,
			"status":  resp.StatusCode,
			"reason":  reason,
		})
		return deny(reason)
	}

	var parsed sponsorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return deny(fmt.Sprintf("malformed sponsor response: %v", err))
	}
	if parsed.Error != "" {
		return deny(parsed.Error)
	}

	data, err := hexutil.Decode(parsed.PaymasterData)
	if err != nil || len(data) == 0 {
		return deny("sponsor response missing paymaster data")
	}

	logger.InfoCF("sponsor", "Sponsorship granted", map[string]any{
		"chainId":  chainID,
		"gasLimit": parsed.GasLimit,
	})

	return Decision{
		Granted:       true,
		PaymasterData: data,
		GasLimit:      parsed.GasLimit,
	}
}

type submitRequest struct {
	ChainID  int64    `json:"chainId"`
	Envelope Envelope `json:"envelope"`
}

type submitResponse struct {
	Hash  string `json:"hash"`
	Error string `json:"error"`
}

// SubmitSponsored submits a signed sponsored envelope through the relay.
// rejected is true when the relay explicitly refused the envelope without
// broadcasting it, which is safe to retry on the self-funded path. A
// transport error leaves the submission state unknown and is returned as
// err.
func (c *Client) SubmitSponsored(ctx context.Context, chainID int64, env Envelope) (hash common.Hash, rejected bool, err error) {
	payload, err := json.Marshal(submitRequest{ChainID: chainID, Envelope: env})
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", bytes.NewReader(payload))
	if err != nil {
		return common.Hash{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("failed to read relay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := strings.TrimSpace(string(body))
		if reason == "" {
			reason = resp.Status
		}
		return common.Hash{}, true, fmt.Errorf("relay rejected envelope: %s", reason)
	}

	var parsed submitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return common.Hash{}, false, fmt.Errorf("malformed relay response: %w", err)
	}
	if parsed.Error != "" {
		return common.Hash{}, true, fmt.Errorf("relay rejected envelope: %s", parsed.Error)
	}

	h := common.HexToHash(parsed.Hash)
	if h == (common.Hash{}) {
		return common.Hash{}, false, fmt.Errorf("relay response missing transaction hash")
	}

	return h, false, nil
}
