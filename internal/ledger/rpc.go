package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rewired-gh/solsignal/internal/models"
)

// RPC reads program accounts from a Solana JSON-RPC endpoint.
type RPC struct {
	endpoint   string
	programID  models.Pubkey
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

func NewRPC(endpoint string, programID models.Pubkey, timeout time.Duration) *RPC {
	return &RPC{
		endpoint:   endpoint,
		programID:  programID,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type rpcAccount struct {
	Data     []string `json:"data"`
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}

var base64Encoding = map[string]string{"encoding": "base64", "commitment": "confirmed"}

func (c *RPC) Account(ctx context.Context, addr models.Pubkey) ([]byte, error) {
	var result struct {
		Value *rpcAccount `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", []any{addr.String(), base64Encoding}, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return decodeAccountData(result.Value.Data)
}

func (c *RPC) ProgramAccounts(ctx context.Context) ([]models.Account, error) {
	var result []struct {
		Pubkey  string     `json:"pubkey"`
		Account rpcAccount `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", []any{c.programID.String(), base64Encoding}, &result); err != nil {
		return nil, err
	}

	out := make([]models.Account, 0, len(result))
	for _, r := range result {
		key, err := models.ParsePubkey(r.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("bad account address in response: %w", err)
		}
		data, err := decodeAccountData(r.Account.Data)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", r.Pubkey, err)
		}
		out = append(out, models.Account{Address: key, Data: data})
	}
	return out, nil
}

func decodeAccountData(data []string) ([]byte, error) {
	if len(data) != 2 || data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account data encoding %v", data)
	}
	b, err := base64.StdEncoding.DecodeString(data[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode account data: %w", err)
	}
	return b, nil
}

// call performs a JSON-RPC request with linear-backoff retry on transport
// errors, rate limiting and 5xx responses.
func (c *RPC) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		var rr rpcResponse
		err = json.NewDecoder(resp.Body).Decode(&rr)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		if rr.Error != nil {
			return fmt.Errorf("%s failed: rpc error %d: %s", method, rr.Error.Code, rr.Error.Message)
		}
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	}
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}
