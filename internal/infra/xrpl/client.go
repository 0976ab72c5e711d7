package xrpl

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// ErrNotConfirmed is returned when a submitted transaction did not reach a
// validated ledger inside the confirmation window. Callers must treat it as
// failure, never as success.
var ErrNotConfirmed = errors.New("xrpl: transaction not confirmed in time")

// TxResult describes a validated ledger transaction.
type TxResult struct {
	Hash        string
	LedgerIndex int64
	FeeDrops    int64
}

// Client talks to a rippled JSON-RPC endpoint in sign-and-submit mode.
type Client struct {
	baseURL        string
	account        string
	secret         string
	confirmTimeout time.Duration
	http           *http.Client
}

func NewClient(baseURL, account, secret string, confirmTimeout time.Duration) *Client {
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		account:        account,
		secret:         secret,
		confirmTimeout: confirmTimeout,
		http:           &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	Method string           `json:"method"`
	Params []map[string]any `json:"params"`
}

type rpcResult struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
	EngineResult string `json:"engine_result"`
	TxJSON       struct {
		Hash string `json:"hash"`
		Fee  string `json:"Fee"`
	} `json:"tx_json"`
	Validated   bool  `json:"validated"`
	LedgerIndex int64 `json:"ledger_index"`
	Meta        struct {
		TransactionResult string `json:"TransactionResult"`
	} `json:"meta"`
	Fee  string `json:"Fee"`
	Hash string `json:"hash"`
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (*rpcResult, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []map[string]any{params}})
	if err != nil {
		return nil, err
	}

	var res rpcResult
	// Transient transport errors are retried inside the one submission
	// attempt; entry-level retry semantics stay with the batcher.
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("xrpl: rpc status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("xrpl: rpc status %d", resp.StatusCode)
		}

		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return err
		}
		res = rpcResult{}
		return json.Unmarshal(envelope.Result, &res)
	})
	if err != nil {
		return nil, err
	}
	if res.Status == "error" || res.Error != "" {
		return nil, fmt.Errorf("xrpl: %s: %s", res.Error, res.ErrorMessage)
	}
	return &res, nil
}

// SubmitPayment sends amount (XRP) to destination and waits for the
// transaction to validate. A non-tesSUCCESS engine result or a confirmation
// timeout is an error.
func (c *Client) SubmitPayment(ctx context.Context, destination string, amount decimal.Decimal, memo string) (*TxResult, error) {
	tx := map[string]any{
		"TransactionType": "Payment",
		"Account":         c.account,
		"Destination":     destination,
		"Amount":          drops(amount),
	}
	if memo != "" {
		tx["Memos"] = memos(memo)
	}
	return c.submitAndConfirm(ctx, tx)
}

// SubmitUsageRecord anchors a usage digest on the ledger as a self-payment of
// one drop carrying the digest memo.
func (c *Client) SubmitUsageRecord(ctx context.Context, digest string) (*TxResult, error) {
	tx := map[string]any{
		"TransactionType": "Payment",
		"Account":         c.account,
		"Destination":     c.account,
		"Amount":          "1",
		"Memos":           memos(digest),
	}
	return c.submitAndConfirm(ctx, tx)
}

func (c *Client) submitAndConfirm(ctx context.Context, tx map[string]any) (*TxResult, error) {
	res, err := c.call(ctx, "submit", map[string]any{
		"secret":  c.secret,
		"tx_json": tx,
	})
	if err != nil {
		return nil, err
	}
	if res.EngineResult != "tesSUCCESS" && !strings.HasPrefix(res.EngineResult, "ter") {
		return nil, fmt.Errorf("xrpl: submit rejected: %s", res.EngineResult)
	}
	return c.waitValidated(ctx, res.TxJSON.Hash)
}

// waitValidated polls the tx method until the transaction appears in a
// validated ledger or the confirmation window closes.
func (c *Client) waitValidated(ctx context.Context, hash string) (*TxResult, error) {
	deadline := time.Now().Add(c.confirmTimeout)
	for {
		res, err := c.call(ctx, "tx", map[string]any{"transaction": hash})
		if err == nil && res.Validated {
			if res.Meta.TransactionResult != "" && res.Meta.TransactionResult != "tesSUCCESS" {
				return nil, fmt.Errorf("xrpl: transaction reverted: %s", res.Meta.TransactionResult)
			}
			fee, _ := decimal.NewFromString(res.Fee)
			return &TxResult{
				Hash:        hash,
				LedgerIndex: res.LedgerIndex,
				FeeDrops:    fee.IntPart(),
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotConfirmed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(4 * time.Second): // ledger close interval
		}
	}
}

// drops converts an XRP amount to the integer drop string the ledger expects.
func drops(amount decimal.Decimal) string {
	return amount.Mul(decimal.NewFromInt(1_000_000)).Truncate(0).String()
}

func memos(data string) []map[string]any {
	return []map[string]any{{
		"Memo": map[string]any{
			"MemoData": strings.ToUpper(hex.EncodeToString([]byte(data))),
		},
	}}
}
