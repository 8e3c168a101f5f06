// Package indexer wraps the two external data sources the history engine
// depends on: the enhanced transactions API (signature listing and detail
// batches) and plain chain state reads for the pricing fallback.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// TransportError marks a network or API failure. It is the only error class
// surfaced to consumers; everything below it degrades locally.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("indexer: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

var ErrAccountNotFound = errors.New("indexer: account not found")

// Config configures the indexer client.
type Config struct {
	RPCURL      string
	EnhancedURL string // base URL of the enhanced transactions API
	APIKey      string
	MaxRetries  int
	RetryDelay  time.Duration
	HTTPTimeout time.Duration
}

// Client talks to the indexing API and the RPC node.
type Client struct {
	rpc        *rpc.Client
	http       *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	return &Client{
		rpc:        rpc.New(cfg.RPCURL),
		http:       &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.EnhancedURL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.Named("indexer"),
	}
}

// ListSignatures returns up to limit {signature, timestamp} tuples for the
// program address, newest first, strictly older than before when it is set.
func (c *Client) ListSignatures(ctx context.Context, program solana.PublicKey, limit int, before string) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, &TransportError{Op: "list signatures", Err: fmt.Errorf("bad cursor %q: %w", before, err)}
		}
		opts.Before = sig
	}

	result, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, program, opts)
	if err != nil {
		return nil, &TransportError{Op: "list signatures", Err: err}
	}

	infos := make([]SignatureInfo, 0, len(result))
	for _, sig := range result {
		info := SignatureInfo{Signature: sig.Signature.String()}
		if sig.BlockTime != nil {
			ts := sig.BlockTime.Time().Unix()
			info.Timestamp = &ts
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// GetTransactions fetches the enriched detail batch for the given signatures.
// Retries transient failures with exponential backoff; a 4xx response is
// permanent.
func (c *Client) GetTransactions(ctx context.Context, signatures []string) ([]Transaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.retryDelay * 10

	notify := func(err error, next time.Duration) {
		c.logger.Warn("Retrying transaction batch",
			zap.Error(err),
			zap.Duration("backoff", next))
	}

	operation := func() ([]Transaction, error) {
		return c.fetchBatch(ctx, signatures)
	}

	txs, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries)),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, &TransportError{Op: "transaction batch", Err: err}
	}
	return txs, nil
}

func (c *Client) fetchBatch(ctx context.Context, signatures []string) ([]Transaction, error) {
	body, err := json.Marshal(map[string][]string{"transactions": signatures})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	url := fmt.Sprintf("%s/v0/transactions?api-key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
		// Client-side errors will not heal on retry; 429 is the exception.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var txs []Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, fmt.Errorf("malformed batch response: %w", err)
	}
	return txs, nil
}

// GetTransactionBalances fetches the per-account pre/post lamport balances of
// one transaction. Used only by the balance-delta pricing fallback, which is
// why it is a separate lazy call rather than part of the batch.
func (c *Client) GetTransactionBalances(ctx context.Context, signature string) (*BalanceSnapshot, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("indexer: bad signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	result, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, &TransportError{Op: "get transaction", Err: err}
	}
	if result == nil || result.Meta == nil {
		return nil, &TransportError{Op: "get transaction", Err: errors.New("empty result")}
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("indexer: failed to parse transaction %s: %w", signature, err)
	}

	keys := make([]string, 0, len(tx.Message.AccountKeys))
	for _, key := range tx.Message.AccountKeys {
		keys = append(keys, key.String())
	}

	return &BalanceSnapshot{
		AccountKeys:  keys,
		PreBalances:  result.Meta.PreBalances,
		PostBalances: result.Meta.PostBalances,
	}, nil
}

// GetAccountData returns the raw data of an account. Satisfies
// curve.AccountFetcher.
func (c *Client) GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	result, err := c.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, &TransportError{Op: "get account info", Err: err}
	}
	if result == nil || result.Value == nil {
		return nil, ErrAccountNotFound
	}
	return result.Value.Data.GetBinary(), nil
}
