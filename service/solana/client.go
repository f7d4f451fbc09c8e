package solana

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/gatewatch/gatewatch/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client provides methods for polling ledger activity.
// It wraps the RPC client with domain-specific operations and paces the
// per-entry detail lookups with a token bucket so the upstream rate limit is
// respected without hardcoded sleeps.
type Client struct {
	rpc      RPCClient
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
}

// NewClient creates a new ledger client.
// The endpoint parameter is used for metrics labeling. If metrics is nil, no
// metrics will be recorded. If limiter is nil, detail lookups are not paced.
func NewClient(rpcClient RPCClient, endpoint string, limiter *rate.Limiter, m *metrics.Metrics, logger *slog.Logger) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		rpc:      rpcClient,
		limiter:  limiter,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// FetchActivityParams contains parameters for fetching activity records.
type FetchActivityParams struct {
	Address     solana.PublicKey
	UntilCursor *solana.Signature // exclusive lower bound; nil means bootstrap (most recent page only)
	Limit       int
}

// FetchActivitySince lists activity strictly newer than the cursor and
// resolves per-entry detail. Results come back in the ledger's native order,
// newest first; callers that need chronological processing must reverse.
//
// A failed detail lookup degrades that entry to signature metadata rather
// than failing the whole page.
func (c *Client) FetchActivitySince(ctx context.Context, params FetchActivityParams) ([]*ActivityRecord, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &params.Limit,
	}
	if params.UntilCursor != nil {
		opts.Until = *params.UntilCursor
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"address", params.Address.String(),
		"limit", params.Limit,
		"until", params.UntilCursor,
	)

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, params.Address, opts)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"address", params.Address.String(),
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall("GetSignaturesForAddress", status, c.endpoint, duration)
		if err == nil {
			c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
		}
	}

	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched activity signatures",
		"address", params.Address.String(),
		"count", len(signatures),
	)

	records := make([]*ActivityRecord, 0, len(signatures))
	for _, sig := range signatures {
		rec := recordFromSignature(sig)

		// Detail lookup is paced by the token bucket; this is the only
		// intentional blocking point on the polling path.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.getTransactionWithRetry(ctx, sig.Signature)
		if err != nil {
			// Entry might be pruned or temporarily unavailable; keep the
			// metadata-only record and move on.
			c.logger.WarnContext(ctx, "failed to get activity detail, using metadata only",
				"id", sig.Signature.String(),
				"error", err,
			)
			records = append(records, rec)
			continue
		}

		if err := applyDetail(rec, result); err != nil {
			c.logger.WarnContext(ctx, "failed to parse activity detail, using metadata only",
				"id", sig.Signature.String(),
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordActivityParsed(params.Address.String(), "error")
			}
			records = append(records, rec)
			continue
		}

		if c.metrics != nil {
			c.metrics.RecordActivityParsed(params.Address.String(), "success")
		}
		records = append(records, rec)
	}

	c.logger.InfoContext(ctx, "fetched and parsed activity records",
		"address", params.Address.String(),
		"count", len(records),
	)

	return records, nil
}

// getTransactionWithRetry fetches full transaction detail with bounded retries.
// Rate-limit responses (429) back off longer than transient failures.
func (c *Client) getTransactionWithRetry(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	var result *rpc.GetTransactionResult
	var err error

	const maxAttempts = 3
	maxVersion := uint64(0)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		txnOpts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &maxVersion,
		}
		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, sig, txnOpts)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall("GetTransaction", status, c.endpoint, duration)
		}

		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		reason := "timeout_or_error"
		if strings.Contains(err.Error(), "429") {
			backoff = time.Duration(2<<uint(attempt)) * time.Second
			reason = "rate_limit"
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		}

		c.logger.WarnContext(ctx, "failed to get activity detail on attempt",
			"id", sig.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordRPCRetry("GetTransaction", reason)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, err
}
