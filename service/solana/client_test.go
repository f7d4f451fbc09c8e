package solana

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	signatures []*rpc.TransactionSignature
	details    map[string]*rpc.GetTransactionResult
	sigErr     error

	lastOpts *rpc.GetSignaturesForAddressOpts
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	m.lastOpts = opts
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	if m.details == nil {
		// A nil result keeps the record metadata-only; instruction decoding
		// against real payloads is covered in parser_test.go.
		return nil, nil
	}
	return m.details[signature.String()], nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "test", rate.NewLimiter(rate.Inf, 1), nil, logger)
}

func testSignature(t *testing.T, s string) solana.Signature {
	t.Helper()
	sig, err := solana.SignatureFromBase58(s)
	require.NoError(t, err)
	return sig
}

func TestFetchActivitySince_Bootstrap(t *testing.T) {
	ctx := context.Background()

	sig1 := testSignature(t, "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	sig2 := testSignature(t, "2TgM4N8qCMqLvfR8dxqTQgKygPNzT5KQkN5b5sT7eZPEkdxyLTXGnNQB3j7KG4DPFg5Qez5yNJBQRQ5r7DDnFfjG")

	now := solana.UnixTimeSeconds(time.Now().Unix())
	past := solana.UnixTimeSeconds(time.Now().Unix() - 10)

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sig1, Slot: 100, BlockTime: &now},
			{Signature: sig2, Slot: 99, BlockTime: &past},
		},
	}

	client := newTestClient(mock)
	address := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	records, err := client.FetchActivitySince(ctx, FetchActivityParams{
		Address: address,
		Limit:   10,
	})

	require.NoError(t, err)
	require.Len(t, records, 2)

	// Results stay in the ledger's native order, newest first.
	assert.Equal(t, sig1.String(), records[0].ID)
	assert.Equal(t, uint64(100), records[0].Slot)
	assert.Equal(t, sig2.String(), records[1].ID)
	assert.False(t, records[0].Failed)

	// Bootstrap means no Until bound was set on the RPC call.
	require.NotNil(t, mock.lastOpts)
	assert.True(t, mock.lastOpts.Until.IsZero())
}

func TestFetchActivitySince_UntilCursor(t *testing.T) {
	ctx := context.Background()

	cursor := testSignature(t, "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	mock := &mockRPCClient{}

	client := newTestClient(mock)
	address := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	records, err := client.FetchActivitySince(ctx, FetchActivityParams{
		Address:     address,
		UntilCursor: &cursor,
		Limit:       10,
	})

	require.NoError(t, err)
	assert.Empty(t, records)

	require.NotNil(t, mock.lastOpts)
	assert.Equal(t, cursor, mock.lastOpts.Until)
}

func TestFetchActivitySince_FailedEntry(t *testing.T) {
	ctx := context.Background()

	sig := testSignature(t, "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	now := solana.UnixTimeSeconds(time.Now().Unix())

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sig, Slot: 42, BlockTime: &now, Err: map[string]interface{}{"InstructionError": []interface{}{}}},
		},
	}

	client := newTestClient(mock)
	address := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	records, err := client.FetchActivitySince(ctx, FetchActivityParams{Address: address, Limit: 10})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Failed)
}

func TestFetchActivitySince_ListError(t *testing.T) {
	ctx := context.Background()

	mock := &mockRPCClient{sigErr: errors.New("rpc unavailable")}
	client := newTestClient(mock)
	address := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	_, err := client.FetchActivitySince(ctx, FetchActivityParams{Address: address, Limit: 10})
	require.Error(t, err)
}

func TestFetchActivitySince_UndecodableDetailDegrades(t *testing.T) {
	ctx := context.Background()

	sig := testSignature(t, "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	now := solana.UnixTimeSeconds(time.Now().Unix())

	// A base64 payload that is not a transaction forces a decode failure in
	// the detail parser; the entry must degrade to metadata, not error out.
	var bad rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(`{"transaction":["aGVsbG8=","base64"]}`), &bad))

	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{
			{Signature: sig, Slot: 42, BlockTime: &now},
		},
		details: map[string]*rpc.GetTransactionResult{
			sig.String(): &bad,
		},
	}

	client := newTestClient(mock)
	address := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	records, err := client.FetchActivitySince(ctx, FetchActivityParams{Address: address, Limit: 10})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].HasDetail)
	assert.Equal(t, 0, records[0].DetailCount)
}
