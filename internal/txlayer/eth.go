package txlayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// EthLayer reads the chain through an RPC endpoint and submits transfers
// through an external relayer service, which owns key custody and
// broadcasting. Confirmation polling is bounded by the caller's context.
type EthLayer struct {
	rpcURL     string
	relayerURL string
	chainID    int64
	timeout    time.Duration
	httpClient *http.Client

	mu     sync.Mutex
	client *ethclient.Client
}

func NewEthLayer(rpcURL, relayerURL string, chainID int64, timeout time.Duration) *EthLayer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EthLayer{
		rpcURL:     strings.TrimSpace(rpcURL),
		relayerURL: strings.TrimRight(strings.TrimSpace(relayerURL), "/"),
		chainID:    chainID,
		timeout:    timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 10 * time.Second,
		},
	}
}

type relayerSubmitRequest struct {
	To      string `json:"to"`
	Token   string `json:"token,omitempty"`
	Value   string `json:"value"`
	Data    string `json:"data,omitempty"`
	ChainID int64  `json:"chain_id"`
}

type relayerSubmitResponse struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error,omitempty"`
}

func (l *EthLayer) SubmitTransfer(ctx context.Context, to common.Address, amount decimal.Decimal, data []byte) (string, error) {
	req := relayerSubmitRequest{
		To:      to.Hex(),
		Value:   ToWei(amount).String(),
		ChainID: l.chainID,
	}
	if len(data) > 0 {
		req.Data = hexutil.Encode(data)
	}
	return l.submit(ctx, req)
}

func (l *EthLayer) SubmitTokenTransfer(ctx context.Context, token, to common.Address, amount decimal.Decimal) (string, error) {
	req := relayerSubmitRequest{
		To:      to.Hex(),
		Token:   token.Hex(),
		Value:   ToWei(amount).String(),
		ChainID: l.chainID,
	}
	return l.submit(ctx, req)
}

func (l *EthLayer) submit(ctx context.Context, req relayerSubmitRequest) (string, error) {
	if l.relayerURL == "" {
		return "", fmt.Errorf("relayer url not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.relayerURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("relayer submission failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var out relayerSubmitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("relayer returned invalid response: %w", err)
	}
	if resp.StatusCode >= 400 || out.Error != "" {
		return "", fmt.Errorf("relayer rejected transfer: %s", out.Error)
	}
	if out.TransactionID == "" {
		return "", fmt.Errorf("relayer returned empty transaction id")
	}
	return out.TransactionID, nil
}

func (l *EthLayer) WaitForConfirmation(ctx context.Context, txRef string) (Receipt, error) {
	client, err := l.getClient(ctx)
	if err != nil {
		return Receipt{}, err
	}
	hash := common.HexToHash(txRef)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return Receipt{
				Success:  receipt.Status == 1,
				BlockRef: receipt.BlockHash.Hex(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *EthLayer) ReadContractValue(ctx context.Context, addr common.Address, callData []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	client, err := l.getClient(callCtx)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{
		To:   &addr,
		Data: callData,
	}
	return client.CallContract(callCtx, msg, nil)
}

func (l *EthLayer) getClient(ctx context.Context) (*ethclient.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	if l.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, l.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	l.client = client
	return l.client, nil
}

// ToWei converts a decimal native amount to its wei representation.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(18).Truncate(0).BigInt()
}
