package exchange

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/guyghost/perpcore/internal/circuitbreaker"
	"github.com/guyghost/perpcore/internal/logger"
	"github.com/guyghost/perpcore/internal/ratelimit"
)

const (
	hyperliquidMainnetURL = "https://api.hyperliquid.xyz"
	hyperliquidTestnetURL = "https://api.hyperliquid-testnet.xyz"
	hyperliquidRatePerSec = 40.0
	hyperliquidBurst      = 80
)

// actionHash and signL1Action reproduce Hyperliquid's L1 action signing
// scheme: msgpack-encode the action, append the nonce and vault byte, hash
// with Keccak256, then sign an EIP-712 "Agent" struct wrapping that hash.
func actionHash(action map[string]any, vaultAddress *string, nonce int64) []byte {
	data, _ := msgpack.Marshal(action)
	data = append(data, big.NewInt(nonce).Bytes()...)
	if vaultAddress == nil {
		data = append(data, 0x00)
	} else {
		data = append(data, 0x01)
		addr := strings.TrimPrefix(*vaultAddress, "0x")
		b, _ := hex.DecodeString(addr)
		data = append(data, b...)
	}
	return crypto.Keccak256Hash(data).Bytes()
}

func signL1Action(wallet *ecdsa.PrivateKey, action map[string]any, nonce int64, isMainnet bool) (map[string]string, error) {
	hash := actionHash(action, nil, nonce)

	source := "a"
	if !isMainnet {
		source = "b"
	}
	phantomAgent := map[string]any{"source": source, "connectionId": hash}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"Agent": []apitypes.Type{
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name: "Exchange", Version: "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: phantomAgent,
	}

	domainSep, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	msgHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}
	finalHash := crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSep, msgHash)

	sig, err := crypto.Sign(finalHash.Bytes(), wallet)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return map[string]string{
		"r": "0x" + hex.EncodeToString(sig[:32]),
		"s": "0x" + hex.EncodeToString(sig[32:64]),
		"v": strconv.Itoa(int(sig[64]) + 27),
	}, nil
}

// floatToWire matches Hyperliquid's expectation of decimal-formatted,
// not scientific-notation, numeric strings.
func floatToWire(d decimal.Decimal) string { return d.String() }

func coinFromSymbol(symbol string) string {
	if i := strings.Index(symbol, "-"); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

// HyperliquidAdapter implements Adapter against the live Hyperliquid venue:
// msgpack+Keccak256+EIP-712 action signing, the /info and /exchange REST
// endpoints, a token-bucket rate limit matching the venue's documented
// budget, and a circuit breaker over every outbound call.
type HyperliquidAdapter struct {
	baseURL    string
	wallet     string // hex address, used as the "user" field on /info queries
	privateKey *ecdsa.PrivateKey
	isMainnet  bool

	http    *http.Client
	limiter ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger

	mu    sync.Mutex
	nonce int64
}

// NewHyperliquidAdapter constructs a live adapter. privateKeyHex is the
// account's signing key (without the L1-wallet/agent-wallet distinction the
// venue also supports); walletAddress is the account queried for read
// endpoints.
func NewHyperliquidAdapter(baseURL, walletAddress, privateKeyHex string, isMainnet bool) (*HyperliquidAdapter, error) {
	a := &HyperliquidAdapter{
		baseURL:   baseURL,
		wallet:    walletAddress,
		isMainnet: isMainnet,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewTokenBucket(hyperliquidRatePerSec, hyperliquidBurst),
		breaker:   circuitbreaker.New("hyperliquid", circuitbreaker.DefaultConfig()),
		log:       logger.Default().Adapter("hyperliquid"),
	}
	if privateKeyHex != "" {
		key := strings.TrimPrefix(privateKeyHex, "0x")
		b, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("exchange: invalid hyperliquid private key: %w", err)
		}
		priv, err := crypto.ToECDSA(b)
		if err != nil {
			return nil, fmt.Errorf("exchange: parse hyperliquid private key: %w", err)
		}
		a.privateKey = priv
	}
	return a, nil
}

// do executes a JSON POST under the rate limiter and circuit breaker; a
// breaker that opens turns transient venue failures into fatal ones.
func (a *HyperliquidAdapter) do(ctx context.Context, path string, body, result any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("exchange: rate limit wait: %w", err)
	}
	return a.breaker.Execute(ctx, func() error {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("hyperliquid %s: status=%d body=%s", path, resp.StatusCode, string(b))
		}
		if result == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(result)
	})
}

func (a *HyperliquidAdapter) nextNonce() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= a.nonce {
		now = a.nonce + 1
	}
	a.nonce = now
	return now
}

func (a *HyperliquidAdapter) signAndSend(ctx context.Context, action map[string]any) (map[string]any, error) {
	if a.privateKey == nil {
		return nil, fmt.Errorf("exchange: hyperliquid adapter has no signing key configured")
	}
	nonce := a.nextNonce()
	sig, err := signL1Action(a.privateKey, action, nonce, a.isMainnet)
	if err != nil {
		return nil, fmt.Errorf("sign action: %w", err)
	}
	payload := map[string]any{"action": action, "nonce": nonce, "signature": sig}

	var resp map[string]any
	if err := a.do(ctx, "/exchange", payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *HyperliquidAdapter) Connect(ctx context.Context) error { return nil }

func (a *HyperliquidAdapter) SetLeverage(ctx context.Context, symbol string, value int, mode MarginMode) error {
	action := map[string]any{
		"type":     "updateLeverage",
		"asset":    coinFromSymbol(symbol),
		"isCross":  mode == MarginCross,
		"leverage": value,
	}
	_, err := a.signAndSend(ctx, action)
	return err
}

// orderTypeWire builds the venue's order-type wire fragment. Reduce-only
// triggers are always sent as stop-loss triggers ("sl"); take-profits are
// placed as plain reduce-only limit orders, so this adapter never needs to
// emit "tpsl": "tp" here.
func orderTypeWire(isTrigger bool, triggerPrice decimal.Decimal) map[string]any {
	if isTrigger {
		return map[string]any{
			"trigger": map[string]any{
				"isMarket":  true,
				"triggerPx": floatToWire(triggerPrice),
				"tpsl":      "sl",
			},
		}
	}
	return map[string]any{"limit": map[string]any{"tif": "Gtc"}}
}

func (a *HyperliquidAdapter) placeOrder(ctx context.Context, symbol string, isBuy bool, size, price, triggerPrice decimal.Decimal, isTrigger, reduceOnly bool) (PlacedOrder, error) {
	if err := ValidateSize(size); err != nil {
		return PlacedOrder{}, err
	}
	wirePrice := price
	if isTrigger {
		wirePrice = triggerPrice
	}
	if wirePrice.IsPositive() {
		if err := ValidatePrice(wirePrice); err != nil {
			return PlacedOrder{}, err
		}
	}

	orderWire := map[string]any{
		"a": coinFromSymbol(symbol),
		"b": isBuy,
		"p": floatToWire(wirePrice),
		"s": floatToWire(size),
		"r": reduceOnly,
		"t": orderTypeWire(isTrigger, triggerPrice),
	}
	action := map[string]any{
		"type":     "order",
		"orders":   []any{orderWire},
		"grouping": "na",
	}

	resp, err := a.signAndSend(ctx, action)
	if err != nil {
		return PlacedOrder{}, err
	}

	oid, status, err := parseOrderResponse(resp)
	if err != nil {
		return PlacedOrder{}, err
	}

	return PlacedOrder{
		VenueOrderID: oid, Symbol: symbol, IsBuy: isBuy, Size: size,
		Price: price, TriggerPrice: triggerPrice, ReduceOnly: reduceOnly,
		Status: status, CreatedAt: time.Now(),
	}, nil
}

func parseOrderResponse(resp map[string]any) (oid string, status OrderStatus, err error) {
	respStatus, _ := resp["status"].(string)
	if respStatus != "ok" {
		return "", "", fmt.Errorf("exchange: hyperliquid order rejected: %v", resp)
	}
	data, ok := resp["response"].(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("exchange: unexpected order response shape")
	}
	inner, ok := data["data"].(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("exchange: unexpected order response data shape")
	}
	statuses, ok := inner["statuses"].([]any)
	if !ok || len(statuses) == 0 {
		return "", "", fmt.Errorf("exchange: hyperliquid order response has no statuses")
	}
	entry, ok := statuses[0].(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("exchange: unexpected status entry shape")
	}
	if resting, ok := entry["resting"].(map[string]any); ok {
		if id, ok := resting["oid"].(float64); ok {
			return fmt.Sprintf("%d", int64(id)), OrderPending, nil
		}
	}
	if filled, ok := entry["filled"].(map[string]any); ok {
		if id, ok := filled["oid"].(float64); ok {
			return fmt.Sprintf("%d", int64(id)), OrderFilled, nil
		}
	}
	return "", "", fmt.Errorf("exchange: could not parse order status from response")
}

func (a *HyperliquidAdapter) PlaceMarket(ctx context.Context, symbol string, isBuy bool, size decimal.Decimal) (PlacedOrder, error) {
	return a.placeOrder(ctx, symbol, isBuy, size, decimal.Zero, decimal.Zero, false, false)
}

func (a *HyperliquidAdapter) PlaceStopTrigger(ctx context.Context, symbol string, isBuy bool, size, triggerPrice decimal.Decimal, reduceOnly bool) (PlacedOrder, error) {
	return a.placeOrder(ctx, symbol, isBuy, size, decimal.Zero, triggerPrice, true, reduceOnly)
}

func (a *HyperliquidAdapter) PlaceLimit(ctx context.Context, symbol string, isBuy bool, size, price decimal.Decimal, reduceOnly bool) (PlacedOrder, error) {
	return a.placeOrder(ctx, symbol, isBuy, size, price, decimal.Zero, false, reduceOnly)
}

func (a *HyperliquidAdapter) Cancel(ctx context.Context, symbol, orderID string) error {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("exchange: invalid order id %q: %w", orderID, err)
	}
	action := map[string]any{
		"type": "cancel",
		"cancels": []any{map[string]any{
			"a": coinFromSymbol(symbol),
			"o": oid,
		}},
	}
	_, err = a.signAndSend(ctx, action)
	return err
}

func (a *HyperliquidAdapter) GetPositions(ctx context.Context, wallet string) ([]Position, error) {
	var resp struct {
		AssetPositions []struct {
			Position struct {
				Coin     string `json:"coin"`
				EntryPx  string `json:"entryPx"`
				Leverage struct {
					Value int `json:"value"`
				} `json:"leverage"`
				Szi           string `json:"szi"`
				UnrealizedPnl string `json:"unrealizedPnl"`
			} `json:"position"`
		} `json:"assetPositions"`
	}
	req := map[string]any{"type": "clearinghouseState", "user": wallet}
	if err := a.do(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	out := make([]Position, 0, len(resp.AssetPositions))
	for _, ap := range resp.AssetPositions {
		p := ap.Position
		sz, err := decimal.NewFromString(p.Szi)
		if err != nil || sz.IsZero() {
			continue
		}
		isLong := sz.IsPositive()
		sz = sz.Abs()
		entry, _ := decimal.NewFromString(p.EntryPx)
		pnl, _ := decimal.NewFromString(p.UnrealizedPnl)
		lev := decimal.NewFromInt(1)
		if p.Leverage.Value > 0 {
			lev = decimal.NewFromInt(int64(p.Leverage.Value))
		}
		out = append(out, Position{
			Symbol: p.Coin + "-USD", IsLong: isLong, Size: sz,
			EntryPrice: entry, MarkPrice: entry, Leverage: lev, UnrealizedPnl: pnl,
		})
	}
	return out, nil
}

func (a *HyperliquidAdapter) GetOpenOrders(ctx context.Context, wallet string) ([]OpenOrder, error) {
	var resp []struct {
		Coin         string `json:"coin"`
		LimitPx      string `json:"limitPx"`
		TriggerPx    string `json:"triggerPx"`
		IsTrigger    bool   `json:"isTrigger"`
		IsPositionTpsl bool `json:"isPositionTpsl"`
		ReduceOnly   bool   `json:"reduceOnly"`
		Oid          int64  `json:"oid"`
		Side         string `json:"side"`
		Sz           string `json:"sz"`
		Timestamp    int64  `json:"timestamp"`
	}
	req := map[string]any{"type": "openOrders", "user": wallet}
	if err := a.do(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	out := make([]OpenOrder, 0, len(resp))
	for _, o := range resp {
		price, _ := decimal.NewFromString(o.LimitPx)
		trigger, _ := decimal.NewFromString(o.TriggerPx)
		sz, err := decimal.NewFromString(o.Sz)
		if err != nil {
			continue
		}
		out = append(out, OpenOrder{
			VenueOrderID: fmt.Sprintf("%d", o.Oid),
			Symbol:       o.Coin + "-USD",
			IsBuy:        o.Side == "B" || o.Side == "buy",
			Size:         sz,
			Price:        price,
			TriggerPrice: trigger,
			IsTrigger:    o.IsTrigger || o.IsPositionTpsl,
			ReduceOnly:   o.ReduceOnly,
			CreatedAt:    time.UnixMilli(o.Timestamp),
		})
	}
	return out, nil
}

// GetHistoricalOrders queries the venue's historicalOrders feed, which the
// reconciler uses to resolve pending local orders to a terminal status.
func (a *HyperliquidAdapter) GetHistoricalOrders(ctx context.Context, wallet string, limit int) ([]HistoricalOrder, error) {
	var resp []struct {
		Order struct {
			Coin string `json:"coin"`
			Oid  int64  `json:"oid"`
		} `json:"order"`
		Status    string `json:"status"`
		StatusTs  int64  `json:"statusTimestamp"`
	}
	req := map[string]any{"type": "historicalOrders", "user": wallet}
	if err := a.do(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("get historical orders: %w", err)
	}

	if limit <= 0 || limit > len(resp) {
		limit = len(resp)
	}
	out := make([]HistoricalOrder, 0, limit)
	for i := 0; i < limit; i++ {
		o := resp[i]
		status, _ := MapOrderStatus(o.Status, true, false)
		out = append(out, HistoricalOrder{
			VenueOrderID: fmt.Sprintf("%d", o.Order.Oid),
			Symbol:       o.Order.Coin + "-USD",
			Status:       status,
			ClosedAt:     time.UnixMilli(o.StatusTs),
		})
	}
	return out, nil
}

func (a *HyperliquidAdapter) GetAccountEquity(ctx context.Context, wallet string) (decimal.Decimal, error) {
	var resp struct {
		MarginSummary struct {
			AccountValue string `json:"accountValue"`
		} `json:"marginSummary"`
	}
	req := map[string]any{"type": "clearinghouseState", "user": wallet}
	if err := a.do(ctx, "/info", req, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("get account equity: %w", err)
	}
	equity, err := decimal.NewFromString(resp.MarginSummary.AccountValue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse account equity: %w", err)
	}
	if err := ValidateEquity(equity); err != nil {
		a.log.Warn("account equity outside sanity bound", "equity", equity.String())
	}
	return equity, nil
}

func (a *HyperliquidAdapter) GetSymbolMeta(ctx context.Context, symbol string) (SymbolMeta, error) {
	var resp struct {
		Universe []struct {
			Name       string `json:"name"`
			SzDecimals int32  `json:"szDecimals"`
		} `json:"universe"`
	}
	req := map[string]any{"type": "meta"}
	if err := a.do(ctx, "/info", req, &resp); err != nil {
		return SymbolMeta{}, fmt.Errorf("get symbol meta: %w", err)
	}
	coin := coinFromSymbol(symbol)
	for _, u := range resp.Universe {
		if u.Name == coin {
			return SymbolMeta{Symbol: symbol, SzDecimals: u.SzDecimals}, nil
		}
	}
	return SymbolMeta{}, fmt.Errorf("exchange: symbol %s not found in hyperliquid universe", symbol)
}

// DefaultHyperliquidURL returns the mainnet or testnet REST base for use by
// callers assembling a HyperliquidAdapter from config.
func DefaultHyperliquidURL(mainnet bool) string {
	if mainnet {
		return hyperliquidMainnetURL
	}
	return hyperliquidTestnetURL
}
