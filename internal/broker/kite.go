package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "option-sentinel/internal/errors"
	"option-sentinel/internal/models"
	"option-sentinel/pkg/utils"
)

// KiteClient implements Client on Zerodha Kite Connect.
type KiteClient struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool
	tokens        map[models.InstrumentKey]uint32
	mu            sync.RWMutex
}

// KiteConfig holds configuration for the Kite client.
type KiteConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
}

// NewKiteClient creates a new Kite client instance.
// It automatically loads any saved session from disk.
func NewKiteClient(cfg KiteConfig) *KiteClient {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "option-sentinel", "session.json")
	}

	kc := &KiteClient{
		client:    kiteconnect.New(cfg.APIKey),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userID:    cfg.UserID,
		tokenPath: tokenPath,
		tokens:    make(map[models.InstrumentKey]uint32),
	}

	_ = kc.loadSession()

	return kc
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginURL returns the Kite OAuth login URL.
func (k *KiteClient) LoginURL() string {
	return k.client.GetLoginURL()
}

// CompleteLogin exchanges the OAuth request token for an access token and
// persists the session.
func (k *KiteClient) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := k.client.GenerateSession(requestToken, k.apiSecret)
	if err != nil {
		return apperrors.NewBrokerError("generate_session", "exchanging request token", err)
	}

	k.mu.Lock()
	k.accessToken = session.AccessToken
	k.authenticated = true
	k.client.SetAccessToken(session.AccessToken)
	k.mu.Unlock()

	return k.saveSession(session.AccessToken)
}

// IsAuthenticated returns whether a usable session is loaded.
func (k *KiteClient) IsAuthenticated() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.authenticated
}

// AccessToken returns the current access token, empty when not
// authenticated. The ticker needs it to open its own connection.
func (k *KiteClient) AccessToken() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.accessToken
}

// APIKey returns the configured API key.
func (k *KiteClient) APIKey() string {
	return k.apiKey
}

func (k *KiteClient) loadSession() error {
	data, err := os.ReadFile(k.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	if time.Now().After(session.ExpiresAt) {
		return apperrors.ErrSessionExpired
	}

	k.mu.Lock()
	k.accessToken = session.AccessToken
	k.authenticated = true
	k.client.SetAccessToken(session.AccessToken)
	k.mu.Unlock()

	return nil
}

func (k *KiteClient) saveSession(accessToken string) error {
	dir := filepath.Dir(k.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day
	now := time.Now().In(utils.IndiaLocation)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	data, err := json.Marshal(sessionData{
		AccessToken: accessToken,
		UserID:      k.userID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return err
	}

	return os.WriteFile(k.tokenPath, data, 0600)
}

// rawPayload round-trips a typed Kite response through JSON so the feed
// package sees the same wire field names regardless of backend.
func rawPayload(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PositionBook returns the raw net position legs.
func (k *KiteClient) PositionBook(ctx context.Context) (any, error) {
	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	positions, err := k.client.GetPositions()
	if err != nil {
		return nil, apperrors.NewBrokerError("positions", "fetching position book", err)
	}

	return rawPayload(positions.Net)
}

// OrderBook returns the raw day orders, all statuses.
func (k *KiteClient) OrderBook(ctx context.Context) (any, error) {
	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	orders, err := k.client.GetOrders()
	if err != nil {
		return nil, apperrors.NewBrokerError("orders", "fetching order book", err)
	}

	return rawPayload(orders)
}

// TradeBook returns the raw day fills.
func (k *KiteClient) TradeBook(ctx context.Context) (any, error) {
	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	trades, err := k.client.GetTrades()
	if err != nil {
		return nil, apperrors.NewBrokerError("trades", "fetching trade book", err)
	}

	return rawPayload(trades)
}

// OrderHistory returns completed day orders as a fill source. Kite has no
// bulk historical endpoint; completed orders carry the filled quantity and
// average price, and the dedup cache absorbs the overlap with TradeBook.
func (k *KiteClient) OrderHistory(ctx context.Context) (any, error) {
	if !k.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	orders, err := k.client.GetOrders()
	if err != nil {
		return nil, apperrors.NewBrokerError("order_history", "fetching orders", err)
	}

	var completed []kiteconnect.Order
	for _, o := range orders {
		if o.Status == "COMPLETE" {
			completed = append(completed, o)
		}
	}

	return rawPayload(completed)
}

// Executions is not a distinct source on Kite.
func (k *KiteClient) Executions(ctx context.Context) (any, error) {
	return nil, nil
}

// PlaceOrder places an order and returns the broker order id.
func (k *KiteClient) PlaceOrder(ctx context.Context, params OrderParams) (string, error) {
	if !k.IsAuthenticated() {
		return "", apperrors.ErrNotAuthenticated
	}

	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        string(params.Instrument.Exchange),
		Tradingsymbol:   params.Instrument.Symbol,
		TransactionType: string(params.Side),
		OrderType:       string(params.Type),
		Product:         string(params.Product),
		Quantity:        int(math.Round(params.Quantity)),
		Price:           params.Price,
		Validity:        "DAY",
		Tag:             params.Tag,
	})
	if err != nil {
		return "", apperrors.NewOrderError("", params.Instrument.Symbol, "place", "broker rejected placement", err)
	}
	if resp.OrderID == "" {
		return "", apperrors.ErrNoOrderID
	}

	return resp.OrderID, nil
}

// CancelOrder cancels an order by id.
func (k *KiteClient) CancelOrder(ctx context.Context, orderID string) error {
	if !k.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}

	if _, err := k.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil); err != nil {
		return apperrors.NewOrderError(orderID, "", "cancel", "broker rejected cancellation", err)
	}

	return nil
}

// InstrumentToken resolves the streaming token for an instrument, loading
// and caching the exchange instrument dump on first use.
func (k *KiteClient) InstrumentToken(ctx context.Context, key models.InstrumentKey) (uint32, error) {
	k.mu.RLock()
	token, ok := k.tokens[key]
	k.mu.RUnlock()
	if ok {
		return token, nil
	}

	instruments, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() (kiteconnect.Instruments, error) {
		return k.client.GetInstrumentsByExchange(string(key.Exchange))
	})
	if err != nil {
		return 0, apperrors.NewBrokerError("instruments", fmt.Sprintf("loading %s instrument dump", key.Exchange), err)
	}

	k.mu.Lock()
	for _, inst := range instruments {
		ik := models.InstrumentKey{Exchange: models.Exchange(inst.Exchange), Symbol: inst.Tradingsymbol}
		k.tokens[ik] = uint32(inst.InstrumentToken)
	}
	token, ok = k.tokens[key]
	k.mu.Unlock()

	if !ok {
		return 0, apperrors.NewDataError("instrument", key.String(), "not present in instrument dump", nil)
	}

	return token, nil
}

// Ensure KiteClient implements Client
var _ Client = (*KiteClient)(nil)
