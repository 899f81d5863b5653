package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"option-sentinel/internal/models"
)

// TokenResolver maps an instrument key to its streaming token.
type TokenResolver func(ctx context.Context, key models.InstrumentKey) (uint32, error)

// KiteTicker implements Streamer on the Kite WebSocket feed, subscribing
// in LTP mode only.
type KiteTicker struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string
	resolve     TokenResolver

	onTick  func(models.Tick)
	onError func(error)

	connected  bool
	subscribed map[uint32]models.InstrumentKey

	mu      sync.RWMutex
	writeMu sync.Mutex // Protects websocket writes
}

// NewKiteTicker creates a new Kite ticker instance.
func NewKiteTicker(apiKey, accessToken string, resolve TokenResolver) *KiteTicker {
	return &KiteTicker{
		apiKey:      apiKey,
		accessToken: accessToken,
		resolve:     resolve,
		subscribed:  make(map[uint32]models.InstrumentKey),
	}
}

// Connect establishes the WebSocket connection and waits for it to come up.
func (t *KiteTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}

	t.ticker = kiteticker.New(t.apiKey, t.accessToken)
	t.ticker.SetAutoReconnect(true)

	connectedCh := make(chan struct{}, 1)

	t.ticker.OnConnect(func() {
		t.mu.Lock()
		t.connected = true
		t.mu.Unlock()

		select {
		case connectedCh <- struct{}{}:
		default:
		}

		// Resubscribe after a reconnect
		t.resubscribe()
	})

	t.ticker.OnClose(func(code int, reason string) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	})

	t.ticker.OnError(func(err error) {
		t.mu.RLock()
		handler := t.onError
		t.mu.RUnlock()
		if handler != nil {
			go handler(err)
		}
	})

	t.ticker.OnTick(func(tick kitemodels.Tick) {
		t.mu.RLock()
		key, ok := t.subscribed[tick.InstrumentToken]
		handler := t.onTick
		t.mu.RUnlock()
		if !ok || handler == nil {
			return
		}
		handler(models.Tick{
			Instrument: key,
			LTP:        tick.LastPrice,
			Timestamp:  tick.Timestamp.Time,
		})
	})

	t.mu.Unlock()

	go t.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("ticker connection timeout")
	}
}

// Disconnect closes the WebSocket connection.
func (t *KiteTicker) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		t.ticker.Close()
		t.connected = false
	}

	return nil
}

// SubscribeLTP subscribes to last-traded-price ticks for the instruments.
// Instruments whose token cannot be resolved are skipped.
func (t *KiteTicker) SubscribeLTP(instruments []models.InstrumentKey) error {
	ctx := context.Background()

	tokens := make([]uint32, 0, len(instruments))
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	t.mu.Unlock()

	for _, key := range instruments {
		token, err := t.resolve(ctx, key)
		if err != nil {
			continue
		}
		t.mu.Lock()
		t.subscribed[token] = key
		t.mu.Unlock()
		tokens = append(tokens, token)
	}

	if len(tokens) == 0 {
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := t.ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}

	return nil
}

// UnsubscribeLTP unsubscribes from ticks for the instruments.
func (t *KiteTicker) UnsubscribeLTP(instruments []models.InstrumentKey) error {
	want := make(map[models.InstrumentKey]bool, len(instruments))
	for _, key := range instruments {
		want[key] = true
	}

	tokens := make([]uint32, 0, len(instruments))
	t.mu.Lock()
	for token, key := range t.subscribed {
		if want[key] {
			tokens = append(tokens, token)
			delete(t.subscribed, token)
		}
	}
	connected := t.connected
	t.mu.Unlock()

	if !connected || len(tokens) == 0 {
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.ticker.Unsubscribe(tokens); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	return nil
}

// OnTick sets the tick handler.
func (t *KiteTicker) OnTick(handler func(models.Tick)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = handler
}

// OnError sets the error handler.
func (t *KiteTicker) OnError(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = handler
}

// resubscribe restores subscriptions after a reconnect.
func (t *KiteTicker) resubscribe() {
	t.mu.RLock()
	tokens := make([]uint32, 0, len(t.subscribed))
	for token := range t.subscribed {
		tokens = append(tokens, token)
	}
	t.mu.RUnlock()

	if len(tokens) == 0 {
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.ticker.Subscribe(tokens)
	t.ticker.SetMode(kiteticker.ModeLTP, tokens)
}

// Ensure KiteTicker implements Streamer
var _ Streamer = (*KiteTicker)(nil)
