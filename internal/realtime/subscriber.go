package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/hitoshi/bento/internal/metrics"
	"github.com/hitoshi/bento/internal/model"
)

// TokenSource はブローカー接続時に付与するアクセストークンを返す。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SubscriberConfig はSubscriberの設定。
type SubscriberConfig struct {
	// URL はSTOMP over WebSocketのエンドポイント(ws:// または wss://)。
	URL string
	// Topic は購読するトピック名。
	Topic string
	// Origin はハンドシェイクで送るOrigin。空の場合はURLから導く。
	Origin string
	// ReconnectMax は再接続待ち時間の上限。
	ReconnectMax time.Duration
	// HandshakeTimeout はCONNECTEDを待つ上限時間。
	HandshakeTimeout time.Duration
}

// Subscriber はブローカーのトピックを購読し、届いたイベントをHubへ流す。
// 切断されると待ち時間を伸ばしながら再接続する。切断中のイベントは再送されない。
type Subscriber struct {
	config  SubscriberConfig
	tokens  TokenSource
	hub     *Hub
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	connected bool
}

// NewSubscriber はSubscriberを生成する。
func NewSubscriber(config SubscriberConfig, tokens TokenSource, hub *Hub, collector metrics.MetricsCollector, logger *slog.Logger) *Subscriber {
	if config.Origin == "" {
		config.Origin = originFor(config.URL)
	}
	if config.ReconnectMax <= 0 {
		config.ReconnectMax = time.Minute
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		config:  config,
		tokens:  tokens,
		hub:     hub,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// originFor はws(s)のURLに対応するhttp(s)のOriginを返す。
func originFor(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "http://localhost"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// Connected はブローカーとのセッションが確立しているかを返す。
func (s *Subscriber) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Run はコンテキストがキャンセルされるまで購読を続ける。
func (s *Subscriber) Run(ctx context.Context) {
	s.logger.Info("在庫低下通知の購読を開始しました",
		slog.String("url", s.config.URL),
		slog.String("topic", s.config.Topic),
	)

	failures := 0
	for {
		established, err := s.session(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			s.logger.Info("在庫低下通知の購読を停止しました")
			return
		}
		if established {
			failures = 0
		}

		delay := ReconnectDelay(failures, s.config.ReconnectMax)
		failures++
		s.logger.Warn("ブローカーとの接続が切れたため再接続します",
			slog.String("error", errString(err)),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			s.logger.Info("在庫低下通知の購読を停止しました")
			return
		case <-time.After(delay):
		}
		s.metrics.RecordRealtimeReconnect()
	}
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}

// session は1回分の接続を処理する。CONNECTEDまで到達したかを返す。
func (s *Subscriber) session(ctx context.Context) (bool, error) {
	wsConfig, err := websocket.NewConfig(s.config.URL, s.config.Origin)
	if err != nil {
		return false, fmt.Errorf("invalid websocket config: %w", err)
	}

	token := ""
	if s.tokens != nil {
		t, err := s.tokens.Token(ctx)
		switch {
		case err == nil:
			token = t
		case errors.Is(err, model.ErrUnauthenticated):
		default:
			s.logger.Warn("ブローカー接続用のトークンを取得できませんでした", slog.String("error", err.Error()))
		}
	}
	if token != "" {
		wsConfig.Header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	conn, err := wsConfig.DialContext(dialCtx)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.config.URL, err)
	}

	// キャンセルされたら接続を閉じて受信待ちを解除する
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	host := ""
	if u, err := url.Parse(s.config.URL); err == nil {
		host = u.Hostname()
	}
	connect := NewFrame(CommandConnect,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", "0,0",
	)
	if token != "" {
		connect.Headers["Authorization"] = "Bearer " + token
	}
	if err := send(conn, connect); err != nil {
		return false, err
	}

	conn.SetReadDeadline(s.now().Add(s.config.HandshakeTimeout))
	frames, err := receive(conn)
	if err != nil {
		return false, fmt.Errorf("waiting for CONNECTED: %w", err)
	}
	if len(frames) == 0 || frames[0].Command != CommandConnected {
		if len(frames) > 0 && frames[0].Command == CommandError {
			return false, fmt.Errorf("broker rejected connection: %s", frames[0].Header("message"))
		}
		return false, fmt.Errorf("%w: expected CONNECTED", ErrMalformedFrame)
	}
	conn.SetReadDeadline(time.Time{})

	subID := uuid.NewString()
	if err := send(conn, NewFrame(CommandSubscribe,
		"id", subID,
		"destination", s.config.Topic,
		"ack", "auto",
	)); err != nil {
		return true, err
	}

	s.setConnected(true)
	s.logger.Info("ブローカーに接続しトピックを購読しました",
		slog.String("topic", s.config.Topic),
		slog.String("subscription_id", subID),
	)

	for {
		frames, err := receive(conn)
		if err != nil {
			if ctx.Err() != nil {
				_ = send(conn, NewFrame(CommandDisconnect))
				return true, ctx.Err()
			}
			return true, err
		}
		for _, f := range frames {
			switch f.Command {
			case CommandMessage:
				s.dispatch(f)
			case CommandError:
				return true, fmt.Errorf("broker error: %s", f.Header("message"))
			}
		}
	}
}

// dispatch はMESSAGEフレームをEventに変換してHubへ配信する。
func (s *Subscriber) dispatch(f Frame) {
	topic := f.Header("destination")
	if topic == "" {
		topic = s.config.Topic
	}
	ev := Event{
		Topic:      topic,
		ReceivedAt: s.now(),
		Body:       json.RawMessage(append([]byte(nil), f.Body...)),
	}
	if err := json.Unmarshal(f.Body, &ev.Notification); err != nil {
		s.logger.Warn("在庫低下通知の本文を解釈できませんでした",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		ev.Notification = model.LowStockNotification{}
	}
	s.metrics.RecordRealtimeEvent()
	s.hub.Publish(ev)
}

func send(conn *websocket.Conn, f Frame) error {
	if err := websocket.Message.Send(conn, string(f.Encode())); err != nil {
		return fmt.Errorf("send %s: %w", f.Command, err)
	}
	return nil
}

func receive(conn *websocket.Conn) ([]Frame, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return nil, err
	}
	return Decode(data)
}
