package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/suggestion"
)

const (
	// wsAuthTimeout 是连接建立后等待首条鉴权消息的时限。
	wsAuthTimeout = 10 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsPongWait    = 2 * wsPingPeriod
	wsWriteWait   = 5 * time.Second
)

// WsHandler 把 user_notify:<id> 频道上的建议通知转发给已鉴权的 WebSocket 客户端。
type WsHandler struct {
	redisClient redis.UniversalClient
	authService *auth.AuthService
	guard       *account.Guard
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只接受同源连接。
func NewWsHandler(redisClient redis.UniversalClient, authService *auth.AuthService, guard *account.Guard, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WsHandler{
		redisClient: redisClient,
		authService: authService,
		guard:       guard,
		logger:      logger,
		upgrader:    websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsAck struct {
	Type   string `json:"type"`
	UserID uint   `json:"user_id"`
}

// HandleConnection 升级连接，等待首条 {"type":"auth","token":...} 消息，
// 订阅成功后回复 {"type":"ready"}，之后只下行推送通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	userID, err := h.authenticate(ctx, conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	channel := suggestion.UserChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()
	// Receive 等待订阅确认，保证 ready 之后发布的消息不会丢
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error("subscribe notification channel failed", slog.Any("error", err))
		closeWith(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	if err := writeJSON(conn, wsAck{Type: "ready", UserID: userID}); err != nil {
		log.Warn("write ready ack failed", slog.Any("error", err))
		return
	}
	log.Info("websocket subscribed", slog.String("channel", channel))

	go drain(conn, cancel)
	err = forward(ctx, conn, pubsub.Channel())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

func (h *WsHandler) authenticate(ctx context.Context, conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "auth" || msg.Token == "" {
		return 0, errors.New("auth required")
	}
	id, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		return 0, errors.New("unauthenticated")
	}
	user, err := h.guard.Resolve(ctx, &id)
	if err != nil {
		return 0, errors.New("onboarding required")
	}
	return user.ID, nil
}

// drain 读取并丢弃客户端消息，用于处理 pong 与检测断开。
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func forward(ctx context.Context, conn *websocket.Conn, messages <-chan *redis.Message) error {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
