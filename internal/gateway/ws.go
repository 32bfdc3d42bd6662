package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/hitoshi/photoshare/internal/auth"
	"github.com/hitoshi/photoshare/internal/model"
)

// graphql-wsプロトコルのメッセージ種別
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgKeepAlive           = "ka"
	msgStart               = "start"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
	msgStop                = "stop"
)

const (
	wsSubprotocol     = "graphql-ws"
	keepAliveInterval = 10 * time.Second
	writeTimeout      = 10 * time.Second
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type startPayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// initPayload はconnection_initのペイロード。接続単位の資格情報を運ぶ。
type initPayload struct {
	Authorization string `json:"Authorization"`
}

// IdentityResolver はbearer資格情報からユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type IdentityResolver interface {
	ResolveToken(ctx context.Context, credential string) (*model.User, error)
}

// SocketHandler はgraphql-wsプロトコルでのサブスクリプション配信を処理する。
//
// HTTPリクエストヘッダーではなくconnection_initのペイロードで資格情報を
// 受け取るため、アイデンティティ解決は接続確立後にこのハンドラー自身が行う。
// 解決されたユーザーはその接続上の全操作に適用される。
type SocketHandler struct {
	schema   *graphql.Schema
	guard    *Guard
	identity IdentityResolver
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// shutdownCtx のキャンセルで全接続の操作が停止する
	shutdownCtx context.Context
}

// NewSocketHandler はSocketHandlerを生成する。
// shutdownCtxはサーバーのグレースフルシャットダウンと連動させる。
func NewSocketHandler(
	schema *graphql.Schema,
	guard *Guard,
	identity IdentityResolver,
	shutdownCtx context.Context,
	logger *slog.Logger,
) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if shutdownCtx == nil {
		shutdownCtx = context.Background()
	}
	return &SocketHandler{
		schema:   schema,
		guard:    guard,
		identity: identity,
		logger:   logger,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{wsSubprotocol},
			// オリジン制約は上流のCORSミドルウェアに任せる
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		shutdownCtx: shutdownCtx,
	}
}

// IsWebSocketUpgrade はリクエストがWebSocketハンドシェイクであるかを返す。
// /graphqlはPOSTとWebSocketを同一パスで受けるため、ルーターが振り分けに使う。
func IsWebSocketUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ServeHTTP はWebSocketハンドシェイクを受けて接続ループを開始する。
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &socketConn{
		handler: h,
		conn:    conn,
		ops:     make(map[string]context.CancelFunc),
	}
	c.serve()
}

// socketConn は1本のWebSocket接続の状態を保持する。
type socketConn struct {
	handler *SocketHandler
	conn    *websocket.Conn

	writeMu sync.Mutex

	opsMu sync.Mutex
	ops   map[string]context.CancelFunc

	// baseCtx は接続単位のコンテキスト。connection_initで解決した
	// ユーザーを保持し、全操作の親になる。
	baseCtx context.Context
}

func (c *socketConn) serve() {
	logger := c.handler.logger
	defer c.teardown()

	// 1. 最初のメッセージはconnection_initでなければならない
	var init wsMessage
	if err := c.conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
		c.send(wsMessage{Type: msgConnectionError, Payload: errorPayload("connection_init expected")})
		return
	}

	// 2. ペイロードの資格情報からアイデンティティを解決する
	ctx, cancel := context.WithCancel(c.handler.shutdownCtx)
	defer cancel()
	c.baseCtx = ctx

	var payload initPayload
	if len(init.Payload) > 0 {
		// 解析できないペイロードは匿名として扱う
		json.Unmarshal(init.Payload, &payload)
	}
	if c.handler.identity != nil && payload.Authorization != "" {
		u, err := c.handler.identity.ResolveToken(ctx, payload.Authorization)
		if err != nil {
			logger.Warn("failed to resolve socket identity", slog.String("error", err.Error()))
		} else if u != nil {
			c.baseCtx = auth.WithCurrentUser(ctx, u)
		}
	}

	c.send(wsMessage{Type: msgConnectionAck})
	c.send(wsMessage{Type: msgKeepAlive})

	// 3. キープアライブとシャットダウン監視
	go c.keepAlive(ctx)

	// 4. メッセージループ
	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgStart:
			c.start(msg)
		case msgStop:
			c.stop(msg.ID, true)
		case msgConnectionTerminate:
			return
		}
	}
}

// start は操作を検証し、種別に応じて1回実行またはサブスクリプション配信を行う。
func (c *socketConn) start(msg wsMessage) {
	var p startPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("failed to parse start payload")})
		return
	}

	// HTTP経路と同じ実行前検証を通す
	if err := c.handler.guard.Validate(p.Query); err != nil {
		c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: apiErrorPayload(err)})
		return
	}

	opCtx, cancel := context.WithCancel(c.baseCtx)
	c.opsMu.Lock()
	if _, exists := c.ops[msg.ID]; exists {
		c.opsMu.Unlock()
		cancel()
		c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("operation id already in use")})
		return
	}
	c.ops[msg.ID] = cancel
	c.opsMu.Unlock()

	if operationKind(p.Query, p.OperationName) == ast.Subscription {
		go c.pumpSubscription(opCtx, msg.ID, p)
		return
	}

	// クエリ・ミューテーションは1回実行して完了
	go func() {
		defer c.stop(msg.ID, false)
		response := c.handler.schema.Exec(opCtx, p.Query, p.OperationName, p.Variables)
		data, err := json.Marshal(response)
		if err != nil {
			c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload("failed to encode response")})
			return
		}
		c.send(wsMessage{ID: msg.ID, Type: msgData, Payload: data})
		c.send(wsMessage{ID: msg.ID, Type: msgComplete})
	}()
}

// pumpSubscription はスキーマのサブスクリプションチャネルをソケットへ転送する。
func (c *socketConn) pumpSubscription(ctx context.Context, id string, p startPayload) {
	defer c.stop(id, false)

	responses, err := c.handler.schema.Subscribe(ctx, p.Query, p.OperationName, p.Variables)
	if err != nil {
		c.send(wsMessage{ID: id, Type: msgError, Payload: errorPayload(err.Error())})
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.send(wsMessage{ID: id, Type: msgComplete})
			return
		case response, ok := <-responses:
			if !ok {
				c.send(wsMessage{ID: id, Type: msgComplete})
				return
			}
			data, err := json.Marshal(response)
			if err != nil {
				c.handler.logger.Error("failed to encode subscription event", slog.String("error", err.Error()))
				continue
			}
			c.send(wsMessage{ID: id, Type: msgData, Payload: data})
		}
	}
}

// stop は操作を停止する。sendCompleteはクライアント起点のstopでのみtrue。
func (c *socketConn) stop(id string, sendComplete bool) {
	c.opsMu.Lock()
	cancel, ok := c.ops[id]
	delete(c.ops, id)
	c.opsMu.Unlock()

	if ok {
		cancel()
		if sendComplete {
			c.send(wsMessage{ID: id, Type: msgComplete})
		}
	}
}

func (c *socketConn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.conn.Close()
			return
		case <-ticker.C:
			c.send(wsMessage{Type: msgKeepAlive})
		}
	}
}

func (c *socketConn) teardown() {
	c.opsMu.Lock()
	for id, cancel := range c.ops {
		cancel()
		delete(c.ops, id)
	}
	c.opsMu.Unlock()
	c.conn.Close()
}

// send はソケットへの書き込みを直列化する。
func (c *socketConn) send(msg wsMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.handler.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	}
}

// operationKind は実行する操作の種別を返す。判定できない場合はQuery扱い。
func operationKind(query, operationName string) ast.Operation {
	doc, err := parser.ParseQuery(&ast.Source{Name: "operation", Input: query})
	if err != nil {
		return ast.Query
	}
	for _, op := range doc.Operations {
		if operationName == "" || op.Name == operationName {
			return op.Operation
		}
	}
	return ast.Query
}

func errorPayload(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"message": message})
	return data
}

func apiErrorPayload(err error) json.RawMessage {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		data, _ := json.Marshal(map[string]interface{}{
			"message":    apiErr.Message,
			"extensions": apiErr.Extensions(),
		})
		return data
	}
	return errorPayload(err.Error())
}
