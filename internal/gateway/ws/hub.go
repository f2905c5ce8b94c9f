package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/forge/internal/events"
	"github.com/dohr-michael/forge/internal/orchestrator"
)

// TaskControl is the run control surface exposed to WebSocket clients.
type TaskControl interface {
	GetExecutionStatus(taskID string) (orchestrator.ExecutionStatus, error)
	PauseExecution(taskID string) error
	ResumeExecution(taskID, feedback string) error
	CancelExecution(taskID string) error
}

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu     sync.Mutex
	taskID string
}

func (c *Client) wants(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskID == "" || c.taskID == taskID
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	control     TaskControl
	unsubscribe func()
}

// NewHub creates a hub streaming bus events to clients. control may be nil,
// in which case task requests are rejected.
func NewHub(bus *events.Bus, control TaskControl) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		control: control,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.TaskID, e)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(e.TaskID, data)
	})

	return h
}

// broadcast sends data to every client following taskID. A client whose
// buffer is full misses the frame.
func (h *Hub) broadcast(taskID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(taskID) {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS upgrades the request. A task_id query parameter pre-selects the
// task the client follows.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local gateway; any origin
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		taskID: r.URL.Query().Get("task_id"),
	}
	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			slog.Debug("ws unknown frame type", "type", frame.Type)
			continue
		}
		c.handleRequest(frame)
	}
}

func (c *Client) handleRequest(frame Frame) {
	var params TaskParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
	}

	method := Method(frame.Method)
	if method == MethodSubscribe {
		c.mu.Lock()
		c.taskID = params.TaskID
		c.mu.Unlock()
		c.sendOK(frame.ID, map[string]string{"task_id": params.TaskID})
		return
	}

	control := c.hub.control
	if control == nil {
		c.sendError(frame.ID, "task control not available")
		return
	}
	if params.TaskID == "" {
		c.sendError(frame.ID, "task_id is required")
		return
	}

	var (
		result any = map[string]string{"status": "ok"}
		err    error
	)
	switch method {
	case MethodTaskStatus:
		result, err = control.GetExecutionStatus(params.TaskID)
	case MethodPauseTask:
		err = control.PauseExecution(params.TaskID)
	case MethodResumeTask:
		err = control.ResumeExecution(params.TaskID, params.Feedback)
	case MethodCancelTask:
		err = control.CancelExecution(params.TaskID)
	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
		return
	}
	if err != nil {
		c.sendError(frame.ID, err.Error())
		return
	}
	c.sendOK(frame.ID, result)
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	c.reply(NewResponseFrame(id, true, payload, ""))
}

func (c *Client) sendError(id string, errMsg string) {
	c.reply(NewResponseFrame(id, false, nil, errMsg))
}

func (c *Client) reply(f Frame, err error) {
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
