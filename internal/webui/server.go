package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/plura-ai/onboard/internal/logger"
	"github.com/plura-ai/onboard/internal/onboard"
	"github.com/plura-ai/onboard/internal/persist"
)

// Chatter handles one user turn, forwarding prose fragments as they
// arrive.
type Chatter interface {
	SendMessage(ctx context.Context, sessionID, userID, prompt string, onFragment func(string)) (onboard.Reply, error)
}

type Server struct {
	assistant Chatter
	store     *persist.Store
	upgrader  websocket.Upgrader
	startedAt time.Time
}

func NewServer(assistant Chatter, store *persist.Store) *Server {
	return &Server{
		assistant: assistant,
		store:     store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now().UTC(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/ws", s.handleWS)
	mux.HandleFunc("/api/signup", s.handleSignup)
	mux.HandleFunc("/api/workspace", s.handleWorkspace)
	mux.HandleFunc("/api/project", s.handleProject)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(defaultIndexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"started_at": s.startedAt.Format(time.RFC3339),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
}

func (r *chatRequest) normalize() error {
	r.Text = strings.TrimSpace(r.Text)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.UserID = strings.TrimSpace(r.UserID)
	if r.Text == "" {
		return errText
	}
	if r.SessionID == "" {
		r.SessionID = uuid.New().String()
	}
	if r.UserID == "" {
		r.UserID = "web-user"
	}
	return nil
}

var errText = jsonError{"text is required"}

type jsonError struct{ msg string }

func (e jsonError) Error() string { return e.msg }

// handleChat is the blocking variant: the reply is returned whole once
// the turn commits. Streaming clients use /api/ws instead.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if err := req.normalize(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	reply, err := s.assistant.SendMessage(r.Context(), req.SessionID, req.UserID, req.Text, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"reply":      reply,
	})
}

// wsFrame is one server-to-client message on the chat socket.
type wsFrame struct {
	Type  string         `json:"type"` // "fragment" | "reply" | "error"
	Text  string         `json:"text,omitempty"`
	Reply *onboard.Reply `json:"reply,omitempty"`
}

// handleWS runs a chat session over a websocket, pushing prose
// fragments as the model produces them and a final reply frame once
// the turn has committed.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[WebUI] Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("[WebUI] Websocket read: %v", err)
			}
			return
		}
		if err := req.normalize(); err != nil {
			_ = conn.WriteJSON(wsFrame{Type: "error", Text: err.Error()})
			continue
		}

		reply, err := s.assistant.SendMessage(r.Context(), req.SessionID, req.UserID, req.Text, func(frag string) {
			_ = conn.WriteJSON(wsFrame{Type: "fragment", Text: frag})
		})
		if err != nil {
			_ = conn.WriteJSON(wsFrame{Type: "error", Text: err.Error()})
			continue
		}
		_ = conn.WriteJSON(wsFrame{Type: "reply", Reply: &reply})
	}
}

type signupRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// handleSignup registers or refreshes the identity the greeting is
// composed from.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := s.store.UpsertUser(req.UserID, req.Name, req.Email); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type workspaceRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// handleWorkspace is the submit target of the workspace form.
func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req workspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and name are required"})
		return
	}
	ws, err := s.store.CreateWorkspace(req.UserID, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspace": ws})
}

type projectRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

// handleProject is the submit target of the project form.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.WorkspaceID) == "" || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workspace_id and name are required"})
		return
	}
	proj, err := s.store.CreateProject(req.WorkspaceID, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": proj})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const defaultIndexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Plura Onboarding</title>
  <style>
    body { font-family: "Segoe UI", sans-serif; margin: 0; background: linear-gradient(145deg,#f7fafc,#e9eef7); color: #1f2937; }
    .wrap { max-width: 900px; margin: 0 auto; padding: 20px; }
    .panel { background: #fff; border-radius: 12px; box-shadow: 0 8px 30px rgba(15,23,42,.08); padding: 16px; }
    #log { min-height: 320px; max-height: 60vh; overflow: auto; white-space: pre-wrap; border: 1px solid #d1d5db; border-radius: 8px; padding: 12px; background: #f9fafb; }
    .row { display: flex; gap: 8px; margin-top: 10px; }
    input { flex: 1; padding: 10px; border: 1px solid #cbd5e1; border-radius: 8px; }
    button { padding: 10px 16px; border: 0; border-radius: 8px; background: #0f766e; color: #fff; cursor: pointer; }
    button:hover { background: #0d9488; }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="panel">
      <h2>Plura Onboarding</h2>
      <div id="log"></div>
      <div class="row">
        <input id="msg" placeholder="Say onboard me to get started..." />
        <button id="send">Send</button>
      </div>
    </div>
  </div>
  <script>
    const log = document.getElementById('log');
    const msg = document.getElementById('msg');
    const send = document.getElementById('send');
    const sessionId = crypto.randomUUID();
    const append = (role, text) => { log.textContent += role + ': ' + text + '\n\n'; log.scrollTop = log.scrollHeight; };
    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/ws');
    let pending = '';
    ws.onmessage = (ev) => {
      const frame = JSON.parse(ev.data);
      if (frame.type === 'fragment') { pending += frame.text; return; }
      if (frame.type === 'reply') {
        const d = frame.reply.display;
        append('Plura', d.text || pending || JSON.stringify(d));
        pending = '';
        return;
      }
      append('Plura', 'error: ' + frame.text);
      pending = '';
    };
    function sendMessage() {
      const text = msg.value.trim();
      if (!text) return;
      append('You', text);
      msg.value = '';
      ws.send(JSON.stringify({ session_id: sessionId, user_id: 'web-user', text }));
    }
    send.addEventListener('click', sendMessage);
    msg.addEventListener('keydown', (e) => { if (e.key === 'Enter') sendMessage(); });
  </script>
</body>
</html>`
