package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irisfin/riskagent/internal/agent"
	"github.com/irisfin/riskagent/internal/model"
)

type chatMessage struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

type chatReply struct {
	Type          string `json:"type"`
	Reply         string `json:"reply,omitempty"`
	ThreadID      string `json:"thread_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	MemoryStorage string `json:"memory_storage,omitempty"`
	Code          string `json:"code,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// handleChatWS runs one agent turn per inbound JSON message. Turns execute
// sequentially on the connection; the thread id from the first reply lets
// clients keep a continuous conversation.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)

	for {
		var msg chatMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if strings.TrimSpace(msg.Content) == "" {
			s.writeChatReply(conn, chatReply{
				Type:   "error",
				Code:   "invalid_message",
				Detail: "content is required",
			})
			continue
		}

		resp, err := s.runner.RunTurn(r.Context(), agent.TurnRequest{
			UserID:   msg.UserID,
			ThreadID: msg.ThreadID,
			Input: []model.Message{
				{Role: model.RoleUser, Content: msg.Content},
			},
		})
		if err != nil {
			s.writeChatReply(conn, chatReply{
				Type:   "error",
				Code:   "turn_failed",
				Detail: err.Error(),
			})
			continue
		}

		s.writeChatReply(conn, chatReply{
			Type:          "reply",
			Reply:         resp.Reply,
			ThreadID:      resp.ThreadID,
			UserID:        resp.UserID,
			MemoryStorage: resp.MemoryStorage,
		})
	}
}

func (s *Server) writeChatReply(conn *websocket.Conn, reply chatReply) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(reply)
}
