// Package mockapi implements an in-memory stand-in for the remote
// conversation service, for local development and integration tests.
//
// It serves the same routes and JSON shapes as the production service:
//
//	POST   /api/chat/message
//	POST   /api/chat/conversation_history
//	GET    /api/chat/all_conversations
//	DELETE /api/chat/conversation
//
// Agent replies are canned; retrieval and generation stay out of scope.
package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitechat/chatsync/internal/logging"
)

const timestampLayout = "2006-01-02T15:04:05"

type storedMessage struct {
	ID        int64
	Text      string
	Sender    string
	Timestamp time.Time
}

type conversation struct {
	ID           string
	Messages     []storedMessage
	LastActivity time.Time
}

// Server holds the in-memory conversation table.
type Server struct {
	log *logging.Logger

	mu            sync.Mutex
	conversations map[string]*conversation
	nextMessageID int64
}

// NewServer creates an empty mock conversation service.
func NewServer(log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	return &Server{
		log:           log,
		conversations: make(map[string]*conversation),
		nextMessageID: 1,
	}
}

// Router builds the gin engine serving the mock API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	api := r.Group("/api")
	{
		api.POST("/chat/message", s.handleSendMessage)
		api.POST("/chat/conversation_history", s.handleConversationHistory)
		api.GET("/chat/all_conversations", s.handleAllConversations)
		api.DELETE("/chat/conversation", s.handleDeleteConversation)
	}
	return r
}

type sendMessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type conversationIDRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)

	s.mu.Lock()
	if conversationID == "" {
		conversationID = uuid.NewString()
		s.log.Info("created conversation", zap.String("conversation_id", conversationID))
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &conversation{ID: conversationID}
		s.conversations[conversationID] = conv
	}

	now := time.Now().UTC()
	conv.Messages = append(conv.Messages, storedMessage{
		ID:        s.nextMessageID,
		Text:      message,
		Sender:    "user",
		Timestamp: now,
	})
	s.nextMessageID++

	reply := fmt.Sprintf("You asked: %q. This is a canned reply.", message)
	conv.Messages = append(conv.Messages, storedMessage{
		ID:        s.nextMessageID,
		Text:      reply,
		Sender:    "agent",
		Timestamp: now,
	})
	s.nextMessageID++
	conv.LastActivity = now
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"response":        reply,
		"conversation_id": conversationID,
		"chunks_used":     0,
	})
}

func (s *Server) handleConversationHistory(c *gin.Context) {
	var req conversationIDRequest
	if !bindJSON(c, &req) {
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Conversation ID is required in request body and cannot be empty"})
		return
	}

	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	var history []gin.H
	if ok {
		history = make([]gin.H, 0, len(conv.Messages))
		for _, m := range conv.Messages {
			history = append(history, gin.H{
				"id":              m.ID,
				"conversation_id": conversationID,
				"message":         m.Text,
				"sender":          m.Sender,
				"timestamp":       m.Timestamp.Format(timestampLayout),
			})
		}
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No messages found for this conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation_history": history})
}

func (s *Server) handleAllConversations(c *gin.Context) {
	s.mu.Lock()
	convs := make([]*conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	s.mu.Unlock()

	// Most recent first, like the production service
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivity.After(convs[j].LastActivity)
	})

	out := make([]gin.H, 0, len(convs))
	for _, conv := range convs {
		first := ""
		for _, m := range conv.Messages {
			if m.Sender == "user" {
				first = m.Text
				break
			}
		}
		out = append(out, gin.H{
			"conversation_id": conv.ID,
			"timestamp":       conv.LastActivity.Format(timestampLayout),
			"first_message":   first,
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	var req conversationIDRequest
	if !bindJSON(c, &req) {
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Conversation ID is required in request body and cannot be empty"})
		return
	}

	s.mu.Lock()
	_, ok := s.conversations[conversationID]
	delete(s.conversations, conversationID)
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No messages found for this conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

// bindJSON enforces the service's request validation: JSON content type
// and a decodable body.
func bindJSON(c *gin.Context, out interface{}) bool {
	contentType := c.GetHeader("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Type must be application/json"})
		return false
	}
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body is required and must be valid JSON"})
		return false
	}
	return true
}
