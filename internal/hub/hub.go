package hub

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
)

type Client struct {
	ID     string
	UserID int64
	Send   chan []byte
	topics map[string]struct{}
}

func NewClient(id string, userID int64) *Client {
	return &Client{ID: id, UserID: userID, Send: make(chan []byte, 16), topics: make(map[string]struct{})}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topic == "" {
		client.topics = make(map[string]struct{})
		return
	}
	delete(client.topics, topic)
}

// Broadcast delivers payload once to every client subscribed to any of the
// topics. Slow clients lose the message instead of blocking the relay.
func (h *Hub) Broadcast(payload []byte, topics []string) {
	if len(topics) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !subscribed(client, topics) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func subscribed(client *Client, topics []string) bool {
	for _, topic := range topics {
		if _, ok := client.topics[topic]; ok {
			return true
		}
	}
	return false
}

// Allowed reports whether userID may follow topic. Shift screens are
// public; user topics only reach their owner.
func Allowed(topic string, userID int64) bool {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok {
		return false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return false
	}
	switch kind {
	case "shift":
		return true
	case "user":
		return userID != 0 && n == userID
	default:
		return false
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
