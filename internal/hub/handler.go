package hub

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"

	"tosti/internal/models"
)

// Authenticator resolves the user behind a sockjs handshake. Anonymous
// viewers get the zero User.
type Authenticator func(r *http.Request) (models.User, error)

// NewHandler serves the sockjs endpoint under prefix. Clients send
// {"action":"subscribe","topic":"shift:12"} to follow a topic.
func NewHandler(prefix string, h *Hub, auth Authenticator) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		user, err := auth(session.Request())
		if err != nil {
			_ = session.Close(4001, "invalid token")
			return
		}

		client := NewClient(uuid.NewString(), user.ID)
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.Unsubscribe(client, parsed.Topic)
				continue
			}
			if !Allowed(parsed.Topic, user.ID) {
				_ = session.Close(4003, "access denied")
				return
			}
			h.Subscribe(client, parsed.Topic)
		}
	})
}
