package websocket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"marketchat/pkg/logger"
)

const (
	TargetConversation = "conv"
	TargetUser         = "user"
)

const (
	headerEventType      = "Event-Type"
	headerConversationID = "Conversation-Id"
	headerExcludeUser    = "Exclude-User"
)

// Frame is one serialized event addressed to a conversation group or to all
// connections of a user.
type Frame struct {
	Kind           string
	ID             string
	EventType      string
	ConversationID string
	ExcludeUser    string
	Data           []byte
}

// Relay carries frames between gateway nodes. Every node, the publisher
// included, receives each frame exactly once through its subscription.
type Relay interface {
	Publish(ctx context.Context, frame Frame) error
	Subscribe(deliver func(Frame)) error
	Close() error
}

// NATSRelay maps frames onto subjects <prefix>.conv.<id> and
// <prefix>.user.<id>.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewNATSRelay(url, prefix string) (*NATSRelay, error) {
	if prefix == "" {
		prefix = "marketchat"
	}
	nc, err := nats.Connect(url,
		nats.Name("marketchat-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS relay disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS relay reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSRelay{nc: nc, prefix: prefix}, nil
}

func (r *NATSRelay) Subject(kind, id string) string {
	return r.prefix + "." + kind + "." + id
}

func (r *NATSRelay) Publish(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(r.Subject(frame.Kind, frame.ID))
	msg.Data = frame.Data
	msg.Header.Set(headerEventType, frame.EventType)
	if frame.ConversationID != "" {
		msg.Header.Set(headerConversationID, frame.ConversationID)
	}
	if frame.ExcludeUser != "" {
		msg.Header.Set(headerExcludeUser, frame.ExcludeUser)
	}
	return r.nc.PublishMsg(msg)
}

// Subscribe delivers every frame under the prefix. NATS calls deliver
// sequentially, so per-subject order is kept.
func (r *NATSRelay) Subscribe(deliver func(Frame)) error {
	sub, err := r.nc.Subscribe(r.prefix+".>", func(msg *nats.Msg) {
		frame, ok := r.parse(msg)
		if !ok {
			logger.Warn("NATS relay: ignoring message on %s", msg.Subject)
			return
		}
		deliver(frame)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s.>: %w", r.prefix, err)
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	return nil
}

func (r *NATSRelay) parse(msg *nats.Msg) (Frame, bool) {
	rest := strings.TrimPrefix(msg.Subject, r.prefix+".")
	kind, id, ok := strings.Cut(rest, ".")
	if !ok || id == "" || (kind != TargetConversation && kind != TargetUser) {
		return Frame{}, false
	}
	frame := Frame{Kind: kind, ID: id, Data: msg.Data}
	if msg.Header != nil {
		frame.EventType = msg.Header.Get(headerEventType)
		frame.ConversationID = msg.Header.Get(headerConversationID)
		frame.ExcludeUser = msg.Header.Get(headerExcludeUser)
	}
	return frame, true
}

// Healthy reports an error unless the connection is up.
func (r *NATSRelay) Healthy(ctx context.Context) error {
	if status := r.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection is %s", status)
	}
	return nil
}

func (r *NATSRelay) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		_ = sub.Drain()
	}
	return r.nc.Drain()
}
