package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// DialNostr connects to a relay over a websocket.
func DialNostr(ctx context.Context, url string) (Conn, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &nostrConn{relay: r}, nil
}

type nostrConn struct {
	relay *nostr.Relay
}

func (c *nostrConn) URL() string { return c.relay.URL }

func (c *nostrConn) Subscribe(ctx context.Context, filters nostr.Filters) (*Subscription, error) {
	sub, err := c.relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, err
	}
	return &Subscription{Events: sub.Events, Close: sub.Unsub}, nil
}

func (c *nostrConn) Publish(ctx context.Context, ev nostr.Event) error {
	return c.relay.Publish(ctx, ev)
}

func (c *nostrConn) Done() <-chan struct{} { return c.relay.Context().Done() }

func (c *nostrConn) Close() error { return c.relay.Close() }
