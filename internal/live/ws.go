package live

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// Subscription is one live account stream. Recv blocks until the next
// notification, the stream ends, or the context is done.
type Subscription interface {
	Recv(ctx context.Context) ([]byte, error)
	Unsubscribe()
}

// SubscriptionClient opens account subscriptions.
type SubscriptionClient interface {
	Subscribe(ctx context.Context, account solana.PublicKey) (Subscription, error)
}

// WSClient subscribes to account changes over the Solana websocket endpoint.
// Each Subscribe opens its own connection so a teardown cannot disturb an
// unrelated stream.
type WSClient struct {
	url    string
	logger *zap.Logger
}

func NewWSClient(url string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:    url,
		logger: logger.Named("ws"),
	}
}

func (c *WSClient) Subscribe(ctx context.Context, account solana.PublicKey) (Subscription, error) {
	conn, err := ws.Connect(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("websocket connect to %s failed: %w", c.url, err)
	}

	sub, err := conn.AccountSubscribeWithOpts(account, rpc.CommitmentConfirmed, solana.EncodingBase64)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("account subscribe for %s failed: %w", account, err)
	}

	c.logger.Debug("Account subscription opened", zap.String("account", account.String()))
	return &wsSubscription{conn: conn, sub: sub}, nil
}

type wsSubscription struct {
	conn *ws.Client
	sub  *ws.AccountSubscription
}

func (s *wsSubscription) Recv(ctx context.Context) ([]byte, error) {
	result, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("subscription closed")
	}
	return result.Value.Data.GetBinary(), nil
}

func (s *wsSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
	s.conn.Close()
}
