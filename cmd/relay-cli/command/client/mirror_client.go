package client

// mirror_client.go = follows broadcasts through the relay's Redis mirror

import (
	"context"
	"fmt"

	"livetiming/internal/cache"
)

// WatchMirror calls onPayload for every payload published on the mirror channel until ctx
// ends or onPayload returns an error. It needs no route to the relay, only to its Redis.
func WatchMirror(ctx context.Context, redisURL, password string, onPayload func(payload []byte) error) error {
	repo, err := cache.NewStateRedisRepo(redisURL, password, cache.DefaultTTL)
	if err != nil {
		return err
	}
	defer repo.Close()

	sub, err := repo.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := onPayload([]byte(msg.Payload)); err != nil {
				return err
			}
		}
	}
}
