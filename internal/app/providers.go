package app

import (
	"context"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/kafka"
	"github.com/nguyentranbao-ct/chat-sync/internal/repo/socket"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
	"github.com/nguyentranbao-ct/chat-sync/internal/store"
	"github.com/nguyentranbao-ct/chat-sync/internal/store/memory"
	"github.com/nguyentranbao-ct/chat-sync/internal/store/mongodb"
)

const connectTimeout = 10 * time.Second

// newStore picks the persistence backend: mongo when a URI is configured,
// the in-memory store otherwise.
func newStore(lc fx.Lifecycle, conf *config.Config) (store.Store, error) {
	if conf.Databases.MongoDB.URI == "" {
		log.Infow(context.Background(), "no mongodb uri configured, using in-memory store")
		return memory.NewStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	db, err := mongodb.NewConnection(ctx, conf.Databases.MongoDB.URI, conf.Databases.MongoDB.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close(ctx)
		},
	})
	return mongodb.NewStore(db), nil
}

func newSocketClient(conf *config.Config, rt *router.Router) *socket.Client {
	return socket.NewClient(conf, rt)
}

// StartIngest runs the push pipelines. Without a socket the router is
// treated as permanently connected so Kafka events are not dropped.
func StartIngest(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	rt *router.Router,
	sock *socket.Client,
	consumer kafka.Consumer,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if conf.Socket.Enabled {
				sock.Start(ctx)
			} else {
				rt.SetConnected(ctx, true)
			}
			go func() {
				if err := consumer.Start(context.Background()); err != nil {
					log.Errorw(ctx, "kafka consumer stopped", "error", err)
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if conf.Socket.Enabled {
				if err := sock.Stop(ctx); err != nil {
					return err
				}
			}
			return consumer.Stop(ctx)
		},
	})
}
