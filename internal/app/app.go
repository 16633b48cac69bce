package app

import (
	"github.com/carousell/ct-go/pkg/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/kafka"
	"github.com/nguyentranbao-ct/chat-sync/internal/queryindex"
	"github.com/nguyentranbao-ct/chat-sync/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/chat-sync/internal/router"
	"github.com/nguyentranbao-ct/chat-sync/internal/server"
	"github.com/nguyentranbao-ct/chat-sync/internal/unread"
	"github.com/nguyentranbao-ct/chat-sync/internal/usecase"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	log.Debugw("config loaded", log.Reflect("config", conf))
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newStore,
			newAccountant,
			queryindex.NewIndex,
			router.New,

			chatapi.NewClient,
			kafka.NewConsumer,
			newSocketClient,

			usecase.NewChannelUsecase,
			server.NewHandler,
		),
		fx.Supply(conf),
		fx.Invoke(funcs...),
	)
}

func newAccountant(conf *config.Config) *unread.Accountant {
	return unread.NewAccountant(conf.User.ID)
}
