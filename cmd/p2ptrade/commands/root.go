// Package commands is the p2ptrade command line.
package commands

import (
	"context"
	"net/http"
	"time"

	"p2p_trade/internal/config"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/protocol/envelope"
	orderRepo "p2p_trade/internal/repository/order"
	userRepo "p2p_trade/internal/repository/user"
	"p2p_trade/internal/service/app"
	"p2p_trade/internal/service/attachment"
	"p2p_trade/internal/service/chat"
	"p2p_trade/internal/service/correlation"
	redisSvc "p2p_trade/internal/service/redis"
	"p2p_trade/internal/service/snapshot"
	"p2p_trade/internal/state"
	"p2p_trade/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const retryBase = 2 * time.Second

var (
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
)

func Execute() error {
	v = config.New()

	root := &cobra.Command{
		Use:          "p2ptrade",
		Short:        "Peer-to-peer trading client over nostr relays",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(v, cfgFile); err != nil {
				return err
			}
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			if cfg.LogFile != "" {
				return log.SetOutput(cfg.LogFile)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (toml, yaml or json)")
	pf.StringSlice("relay", nil, "relay websocket url, repeatable")
	pf.String("facilitator", "", "facilitator public key (hex)")
	pf.String("mode", "", "envelope for trade requests: plain, anonymous-wrap or signed-wrap")
	pf.Bool("admin", false, "enable dispute admin commands")
	pf.String("log-level", "", "debug, info, warn or error")
	for key, flag := range map[string]string{
		"relays":      "relay",
		"facilitator": "facilitator",
		"mode":        "mode",
		"admin":       "admin",
		"log_level":   "log-level",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		initCmd(),
		identityCmd(),
		ordersCmd(),
		disputesCmd(),
		orderCmd(),
		adminCmd(),
		chatCmd(),
		attachmentCmd(),
		dashboardCmd(),
	)
	return root.ExecuteContext(context.Background())
}

// env holds the connections one command needs. close releases them.
type env struct {
	mongo *mongo.Client
	db    *mongo.Database
	rdb   *redis.Client
	pool  *nostr.Pool
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	if e.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.mongo.Disconnect(ctx)
	}
}

func openEnv(ctx context.Context) (*env, error) {
	client, err := initMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, err
	}
	e := &env{mongo: client, db: client.Database(cfg.Mongo.Database)}
	e.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	e.pool = nostr.NewPool(cfg.Relays)
	return e, nil
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}

func newReconciler(e *env) *snapshot.Reconciler {
	r := snapshot.NewReconciler(e.pool, cfg.Facilitator)
	r.Lookback = cfg.OrdersLookback
	r.Limit = cfg.SnapshotLimit
	return r
}

func newApp(ctx context.Context, e *env) (*app.App, error) {
	mode, err := cfg.EnvelopeMode()
	if err != nil {
		return nil, err
	}
	codec := envelope.NewCodec(cfg.PoW)

	var sender correlation.Sender = correlation.NewEngine(e.pool, codec, mode)
	if cfg.RequestRetries > 1 {
		sender = correlation.NewRetrying(sender, cfg.RequestRetries, retryBase)
	}

	channel := chat.NewChannel(e.pool, codec)
	channel.Lookback = cfg.ChatLookback

	fetcher := attachment.NewFetcher(&http.Client{})
	fetcher.MaxBytes = cfg.Attachment.MaxBytes
	fetcher.Timeout = cfg.Attachment.Timeout

	a, err := app.New(ctx, app.Deps{
		Users:        userRepo.NewUserRepo(e.db),
		Orders:       orderRepo.NewOrderRepo(e.db),
		ChatKeys:     redisSvc.NewRedis(e.rdb),
		Sender:       sender,
		Reconciler:   newReconciler(e),
		Channel:      channel,
		Fetcher:      fetcher,
		Shared:       state.New(),
		Facilitator:  cfg.Facilitator,
		Timeout:      cfg.RequestTimeout,
		Expiry:       cfg.RequestExpiry,
		Admin:        cfg.Admin,
		PollInterval: cfg.PollInterval,
		DownloadDir:  cfg.Attachment.DownloadDir,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("client ready",
		zap.String("identity", a.IdentityPubKey()),
		zap.Strings("relays", cfg.Relays),
		zap.String("mode", mode.String()))
	return a, nil
}

// withApp opens the connections, builds the client and runs fn.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	a, err := newApp(ctx, e)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}
