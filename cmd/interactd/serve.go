package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opentool-run/interact/engine"
	"github.com/opentool-run/interact/session"
	"github.com/opentool-run/interact/session/store"
	"github.com/opentool-run/interact/tool"
	"github.com/opentool-run/interact/transport"
)

var (
	serveTransport      string
	serveAddr           string
	serveStorage        string
	serveRedisAddr      string
	serveRedisPrefix    string
	serveMaxSessions    int
	serveDefaultTimeout time.Duration
	serveGraceDelay     time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "stdio", "stdio or ws")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address for --transport ws")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "memory", "memory or redis")
	serveCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "localhost:6379", "redis address when --storage redis")
	serveCmd.Flags().StringVar(&serveRedisPrefix, "redis-prefix", "interactd", "redis key prefix when --storage redis")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", 1000, "maximum concurrent sessions")
	serveCmd.Flags().DurationVar(&serveDefaultTimeout, "default-timeout", 5*time.Minute, "default session TTL")
	serveCmd.Flags().DurationVar(&serveGraceDelay, "grace-delay", session.DefaultGraceDelay, "how long a terminal session is kept around before destruction")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interaction engine over stdio or WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := engine.NewConfig(
			engine.WithDefaultTimeout(serveDefaultTimeout),
			engine.WithMaxSessions(serveMaxSessions),
			engine.WithGraceDelay(serveGraceDelay),
		)

		st, err := newStore(cfg.PruneInterval)
		if err != nil {
			return err
		}

		mgr := session.NewManager(st, serveMaxSessions, cfg.GraceDelay)
		defer mgr.Close()

		reg := tool.NewRegistry()
		for _, t := range demoTools() {
			if err := reg.Register(t); err != nil {
				return fmt.Errorf("register tool %q: %w", t.Name, err)
			}
		}

		eng := engine.NewEngine(mgr, reg, cfg)

		switch serveTransport {
		case "stdio":
			srv := transport.NewStdio(eng, os.Stdin, os.Stdout, nil)
			return srv.Serve(cmd.Context())
		case "ws":
			ws := transport.NewWS(eng, nil)
			fmt.Fprintf(os.Stderr, "interactd: listening on %s\n", serveAddr)
			return http.ListenAndServe(serveAddr, ws.Handler())
		default:
			return fmt.Errorf("unknown transport %q (want stdio or ws)", serveTransport)
		}
	},
}

func newStore(pruneInterval time.Duration) (store.Store, error) {
	switch serveStorage {
	case "memory":
		return store.NewMemory(pruneInterval, serveMaxSessions), nil
	case "redis":
		return store.NewRedis(store.RedisConfig{
			Addr:             serveRedisAddr,
			Prefix:           serveRedisPrefix,
			ExpirationEvents: true,
		})
	default:
		return nil, fmt.Errorf("unknown storage %q (want memory or redis)", serveStorage)
	}
}
