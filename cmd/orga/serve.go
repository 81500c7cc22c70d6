package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"organigramm/internal/cache"
	"organigramm/internal/engine"
	"organigramm/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serves the API under --base-path, Prometheus metrics at /metrics and the
webhook dispatcher. ORGA_JWT_SECRET is required; ORGA_REDIS_ADDR enables the
position cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("ORGA_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if redisAddr := viper.GetString("redis-addr"); redisAddr != "" {
					client, err := cache.Connect(ctx, redisAddr, viper.GetString("redis-password"))
					if err != nil {
						return err
					}
					defer client.Close()
					e.Cache = cache.NewPositions(client, cache.DefaultTTL, logger)
					logger.Info("position cache enabled", zap.String("addr", redisAddr))
				}
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return err
				}
				fmt.Printf("Serving Organigramm API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", ln.Addr(), basePath, basePath)
				return server.Serve(ctx, ln, server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, DevLogin: devLogin, Logger: logger},
				})
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login (development only)")
	return cmd
}
