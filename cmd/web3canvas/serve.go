package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Inferara/web3-canvas-sub000/internal/observability"
	"github.com/Inferara/web3-canvas-sub000/internal/server"
	"github.com/Inferara/web3-canvas-sub000/pkg/canvas"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr      string
		noRestore bool
		noSave    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas HTTP and websocket API",
		Long: `Serve one canvas session over HTTP. The last saved graph is restored on
start and saved again on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			gin.SetMode(cfg.Server.Mode)

			ctx := cmd.Context()
			metrics := observability.NewMetrics(true)
			svc, err := open(ctx, cfg, canvas.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer svc.Close()

			if !noRestore {
				restored, err := svc.session.RestoreLast(ctx)
				if err != nil {
					svc.logger.Warn("could not restore the saved graph", "error", err)
				} else if restored {
					svc.logger.Info("restored saved graph", "nodes", svc.session.Store().Len())
				}
			}

			srv := server.New(svc.session, server.WithLogger(svc.logger), server.WithMetrics(metrics))
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx, cfg.Server)
			})
			g.Go(func() error {
				<-gctx.Done()
				if noSave {
					return nil
				}
				snap, err := svc.session.Save(context.WithoutCancel(gctx), "shutdown")
				if err != nil {
					return errors.Wrap(err, "save on shutdown")
				}
				svc.logger.Info("graph saved", "snapshot", snap.ID)
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	cmd.Flags().BoolVar(&noRestore, "no-restore", false, "start from an empty graph")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not save the graph on shutdown")
	return cmd
}
