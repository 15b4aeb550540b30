package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/pkg/canvas"
)

// settleDebounce collapses the burst of events an editor save produces
const settleDebounce = 150 * time.Millisecond

// maxDeliveryRounds bounds --process-messages when actors keep replying
const maxDeliveryRounds = 100

// Output formats of eval
const (
	formatTable   = "table"
	formatJSON    = "json"
	formatMermaid = "mermaid"
)

func newEvalCmd(opts *rootOptions) *cobra.Command {
	var (
		watch   bool
		format  string
		process bool
	)
	cmd := &cobra.Command{
		Use:   "eval FILE",
		Short: "Evaluate a flow file and print every node",
		Long: `Load an exported flow file, settle every node and print the result.

With --watch the file is evaluated again whenever it changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatTable, formatJSON, formatMermaid:
			default:
				return errors.Errorf("unknown output format %q", format)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cfg.Engine.Timers = false
			cfg.Queue.Manual = true

			svc, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			run := func() error {
				return evalFile(cmd.Context(), svc.session, args[0], process, format, cmd.OutOrStdout())
			}
			if err := run(); err != nil {
				if !watch {
					return err
				}
				svc.logger.Warn("evaluation failed", "file", args[0], "error", err)
			}
			if !watch {
				return nil
			}
			return watchFile(cmd.Context(), args[0], svc.logger, run)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-evaluate when the file changes")
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json or mermaid")
	cmd.Flags().BoolVar(&process, "process-messages", false, "deliver pending simulation messages before printing")
	return cmd
}

func evalFile(ctx context.Context, s *canvas.Session, path string, process bool, format string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := s.Import(ctx, data); err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	s.Wait()
	if process {
		for i := 0; i < maxDeliveryRounds && s.ProcessMessages() > 0; i++ {
			s.Wait()
		}
	}

	switch format {
	case formatJSON:
		return flowfile.Encode(out, s.Graph())
	case formatMermaid:
		_, err := io.WriteString(out, s.Store().Mermaid())
		return err
	default:
		return printNodes(out, s.Graph())
	}
}

func printNodes(out io.Writer, g graph.Graph) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tOUTPUT")
	for _, n := range g.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.Kind, n.Data.Status, describe(n.Data))
	}
	return tw.Flush()
}

// describe renders a node's output for a terminal
func describe(d graph.NodeData) string {
	if d.Out == nil {
		return "-"
	}
	if km, ok := d.Out.KeyMaterial(); ok {
		return "address " + codec.TryDecodeString(km.Address)
	}
	text := codec.TryDecodeString(d.Out.Scalar())
	if d.Message != "" {
		text += " (" + d.Message + ")"
	}
	return text
}

// watchFile runs fn after each change to path until ctx ends. The directory
// is watched since editors often replace the file on save.
func watchFile(ctx context.Context, path string, logger hclog.Logger, fn func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	logger.Info("watching", "file", abs)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settleDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-fire:
			if err := fn(); err != nil {
				logger.Warn("evaluation failed", "file", abs, "error", err)
			}
		}
	}
}
