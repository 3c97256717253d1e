package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atomizerhq/atomizer/internal/buildinfo"
	"github.com/atomizerhq/atomizer/internal/metrics"
	"github.com/atomizerhq/atomizer/internal/server"
	"github.com/atomizerhq/atomizer/pkg/atomizer"
)

func main() {
	root := &cobra.Command{
		Use:           "atomizer",
		Short:         "Personal knowledge base: ingest sources, extract atoms, synthesize ideas",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), mcpCmd(), ingestCmd(), synthesizeCmd(), reconcileCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// signalContext cancels on SIGINT/SIGTERM for graceful shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, closing...")
		cancel()
	}()
	return ctx, cancel
}

func newService() (*atomizer.Service, error) {
	cfg, err := atomizer.FromEnv()
	if err != nil {
		return nil, err
	}
	metrics.InitFromEnv()
	return atomizer.NewService(cfg)
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background embed reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := newService()
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Printf("Error closing service: %v", err)
				}
			}()

			go svc.Reconciler().Run(ctx)

			log.Printf("Atomizer API listening on %s", addr)
			return server.NewHTTPServer(svc).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			go svc.Reconciler().Run(ctx)
			log.Println("Starting Atomizer MCP server...")
			return server.NewMCPServer(svc).Run(ctx)
		},
	}
}

func ingestCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "ingest <file.md>",
		Short: "Ingest a markdown file as a source and extract its atoms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			src, err := svc.IngestMarkdown(cmd.Context(), string(data), category)
			if err != nil {
				return err
			}
			status, err := svc.Status(cmd.Context(), src.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %q as source %s (state: %s, atoms: %t)\n",
				src.Title, src.ID, status.State, status.HasAtoms)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "source category id")
	return cmd
}

func synthesizeCmd() *cobra.Command {
	var methodID string
	var save bool
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Pick a dissimilar atom pair and synthesize a new idea",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			pair, err := svc.SelectPair(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Pair (%s):\n  A: %s\n  B: %s\n", pair.Method, pair.AtomA.Title, pair.AtomB.Title)

			if methodID == "" {
				methods, err := svc.ListSynthesisMethods(cmd.Context())
				if err != nil {
					return err
				}
				if len(methods) == 0 {
					return fmt.Errorf("no synthesis methods seeded")
				}
				methodID = methods[0].ID
			}

			sa, err := svc.Synthesize(cmd.Context(), pair.AtomA.ID, pair.AtomB.ID, methodID)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n%s\n", sa.Title, sa.MainContent)
			if save {
				if err := svc.SaveSynthesizedAtom(cmd.Context(), sa); err != nil {
					return err
				}
				fmt.Printf("\nSaved as %s\n", sa.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&methodID, "method", "", "synthesis method id (default: first in catalog)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the synthesized atom")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one embed-reconciliation sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			defer svc.Close()
			svc.Reconciler().Sweep(cmd.Context())
			return nil
		},
	}
}
