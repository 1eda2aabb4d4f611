package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/gateway"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var docs []string
	var urls []string
	var showThinking bool
	var ask = &cobra.Command{
		Use:   "ask [query]",
		Short: "Run one research query from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			gw, err := gateway.NewGenAIGateway(ctx, cfg.Gateway.APIKey)
			if err != nil {
				return err
			}
			registry := swarm.NewRegistry(cfg, gw, nil, func(msg string) {
				fmt.Fprintln(os.Stderr, "warning:", msg)
			})
			if err := registry.EnsureStandingExperts(ctx, append(cfg.Swarm.BriefingURLs, urls...)); err != nil {
				return err
			}
			// A document that fails to brief is dropped with a warning;
			// the remaining documents still join the swarm.
			for _, path := range docs {
				if err := briefFile(ctx, registry, path); err != nil {
					fmt.Fprintf(os.Stderr, "warning: brief %s: %v\n", path, err)
				}
			}

			orch := swarm.NewOrchestrator(cfg, gw, registry, nil)
			res, err := orch.Run(ctx, swarm.Request{Query: args[0]})
			if err != nil {
				return fmt.Errorf("%s", res.Report)
			}

			if res.Status == swarm.StatusAwaitingAnswers && res.Clarification != nil {
				fmt.Println("The query needs clarification before research can continue:")
				for i, q := range res.Clarification.Questions {
					fmt.Printf("%d. %s\n", i+1, q.Question)
					for _, opt := range q.Options {
						fmt.Printf("   - %s\n", opt)
					}
				}
				return nil
			}
			if showThinking && res.Thinking != "" {
				fmt.Println("--- reasoning ---")
				fmt.Println(res.Thinking)
				fmt.Println("--- report ---")
			}
			fmt.Println(res.Report)
			return nil
		},
	}
	ask.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	ask.Flags().StringArrayVar(&docs, "doc", nil, "document to brief an expert with (repeatable)")
	ask.Flags().StringArrayVar(&urls, "url", nil, "page to brief the URL expert with (repeatable)")
	ask.Flags().BoolVar(&showThinking, "thinking", false, "print the reasoning segment")

	return ask
}

func briefFile(ctx context.Context, registry *swarm.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return registry.BriefDocumentExpert(ctx, swarm.Document{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Data:     data,
	})
}
