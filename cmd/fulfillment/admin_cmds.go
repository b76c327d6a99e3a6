package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masakoww/jambistore-app-sub000/cmd/fulfillment/app"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Store.AutoMigrate = false
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.DB().Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func notifyOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-once",
		Short: "Send one batch of due notifications and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, cleanup, err := app.InitWithConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			n, err := a.Worker.Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("sent %d notification(s)\n", n)
			return nil
		},
	}
}

func productCmd() *cobra.Command {
	var (
		id, slug, name, deliveryJSON string
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a product and its delivery config",
		Example: `  fulfillment product put --id p1 --slug netflix-1m --name "Netflix 1 month" \
    --delivery '{"type":"preloaded","instructions":"Log in within 24h"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var dc domain.DeliveryConfig
			if deliveryJSON != "" {
				if err := json.Unmarshal([]byte(deliveryJSON), &dc); err != nil {
					return fmt.Errorf("--delivery: %w", err)
				}
			}
			if _, err := dc.Resolve(); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.DB().Close()
			if err := store.Products().Upsert(cmd.Context(), id, slug, name, dc); err != nil {
				return err
			}
			fmt.Printf("product %s saved\n", id)
			return nil
		},
	}
	put.Flags().StringVar(&id, "id", "", "product id")
	put.Flags().StringVar(&slug, "slug", "", "product slug (stock pool key)")
	put.Flags().StringVar(&name, "name", "", "display name")
	put.Flags().StringVar(&deliveryJSON, "delivery", "", "delivery config JSON")
	_ = put.MarkFlagRequired("id")
	_ = put.MarkFlagRequired("slug")

	cmd := &cobra.Command{Use: "product", Short: "Manage products"}
	cmd.AddCommand(put)
	return cmd
}

func stockCmd() *cobra.Command {
	add := &cobra.Command{
		Use:   "add [product-slug] [file.jsonl]",
		Short: "Load stock items, one JSON object per line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := readJSONLines(args[1])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.DB().Close()
			ids, err := store.Stock().AddItems(cmd.Context(), args[0], payloads...)
			if err != nil {
				return err
			}
			fmt.Printf("added %d item(s) to %s\n", len(ids), args[0])
			return nil
		},
	}
	count := &cobra.Command{
		Use:   "count [product-slug]",
		Short: "Show how many unused items are left",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.DB().Close()
			n, err := store.Stock().CountUnused(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d unused\n", args[0], n)
			return nil
		},
	}

	cmd := &cobra.Command{Use: "stock", Short: "Manage preloaded stock pools"}
	cmd.AddCommand(add, count)
	return cmd
}

func readJSONLines(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, m)
	}
	return out, sc.Err()
}
