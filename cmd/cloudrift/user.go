package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cloudrift/cloudrift/internal/catalog"
	"github.com/cloudrift/cloudrift/internal/config"
	"github.com/cloudrift/cloudrift/pkg/bytesize"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage storage accounts",
	}

	var quotaStr string
	addCmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Create a storage account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			total, err := cfg.DefaultQuotaBytes()
			if err != nil {
				return err
			}
			if quotaStr != "" {
				if total, err = bytesize.Parse(quotaStr); err != nil {
					return fmt.Errorf("invalid quota %q: %w", quotaStr, err)
				}
			}

			cat, err := catalog.Open(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer cat.Close()

			user, err := cat.CreateUser(context.Background(), userID, total)
			if err != nil {
				return err
			}
			fmt.Printf("user %d created with %s allowance\n", user.ID, bytesize.Format(user.TotalCapacity))
			return nil
		},
	}
	addCmd.Flags().StringVar(&quotaStr, "quota", "", "storage allowance, e.g. 10GB (defaults to quota.default_total)")

	quotaCmd := &cobra.Command{
		Use:   "quota <user-id>",
		Short: "Show a user's storage usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cat, err := catalog.Open(cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer cat.Close()

			view, err := cat.Quota(context.Background(), userID)
			if err != nil {
				return err
			}
			fmt.Printf("user %d: %s used of %s (%s available)\n",
				view.UserID,
				bytesize.Format(view.Used),
				bytesize.Format(view.Total),
				bytesize.Format(view.Available()))
			return nil
		},
	}

	cmd.AddCommand(addCmd, quotaCmd)
	return cmd
}
