package commands

import (
	"strings"

	"github.com/maheshrc27/postpilot/internal/bootstrap"
	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/service"
	"github.com/spf13/cobra"
)

var (
	createMedia []string
	listStatus  string
)

var createCmd = &cobra.Command{
	Use:   "create TEXT...",
	Short: "Create a post for review",
	Long: `Create a Pending post from free-form text and optional local images.

Examples:
  postctl create "Lunch special today" --media photos/img1.png --media photos/img2.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			post, err := app.Lifecycle.Create(cmd.Context(), service.GenerateRequest{
				OriginalInput: strings.Join(args, " "),
				MediaPaths:    createMedia,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), post)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts, optionally by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			posts, err := app.Lifecycle.List(cmd.Context(), models.PostFilter{Status: models.PostStatus(listStatus)})
			if err != nil {
				return err
			}
			if posts == nil {
				posts = []*models.Post{}
			}
			return printJSON(cmd.OutOrStdout(), posts)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show UID",
	Short: "Show one post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			post, err := app.Lifecycle.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), post)
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve UID...",
	Short: "Approve Pending posts and give each the next free publish slot",
	Long: `Approve one or more Pending posts. Slots are assigned in argument order,
one per day at the publish hour. If any uid cannot be approved nothing is.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			approvals, err := app.Lifecycle.ApproveBatch(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), approvals)
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject UID",
	Short: "Reject a Pending post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			post, err := app.Lifecycle.Reject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), post)
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit UID CAPTION...",
	Short: "Replace the caption of a Pending post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			post, err := app.Lifecycle.Edit(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), post)
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove UID",
	Short: "Delete a Pending or Rejected post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *bootstrap.App) error {
			if err := app.Lifecycle.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"removed": args[0]})
		})
	},
}

func init() {
	createCmd.Flags().StringArrayVarP(&createMedia, "media", "m", nil, "Local image to attach (repeatable)")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Only posts in this status (Pending, Approved, Rejected, Posted, Failed)")

	rootCmd.AddCommand(createCmd, listCmd, showCmd, approveCmd, rejectCmd, editCmd, removeCmd)
}
