package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"dms/internal/app"
	"dms/internal/config"
	"dms/internal/dms"
	"dms/internal/encryption"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var (
	actor   string
	verbose bool
)

// readConfig reads the config file from the default location.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// withApp runs fn against a freshly wired app for the named command and
// closes the app afterwards. Commands acting for a principal require --as.
func withApp(cmd *cobra.Command, command string, needActor bool, fn func(ctx context.Context, a *app.DMSApp) error) error {
	if needActor && actor == "" {
		return fmt.Errorf("--as is required")
	}
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	var console io.Writer
	if verbose {
		console = os.Stderr
	}
	op := app.NewOperation(command, actor)
	a, err := app.NewDMSApp(cmd.Context(), cfg, op, console)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	defer a.Close()

	return op.Finish(fn(cmd.Context(), a))
}

func parseLevel(s string) (dms.AccessLevel, error) {
	switch l := dms.AccessLevel(s); l {
	case dms.LevelViewer, dms.LevelEditor:
		return l, nil
	default:
		return dms.LevelNone, fmt.Errorf("unknown access level %q (want viewer or editor)", s)
	}
}

// printResults prints one line per batch item and returns an error when any
// item failed.
func printResults(verb string, results []dms.ItemResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("FAIL  %s  %v\n", r.ID, r.Err)
			continue
		}
		fmt.Printf("ok    %s\n", r.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d of %d item(s) failed", verb, failed, len(results))
	}
	return nil
}

func printNode(n *dms.Node) {
	kind := "F"
	if n.IsFolder() {
		kind = "D"
	}
	trashed := ""
	if n.IsTrashed() {
		trashed = "  [trashed]"
	}
	fmt.Printf("%s  %s  %-30s  %10d  %s%s\n", kind, n.ID, n.Name, n.Size, n.ModifiedAt.Format("2006-01-02 15:04:05"), trashed)
}

var rootCmd = &cobra.Command{
	Use:           "dms",
	Short:         "Document management service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		if encrypt {
			cfg.Encryption.Type = "age"
		}
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		if encrypt {
			recipient, err := encryption.GenerateKey(cfg.Encryption.KeyPath)
			if err != nil {
				return fmt.Errorf("failed to generate encryption key: %w", err)
			}
			fmt.Printf("Encryption key: %s (public key %s)\n", cfg.Encryption.KeyPath, recipient)
			fmt.Println("Back up the key file. Objects cannot be read without it.")
		}
		fmt.Println("Run 'dms db migrate' before first use.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		st, err := app.MigrateDatabase(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Schema at version %d\n", st.Current)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		st, err := app.DatabaseStatus(cfg)
		if err != nil {
			return err
		}
		dirty := ""
		if st.Dirty {
			dirty = " (dirty)"
		}
		fmt.Printf("Current: %d%s\nLatest:  %d\nPending: %d\n", st.Current, dirty, st.Latest, st.Pending())
		return nil
	},
}

// tree commands
var mkdirCmd = &cobra.Command{
	Use:   "mkdir NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		return withApp(cmd, "CreateNode", true, func(ctx context.Context, a *app.DMSApp) error {
			n, err := a.Service().CreateNode(ctx, actor, parent, args[0], dms.KindFolder)
			if err != nil {
				return err
			}
			fmt.Printf("Created folder %s (%s)\n", n.Name, n.ID)
			return nil
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [FOLDER_ID]",
	Short: "List a folder, or your roots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trashed, _ := cmd.Flags().GetBool("trashed")
		parent := ""
		if len(args) > 0 {
			parent = args[0]
		}
		return withApp(cmd, "ListChildren", true, func(ctx context.Context, a *app.DMSApp) error {
			nodes, err := a.Service().ListChildren(ctx, actor, parent, trashed)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Println("Empty.")
				return nil
			}
			for _, n := range nodes {
				printNode(n)
			}
			return nil
		})
	},
}

var sharedCmd = &cobra.Command{
	Use:   "shared",
	Short: "List nodes shared with you",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListSharedWithMe", true, func(ctx context.Context, a *app.DMSApp) error {
			nodes, err := a.Service().ListSharedWithMe(ctx, actor)
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Println("Nothing shared with you.")
				return nil
			}
			for _, n := range nodes {
				printNode(n)
			}
			return nil
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv NODE_ID [NEW_PARENT_ID]",
	Short: "Move a node; without a parent it becomes a root",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent := ""
		if len(args) > 1 {
			parent = args[1]
		}
		return withApp(cmd, "Move", true, func(ctx context.Context, a *app.DMSApp) error {
			n, err := a.Service().Move(ctx, actor, args[0], parent)
			if err != nil {
				return err
			}
			fmt.Printf("Moved %s\n", n.Name)
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename NODE_ID NEW_NAME",
	Short: "Rename a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Rename", true, func(ctx context.Context, a *app.DMSApp) error {
			n, err := a.Service().Rename(ctx, actor, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed to %s\n", n.Name)
			return nil
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log NODE_ID",
	Short: "View a node's action log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Actions", true, func(ctx context.Context, a *app.DMSApp) error {
			entries, err := a.Service().Actions(ctx, actor, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No actions recorded.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-16s  %-12s  %s\n", e.At.Format("2006-01-02 15:04:05"), e.Action, e.ActorID, e.Detail)
			}
			return nil
		})
	},
}

// content commands
var uploadCmd = &cobra.Command{
	Use:   "upload LOCAL_PATH",
	Short: "Upload a file, or a directory with its folder structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		rel, _ := cmd.Flags().GetString("path")
		contentType, _ := cmd.Flags().GetString("content-type")
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		if info.IsDir() {
			return withApp(cmd, "UploadDir", true, func(ctx context.Context, a *app.DMSApp) error {
				results, err := a.UploadDir(ctx, actor, parent, args[0])
				if err != nil {
					return err
				}
				return printResults("upload", results)
			})
		}
		if rel == "" {
			rel = filepath.Base(args[0])
		}
		return withApp(cmd, "Upload", true, func(ctx context.Context, a *app.DMSApp) error {
			res, err := a.UploadFile(ctx, actor, parent, args[0], rel, contentType)
			if err != nil {
				return err
			}
			for _, f := range res.Folders {
				fmt.Printf("Created folder %s (%s)\n", f.Name, f.ID)
			}
			verb := "Uploaded"
			if !res.Created {
				verb = "Updated"
			}
			fmt.Printf("%s %s (%s) version %d\n", verb, res.Node.Name, res.Node.ID, res.Version.Number)
			return nil
		})
	},
}

var catCmd = &cobra.Command{
	Use:   "cat FILE_ID",
	Short: "Write a file's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetString("version")
		return withApp(cmd, "OpenVersion", true, func(ctx context.Context, a *app.DMSApp) error {
			rc, err := a.Service().OpenVersion(ctx, actor, args[0], version)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(os.Stdout, rc)
			return err
		})
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions FILE_ID",
	Short: "List a file's versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListVersions", true, func(ctx context.Context, a *app.DMSApp) error {
			versions, err := a.Service().ListVersions(ctx, actor, args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Printf("v%-3d  %s  %-16s  %-8s  %-9s  %s  %s\n",
					v.Number, v.ID, v.Action, v.Tier, v.RestoreStatus,
					v.CreatedAt.Format("2006-01-02 15:04:05"), v.CreatedBy)
			}
			return nil
		})
	},
}

var restoreVersionCmd = &cobra.Command{
	Use:   "restore-version FILE_ID VERSION_ID",
	Short: "Make an older version current again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RestoreVersion", true, func(ctx context.Context, a *app.DMSApp) error {
			v, err := a.Service().RestoreVersion(ctx, actor, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Restored as version %d\n", v.Number)
			return nil
		})
	},
}

var duplicateCmd = &cobra.Command{
	Use:   "duplicate FILE_ID",
	Short: "Copy a file with a fresh version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		name, _ := cmd.Flags().GetString("name")
		return withApp(cmd, "Duplicate", true, func(ctx context.Context, a *app.DMSApp) error {
			n, err := a.Service().Duplicate(ctx, actor, args[0], to, name)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s)\n", n.Name, n.ID)
			return nil
		})
	},
}

// access commands
var shareCmd = &cobra.Command{
	Use:   "share NODE_ID PRINCIPAL LEVEL",
	Short: "Grant access, or request it when you are not the owner",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(args[2])
		if err != nil {
			return err
		}
		return withApp(cmd, "Grant", true, func(ctx context.Context, a *app.DMSApp) error {
			out, err := a.Service().Grant(ctx, actor, args[0], args[1], level)
			if err != nil {
				return err
			}
			if out.Request != nil {
				fmt.Printf("Share request %s sent to the owner\n", out.Request.ID)
				return nil
			}
			fmt.Printf("Granted %s %s access\n", args[1], level)
			return nil
		})
	},
}

var unshareCmd = &cobra.Command{
	Use:   "unshare NODE_ID PRINCIPAL",
	Short: "Revoke a direct grant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Revoke", true, func(ctx context.Context, a *app.DMSApp) error {
			if err := a.Service().Revoke(ctx, actor, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Revoked access of %s\n", args[1])
			return nil
		})
	},
}

var accessCmd = &cobra.Command{
	Use:   "access NODE_ID",
	Short: "Show grants, or one principal's effective level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal, _ := cmd.Flags().GetString("principal")
		return withApp(cmd, "ListGrants", true, func(ctx context.Context, a *app.DMSApp) error {
			if principal != "" {
				acc, err := a.Service().ResolveEffectiveLevel(ctx, args[0], principal)
				if err != nil {
					return err
				}
				level := acc.Level
				if level == dms.LevelNone {
					level = "none"
				}
				fmt.Printf("%s: %s (%s", principal, level, acc.Source)
				if acc.InheritedFrom != "" {
					fmt.Printf(" from %s", acc.InheritedFrom)
				}
				fmt.Println(")")
				return nil
			}

			grants, err := a.Service().ListGrants(ctx, actor, args[0])
			if err != nil {
				return err
			}
			if len(grants) == 0 {
				fmt.Println("No grants.")
				return nil
			}
			for _, g := range grants {
				source := "direct"
				if g.Inherited {
					source = "inherited from " + g.InheritedFrom
				}
				fmt.Printf("%-16s  %-6s  %s\n", g.PrincipalID, g.Level, source)
			}
			return nil
		})
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade NODE_ID LEVEL",
	Short: "Ask the owner for a higher access level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, "RequestUpgrade", true, func(ctx context.Context, a *app.DMSApp) error {
			req, err := a.Service().RequestUpgrade(ctx, actor, args[0], level)
			if err != nil {
				return err
			}
			fmt.Printf("Upgrade request %s sent to the owner\n", req.ID)
			return nil
		})
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Review share and upgrade requests",
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending requests on your nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListPendingRequests", true, func(ctx context.Context, a *app.DMSApp) error {
			reqs, err := a.Service().ListPendingRequests(ctx, actor)
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				fmt.Println("No pending requests.")
				return nil
			}
			for _, r := range reqs {
				fmt.Printf("%s  %-7s  %s wants %s to have %s on %s\n",
					r.ID, r.Kind, r.RequesterID, r.TargetID, r.Level, r.FileID)
			}
			return nil
		})
	},
}

func reviewCmd(use, short string, approve bool) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " REQUEST_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return withApp(cmd, "ReviewShareRequest", true, func(ctx context.Context, a *app.DMSApp) error {
				req, err := a.Service().ReviewShareRequest(ctx, actor, args[0], approve, reason)
				if err != nil {
					return err
				}
				fmt.Printf("Request %s %s\n", req.ID, req.Status)
				return nil
			})
		},
	}
	c.Flags().String("reason", "", "Reason passed on to the requester")
	return c
}

// lifecycle commands
var trashCmd = &cobra.Command{
	Use:   "trash NODE_ID...",
	Short: "Move nodes to the trash",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Trash", true, func(ctx context.Context, a *app.DMSApp) error {
			if len(args) == 1 {
				results, err := a.Service().Trash(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printResults("trash", results)
			}
			return printResults("trash", a.Service().BulkTrash(ctx, actor, args))
		})
	},
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your trashed nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListTrash", true, func(ctx context.Context, a *app.DMSApp) error {
			entries, err := a.Service().ListTrash(ctx, actor)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Trash is empty.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %-6s  %-30s  purge after %s\n",
					e.ID, e.FileID, e.Kind, e.Name, e.ScheduledDeleteAt.Format("2006-01-02 15:04"))
			}
			return nil
		})
	},
}

var untrashCmd = &cobra.Command{
	Use:   "untrash NODE_ID",
	Short: "Restore a node from the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RestoreFromTrash", true, func(ctx context.Context, a *app.DMSApp) error {
			n, err := a.Service().RestoreFromTrash(ctx, actor, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", n.Name)
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [ENTRY_ID...]",
	Short: "Permanently delete trash entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		due, _ := cmd.Flags().GetBool("due")
		if !due && len(args) == 0 {
			return fmt.Errorf("give entry ids or --due")
		}
		return withApp(cmd, "Purge", !due, func(ctx context.Context, a *app.DMSApp) error {
			if due {
				results, err := a.Service().PurgeDue(ctx)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Println("Nothing due.")
				}
				return printResults("purge", results)
			}
			return printResults("purge", a.Service().BulkPurge(ctx, actor, args))
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive FILE_ID...",
	Short: "Move files to the cold tier",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Archive", true, func(ctx context.Context, a *app.DMSApp) error {
			return printResults("archive", a.Service().BulkArchive(ctx, actor, args))
		})
	},
}

var tierRestoreCmd = &cobra.Command{
	Use:   "tier-restore [FILE_ID...]",
	Short: "Request retrieval of cold files, or poll pending retrievals",
	RunE: func(cmd *cobra.Command, args []string) error {
		poll, _ := cmd.Flags().GetBool("poll")
		if !poll && len(args) == 0 {
			return fmt.Errorf("give file ids or --poll")
		}
		return withApp(cmd, "RequestTierRestore", !poll, func(ctx context.Context, a *app.DMSApp) error {
			if poll {
				results, err := a.Service().PollTierRestores(ctx)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Println("No restores pending.")
				}
				return printResults("poll", results)
			}
			return printResults("tier-restore", a.Service().BulkTierRestore(ctx, actor, args))
		})
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show your notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, "Notifications", true, func(ctx context.Context, a *app.DMSApp) error {
			notes, err := a.Service().Notifications(ctx, actor, limit)
			if err != nil {
				return err
			}
			if len(notes) == 0 {
				fmt.Println("No notifications.")
				return nil
			}
			for _, n := range notes {
				fmt.Printf("%s  %s\n", n.CreatedAt.Format("2006-01-02 15:04:05"), n.Message)
			}
			return nil
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run retention, tier-restore polling and metrics until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose = true
		return withApp(cmd, "worker", false, func(ctx context.Context, a *app.DMSApp) error {
			return a.RunWorker(ctx)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actor, "as", "", "Principal to act as")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also write log records to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// requests subcommands
	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(reviewCmd("approve", "Approve a request", true))
	requestsCmd.AddCommand(reviewCmd("reject", "Reject a request", false))

	// trash subcommands
	trashCmd.AddCommand(trashListCmd)

	// flags
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt stored objects with a newly generated age key")
	mkdirCmd.Flags().String("parent", "", "Parent folder id (default: a new root)")
	lsCmd.Flags().Bool("trashed", false, "Include trashed nodes")
	uploadCmd.Flags().String("parent", "", "Parent folder id (default: your roots)")
	uploadCmd.Flags().String("path", "", "Relative path below the parent, folders included (default: the file name)")
	uploadCmd.Flags().String("content-type", "", "Content type (default: detected)")
	catCmd.Flags().String("version", "", "Version id (default: latest)")
	duplicateCmd.Flags().String("to", "", "Target folder id (default: the source's folder)")
	duplicateCmd.Flags().String("name", "", "Name of the copy")
	accessCmd.Flags().String("principal", "", "Show the effective level of this principal")
	purgeCmd.Flags().Bool("due", false, "Purge every entry whose retention window has elapsed")
	tierRestoreCmd.Flags().Bool("poll", false, "Complete finished retrievals")
	notificationsCmd.Flags().IntP("limit", "n", 50, "Maximum number of notifications to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(sharedCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(restoreVersionCmd)
	rootCmd.AddCommand(duplicateCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(unshareCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(trashCmd)
	rootCmd.AddCommand(untrashCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(tierRestoreCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(workerCmd)
}
