// Package cli implements the operator subcommands of the docuvault binary.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/docuvault/docuvault/internal/app"
	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/documents"
	"github.com/docuvault/docuvault/internal/platform/cache"
	"github.com/docuvault/docuvault/internal/platform/db"
)

const usage = `usage: docuvault <command> [flags]

commands:
  access-check  evaluate document access for a user
  transitions   list allowed status transitions for a user
  jobs          trigger or inspect background jobs

run docuvault with no arguments to start the HTTP server.
`

// Run dispatches an operator subcommand. Returns a process exit code.
func Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	switch args[0] {
	case "access-check":
		return runAccessCheck(ctx, args[1:])
	case "transitions":
		return runTransitions(ctx, args[1:])
	case "jobs":
		return runJobs(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "docuvault: unknown command %q\n", args[0])
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

type runtimeDeps struct {
	cfg    *app.Config
	pool   *pgxpool.Pool
	redis  *redis.Client
	authz  *authz.Service
	gate   *authz.Gate
	docs   *documents.Repository
	closer func()
}

func connect(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	// Subcommands fail fast when the stores are unreachable, unlike the
	// server which starts degraded and relies on the rule store fallbacks.
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repo := authz.NewRepository(pool)
	service := authz.NewService(repo)
	ruleStore := authz.NewRuleStore(repo, redisClient, logger,
		authz.WithRuleTTL(cfg.AuthzRuleTTL),
		authz.WithFetchTimeout(cfg.AuthzStoreTimeout))
	gate := authz.NewGate(ruleStore, logger)

	return &runtimeDeps{
		cfg:   cfg,
		pool:  pool,
		redis: redisClient,
		authz: service,
		gate:  gate,
		docs:  documents.NewRepository(pool),
		closer: func() {
			pool.Close()
			_ = redisClient.Close()
		},
	}, nil
}

func runAccessCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("access-check", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id (required)")
	documentID := fs.String("document", "", "document id (required)")
	groupID := fs.String("group-id", "", "group id carried by the user's session")
	groupName := fs.String("group-name", "", "group display name carried by the user's session")
	permission := fs.String("permission", "", "also explain this permission per role")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	deps, err := connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "access-check: %v\n", err)
		return 1
	}
	defer deps.closer()

	cli := NewAccessCheckCLI(deps.authz, deps.docs)
	return cli.Command(ctx, AccessCheckOptions{
		UserID:     *userID,
		DocumentID: *documentID,
		GroupID:    *groupID,
		GroupName:  *groupName,
		Permission: *permission,
		JSONOutput: *jsonOut,
	})
}

func runTransitions(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("transitions", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id (required)")
	from := fs.String("from", "", "current document status (required)")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	deps, err := connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transitions: %v\n", err)
		return 1
	}
	defer deps.closer()

	cli := NewTransitionsCLI(deps.authz, deps.gate)
	return cli.Command(ctx, TransitionsOptions{
		UserID:     *userID,
		FromStatus: *from,
		JSONOutput: *jsonOut,
	})
}

func runJobs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	trigger := fs.String("trigger", "", "enqueue the named job")
	stats := fs.Bool("stats", false, "print queue statistics")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: load config: %v\n", err)
		return 1
	}
	cli, err := NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = cli.Close() }()

	switch {
	case *trigger != "":
		info, err := cli.Trigger(ctx, *trigger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: trigger: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", *trigger, info.ID, info.Queue)
		return 0
	case *stats:
		queueStats, err := cli.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: stats: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			queueStats.Queue, queueStats.Pending, queueStats.Active, queueStats.Scheduled, queueStats.Retry)
		return 0
	default:
		fmt.Fprintln(os.Stderr, "jobs: either --trigger <name> or --stats is required")
		return 2
	}
}
