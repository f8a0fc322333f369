package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lectern/internal"
	"github.com/starford/lectern/internal/extraction"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/readerservice"
	pkgconfig "github.com/starford/lectern/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

type serviceAction func(ctx context.Context, svc *readerservice.Service, args []string) (any, error)

// withService wraps a one-shot command: it checks the positional argument
// count, opens the service, runs fn and prints its result as JSON.
func withService(nargs int, fn serviceAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args().Slice()
		if len(args) < nargs {
			return fmt.Errorf("%s: expected %d arguments: %s", cmd.Name, nargs, cmd.ArgsUsage)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		svc, closeRegistry, err := internal.OpenService(cfg, logger)
		if err != nil {
			return err
		}
		defer closeRegistry()

		out, err := fn(ctx, svc, args)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

// parsePosition accepts "12" or "page:line".
func parsePosition(s string, kind models.PositionKind) (models.Position, error) {
	if kind == models.PositionPDF {
		pageStr, lineStr, ok := strings.Cut(s, ":")
		if !ok {
			return models.Position{}, fmt.Errorf("position %q: want page:line", s)
		}
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return models.Position{}, fmt.Errorf("position %q: %w", s, err)
		}
		line, err := strconv.Atoi(lineStr)
		if err != nil {
			return models.Position{}, fmt.Errorf("position %q: %w", s, err)
		}
		return models.PDF(page, line), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return models.Position{}, fmt.Errorf("position %q: %w", s, err)
	}
	return models.Line(n), nil
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API, the event stream and the folder watchers",
			Action: serve,
		},
		{
			Name:   "mcp",
			Usage:  "Serve the review tools over MCP on stdin/stdout",
			Action: serveMCP,
		},
		{
			Name:      "register",
			Usage:     "Open or create the library stored in a folder",
			ArgsUsage: "<folder>",
			Action: withService(1, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.RegisterLibrary(ctx, a[0])
			}),
		},
		{
			Name:  "libraries",
			Usage: "List registered libraries",
			Action: withService(0, func(ctx context.Context, svc *readerservice.Service, _ []string) (any, error) {
				return svc.Libraries(ctx)
			}),
		},
		{
			Name:      "add",
			Usage:     "Put a document into the new queue",
			ArgsUsage: "<library> <path>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.AddToQueue(ctx, a[0], a[1])
			}),
		},
		{
			Name:      "note",
			Usage:     "Show the scheduling state of a note",
			ArgsUsage: "<library> <path>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.Note(ctx, a[0], a[1])
			}),
		},
		{
			Name:      "feedback",
			Usage:     "Record review feedback for a note",
			ArgsUsage: "<library> <path> <feedback>",
			Action: withService(3, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.RecordFeedback(ctx, a[0], a[1], a[2])
			}),
		},
		{
			Name:      "move",
			Usage:     "Move a note to another queue",
			ArgsUsage: "<library> <path> <queue>",
			Action: withService(3, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.MoveToQueue(ctx, a[0], a[1], a[2])
			}),
		},
		{
			Name:      "forget",
			Usage:     "Reset a note's schedule",
			ArgsUsage: "<library> <path>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.Forget(ctx, a[0], a[1])
			}),
		},
		{
			Name:      "extract",
			Usage:     "Copy a range of a note into a new excerpt",
			ArgsUsage: "<library> <parent> <type> <start> <end>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "answer", Usage: "Answer text (flashcard only)"},
				&cli.StringFlag{Name: "text", Usage: "Excerpt text to use instead of the parent's"},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withService(5, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
					t, err := models.ParseExtractType(a[2])
					if err != nil {
						return nil, err
					}
					start, err := parsePosition(a[3], t.PositionKind())
					if err != nil {
						return nil, err
					}
					end, err := parsePosition(a[4], t.PositionKind())
					if err != nil {
						return nil, err
					}
					return svc.Extract(ctx, a[0], extraction.Request{
						ParentPath: a[1],
						Type:       t,
						Range:      models.Range{Start: start, End: end},
						Text:       cmd.String("text"),
						Answer:     cmd.String("answer"),
					})
				})(ctx, cmd)
			},
		},
		{
			Name:      "due",
			Usage:     "List notes due today; without a library, across all libraries",
			ArgsUsage: "[library]",
			Action: withService(0, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				if len(a) == 0 {
					return svc.DueAcrossLibraries(ctx)
				}
				return svc.DueToday(ctx, a[0])
			}),
		},
		{
			Name:      "validate",
			Usage:     "Check an excerpt against its parent",
			ArgsUsage: "<library> <path>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.ValidateRange(ctx, a[0], a[1])
			}),
		},
		{
			Name:      "expand",
			Usage:     "Print a note with its excerpts spliced back in",
			ArgsUsage: "<library> <path>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.ExpandContent(ctx, a[0], a[1])
			}),
		},
		{
			Name:      "children",
			Usage:     "Validate and expand the excerpts of a note",
			ArgsUsage: "<library> <path>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.Children(ctx, a[0], a[1])
			}),
		},
		{
			Name:      "find",
			Usage:     "Fuzzy-match note paths",
			ArgsUsage: "<library> <query>",
			Action: withService(2, func(ctx context.Context, svc *readerservice.Service, a []string) (any, error) {
				return svc.FindNotes(ctx, a[0], a[1])
			}),
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:     "lectern",
		Usage:    "Incremental reading with spaced repetition over Markdown and PDF folders",
		Commands: commands(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
