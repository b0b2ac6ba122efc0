// Package main provides the chatflow command line: offline validation,
// import and export of flow documents.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/graph"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var errInvalidFlow = errors.New("flow is invalid")

func main() {
	command := &cli.Command{
		Name:                  "chatflow",
		Usage:                 "Validate, import and export flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			validateCommand(),
			importCommand(),
			exportCommand(),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Check flow documents without storing them",
		ArgsUsage: "<file>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.NArg() == 0 {
				return errors.New("no flow document given")
			}

			return validateFiles(command.Root().Writer, command.Args().Slice())
		},
	}
}

func validateFiles(w io.Writer, paths []string) error {
	registry := cmd.NewRegistry(log.WithModule("chatflow"))
	invalid := false

	for _, path := range paths {
		doc, err := readDocument(path)
		if err != nil {
			return err
		}

		_, err = graph.Compile(doc.Flow, doc.Nodes, doc.Edges, registry)

		var graphErr *graph.Error

		switch {
		case errors.As(err, &graphErr):
			invalid = true

			fmt.Fprintf(w, "%s: invalid\n", path)

			for _, p := range graphErr.Problems {
				fmt.Fprintf(w, "  - %s\n", p)
			}
		case err != nil:
			return err
		default:
			fmt.Fprintf(w, "%s: ok\n", path)
		}
	}

	if invalid {
		return errInvalidFlow
	}

	return nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Store a flow document as a new flow",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.BoolFlag{
				Name:  "activate",
				Usage: "Activate the flow once imported",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.NArg() != 1 {
				return errors.New("expected exactly one flow document")
			}

			doc, err := readDocument(command.Args().First())
			if err != nil {
				return err
			}

			logger := log.WithModule("chatflow")

			p := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				_ = p.Close(ctx)
			}()

			flowService := services.NewFlow(p, cmd.NewRegistry(logger), nil, logger)

			flow, err := importDocument(ctx, flowService, doc, command.Bool("activate"))
			if err != nil {
				return err
			}

			fmt.Fprintf(command.Root().Writer, "imported flow %s (%s)\n", flow.ID, flow.Status)

			return nil
		},
	}
}

func importDocument(ctx context.Context, flowService *services.Flow, doc *Document, activate bool) (*models.Flow, error) {
	flow, err := flowService.Create(ctx, doc.Flow)
	if err != nil {
		return nil, err
	}

	_, err = flowService.SaveGraph(ctx, flow.ID, doc.Nodes, doc.Edges)
	if err != nil {
		return nil, err
	}

	if activate {
		flow, err = flowService.Activate(ctx, flow.ID)
		if err != nil {
			return nil, err
		}
	}

	return flow, nil
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Aliases:   []string{"e"},
		Usage:     "Print a stored flow and its graph as a document",
		ArgsUsage: "<flow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.NArg() != 1 {
				return errors.New("expected exactly one flow id")
			}

			logger := log.WithModule("chatflow")

			p := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				_ = p.Close(ctx)
			}()

			flowService := services.NewFlow(p, cmd.NewRegistry(logger), nil, logger)

			doc, err := exportDocument(ctx, flowService, command.Args().First())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(command.Root().Writer)
			enc.SetIndent("", "  ")

			return enc.Encode(doc)
		},
	}
}

func exportDocument(ctx context.Context, flowService *services.Flow, flowID string) (*Document, error) {
	flow, err := flowService.FetchByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	nodes, edges, err := flowService.LoadGraph(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return &Document{Flow: flow, Nodes: nodes, Edges: edges}, nil
}
