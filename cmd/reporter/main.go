package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/asanalytics/go-asana-reporter/internal/asana"
	"github.com/asanalytics/go-asana-reporter/internal/config"
	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/report"
	"github.com/asanalytics/go-asana-reporter/internal/repository"
	"github.com/asanalytics/go-asana-reporter/internal/service"
	"github.com/asanalytics/go-asana-reporter/internal/sheets"
	"github.com/asanalytics/go-asana-reporter/internal/slack"
)

// deps is everything a job command needs, wired once per invocation.
type deps struct {
	cfg      *config.Config
	log      *logrus.Logger
	repo     *repository.PostgresRepo
	client   *asana.Client
	notifier *slack.Notifier
}

func buildDeps() (*deps, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewPostgresRepo(cfg)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(context.Background()); err != nil {
		return nil, err
	}

	return &deps{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		client:   asana.NewClient(cfg.AsanaToken, cfg.AsanaWorkspaceID),
		notifier: slack.NewNotifier(cfg.SlackToken, cfg.SlackChannel, log),
	}, nil
}

// printSummary writes the run summary as JSON to stdout and turns a failed
// run into a non-zero exit.
func printSummary(summary *model.RunSummary, err error) error {
	if summary != nil {
		out, merr := json.MarshalIndent(summary, "", "  ")
		if merr == nil {
			fmt.Println(string(out))
		}
	}
	return err
}

func main() {
	root := &cobra.Command{
		Use:           "reporter",
		Short:         "Asana task ingestion and reporting pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(&cobra.Command{
		Use:   "fetch",
		Short: "Ingest completed tasks into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			svc := service.NewFetchService(d.client, d.repo, d.repo, d.notifier, d.log, d.cfg.CompletedSince)
			return printSummary(svc.Run(cmd.Context()))
		},
	})

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export monthly report tabs to the spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}

			var dims []model.Dimension
			if raw, _ := cmd.Flags().GetString("dimension"); raw != "" {
				dim, err := model.ParseDimension(raw)
				if err != nil {
					return err
				}
				dims = []model.Dimension{dim}
			}

			exporter, err := sheets.NewExporter(cmd.Context(), d.cfg, d.log)
			if err != nil {
				return err
			}
			svc := service.NewExportService(report.NewAggregator(d.repo), exporter, d.repo, d.notifier, d.log)
			return printSummary(svc.Run(cmd.Context(), dims))
		},
	}
	exportCmd.Flags().String("dimension", "", "restrict the export to one dimension (project, assignee, project_assignee)")
	root.AddCommand(exportCmd)

	root.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Append open-task snapshot rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			svc := service.NewSnapshotService(d.client, d.repo, d.repo, d.notifier, d.log)
			return printSummary(svc.Run(cmd.Context()))
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
