package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"shoppinglist/pkg/domain/service"
	"shoppinglist/pkg/infrastructure/event"
	"shoppinglist/pkg/infrastructure/storage"
	"shoppinglist/pkg/infrastructure/uploads"
	"shoppinglist/transport"
)

const appID = "shoppinglist"

type config struct {
	Port      string `envconfig:"port" default:"5000"`
	DataFile  string `envconfig:"data_file" default:"data/shopping-list.json"`
	UploadDir string `envconfig:"upload_dir" default:"uploads"`
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	app := &cli.App{
		Name:  appID,
		Usage: "network-accessible shopping list store",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Usage: "listen port"},
					&cli.StringFlag{Name: "data-file", Usage: "path to the shopping list JSON document"},
					&cli.StringFlag{Name: "upload-dir", Usage: "directory for uploaded attachments"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("service terminated")
	}
}

func parseConfig(c *cli.Context) (*config, error) {
	cfg := new(config)
	if err := envconfig.Process(appID, cfg); err != nil {
		return nil, err
	}

	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if c.IsSet("data-file") {
		cfg.DataFile = c.String("data-file")
	}
	if c.IsSet("upload-dir") {
		cfg.UploadDir = c.String("upload-dir")
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := parseConfig(c)
	if err != nil {
		return err
	}

	repo, err := storage.NewFileRepository(cfg.DataFile)
	if err != nil {
		return err
	}
	attachments, err := uploads.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	svc := service.NewShoppingListService(repo, attachments, event.NewLogDispatcher())
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: transport.Router(svc, attachments),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
