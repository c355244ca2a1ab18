// Command pushsend sends one test notification through a chosen provider and
// prints the per-endpoint delivery status.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tinywideclouds/go-push-dispatch/config"
	"github.com/tinywideclouds/go-push-dispatch/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatch/internal/platform/fcmlegacy"
	"github.com/tinywideclouds/go-push-dispatch/internal/platform/jpush"
	"github.com/tinywideclouds/go-push-dispatch/internal/platform/wns"
	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config")
		provider   = flag.String("provider", "fcm", "provider to send through (fcm, fcm-legacy, wns, jpush)")
		title      = flag.String("title", "Test", "notification title")
		body       = flag.String("body", "Hello from pushsend", "notification body")
	)
	flag.Parse()

	var logLevel slog.Level
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "pushsend")
	slog.SetDefault(logger)

	endpoints := flag.Args()
	if len(endpoints) == 0 {
		logger.Error("No endpoints given")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	opts := dispatch.Options{MaxConcurrency: cfg.MaxConcurrency}

	var resp dispatch.Response
	switch *provider {
	case "fcm":
		key, err := os.ReadFile(cfg.FCM.PrivateKeyFile)
		if err != nil {
			logger.Error("Reading service account key failed", "err", err)
			os.Exit(1)
		}
		d := fcm.NewDispatcher(transport.NewHTTPClient("fcm"), logger)
		d.SetProjectID(cfg.FCM.ProjectID).SetOptions(opts)
		if err := d.SetCredential(cfg.FCM.ServiceAccount, key); err != nil {
			logger.Error("FCM credential failed", "err", err)
			os.Exit(1)
		}
		payload := fcm.NewPayload().SetNotification(*title, *body)
		resp, err = d.Push(ctx, payload, endpoints)
		if err != nil {
			logger.Error("Push failed", "err", err)
			os.Exit(1)
		}
	case "fcm-legacy":
		d := fcmlegacy.NewDispatcher(transport.NewHTTPClient("fcm-legacy"), logger)
		d.SetServerKey(cfg.FCM.ServerKey).SetOptions(opts)
		payload := fcmlegacy.NewPayload().SetNotification(*title, *body)
		resp, err = d.Push(ctx, payload, endpoints)
		if err != nil {
			logger.Error("Push failed", "err", err)
			os.Exit(1)
		}
	case "wns":
		d := wns.NewDispatcher(transport.NewHTTPClient("wns"), logger)
		d.SetCredential(cfg.WNS.ClientID, cfg.WNS.ClientSecret)
		d.SetOptions(opts)
		payload := wns.NewToastPayload().SetTitle(*title).SetBody(*body)
		resp, err = d.Push(ctx, payload, endpoints)
		if err != nil {
			logger.Error("Push failed", "err", err)
			os.Exit(1)
		}
	case "jpush":
		d := jpush.NewDispatcher(transport.NewHTTPClient("jpush"), logger)
		d.SetCredentials(cfg.JPush.AppKey, cfg.JPush.MasterSecret)
		payload := jpush.NewPayload().SetNotification(*title).SetMessage(*body)
		resp, err = d.Push(ctx, payload, endpoints)
		if err != nil {
			logger.Error("Push failed", "err", err)
			os.Exit(1)
		}
	default:
		logger.Error("Unknown provider", "provider", *provider)
		os.Exit(1)
	}

	for _, endpoint := range resp.Endpoints() {
		fmt.Printf("%s\t%s\n", endpoint, resp.Status(endpoint))
	}
}
