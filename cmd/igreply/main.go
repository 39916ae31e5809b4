package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"igreply/internal/cmdlog"
	"igreply/internal/config"
	"igreply/internal/igclient"
	"igreply/internal/logging"
	"igreply/internal/metrics"
	"igreply/internal/notifier"
	"igreply/internal/profile"
	"igreply/internal/reply"
	"igreply/internal/store/engagedb"
	"igreply/internal/tokenjob"
	"igreply/internal/webhook"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "serve":
		cmdServe()
	case "token":
		cmdToken()
	case "refresh":
		cmdRefresh()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: igreply <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init     Create a config file at ./igreply.yaml")
	fmt.Println("  serve    Run the webhook server and the token refresh scheduler")
	fmt.Println("  token    Show the stored credential and its refresh status")
	fmt.Println("  refresh  Evaluate refresh eligibility once and refresh if due")
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./igreply.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./igreply.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	err = cmdlog.Run("serve", func() error {
		db, err := engagedb.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		notify := buildNotifier(cfg)
		client := igclient.NewHTTPClient(&igclient.StoreTokenSource{DB: db})
		profiles := &profile.Cache{DB: db, Fetcher: client}
		engine := reply.NewEngine(db, client, notify, profiles, cfg.Replies, cfg.Account.ID)
		server := webhook.NewServer(cfg.Credentials.VerifyToken, engine, cfg.Server.LogOnly)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics.StartServer(cfg.Server.MetricsAddr)
		go func() {
			interval := time.Duration(cfg.Refresh.IntervalHours) * time.Hour
			_ = tokenjob.RunLoop(ctx, db, client, notify, interval)
		}()

		srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: server.Router()}
		go func() {
			<-ctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shCtx)
		}()
		logging.Info("serve_start", map[string]any{"addr": cfg.Server.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdToken() {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	cfgPath := fs.String("config", "./igreply.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	db, err := engagedb.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer db.Close()
	cred, found, err := db.GetCredential(context.Background())
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	status := tokenjob.Evaluate(cred, found, time.Now().UTC())
	if !found {
		fmt.Println("No credential stored.")
		return
	}
	fmt.Println("Status:    ", status)
	fmt.Println("Updated at:", cred.UpdatedAt.Format(time.RFC3339))
	if cred.HasExpiry() {
		fmt.Println("Expires at:", cred.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("Expires at: (none reported)")
	}
}

func cmdRefresh() {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	cfgPath := fs.String("config", "./igreply.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	err = cmdlog.Run("refresh", func() error {
		db, err := engagedb.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		client := igclient.NewHTTPClient(&igclient.StoreTokenSource{DB: db})
		status, err := tokenjob.RunOnce(context.Background(), db, client, buildNotifier(cfg), time.Now().UTC())
		fmt.Println("Status:", status)
		return err
	})
	if err != nil {
		os.Exit(1)
	}
}

func buildNotifier(cfg config.Config) notifier.Notifier {
	if cfg.Credentials.TelegramBotToken == "" || cfg.Credentials.TelegramChatID == "" {
		return notifier.Noop{}
	}
	return notifier.NewTelegram(cfg.Credentials.TelegramBotToken, cfg.Credentials.TelegramChatID)
}
