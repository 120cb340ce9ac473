// ABOUTME: Webhook CLI commands
// ABOUTME: Registers provider subscriptions and runs the receiving server
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/crmsync/web"
)

// WebhooksCommand routes webhooks subcommands.
func WebhooksCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("webhooks requires a subcommand (setup, serve)")
	}
	switch args[0] {
	case "setup":
		return WebhooksSetupCommand(app, args[1:])
	case "serve":
		return WebhooksServeCommand(app, args[1:])
	default:
		return fmt.Errorf("unknown webhooks command: %s", args[0])
	}
}

// WebhooksSetupCommand registers subscriptions pointing at the public URL.
func WebhooksSetupCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	_ = fs.Parse(args)

	provider, err := parseProvider(fs.Args(), "webhooks setup")
	if err != nil {
		return err
	}
	cfg := app.Config.WebhookConfig(provider, app.OrgID)
	if cfg.TargetURL == "" {
		return fmt.Errorf("public_url must be configured to register webhooks")
	}

	client, err := app.Client(app.OrgID, provider)
	if err != nil {
		return err
	}
	defer client.Close()

	subs, err := client.SetupWebhooks(context.Background(), cfg)
	for _, s := range subs {
		if s.Active {
			app.printf("✓ %s %s → %s\n", s.ObjectType, s.Event, s.TargetURL)
		} else {
			app.printf("! %s %s needs manual setup: %s\n", s.ObjectType, s.Event, s.Note)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to set up webhooks: %w", err)
	}
	return nil
}

// WebhooksServeCommand runs the webhook server until interrupted.
func WebhooksServeCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", app.Config.WebhookAddr, "Listen address")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := web.NewServer(app.DB, app.ClientFactory(), app.logger())
	app.printf("Webhook server listening on %s\n", *addr)
	return server.Start(ctx, *addr)
}
