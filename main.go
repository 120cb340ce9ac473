// ABOUTME: Entry point for the crmsync CLI
// ABOUTME: Parses global flags, opens the database and routes to commands
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/crmsync/cli"
	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/crmsync/crmsync.db)")
	orgID := flag.String("org", "default", "Organization id")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("crmsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	path := *dbPath
	if path == "" {
		path = cfg.DatabasePath
	}
	if path == "" {
		path = db.DefaultPath()
	}
	database, err := db.OpenDatabase(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	app := &cli.App{
		DB:     database,
		Config: cfg,
		Logger: logger,
		OrgID:  *orgID,
	}

	command := args[0]
	commandArgs := args[1:]

	var run func(*cli.App, []string) error
	switch command {
	case "connect":
		run = cli.ConnectCommand
	case "status":
		run = cli.StatusCommand
	case "disconnect":
		run = cli.DisconnectCommand
	case "contacts":
		run = cli.ContactsCommand
	case "sync":
		run = cli.SyncCommand
	case "runs":
		run = cli.RunsCommand
	case "webhooks":
		run = cli.WebhooksCommand
	case "dashboard":
		run = cli.DashboardCommand
	case "mcp":
		run = cli.MCPCommand
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err := run(app, commandArgs); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`crmsync v%s - sync contacts with Salesforce, HubSpot and Pipedrive

USAGE:
  crmsync [global flags] <command> [subcommand] [flags] [args]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/crmsync/crmsync.db)
  --org <id>             Organization id (default: default)

COMMANDS:
  crmsync connect [flags] <provider>     Connect a CRM
    --api-key <token>                      Pipedrive api token
    --instance-url <url>                   Pipedrive company domain URL
    --no-browser                           Print the authorization URL only
  crmsync status [provider]              Check a connection, or list all
  crmsync disconnect <provider>          Revoke and forget credentials

  crmsync contacts add                   Add a local contact
    --first, --last, --email, --phone, --company, --title, --tags
  crmsync contacts update [flags] <id>   Update a local contact
  crmsync contacts list                  List local contacts

  crmsync sync [flags] <provider>        Exchange contacts with a CRM
    --direction <dir>                      to_crm, from_crm or bidirectional (default)
    --conflict <policy>                    adsapp_wins, crm_wins, newest_wins (default) or manual
    --since <time|last>                    Only records changed after an RFC3339 time or the last clean run
    --force                                Exchange unchanged records too
    --batch-size <n>                       Records per batch
    --concurrency <n>                      Parallel pushes per batch (default: 1)
    --adopt                                Link or create local contacts for unmapped CRM records
  crmsync runs [--limit n] <provider>    Show recent sync runs

  crmsync webhooks setup <provider>      Register webhook subscriptions
  crmsync webhooks serve [--addr a]      Receive webhooks (default: :8080)

  crmsync dashboard                      Interactive sync dashboard
  crmsync mcp                            Start the MCP server on stdio

Flags must come before positional arguments.

CONFIGURATION:
  ~/.config/crmsync/config.json, a .env file, or CRMSYNC_* variables, e.g.
  CRMSYNC_HUBSPOT_CLIENT_ID, CRMSYNC_HUBSPOT_CLIENT_SECRET, CRMSYNC_HUBSPOT_REDIRECT_URI,
  CRMSYNC_PUBLIC_URL, CRMSYNC_LOG_LEVEL.

EXAMPLES:
  crmsync connect hubspot
  crmsync connect --api-key $TOKEN pipedrive
  crmsync contacts add --first Ada --last Lovelace --email ada@example.com
  crmsync sync --direction to_crm --conflict crm_wins salesforce
`, version)
}
