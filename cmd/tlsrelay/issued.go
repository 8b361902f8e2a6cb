package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/cli"
	"mercator-hq/tlsrelay/pkg/issuance"
)

var issuedFlags struct {
	db      string
	driver  string
	subject string
	serial  string
	since   time.Duration
	limit   int
	count   bool
	format  string
}

var issuedCmd = &cobra.Command{
	Use:   "issued",
	Short: "Inspect the issuance ledger",
	Long: `Inspect certificates minted by the relay for upstream clients.

The ledger location is taken from issuance.ledger in the configuration file
unless --db is given.`,
}

var issuedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued certificates",
	Long: `List issued certificates, newest first.

Examples:
  # Certificates issued in the last day
  tlsrelay issued list --since 24h

  # Certificates issued for a subject, as CSV
  tlsrelay issued list --subject "CN=alice" --format csv

  # Read a ledger file directly
  tlsrelay issued list --db /var/lib/tlsrelay/issued.db --limit 20`,
	RunE: runIssuedList,
}

func init() {
	rootCmd.AddCommand(issuedCmd)
	issuedCmd.AddCommand(issuedListCmd)

	f := issuedListCmd.Flags()
	f.StringVar(&issuedFlags.db, "db", "", "ledger database path (overrides the config file)")
	f.StringVar(&issuedFlags.driver, "driver", issuance.DriverModernc, "database/sql driver for --db (sqlite or sqlite3)")
	f.StringVar(&issuedFlags.subject, "subject", "", "only records whose subject contains this string")
	f.StringVar(&issuedFlags.serial, "serial", "", "only the record with this serial number (hex)")
	f.DurationVar(&issuedFlags.since, "since", 0, "only records issued within this duration")
	f.IntVar(&issuedFlags.limit, "limit", 100, "maximum number of records (0 for no limit)")
	f.BoolVar(&issuedFlags.count, "count", false, "print the number of matching records only")
	f.StringVarP(&issuedFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

func openLedgerDB() (issuance.Store, error) {
	sqlCfg := issuance.DefaultSQLiteConfig()
	sqlCfg.Driver = issuedFlags.driver
	sqlCfg.Path = issuedFlags.db

	if sqlCfg.Path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		ledger := cfg.Issuance.Ledger
		switch ledger.Backend {
		case "sqlite", "sqlite3":
		default:
			return nil, cli.NewConfigError("issuance.ledger.backend",
				fmt.Sprintf("ledger backend %q is not persistent, use --db", ledger.Backend))
		}
		sqlCfg.Path = ledger.Path
		if ledger.Backend == "sqlite3" {
			sqlCfg.Driver = issuance.DriverMattn
		}
	}

	store, err := issuance.NewSQLiteStore(sqlCfg)
	if err != nil {
		return nil, cli.NewCommandError("issued list", err)
	}
	return store, nil
}

func runIssuedList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(issuedFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	store, err := openLedgerDB()
	if err != nil {
		return err
	}
	defer store.Close()

	q := &issuance.Query{
		Subject: issuedFlags.subject,
		Serial:  issuedFlags.serial,
		Limit:   issuedFlags.limit,
	}
	if issuedFlags.since > 0 {
		q.Since = time.Now().Add(-issuedFlags.since)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := cli.NewFormatter(format)
	if issuedFlags.count {
		q.Limit = 0
		n, err := store.Count(ctx, q)
		if err != nil {
			return cli.NewCommandError("issued list", err)
		}
		return formatter.FormatTo(cmd.OutOrStdout(), n)
	}

	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("issued list", err)
	}

	table := &cli.Table{Headers: []string{"ISSUED_AT", "SERIAL", "SUBJECT", "NOT_AFTER", "PEER_SUBJECT", "CHANNEL", "CONNECTION_ID"}}
	for _, r := range records {
		table.Append(
			r.IssuedAt.UTC().Format(time.RFC3339),
			r.Serial,
			r.Subject,
			r.NotAfter.UTC().Format(time.RFC3339),
			r.PeerSubject,
			r.Channel,
			r.ConnectionID,
		)
	}
	return formatter.FormatTo(cmd.OutOrStdout(), table)
}
