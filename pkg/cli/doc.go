/*
Package cli provides command-line helpers for the tlsrelay command.

Output Formatting:

Command results can be rendered as aligned text, JSON or CSV. Tabular
results use Table so that every format can render them:

	table := &cli.Table{Headers: []string{"SERIAL", "SUBJECT"}}
	table.Append(serial, subject)
	if err := cli.NewFormatter(cli.FormatText).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Errors:

ConfigError and CommandError carry enough context for the command to pick
an exit status with ExitCode.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.NotifyShutdown(context.Background())
	defer stop()
	// ctx is cancelled on the first signal
*/
package cli
