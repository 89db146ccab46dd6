/*
Package cli provides command-line helpers for the epigate command.

Output Formatting:

Results are written in text, JSON or CSV. Tabular results implement Table
and render as aligned columns in text mode:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Errors and Exit Codes:

Commands return ConfigError for configuration problems, CommandError for
runtime failures and ErrBlocked when --fail-on-block is set and the gate
blocked the message. ExitCode maps them to 3, 1 and 2.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
