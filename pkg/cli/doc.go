/*
Package cli provides command-line helpers for the pescanner command.

Output Formatting:

Commands print results as text or JSON, selected with --output:

	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, usage)

Values that implement TextRenderer control their own text layout;
KeyValues renders aligned "key: value" rows.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

ExitCode maps command errors to process exit codes: 2 for configuration
errors, 69 when the shared store cannot be reached, 1 for everything else.
*/
package cli
