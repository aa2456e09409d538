package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/phototag/internal/config"
	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/errors"
	"github.com/hpungsan/phototag/internal/ops"
	"github.com/hpungsan/phototag/internal/web"
)

// cliDeps is what the commands run against. It is nil for --help/--version.
type cliDeps struct {
	svc  *ops.Service
	cfg  *config.Config
	feed *correlator.Feed
	log  zerolog.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(d *cliDeps) *cli.App {
	app := &cli.App{
		Name:    "phototag",
		Usage:   "Tagged photos with one-shot reminders",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(d),
			fetchCmd(d),
			listCmd(d),
			updateCmd(d),
			deleteCmd(d),
			searchCmd(d),
			suggestCmd(d),
			tagsCmd(d),
			scheduleCmd(d),
			cancelCmd(d),
			alarmsCmd(d),
			fireCmd(d),
			tapCmd(d),
			reconcileCmd(d),
			exportCmd(d),
			importCmd(d),
			serveCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// createCmd creates the create command.
func createCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Tag a photo",
		ArgsUsage: "<photo-ref>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tags", Aliases: []string{"t"}, Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "comment", Aliases: []string{"c"}, Usage: "Free-text comment (\"-\" reads stdin)"},
		},
		Action: func(c *cli.Context) error {
			comment, err := commentArg(c.String("comment"))
			if err != nil {
				return outputError(err)
			}

			rec, err := d.svc.CreateTaggedRecord(c.Context, ops.CreateInput{
				PhotoRef: c.Args().First(),
				RawTags:  c.String("tags"),
				Comment:  comment,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(rec)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a record and its alarm history",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := d.svc.Fetch(c.Context, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List records, newest first",
		Flags: pageFlags(ops.DefaultListLimit),
		Action: func(c *cli.Context) error {
			output, err := d.svc.List(c.Context, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Replace the tags and/or comment of a record",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tags", Aliases: []string{"t"}, Usage: "New comma-separated tags (empty clears)"},
			&cli.StringFlag{Name: "comment", Aliases: []string{"c"}, Usage: "New comment (\"-\" reads stdin)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.UpdateInput{ID: c.Args().First()}

			if c.IsSet("tags") {
				tags := c.String("tags")
				input.RawTags = &tags
			}
			if c.IsSet("comment") {
				comment, err := commentArg(c.String("comment"))
				if err != nil {
					return outputError(err)
				}
				input.Comment = &comment
			}

			rec, err := d.svc.Update(c.Context, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(rec)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a record and cancel its pending reminder",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := d.svc.DeleteRecord(c.Context, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find records by tag",
		ArgsUsage: "<tag>",
		Flags: append(pageFlags(ops.DefaultListLimit),
			&cli.BoolFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Match tags starting with <tag>"},
		),
		Action: func(c *cli.Context) error {
			output, err := d.svc.SearchByTag(c.Context, ops.SearchInput{
				Tag:    c.Args().First(),
				Prefix: c.Bool("prefix"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// suggestCmd creates the suggest command.
func suggestCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "suggest",
		Usage:     "Fuzzy-match a term against known tags",
		ArgsUsage: "<term>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSuggestLimit, Usage: "Maximum suggestions"},
		},
		Action: func(c *cli.Context) error {
			output, err := d.svc.Suggest(c.Context, ops.SuggestInput{
				Term:  c.Args().First(),
				Limit: c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// tagsCmd creates the tags command.
func tagsCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "List every tag with its record count",
		Action: func(c *cli.Context) error {
			return outputJSON(d.svc.Tags(c.Context))
		},
	}
}

// scheduleCmd creates the schedule command.
func scheduleCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Set the reminder for a record, replacing any pending one",
		ArgsUsage: "<record-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "at", Usage: "Fire time: RFC 3339 or Unix seconds"},
			&cli.StringFlag{Name: "in", Usage: "Fire after a duration, e.g. 90m or 24h"},
		},
		Action: func(c *cli.Context) error {
			output, err := d.svc.ScheduleAlarm(c.Context, ops.ScheduleInput{
				RecordID: c.Args().First(),
				At:       c.String("at"),
				In:       c.String("in"),
			})
			if err != nil && output == nil {
				return outputError(err)
			}
			if output.Warning != "" {
				fmt.Fprintf(os.Stderr, "warning: %s\n", output.Warning)
			}

			return outputJSON(output)
		},
	}
}

// cancelCmd creates the cancel command.
func cancelCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a pending reminder",
		ArgsUsage: "<alarm-id>",
		Action: func(c *cli.Context) error {
			output, err := d.svc.CancelAlarm(c.Context, ops.CancelInput{AlarmID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// alarmsCmd creates the alarms command.
func alarmsCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "alarms",
		Usage: "List reminders",
		Flags: append(pageFlags(ops.DefaultListLimit),
			&cli.StringFlag{Name: "record", Aliases: []string{"r"}, Usage: "Only alarms of this record"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: pending|fired|cancelled"},
		),
		Action: func(c *cli.Context) error {
			output, err := d.svc.ListAlarms(c.Context, ops.ListAlarmsInput{
				RecordID: c.String("record"),
				Status:   c.String("status"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fireCmd creates the fire command.
func fireCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "fire",
		Usage:     "Deliver a pending reminder now",
		ArgsUsage: "<alarm-id>",
		Action: func(c *cli.Context) error {
			output, err := d.svc.Fire(c.Context, ops.FireInput{AlarmID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// tapCmd creates the tap command.
func tapCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:      "tap",
		Usage:     "Open the record behind a delivered notification",
		ArgsUsage: "<notification-id>",
		Action: func(c *cli.Context) error {
			output, err := d.svc.OnNotificationTapped(c.Context, ops.TapInput{NotificationID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// reconcileCmd creates the reconcile command.
func reconcileCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Re-request timers for every pending reminder (delivery runs in serve or MCP mode)",
		Action: func(c *cli.Context) error {
			output, err := d.svc.Reconcile(c.Context)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export records and their alarms to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.phototag/exports/<tag|all>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "tag", Usage: "Only records carrying this tag"},
		},
		Action: func(c *cli.Context) error {
			output, err := d.svc.Export(c.Context, ops.ExportInput{
				Path: c.String("path"),
				Tag:  c.String("tag"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import records from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := d.svc.Import(c.Context, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command. Timers armed in this process fire
// while it runs; delivered reminders show up on /reminders.
func serveCmd(d *cliDeps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind := d.cfg.WebBind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := d.cfg.WebPort
			if c.IsSet("port") {
				port = c.Int("port")
			}

			srv, err := web.NewServer(d.svc, d.feed, Version, bind, port, d.log)
			if err != nil {
				return outputError(err)
			}
			return web.Run(c.Context, srv, d.log)
		},
	}
}

// Helper functions

// pageFlags returns the --limit/--offset pair.
func pageFlags(defaultLimit int) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: defaultLimit, Usage: "Maximum items to return"},
		&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pErr := errors.As(err); pErr != nil {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// commentArg resolves a --comment value; "-" reads the comment from stdin.
func commentArg(v string) (string, error) {
	if v != "-" {
		return v, nil
	}
	if !stdinHasData() {
		return "", errors.NewValidation("comment \"-\" requires piped stdin")
	}
	return readStdin()
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return strings.TrimSpace(string(data)), nil
}
