package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

type metadata struct {
	ctx     context.Context
	config  *Config
	log     *zap.Logger
	verbose bool
	e       io.Writer
	w       io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := newApp(ctx, os.Stdout, os.Stderr)

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		cancel()
		os.Exit(1)
	}
}

func newApp(ctx context.Context, w, e io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "alarmstorage"
	app.Usage = "register IPFS content hashes of alarm devices"
	app.Version = version
	app.HideVersion = true
	app.Metadata = make(map[string]any)

	app.Writer = w
	app.ErrWriter = e

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: " configuration `FILE`",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " debug logging",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "deploy",
			Usage: "deploy or update AlarmStorage contract",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "owner, o",
					Usage: " initial contract owner `ACCOUNT` [wallet account]",
				},
				cli.BoolFlag{
					Name:  "update, u",
					Usage: " update the contract at contract.address if it differs",
				},
			},
			Action: runDeploy,
		},
		{
			Name:      "compile",
			Usage:     "compile contract sources into NEF and manifest",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Usage: "*output `DIR`",
				},
			},
			Action: runCompile,
		},
		{
			Name:   "save",
			Usage:  "save content hash for the device paying the service fee in GAS",
			Flags:  saveFlags(),
			Action: runSave,
		},
		{
			Name:      "get",
			Usage:     "show content hash saved for the device",
			ArgsUsage: "\n   (* = required)",
			Flags:     []cli.Flag{udidFlag("*device `UDID`")},
			Action:    runGet,
		},
		{
			Name:   "records",
			Usage:  "list all saved content hashes (requires state service)",
			Action: runRecords,
		},
		{
			Name:   "owner",
			Usage:  "show contract owner",
			Action: runOwner,
		},
		{
			Name:   "balance",
			Usage:  "show collected fees",
			Action: runBalance,
		},
		{
			Name:      "transfer-owner",
			Usage:     "pass the contract to another owner",
			ArgsUsage: "\n   (* = required)",
			Flags:     []cli.Flag{newOwnerFlag()},
			Action:    runTransferOwner,
		},
		{
			Name:      "withdraw",
			Usage:     "withdraw collected fees to the owner",
			ArgsUsage: "\n   (* = required)",
			Flags:     []cli.Flag{amountFlag()},
			Action:    runWithdraw,
		},
		{
			Name:      "events",
			Usage:     "show contract events produced by the transaction",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "tx, t",
					Usage: "*transaction `HASH`",
				},
			},
			Action: runEvents,
		},
		{
			Name:  "local",
			Usage: "operate on the local ledger",
			Subcommands: []cli.Command{
				{
					Name:      "save",
					Usage:     "save content hash for the device",
					ArgsUsage: "\n   (* = required)",
					Flags:     append(saveFlags(), fromFlag()),
					Action:    runLocalSave,
				},
				{
					Name:      "get",
					Usage:     "show content hash saved for the device",
					ArgsUsage: "\n   (* = required)",
					Flags:     []cli.Flag{udidFlag("*device `UDID`")},
					Action:    runLocalGet,
				},
				{
					Name:   "owner",
					Usage:  "show ledger administrator",
					Action: runLocalOwner,
				},
				{
					Name:   "balance",
					Usage:  "show collected fees",
					Action: runLocalBalance,
				},
				{
					Name:      "transfer-owner",
					Usage:     "pass the ledger to another administrator",
					ArgsUsage: "\n   (* = required)",
					Flags:     []cli.Flag{fromFlag(), newOwnerFlag()},
					Action:    runLocalTransferOwner,
				},
				{
					Name:      "withdraw",
					Usage:     "withdraw collected fees to the administrator",
					ArgsUsage: "\n   (* = required)",
					Flags:     []cli.Flag{fromFlag(), amountFlag()},
					Action:    runLocalWithdraw,
				},
				{
					Name:  "events",
					Usage: "list ledger events",
					Flags: []cli.Flag{
						cli.Uint64Flag{
							Name:  "start, s",
							Usage: " first event `SEQ`",
						},
					},
					Action: runLocalEvents,
				},
			},
		},
	}

	app.Before = func(c *cli.Context) error {
		cfg, err := loadConfig(c.GlobalString("config"))
		if err != nil {
			return err
		}

		verbose := c.GlobalBool("verbose")
		if verbose {
			cfg.Logger.Level = "debug"
		}

		log, err := newLogger(cfg.Logger.Level)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		c.App.Metadata["config"] = &metadata{
			ctx:     ctx,
			config:  cfg,
			log:     log,
			verbose: verbose,
			e:       c.App.ErrWriter,
			w:       c.App.Writer,
		}

		return nil
	}

	app.After = func(c *cli.Context) error {
		if m, ok := c.App.Metadata["config"].(*metadata); ok {
			_ = m.log.Sync()
		}
		return nil
	}

	return app
}

func saveFlags() []cli.Flag {
	return []cli.Flag{
		udidFlag(" device `UDID` [random UUID]"),
		cli.StringFlag{
			Name:  "hash",
			Usage: "*IPFS content `HASH`",
		},
		cli.BoolFlag{
			Name:  "raw, r",
			Usage: " accept content hash which is not an IPFS CIDv0",
		},
		cli.StringFlag{
			Name:  "fee, f",
			Usage: " service fee `AMOUNT` [minimal fee]",
		},
	}
}

func udidFlag(usage string) cli.Flag {
	return cli.StringFlag{
		Name:  "udid, d",
		Usage: usage,
	}
}

func fromFlag() cli.Flag {
	return cli.StringFlag{
		Name:  "from",
		Usage: "*caller `ACCOUNT`",
	}
}

func newOwnerFlag() cli.Flag {
	return cli.StringFlag{
		Name:  "new-owner, n",
		Usage: "*new owner `ACCOUNT`",
	}
}

func amountFlag() cli.Flag {
	return cli.StringFlag{
		Name:  "amount, a",
		Usage: "*`AMOUNT` to withdraw",
	}
}

func getMetadata(c *cli.Context) *metadata {
	return c.App.Metadata["config"].(*metadata)
}
