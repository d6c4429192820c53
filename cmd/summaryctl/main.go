// Package main 运维命令行
//
// 离线切分预览、产物状态查询、孤儿巡检、限流窗口用量与额度/文档导入。
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "summaryctl",
		Usage: "operate the summary engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "config directory", EnvVars: []string{"CONFIG_DIR"}},
		},
		Commands: []*cli.Command{
			{
				Name:      "segment",
				Usage:     "split a text file into buckets without touching any store",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Value: "condensation"},
					&cli.StringFlag{Name: "language", Value: "en"},
					&cli.StringFlag{Name: "source-language"},
					&cli.BoolFlag{Name: "text", Usage: "include bucket text in the output"},
				},
				Action: SegmentAction,
			},
			{
				Name:      "status",
				Usage:     "show an artifact and its jobs",
				ArgsUsage: "<artifact-id>",
				Action:    StatusAction,
			},
			{
				Name:      "result",
				Usage:     "print the assembled result of an artifact",
				ArgsUsage: "<artifact-id>",
				Action:    ResultAction,
			},
			{
				Name:  "reconcile",
				Usage: "run one orphaned-job sweep",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "requeue", Usage: "re-publish orphaned jobs instead of only reporting them"},
					&cli.DurationFlag{Name: "stale", Usage: "treat jobs enqueued longer ago than this as orphaned"},
				},
				Action: ReconcileAction,
			},
			{
				Name:   "usage",
				Usage:  "show the current rate-limit window usage",
				Action: UsageAction,
			},
			{
				Name:  "credit",
				Usage: "add credits to an owner's balance",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Required: true},
					&cli.Int64Flag{Name: "amount", Required: true},
				},
				Action: CreditAction,
			},
			{
				Name:      "import",
				Usage:     "store a text file as a processed document",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Required: true},
					&cli.StringFlag{Name: "owner", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "page-separator", Usage: "split the file into pages on this line"},
				},
				Action: ImportAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
