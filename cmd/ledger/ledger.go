package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/importer"
	"ledger/internal/services"
)

var ledgerCommands = []subcommands.Command{
	&importCmd{},
	&recalcCmd{},
	&recategorizeCmd{},
	&balanceCmd{},
	&snapshotsCmd{},
	&txCmd{},
}

type importCmd struct {
	account int64
	strict  bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import transactions from a CSV statement" }
func (*importCmd) Usage() string {
	return `ledger import -account <id> [-strict] <file.csv>

  Reads date,description,amount rows. Rows already present are skipped, so
  re-importing a statement is harmless. Balances and snapshots are rebuilt
  from the earliest imported row.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account receiving the transactions.")
	f.BoolVar(&c.strict, "strict", false, "Refuse the whole file if any line is malformed.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 || f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: -account and exactly one CSV file are required.")
		return subcommands.ExitUsageError
	}
	return withLedger(ctx, func(ctx context.Context, cfg *config.Config, ledger *services.LedgerService) error {
		file, err := os.Open(f.Arg(0))
		if err != nil {
			return err
		}
		defer file.Close()

		batch, err := importer.ParseCSV(file, cfg.ImportLocation())
		if err != nil {
			return err
		}
		for _, lineErr := range batch.Errors {
			fmt.Fprintln(os.Stderr, "skipped:", lineErr)
		}
		if c.strict && len(batch.Errors) > 0 {
			return fmt.Errorf("%d malformed lines, nothing imported", len(batch.Errors))
		}

		result, err := ledger.ImportTransactions(ctx, c.account, batch.Rows)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d, skipped %d duplicates, %d malformed\n",
			result.Imported, result.Skipped, len(batch.Errors))
		return nil
	})
}

type recalcCmd struct {
	account int64
	from    string
	async   bool
}

func (*recalcCmd) Name() string     { return "recalc" }
func (*recalcCmd) Synopsis() string { return "rebuild running balances and snapshots" }
func (*recalcCmd) Usage() string {
	return `ledger recalc -account <id> [-from <date>] [-async]

  Recomputes running balances and the daily snapshot chain from the last
  snapshot before -from, or from scratch when -from is omitted.
`
}

func (c *recalcCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account to rebuild.")
	f.StringVar(&c.from, "from", "", "Earliest changed date (YYYY-MM-DD or RFC 3339).")
	f.BoolVar(&c.async, "async", false, "Queue the rebuild for the worker.")
}

func (c *recalcCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -account is required.")
		return subcommands.ExitUsageError
	}
	from, err := parseTime(c.from)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		if c.async {
			if err := ledger.EnqueueRecalculate(ctx, c.account, from); err != nil {
				return err
			}
			fmt.Println("recalculation queued")
			return nil
		}
		result, err := ledger.RecalculateBalances(ctx, c.account, from)
		if err != nil {
			return err
		}
		fmt.Printf("started from %s, deleted %d snapshots, created %d\n",
			result.Start.Date.Format(time.DateOnly), result.Deleted, result.Created)
		return nil
	})
}

type recategorizeCmd struct {
	account int64
	from    string
	to      string
	mode    string
	async   bool
}

func (*recategorizeCmd) Name() string     { return "recategorize" }
func (*recategorizeCmd) Synopsis() string { return "apply categorization rules to transactions" }
func (*recategorizeCmd) Usage() string {
	return `ledger recategorize -account <id> [-from <date>] [-to <date>] [-mode all|uncategorized] [-async]

  Applies the owner's rules in order; the first match wins. Transactions no
  rule matches keep their category.
`
}

func (c *recategorizeCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account to sweep.")
	f.StringVar(&c.from, "from", "", "Inclusive lower bound.")
	f.StringVar(&c.to, "to", "", "Exclusive upper bound.")
	f.StringVar(&c.mode, "mode", "all", "Which transactions to visit: all or uncategorized.")
	f.BoolVar(&c.async, "async", false, "Queue the sweep for the worker.")
}

func (c *recategorizeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -account is required.")
		return subcommands.ExitUsageError
	}
	var mode core.RecategorizeMode
	switch strings.ToLower(c.mode) {
	case "all", "":
		mode = core.RecategorizeAll
	case "uncategorized":
		mode = core.RecategorizeUncategorized
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid mode %q.\n", c.mode)
		return subcommands.ExitUsageError
	}
	from, err := parseTime(c.from)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}
	to, err := parseTime(c.to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		if c.async {
			if err := ledger.EnqueueRecategorize(ctx, c.account, from, to, mode); err != nil {
				return err
			}
			fmt.Println("recategorization queued")
			return nil
		}
		changed, err := ledger.RecategorizeTransactions(ctx, c.account, from, to, mode)
		if err != nil {
			return fmt.Errorf("%w (%d transactions changed before the failure)", err, changed)
		}
		fmt.Printf("%d transactions changed\n", changed)
		return nil
	})
}

type balanceCmd struct {
	account int64
	at      string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print an account balance" }
func (*balanceCmd) Usage() string {
	return `ledger balance -account <id> [-at <time>]
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account to report on.")
	f.StringVar(&c.at, "at", "", "Point in time, defaults to now.")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -account is required.")
		return subcommands.ExitUsageError
	}
	at, err := parseTime(c.at)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}
	if at == nil {
		now := time.Now().UTC()
		at = &now
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		balance, err := ledger.Balance(ctx, c.account, *at)
		if err != nil {
			return err
		}
		fmt.Println(core.FormatCents(balance))
		return nil
	})
}

type snapshotsCmd struct {
	account int64
}

func (*snapshotsCmd) Name() string     { return "snapshots" }
func (*snapshotsCmd) Synopsis() string { return "list the daily snapshot chain" }
func (*snapshotsCmd) Usage() string {
	return `ledger snapshots -account <id>
`
}

func (c *snapshotsCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account to report on.")
}

func (c *snapshotsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -account is required.")
		return subcommands.ExitUsageError
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		snaps, err := ledger.Snapshots().List(ctx, c.account)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t\n", s.Date.Format(time.DateOnly), core.FormatCents(s.Amount))
		}
		return w.Flush()
	})
}

type txCmd struct {
	account int64
	limit   int
	offset  int
	asc     bool
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list an account's transactions" }
func (*txCmd) Usage() string {
	return `ledger tx -account <id> [-n <limit>] [-offset <n>] [-asc]

  Lists transactions newest first with their running balance.
`
}

func (c *txCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account to list.")
	f.IntVar(&c.limit, "n", core.DefaultPage.Limit, "Page size.")
	f.IntVar(&c.offset, "offset", 0, "Rows to skip.")
	f.BoolVar(&c.asc, "asc", false, "Oldest first.")
}

func (c *txCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -account is required.")
		return subcommands.ExitUsageError
	}
	order := core.Descending
	if c.asc {
		order = core.Ascending
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		txs, err := ledger.Repository().Transactions.List(ctx, c.account, core.Page{Limit: c.limit, Offset: c.offset}, order)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, tx := range txs {
			category := "-"
			if tx.CategoryID != nil {
				category = fmt.Sprint(*tx.CategoryID)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				tx.ID,
				tx.Timestamp.Format(time.DateTime),
				tx.Description,
				core.FormatCents(tx.Amount),
				core.FormatCents(tx.Accumulated),
				category)
		}
		return w.Flush()
	})
}
