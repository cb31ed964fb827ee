package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"ledger/internal/config"
	"ledger/internal/services"
)

var setupCommands = []subcommands.Command{
	&migrateCmd{},
	&userCmd{},
	&accountCmd{},
	&categoryCmd{},
	&ruleCmd{},
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return `ledger migrate

  Opens the configured database and applies every pending migration.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withLedger(ctx, func(ctx context.Context, cfg *config.Config, _ *services.LedgerService) error {
		fmt.Printf("%s database is up to date\n", cfg.DataBackend)
		return nil
	})
}

type userCmd struct {
	name string
}

func (*userCmd) Name() string     { return "user" }
func (*userCmd) Synopsis() string { return "create a user" }
func (*userCmd) Usage() string {
	return `ledger user -name <username>
`
}

func (c *userCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Username to create.")
}

func (c *userCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		fmt.Fprintln(os.Stderr, "Error: -name is required.")
		return subcommands.ExitUsageError
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		user, err := ledger.Repository().Users.Create(ctx, c.name)
		if err != nil {
			return err
		}
		fmt.Printf("user %d %s\n", user.ID, user.Username)
		return nil
	})
}

type accountCmd struct {
	user string
	name string
	list bool
}

func (*accountCmd) Name() string     { return "account" }
func (*accountCmd) Synopsis() string { return "create or list a user's accounts" }
func (*accountCmd) Usage() string {
	return `ledger account -user <username> (-name <account> | -list)
`
}

func (c *accountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Owner of the account.")
	f.StringVar(&c.name, "name", "", "Name of the account to create.")
	f.BoolVar(&c.list, "list", false, "List the user's accounts instead.")
}

func (c *accountCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" || (c.name == "") == !c.list {
		fmt.Fprintln(os.Stderr, "Error: -user and exactly one of -name or -list are required.")
		return subcommands.ExitUsageError
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		repo := ledger.Repository()
		user, err := repo.Users.GetByName(ctx, c.user)
		if err != nil {
			return err
		}
		if c.list {
			accounts, err := repo.Accounts.ListByUser(ctx, user.ID)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Printf("%d\t%s\n", a.ID, a.Name)
			}
			return nil
		}
		account, err := repo.Accounts.Create(ctx, user.ID, c.name)
		if err != nil {
			return err
		}
		fmt.Printf("account %d %s\n", account.ID, account.Name)
		return nil
	})
}

type categoryCmd struct {
	name        string
	description string
	remove      int64
}

func (*categoryCmd) Name() string     { return "category" }
func (*categoryCmd) Synopsis() string { return "create, list or delete categories" }
func (*categoryCmd) Usage() string {
	return `ledger category [-name <name> [-desc <text>] | -delete <id>]

  Without flags, lists every category.
`
}

func (c *categoryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Name of the category to create.")
	f.StringVar(&c.description, "desc", "", "Optional description.")
	f.Int64Var(&c.remove, "delete", 0, "Delete the category with this id.")
}

func (c *categoryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		store := ledger.Repository().Categories
		switch {
		case c.remove > 0:
			return store.Delete(ctx, c.remove)
		case c.name != "":
			category, err := store.Create(ctx, c.name, c.description)
			if err != nil {
				return err
			}
			fmt.Printf("category %d %s\n", category.ID, category.Name)
			return nil
		}
		categories, err := store.List(ctx)
		if err != nil {
			return err
		}
		for _, cat := range categories {
			fmt.Printf("%d\t%s\t%s\n", cat.ID, cat.Name, cat.Description)
		}
		return nil
	})
}

type ruleCmd struct {
	user     string
	pattern  string
	category int64
	remove   int64
}

func (*ruleCmd) Name() string     { return "rule" }
func (*ruleCmd) Synopsis() string { return "manage a user's categorization rules" }
func (*ruleCmd) Usage() string {
	return `ledger rule -user <username> [-pattern <regexp> -category <id> | -delete <id>]

  Without -pattern or -delete, lists the user's rules in evaluation order.
`
}

func (c *ruleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Owner of the rules.")
	f.StringVar(&c.pattern, "pattern", "", "Regular expression matched against descriptions.")
	f.Int64Var(&c.category, "category", 0, "Category assigned on match.")
	f.Int64Var(&c.remove, "delete", 0, "Delete the rule with this id.")
}

func (c *ruleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	if c.pattern != "" && c.category <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -pattern needs -category.")
		return subcommands.ExitUsageError
	}
	return withLedger(ctx, func(ctx context.Context, _ *config.Config, ledger *services.LedgerService) error {
		repo := ledger.Repository()
		user, err := repo.Users.GetByName(ctx, c.user)
		if err != nil {
			return err
		}
		switch {
		case c.remove > 0:
			rule, err := repo.Rules.Get(ctx, c.remove)
			if err != nil {
				return err
			}
			if rule.UserID != user.ID {
				return errors.New("rule belongs to another user")
			}
			return repo.Rules.Delete(ctx, c.remove)
		case c.pattern != "":
			rule, err := ledger.CreateRule(ctx, user.ID, c.pattern, c.category)
			if err != nil {
				return err
			}
			fmt.Printf("rule %d %s -> %d\n", rule.ID, rule.Pattern, rule.CategoryID)
			return nil
		}
		rules, err := repo.Rules.ListByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, r := range rules {
			fmt.Printf("%d\t%s\t%d\n", r.ID, r.Pattern, r.CategoryID)
		}
		return nil
	})
}
