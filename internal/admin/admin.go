// Package admin implements the operator commands behind cmd/admin: listing,
// creating, closing, resolving and deleting markets.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atmx/college-market/internal/catalog"
	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/settlement"
	"github.com/atmx/college-market/internal/store"
)

// ErrCancelled is returned when the operator declines a confirmation.
var ErrCancelled = errors.New("admin: cancelled")

// Prompter reads one line of operator input.
type Prompter interface {
	Prompt(label string) (string, error)
}

// Admin runs operator commands against the store.
type Admin struct {
	store    store.Store
	resolver *settlement.Resolver
	in       Prompter
	out      io.Writer
}

// New creates an Admin that prompts on in and reports to out.
func New(st store.Store, resolver *settlement.Resolver, in Prompter, out io.Writer) *Admin {
	return &Admin{store: st, resolver: resolver, in: in, out: out}
}

// Run dispatches a command line such as ["resolve", "3", "YES"].
func (a *Admin) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: admin <list [category]|create|close <id>|resolve <id> <YES|NO>|delete <id>>")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		category := ""
		if len(rest) > 0 {
			category = rest[0]
		}
		return a.List(ctx, category)
	case "create":
		return a.Create(ctx)
	case "close", "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: admin %s <id>", cmd)
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if cmd == "close" {
			return a.Close(ctx, id)
		}
		return a.Delete(ctx, id)
	case "resolve":
		if len(rest) != 2 {
			return errors.New("usage: admin resolve <id> <YES|NO>")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		return a.Resolve(ctx, id, rest[1])
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// List prints markets, optionally only those in one category.
func (a *Admin) List(ctx context.Context, category string) error {
	var c model.Category
	if category != "" {
		parsed, err := model.ParseCategory(category)
		if err != nil {
			return err
		}
		c = parsed
	}

	markets, err := a.store.ListMarkets(ctx, c)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		fmt.Fprintln(a.out, "No markets found.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLLEGE\tCATEGORY\tSTATUS\tYES\tNO\tVOLUME\tOUTCOME")
	for _, m := range markets {
		outcome := "-"
		if m.ResolvedOutcome != nil {
			outcome = string(*m.ResolvedOutcome)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			m.ID, m.CollegeName, m.Category, strings.ToUpper(string(m.Status)),
			m.YesPrice, m.NoPrice, m.TotalYesShares+m.TotalNoShares, outcome)
	}
	return tw.Flush()
}

// Create prompts for a listing and creates the market. The NO price is
// derived from the YES price.
func (a *Admin) Create(ctx context.Context) error {
	name, err := a.in.Prompt("College name: ")
	if err != nil {
		return err
	}
	desc, err := a.in.Prompt("Description (optional): ")
	if err != nil {
		return err
	}
	category, err := a.in.Prompt("Category (uc/ivy/csu/international/other) [other]: ")
	if err != nil {
		return err
	}
	yesInput, err := a.in.Prompt("YES price (1-99): ")
	if err != nil {
		return err
	}
	yes, err := strconv.ParseInt(strings.TrimSpace(yesInput), 10, 64)
	if err != nil {
		return model.Validation("YES price must be a whole number of cents")
	}

	listing := catalog.Listing{
		CollegeName: name,
		YesPrice:    yes,
		NoPrice:     100 - yes,
		Category:    category,
	}
	if strings.TrimSpace(desc) != "" {
		listing.Description = &desc
	}

	m, err := catalog.NewMarket(listing, time.Now())
	if err != nil {
		return err
	}
	if err := a.store.CreateMarket(ctx, m); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created market %d: %s [%s] YES %d / NO %d\n",
		m.ID, m.CollegeName, m.Category, m.YesPrice, m.NoPrice)
	return nil
}

// Close stops trading on a market.
func (a *Admin) Close(ctx context.Context, id int64) error {
	m, err := a.resolver.Close(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Closed market %d: %s\n", m.ID, m.CollegeName)
	return nil
}

// Resolve resolves a market and pays its winners.
func (a *Admin) Resolve(ctx context.Context, id int64, outcome string) error {
	o, err := model.ParseOutcome(strings.ToUpper(strings.TrimSpace(outcome)))
	if err != nil {
		return err
	}
	res, err := a.resolver.Resolve(ctx, id, o)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Resolved market %d as %s: %d winner(s), total payout $%d.%02d\n",
		res.Market.ID, o, len(res.Payouts), res.TotalPaid/100, res.TotalPaid%100)
	return nil
}

// Delete removes a market with its positions and transactions after the
// operator re-types the market ID.
func (a *Admin) Delete(ctx context.Context, id int64) error {
	m, err := a.store.GetMarket(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ErrMarketNotFound
		}
		return err
	}
	txs, err := a.store.ListMarketTransactions(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "WARNING: this deletes market %d (%s) and %d transaction(s) with every position on it.\n",
		m.ID, m.CollegeName, len(txs))
	answer, err := a.in.Prompt(fmt.Sprintf("Type the market ID (%d) to confirm: ", id))
	if err != nil {
		return err
	}
	if strings.TrimSpace(answer) != strconv.FormatInt(id, 10) {
		fmt.Fprintln(a.out, "Deletion cancelled.")
		return ErrCancelled
	}

	if err := a.store.DeleteMarket(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted market %d (%s).\n", m.ID, m.CollegeName)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Validation(fmt.Sprintf("invalid market id %q", s))
	}
	return id, nil
}
