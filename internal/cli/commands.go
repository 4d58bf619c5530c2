package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"expenses/internal/core"
	"expenses/internal/identity"
	"expenses/internal/report"
	"expenses/internal/storage"
	"expenses/internal/store"
)

const dateLayout = "2006-01-02"

// offlineNote warns that writes bypass a running server's in-memory copy.
const offlineNote = `
  The running server keeps each owner's records in memory and rewrites the
  whole list on its next change, silently discarding edits made here. Stop
  the server before changing its database with expensectl.
`

// App carries the global flags and the I/O shared by every subcommand.
type App struct {
	DBPath   string
	User     string
	Currency string
	Out      io.Writer
	Err      io.Writer

	// Open returns the medium to work on and a function releasing it. It
	// defaults to the SQLite mirror at DBPath.
	Open func(ctx context.Context) (storage.Medium, func() error, error)
}

// NewApp returns an App writing to the standard streams.
func NewApp() *App {
	return &App{Currency: core.DefaultCurrency, Out: os.Stdout, Err: os.Stderr}
}

// SetFlags binds the global flags.
func (a *App) SetFlags(f *flag.FlagSet) {
	f.StringVar(&a.DBPath, "db", "./data/expenses.db", "Path to the SQLite mirror; do not modify the database of a running server")
	f.StringVar(&a.User, "user", "", "Owner of the records; empty for the anonymous list")
	f.StringVar(&a.Currency, "currency", core.DefaultCurrency, "ISO currency used to display amounts")
}

// Register adds the expense subcommands to c.
func (a *App) Register(c *subcommands.Commander) {
	c.Register(&listCmd{app: a}, "expenses")
	c.Register(&addCmd{app: a}, "expenses")
	c.Register(&editCmd{app: a}, "expenses")
	c.Register(&deleteCmd{app: a}, "expenses")
	c.Register(&summaryCmd{app: a}, "analytics")
	c.Register(&reportCmd{app: a}, "analytics")
}

// session is a loaded store plus the function closing its medium.
type session struct {
	*store.Store
	close func() error
}

func (a *App) open(ctx context.Context) (*session, error) {
	open := a.Open
	if open == nil {
		open = func(context.Context) (storage.Medium, func() error, error) {
			m, err := storage.NewSQLiteMirror(a.DBPath)
			if err != nil {
				return nil, nil, err
			}
			return m, m.Close, nil
		}
	}
	medium, closeFn, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.DBPath, err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	owner := identity.Identity{UserID: a.User}.Owner()
	st := store.New(medium)
	if err := st.Load(ctx, owner); err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("load %s: %w", owner, err)
	}
	return &session{Store: st, close: closeFn}, nil
}

// run opens a session, calls fn and maps the outcome to an exit status.
func (a *App) run(ctx context.Context, fn func(*session) error) subcommands.ExitStatus {
	s, err := a.open(ctx)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return subcommands.ExitFailure
	}
	defer s.close()

	if err := fn(s); err != nil {
		fmt.Fprintln(a.Err, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type listCmd struct {
	app      *App
	category string
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list the expenses in entry order" }
func (*listCmd) Usage() string {
	return `expensectl list [-category <name>]

  Prints every expense of the owner as a table.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.category, "category", "", "Only show expenses of this category")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var filter core.Category
	if c.category != "" {
		cat, err := core.ParseCategory(c.category)
		if err != nil {
			fmt.Fprintln(c.app.Err, err)
			return subcommands.ExitUsageError
		}
		filter = cat
	}

	return c.app.run(ctx, func(s *session) error {
		records := s.Records()
		if len(records) == 0 {
			fmt.Fprintln(c.app.Out, "No expenses added yet.")
			return nil
		}
		tw := tabwriter.NewWriter(c.app.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tTITLE")
		for _, e := range records {
			if filter != 0 && e.Category != filter {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.Date.Format(dateLayout), e.Category, e.Amount.Format(c.app.Currency), e.Title)
		}
		return tw.Flush()
	})
}

// fieldFlags are the editable fields shared by add and edit.
type fieldFlags struct {
	title    string
	amount   string
	category string
	date     string
}

func (ff *fieldFlags) set(f *flag.FlagSet, defaultDate string) {
	f.StringVar(&ff.title, "title", "", "Title of the expense")
	f.StringVar(&ff.amount, "amount", "", "Amount, e.g. 12.50")
	f.StringVar(&ff.category, "category", "", "Category: "+categoryNames())
	f.StringVar(&ff.date, "date", defaultDate, "Date as YYYY-MM-DD")
}

// apply overlays the non-empty flags on in.
func (ff *fieldFlags) apply(in core.ExpenseInput) (core.ExpenseInput, error) {
	if ff.title != "" {
		in.Title = ff.title
	}
	if ff.amount != "" {
		m, err := core.ParseMoney(ff.amount)
		if err != nil {
			return in, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
		}
		in.Amount = m
	}
	if ff.category != "" {
		cat, err := core.ParseCategory(ff.category)
		if err != nil {
			return in, &core.ValidationError{Field: "category", Err: core.ErrInvalidCategory}
		}
		in.Category = cat
	}
	if ff.date != "" {
		d, err := time.Parse(dateLayout, ff.date)
		if err != nil {
			return in, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
		}
		in.Date = d
	}
	return in, nil
}

func categoryNames() string {
	names := make([]string, len(core.Categories))
	for i, c := range core.Categories {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}

type addCmd struct {
	app *App
	fieldFlags
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add an expense" }
func (*addCmd) Usage() string {
	return `expensectl add -title <title> -amount <amount> -category <category> [-date YYYY-MM-DD]
` + offlineNote
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	c.fieldFlags.set(f, time.Now().Format(dateLayout))
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	in, err := c.apply(core.ExpenseInput{})
	if err != nil {
		fmt.Fprintln(c.app.Err, err)
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, func(s *session) error {
		rec, err := s.Create(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "added %s\n", rec.ID)
		return nil
	})
}

type editCmd struct {
	app *App
	fieldFlags
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "change fields of an expense" }
func (*editCmd) Usage() string {
	return `expensectl edit [-title <title>] [-amount <amount>] [-category <category>] [-date YYYY-MM-DD] <id>

  Fields not given keep their current value.
` + offlineNote
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	c.fieldFlags.set(f, "")
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(c.app.Err, "edit takes exactly one expense id")
		return subcommands.ExitUsageError
	}
	id := f.Arg(0)
	return c.app.run(ctx, func(s *session) error {
		current, ok := s.Get(id)
		if !ok {
			return fmt.Errorf("edit %s: %w", id, core.ErrNotFound)
		}
		in, err := c.apply(current.Input())
		if err != nil {
			return err
		}
		if _, err := s.Update(ctx, id, in); err != nil {
			return err
		}
		fmt.Fprintf(c.app.Out, "updated %s\n", id)
		return nil
	})
}

type deleteCmd struct {
	app *App
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete expenses by id" }
func (*deleteCmd) Usage() string {
	return `expensectl delete <id> [<id>...]

  Unknown ids are ignored.
` + offlineNote
}

func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(c.app.Err, "delete needs at least one expense id")
		return subcommands.ExitUsageError
	}
	return c.app.run(ctx, func(s *session) error {
		for _, id := range f.Args() {
			if err := s.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.app.Out, "deleted %s\n", id)
		}
		return nil
	})
}

type summaryCmd struct {
	app *App
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print totals per category and month" }
func (*summaryCmd) Usage() string {
	return `expensectl summary
`
}

func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *session) error {
		snap := s.Snapshot()
		out, cur := c.app.Out, c.app.Currency
		if !snap.HasData {
			fmt.Fprintln(out, "Add expenses to see summary.")
			return nil
		}

		sum := snap.Summary
		fmt.Fprintf(out, "Total Expenses:         %s\n", sum.Total.Format(cur))
		fmt.Fprintf(out, "Number of Expenses:     %d\n", sum.Count)
		fmt.Fprintf(out, "Average Expense:        %s\n", sum.AverageMoney().Format(cur))
		fmt.Fprintf(out, "Highest Expense:        %s (%s, %s)\n", sum.Highest.Title, sum.Highest.Amount.Format(cur), sum.Highest.Category)
		fmt.Fprintf(out, "Most Frequent Category: %s\n", sum.MostFrequentCategory)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(out, "\nBy category:")
		for _, c := range snap.Shares {
			fmt.Fprintf(tw, "%s\t%s\t%d%%\t\n", c.Category, c.Amount.Format(cur), c.Percent)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out, "\nBy month:")
		for _, m := range snap.ByMonth {
			fmt.Fprintf(tw, "%s\t%s\t\n", m.Label, m.Total.Format(cur))
		}
		return tw.Flush()
	})
}

type reportCmd struct {
	app      *App
	markdown bool
	style    string
	width    int
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "render the printable expense summary" }
func (*reportCmd) Usage() string {
	return `expensectl report [-md] [-style dark|light|notty] [-width N]
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.markdown, "md", false, "Print the Markdown source instead of rendering it")
	f.StringVar(&c.style, "style", "dark", "Terminal style (dark, light, notty)")
	f.IntVar(&c.width, "width", 100, "Word wrap width")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *session) error {
		rep := report.New(s.Records(), c.app.Currency, time.Now())
		var (
			out string
			err error
		)
		if c.markdown {
			out, err = rep.Markdown()
		} else {
			out, err = rep.Terminal(c.style, c.width)
		}
		if err != nil {
			return err
		}
		_, err = io.WriteString(c.app.Out, out)
		return err
	})
}
