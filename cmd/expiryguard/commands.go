package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/barcode"
	"github.com/zombor/expiryguard/internal/expiry"
	"github.com/zombor/expiryguard/internal/imaging"
	"github.com/zombor/expiryguard/internal/inventory"
)

func (a *app) commands() *ff.Command {
	rootFlags := a.rootFlags()

	loginFlags := ff.NewFlagSet("login").SetParent(rootFlags)
	loginUser := loginFlags.StringLong("username", "", "Account username")
	loginPass := loginFlags.StringLong("password", "", "Account password")

	signupFlags := ff.NewFlagSet("signup").SetParent(rootFlags)
	signupUser := signupFlags.StringLong("username", "", "Account username")
	signupEmail := signupFlags.StringLong("email", "", "Email address for expiry alerts")
	signupPass := signupFlags.StringLong("password", "", "Account password")

	listFlags := ff.NewFlagSet("list").SetParent(rootFlags)
	listAttention := listFlags.BoolLong("attention", "Only show products that are near or past expiry")

	addFlags := ff.NewFlagSet("add").SetParent(rootFlags)
	addName := addFlags.StringLong("name", "", "Product name")
	addExpiry := addFlags.StringLong("expiry", "", "Expiry date (DD/MM/YYYY)")
	addBarcode := addFlags.StringLong("barcode", "", "Barcode to look up (8-13 digits)")
	addScan := addFlags.BoolLong("scan", "Scan the barcode before filling the form")
	addPhoto := addFlags.StringLong("photo", "", "Label photo to read the name and expiry from")
	addMfg := addFlags.StringLong("mfg", "", "Manufacturing date (DD/MM/YYYY), derives the expiry with --months")
	addMonths := addFlags.StringLong("months", "", "Best before months after manufacture")

	scanFlags := ff.NewFlagSet("scan").SetParent(rootFlags)
	scanTimeout := scanFlags.DurationLong("timeout", 2*time.Minute, "Give up scanning after this long")

	voiceFlags := ff.NewFlagSet("voice").SetParent(rootFlags)
	voiceAdd := voiceFlags.BoolLong("add", "Add the product after parsing the sentence")

	leaf := func(name, usage, help string, fs *ff.FlagSet, exec func(context.Context, []string) error) *ff.Command {
		if fs == nil {
			fs = ff.NewFlagSet(name).SetParent(rootFlags)
		}
		return &ff.Command{Name: name, Usage: "expiryguard " + usage, ShortHelp: help, Flags: fs, Exec: a.withService(exec)}
	}

	notifyCmd := &ff.Command{
		Name:      "notify",
		Usage:     "expiryguard notify <on|off>",
		ShortHelp: "turn expiry alert emails on or off",
		Flags:     ff.NewFlagSet("notify").SetParent(rootFlags),
		Subcommands: []*ff.Command{
			leaf("on", "notify on", "turn expiry alert emails on", nil, func(ctx context.Context, args []string) error {
				return a.setNotifications(ctx, true)
			}),
			leaf("off", "notify off", "turn expiry alert emails off", nil, func(ctx context.Context, args []string) error {
				return a.setNotifications(ctx, false)
			}),
		},
	}

	return &ff.Command{
		Name:      "expiryguard",
		Usage:     "expiryguard [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "track product expiry dates",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			leaf("login", "login --username NAME --password PASS", "log in and remember the session", loginFlags, func(ctx context.Context, args []string) error {
				user, err := a.service.Login(ctx, *loginUser, *loginPass)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Logged in as %s\n", user.Username)
				return nil
			}),
			leaf("signup", "signup --username NAME --email EMAIL --password PASS", "create an account", signupFlags, func(ctx context.Context, args []string) error {
				user, err := a.service.Signup(ctx, api.SignupRequest{Username: *signupUser, Email: *signupEmail, Password: *signupPass})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Welcome, %s\n", user.Username)
				return nil
			}),
			leaf("logout", "logout", "forget the saved session", nil, func(ctx context.Context, args []string) error {
				return a.service.Logout()
			}),
			leaf("whoami", "whoami", "show the logged in user", nil, func(ctx context.Context, args []string) error {
				user, err := a.service.Restore(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s <%s>\n", user.Username, user.Email)
				if user.NotificationTime != nil {
					fmt.Fprintf(a.stdout, "Alerts at %02d:%02d\n", user.NotificationTime.Hour, user.NotificationTime.Minute)
				}
				return nil
			}),
			leaf("list", "list [--attention]", "list products by expiry", listFlags, func(ctx context.Context, args []string) error {
				return a.list(ctx, *listAttention)
			}),
			leaf("add", "add [--name N] [--expiry D] [--barcode B | --scan] [--photo P] [--mfg D --months M]", "add a product", addFlags, func(ctx context.Context, args []string) error {
				return a.add(ctx, addOptions{
					name:    *addName,
					expiry:  *addExpiry,
					barcode: *addBarcode,
					scan:    *addScan,
					photo:   *addPhoto,
					mfg:     *addMfg,
					months:  *addMonths,
				})
			}),
			leaf("delete", "delete ID", "delete a product", nil, func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return errors.New("delete takes exactly one product ID")
				}
				if err := a.service.DeleteProduct(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "Product deleted")
				return nil
			}),
			leaf("stats", "stats", "show inventory statistics", nil, a.stats),
			leaf("alerts", "alerts", "email alerts for products expiring within three days", nil, func(ctx context.Context, args []string) error {
				res, err := a.service.SendExpiryAlerts(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s (%d products)\n", res.Message, res.ProductsCount)
				return nil
			}),
			leaf("lookup", "lookup BARCODE", "look a barcode up", nil, func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return errors.New("lookup takes exactly one barcode")
				}
				product, err := a.service.LookupBarcode(ctx, args[0])
				if err != nil {
					return err
				}
				if product == nil {
					fmt.Fprintln(a.stdout, "No product found for this barcode")
					return nil
				}
				fmt.Fprintf(a.stdout, "%s (%s)\n", product.ProductName, product.SourceLabel())
				return nil
			}),
			leaf("scan", "scan [--frames DIR] [--timeout D]", "scan a barcode and look it up", scanFlags, func(ctx context.Context, args []string) error {
				form, err := a.form(ctx)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(ctx, *scanTimeout)
				defer cancel()
				if err := a.scan(ctx, form); err != nil {
					return err
				}
				a.printForm(form.State())
				return nil
			}),
			leaf("label", "label PHOTO", "read the name and expiry from a label photo", nil, func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return errors.New("label takes exactly one photo")
				}
				form, err := a.form(ctx)
				if err != nil {
					return err
				}
				if err := a.upload(ctx, form, args[0]); err != nil {
					return err
				}
				state := form.State()
				a.printForm(state)
				if state.ExtractedText != "" {
					fmt.Fprintf(a.stdout, "\n%s\n", state.ExtractedText)
				}
				return nil
			}),
			leaf("voice", "voice [--add] SENTENCE...", "parse a spoken sentence such as \"milk expires on 12 June\"", voiceFlags, func(ctx context.Context, args []string) error {
				form, err := a.form(ctx, inventory.WithSpeech(transcript(strings.Join(args, " "))))
				if err != nil {
					return err
				}
				if err := form.VoiceInput(ctx); err != nil {
					return err
				}
				if !*voiceAdd {
					a.printForm(form.State())
					return nil
				}
				product, err := form.Submit(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Added %s (expires %s)\n", product.ProductName, product.ExpiryDate)
				return nil
			}),
			notifyCmd,
			leaf("schedule", "schedule HH:MM", "set the daily alert time", nil, func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return errors.New("schedule takes a time such as 08:30")
				}
				hour, minute, err := parseClock(args[0])
				if err != nil {
					return err
				}
				res, err := a.service.SetAlertTime(ctx, hour, minute)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, res.Message)
				return nil
			}),
		},
	}
}

func (a *app) setNotifications(ctx context.Context, on bool) error {
	res, err := a.service.SetNotifications(ctx, on)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, res.Message)
	return nil
}

func (a *app) list(ctx context.Context, attentionOnly bool) error {
	dash, err := a.service.Dashboard(ctx, time.Now())
	if err != nil {
		return err
	}

	items := dash.Items
	if attentionOnly {
		items = dash.Attention
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tEXPIRES\tDAYS\tSTATUS\tBARCODE")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", item.ID, item.ProductName, item.ExpiryDate, item.DaysLeft, item.Status, item.Barcode)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\n%d safe, %d near expiry, %d expired\n",
		dash.Counts[expiry.StatusSafe], dash.Counts[expiry.StatusNear], dash.Counts[expiry.StatusExpired])
	return nil
}

func (a *app) stats(ctx context.Context, args []string) error {
	stats, err := a.service.Statistics(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total items\t%d\n", stats.TotalItems)
	fmt.Fprintf(tw, "Expiring this week\t%d\n", stats.ExpiringThisWeek)
	fmt.Fprintf(tw, "Expired\t%d\n", stats.ExpiredItems)
	fmt.Fprintf(tw, "Added this month\t%d\n", stats.ItemsAddedThisMonth)
	return tw.Flush()
}

type addOptions struct {
	name, expiry, barcode string
	scan                  bool
	photo                 string
	mfg, months           string
}

func (a *app) add(ctx context.Context, opts addOptions) error {
	form, err := a.form(ctx)
	if err != nil {
		return err
	}

	switch {
	case opts.barcode != "":
		if _, err := form.ManualBarcode(ctx, opts.barcode); err != nil {
			return err
		}
	case opts.scan:
		if err := a.scan(ctx, form); err != nil {
			return err
		}
	}

	if opts.photo != "" {
		if err := a.upload(ctx, form, opts.photo); err != nil {
			return err
		}
	}

	if opts.name != "" {
		form.SetProductName(opts.name)
	}
	if opts.expiry != "" {
		form.SetExpiryDate(opts.expiry)
	}
	if opts.mfg != "" || opts.months != "" {
		form.SetBestBefore(true)
	}
	if opts.months != "" {
		form.SetShelfLifeMonths(opts.months)
	}
	if opts.mfg != "" {
		form.SetManufacturingDate(opts.mfg)
	}

	product, err := form.Submit(ctx)
	if err != nil {
		form.Discard()
		return err
	}
	fmt.Fprintf(a.stdout, "Added %s (expires %s) with ID %s\n", product.ProductName, product.ExpiryDate, product.ID)
	return nil
}

func (a *app) upload(ctx context.Context, form *inventory.Form, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}
	if imaging.ContentTypeFromName(path) == "application/octet-stream" {
		return fmt.Errorf("%s: %w", filepath.Base(path), imaging.ErrUnsupportedFormat)
	}
	_, err = form.UploadImage(ctx, filepath.Base(path), data)
	return err
}

// scan runs a scanning session. A line typed on stdin is taken as a manual barcode and an
// empty line closes the scanner.
func (a *app) scan(ctx context.Context, form *inventory.Form) error {
	session := form.OpenScanner(ctx)
	fmt.Fprintln(a.stderr, "Scanning... type the barcode and press enter, or press enter to cancel")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	done := session.Done()
	for {
		select {
		case <-ctx.Done():
			form.CloseScanner()
			return fmt.Errorf("scanning: %w", ctx.Err())
		case <-done:
			if session.Result() != "" {
				return nil
			}
			// No camera; typed codes still work.
			done = nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "" {
				form.CloseScanner()
				return errors.New("scanning cancelled")
			}
			_, err := form.ManualBarcode(ctx, line)
			if errors.Is(err, barcode.ErrInvalidBarcode) {
				continue
			}
			return err
		}
	}
}

func (a *app) printForm(state inventory.FormState) {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Product\t%s\n", state.Input.ProductName)
	fmt.Fprintf(tw, "Expiry\t%s\n", state.Input.ExpiryDate)
	if state.Input.Barcode != "" {
		fmt.Fprintf(tw, "Barcode\t%s\n", state.Input.Barcode)
	}
	if state.Scanned != nil {
		fmt.Fprintf(tw, "Source\t%s\n", state.Scanned.SourceLabel())
	}
	if state.BestBefore.Enabled {
		fmt.Fprintf(tw, "Best before\t%s months\n", state.BestBefore.ShelfLifeMonths)
	}
	if state.Input.ImageURL != "" {
		fmt.Fprintf(tw, "Image\t%s\n", state.Input.ImageURL)
	}
	tw.Flush()
}

// parseClock parses a 24 hour HH:MM time
func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
