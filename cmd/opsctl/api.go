package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/mataresit"
)

func newAPICmd(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Call the external receipts API with the configured key",
	}
	cmd.AddCommand(
		newAPIHealthCmd(rt),
		newAPIReceiptsCmd(rt),
		newAPISearchCmd(rt),
		newAPIAnalyticsCmd(rt),
		newAPITeamsCmd(rt),
		newAPIBulkUploadCmd(rt),
		newAPIUploadCmd(rt),
		newAPIUpdateCmd(rt),
		newAPIDeleteCmd(rt),
		newAPIClaimsCmd(rt),
		newAPISpendingCmd(rt),
	)
	return cmd
}

func newAPIHealthCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the API and show the key's identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			rt.Out.Success("API %s", h.Status)
			rt.Out.Pairs(
				console.KV{Key: "Version", Value: h.Version},
				console.KV{Key: "User", Value: h.User.ID},
				console.KV{Key: "Scopes", Value: strings.Join(h.User.Scopes, ", ")},
			)
			return nil
		},
	}
}

func newAPIReceiptsCmd(rt *cli.Runtime) *cobra.Command {
	var f mataresit.ReceiptFilter
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			list, err := c.ListReceipts(cmd.Context(), f)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list.Receipts))
			for _, r := range list.Receipts {
				rows = append(rows, []string{r.ID, r.Date, r.Merchant, r.Total.StringFixed(2) + " " + r.Currency, r.Category, r.ProcessingStatus})
			}
			rt.Out.Table([]string{"ID", "Date", "Merchant", "Total", "Category", "Processing"}, rows)
			rt.Out.Line("%d of %d", len(list.Receipts), list.Pagination.Total)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.Limit, "limit", 20, "page size")
	fl.IntVar(&f.Offset, "offset", 0, "page offset")
	fl.StringVar(&f.StartDate, "start", "", "earliest receipt date (YYYY-MM-DD)")
	fl.StringVar(&f.EndDate, "end", "", "latest receipt date (YYYY-MM-DD)")
	fl.StringVar(&f.Category, "category", "", "category filter")
	return cmd
}

func newAPISearchCmd(rt *cli.Runtime) *cobra.Command {
	var req mataresit.SearchRequest
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search across receipts and claims",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			req.Query = strings.Join(args, " ")
			res, err := c.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(res.Results))
			for _, r := range res.Results {
				rows = append(rows, []string{r.SourceType, r.Title, fmt.Sprintf("%.3f", r.Similarity)})
			}
			rt.Out.Table([]string{"Source", "Title", "Similarity"}, rows)
			rt.Out.Line("%d results", res.TotalResults)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Limit, "limit", 10, "maximum results")
	cmd.Flags().StringSliceVar(&req.Sources, "sources", nil, "restrict to source types")
	return cmd
}

func newAPIAnalyticsCmd(rt *cli.Runtime) *cobra.Command {
	var (
		days     int
		currency string
	)
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Spending summary and category breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			r := mataresit.LastDays(time.Now(), days)
			r.Currency = currency
			a, err := c.Analytics(cmd.Context(), r)
			if err != nil {
				return err
			}
			rt.Out.Title(fmt.Sprintf("Spending %s to %s", r.StartDate, r.EndDate))
			rt.Out.Pairs(
				console.KV{Key: "Total", Value: a.Summary.TotalAmount.StringFixed(2) + " " + a.Summary.Currency},
				console.KV{Key: "Receipts", Value: strconv.Itoa(a.Summary.TotalReceipts)},
				console.KV{Key: "Average", Value: a.Summary.AverageAmount.StringFixed(2)},
			)
			rows := make([][]string, 0, len(a.CategoryBreakdown))
			for _, cs := range a.CategoryBreakdown {
				rows = append(rows, []string{cs.Category, cs.Amount.StringFixed(2), strconv.Itoa(cs.Count), console.Percent(cs.Percentage)})
			}
			rt.Out.Table([]string{"Category", "Amount", "Receipts", "Share"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window length in days")
	cmd.Flags().StringVar(&currency, "currency", "", "currency filter")
	return cmd
}

func newAPITeamsCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List teams with their statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			list, err := c.Teams(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list.Teams))
			for _, t := range list.Teams {
				st, err := c.TeamStats(cmd.Context(), t.ID)
				if err != nil {
					return errors.Wrapf(err, "team %s stats", t.ID)
				}
				rows = append(rows, []string{
					t.Name, t.Role,
					strconv.Itoa(st.MemberCount),
					strconv.Itoa(st.TotalReceipts),
					st.TotalAmount.StringFixed(2),
					strconv.Itoa(st.PendingClaims),
				})
			}
			rt.Out.Table([]string{"Team", "Role", "Members", "Receipts", "Amount", "Pending claims"}, rows)
			return nil
		},
	}
}

func newAPIBulkUploadCmd(rt *cli.Runtime) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "bulk-upload <csv>",
		Short: "Create receipts from a CSV file in batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open csv")
			}
			in, err := mataresit.ReadReceiptsCSV(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			if len(in) == 0 {
				rt.Out.Warn("%s has no rows", args[0])
				return nil
			}

			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			res, err := c.BulkUpload(cmd.Context(), in, batchSize)
			if res != nil {
				rt.Out.Pairs(
					console.KV{Key: "Rows", Value: strconv.Itoa(res.Total)},
					console.KV{Key: "Created", Value: strconv.Itoa(len(res.Created))},
					console.KV{Key: "Failed", Value: strconv.Itoa(len(res.Failed))},
				)
				for _, e := range res.Failed {
					if e.Batch > 0 {
						rt.Out.Fail("batch %d: %s", e.Batch, e.Error)
						continue
					}
					rt.Out.Fail("row %d: %s", e.Index+1, e.Error)
				}
			}
			if err != nil {
				return err
			}
			if len(res.Failed) > 0 {
				return errors.Errorf("%d uploads failed", len(res.Failed))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "receipts per batch request")
	return cmd
}

func newAPIUploadCmd(rt *cli.Runtime) *cobra.Command {
	var (
		in      mataresit.ReceiptInput
		total   string
		wait    bool
		maxWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Create one receipt, optionally waiting for processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := mataresit.NewAmount(total)
			if err != nil {
				return errors.Wrapf(err, "parse total %q", total)
			}
			in.Total = amount

			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			if !wait {
				r, err := c.CreateReceipt(cmd.Context(), in)
				if err != nil {
					return err
				}
				rt.Out.Success("Created %s", r.ID)
				return nil
			}

			r, err := c.UploadAndWait(cmd.Context(), in, maxWait)
			if r != nil {
				rt.Out.Pairs(
					console.KV{Key: "ID", Value: r.ID},
					console.KV{Key: "Merchant", Value: r.Merchant},
					console.KV{Key: "Total", Value: r.Total.StringFixed(2) + " " + r.Currency},
					console.KV{Key: "Processing", Value: r.ProcessingStatus},
				)
			}
			if err != nil {
				return err
			}
			rt.Out.Success("Processed %s", r.ID)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&in.Merchant, "merchant", "", "merchant name")
	fl.StringVar(&in.Date, "date", time.Now().Format(time.DateOnly), "receipt date (YYYY-MM-DD)")
	fl.StringVar(&total, "total", "", "receipt total")
	fl.StringVar(&in.Currency, "currency", "USD", "currency code")
	fl.StringVar(&in.Category, "category", "", "category")
	fl.StringVar(&in.PaymentMethod, "payment-method", "", "payment method")
	fl.StringVar(&in.TeamID, "team", "", "team id")
	fl.BoolVar(&wait, "wait", false, "poll until processing completes or fails")
	fl.DurationVar(&maxWait, "max-wait", time.Minute, "processing wait limit")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func newAPIUpdateCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <field=value>...",
		Short: "Update receipt fields",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := make(map[string]any, len(args)-1)
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return errors.Errorf("invalid field %q, want field=value", kv)
				}
				fields[k] = v
			}
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			r, err := c.UpdateReceipt(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			rt.Out.Success("Updated %s (%s, %s %s)", r.ID, r.Merchant, r.Total.StringFixed(2), r.Currency)
			return nil
		},
	}
}

func newAPIDeleteCmd(rt *cli.Runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !cli.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete receipt "+args[0]+"?") {
				rt.Out.Warn("Cancelled")
				return nil
			}
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			if err := c.DeleteReceipt(cmd.Context(), args[0]); err != nil {
				return err
			}
			rt.Out.Success("Deleted %s", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newAPIClaimsCmd(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List or create team claims",
	}

	var teamID, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			params := url.Values{}
			if teamID != "" {
				params.Set("teamId", teamID)
			}
			if status != "" {
				params.Set("status", status)
			}
			res, err := c.ListClaims(cmd.Context(), params)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(res.Claims))
			for _, cl := range res.Claims {
				rows = append(rows, []string{cl.ID, cl.Title, cl.Amount.StringFixed(2) + " " + cl.Currency, cl.Priority, cl.Status})
			}
			rt.Out.Table([]string{"ID", "Title", "Amount", "Priority", "Status"}, rows)
			return nil
		},
	}
	list.Flags().StringVar(&teamID, "team", "", "team id")
	list.Flags().StringVar(&status, "status", "", "claim status")

	var (
		in     mataresit.ClaimInput
		amount string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := mataresit.NewAmount(amount)
			if err != nil {
				return errors.Wrapf(err, "parse amount %q", amount)
			}
			in.Amount = a
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			cl, err := c.CreateClaim(cmd.Context(), in)
			if err != nil {
				return err
			}
			rt.Out.Success("Created claim %s (%s)", cl.ID, cl.Priority)
			return nil
		},
	}
	fl := create.Flags()
	fl.StringVar(&in.TeamID, "team", "", "team id")
	fl.StringVar(&in.Title, "title", "", "claim title")
	fl.StringVar(&amount, "amount", "", "claimed amount")
	fl.StringVar(&in.Currency, "currency", "", "currency code")
	fl.StringVar(&in.Priority, "priority", "", "low, medium, high or urgent")
	fl.StringVar(&in.Description, "description", "", "description")
	fl.StringVar(&in.Category, "category", "", "category")
	_ = create.MarkFlagRequired("team")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("amount")

	cmd.AddCommand(list, create)
	return cmd
}

func newAPISpendingCmd(rt *cli.Runtime) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "spending",
		Short: "Spending summary and per-category totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.Env.API()
			if err != nil {
				return err
			}
			r := mataresit.LastDays(time.Now(), days)
			sum, err := c.SpendingSummary(cmd.Context(), r)
			if err != nil {
				return err
			}
			cats, err := c.CategoryAnalytics(cmd.Context(), r)
			if err != nil {
				return err
			}
			rt.Out.Pairs(
				console.KV{Key: "Total", Value: sum.TotalAmount.StringFixed(2) + " " + sum.Currency},
				console.KV{Key: "Receipts", Value: strconv.Itoa(sum.TotalReceipts)},
				console.KV{Key: "Average", Value: sum.AverageAmount.StringFixed(2)},
			)
			rows := make([][]string, 0, len(cats.Categories))
			for _, cs := range cats.Categories {
				rows = append(rows, []string{cs.Category, cs.Amount.StringFixed(2), strconv.Itoa(cs.Count), console.Percent(cs.Percentage)})
			}
			rt.Out.Table([]string{"Category", "Amount", "Receipts", "Share"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window length in days")
	return cmd
}
