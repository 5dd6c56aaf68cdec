package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leadline/internal/app"
	"leadline/internal/config"
	"leadline/internal/engine"
	"leadline/internal/pipeline"
	"leadline/internal/server"
	"leadline/internal/signal"
	"leadline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Leadline CLI",
	Long: `Leadline runs an autonomous sales pipeline over a file-backed workspace.
Raw signals come in from scrapers, get deduplicated and scored, and move
through the lead, deal, client, and invoice state machines. Dollar-gated
transitions pause on an approval queue until a human signs off. Every
applied transition lands in the append-only event log ('ll log tail').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := store.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEADLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("pipeline", "", "pipeline id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("pipeline", rootCmd.PersistentFlags().Lookup("pipeline"))
}

func registerCommands() {
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(dealCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(caseStudyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func signalCmd() *cobra.Command {
	sig := &cobra.Command{Use: "signal", Short: "Submit raw signals"}
	sig.AddCommand(signalSubmitCmd())
	return sig
}

func signalSubmitCmd() *cobra.Command {
	var raw signal.Raw
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one raw signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				coord := pipeline.New(e)
				lead, err := coord.SubmitSignal(ctx, raw, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(lead)
			})
		},
	}
	cmd.Flags().StringVar(&raw.Source, "source", "", "signal source (job_board, twitter, reddit, website, referral)")
	cmd.Flags().StringVar(&raw.ExternalID, "external-id", "", "source-native identifier")
	cmd.Flags().StringVar(&raw.Text, "text", "", "signal text")
	cmd.Flags().StringVar(&raw.Company, "company", "", "company name")
	cmd.Flags().StringVar(&raw.Contact, "contact", "", "contact name")
	cmd.Flags().StringVar(&raw.CompanySize, "company-size", "", "company size, e.g. 25-50 or 200+")
	cmd.Flags().StringVar(&raw.Industry, "industry", "", "industry")
	return cmd
}

func cycleCmd() *cobra.Command {
	cyc := &cobra.Command{Use: "cycle", Short: "Run pipeline cycles"}
	cyc.AddCommand(cycleRunCmd())
	return cyc
}

func cycleRunCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one cycle over a JSON batch of signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var raws []signal.Raw
			if err := json.Unmarshal(data, &raws); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				coord := pipeline.New(e)
				report := coord.RunCycle(ctx, raws, actorID())
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding an array of raw signals")
	return cmd
}

func leadCmd() *cobra.Command {
	lead := &cobra.Command{Use: "lead", Short: "Manage leads"}
	lead.AddCommand(leadListCmd())
	lead.AddCommand(leadShowCmd())
	lead.AddCommand(leadAdvanceCmd())
	lead.AddCommand(leadDisqualifyCmd())
	lead.AddCommand(leadEscalateCmd())
	lead.AddCommand(leadReplyCmd())
	lead.AddCommand(leadOutreachCmd())
	return lead
}

func leadListCmd() *cobra.Command {
	var stage, tier string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				leads, err := e.Store.Leads().List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(leads)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Company", "Source", "Score", "Tier", "Stage"})
				for _, l := range leads {
					if stage != "" && l.Stage != stage {
						continue
					}
					if tier != "" && l.Tier != tier {
						continue
					}
					tw.AppendRow(table.Row{l.ID, l.Company, l.Source, l.Score, l.Tier, l.Stage})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage filter")
	cmd.Flags().StringVar(&tier, "tier", "", "tier filter")
	return cmd
}

func leadShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <lead-id>",
		Short: "Show a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lead, err := e.Store.Leads().Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(lead)
			})
		},
	}
	return cmd
}

func leadAdvanceCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "advance <lead-id>",
		Short: "Attempt a lead stage transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lead, res, err := e.AttemptLeadTransition(ctx, args[0], target, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"lead": lead, "result": res})
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target stage")
	return cmd
}

func leadDisqualifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disqualify <lead-id>",
		Short: "Disqualify a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lead, res, err := e.AttemptLeadTransition(ctx, args[0], "disqualified", actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"lead": lead, "result": res})
			})
		},
	}
	return cmd
}

func leadEscalateCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "escalate <lead-id>",
		Short: "Flag a lead for human attention",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lead, err := e.SetLeadEscalated(ctx, args[0], !clear, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(lead)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the escalation flag")
	return cmd
}

func leadOutreachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outreach <lead-id>",
		Short: "Send the next outreach sequence step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				seq, res, err := e.AdvanceSequence(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"sequence": seq, "result": res})
			})
		},
	}
	return cmd
}

func leadReplyCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "reply <lead-id>",
		Short: "Record a prospect reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--status required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				seq, err := e.RecordReply(ctx, args[0], status, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(seq)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "reply status (replied, bounced, unsubscribed)")
	return cmd
}

func dealCmd() *cobra.Command {
	deal := &cobra.Command{Use: "deal", Short: "Manage deals"}
	deal.AddCommand(dealCreateCmd())
	deal.AddCommand(dealListCmd())
	deal.AddCommand(dealShowCmd())
	deal.AddCommand(dealAdvanceCmd())
	return deal
}

func dealCreateCmd() *cobra.Command {
	var opts engine.DealCreateOptions
	cmd := &cobra.Command{
		Use:   "create <lead-id>",
		Short: "Open a deal from a meeting-booked lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.LeadID = args[0]
				opts.ActorID = actorID()
				deal, err := e.CreateDeal(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(deal)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Tier, "tier", "", "pricing tier (default picks from config)")
	cmd.Flags().IntVar(&opts.MonthlyValue, "value", 0, "monthly value override in dollars")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "deal kind (standard, custom_fulfillment)")
	cmd.Flags().BoolVar(&opts.Escalated, "escalated", false, "flag for human attention")
	return cmd
}

func dealListCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deals, err := e.Store.Deals().List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(deals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Company", "Tier", "Value", "Stage", "Approval"})
				for _, d := range deals {
					if stage != "" && d.Stage != stage {
						continue
					}
					approval := ""
					if d.RequiresApproval {
						approval = "required"
					}
					if d.ApprovedBy != nil {
						approval = "by " + *d.ApprovedBy
					}
					tw.AppendRow(table.Row{d.ID, d.Company, d.Tier, d.MonthlyValue, d.Stage, approval})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage filter")
	return cmd
}

func dealShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <deal-id>",
		Short: "Show a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deal, err := e.Store.Deals().Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(deal)
			})
		},
	}
	return cmd
}

func dealAdvanceCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "advance <deal-id>",
		Short: "Attempt a deal stage transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deal, res, err := e.AttemptDealTransition(ctx, args[0], target, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"deal": deal, "result": res})
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target stage")
	return cmd
}

func approvalCmd() *cobra.Command {
	appr := &cobra.Command{Use: "approval", Short: "Approval queue"}
	appr.AddCommand(approvalListCmd())
	appr.AddCommand(approvalResolveCmd("approve"))
	appr.AddCommand(approvalResolveCmd("reject"))
	return appr
}

func approvalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending approval gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pending, err := e.PendingApprovals(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pending)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Gate", "Entity", "Target", "Reason", "Requested"})
				for _, a := range pending {
					tw.AppendRow(table.Row{a.GateID, a.EntityKind + "/" + a.EntityID, a.TargetStage, a.Reason, a.RequestedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func approvalResolveCmd(decision string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   decision + " <gate-id>",
		Short: strings.ToUpper(decision[:1]) + decision[1:] + " a pending gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				appr, res, err := e.ResolveApproval(ctx, args[0], decision, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"approval": appr, "result": res})
			})
		},
	}
	return cmd
}

func clientCmd() *cobra.Command {
	cl := &cobra.Command{Use: "client", Short: "Manage clients"}
	cl.AddCommand(clientListCmd())
	cl.AddCommand(clientChurnCmd())
	cl.AddCommand(clientMilestoneCmd())
	cl.AddCommand(clientExpirePilotsCmd())
	return cl
}

func clientListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clients, err := e.Store.Clients().List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(clients)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Company", "Tier", "MRR", "Status", "Milestone"})
				for _, c := range clients {
					if status != "" && c.Status != status {
						continue
					}
					milestone := ""
					if c.MilestoneDone {
						milestone = "done"
					}
					tw.AppendRow(table.Row{c.ID, c.Company, c.Tier, c.MonthlyValue, c.Status, milestone})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func clientChurnCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "churn <client-id>",
		Short: "Churn a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				client, res, err := e.ChurnClient(ctx, args[0], reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"client": client, "result": res})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "churn reason")
	return cmd
}

func clientMilestoneCmd() *cobra.Command {
	var workflows []string
	cmd := &cobra.Command{
		Use:   "milestone <client-id>",
		Short: "Mark the first-results milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				client, err := e.MarkMilestone(ctx, args[0], workflows, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(client)
			})
		},
	}
	cmd.Flags().StringSliceVar(&workflows, "workflow", nil, "delivered workflow (repeatable)")
	return cmd
}

func clientExpirePilotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire-pilots",
		Short: "Churn active pilots past their expiry date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.ExpirePilots(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"expired": n})
			})
		},
	}
	return cmd
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invoice", Short: "Manage invoices"}
	inv.AddCommand(invoiceGenerateCmd())
	inv.AddCommand(invoiceListCmd())
	inv.AddCommand(invoiceMarkCmd())
	return inv
}

func invoiceGenerateCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate monthly invoices for active clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if period == "" {
				period = time.Now().UTC().Format("2006-01")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				invoices, err := e.GenerateInvoices(ctx, period, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(invoices)
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "billing period YYYY-MM (default current month)")
	return cmd
}

func invoiceListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				invoices, err := e.Store.Invoices().List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(invoices)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Period", "Amount", "Due", "Status"})
				for _, i := range invoices {
					if status != "" && i.Status != status {
						continue
					}
					tw.AppendRow(table.Row{i.ID, i.ClientID, i.Period, i.Amount, i.DueDate, i.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func invoiceMarkCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "mark <invoice-id>",
		Short: "Move an invoice to sent or paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--status required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, res, err := e.MarkInvoice(ctx, args[0], target, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"invoice": inv, "result": res})
			})
		},
	}
	cmd.Flags().StringVar(&target, "status", "", "target status (sent, paid)")
	return cmd
}

func caseStudyCmd() *cobra.Command {
	cs := &cobra.Command{Use: "casestudy", Short: "Case studies"}
	cs.AddCommand(caseStudyPublishCmd())
	cs.AddCommand(caseStudyListCmd())
	return cs
}

func caseStudyPublishCmd() *cobra.Command {
	var narrative string
	cmd := &cobra.Command{
		Use:   "publish <client-id>",
		Short: "Publish a case study for a milestone client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if narrative == "" {
				return fmt.Errorf("--narrative required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cs, err := e.PublishCaseStudy(ctx, args[0], narrative, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(cs)
			})
		},
	}
	cmd.Flags().StringVar(&narrative, "narrative", "", "case study narrative")
	return cmd
}

func caseStudyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published case studies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Store.CaseStudies().List(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show pipeline summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.BuildReport(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Pipeline: %s\n", e.Config.Pipeline.ID)
				fmt.Printf("Leads: %d hot, %d warm", report.HotLeads, report.WarmLeads)
				for stage, n := range report.Leads {
					fmt.Printf(", %d %s", n, stage)
				}
				fmt.Println()
				fmt.Printf("Deals:")
				for stage, n := range report.Deals {
					fmt.Printf(" %d %s", n, stage)
				}
				fmt.Println()
				fmt.Printf("Clients: %d active, %d churned, MRR $%d\n", report.Clients, report.Churned, report.MRR)
				fmt.Printf("Invoices:")
				for status, n := range report.Invoices {
					fmt.Printf(" %d %s", n, status)
				}
				fmt.Println()
				fmt.Printf("Case studies: %d, pending approvals: %d\n", report.CaseStudies, report.Pending)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail the transition log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Store.TailEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var pipelineID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default leadline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			if pipelineID == "" {
				pipelineID = "leadline"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(pipelineID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&pipelineID, "pipeline", "", "pipeline id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, err := app.Resolve(workspace, viper.GetString("pipeline"))
			if err != nil {
				return err
			}
			if addr == "" {
				addr = e.Config.Server.Addr
			}
			if addr == "" {
				addr = "127.0.0.1:8600"
			}
			secret := os.Getenv("LEADLINE_JWT_SECRET")
			if secret == "" {
				secret = e.Config.Server.JWTSecret
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Leadline API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, err := app.Resolve(viper.GetString("workspace"), viper.GetString("pipeline"))
	if err != nil {
		return err
	}
	return fn(ctx, e)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
