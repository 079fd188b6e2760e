package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomikpanda/rigup/internal/color"
	"github.com/atomikpanda/rigup/internal/config"
	"github.com/atomikpanda/rigup/internal/engine"
	"github.com/atomikpanda/rigup/internal/history"
	"github.com/atomikpanda/rigup/internal/platform"
	"github.com/atomikpanda/rigup/internal/prompt"
	"github.com/atomikpanda/rigup/internal/secrets"
	"github.com/atomikpanda/rigup/internal/steps"
	"github.com/atomikpanda/rigup/internal/tags"
)

var (
	configFile string
	dryRun     bool
	verbose    bool
)

func main() {
	color.Init()
	root := buildRoot()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "rigup",
		Short: "Converge a workstation onto a declarative step list",
		Long: `rigup bootstraps a machine from a single YAML file: package managers,
packages, toolchains, linked configs, and secrets. Every step checks whether
its state already holds before acting, so the whole list is safe to re-run.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "rigup.yaml", "path to step file")
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print actions without executing them")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show skipped steps and extra output")

	root.AddCommand(
		applyCmd(),
		statusCmd(),
		verifyCmd(),
		listCmd(),
		tagCmd(),
		initCmd(),
		logCmd(),
		platformCmd(),
		encryptCmd(),
		decryptCmd(),
	)

	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load step file %q: %w", configFile, err)
	}
	return cfg, nil
}

// machineTags loads the machine config, creating it with detected tags on
// first use.
func machineTags() ([]string, error) {
	if err := tags.EnsureInitialised(); err != nil {
		return nil, err
	}
	cfg, err := tags.Load()
	if err != nil {
		return nil, err
	}
	return cfg.Tags, nil
}

// newBuilder assembles a step builder rooted at the step file's directory.
func newBuilder(cfg config.Config, dry bool) (*steps.Builder, error) {
	machine, err := machineTags()
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(configFile)
	if !filepath.IsAbs(baseDir) {
		baseDir, _ = filepath.Abs(baseDir)
	}
	key := secrets.KeyFromConfig(cfg.Age)
	return steps.NewBuilder(baseDir, machine, key, dry), nil
}

func printBuildSkips(skipped []steps.Skip) {
	if !verbose {
		return
	}
	for _, s := range skipped {
		fmt.Printf("  %s\n", color.Dim(fmt.Sprintf("skip %s (%s)", s.Name, s.Reason)))
	}
}

// --- apply -------------------------------------------------------------------

func applyCmd() *cobra.Command {
	var tagFilter []string
	var keepGoing bool
	var strict bool
	var interactive bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run every pending step, in order",
		Example: `  rigup apply
  rigup apply --tag dev --tag work
  rigup apply --dry-run
  rigup apply --keep-going --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			b, err := newBuilder(cfg, dryRun)
			if err != nil {
				return err
			}
			if interactive {
				b.Confirm = prompt.ConfirmStep
			}

			built, skipped, err := b.Build(cfg.Steps)
			if err != nil {
				return err
			}
			printBuildSkips(skipped)

			res := runSteps(ctx, built, engine.Options{
				TagFilter:    tagFilter,
				AbortOnError: !keepGoing,
				StrictVerify: strict,
			})

			printOutcomes(res)
			if !dryRun {
				recordRun("apply", res)
			}
			if res.Failed() {
				os.Exit(res.ExitCode())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tagFilter, "tag", "t", nil, "only run steps matching a tag (repeatable)")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue past failed steps instead of aborting")
	cmd.Flags().BoolVar(&strict, "strict", false, "re-verify each step's precondition after applying")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "confirm each pending step before applying")
	return cmd
}

// runSteps wraps each step so its action announces itself before running,
// then hands the list to the engine.
func runSteps(ctx context.Context, built []steps.Built, opts engine.Options) engine.Result {
	engineSteps := make([]engine.Step, len(built))
	for i, bs := range built {
		step := bs.Step
		desc := bs.Desc
		inner := step.Apply
		step.Apply = func(ctx context.Context) error {
			fmt.Printf("  %s %s\n", color.Cyan("->"), desc)
			return inner(ctx)
		}
		engineSteps[i] = step
	}
	return engine.Run(ctx, engineSteps, opts)
}

func printOutcomes(res engine.Result) {
	fmt.Println()
	applied, skippedCount, failed := 0, 0, 0
	for _, out := range res.Outcomes {
		switch out.Status {
		case engine.StatusApplied:
			applied++
			fmt.Printf("  %s  %s", color.BoldGreen("applied"), out.Name)
		case engine.StatusSkipped:
			skippedCount++
			fmt.Printf("  %s  %s", color.Dim("skipped"), color.Dim(out.Name+" ("+out.Reason+")"))
		case engine.StatusFailed:
			failed++
			fmt.Printf("  %s   %s (%s)", color.BoldRed("failed"), out.Name, out.Reason)
			if out.Detail != "" {
				fmt.Printf(": %s", out.Detail)
			}
		}
		if out.CheckErr != "" {
			fmt.Printf("  %s", color.Yellow("[check error: "+out.CheckErr+"]"))
		}
		fmt.Println()
	}

	summary := fmt.Sprintf("\n%d applied, %d skipped, %d failed", applied, skippedCount, failed)
	switch res.Status {
	case engine.Aborted:
		fmt.Println(summary + " " + color.BoldRed("(aborted)"))
	case engine.CompletedWithFailures:
		fmt.Println(summary + " " + color.Red("(completed with failures)"))
	default:
		fmt.Println(summary)
	}
}

func recordRun(command string, res engine.Result) {
	for _, out := range res.Outcomes {
		history.Record(history.Entry{
			Command: command,
			Step:    out.Name,
			Outcome: string(out.Status),
			Reason:  out.Reason,
			Detail:  out.Detail,
		})
	}
}

// --- status ------------------------------------------------------------------

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which steps are pending without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			b, err := newBuilder(cfg, true)
			if err != nil {
				return err
			}
			built, skipped, err := b.Build(cfg.Steps)
			if err != nil {
				return err
			}
			printBuildSkips(skipped)

			pending := 0
			for _, bs := range built {
				var state string
				switch {
				case bs.Check == nil:
					state = color.Dim("no check")
				default:
					satisfied, checkErr := bs.Check(ctx)
					switch {
					case checkErr != nil:
						state = color.Red("unknown")
					case satisfied:
						state = color.Green("ok")
					default:
						state = color.Yellow("pending")
						pending++
					}
				}
				fmt.Printf("  %-8s  %-30s  %s\n", state, bs.Name, color.Dim(bs.Desc))
			}
			fmt.Printf("\n%d step(s) pending\n", pending)
			return nil
		},
	}
}

// --- verify ------------------------------------------------------------------

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every step's desired state holds",
		Long: `Runs each step's precondition and reports failures without applying
anything. Steps without a check are ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			b, err := newBuilder(cfg, true)
			if err != nil {
				return err
			}
			built, _, err := b.Build(cfg.Steps)
			if err != nil {
				return err
			}

			allPassed := true
			for _, bs := range built {
				if bs.Check == nil {
					if verbose {
						fmt.Printf("  %s  %s\n", color.Dim("-"), color.Dim(bs.Name+" (no check)"))
					}
					continue
				}
				satisfied, checkErr := bs.Check(ctx)
				switch {
				case checkErr != nil:
					allPassed = false
					fmt.Printf("  %s  %s: %v\n", color.BoldRed("✗"), bs.Name, checkErr)
				case satisfied:
					fmt.Printf("  %s  %s\n", color.Green("✓"), bs.Name)
				default:
					allPassed = false
					fmt.Printf("  %s  %s\n", color.BoldRed("✗"), bs.Name)
				}
				history.Record(history.Entry{
					Command: "verify",
					Step:    bs.Name,
					Outcome: verifyOutcome(satisfied, checkErr),
				})
			}

			if !allPassed {
				fmt.Fprintln(os.Stderr, color.BoldRed("\nsome checks failed"))
				os.Exit(1)
			}
			return nil
		},
	}
}

func verifyOutcome(satisfied bool, err error) string {
	if err != nil || !satisfied {
		return "failed"
	}
	return "skipped"
}

// --- list --------------------------------------------------------------------

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all steps defined in the step file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println(color.Bold(fmt.Sprintf("%-30s  %-8s  %s", "STEP", "TYPE", "TAGS")))
			for _, item := range cfg.Steps {
				fmt.Printf("%-30s  %-8s  %s\n", item.Name, item.Type(), strings.Join(item.Tags, ", "))
			}
			return nil
		},
	}
}

// --- tag ---------------------------------------------------------------------

func tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage machine tags",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print current machine tags",
			RunE: func(cmd *cobra.Command, args []string) error {
				machine, err := machineTags()
				if err != nil {
					return err
				}
				fmt.Printf("machine config: %s\n", tags.ConfigPath())
				if len(machine) == 0 {
					fmt.Println("(no tags)")
					return nil
				}
				for _, t := range machine {
					fmt.Printf("  - %s\n", t)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <tag>",
			Short: "Add a tag to this machine",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := tags.EnsureInitialised(); err != nil {
					return err
				}
				if err := tags.Add(args[0]); err != nil {
					return err
				}
				fmt.Printf("added tag %q\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

// --- init --------------------------------------------------------------------

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Pick this machine's tags interactively",
		Long: `Creates the machine config. Candidates are the auto-detected tags plus
every tag the step file gates on; detected ones start selected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			detected := tags.AutoDetect()
			candidates := slices.Clone(detected)

			// Offer every gate tag the step file mentions, if it loads.
			if cfg, err := loadConfig(); err == nil {
				for _, item := range cfg.Steps {
					for _, t := range append(item.Only, item.Except...) {
						if !slices.Contains(candidates, t) {
							candidates = append(candidates, t)
						}
					}
				}
			}

			chosen, err := prompt.SelectTags(candidates, detected)
			if err != nil {
				return err
			}
			if err := tags.Save(&tags.MachineConfig{Tags: chosen}); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d tag(s))\n", tags.ConfigPath(), len(chosen))
			return nil
		},
	}
}

// --- log ---------------------------------------------------------------------

func logCmd() *cobra.Command {
	var stepFilter string
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show past step outcomes",
		Example: `  rigup log
  rigup log --step homebrew
  rigup log --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := history.Read(stepFilter, limit)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("(no log entries)")
				return nil
			}

			fmt.Println(color.Bold(fmt.Sprintf("%-20s  %-8s  %-10s  %s", "TIME", "COMMAND", "OUTCOME", "STEP")))
			for _, e := range entries {
				outcome := fmt.Sprintf("%-10s", e.Outcome)
				switch e.Outcome {
				case "applied":
					outcome = color.Green(outcome)
				case "failed":
					outcome = color.BoldRed(outcome)
				case "skipped":
					outcome = color.Dim(outcome)
				}
				line := fmt.Sprintf("%-20s  %-8s  %s  %s",
					e.Time.Local().Format(time.DateTime), e.Command, outcome, e.Step)
				if e.Detail != "" {
					line += color.Dim(" (" + e.Detail + ")")
				}
				fmt.Println(line)
			}
			fmt.Printf("\nlog: %s\n", history.LogPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&stepFilter, "step", "", "filter log by step name")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries to show")
	return cmd
}

// --- platform ----------------------------------------------------------------

func platformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Print the detected platform (OS)",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stdout, "os: %s\n", platform.Current())
		},
	}
}

// --- encrypt / decrypt -------------------------------------------------------

func encryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Encrypt a file with the configured age key (writes <file>.age)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyFromConfig()
			if err != nil {
				return err
			}
			src := args[0]
			dst := secrets.EncryptedPath(src)
			fmt.Printf("encrypting %s -> %s\n", src, dst)
			return key.EncryptFile(src, dst)
		},
	}
}

func decryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <file.age>",
		Short: "Decrypt an age-encrypted file (writes without the .age extension)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyFromConfig()
			if err != nil {
				return err
			}
			src := args[0]
			dst := strings.TrimSuffix(src, ".age")
			if dst == src {
				dst = src + ".out"
			}
			fmt.Printf("decrypting %s -> %s\n", src, dst)
			return key.DecryptFile(src, dst, 0)
		},
	}
}

func keyFromConfig() (*secrets.Key, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	key := secrets.KeyFromConfig(cfg.Age)
	if key == nil {
		return nil, fmt.Errorf("no age key configured; set age.identity or age.passphrase_env in %s, or set %s / %s",
			configFile, secrets.EnvIdentity, secrets.EnvPassphrase)
	}
	return key, nil
}
