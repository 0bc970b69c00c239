package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gometa/adapters/excel"
	"gometa/app"
	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/config"
	"gometa/internal/container"
	"gometa/internal/migration"
	"gometa/ports"
	"gometa/ui"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional for the CLI; system environment wins either way
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "gometa",
		Short:         "Meta-regression toolkit: estimator fits, heterogeneity intervals, permutation tests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newCICmd(),
		newPermuteCmd(),
		newDescribeCmd(),
		newExportCmd(),
		newSweepCmd(),
		newBayesCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// inputFlags covers the shared data-source options: a tabular file with a
// column mapping, or a stored dataset when persistence is configured.
type inputFlags struct {
	dataset     string
	yColumn     string
	vColumn     string
	nColumn     string
	moderators  []string
	noIntercept bool
}

func addInputFlags(cmd *cobra.Command, f *inputFlags) {
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "Stored dataset ID (requires DATABASE_URL)")
	cmd.Flags().StringVar(&f.yColumn, "y", "y", "Effect size column")
	cmd.Flags().StringVar(&f.vColumn, "v", "v", "Sampling variance column (empty to omit)")
	cmd.Flags().StringVar(&f.nColumn, "n", "", "Sample size column (empty to omit)")
	cmd.Flags().StringSliceVar(&f.moderators, "mods", nil, "Moderator columns")
	cmd.Flags().BoolVar(&f.noIntercept, "no-intercept", false, "Fit without an intercept column")
}

// dataSource resolves the positional file argument and flags into the
// request shape the services consume.
func (f *inputFlags) dataSource(args []string) (app.DataSource, error) {
	if f.dataset != "" {
		return app.DataSource{DatasetID: f.dataset}, nil
	}
	if len(args) == 0 {
		return app.DataSource{}, fmt.Errorf("provide a data file argument or --dataset")
	}
	return app.DataSource{
		File: args[0],
		Mapping: &ports.ColumnMapping{
			Y:          f.yColumn,
			V:          f.vColumn,
			N:          f.nColumn,
			Moderators: f.moderators,
			Intercept:  !f.noIntercept,
		},
	}, nil
}

// newCLIContainer wires the dependency container the way the server does,
// attaching postgres storage when DATABASE_URL is configured.
func newCLIContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migration.NewRunner().Run(ctx, db); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		if err := c.InitWithDatabase(db); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// loadDataset fetches the raw dataset for commands that work on the input
// itself rather than a fit (describe, export profile sheet).
func loadDataset(ctx context.Context, c *container.Container, src app.DataSource) (*meta.Dataset, string, error) {
	if src.DatasetID != "" {
		id, err := core.ParseDatasetID(src.DatasetID)
		if err != nil {
			return nil, "", err
		}
		stored, err := c.Datasets.GetByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return stored.Dataset, stored.Name, nil
	}

	ds, err := c.Reader.Read(ctx, src.File, *src.Mapping)
	if err != nil {
		return nil, "", err
	}
	return ds, filepath.Base(src.File), nil
}

func newFitCmd() *cobra.Command {
	var input inputFlags
	var estimator string
	var alpha float64
	var tau2CI bool
	var nPerm int
	var seed int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fit [data-file]",
		Short: "Fit one estimator and print the coefficient table",
		Long: `Fit a meta-regression estimator against a tabular data file or a stored dataset.

Example: gometa fit trials.csv --mods dose --estimator reml --tau2-ci`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runFit(cmd.Context(), app.AnalysisRequest{
				DataSource: src,
				Estimator:  estimator,
				Alpha:      alpha,
				Tau2CI:     tau2CI,
				NPerm:      nPerm,
				Seed:       seed,
			}, asJSON)
		},
	}

	addInputFlags(cmd, &input)
	cmd.Flags().StringVarP(&estimator, "estimator", "e", "reml", "Estimator name (see gometa sweep for the family)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Significance level (config default when 0)")
	cmd.Flags().BoolVar(&tau2CI, "tau2-ci", false, "Profile a Q-Profile confidence interval for tau2")
	cmd.Flags().IntVar(&nPerm, "perm", 0, "Permutation draws (0 skips the test; closed-form estimators only)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for Monte Carlo permutation (config default when 0)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")

	return cmd
}

func runFit(ctx context.Context, req app.AnalysisRequest, asJSON bool) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	resp, err := c.Analysis.RunAnalysis(ctx, req)
	if err != nil {
		return err
	}

	if asJSON {
		encoded, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("=== FIT RESULTS ===\n")
	fmt.Printf("Estimator: %s\n", resp.Estimator)
	fmt.Printf("Alpha: %.3f\n", resp.Alpha)
	printConvergence(resp.Estimate)
	if len(resp.Estimate.Tau2) > 0 {
		fmt.Printf("Tau2: %s\n", joinFloats(resp.Estimate.Tau2))
	}
	if len(resp.Estimate.Sigma2) > 0 {
		fmt.Printf("Sigma2: %s\n", joinFloats(resp.Estimate.Sigma2))
	}

	printCoefficients(resp.Table, resp.Estimate, resp.Alpha)
	printHeterogeneity(resp.Het)
	printTau2CI(resp.Tau2CI)
	printPermutation(resp.NPermUsed, resp.Exact)

	fmt.Printf("\nRuntime: %dms\n", resp.RuntimeMs)
	return nil
}

func newCICmd() *cobra.Command {
	var input inputFlags
	var estimator string
	var alpha float64

	cmd := &cobra.Command{
		Use:   "ci [data-file]",
		Short: "Profile a Q-Profile confidence interval for tau2",
		Long: `Fit a random-effects estimator and invert the Q statistic for a tau2
confidence interval.

Example: gometa ci trials.csv --mods dose --estimator dl --alpha 0.05`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runCI(cmd.Context(), app.AnalysisRequest{
				DataSource: src,
				Estimator:  estimator,
				Alpha:      alpha,
				Tau2CI:     true,
			})
		},
	}

	addInputFlags(cmd, &input)
	cmd.Flags().StringVarP(&estimator, "estimator", "e", "dl", "Point estimator for tau2")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Significance level (config default when 0)")

	return cmd
}

func runCI(ctx context.Context, req app.AnalysisRequest) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	resp, err := c.Analysis.RunAnalysis(ctx, req)
	if err != nil {
		return err
	}
	if resp.Tau2CI == nil {
		return fmt.Errorf("%s carries no tau2 to profile; pick a random-effects estimator", resp.Estimator)
	}

	fmt.Printf("=== TAU2 CONFIDENCE INTERVAL ===\n")
	fmt.Printf("Estimator: %s\n", resp.Estimator)
	fmt.Printf("Method: %s (alpha %.3f)\n", resp.Tau2CI.Method, resp.Tau2CI.Alpha)
	for j := range resp.Tau2CI.Tau2 {
		prefix := ""
		if len(resp.Tau2CI.Tau2) > 1 {
			prefix = fmt.Sprintf("dataset %d: ", j)
		}
		fmt.Printf("%stau2 %.4f, CI [%s, %s]\n", prefix,
			resp.Tau2CI.Tau2[j], formatBound(resp.Tau2CI.CILower[j]), formatBound(resp.Tau2CI.CIUpper[j]))
	}
	printHeterogeneity(resp.Het)
	return nil
}

func newPermuteCmd() *cobra.Command {
	var input inputFlags
	var estimator string
	var nPerm int
	var seed int64

	cmd := &cobra.Command{
		Use:   "permute [data-file]",
		Short: "Run a permutation test on the fitted coefficients",
		Long: `Refit the estimator under sign flips (intercept-only) or label permutations
(with moderators) and report empirical p-values. Small universes are
enumerated exactly; larger ones are sampled.

Example: gometa permute trials.csv --mods dose --estimator dl --draws 5000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runPermute(cmd.Context(), app.AnalysisRequest{
				DataSource: src,
				Estimator:  estimator,
				NPerm:      nPerm,
				Seed:       seed,
			})
		},
	}

	addInputFlags(cmd, &input)
	cmd.Flags().StringVarP(&estimator, "estimator", "e", "dl", "Closed-form estimator to refit per permutation")
	cmd.Flags().IntVar(&nPerm, "draws", 0, "Permutation draws (config default when 0)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for Monte Carlo sampling (config default when 0)")

	return cmd
}

func runPermute(ctx context.Context, req app.AnalysisRequest) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	if req.NPerm <= 0 {
		req.NPerm = c.Config.Analysis.Permutations
	}

	resp, err := c.Analysis.RunAnalysis(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("=== PERMUTATION TEST ===\n")
	fmt.Printf("Estimator: %s\n", resp.Estimator)
	if resp.Exact {
		fmt.Printf("Universe: %d permutations, enumerated exactly\n", resp.NPermUsed)
	} else {
		fmt.Printf("Draws: %d Monte Carlo samples\n", resp.NPermUsed)
	}
	fmt.Printf("p-value floor: %.6f\n", 1.0/float64(resp.NPermUsed))

	printCoefficients(resp.Table, resp.Estimate, resp.Alpha)
	fmt.Printf("\nRuntime: %dms\n", resp.RuntimeMs)
	return nil
}

func newDescribeCmd() *cobra.Command {
	var input inputFlags

	cmd := &cobra.Command{
		Use:   "describe [data-file]",
		Short: "Profile every variable in a dataset",
		Long: `Summarize the outcome, variance, sample-size, and moderator columns of a
dataset without fitting anything.

Example: gometa describe trials.csv --mods dose`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runDescribe(cmd.Context(), src)
		},
	}

	addInputFlags(cmd, &input)
	return cmd
}

func runDescribe(ctx context.Context, src app.DataSource) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	ds, name, err := loadDataset(ctx, c, src)
	if err != nil {
		return err
	}

	fmt.Printf("=== DATASET PROFILE ===\n")
	fmt.Printf("Source: %s\n", name)
	fmt.Printf("Studies: %d  Datasets: %d  Predictors: %d\n",
		ds.NStudies(), ds.NDatasets(), ds.NPredictors())
	fmt.Printf("Fingerprint: %s\n", ds.Fingerprint().Short())

	fmt.Printf("\n%-12s %6s %10s %10s %10s %10s %10s\n",
		"variable", "count", "mean", "median", "sd", "min", "max")
	for _, row := range ds.Describe() {
		fmt.Printf("%-12s %6d %10.4f %10.4f %10.4f %10.4f %10.4f\n",
			row.Name, row.Count, row.Mean, row.Median, row.StdDev, row.Min, row.Max)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	var input inputFlags
	var estimator string
	var alpha float64
	var tau2CI bool
	var nPerm int
	var out string

	cmd := &cobra.Command{
		Use:   "export [data-file]",
		Short: "Fit an estimator and save the results as an xlsx workbook",
		Long: `Run a fit and write the coefficient table, heterogeneity statistics, and
study-level profile to a workbook, one sheet per section.

Example: gometa export trials.csv --mods dose --estimator reml --out results.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), app.AnalysisRequest{
				DataSource: src,
				Estimator:  estimator,
				Alpha:      alpha,
				Tau2CI:     tau2CI,
				NPerm:      nPerm,
			}, out)
		},
	}

	addInputFlags(cmd, &input)
	cmd.Flags().StringVarP(&estimator, "estimator", "e", "reml", "Estimator name")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Significance level (config default when 0)")
	cmd.Flags().BoolVar(&tau2CI, "tau2-ci", false, "Include a Q-Profile tau2 interval")
	cmd.Flags().IntVar(&nPerm, "perm", 0, "Permutation draws (0 skips the test)")
	cmd.Flags().StringVarP(&out, "out", "o", "results.xlsx", "Output workbook path")

	return cmd
}

func runExport(ctx context.Context, req app.AnalysisRequest, out string) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	ds, name, err := loadDataset(ctx, c, req.DataSource)
	if err != nil {
		return err
	}

	resp, err := c.Analysis.RunAnalysis(ctx, req)
	if err != nil {
		return err
	}

	bundle := &excel.ExportBundle{
		Estimator: resp.Estimator,
		Alpha:     resp.Alpha,
		Table:     resp.Table,
		Het:       resp.Het,
		Tau2CI:    resp.Tau2CI,
		Dataset:   ds,
	}
	if err := excel.NewResultsWriter().Write(out, bundle); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	fmt.Printf("=== EXPORT ===\n")
	fmt.Printf("Source: %s\n", name)
	fmt.Printf("Estimator: %s\n", resp.Estimator)
	fmt.Printf("\n💾 Results saved to: %s\n", out)
	return nil
}

func newSweepCmd() *cobra.Command {
	var input inputFlags
	var estimators []string
	var datasetIDs []string
	var estimator string
	var alpha float64
	var tau2CI bool

	cmd := &cobra.Command{
		Use:   "sweep [data-file]",
		Short: "Fit a family of estimators, or one estimator across stored datasets",
		Long: `Without --datasets: fit every named estimator (or the full family the data
supports) against one input and compare the outcomes side by side.

With --datasets: fit one estimator against several stored datasets.

Example: gometa sweep trials.csv --mods dose --estimators fe,dl,reml --tau2-ci`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(datasetIDs) > 0 {
				return runDatasetSweep(cmd.Context(), app.DatasetSweepRequest{
					Estimator:  estimator,
					DatasetIDs: datasetIDs,
					Alpha:      alpha,
					Tau2CI:     tau2CI,
				})
			}
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runSweep(cmd.Context(), app.SweepRequest{
				DataSource: src,
				Estimators: estimators,
				Alpha:      alpha,
				Tau2CI:     tau2CI,
			})
		},
	}

	addInputFlags(cmd, &input)
	cmd.Flags().StringSliceVar(&estimators, "estimators", nil, "Estimator names (full supported family when empty)")
	cmd.Flags().StringSliceVar(&datasetIDs, "datasets", nil, "Stored dataset IDs to sweep one estimator across")
	cmd.Flags().StringVarP(&estimator, "estimator", "e", "dl", "Estimator for a --datasets sweep")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Significance level (config default when 0)")
	cmd.Flags().BoolVar(&tau2CI, "tau2-ci", false, "Profile tau2 wherever variances allow")

	return cmd
}

func runSweep(ctx context.Context, req app.SweepRequest) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	result, err := c.Sweeps.RunSweep(ctx, req)
	if err != nil {
		return err
	}
	printSweepResult(result)
	return nil
}

func runDatasetSweep(ctx context.Context, req app.DatasetSweepRequest) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	result, err := c.Sweeps.RunDatasetSweep(ctx, req)
	if err != nil {
		return err
	}
	printSweepResult(result)
	return nil
}

func printSweepResult(result *app.SweepResult) {
	fmt.Printf("=== ESTIMATOR SWEEP ===\n")
	fmt.Printf("Sweep ID: %s\n", result.SweepID)
	fmt.Printf("Rows: %d\n", len(result.Rows))

	for i, row := range result.Rows {
		label := row.Estimator
		if row.Dataset != "" {
			label = fmt.Sprintf("%s @ %s", row.Estimator, row.Dataset)
		}
		if row.Err != "" {
			fmt.Printf("\n%d. %s\n   ERROR: %s\n", i+1, label, row.Err)
			continue
		}

		fmt.Printf("\n%d. %s\n", i+1, label)
		if len(row.Tau2) > 0 {
			fmt.Printf("   tau2: %s", joinFloats(row.Tau2))
			if row.Tau2CI != nil {
				fmt.Printf("  CI [%s, %s]", formatBound(row.Tau2CI.CILower[0]), formatBound(row.Tau2CI.CIUpper[0]))
			}
			fmt.Println()
		}
		if len(row.Het) > 0 {
			fmt.Printf("   Q: %.4f (df=%d)  I2: %.2f%%\n", row.Het[0].Q, row.Het[0].DF, row.Het[0].I2)
		}
		for _, tr := range row.Table {
			fmt.Printf("   %-14s %10.4f (se %.4f, p %.4f)\n", tr.Name, tr.Estimate, tr.SE, tr.P)
		}
		if !row.Converged {
			fmt.Printf("   ⚠️  did not converge after %d iterations\n", row.Iterations)
		}
	}

	if result.Success {
		fmt.Printf("\n✅ SWEEP COMPLETED\n")
	} else {
		fmt.Printf("\n❌ SWEEP COMPLETED WITH ERRORS\n")
	}
	fmt.Printf("Runtime: %dms\n", result.RuntimeMs)
}

func newBayesCmd() *cobra.Command {
	var input inputFlags
	var groups []int
	var draws, burn, chains int
	var seed int64
	var plots []string

	cmd := &cobra.Command{
		Use:   "bayes [data-file]",
		Short: "Sample the posterior of the random-effects model",
		Long: `Run the random-walk Metropolis sampler over (beta, tau2) and print
posterior summaries with credible intervals. Studies sharing a --groups id
share one random effect.

Example: gometa bayes trials.csv --mods dose --draws 5000 --plots trace,forest`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := input.dataSource(args)
			if err != nil {
				return err
			}
			return runBayes(cmd.Context(), app.BayesRequest{
				DataSource: src,
				Groups:     groups,
				Draws:      draws,
				Burn:       burn,
				Chains:     chains,
				Seed:       seed,
				Plots:      plots,
			})
		},
	}

	addInputFlags(cmd, &input)
	cmd.Flags().IntSliceVar(&groups, "groups", nil, "Study group ids sharing a random effect (one per study)")
	cmd.Flags().IntVar(&draws, "draws", 0, "Posterior draws per chain (sampler default when 0)")
	cmd.Flags().IntVar(&burn, "burn", 0, "Warmup draws per chain (sampler default when 0)")
	cmd.Flags().IntVar(&chains, "chains", 0, "Independent chains (sampler default when 0)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (config default when 0)")
	cmd.Flags().StringSliceVar(&plots, "plots", nil, "Text panels to render: trace, density, forest")

	return cmd
}

func runBayes(ctx context.Context, req app.BayesRequest) error {
	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	resp, err := c.Analysis.RunBayes(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("=== POSTERIOR SUMMARY ===\n")
	fmt.Printf("%-14s %10s %10s %10s %24s\n", "name", "mean", "median", "sd", "95% CI")
	for _, st := range resp.Stats {
		fmt.Printf("%-14s %10.4f %10.4f %10.4f [%10.4f, %10.4f]\n",
			st.Name, st.Mean, st.Median, st.SD, st.CILower, st.CIUpper)
	}

	for _, name := range req.Plots {
		if panel, ok := resp.Plots[name]; ok {
			fmt.Printf("\n=== %s ===\n%s\n", strings.ToUpper(name), panel)
		}
	}

	fmt.Printf("\nRuntime: %dms\n", resp.RuntimeMs)
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API and report pages",
		Long: `Start the gin JSON API on PORT and the report pages on REPORT_PORT,
with postgres persistence when DATABASE_URL is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	c, err := newCLIContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	if cfg.Data.File != "" {
		if err := importConfiguredDataset(ctx, c); err != nil {
			return err
		}
	}

	reportApp, err := ui.NewApp(c.Analyses, c.Datasets)
	if err != nil {
		return fmt.Errorf("failed to create report app: %w", err)
	}
	go func() {
		if err := reportApp.Start(":" + cfg.Server.ReportPort); err != nil {
			log.Printf("❌ report server failed: %v", err)
		}
	}()

	server := ui.NewServer(c.Analysis, c.Sweeps, c.Analyses, c.Datasets, cfg.Analysis)
	fmt.Printf("🚀 Starting gometa API on port %s (reports on %s)\n",
		cfg.Server.Port, cfg.Server.ReportPort)
	return server.Start(":" + cfg.Server.Port)
}

// importConfiguredDataset stores the DATA_FILE input once per name.
func importConfiguredDataset(ctx context.Context, c *container.Container) error {
	path := c.Config.Data.File
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if _, err := c.Datasets.GetByName(ctx, name); err == nil {
		return nil
	}
	stored, err := c.Analysis.ImportDataset(ctx, name, path, c.ColumnMapping())
	if err != nil {
		return fmt.Errorf("failed to import configured dataset: %w", err)
	}
	fmt.Printf("Imported dataset %q from %s (%d studies)\n", stored.Name, path, stored.Dataset.NStudies())
	return nil
}

func printConvergence(est *meta.Estimate) {
	if est == nil {
		return
	}
	if est.Iterations > 0 {
		fmt.Printf("Converged: %t (%d iterations)\n", est.Converged, est.Iterations)
	} else {
		fmt.Printf("Converged: %t (closed form)\n", est.Converged)
	}
}

func printCoefficients(rows []meta.TableRow, est *meta.Estimate, alpha float64) {
	fmt.Printf("\n=== COEFFICIENTS ===\n")

	if len(rows) == 0 {
		// Vectorized runs have no flat table; show the raw matrix.
		for p, coef := range est.Coefficients {
			fmt.Printf("coef[%d]: %s\n", p, joinFloats(coef))
		}
		return
	}

	hasPerm := false
	for _, r := range rows {
		if r.PPerm != nil {
			hasPerm = true
		}
	}

	header := fmt.Sprintf("%-14s %10s %10s %9s %9s %24s",
		"name", "estimate", "se", "z", "p", fmt.Sprintf("%.0f%% CI", (1-alpha)*100))
	if hasPerm {
		header += fmt.Sprintf(" %9s", "p(perm)")
	}
	fmt.Println(header)

	for _, r := range rows {
		line := fmt.Sprintf("%-14s %10.4f %10.4f %9.4f %9.4f [%10.4f, %10.4f]",
			r.Name, r.Estimate, r.SE, r.Z, r.P, r.CILower, r.CIUpper)
		if r.PPerm != nil {
			line += fmt.Sprintf(" %9.4f", *r.PPerm)
		}
		fmt.Println(line)
	}
}

func printHeterogeneity(het []meta.Heterogeneity) {
	if len(het) == 0 {
		return
	}
	fmt.Printf("\n=== HETEROGENEITY ===\n")
	for j, h := range het {
		prefix := ""
		if len(het) > 1 {
			prefix = fmt.Sprintf("dataset %d: ", j)
		}
		fmt.Printf("%sQ: %.4f (df=%d, p=%.3g)\n", prefix, h.Q, h.DF, h.PValue)
		fmt.Printf("%sI2: %.2f%%  H2: %.4f\n", prefix, h.I2, h.H2)
	}
}

func printTau2CI(ci *meta.REStats) {
	if ci == nil {
		return
	}
	fmt.Printf("\n=== TAU2 CONFIDENCE INTERVAL ===\n")
	fmt.Printf("Method: %s (alpha %.3f)\n", ci.Method, ci.Alpha)
	for j := range ci.Tau2 {
		prefix := ""
		if len(ci.Tau2) > 1 {
			prefix = fmt.Sprintf("dataset %d: ", j)
		}
		fmt.Printf("%stau2 %.4f, CI [%s, %s]\n", prefix,
			ci.Tau2[j], formatBound(ci.CILower[j]), formatBound(ci.CIUpper[j]))
	}
}

func printPermutation(nPermUsed int, exact bool) {
	if nPermUsed == 0 {
		return
	}
	fmt.Printf("\n=== PERMUTATION TEST ===\n")
	if exact {
		fmt.Printf("Universe: %d permutations, enumerated exactly\n", nPermUsed)
	} else {
		fmt.Printf("Draws: %d Monte Carlo samples\n", nPermUsed)
	}
	fmt.Printf("p-value floor: %.6f\n", 1.0/float64(nPermUsed))
}

func formatBound(x float64) string {
	if math.IsInf(x, 1) {
		return "Inf"
	}
	return fmt.Sprintf("%.4f", x)
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return strings.Join(parts, ", ")
}
