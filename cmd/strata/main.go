package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daverage/strata/internal/app"
	"github.com/daverage/strata/internal/doctor"
	"github.com/daverage/strata/internal/hydration"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
	"github.com/daverage/strata/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "strata - Tiered memory for LLM agents",
	Long: `strata keeps an agent's memory in four tiers: working, episodic, semantic
and procedural. Working items decay and get evicted under pressure, reinforced
items consolidate into episodes, near-duplicate facts merge, and the whole
store can be assembled into a prompt-ready context block.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(semanticCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(reinforceCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(archivedCmd)
	rootCmd.AddCommand(completionCmd)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `Generate the autocompletion script for strata for the specified shell.
See each command's help for details on how to use the generated script.
	`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) {
	fmt.Printf("strata v%s\n", version.Version)
	if !versionCheck {
		return
	}
	latest, err := version.CheckForUpdates()
	if err != nil {
		fmt.Printf("! Update check failed: %v\n", err)
		return
	}
	if latest == "" {
		fmt.Println("✅ Up to date.")
		return
	}
	fmt.Printf("! A newer release is available: v%s\n", latest)
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a new memory item",
	Long: `Store a new memory item in one of the four tiers.

Tiers: working, episodic, semantic, procedural

Examples:
  strata store --content "User prefers dark mode"
  strata store --tier episodic --content "Deploy failed" --event-type incident --participants ci,ops --importance 0.9
  strata store --tier semantic --content "Postgres speaks SQL" --category databases --confidence 0.95 --relation is_a:relational-db
  strata store --tier procedural --content "Release runbook" --skill release --step "tag commit" --step "push tag"`,
}

var (
	storeTier         string
	storeContent      string
	storeSource       string
	storeMeta         []string
	storeAttention    float64
	storeDecay        float64
	storeEventType    string
	storeParticipants []string
	storeValence      float64
	storeImportance   float64
	storeCategory     string
	storeConfidence   float64
	storeRelations    []string
	storeSkill        string
	storeSteps        []string
	storePrereqs      []string
)

func init() {
	storeCmd.Flags().StringVarP(&storeTier, "tier", "t", "working", "Memory tier: working, episodic, semantic, procedural")
	storeCmd.Flags().StringVarP(&storeContent, "content", "c", "", "Item content (required)")
	storeCmd.Flags().StringVar(&storeSource, "source", "", "Source of the item")
	storeCmd.Flags().StringArrayVarP(&storeMeta, "meta", "m", nil, "Metadata entry as key=value (repeatable)")
	storeCmd.Flags().Float64Var(&storeAttention, "attention", 1.0, "Working tier: initial attention in [0,1]")
	storeCmd.Flags().Float64Var(&storeDecay, "decay", 0.1, "Working tier: decay rate in [0,1]")
	storeCmd.Flags().StringVar(&storeEventType, "event-type", "event", "Episodic tier: event type")
	storeCmd.Flags().StringSliceVar(&storeParticipants, "participants", nil, "Episodic tier: participants (comma separated)")
	storeCmd.Flags().Float64Var(&storeValence, "valence", 0, "Episodic tier: emotional valence in [-1,1]")
	storeCmd.Flags().Float64Var(&storeImportance, "importance", 0.5, "Episodic tier: importance in [0,1]")
	storeCmd.Flags().StringVar(&storeCategory, "category", "", "Semantic tier: category")
	storeCmd.Flags().Float64Var(&storeConfidence, "confidence", 0.5, "Semantic tier: confidence in [0,1]")
	storeCmd.Flags().StringArrayVar(&storeRelations, "relation", nil, "Semantic tier: relation as type:target (repeatable)")
	storeCmd.Flags().StringVar(&storeSkill, "skill", "", "Procedural tier: skill name")
	storeCmd.Flags().StringArrayVar(&storeSteps, "step", nil, "Procedural tier: ordered step (repeatable)")
	storeCmd.Flags().StringArrayVar(&storePrereqs, "prereq", nil, "Procedural tier: prerequisite skill (repeatable)")
	_ = storeCmd.MarkFlagRequired("content")
}

func runStoreCmd(a *app.App, cmd *cobra.Command, args []string) {
	tier := parseTier(storeTier)

	var it *memory.Item
	switch tier {
	case memory.Working:
		it = memory.NewWorking(storeContent, storeAttention, storeDecay)
	case memory.Episodic:
		it = memory.NewEpisodic(storeContent, storeEventType, storeParticipants, storeValence, storeImportance)
	case memory.Semantic:
		it = memory.NewSemantic(storeContent, storeCategory, storeConfidence, parseRelations(storeRelations))
	case memory.Procedural:
		if storeSkill == "" {
			fmt.Println("❌ Procedural items require --skill.")
			os.Exit(1)
		}
		it = memory.NewProcedural(storeContent, storeSkill, storeSteps, storePrereqs)
	}
	it.Source = storeSource
	if meta := parseMeta(storeMeta); len(meta) > 0 {
		it.Metadata = meta
	}

	id, err := a.Memory.Store(it)
	if err != nil {
		a.Core.Logger.Error("Failed to store item", zap.Error(err))
		fmt.Printf("❌ Failed to store item: %v\n", err)
		os.Exit(1)
	}
	saveState(a)

	fmt.Printf("✅ Stored %s item %s\n", tier, id)
}

var getJSON bool

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Retrieve a memory item by ID",
	Args:  cobra.ExactArgs(1),
}

func init() {
	getCmd.Flags().BoolVar(&getJSON, "json", false, "Print the item as JSON")
}

func runGetCmd(a *app.App, cmd *cobra.Command, args []string) {
	it, err := a.Memory.Retrieve(args[0])
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			fmt.Printf("❌ No item with ID %s\n", args[0])
		} else {
			fmt.Printf("❌ Failed to retrieve item: %v\n", err)
		}
		os.Exit(1)
	}

	if getJSON {
		printJSON(it)
		return
	}
	printItem("", it)
}

var (
	listTier string
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every item in a tier",
}

func init() {
	listCmd.Flags().StringVarP(&listTier, "tier", "t", "working", "Memory tier: working, episodic, semantic, procedural")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print items as JSON")
}

func runListCmd(a *app.App, cmd *cobra.Command, args []string) {
	tier := parseTier(listTier)
	items := a.Memory.GetAllByTier(tier)

	if listJSON {
		printJSON(items)
		return
	}

	fmt.Printf("%s items (%d total):\n\n", tier, len(items))
	printItems(items)
}

var (
	recentTier  string
	recentLimit int
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent items in a tier",
}

func init() {
	recentCmd.Flags().StringVarP(&recentTier, "tier", "t", "working", "Memory tier: working, episodic, semantic, procedural")
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "Maximum items to show")
}

func runRecentCmd(a *app.App, cmd *cobra.Command, args []string) {
	tier := parseTier(recentTier)
	items := a.Memory.RecentByTier(tier, recentLimit)

	fmt.Printf("Recent %s items (showing %d of %d total):\n\n", tier, len(items), a.Memory.Count(tier))
	printItems(items)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Exact-match queries over tier fields",
}

var queryParticipantCmd = &cobra.Command{
	Use:   "participant [name]",
	Short: "Episodic items that name a participant",
	Args:  cobra.ExactArgs(1),
}

var queryCategoryCmd = &cobra.Command{
	Use:   "category [name]",
	Short: "Semantic items in a category",
	Args:  cobra.ExactArgs(1),
}

var queryPrerequisiteCmd = &cobra.Command{
	Use:   "prerequisite [skill]",
	Short: "Procedural items requiring a prerequisite skill",
	Args:  cobra.ExactArgs(1),
}

func init() {
	queryCmd.AddCommand(queryParticipantCmd)
	queryCmd.AddCommand(queryCategoryCmd)
	queryCmd.AddCommand(queryPrerequisiteCmd)
}

func runQueryParticipantCmd(a *app.App, cmd *cobra.Command, args []string) {
	items := a.Recall.ByParticipant(args[0])
	fmt.Printf("Episodic items with participant %q (%d):\n\n", args[0], len(items))
	printItems(items)
}

func runQueryCategoryCmd(a *app.App, cmd *cobra.Command, args []string) {
	items := a.Recall.ByCategory(args[0])
	fmt.Printf("Semantic items in category %q (%d):\n\n", args[0], len(items))
	printItems(items)
}

func runQueryPrerequisiteCmd(a *app.App, cmd *cobra.Command, args []string) {
	items := a.Recall.ByPrerequisite(args[0])
	fmt.Printf("Procedural items requiring %q (%d):\n\n", args[0], len(items))
	printItems(items)
}

var (
	searchTier  string
	searchLimit int
	searchSort  string
)

var searchCmd = &cobra.Command{
	Use:   "search [terms...]",
	Short: "Search one tier by keyword",
	Long: `Search one memory tier. Items whose content or tags contain every term
match; with no terms the tier's top items are returned.

Sort keys: attention, importance, confidence, successRate, executionCount,
timestamp. Each tier defaults to its native salience key.`,
}

func init() {
	searchCmd.Flags().StringVarP(&searchTier, "tier", "t", "working", "Memory tier: working, episodic, semantic, procedural")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum items to return (0 for all)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "Sort key (defaults to the tier's native key)")
}

func runSearchCmd(a *app.App, cmd *cobra.Command, args []string) {
	tier := parseTier(searchTier)
	query := strings.Join(args, " ")

	results, err := a.Recall.Search(recall.Options{
		Tier:    tier,
		Query:   query,
		Limit:   searchLimit,
		SortKey: recall.SortKey(searchSort),
	})
	if err != nil {
		fmt.Printf("❌ Search failed: %v\n", err)
		os.Exit(1)
	}

	if query != "" {
		fmt.Printf("Search results for '%s' (%d):\n\n", query, len(results))
	} else {
		fmt.Printf("Top %s items (%d):\n\n", tier, len(results))
	}
	printItems(results)
}

var (
	semanticTier  string
	semanticLimit int
)

var semanticCmd = &cobra.Command{
	Use:   "semantic [query...]",
	Short: "Rank a tier by semantic similarity to a query",
	Args:  cobra.MinimumNArgs(1),
}

func init() {
	semanticCmd.Flags().StringVarP(&semanticTier, "tier", "t", "semantic", "Memory tier: working, episodic, semantic, procedural")
	semanticCmd.Flags().IntVarP(&semanticLimit, "limit", "n", 5, "Maximum items to return")
}

func runSemanticCmd(a *app.App, cmd *cobra.Command, args []string) {
	tier := parseTier(semanticTier)
	query := strings.Join(args, " ")

	resp, err := a.Semantic.Search(a.Ctx, query, tier, semanticLimit)
	if err != nil {
		fmt.Printf("❌ Semantic search failed: %v\n", err)
		os.Exit(1)
	}

	if resp.Degraded {
		fmt.Printf("! Scores degraded to lexical overlap: %v\n\n", resp.Reason)
	}
	fmt.Printf("Results for '%s' (%d):\n\n", query, len(resp.Results))
	for i, r := range resp.Results {
		printItem(fmt.Sprintf("[%d] (%.2f) ", i+1, r.Score), r.Item)
	}
}

var contextJSON bool

var contextCmd = &cobra.Command{
	Use:   "context [query...]",
	Short: "Assemble memory context for a query",
	Args:  cobra.MinimumNArgs(1),
}

func init() {
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "Print the assembled context as JSON")
}

func runContextCmd(a *app.App, cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")

	c, err := a.Assembler.Assemble(a.Ctx, query)
	if err != nil {
		fmt.Printf("❌ Failed to assemble context: %v\n", err)
		os.Exit(1)
	}

	if contextJSON {
		printJSON(c)
		return
	}
	fmt.Println(hydration.Format(c))
}

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Run a command with memory context injected",
	Long: `Run a command with the assembled memory context exported in the
STRATA_CONTEXT environment variable.`,
	Args: cobra.MinimumNArgs(1),
}

func runRunCmd(a *app.App, cmd *cobra.Command, args []string) {
	commandStr := fmt.Sprintf("Running command: %s", args[0])
	if len(args) > 1 {
		commandStr += fmt.Sprintf(" with arguments: %s", strings.Join(args[1:], " "))
	}

	injectedPrompt, err := a.Injector.Inject(a.Ctx, commandStr)
	if err != nil {
		a.Core.Logger.Warn("Failed to inject memory context", zap.Error(err))
		injectedPrompt = commandStr
	}

	cmdToRun := exec.Command(args[0], args[1:]...)
	cmdToRun.Env = append(os.Environ(), fmt.Sprintf("STRATA_CONTEXT=%s", injectedPrompt))
	cmdToRun.Stdout = os.Stdout
	cmdToRun.Stderr = os.Stderr
	cmdToRun.Stdin = os.Stdin

	if err := cmdToRun.Run(); err != nil {
		a.Core.Logger.Error("Command failed", zap.Error(err))
	}
}

var tickCmd = &cobra.Command{
	Use:   "tick [steps]",
	Short: "Advance working-memory decay",
	Args:  cobra.MaximumNArgs(1),
}

func runTickCmd(a *app.App, cmd *cobra.Command, args []string) {
	steps := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fmt.Printf("❌ Invalid step count: %s\n", args[0])
			os.Exit(1)
		}
		steps = n
	}

	a.Memory.Tick(steps)
	saveState(a)
	fmt.Printf("✅ Applied %d decay step(s)\n", steps)
}

var reinforceCmd = &cobra.Command{
	Use:   "reinforce [id]",
	Short: "Reinforce a working-memory item",
	Args:  cobra.ExactArgs(1),
}

func runReinforceCmd(a *app.App, cmd *cobra.Command, args []string) {
	if err := a.Memory.Reinforce(args[0]); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			fmt.Printf("❌ No working item with ID %s\n", args[0])
		} else {
			fmt.Printf("❌ Failed to reinforce item: %v\n", err)
		}
		os.Exit(1)
	}
	saveState(a)
	fmt.Printf("✅ Reinforced %s\n", args[0])
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Promote reinforced items and expire old episodes",
}

func runConsolidateCmd(a *app.App, cmd *cobra.Command, args []string) {
	res := a.Memory.Consolidate()
	saveState(a)
	fmt.Printf("✅ Consolidated: %d promoted, %d expired\n", res.Promoted, res.Expired)
}

var mergeCmd = &cobra.Command{
	Use:   "merge [category]",
	Short: "Merge near-duplicate semantic items in a category",
	Args:  cobra.ExactArgs(1),
}

func runMergeCmd(a *app.App, cmd *cobra.Command, args []string) {
	merged := a.Memory.MergeRelatedSemantics(a.Ctx, args[0])
	saveState(a)
	fmt.Printf("✅ Merged %d pair(s) in category %q\n", merged, args[0])
}

var (
	recordSuccess  bool
	recordFailure  bool
	recordDuration float64
)

var recordCmd = &cobra.Command{
	Use:   "record [id]",
	Short: "Record an execution of a procedural skill",
	Args:  cobra.ExactArgs(1),
}

func init() {
	recordCmd.Flags().BoolVar(&recordSuccess, "success", false, "Mark the execution successful")
	recordCmd.Flags().BoolVar(&recordFailure, "failure", false, "Mark the execution failed")
	recordCmd.Flags().Float64Var(&recordDuration, "duration-ms", 0, "Execution duration in milliseconds")
}

func runRecordCmd(a *app.App, cmd *cobra.Command, args []string) {
	if recordSuccess == recordFailure {
		fmt.Println("❌ Pass exactly one of --success or --failure.")
		os.Exit(1)
	}

	if err := a.Memory.RecordExecution(args[0], recordSuccess, recordDuration); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			fmt.Printf("❌ No procedural item with ID %s\n", args[0])
		} else {
			fmt.Printf("❌ Failed to record execution: %v\n", err)
		}
		os.Exit(1)
	}
	saveState(a)
	fmt.Printf("✅ Recorded execution for %s\n", args[0])
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every item in all tiers",
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deletion")
}

func runClearCmd(a *app.App, cmd *cobra.Command, args []string) {
	if !clearYes {
		fmt.Println("❌ Refusing to clear without --yes.")
		os.Exit(1)
	}

	a.Memory.Clear()
	saveState(a)
	fmt.Println("✅ All tiers cleared.")
}

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory statistics",
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print statistics as JSON")
}

func runStatsCmd(a *app.App, cmd *cobra.Command, args []string) {
	stats := a.Stats.Snapshot()

	if statsJSON {
		printJSON(stats)
		return
	}

	fmt.Printf("Total items: %d\n\n", stats.Total)
	for _, line := range stats.VisualizeTiers(40) {
		fmt.Println(line)
	}
	fmt.Println()

	fmt.Printf("Working:    %d/%d items, avg attention %.2f, %d reinforced\n",
		stats.Working.Count, stats.Working.Capacity, stats.Working.AvgAttention, stats.Working.ReinforcedItems)
	fmt.Printf("Episodic:   %d items, avg importance %.2f, %d promoted\n",
		stats.Episodic.Count, stats.Episodic.AvgImportance, stats.Episodic.Promoted)
	fmt.Printf("Semantic:   %d items, avg confidence %.2f, %d categories\n",
		stats.Semantic.Count, stats.Semantic.AvgConfidence, len(stats.Semantic.Categories))
	fmt.Printf("Procedural: %d items, %d executions, avg success %.1f%%",
		stats.Procedural.Count, stats.Procedural.TotalExecutions, stats.Procedural.AvgSuccessRate*100)
	if stats.Procedural.TopSkill != "" {
		fmt.Printf(", top skill %s", stats.Procedural.TopSkill)
	}
	fmt.Println()
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on the strata installation",
}

func runDoctorCmd(a *app.App, cmd *cobra.Command, args []string) {
	runner := doctor.NewRunner(a.Core.Config, a.Core.Archive, a.Embedding.Provider)
	diagnostics := runner.RunAll()
	diagnostics.PrintReport()
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage archived memory snapshots",
	Long: `Manage archived memory snapshots. The engine restores the latest
snapshot automatically on startup; mutating commands save a new one on exit.`,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Snapshot the current memory state",
}

var snapshotListLimit int

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived snapshots",
}

func init() {
	snapshotListCmd.Flags().IntVarP(&snapshotListLimit, "limit", "n", 20, "Maximum snapshots to list")
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
}

func runSnapshotSaveCmd(a *app.App, cmd *cobra.Command, args []string) {
	if a.Core.Archive == nil {
		fmt.Println("❌ Archive is disabled; enable it in .strata/config.toml.")
		os.Exit(1)
	}

	items := a.Memory.Export()
	id, err := a.Core.Archive.SaveSnapshot(a.Core.Config.AgentID, items)
	if err != nil {
		a.Core.Logger.Error("Failed to save snapshot", zap.Error(err))
		fmt.Printf("❌ Failed to save snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Saved snapshot %d (%d items)\n", id, len(items))
}

func runSnapshotListCmd(a *app.App, cmd *cobra.Command, args []string) {
	if a.Core.Archive == nil {
		fmt.Println("❌ Archive is disabled; enable it in .strata/config.toml.")
		os.Exit(1)
	}

	snaps, err := a.Core.Archive.ListSnapshots(a.Core.Config.AgentID, snapshotListLimit)
	if err != nil {
		fmt.Printf("❌ Failed to list snapshots: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTaken\tItems\n")
	fmt.Fprintf(w, "--\t-----\t-----\n")
	for _, s := range snaps {
		fmt.Fprintf(w, "%d\t%s\t%d\n", s.ID, s.TakenAt.Format("2006-01-02 15:04:05"), s.Items)
	}
	w.Flush()
}

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent memory events from the archive journal",
}

func init() {
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "Maximum events to show")
}

func runJournalCmd(a *app.App, cmd *cobra.Command, args []string) {
	if a.Core.Archive == nil {
		fmt.Println("❌ Archive is disabled; enable it in .strata/config.toml.")
		os.Exit(1)
	}

	entries, err := a.Core.Archive.RecentEvents(journalLimit)
	if err != nil {
		fmt.Printf("❌ Failed to read journal: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SEQ\tKIND\tITEM\tTIER\tTIME\tNOTE\n")
	fmt.Fprintf(w, "---\t----\t----\t----\t----\t----\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.Kind, e.ID, e.Tier, e.At.Format("2006-01-02 15:04:05"), e.Note)
	}
	w.Flush()
}

var (
	archivedTier  string
	archivedLimit int
)

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "Show memories evicted or expired out of the engine",
	Long: `Show memories that left the engine. Items dropped by working-memory
eviction or episodic retention keep a full copy in the archive.`,
}

func init() {
	archivedCmd.Flags().StringVarP(&archivedTier, "tier", "t", "", "Filter by tier (empty for all)")
	archivedCmd.Flags().IntVarP(&archivedLimit, "limit", "n", 20, "Maximum items to show")
}

func runArchivedCmd(a *app.App, cmd *cobra.Command, args []string) {
	if a.Core.Archive == nil {
		fmt.Println("❌ Archive is disabled; enable it in .strata/config.toml.")
		os.Exit(1)
	}

	tier := archivedTier
	if tier != "" {
		tier = string(parseTier(archivedTier))
	}

	archived, err := a.Core.Archive.ArchivedItems(tier, archivedLimit)
	if err != nil {
		fmt.Printf("❌ Failed to read archive: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ITEM\tTIER\tREASON\tARCHIVED\tCONTENT\n")
	fmt.Fprintf(w, "----\t----\t------\t--------\t-------\n")
	for _, e := range archived {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Item.ID, e.Item.Tier, e.Reason, e.ArchivedAt.Format("2006-01-02 15:04:05"), truncate(e.Item.Content, 40))
	}
	w.Flush()
}

// parseTier validates a tier flag, exiting with a usage hint on bad input.
func parseTier(s string) memory.Tier {
	tier := memory.Tier(strings.ToLower(s))
	if !tier.IsValid() {
		fmt.Printf("❌ Invalid tier: %s\n", s)
		fmt.Println("Valid tiers: working, episodic, semantic, procedural")
		os.Exit(1)
	}
	return tier
}

func parseMeta(entries []string) map[string]any {
	if len(entries) == 0 {
		return nil
	}
	meta := make(map[string]any, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			fmt.Printf("❌ Invalid metadata entry %q, want key=value\n", entry)
			os.Exit(1)
		}
		meta[key] = value
	}
	return meta
}

func parseRelations(entries []string) []memory.Relation {
	if len(entries) == 0 {
		return nil
	}
	rels := make([]memory.Relation, 0, len(entries))
	for _, entry := range entries {
		typ, target, ok := strings.Cut(entry, ":")
		if !ok || typ == "" || target == "" {
			fmt.Printf("❌ Invalid relation %q, want type:target\n", entry)
			os.Exit(1)
		}
		rels = append(rels, memory.Relation{Type: typ, Target: target})
	}
	return rels
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("❌ Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// saveState persists the engine after a mutating command. Failure is
// reported but does not change the exit code; the in-process mutation
// already happened.
func saveState(a *app.App) {
	if err := a.SaveState(); err != nil {
		a.Core.Logger.Error("Failed to save memory snapshot", zap.Error(err))
		fmt.Printf("! State not persisted: %v\n", err)
	}
}

func printItems(items []*memory.Item) {
	for i, it := range items {
		printItem(fmt.Sprintf("[%d] ", i+1), it)
	}
}

// printItem renders one item with a caller-chosen header prefix, followed by
// indented tier-specific detail lines.
func printItem(prefix string, it *memory.Item) {
	fmt.Printf("%s%s (%s): %s\n", prefix, it.ID, it.Tier, it.Content)

	switch it.Tier {
	case memory.Working:
		if f := it.Working; f != nil {
			fmt.Printf("    Attention: %.2f  Decay: %.2f\n", f.Attention, f.Decay)
		}
	case memory.Episodic:
		if f := it.Episodic; f != nil {
			fmt.Printf("    Event: %s  Importance: %.2f  Valence: %+.2f\n", f.EventType, f.Importance, f.EmotionalValence)
			if len(f.Participants) > 0 {
				fmt.Printf("    Participants: %s\n", strings.Join(f.Participants, ", "))
			}
		}
	case memory.Semantic:
		if f := it.Semantic; f != nil {
			fmt.Printf("    Category: %s  Confidence: %.2f\n", f.Category, f.Confidence)
			if len(f.Relations) > 0 {
				rels := make([]string, len(f.Relations))
				for i, r := range f.Relations {
					rels[i] = r.Type + ":" + r.Target
				}
				fmt.Printf("    Relations: %s\n", strings.Join(rels, ", "))
			}
		}
	case memory.Procedural:
		if f := it.Procedural; f != nil {
			fmt.Printf("    Skill: %s  Executions: %d  Success: %.1f%%  Avg: %.0f ms\n",
				f.SkillName, f.ExecutionCount, f.SuccessRate*100, f.AverageExecutionTime)
			if len(f.Steps) > 0 {
				fmt.Printf("    Steps: %s\n", strings.Join(f.Steps, " -> "))
			}
			if len(f.Prerequisites) > 0 {
				fmt.Printf("    Prerequisites: %s\n", strings.Join(f.Prerequisites, ", "))
			}
		}
	}

	if len(it.Metadata) > 0 {
		keys := make([]string, 0, len(it.Metadata))
		for k := range it.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, it.Metadata[k]))
		}
		fmt.Printf("    Metadata: %s\n", strings.Join(pairs, "; "))
	}
	if it.Source != "" {
		fmt.Printf("    Source: %s\n", it.Source)
	}
	fmt.Printf("    Date: %s\n", it.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Println()
}

// newAppRunner creates a Cobra Run function closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		runFunc(a, cmd, args)
	}
}

func main() {
	appInstance, err := app.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	// Wrap the Run functions with newAppRunner to pass the app instance
	versionCmd.Run = newAppRunner(appInstance, runVersionCmd)
	storeCmd.Run = newAppRunner(appInstance, runStoreCmd)
	getCmd.Run = newAppRunner(appInstance, runGetCmd)
	listCmd.Run = newAppRunner(appInstance, runListCmd)
	recentCmd.Run = newAppRunner(appInstance, runRecentCmd)
	queryParticipantCmd.Run = newAppRunner(appInstance, runQueryParticipantCmd)
	queryCategoryCmd.Run = newAppRunner(appInstance, runQueryCategoryCmd)
	queryPrerequisiteCmd.Run = newAppRunner(appInstance, runQueryPrerequisiteCmd)
	searchCmd.Run = newAppRunner(appInstance, runSearchCmd)
	semanticCmd.Run = newAppRunner(appInstance, runSemanticCmd)
	contextCmd.Run = newAppRunner(appInstance, runContextCmd)
	runCmd.Run = newAppRunner(appInstance, runRunCmd)
	tickCmd.Run = newAppRunner(appInstance, runTickCmd)
	reinforceCmd.Run = newAppRunner(appInstance, runReinforceCmd)
	consolidateCmd.Run = newAppRunner(appInstance, runConsolidateCmd)
	mergeCmd.Run = newAppRunner(appInstance, runMergeCmd)
	recordCmd.Run = newAppRunner(appInstance, runRecordCmd)
	clearCmd.Run = newAppRunner(appInstance, runClearCmd)
	statsCmd.Run = newAppRunner(appInstance, runStatsCmd)
	dashboardCmd.Run = newAppRunner(appInstance, runDashboardCmd)
	doctorCmd.Run = newAppRunner(appInstance, runDoctorCmd)
	snapshotSaveCmd.Run = newAppRunner(appInstance, runSnapshotSaveCmd)
	snapshotListCmd.Run = newAppRunner(appInstance, runSnapshotListCmd)
	journalCmd.Run = newAppRunner(appInstance, runJournalCmd)
	archivedCmd.Run = newAppRunner(appInstance, runArchivedCmd)

	if err := rootCmd.Execute(); err != nil {
		appInstance.Core.Logger.Error("Root command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
