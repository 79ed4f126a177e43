package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daverage/strata/internal/analytics"
	"github.com/daverage/strata/internal/app"
	"github.com/daverage/strata/internal/memory"
	"github.com/daverage/strata/internal/recall"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show a snapshot dashboard of memory state",
}

// runDashboardCmd executes the dashboard command
func runDashboardCmd(a *app.App, cmd *cobra.Command, args []string) {
	stats := a.Stats.Snapshot()

	// Print dashboard header
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│                      strata Dashboard                       │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")
	fmt.Println()

	// Section 1: Header / Project Status
	printProjectStatus(a, stats)

	// Section 2: Tier Overview
	printTierOverview(stats)

	// Section 3: Working Memory Pressure
	printWorkingPressure(a, stats)

	// Section 4: Skill Performance
	printSkillPerformance(a)

	// Section 5: Semantic Categories
	printSemanticCategories(stats)

	// Section 6: Recent Activity
	printRecentActivity(a)
}

// printProjectStatus prints the header/project status section
func printProjectStatus(a *app.App, stats *analytics.Stats) {
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│ 1️⃣  Header / Project Status                                 │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")

	cfg := a.Core.Config
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Project Root:\t%s\n", cfg.ProjectRoot)
	fmt.Fprintf(w, ".strata Path:\t%s\n", cfg.StrataDir)
	fmt.Fprintf(w, "Agent:\t%s\n", cfg.AgentID)
	fmt.Fprintf(w, "Embedding Provider:\t%s\n", cfg.EmbeddingProvider)

	if a.Core.Archive == nil {
		fmt.Fprintf(w, "Archive:\tdisabled\n")
	} else {
		// Get archive file size
		if fileInfo, err := os.Stat(cfg.ArchivePath); err == nil {
			size := fileInfo.Size()
			var sizeStr string
			switch {
			case size < 1024:
				sizeStr = fmt.Sprintf("%d B", size)
			case size < 1024*1024:
				sizeStr = fmt.Sprintf("%.2f KB", float64(size)/1024)
			default:
				sizeStr = fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
			}
			fmt.Fprintf(w, "Archive Size:\t%s\n", sizeStr)
		} else {
			fmt.Fprintf(w, "Archive Size:\tError reading size\n")
		}

		snaps, err := a.Core.Archive.ListSnapshots(cfg.AgentID, 1)
		if err != nil || len(snaps) == 0 {
			fmt.Fprintf(w, "Last Snapshot:\tnever\n")
		} else {
			fmt.Fprintf(w, "Last Snapshot:\t%s (%d items)\n",
				snaps[0].TakenAt.Format("2006-01-02 15:04:05"), snaps[0].Items)
		}
	}

	fmt.Fprintf(w, "Total Items:\t%d\n", stats.Total)
	w.Flush()
	fmt.Println()
}

// printTierOverview prints the per-tier bar chart section
func printTierOverview(stats *analytics.Stats) {
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│ 2️⃣  Tier Overview                                           │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")

	for _, line := range stats.VisualizeTiers(40) {
		fmt.Println(line)
	}
	fmt.Println()
}

// printWorkingPressure prints the working memory pressure section
func printWorkingPressure(a *app.App, stats *analytics.Stats) {
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│ 3️⃣  Working Memory Pressure (top 5 by attention)            │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Occupancy:\t%d/%d\n", stats.Working.Count, stats.Working.Capacity)
	fmt.Fprintf(w, "Avg Attention:\t%.2f\n", stats.Working.AvgAttention)
	w.Flush()
	fmt.Println()

	items, err := a.Recall.Search(recall.Options{Tier: memory.Working, Limit: 5})
	if err != nil {
		fmt.Printf("Error querying working memory: %v\n\n", err)
		return
	}

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tAttention\tContent\n")
	fmt.Fprintf(w, "--\t---------\t-------\n")
	for _, it := range items {
		attention := 0.0
		if it.Working != nil {
			attention = it.Working.Attention
		}
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", it.ID, attention, truncate(it.Content, 40))
	}
	w.Flush()
	fmt.Println()
}

// printSkillPerformance prints the skill performance section
func printSkillPerformance(a *app.App) {
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│ 4️⃣  Skill Performance (top 5 by success rate)               │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")

	items, err := a.Recall.Search(recall.Options{Tier: memory.Procedural, Limit: 5})
	if err != nil {
		fmt.Printf("Error querying skills: %v\n\n", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Skill\tRuns\tSuccess\tAvg ms\n")
	fmt.Fprintf(w, "-----\t----\t-------\t------\n")
	for _, it := range items {
		if it.Procedural == nil {
			continue
		}
		f := it.Procedural
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.0f\n",
			truncate(f.SkillName, 30), f.ExecutionCount, f.SuccessRate*100, f.AverageExecutionTime)
	}
	w.Flush()
	fmt.Println()
}

// printSemanticCategories prints the semantic category breakdown section
func printSemanticCategories(stats *analytics.Stats) {
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│ 5️⃣  Semantic Categories                                     │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")

	if len(stats.Semantic.Categories) == 0 {
		fmt.Println("No semantic items stored.")
		fmt.Println()
		return
	}

	names := make([]string, 0, len(stats.Semantic.Categories))
	for name := range stats.Semantic.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := stats.Semantic.Categories[names[i]], stats.Semantic.Categories[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Category\tItems\n")
	fmt.Fprintf(w, "--------\t-----\n")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", truncate(name, 40), stats.Semantic.Categories[name])
	}
	w.Flush()
	fmt.Println()
}

// printRecentActivity prints the recent journal activity section
func printRecentActivity(a *app.App) {
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│ 6️⃣  Recent Activity (limit 5)                               │")
	fmt.Println("└─────────────────────────────────────────────────────────────┘")

	if a.Core.Archive == nil {
		fmt.Println("Event journal: not enabled")
		fmt.Println()
		return
	}

	entries, err := a.Core.Archive.RecentEvents(5)
	if err != nil {
		fmt.Printf("Error querying journal: %v\n\n", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Time\tKind\tItem\tNote\n")
	fmt.Fprintf(w, "----\t----\t----\t----\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.At.Format("2006-01-02 15:04"), e.Kind, e.ID, truncate(e.Note, 30))
	}
	w.Flush()
	fmt.Println()
}

// truncate shortens s to at most n characters, marking the cut with an
// ellipsis.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
