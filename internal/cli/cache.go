package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/nodule-extract/internal/cache"
)

var (
	cleanAll       bool
	cleanOlderThan int
)

// cacheCmd represents the cache command group
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the stage cache",
	Long: `Manage the SQLite cache of loaded pipeline stages.

Every loading stage (annotations, diagnosis, images) stores its result keyed
by the directory it was loaded from, so re-running extract on unchanged
inputs skips straight to extraction.

Available commands:
  info   - Show cache location and cached stages
  clean  - Trigger cache eviction or drop everything`,
}

// cacheInfoCmd shows cache location and stats
var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache location and cached stages",
	RunE:  runCacheInfo,
}

// cacheCleanCmd manually triggers cache eviction
var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Manually trigger cache eviction",
	Long: `Manually trigger cache eviction.

Eviction criteria (in order):
  1. Entries not used for cache.max_age_days (or --older-than)
  2. Least recently used entries while the cache exceeds cache.max_size_mb

With --all every entry is removed.`,
	RunE: runCacheClean,
}

func init() {
	cacheCleanCmd.Flags().BoolVar(&cleanAll, "all", false, "remove every cached stage")
	cacheCleanCmd.Flags().IntVar(&cleanOlderThan, "older-than", 0, "evict entries not used for this many days")

	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	c := cache.NewCache(cfg.Cache.Location)
	fmt.Fprintf(out, "Cache Location: %s\n", c.GetCachePath())
	if !cfg.Cache.Enabled {
		fmt.Fprintln(out, "Cache is disabled (cache.enabled: false)")
		return nil
	}

	db, err := c.OpenDatabase()
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Total Size: %.2f MB\n", stats.SizeMB)
	fmt.Fprintf(out, "Entries: %d\n", stats.Entries)

	entries, err := db.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// Most recently used first
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AccessedAt.After(entries[j].AccessedAt)
	})

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-12s %-40s %-16s %s\n", "Stage", "Source", "Last Used", "Size")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")
	for _, e := range entries {
		fmt.Fprintf(out, "%-12s %-40s %-16s %s\n",
			e.Stage,
			truncate(e.Source, 40),
			formatDuration(time.Since(e.AccessedAt)),
			fmt.Sprintf("%.2f MB", float64(e.SizeBytes)/(1024*1024)))
	}
	return nil
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	db, err := cache.NewCache(cfg.Cache.Location).OpenDatabase()
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	if cleanAll {
		n, err := db.Clear()
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintf(out, "Removed %d cached stage(s)\n", n)
		return nil
	}

	policy := cfg.EvictionPolicy()
	if cmd.Flags().Changed("older-than") {
		policy.MaxAgeDays = cleanOlderThan
	}

	fmt.Fprintln(out, "Running cache eviction...")
	result, err := db.Evict(policy)
	if err != nil {
		return fmt.Errorf("eviction failed: %w", err)
	}

	if len(result.EvictedEntries) == 0 {
		fmt.Fprintln(out, "No entries evicted (cache is within limits)")
		return nil
	}
	fmt.Fprintf(out, "Evicted %d entries, freed %.2f MB\n", len(result.EvictedEntries), result.FreedMB)
	fmt.Fprintf(out, "Remaining: %.2f MB\n", result.RemainingMB)
	if verbose {
		fmt.Fprintln(out, "\nEvicted entries:")
		for _, key := range result.EvictedEntries {
			fmt.Fprintf(out, "  - %s\n", key)
		}
	}
	return nil
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
