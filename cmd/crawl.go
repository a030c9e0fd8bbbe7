package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <url...|file>",
		Short: "Extracts products from the given URLs without the task table",
		Long: `Runs the given URLs through the same pipeline and persistence as run-queue,
using an in-memory task list. A single argument naming an existing file is
read as one URL per line; blank lines and lines starting with # are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			urls, err := collectURLs(args)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return errors.New("no URLs to crawl")
			}
			sum, err := appInstance.Crawl(cmd.Context(), urls)
			logSummary(sum)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("crawl: %w", err)
			}
			return nil
		},
	}
}

// collectURLs returns args as URLs, or the lines of args[0] when it is the
// only argument and names a regular file.
func collectURLs(args []string) ([]string, error) {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.Mode().IsRegular() {
			return readURLFile(args[0])
		}
	}
	var urls []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}
	return urls, nil
}

func readURLFile(path string) ([]string, error) {
	// #nosec G304 -- path is supplied by the operator on the command line.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}
