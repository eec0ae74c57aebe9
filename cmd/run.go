package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prodfinder/imagepick/internal/app"
	"github.com/prodfinder/imagepick/internal/pick"
)

func newRunCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "run [product name]...",
		Short: "Process a batch of products and print the batch result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}

			names := args
			if fromFile != "" {
				fileNames, err := readProductNames(fromFile)
				if err != nil {
					return err
				}
				names = append(names, fileNames...)
			}
			if len(names) == 0 {
				return fmt.Errorf("no products given: pass names as arguments or use --file")
			}

			result := a.Scheduler().Run(cmd.Context(), names, func(ctx context.Context, name string) pick.ProductOutcome {
				return processProduct(ctx, a, name)
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&fromFile, "file", "", "file with one product name per line")
	return cmd
}

// processProduct loads the stored row when one exists so attempts carry over,
// then runs search rounds.
func processProduct(ctx context.Context, a *app.App, name string) pick.ProductOutcome {
	p := pick.NewProduct(name)
	if stored, err := a.Store().GetProduct(ctx, name); err == nil {
		p = &stored
	}
	out, err := a.Engine().Process(ctx, p)
	if err != nil && out.Err == "" {
		out.Err = err.Error()
	}
	return out
}

func readProductNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open product list: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read product list: %w", err)
	}
	return names, nil
}
