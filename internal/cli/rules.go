package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"reroute/internal/docstore"
	"reroute/internal/reroute"
)

type rulesOptions struct {
	*rootOptions
	storePath string
}

func newRulesCmd(root *rootOptions) *cobra.Command {
	opts := &rulesOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Seed and inspect the redirect rules in the document store",
	}
	cmd.PersistentFlags().StringVar(&opts.storePath, "store-path", "", "document store directory (overrides store.path)")

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Append the rules listed in a YAML file, in file order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runImport(cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the stored rules in the order the resolver scans them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runList(cmd)
		},
	})
	return cmd
}

// openStore requires a usable store; the rules commands have nothing to do
// without one.
func (o *rulesOptions) openStore() (*docstore.Store, reroute.Config, error) {
	cfg, err := o.loadConfig(false)
	if err != nil {
		return nil, reroute.Config{}, err
	}
	path := cfg.Store.Path
	if o.storePath != "" {
		path = o.storePath
	}
	client, err := docstore.Open(path)
	if err != nil {
		return nil, reroute.Config{}, err
	}
	switch c := client.(type) {
	case docstore.Initialized:
		return c.Store, cfg, nil
	case docstore.NotConfigured:
		return nil, reroute.Config{}, fmt.Errorf("document store not configured: %s", c.Reason)
	default:
		return nil, reroute.Config{}, fmt.Errorf("unexpected store client %T", c)
	}
}

func readRulesFile(path string) ([]reroute.Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []reroute.Rule
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rules, nil
}

func (o *rulesOptions) runImport(cmd *cobra.Command, file string) error {
	rules, err := readRulesFile(file)
	if err != nil {
		return err
	}
	store, cfg, err := o.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for i, r := range rules {
		id, err := store.Create(ctx, cfg.Store.Collection, reroute.EncodeRule(r))
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r.Source, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s -> %s\n", id, r.Source, r.Destination)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules into %q\n", len(rules), cfg.Store.Collection)
	return nil
}

func (o *rulesOptions) runList(cmd *cobra.Command) error {
	store, cfg, err := o.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	src := reroute.NewStoreSource(docstore.Initialized{Store: store}, cfg.Store.Collection, zap.NewNop())
	rules, err := src.ListRules(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tDESTINATION\tSTATUS\tNEW TAB")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.ID, r.Source, r.Destination, r.StatusCode, r.OpenInNewTab)
	}
	return tw.Flush()
}
