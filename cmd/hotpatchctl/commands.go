package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/manifest"
	"github.com/chazu/hotpatch/patchstore"
	"github.com/chazu/hotpatch/patchwire"
	"github.com/chazu/hotpatch/server"
)

// ctlOptions holds the persistent flags shared by every subcommand.
type ctlOptions struct {
	dir     string
	addr    string
	store   string
	timeout time.Duration
	verbose bool

	manifest *manifest.Manifest
}

func newRootCmd() *cobra.Command {
	opts := &ctlOptions{}

	root := &cobra.Command{
		Use:           "hotpatchctl",
		Short:         "Install and inspect runtime patches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbosity := 0
			if opts.verbose {
				verbosity = 2
			}
			commonlog.Configure(verbosity, nil)

			m, err := manifest.LoadOrDefault(opts.dir)
			if err != nil {
				return fmt.Errorf("loading manifest: %w", err)
			}
			opts.manifest = m
			if !cmd.Flags().Changed("addr") {
				opts.addr = m.Server.Addr
			}
			if !cmd.Flags().Changed("store") {
				opts.store = m.StorePath()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.dir, "dir", ".", "Directory to search for "+manifest.FileName)
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "Control service address (default: server.addr from the manifest)")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "Journal path for export and import (default: store.path from the manifest)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newInstallCmd(opts),
		newUninstallCmd(opts),
		newListCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
	)
	return root
}

func (o *ctlOptions) client() *server.Client {
	base := o.addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return server.NewClient(http.DefaultClient, base)
}

func (o *ctlOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// =============================================================================
// INSTALL / UNINSTALL
// =============================================================================

func newInstallCmd(opts *ctlOptions) *cobra.Command {
	var phaseName string
	cmd := &cobra.Command{
		Use:   "install <namespace> <method> <json-value>",
		Short: "Install a value patch",
		Long: `Install a value patch on the running process. The value is given as JSON;
the patched call returns it while the patch is installed.

Patches at the none and before phases are kept until uninstalled and are
journaled when the process has a store. An after patch is consumed by the
first call that reaches it.`,
		Example: `  hotpatchctl install shop.Cart total 0
  hotpatchctl install shop.Cart checkout '{"ok": true}' --phase before`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := dispatch.ParsePhase(phaseName)
			if err != nil {
				return err
			}
			value, err := parseJSONValue(args[2])
			if err != nil {
				return err
			}
			p, err := patchwire.NewPatch(args[0], args[1], phase, value)
			if err != nil {
				return err
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			resp, err := opts.client().Install(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", p.String())
			fmt.Fprintf(cmd.OutOrStdout(), "  hash:      sha256:%s\n", hex.EncodeToString(resp.Hash[:]))
			fmt.Fprintf(cmd.OutOrStdout(), "  persisted: %t\n", resp.Persisted)
			return nil
		},
	}
	cmd.Flags().StringVar(&phaseName, "phase", "none", "Phase: none, before or after")
	return cmd
}

func newUninstallCmd(opts *ctlOptions) *cobra.Command {
	var phaseName string
	cmd := &cobra.Command{
		Use:   "uninstall <namespace> <method>",
		Short: "Remove a patch and its journal entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := dispatch.ParsePhase(phaseName)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := opts.client().Uninstall(ctx, args[0], args[1], phase); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s.%s (%s)\n", args[0], args[1], phase)
			return nil
		},
	}
	cmd.Flags().StringVar(&phaseName, "phase", "none", "Phase: none, before or after")
	return cmd
}

// =============================================================================
// LIST / STATS
// =============================================================================

func newListCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed wrappers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			wrappers, err := opts.client().List(ctx)
			if err != nil {
				return err
			}
			if len(wrappers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No wrappers installed")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAMESPACE\tMETHOD\tPHASE\tKIND\tVALUE")
			for _, w := range wrappers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.Namespace, w.Method, w.Phase, w.Kind, formatValue(w))
			}
			return tw.Flush()
		},
	}
}

func newStatsCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show engine cache and wrapper counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			st, err := opts.client().Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Engine:     %s\n", st.Engine)
			fmt.Fprintf(out, "Wrappers:   %d\n", st.Wrappers)
			fmt.Fprintf(out, "Journaled:  %d\n", st.Journaled)
			fmt.Fprintf(out, "Registries: %d cached, %d hits, %d misses, %d loads\n",
				st.Registries.Entries, st.Registries.Hits, st.Registries.Misses, st.Registries.Loads)
			fmt.Fprintf(out, "Owners:     %d cached, %d hits, %d misses, %d constructed\n",
				st.Owners.Entries, st.Owners.Hits, st.Owners.Misses, st.Owners.Loads)
			return nil
		},
	}
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

func newExportCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the journal to a CBOR patch set file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			set, err := store.Export(cmd.Context())
			if err != nil {
				return err
			}
			data, err := patchwire.MarshalPatchSet(set)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d patches to %s\n", len(set.Patches), args[0])
			return nil
		},
	}
}

func newImportCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Journal every patch in a CBOR patch set file",
		Long: `Journal every patch in a patch set file. Imported patches take effect the
next time the process starts and replays its journal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			set, err := patchwire.UnmarshalPatchSet(data)
			if err != nil {
				return err
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Import(cmd.Context(), set)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d patches into %s\n", n, store.Path())
			return nil
		},
	}
}

func (o *ctlOptions) openStore() (*patchstore.Store, error) {
	if o.store == "" {
		return nil, fmt.Errorf("no journal configured; set store.path or pass --store")
	}
	return patchstore.Open(o.store)
}

// =============================================================================
// VALUES
// =============================================================================

// parseJSONValue decodes a command-line JSON value. Integral numbers become
// int64 so they round-trip as CBOR integers.
func parseJSONValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("value %q is not valid JSON: %w", s, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("value %q has trailing data", s)
	}
	return normalizeJSON(v), nil
}

func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeJSON(e)
		}
		return x
	}
	return v
}

func formatValue(w patchwire.WrapperInfo) string {
	if w.Kind != "value" {
		return "-"
	}
	if len(w.Value) == 0 {
		return "<opaque>"
	}
	v, err := patchwire.DecodeValue(w.Value)
	if err != nil {
		return "<undecodable>"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(buf.String())
}
