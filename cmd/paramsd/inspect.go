package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/params/internal/errors"
	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/querystring"
	"github.com/vango-dev/params/pkg/server"
	"github.com/vango-dev/params/pkg/session"
)

func inspectCmd(flags *globalFlags) *cobra.Command {
	var (
		sets      []string
		exportAll bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [query]",
		Short: "Run one render pass and print the parameters",
		Long: `Open the page with the given query string, apply edits, and print
every parameter with the query string the page would export.

Examples:
  paramsd inspect 'bar=7&category=lasagne'
  paramsd inspect --set floating=2.5 --set foo=yes
  paramsd inspect --export-all --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			var rawQuery string
			if len(args) == 1 {
				rawQuery = args[0]
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			result, err := inspect(buildPage(cfg.Parameters, localToday()), rawQuery, sets, exportAll, logger)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			result.print(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Apply a widget edit key=value (repeatable)")
	cmd.Flags().BoolVar(&exportAll, "export-all", false, "Export every parameter, not only edited ones")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

type inspectedParameter struct {
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	Display string `json:"display"`
}

type inspection struct {
	Parameters []inspectedParameter `json:"parameters"`
	Query      string               `json:"query"`
	ExportAll  bool                 `json:"export_all"`
}

// inspect runs one render pass on a fresh session.
func inspect(page server.Page, rawQuery string, sets []string, exportAll bool, logger *slog.Logger) (*inspection, error) {
	query, err := querystring.Parse(rawQuery)
	if err != nil {
		return nil, errors.New(errors.CodeCLIQuery).Wrap(err).WithSource(rawQuery)
	}

	state := session.NewState()
	reg, err := params.New(state, query, params.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := page(reg); err != nil {
		return nil, errors.FromError(err, errors.CodeCLIQuery).WithSource(rawQuery)
	}
	if exportAll {
		reg.SetExportAll(true)
	}

	for _, set := range sets {
		key, raw, ok := strings.Cut(set, "=")
		if !ok {
			return nil, errors.New(errors.CodeCLIUsage).
				WithDetail(fmt.Sprintf("--set expects key=value, got %q", set))
		}
		v, err := reg.Decode(key, raw)
		if err != nil {
			return nil, errors.FromError(err, errors.CodeCLIUsage).WithSource("--set " + set)
		}
		state.Set(key, v)
		if err := reg.UpdateFromExternal(key); err != nil {
			return nil, errors.FromError(err, errors.CodeCLIUsage)
		}
	}
	reg.Export()

	result := &inspection{Query: query.Encode(), ExportAll: reg.IsExportAll()}
	for _, key := range reg.Keys() {
		p, err := reg.Lookup(key)
		if err != nil {
			return nil, err
		}
		result.Parameters = append(result.Parameters, inspectedParameter{
			Key:     key,
			Kind:    p.Kind.String(),
			Display: p.String(),
		})
	}
	return result, nil
}

func (r *inspection) print(w io.Writer) {
	width := len("query")
	for _, p := range r.Parameters {
		width = max(width, len(p.Key))
	}
	for _, p := range r.Parameters {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, p.Key+":", p.Display)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-*s  %s\n", width+1, "query:", r.Query)
}
