package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coderunr/judgeworker/internal/languages"
)

// NewLanguagesCommand lists every language the embedded registry knows
// about: its version, whether it compiles, and its aliases.
func NewLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "languages",
		Aliases: []string{"lang"},
		Short:   "List the languages known to the language registry",
		RunE: func(c *cobra.Command, args []string) error {
			registry, err := languages.Load(nil)
			if err != nil {
				return fmt.Errorf("failed to load language registry: %w", err)
			}

			names := registry.Names()
			sort.Strings(names)

			bold := color.New(color.Bold)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, bold.Sprint("LANGUAGE")+"\t"+bold.Sprint("VERSION")+"\t"+bold.Sprint("COMPILED")+"\t"+bold.Sprint("ALIASES"))
			for _, name := range names {
				descriptor, ok := registry.Get(name)
				if !ok {
					continue
				}
				version := "-"
				if descriptor.Version != nil {
					version = descriptor.Version.String()
				}
				compiled := "no"
				if len(descriptor.CompileCommand) > 0 {
					compiled = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", descriptor.Name, version, compiled, strings.Join(descriptor.Aliases, ", "))
			}
			return w.Flush()
		},
	}
}
