// help_template.go gives every repodeploy command the same help layout: a
// short description, usage, examples, and separately headed local and
// inherited flag sections.
package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	localFlagsHeadingKey = "localFlagsHeading"
	localUsageKey        = "localFlagUsages"
	inheritedUsageKey    = "inheritedFlagUsages"
)

const commandHelpTemplate = `{{with or .Long .Short}}{{. | trimTrailingWhitespaces}}{{end}}

Usage:
  {{.UseLine}}
{{if .HasAvailableSubCommands}}
Commands:
{{range .Commands}}{{if (and .IsAvailableCommand (ne .Name "help"))}}  {{rpad .Name .NamePadding}} {{.Short}}
{{end}}{{end}}{{end}}{{if .HasExample}}
Examples:
{{.Example}}
{{end}}
{{index .Annotations "localFlagsHeading"}}:
{{with index .Annotations "localFlagUsages"}}{{.}}{{else}}  (none){{end}}
{{with index .Annotations "inheritedFlagUsages"}}
Global Flags:
{{.}}
{{end}}`

func decorateCommandHelp(cmd *cobra.Command, heading string) {
	if strings.TrimSpace(heading) == "" {
		heading = "Flags"
	}
	cmd.SetHelpTemplate(commandHelpTemplate)
	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c.Annotations == nil {
			c.Annotations = make(map[string]string)
		}
		c.Annotations[localFlagsHeadingKey] = heading
		c.Annotations[localUsageKey] = formatFlagUsages(c.LocalFlags())
		c.Annotations[inheritedUsageKey] = ""
		if c.HasAvailableInheritedFlags() {
			c.Annotations[inheritedUsageKey] = formatFlagUsages(c.InheritedFlags())
		}
		defaultHelp(c, args)
	})
}

// formatFlagUsages renders fs the way pflag does, wrapped at 100 columns and
// with tabs expanded so the sections line up.
func formatFlagUsages(fs *pflag.FlagSet) string {
	if fs == nil || !fs.HasAvailableFlags() {
		return ""
	}
	usages := fs.FlagUsagesWrapped(100)
	usages = strings.ReplaceAll(usages, "\t", "  ")
	return strings.TrimRight(usages, "\n")
}
