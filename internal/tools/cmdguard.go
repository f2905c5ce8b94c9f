package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// wrappers run their arguments as a command; the wrapped command is checked too.
var wrappers = map[string]bool{
	"env": true, "nice": true, "nohup": true, "timeout": true, "xargs": true, "time": true,
}

// checkCommand parses a shell command and rejects destructive invocations
// anywhere in it: pipelines, lists, subshells and substitutions included.
func checkCommand(command string) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}

	var verr error
	syntax.Walk(file, func(node syntax.Node) bool {
		if verr != nil {
			return false
		}
		switch n := node.(type) {
		case *syntax.CallExpr:
			if reason := destructive(words(n.Args)); reason != "" {
				verr = fmt.Errorf("blocked destructive command (%s)", reason)
			}
		case *syntax.FuncDecl:
			if recursesInto(n) {
				verr = fmt.Errorf("blocked destructive command (fork bomb)")
			}
		case *syntax.Redirect:
			if n.Word != nil && strings.HasPrefix(n.Word.Lit(), "/dev/sd") {
				verr = fmt.Errorf("blocked destructive command (raw device write)")
			}
		}
		return verr == nil
	})
	return verr
}

// words returns the literal value of each argument, "" for non-literal words.
func words(args []*syntax.Word) []string {
	out := make([]string, len(args))
	for i, w := range args {
		out[i] = w.Lit()
	}
	return out
}

func destructive(args []string) string {
	for len(args) > 0 && wrappers[filepath.Base(args[0])] {
		args = skipFlags(args[1:])
	}
	if len(args) == 0 || args[0] == "" {
		return ""
	}

	name := filepath.Base(args[0])
	flags := shortFlags(args[1:])
	switch {
	case name == "rm" && (strings.ContainsAny(flags, "rRf") || hasLong(args[1:], "--recursive", "--force")):
		return "recursive or forced remove"
	case name == "dd" && hasPrefixArg(args[1:], "of="):
		return "raw disk write (dd)"
	case name == "mkfs" || strings.HasPrefix(name, "mkfs."):
		return "filesystem format"
	case name == "fdisk" || name == "parted":
		return "partition edit"
	case name == "shutdown" || name == "reboot" || name == "halt" || name == "poweroff":
		return "system power"
	case (name == "chmod" || name == "chown") && (strings.ContainsAny(flags, "R") || hasLong(args[1:], "--recursive")):
		return "recursive " + name
	case name == "sudo" || name == "su" || name == "doas":
		return "privilege escalation"
	}
	return ""
}

func skipFlags(args []string) []string {
	for len(args) > 0 && (strings.HasPrefix(args[0], "-") || strings.Contains(args[0], "=")) {
		args = args[1:]
	}
	// timeout takes a duration before the command.
	if len(args) > 1 && len(args[0]) > 0 && args[0][0] >= '0' && args[0][0] <= '9' {
		args = args[1:]
	}
	return args
}

// shortFlags concatenates the letters of every "-abc" style argument.
func shortFlags(args []string) string {
	var b strings.Builder
	for _, a := range args {
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") {
			b.WriteString(a[1:])
		}
	}
	return b.String()
}

func hasLong(args []string, names ...string) bool {
	for _, a := range args {
		for _, n := range names {
			if a == n {
				return true
			}
		}
	}
	return false
}

func hasPrefixArg(args []string, prefix string) bool {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return true
		}
	}
	return false
}

// recursesInto reports whether a function body calls the function itself.
func recursesInto(fn *syntax.FuncDecl) bool {
	if fn.Name == nil || fn.Body == nil {
		return false
	}
	found := false
	syntax.Walk(fn.Body, func(node syntax.Node) bool {
		if c, ok := node.(*syntax.CallExpr); ok && len(c.Args) > 0 && c.Args[0].Lit() == fn.Name.Value {
			found = true
		}
		return !found
	})
	return found
}
