package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/coffersTech/odsearch/internal/explain"
	"github.com/coffersTech/odsearch/internal/pkg/search"
	"github.com/coffersTech/odsearch/internal/queryoption"
)

const (
	historyFile = ".odsearch_history"
	promptMain  = "$search> "
	promptCont  = "     ... "
)

const replHelp = `REPL commands:
  :explain  Toggle the outline view
  :help     Show this help
  :quit     Exit the REPL
`

func cmdRepl(args []string) int {
	fs := newFlagSet("repl")
	cfg, code := loadConfig(fs, args)
	if cfg == nil {
		return code
	}

	fmt.Println("odsearch $search REPL\nCtrl+C cancels input, Ctrl+D exits. Type :help for commands.")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	showOutline := false
	for {
		input, ok := readExpression(ln.Prompt)
		if !ok {
			fmt.Println()
			return 0
		}

		trimmed := strings.TrimSpace(input)
		switch trimmed {
		case "":
			continue
		case ":quit", ":q":
			return 0
		case ":help":
			fmt.Print(replHelp)
			continue
		case ":explain":
			showOutline = !showOutline
			fmt.Printf("outline view %s\n", onOff(showOutline))
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		opt, err := queryoption.ParseSearch(input, cfg.Search.MaxLength)
		if err != nil {
			fmt.Fprintln(os.Stderr, describeError(input, err))
			continue
		}
		if showOutline {
			fmt.Print(explain.Markdown(opt.Expression))
		} else {
			fmt.Println(opt.Expression.String())
		}
	}
}

// readExpression reads lines until they form an expression that is not
// waiting for a closing parenthesis.
func readExpression(prompt func(string) (string, error)) (string, bool) {
	var b strings.Builder
	for {
		p := promptMain
		if b.Len() > 0 {
			p = promptCont
		}
		line, err := prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C aborts the current input
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if !needsMore(b.String()) {
			return b.String(), true
		}
	}
}

// needsMore reports whether src only fails because a group is still open.
func needsMore(src string) bool {
	_, err := search.Parse(src)
	key, ok := search.KeyOf(err)
	return ok && key == search.KeyMissingClose
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
