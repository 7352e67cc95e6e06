package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coffersTech/odsearch/internal/auth"
	"github.com/coffersTech/odsearch/internal/explain"
	"github.com/coffersTech/odsearch/internal/pkg/search"
	"github.com/coffersTech/odsearch/internal/queryoption"
)

func cmdParse(args []string) int {
	fs := newFlagSet("parse")
	asJSON := fs.Bool("json", false, "print the OData error document on failure")
	cfg, code := loadConfig(fs, args)
	if cfg == nil {
		return code
	}

	input := strings.Join(fs.Args(), " ")
	opt, err := queryoption.ParseSearch(input, cfg.Search.MaxLength)
	if err != nil {
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(queryoption.NewErrorResponse(err))
		} else {
			fmt.Fprintln(os.Stderr, describeError(input, err))
		}
		return 1
	}

	fmt.Println(opt.Expression.String())
	return 0
}

func cmdExplain(args []string) int {
	fs := newFlagSet("explain")
	style := fs.String("style", "dark", "glamour style (dark, light, notty, ascii)")
	width := fs.Int("width", 80, "word wrap width")
	cfg, code := loadConfig(fs, args)
	if cfg == nil {
		return code
	}

	input := strings.Join(fs.Args(), " ")
	opt, err := queryoption.ParseSearch(input, cfg.Search.MaxLength)
	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(input, err))
		return 1
	}

	// A nil renderer falls back to plain markdown
	r, err := explain.NewRenderer(*style, *width)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
	}
	out, err := r.Render(opt.Expression)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	fmt.Print(out)
	return 0
}

func cmdKeygen(args []string) int {
	fs := newFlagSet("keygen")
	name := fs.String("name", "", "name of the new key")
	list := fs.Bool("list", false, "list existing keys")
	revoke := fs.String("revoke", "", "revoke the key with this ID")
	cfg, code := loadConfig(fs, args)
	if cfg == nil {
		return code
	}

	if cfg.Auth.KeysFile == "" {
		fmt.Fprintf(os.Stderr, "%s: no keys file configured (use --keys-file or auth.keys_file)\n", appName)
		return 2
	}

	ks := auth.NewKeyStore(cfg.Auth.KeysFile)
	if err := ks.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}

	switch {
	case *list:
		for _, k := range ks.List() {
			fmt.Printf("%s  %-20s  %s\n", k.ID, k.Name, time.Unix(k.CreatedAt, 0).Format(time.RFC3339))
		}
	case *revoke != "":
		if err := ks.Revoke(*revoke); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			return 1
		}
		fmt.Printf("revoked %s\n", *revoke)
	case *name != "":
		key, secret, err := ks.Generate(*name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			return 1
		}
		fmt.Printf("id:     %s\nsecret: %s\n\nStore the secret now; it cannot be shown again.\n", key.ID, secret)
	default:
		fmt.Fprintf(os.Stderr, "%s: keygen needs --name, --list or --revoke\n", appName)
		return 2
	}
	return 0
}

// describeError formats err for a terminal, pointing at the offending
// position of input when the error carries one.
func describeError(input string, err error) string {
	key, ok := search.KeyOf(err)
	if !ok {
		return err.Error()
	}

	var b strings.Builder
	if pos, ok := search.Position(err); ok && pos >= 0 && pos <= len(input) {
		b.WriteString(input)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(" ", utf8.RuneCountInString(input[:pos])))
		b.WriteString("^\n")
	}
	fmt.Fprintf(&b, "%s: %v", key, err)
	return b.String()
}
