package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/gonzalop/soundftp"
	"github.com/gonzalop/soundftp/ftp"
)

type command struct {
	name  string
	usage string
	help  string
	run   func(sh *shell, args []string) error
}

// commands is filled in init because help refers back to it.
var commands []command

func init() {
	commands = []command{
		{"open", "open HOST[:PORT] [USER]", "Connect and log in", (*shell).open},
		{"close", "close", "Disconnect from the server", (*shell).close},
		{"ls", "ls [PATH]", "List files and directories", (*shell).ls},
		{"cd", "cd PATH", "Change the remote directory", (*shell).cd},
		{"pwd", "pwd", "Show the remote directory", (*shell).pwd},
		{"mkdir", "mkdir NAME", "Create a remote directory", (*shell).mkdir},
		{"rmdir", "rmdir NAME", "Remove an empty remote directory", (*shell).rmdir},
		{"rm", "rm NAME", "Delete a remote file", (*shell).rm},
		{"mv", "mv FROM TO", "Rename a remote file or directory", (*shell).mv},
		{"size", "size NAME", "Show the size of a remote file", (*shell).size},
		{"get", "get REMOTE [LOCAL]", "Download a file", (*shell).get},
		{"put", "put LOCAL [REMOTE]", "Upload a file", (*shell).put},
		{"log", "log", "Show the operation log", (*shell).showLog},
		{"help", "help", "Show this help", (*shell).help},
		{"exit", "exit", "Disconnect and leave", nil},
	}
}

// shell runs the interactive commands against one session.
type shell struct {
	session *soundftp.Session
	out     io.Writer

	// password is asked for by open when no password was configured
	password func(user string) (string, error)

	// names caches the last listing for completion
	names []string
	dirs  []string

	ok   *color.Color
	fail *color.Color
	info *color.Color
}

func newShell(s *soundftp.Session, out io.Writer) *shell {
	return &shell{
		session:  s,
		out:      out,
		password: func(string) (string, error) { return "", nil },
		ok:       color.New(color.FgGreen),
		fail:     color.New(color.FgRed),
		info:     color.New(color.FgCyan),
	}
}

// execute runs one input line.
func (sh *shell) execute(line string) {
	args := splitArgs(line)
	if len(args) == 0 || args[0] == "exit" || args[0] == "quit" {
		return
	}
	for _, c := range commands {
		if c.name != strings.ToLower(args[0]) || c.run == nil {
			continue
		}
		if err := c.run(sh, args[1:]); err != nil {
			sh.fail.Fprintf(sh.out, "error: %v\n", describe(err))
		}
		return
	}
	sh.fail.Fprintf(sh.out, "unknown command %q, try help\n", args[0])
}

// describe adds the error kind in words for the common cases.
func describe(err error) string {
	switch {
	case errors.Is(err, soundftp.ErrNotConnected):
		return "not connected (use open HOST)"
	case errors.Is(err, soundftp.ErrNotFound):
		return fmt.Sprintf("no such file or directory (%v)", err)
	}
	return err.Error()
}

func usage(name string) error {
	for _, c := range commands {
		if c.name == name {
			return fmt.Errorf("usage: %s", c.usage)
		}
	}
	return fmt.Errorf("usage: %s", name)
}

func (sh *shell) open(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("open")
	}
	user := "anonymous"
	if len(args) == 2 {
		user = args[1]
	}
	pass, err := sh.password(user)
	if err != nil {
		return err
	}
	if err := sh.session.Connect(args[0], user, pass); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "connected to %s as %s\n", sh.session.Addr(), user)
	return nil
}

func (sh *shell) close(args []string) error {
	if err := sh.session.Disconnect(); err != nil {
		return err
	}
	sh.names, sh.dirs = nil, nil
	sh.ok.Fprintln(sh.out, "disconnected")
	return nil
}

func (sh *shell) ls(args []string) error {
	p := ""
	if len(args) > 0 {
		p = args[0]
	}
	entries, err := sh.session.RawListing(p)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Type == ftp.TypeDir) != (entries[j].Type == ftp.TypeDir) {
			return entries[i].Type == ftp.TypeDir
		}
		return entries[i].Name < entries[j].Name
	})

	table := tablewriter.NewWriter(sh.out)
	table.Header("Name", "Type", "Size", "Modified", "Permissions")
	sh.names, sh.dirs = sh.names[:0], sh.dirs[:0]
	for _, e := range entries {
		size, modified := "", ""
		if e.Type != ftp.TypeDir {
			size = formatSize(e.Size)
		}
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Format("2006-01-02 15:04")
		}
		if err := table.Append([]string{e.Name, e.Type, size, modified, e.Perm}); err != nil {
			return err
		}
		sh.names = append(sh.names, e.Name)
		if e.Type == ftp.TypeDir {
			sh.dirs = append(sh.dirs, e.Name)
		}
	}
	return table.Render()
}

func (sh *shell) cd(args []string) error {
	if len(args) != 1 {
		return usage("cd")
	}
	if err := sh.session.ChangeWorkingDirectory(args[0]); err != nil {
		return err
	}
	sh.names, sh.dirs = nil, nil
	sh.info.Fprintln(sh.out, sh.session.WorkingDirectory())
	return nil
}

func (sh *shell) pwd(args []string) error {
	if sh.session.State() != soundftp.Authenticated {
		return soundftp.ErrNotConnected
	}
	sh.info.Fprintln(sh.out, sh.session.WorkingDirectory())
	return nil
}

func (sh *shell) mkdir(args []string) error {
	if len(args) != 1 {
		return usage("mkdir")
	}
	if err := sh.session.MakeDirectory(args[0]); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "created %s\n", args[0])
	return nil
}

func (sh *shell) rmdir(args []string) error {
	if len(args) != 1 {
		return usage("rmdir")
	}
	if err := sh.session.DeleteDirectory(args[0]); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "removed %s\n", args[0])
	return nil
}

func (sh *shell) rm(args []string) error {
	if len(args) != 1 {
		return usage("rm")
	}
	if err := sh.session.DeleteFile(args[0]); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "deleted %s\n", args[0])
	return nil
}

func (sh *shell) mv(args []string) error {
	if len(args) != 2 {
		return usage("mv")
	}
	if err := sh.session.Rename(args[0], args[1]); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "renamed %s to %s\n", args[0], args[1])
	return nil
}

func (sh *shell) size(args []string) error {
	if len(args) != 1 {
		return usage("size")
	}
	n, err := sh.session.FileSize(args[0])
	if err != nil {
		return err
	}
	sh.info.Fprintf(sh.out, "%s: %s (%d bytes)\n", args[0], formatSize(n), n)
	return nil
}

func (sh *shell) get(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("get")
	}
	local := path.Base(args[0])
	if len(args) == 2 {
		local = args[1]
	}
	data, err := sh.session.Download(args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "downloaded %s to %s (%s)\n", args[0], local, formatSize(int64(len(data))))
	return nil
}

func (sh *shell) put(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("put")
	}
	remote := filepath.Base(args[0])
	if len(args) == 2 {
		remote = args[1]
	}
	if err := sh.session.UploadFromPath(args[0], remote); err != nil {
		return err
	}
	sh.ok.Fprintf(sh.out, "uploaded %s to %s\n", args[0], remote)
	return nil
}

func (sh *shell) showLog(args []string) error {
	_, err := sh.session.Log().WriteTo(sh.out)
	return err
}

func (sh *shell) help(args []string) error {
	table := tablewriter.NewWriter(sh.out)
	table.Header("Command", "Description")
	for _, c := range commands {
		if err := table.Append([]string{c.usage, c.help}); err != nil {
			return err
		}
	}
	return table.Render()
}

// complete suggests command names, then remote names from the last listing.
func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	words := strings.Fields(text)
	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(text, " ")) {
		s := make([]prompt.Suggest, 0, len(commands))
		for _, c := range commands {
			s = append(s, prompt.Suggest{Text: c.name, Description: c.help})
		}
		return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
	}

	names := sh.names
	switch strings.ToLower(words[0]) {
	case "cd", "rmdir", "ls":
		names = sh.dirs
	case "open", "put", "help", "log", "pwd", "close":
		return nil
	}
	s := make([]prompt.Suggest, 0, len(names))
	for _, n := range names {
		s = append(s, prompt.Suggest{Text: n})
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), false)
}

// splitArgs splits on spaces, keeping "double quoted" words together.
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	inQuote, started := false, false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case (r == ' ' || r == '\t') && !inQuote:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return args
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
