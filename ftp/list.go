package ftp

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"time"
)

// Entry types.
const (
	TypeFile  = "file"
	TypeDir   = "dir"
	TypeLink  = "link"
	TypeOther = "other"
)

// Entry is one line of a directory listing.
type Entry struct {
	Name string
	Type string // TypeFile, TypeDir, TypeLink or TypeOther
	Size int64

	// Perm is the raw permission text: "drwxr-xr-x" for LIST, the perm
	// fact (e.g. "flcdmpe") for MLSD, empty when the server sent none.
	Perm string

	// ModTime is zero when the listing had no usable timestamp. LIST
	// timestamps carry no zone and are read as UTC.
	ModTime time.Time

	Target string            // symlink target, LIST only
	Facts  map[string]string // raw MLSD facts, lower-case keys
	Raw    string            // the listing line
}

// List returns the entries of path, or of the working directory when
// path is empty.
//
// MLSD (RFC 3659) is the canonical format and is used whenever the server
// advertises MLST. Otherwise LIST output is parsed as Unix "ls -l" or as
// the DOS/IIS format. Lines in neither format are skipped, as are the
// "." and ".." entries. An empty directory gives an empty slice.
func (c *Client) List(path string) ([]*Entry, error) {
	var entries []*Entry
	err := c.do("LIST", func() error {
		feats, err := c.featuresLocked()
		if err != nil {
			return err
		}
		command, parse := "LIST", parseListLine
		if _, ok := feats["MLST"]; ok {
			command, parse = "MLSD", parseMLSDLine
		}

		now := c.now()
		entries = []*Entry{}
		return c.transfer(command, path, func(conn net.Conn) error {
			scanner := bufio.NewScanner(conn)
			scanner.Buffer(make([]byte, 0, 4096), 1<<20)
			for scanner.Scan() {
				entry, ok := parse(scanner.Text(), now)
				if !ok {
					if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "total ") {
						c.logger.Debug("skipping unparseable listing line", "raw", line)
					}
					continue
				}
				if entry.Name == "." || entry.Name == ".." {
					continue
				}
				entries = append(entries, entry)
			}
			return scanner.Err()
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// parseMLSDLine parses "type=file;size=42;modify=20240102030405; name".
func parseMLSDLine(line string, _ time.Time) (*Entry, bool) {
	line = strings.TrimRight(line, "\r")
	factStr, name, ok := strings.Cut(line, " ")
	if !ok || name == "" || !strings.Contains(factStr, "=") {
		return nil, false
	}

	facts := make(map[string]string)
	for fact := range strings.SplitSeq(factStr, ";") {
		key, value, ok := strings.Cut(fact, "=")
		if !ok || key == "" {
			continue
		}
		facts[strings.ToLower(key)] = value
	}

	entry := &Entry{Name: name, Facts: facts, Raw: line, Perm: facts["perm"]}

	switch t := strings.ToLower(facts["type"]); {
	case t == "file":
		entry.Type = TypeFile
	case t == "dir":
		entry.Type = TypeDir
	case t == "cdir" || t == "pdir":
		return nil, false
	case strings.HasPrefix(t, "os.unix=slink") || strings.HasPrefix(t, "os.unix=symlink"):
		entry.Type = TypeLink
	case t == "":
		return nil, false
	default:
		entry.Type = TypeOther
	}

	if s, ok := facts["size"]; ok {
		size, err := strconv.ParseInt(s, 10, 64)
		if err != nil || size < 0 {
			return nil, false
		}
		entry.Size = size
	}

	if m, ok := facts["modify"]; ok {
		// YYYYMMDDHHMMSS with optional .sss, always UTC
		m, _, _ = strings.Cut(m, ".")
		if t, err := time.Parse("20060102150405", m); err == nil {
			entry.ModTime = t.UTC()
		}
	}

	return entry, true
}

// parseListLine parses one LIST line in Unix or DOS format.
func parseListLine(line string, now time.Time) (*Entry, bool) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil, false
	}
	if e, ok := parseUnixLine(line, now); ok {
		return e, true
	}
	return parseDOSLine(line)
}

// parseUnixLine parses "ls -l" output:
//
//	-rw-r--r--   1 owner group  1037794 Dec 14 12:22 title theme.ogg
//	drwxr-xr-x   2 owner        4096 Sep 24  2024 bgm
//
// with or without the group column.
func parseUnixLine(line string, now time.Time) (*Entry, bool) {
	if len(line) < 10 || !strings.ContainsRune("-dlbcps", rune(line[0])) {
		return nil, false
	}

	// Eight columns before the name with a group, seven without.
	for _, n := range []int{8, 7} {
		f, name := splitFields(line, n)
		if len(f) < n || name == "" || len(f[0]) < 10 || len(f[0]) > 11 {
			continue
		}
		size, err := strconv.ParseInt(f[n-4], 10, 64)
		if err != nil || size < 0 {
			continue
		}
		mod, ok := parseLsTime(f[n-3], f[n-2], f[n-1], now)
		if !ok {
			continue
		}

		entry := &Entry{Name: name, Size: size, Perm: f[0], ModTime: mod, Raw: line}
		switch f[0][0] {
		case '-':
			entry.Type = TypeFile
		case 'd':
			entry.Type = TypeDir
		case 'l':
			entry.Type = TypeLink
			if before, after, ok := strings.Cut(name, " -> "); ok {
				entry.Name, entry.Target = before, after
			}
		default:
			entry.Type = TypeOther
		}
		return entry, true
	}
	return nil, false
}

// parseLsTime reads "Dec 14 12:22" or "Sep 24 2024". A time without a
// year is within the last six months, so one that would lie in the future
// belongs to the previous year.
func parseLsTime(month, day, yearOrTime string, now time.Time) (time.Time, bool) {
	if len(month) != 3 {
		return time.Time{}, false
	}
	m, err := time.Parse("Jan", strings.ToUpper(month[:1])+strings.ToLower(month[1:]))
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, false
	}

	if hh, mm, ok := strings.Cut(yearOrTime, ":"); ok {
		h, err1 := strconv.Atoi(hh)
		mi, err2 := strconv.Atoi(mm)
		if err1 != nil || err2 != nil || h > 23 || mi > 59 {
			return time.Time{}, false
		}
		t := time.Date(now.Year(), m.Month(), d, h, mi, 0, 0, time.UTC)
		if t.After(now.Add(24 * time.Hour)) {
			t = t.AddDate(-1, 0, 0)
		}
		return t, true
	}

	y, err := strconv.Atoi(yearOrTime)
	if err != nil || len(yearOrTime) != 4 {
		return time.Time{}, false
	}
	return time.Date(y, m.Month(), d, 0, 0, 0, 0, time.UTC), true
}

var dosLayouts = []string{
	"01-02-06 03:04PM",
	"01-02-2006 03:04PM",
	"01-02-06 15:04",
	"01-02-2006 15:04",
	"2006-01-02 15:04",
}

// parseDOSLine parses IIS style output:
//
//	12-14-23  12:22PM            1037794 title theme.ogg
//	09-24-24  10:30AM       <DIR>          bgm
func parseDOSLine(line string) (*Entry, bool) {
	f, name := splitFields(line, 3)
	if len(f) < 3 || name == "" {
		return nil, false
	}

	stamp := strings.ReplaceAll(f[0], "/", "-") + " " + strings.ToUpper(f[1])
	var mod time.Time
	var err error
	for _, layout := range dosLayouts {
		if mod, err = time.Parse(layout, stamp); err == nil {
			break
		}
	}
	if err != nil {
		return nil, false
	}

	entry := &Entry{Name: name, ModTime: mod, Raw: line}
	if strings.EqualFold(f[2], "<DIR>") {
		entry.Type = TypeDir
		entry.Perm = "<DIR>"
		return entry, true
	}
	size, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil || size < 0 {
		return nil, false
	}
	entry.Type = TypeFile
	entry.Size = size
	return entry, true
}

// splitFields returns the first n whitespace-separated fields of line
// and the remainder after the whitespace following them, with inner
// spacing intact so file names keep their spaces.
func splitFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	i := 0
	for len(fields) < n {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i == len(line) {
			return fields, ""
		}
		start := i
		for i < len(line) && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		fields = append(fields, line[start:i])
	}
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return fields, line[i:]
}
