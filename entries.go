package soundftp

import (
	"time"

	"github.com/gonzalop/soundftp/ftp"
)

// FileEntry is a regular file in a directory listing.
type FileEntry struct {
	Name string

	// Attributes is the permission text as the server sent it
	// ("-rw-r--r--" for LIST, the perm fact for MLSD).
	Attributes string

	Size     int64
	Modified time.Time
}

// ModifiedDate returns the modification date as "2006-01-02", or "" when
// the server sent no usable timestamp.
func (f FileEntry) ModifiedDate() string {
	if f.Modified.IsZero() {
		return ""
	}
	return f.Modified.Format(time.DateOnly)
}

// ModifiedTime returns the modification time of day as "15:04:05", or ""
// when the server sent no usable timestamp.
func (f FileEntry) ModifiedTime() string {
	if f.Modified.IsZero() {
		return ""
	}
	return f.Modified.Format(time.TimeOnly)
}

// DirectoryEntry is a subdirectory in a directory listing.
type DirectoryEntry struct {
	Name       string
	Attributes string
	Modified   time.Time
}

func fileEntries(entries []*ftp.Entry) []FileEntry {
	files := []FileEntry{}
	for _, e := range entries {
		if e.Type != ftp.TypeFile {
			continue
		}
		files = append(files, FileEntry{Name: e.Name, Attributes: e.Perm, Size: e.Size, Modified: e.ModTime})
	}
	return files
}

func directoryEntries(entries []*ftp.Entry) []DirectoryEntry {
	dirs := []DirectoryEntry{}
	for _, e := range entries {
		if e.Type != ftp.TypeDir {
			continue
		}
		dirs = append(dirs, DirectoryEntry{Name: e.Name, Attributes: e.Perm, Modified: e.ModTime})
	}
	return dirs
}
