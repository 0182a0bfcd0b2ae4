package ftp

import (
	"fmt"
	"strings"
	"time"
)

const (
	dirPerms  = "drwxrwxrwx"
	filePerms = "-rw-rw-rw-"

	// listingOwner and listingGroup are fixed: real ownership is not
	// reported over FTP.
	listingOwner = "owner"
	listingGroup = "group"

	// recentWindow decides between the HH:MM and the year form of the
	// time column, matching the convention of ls -l.
	recentWindow = 180 * 24 * time.Hour
)

// monthNames is hard-coded so listings stay parseable by clients
// regardless of the host locale.
var monthNames = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// ListEntry describes one directory entry for the listing formatter.
type ListEntry struct {
	Name    string
	Dir     bool
	Size    int64
	ModTime time.Time
}

// FormatListEntry renders one UNIX-style listing line (no terminator):
//
//	drwxrwxrwx   1 owner    group               0 Jan  2 03:04 dir1
//
// Directories report size 0. The time column is HH:MM local time for
// entries modified within the last ~6 months, the four-digit year
// otherwise.
func FormatListEntry(e ListEntry, now time.Time) string {
	perms := filePerms
	size := e.Size
	if e.Dir {
		perms = dirPerms
		size = 0
	}

	mt := e.ModTime.Local()
	age := now.UTC().Sub(e.ModTime.UTC())
	if age < 0 {
		age = -age
	}
	timeOrYear := mt.Format("15:04")
	if age >= recentWindow {
		timeOrYear = fmt.Sprintf("%5d", mt.Year())
	}

	return fmt.Sprintf("%s %3d %-8s %-8s %12d %s %2d %5s %s",
		perms, 1, listingOwner, listingGroup, size,
		monthNames[mt.Month()-1], mt.Day(), timeOrYear, e.Name)
}

// FormatListing renders a full listing with directories first, each
// line CRLF-terminated for the data channel. Within each group the
// entries keep their incoming order.
func FormatListing(entries []ListEntry, now time.Time) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Dir {
			b.WriteString(FormatListEntry(e, now))
			b.WriteString("\r\n")
		}
	}
	for _, e := range entries {
		if !e.Dir {
			b.WriteString(FormatListEntry(e, now))
			b.WriteString("\r\n")
		}
	}
	return b.String()
}

// FormatNameList renders the bare-names form used by NLST, one name
// per CRLF-terminated line, in incoming order.
func FormatNameList(entries []ListEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name)
		b.WriteString("\r\n")
	}
	return b.String()
}
