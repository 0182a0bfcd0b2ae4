package ftp

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineRe matches the fixed column layout: perms, nlink, owner, group,
// size, month, day, time-or-year, name.
var lineRe = regexp.MustCompile(
	`^([d-])[rwx-]{9} +1 owner +group +(\d+) ([A-Z][a-z]{2}) +(\d{1,2}) +(\d\d:\d\d|\d{4}) (.+)$`)

func TestFormatListEntryFile(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mt := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	line := FormatListEntry(ListEntry{Name: "hello.txt", Size: 12, ModTime: mt}, now)

	m := lineRe.FindStringSubmatch(line)
	require.NotNil(t, m, "line %q does not match the column layout", line)
	assert.Equal(t, "-", m[1])
	assert.True(t, strings.HasPrefix(line, "-rw-rw-rw- "))
	assert.Equal(t, "12", m[2])
	assert.Equal(t, "hello.txt", m[6])

	// Recent entry: HH:MM of the local modification time
	local := mt.Local()
	assert.Equal(t, local.Format("15:04"), m[5])
	assert.Equal(t, monthNames[local.Month()-1], m[3])
}

func TestFormatListEntryDirectory(t *testing.T) {
	now := time.Now()
	line := FormatListEntry(ListEntry{Name: "dir1", Dir: true, Size: 4096, ModTime: now}, now)

	m := lineRe.FindStringSubmatch(line)
	require.NotNil(t, m, "line %q does not match the column layout", line)
	assert.Equal(t, "d", m[1])
	assert.True(t, strings.HasPrefix(line, "drwxrwxrwx "))
	// Directories always report size 0
	assert.Equal(t, "0", m[2])
	assert.Equal(t, "dir1", m[6])
}

func TestFormatListEntryOldUsesYear(t *testing.T) {
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	mt := time.Date(2020, time.June, 15, 10, 30, 0, 0, time.UTC)

	line := FormatListEntry(ListEntry{Name: "old.log", Size: 5, ModTime: mt}, now)

	m := lineRe.FindStringSubmatch(line)
	require.NotNil(t, m, "line %q does not match the column layout", line)
	assert.Equal(t, "2020", m[5])
	// The time-or-year field occupies five columns
	assert.Contains(t, line, " 2020 old.log")
}

func TestFormatListEntryBoundary(t *testing.T) {
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

	recent := now.Add(-recentWindow + time.Hour)
	line := FormatListEntry(ListEntry{Name: "f", Size: 1, ModTime: recent}, now)
	assert.Regexp(t, `\d\d:\d\d f$`, line)

	old := now.Add(-recentWindow - time.Hour)
	line = FormatListEntry(ListEntry{Name: "f", Size: 1, ModTime: old}, now)
	assert.Regexp(t, ` \d{4} f$`, line)
}

func TestFormatListingDirectoriesFirst(t *testing.T) {
	now := time.Now()
	entries := []ListEntry{
		{Name: "b.txt", Size: 1, ModTime: now},
		{Name: "zdir", Dir: true, ModTime: now},
		{Name: "a.txt", Size: 2, ModTime: now},
		{Name: "adir", Dir: true, ModTime: now},
	}

	out := FormatListing(entries, now)
	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	require.Len(t, lines, 4)

	// Directories precede files; insertion order within each group
	assert.True(t, strings.HasSuffix(lines[0], " zdir"))
	assert.True(t, strings.HasSuffix(lines[1], " adir"))
	assert.True(t, strings.HasSuffix(lines[2], " b.txt"))
	assert.True(t, strings.HasSuffix(lines[3], " a.txt"))

	for _, line := range lines {
		assert.Regexp(t, lineRe, line)
	}

	// Every line is CRLF terminated on the wire
	assert.Equal(t, 4, strings.Count(out, "\r\n"))
}

func TestFormatNameList(t *testing.T) {
	entries := []ListEntry{
		{Name: "dir1", Dir: true},
		{Name: "hello.txt", Size: 12},
	}
	assert.Equal(t, "dir1\r\nhello.txt\r\n", FormatNameList(entries))
}
