package impl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFileNameRecognizesEveryNamedFormat(t *testing.T) {
	cases := []struct {
		name       string
		wantType   FileType
		wantNumber FileNumber
	}{
		{"CURRENT", FileTypeCurrent, 0},
		{"LOCK", FileTypeLock, 0},
		{"LOG", FileTypeInfoLog, 0},
		{"LOG.old", FileTypeInfoLog, 0},
		{"MANIFEST-000042", FileTypeDescriptor, 42},
		{"000017.log", FileTypeLog, 17},
		{"000017.ldb", FileTypeTable, 17},
		{"000017.sst", FileTypeTable, 17},
		{"000017.dbtmp", FileTypeTemp, 17},
	}

	for _, c := range cases {
		gotType, gotNumber, ok := ParseFileName(c.name)
		require.True(t, ok, c.name)
		require.Equal(t, c.wantType, gotType, c.name)
		require.Equal(t, c.wantNumber, gotNumber, c.name)
	}
}

func TestParseFileNameRejectsUnrecognized(t *testing.T) {
	for _, name := range []string{
		"", "README.md", "000017", "000017.tmp", "MANIFEST-abc", ".log", "notanumber.sst",
	} {
		_, _, ok := ParseFileName(name)
		require.False(t, ok, name)
	}
}

func TestFileNameHelpersRoundTripThroughParse(t *testing.T) {
	const dbname = "/tmp/some-db"

	cases := []struct {
		path     string
		wantType FileType
		wantNum  FileNumber
	}{
		{LogFileName(dbname, 5), FileTypeLog, 5},
		{TableFileName(dbname, 5), FileTypeTable, 5},
		{SSTTableFileName(dbname, 5), FileTypeTable, 5},
		{TempFileName(dbname, 5), FileTypeTemp, 5},
	}

	for _, c := range cases {
		base := c.path[len(dbname)+1:]
		gotType, gotNum, ok := ParseFileName(base)
		require.True(t, ok, c.path)
		require.Equal(t, c.wantType, gotType, c.path)
		require.Equal(t, c.wantNum, gotNum, c.path)
	}
}
