package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gtdetl/internal/config"
	"gtdetl/internal/gtd"
)

func writeSource(t *testing.T, content string) config.Pipeline {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtd.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return config.Pipeline{
		Source: config.Source{Kind: "file", File: &config.FileSource{Path: path}},
		Parser: config.Parser{Kind: "csv"},
	}
}

func TestStreamRecordsParsesGTDHeaders(t *testing.T) {
	cfg := writeSource(t,
		"eventid,iyear,imonth,iday,country,country_txt,gname,success,nkill\n"+
			"197000000001,1970,7,2,58,Dominican Republic,MANO-D,1,1\n"+
			"197001010002,1970,1,1,130,Mexico,Unknown,1,0\n")

	var recs []*gtd.Record
	stats, err := StreamRecords(context.Background(), cfg, nil, func(r *gtd.Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Records)
	require.Zero(t, stats.BadRows)

	require.Equal(t, "197000000001", recs[0].EventID)
	require.EqualValues(t, 1970, *recs[0].Year)
	require.EqualValues(t, 58, *recs[0].CountryCode)
	require.Equal(t, "Dominican Republic", *recs[0].CountryName)
	require.Equal(t, "MANO-D", *recs[0].GroupName)
	require.EqualValues(t, 1, *recs[0].NumKilled)

	require.Nil(t, recs[1].GroupName, `"Unknown" group is a placeholder, not a member`)
	require.EqualValues(t, 0, *recs[1].NumKilled)
}

func TestStreamRecordsSkipsBadRows(t *testing.T) {
	cfg := writeSource(t,
		"eventid,iyear,imonth,iday\n"+
			"197000000001,1970,7,2\n"+
			"bad\"quote,1970,1,1\n"+ // malformed CSV line
			",1970,1,1\n"+ // no event id
			"197001010002,1970,1,1\n")

	var lines []int
	stats, err := StreamRecords(context.Background(), cfg, func(line int, err error) {
		lines = append(lines, line)
	}, func(*gtd.Record) error { return nil })
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Records)
	require.EqualValues(t, 2, stats.BadRows)
	require.Len(t, lines, 2)
}

func TestStreamRecordsStopsOnCallbackError(t *testing.T) {
	cfg := writeSource(t,
		"eventid,iyear,imonth,iday\n"+
			"197000000001,1970,7,2\n"+
			"197001010002,1970,1,1\n")

	boom := errors.New("boom")
	stats, err := StreamRecords(context.Background(), cfg, nil, func(*gtd.Record) error { return boom })
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, stats.Records)
}

func TestStreamRecordsMissingFile(t *testing.T) {
	cfg := config.Pipeline{
		Source: config.Source{Kind: "file", File: &config.FileSource{Path: filepath.Join(t.TempDir(), "nope.csv")}},
	}
	_, err := StreamRecords(context.Background(), cfg, nil, func(*gtd.Record) error { return nil })
	require.Error(t, err)
}
