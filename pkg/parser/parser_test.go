package parser

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatling-report/pkg/source"
)

func lines(l ...string) string {
	return strings.Join(l, "\n") + "\n"
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Header
	}{
		{
			name:  "text 3.x",
			input: []byte(lines("RUN\tcom.example.Sim\tbasic\t1000\t \t3.9.5", "USER\tscn\tSTART\t1000\t1000")),
			want:  Header{Family: Text, Version: "3.9.5", Columns: 6},
		},
		{
			name:  "text 2.0 with tag in third column",
			input: []byte(lines("com.example.Sim\tbasic\tRUN\t1000\t \t2.0")),
			want:  Header{Family: Text, Version: "2.0", Columns: 6},
		},
		{
			name:  "text 7 columns",
			input: []byte("RUN\tcom.example.Sim\tbasic\t1000\t \t2.0\t2.3.1\r\n"),
			want:  Header{Family: Text, Version: "2.3.1", Columns: 7},
		},
		{
			name:  "binary",
			input: new(logWriter).run("3.13.5", "sim", runStart, "s").data(),
			want:  Header{Family: Binary, Version: "3.13.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(bytes.NewReader(tt.input))
			got, err := Sniff(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.input), r.Buffered(), "sniffing must not consume input")
		})
	}
}

func TestSniffUnrecognized(t *testing.T) {
	longVersion := new(logWriter).u8(0).str(strings.Repeat("1.", 60)).data()
	tests := map[string][]byte{
		"empty":            nil,
		"garbage":          []byte("hello world\n"),
		"single field":     []byte("RUN\n"),
		"not a version":    new(logWriter).run("abc", "sim", runStart).data(),
		"version too long": longVersion,
		"short binary":     {0, 0, 0},
		"truncated":        {0, 0, 0, 0, 9, '3', '.'},
		"no coder byte":    {0, 0, 0, 0, 6, '3', '.', '1', '3', '.', '1'},
		"five columns":     []byte("RUN\tcom.example.Sim\tbasic\t1000\t3.9.5\n"),
		"eight columns":    []byte("RUN\tcom.example.Sim\tbasic\t1000\t \t2.0\t2.3.1\tx\n"),
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Sniff(bufio.NewReader(bytes.NewReader(input)))
			assert.ErrorIs(t, err, ErrFormatUnrecognized)
		})
	}
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		header Header
		want   Variant
	}{
		{Header{Family: Text, Columns: 6, Version: "2.0"}, TextV2},
		{Header{Family: Text, Columns: 6, Version: "2.1.7"}, TextV2},
		{Header{Family: Text, Columns: 7, Version: "2.3.1"}, TextV2_3},
		{Header{Family: Text, Columns: 6, Version: "3.0"}, TextV3},
		{Header{Family: Text, Columns: 6, Version: "3.0.3"}, TextV3},
		{Header{Family: Text, Columns: 6, Version: "3.2"}, TextV3_2},
		{Header{Family: Text, Columns: 6, Version: "3.2.1"}, TextV3_2},
		{Header{Family: Text, Columns: 6, Version: "3.3.0"}, TextV3_2},
		{Header{Family: Text, Columns: 6, Version: "3.4.2"}, TextV3_4},
		{Header{Family: Text, Columns: 6, Version: "3.5"}, TextV3_5},
		{Header{Family: Text, Columns: 6, Version: "3.10.3"}, TextV3_5},
		{Header{Family: Binary, Version: "3.13"}, BinaryV3_13},
		{Header{Family: Binary, Version: "3.13.5"}, BinaryV3_13},
	}
	for _, tt := range tests {
		got, err := SelectVariant(tt.header)
		require.NoError(t, err, tt.header.Version)
		assert.Equal(t, tt.want, got, tt.header.Version)
	}
}

func TestSelectVariantUnsupported(t *testing.T) {
	tests := []Header{
		{Family: Text, Columns: 6, Version: "3.20"},
		{Family: Text, Columns: 6, Version: "3.1"},
		{Family: Text, Columns: 6, Version: "3.11"},
		{Family: Text, Columns: 6, Version: "30"},
		{Family: Text, Columns: 7, Version: "3.0"},
		{Family: Text, Columns: 5},
		{Family: Binary, Version: "3.14"},
		{Family: Binary, Version: "3.130"},
	}
	for _, h := range tests {
		_, err := SelectVariant(h)
		require.ErrorIs(t, err, ErrUnsupportedVersion, h.Version)

		var verr *VersionError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, h.Version, verr.Version)
		assert.Contains(t, err.Error(), h.Version)
	}
}

// Each fixture describes the same run: two users of scenario "scn", a
// successful login taking 100 ms and a failed search taking 300 ms.
var textFixtures = map[Variant]string{
	TextV2: lines(
		"com.example.Sim\tbasic\tRUN\t1000\t \t2.0",
		"scn\t1\tUSER\tSTART\t1000\t1000",
		"scn\t2\tUSER\tSTART\t1010\t1010",
		"scn\t1\tREQUEST\t\tlogin\t1100\t1150\t1160\t1200\tOK\t ",
		"scn\t2\tREQUEST\t\tsearch\t1200\t1250\t1260\t1500\tKO\tnot found",
		"scn\t1\tUSER\tEND\t1000\t1600",
	),
	TextV2_3: lines(
		"RUN\tcom.example.Sim\tbasic\t1000\t \t2.0\t2.3.1",
		"USER\tscn\t1\tSTART\t1000\t1000",
		"USER\tscn\t2\tSTART\t1010\t1010",
		"REQUEST\tscn\t1\t\tlogin\t1100\t1200\tOK\t ",
		"REQUEST\tscn\t2\t\tsearch\t1200\t1500\tKO\tnot found",
		"USER\tscn\t1\tEND\t1000\t1600",
	),
	TextV3: lines(
		"RUN\tcom.example.Sim\tbasic\t1000\t \t3.0.3",
		"USER\tscn\t1\tSTART\t1000\t1000",
		"USER\tscn\t2\tSTART\t1010\t1010",
		"REQUEST\tscn\t1\t\tlogin\t1100\t1200\tOK\t ",
		"REQUEST\tscn\t2\t\tsearch\t1200\t1500\tKO\tnot found",
		"USER\tscn\t1\tEND\t1000\t1600",
	),
	TextV3_2: lines(
		"RUN\tcom.example.Sim\tbasic\t1000\t \t3.2.1",
		"USER\tscn\t1\tSTART\t1000\t1000",
		"USER\tscn\t2\tSTART\t1010\t1010",
		"REQUEST\t1\t\tlogin\t1100\t1200\tOK\t ",
		"REQUEST\t2\t\tsearch\t1200\t1500\tKO\tnot found",
		"USER\tscn\t1\tEND\t1000\t1600",
	),
	TextV3_4: lines(
		"RUN\tcom.example.Sim\tbasic\t1000\t \t3.4.2",
		"USER\tscn\t1\tSTART\t1000\t1000",
		"USER\tscn\t2\tSTART\t1010\t1010",
		"REQUEST\t\tlogin\t1100\t1200\tOK\t ",
		"REQUEST\t\tsearch\t1200\t1500\tKO\tnot found",
		"USER\tscn\t1\tEND\t1000\t1600",
	),
	TextV3_5: lines(
		"RUN\tcom.example.Sim\tbasic\t1000\t \t3.9.5",
		"USER\tscn\tSTART\t1000",
		"USER\tscn\tSTART\t1010",
		"",
		"REQUEST\t\tlogin\t1100\t1200\tOK\t ",
		"GROUP\tcheckout\t1100\t1500\t400\tKO",
		"REQUEST\t\tsearch\t1200\t1500\tKO\tnot found",
		"ERROR\tnot found\t1500",
		"USER\tscn\tEND\t1600",
		"ASSERTION\teyJwYXRoIjp7fX0=",
	),
}

func TestParseTextVariants(t *testing.T) {
	for variant, fixture := range textFixtures {
		t.Run(variant.String(), func(t *testing.T) {
			observer := newCountingObserver()
			res, err := Parse(context.Background(), "simulation.log", bufio.NewReader(strings.NewReader(fixture)),
				Options{Logger: zerolog.Nop(), Observer: observer, ApdexThreshold: 150})
			require.NoError(t, err)

			assert.Equal(t, variant.String(), res.Variant)
			assert.Equal(t, Text, res.Header.Family)
			assert.Equal(t, int64(2), res.Counters.Request)
			assert.Equal(t, int64(3), res.Counters.User)
			assert.Equal(t, int64(1), res.Counters.Run)

			sum := res.Summary
			assert.Equal(t, "basic", sum.Simulation)
			assert.Equal(t, "scn", sum.Scenario)
			assert.Equal(t, int64(1000), sum.Start)
			assert.Equal(t, int64(500), sum.DurationMillis)
			assert.Equal(t, 2, sum.MaxUsers)
			assert.Equal(t, map[string]int{"scn": 2}, sum.UserPeaks)

			assert.Equal(t, int64(2), sum.All.Count)
			assert.Equal(t, int64(1), sum.All.ErrorCount)
			assert.Equal(t, int64(100), sum.All.Min)
			assert.Equal(t, int64(300), sum.All.Max)
			require.NotNil(t, sum.All.Apdex)
			assert.InDelta(t, 0.75, *sum.All.Apdex, 1e-9)

			require.Len(t, sum.Requests, 2)
			assert.Equal(t, "login", sum.Requests[0].Request)
			assert.Equal(t, "search", sum.Requests[1].Request)
			assert.Equal(t, "scn", sum.Requests[1].Scenario)
			assert.Equal(t, 2, sum.Requests[1].MaxUsers)

			assert.Equal(t, 1, observer.files)
			assert.NoError(t, observer.lastErr)
		})
	}
}

func TestParseTextMalformed(t *testing.T) {
	tests := map[string]string{
		"bad timestamp": lines(
			"RUN\tcom.example.Sim\tbasic\t1000\t \t3.9.5",
			"REQUEST\t\tlogin\tnow\t1200\tOK\t ",
		),
		"too few fields": lines(
			"RUN\tcom.example.Sim\tbasic\t1000\t \t3.9.5",
			"REQUEST\tlogin",
		),
		"missing request fields": lines(
			"RUN\tcom.example.Sim\tbasic\t1000\t \t3.9.5",
			"REQUEST\t\tlogin\t1100",
		),
	}

	for name, fixture := range tests {
		t.Run(name, func(t *testing.T) {
			observer := newCountingObserver()
			res, err := Parse(context.Background(), "simulation.log", bufio.NewReader(strings.NewReader(fixture)),
				Options{Logger: zerolog.Nop(), Observer: observer})
			require.ErrorIs(t, err, ErrMalformedRecord)
			assert.Nil(t, res)

			var lerr *LineError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, 2, lerr.Line)
			assert.Error(t, observer.lastErr)
		})
	}
}

func TestParseTextScenarioByUser(t *testing.T) {
	fixture := lines(
		"RUN\tcom.example.Sim\tbasic\t1000\t \t3.3.0",
		"USER\tbrowse\t1\tSTART\t1000\t1000",
		"USER\tsearch\t2\tSTART\t1000\t1000",
		"USER\tsearch\t3\tSTART\t1000\t1000",
		"REQUEST\t1\t\thome\t1100\t1200\tOK\t ",
		"REQUEST\t3\t\tquery\t1100\t1200\tOK\t ",
		"REQUEST\t9\t\torphan\t1100\t1200\tOK\t ",
	)
	res, err := Parse(context.Background(), "simulation.log", bufio.NewReader(strings.NewReader(fixture)),
		Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	sum := res.Summary
	assert.Equal(t, 3, sum.MaxUsers)

	home, _ := sum.Request("home")
	assert.Equal(t, "browse", home.Scenario)
	assert.Equal(t, 1, home.MaxUsers)

	query, _ := sum.Request("query")
	assert.Equal(t, "search", query.Scenario)
	assert.Equal(t, 2, query.MaxUsers)

	orphan, _ := sum.Request("orphan")
	assert.Equal(t, "browse", orphan.Scenario)
}

func TestParseBinary(t *testing.T) {
	w := new(logWriter).run("3.13.5", "computerdatabase.BasicSimulation", runStart, "browse").
		user(0, true, 0).
		request(1, "home", 10, 110, 1).
		request(-1, "", 20, 220, 1).
		request(2, "search", 30, 60, 0).
		user(0, false, 300)

	observer := newCountingObserver()
	res, err := Parse(context.Background(), "simulation.log", bufio.NewReader(bytes.NewReader(w.data())),
		Options{Logger: zerolog.Nop(), Observer: observer})
	require.NoError(t, err)

	assert.Equal(t, Header{Family: Binary, Version: "3.13.5"}, res.Header)
	assert.Equal(t, BinaryV3_13.String(), res.Variant)
	assert.Equal(t, "computerdatabase.BasicSimulation", res.Summary.Simulation)
	assert.Equal(t, int64(3), res.Summary.All.Count)
	assert.Equal(t, int64(220), res.Summary.DurationMillis)
	assert.Equal(t, 1, res.Summary.MaxUsers)
	assert.Equal(t, 1, observer.files)
	assert.Equal(t, 3, observer.decoded[RequestType])

	require.Len(t, res.Summary.Requests, 2)
	assert.Equal(t, "search", res.Summary.Requests[0].Request)
	assert.Equal(t, "home", res.Summary.Requests[1].Request)
}

func TestParseFileGzip(t *testing.T) {
	w := new(logWriter).run("3.13.5", "sim.Gzip", runStart, "browse").
		user(0, true, 0).
		request(1, "home", 10, 110, 1)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(w.data())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "simulation.log.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	res, err := ParseFile(context.Background(), source.NewOpener(nil, zerolog.Nop()), path, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "sim.Gzip", res.Summary.Simulation)
	assert.Equal(t, path, res.Summary.FilePath)
	assert.Equal(t, int64(1), res.Summary.All.Count)
}

func TestParseUnrecognized(t *testing.T) {
	observer := newCountingObserver()
	_, err := Parse(context.Background(), "junk.log", bufio.NewReader(strings.NewReader("not a simulation log\n")),
		Options{Logger: zerolog.Nop(), Observer: observer})
	assert.ErrorIs(t, err, ErrFormatUnrecognized)
	assert.Equal(t, 1, observer.files)

	_, err = Parse(context.Background(), "old.log", bufio.NewReader(strings.NewReader(lines("RUN\tsim\tbasic\t1000\t \t1.5"))),
		Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
