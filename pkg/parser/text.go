package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"gatling-report/pkg/stats"
)

const (
	tagRun     = "RUN"
	tagUser    = "USER"
	tagRequest = "REQUEST"
	tagGroup   = "GROUP"
	tagError   = "ERROR"

	tagAssertion = "ASSERTION"

	userStart = "START"
	statusOK  = "OK"
)

const (
	// none marks a field absent from a layout
	none = -1
	// ctxCheckInterval is the number of lines between cancellation checks
	ctxCheckInterval = 1024
)

// How a text layout resolves the scenario of a REQUEST line.
type scenarioSource int

const (
	scenarioField scenarioSource = iota
	scenarioByUser
	scenarioFirstSeen
)

// textLayout gives 0-based field positions of one text generation
type textLayout struct {
	tag int

	runName  int
	runStart int

	userScenario int
	userID       int
	userKind     int

	requestScenario scenarioSource
	requestField    int // scenario field or user id field
	requestName     int
	requestStart    int
	requestEnd      int
	requestStatus   int
}

var textLayouts = map[Variant]textLayout{
	TextV2: {
		tag: 2, runName: 1, runStart: 3,
		userScenario: 0, userID: 1, userKind: 3,
		requestScenario: scenarioField, requestField: 0,
		requestName: 4, requestStart: 5, requestEnd: 8, requestStatus: 9,
	},
	TextV2_3: {
		tag: 0, runName: 2, runStart: 3,
		userScenario: 1, userID: 2, userKind: 3,
		requestScenario: scenarioField, requestField: 1,
		requestName: 4, requestStart: 5, requestEnd: 6, requestStatus: 7,
	},
	TextV3: {
		tag: 0, runName: 2, runStart: 3,
		userScenario: 1, userID: 2, userKind: 3,
		requestScenario: scenarioField, requestField: 1,
		requestName: 4, requestStart: 5, requestEnd: 6, requestStatus: 7,
	},
	TextV3_2: {
		tag: 0, runName: 2, runStart: 3,
		userScenario: 1, userID: 2, userKind: 3,
		requestScenario: scenarioByUser, requestField: 1,
		requestName: 3, requestStart: 4, requestEnd: 5, requestStatus: 6,
	},
	TextV3_4: {
		tag: 0, runName: 2, runStart: 3,
		userScenario: 1, userID: 2, userKind: 3,
		requestScenario: scenarioFirstSeen, requestField: none,
		requestName: 2, requestStart: 3, requestEnd: 4, requestStatus: 5,
	},
	TextV3_5: {
		tag: 0, runName: 2, runStart: 3,
		userScenario: 1, userID: none, userKind: 2,
		requestScenario: scenarioFirstSeen, requestField: none,
		requestName: 2, requestStart: 3, requestEnd: 4, requestStatus: 5,
	},
}

func maxIndex(idx ...int) int {
	m := 0
	for _, i := range idx {
		if i > m {
			m = i
		}
	}
	return m
}

// textSession holds per-file state of one text parse
type textSession struct {
	layout   textLayout
	sim      *stats.Simulation
	logger   zerolog.Logger
	observer Observer

	users         map[string]string
	firstScenario string
	counters      Counters
}

func parseText(ctx context.Context, r io.Reader, v Variant, sim *stats.Simulation, opts Options) (Counters, error) {
	layout, ok := textLayouts[v]
	if !ok {
		return Counters{}, fmt.Errorf("%w: no text layout for %s", ErrUnsupportedVersion, v)
	}

	s := &textSession{
		layout:   layout,
		sim:      sim,
		logger:   opts.Logger,
		observer: opts.observer(),
		users:    make(map[string]string),
	}

	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	for lineNo := 1; ; lineNo++ {
		if lineNo%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return s.counters, err
			}
		}

		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return s.counters, fmt.Errorf("read line %d: %w", lineNo, err)
		}
		if len(line) > 0 {
			if perr := s.line(line); perr != nil {
				return s.counters, &LineError{Line: lineNo, Err: perr}
			}
		}
		if errors.Is(err, io.EOF) {
			return s.counters, nil
		}
	}
}

func (s *textSession) line(line string) error {
	if line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	fields := splitLine(line)
	if len(fields) == 1 && fields[0] == "" {
		return nil
	}
	// assertion lines carry a single encoded payload
	if fields[0] == tagAssertion {
		return nil
	}
	if len(fields) < 3 {
		return fmt.Errorf("%w: %d fields", ErrMalformedRecord, len(fields))
	}
	if s.layout.tag >= len(fields) {
		return fmt.Errorf("%w: no record tag", ErrMalformedRecord)
	}

	l := s.layout
	switch fields[l.tag] {
	case tagRun:
		if err := need(fields, l.runName, l.runStart); err != nil {
			return err
		}
		start, err := timestamp(fields[l.runStart])
		if err != nil {
			return err
		}
		s.sim.SetSimulationName(fields[l.runName])
		s.sim.SetStart(start)
		s.record(RunType)
		s.logger.Debug().Str("simulation", fields[l.runName]).Int64("start", start).Msg("run record")

	case tagUser:
		if err := need(fields, l.userScenario, l.userID, l.userKind); err != nil {
			return err
		}
		scenario := fields[l.userScenario]
		if fields[l.userKind] == userStart {
			if l.userID != none {
				s.users[fields[l.userID]] = scenario
			}
			if s.firstScenario == "" {
				s.firstScenario = scenario
				s.sim.SetScenarioName(scenario)
			}
			s.sim.AddUserStart(scenario)
		} else {
			s.sim.AddUserEnd(scenario)
		}
		s.record(UserType)

	case tagRequest:
		if err := need(fields, l.requestField, l.requestName, l.requestStart, l.requestEnd, l.requestStatus); err != nil {
			return err
		}
		start, err := timestamp(fields[l.requestStart])
		if err != nil {
			return err
		}
		end, err := timestamp(fields[l.requestEnd])
		if err != nil {
			return err
		}
		success := fields[l.requestStatus] == statusOK
		if err := s.sim.AddRequest(s.requestScenario(fields), fields[l.requestName], start, end, success); err != nil {
			return err
		}
		s.record(RequestType)

	case tagGroup:
		s.record(GroupType)
	case tagError:
		s.record(ErrorType)
	}
	return nil
}

func (s *textSession) requestScenario(fields []string) string {
	switch s.layout.requestScenario {
	case scenarioField:
		return fields[s.layout.requestField]
	case scenarioByUser:
		if scenario, ok := s.users[fields[s.layout.requestField]]; ok {
			return scenario
		}
	}
	return s.firstScenario
}

func (s *textSession) record(t RecordType) {
	s.counters.add(t)
	s.observer.RecordDecoded(t)
}

func need(fields []string, idx ...int) error {
	if m := maxIndex(idx...); m >= len(fields) {
		return fmt.Errorf("%w: %d fields, want at least %d", ErrMalformedRecord, len(fields), m+1)
	}
	return nil
}

func timestamp(field string) (int64, error) {
	v, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q", ErrMalformedRecord, field)
	}
	return v, nil
}
