package parser

import (
	"bytes"
	"encoding/binary"
	"io"
)

// logWriter encodes binary simulation log records
type logWriter struct {
	buf bytes.Buffer
}

func (w *logWriter) u8(v byte) *logWriter {
	w.buf.WriteByte(v)
	return w
}

func (w *logWriter) i32(v int32) *logWriter {
	_ = binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

func (w *logWriter) i64(v int64) *logWriter {
	_ = binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

func (w *logWriter) str(s string) *logWriter {
	w.i32(int32(len(s)))
	if len(s) > 0 {
		w.buf.WriteString(s)
		w.u8(0)
	}
	return w
}

// cached writes a new slot when index >= 0, a back reference otherwise
func (w *logWriter) cached(index int32, s string) *logWriter {
	w.i32(index)
	if index >= 0 {
		w.str(s)
	}
	return w
}

func (w *logWriter) flag(v bool) *logWriter {
	if v {
		return w.u8(1)
	}
	return w.u8(0)
}

func (w *logWriter) run(version, simulation string, start int64, scenarios ...string) *logWriter {
	w.u8(byte(RunType)).str(version).str(simulation).i64(start).str("description")
	w.i32(int32(len(scenarios)))
	for _, s := range scenarios {
		w.str(s)
	}
	w.i32(1).i32(3)
	w.buf.Write([]byte{1, 2, 3})
	return w
}

func (w *logWriter) user(scenario int32, start bool, ts int32) *logWriter {
	return w.u8(byte(UserType)).i32(scenario).flag(start).i32(ts)
}

// request writes a request without groups. nameIndex follows cached.
func (w *logWriter) request(nameIndex int32, name string, start, end int32, success byte) *logWriter {
	w.u8(byte(RequestType)).i32(0).cached(nameIndex, name).i32(start).i32(end).u8(success)
	return w.cached(0, "")
}

func (w *logWriter) group(start, end int32, groups ...string) *logWriter {
	w.u8(byte(GroupType)).i32(int32(len(groups)))
	for i, g := range groups {
		w.cached(int32(100+i), g)
	}
	return w.i32(start).i32(end).i32(end - start).flag(true)
}

func (w *logWriter) errorMessage(index int32, msg string, ts int32) *logWriter {
	return w.u8(byte(ErrorType)).cached(index, msg).i32(ts)
}

func (w *logWriter) data() []byte {
	return bytes.Clone(w.buf.Bytes())
}

// chunkReader returns at most one chunk per Read
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.chunks) > 0 && len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	return n, nil
}
