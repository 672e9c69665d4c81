package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

var (
	// ErrHeartbeat is returned by Decode for a message holding only EOLs.
	ErrHeartbeat = errors.New("stomp: heart-beat")
	// ErrMalformed wraps every decoding failure.
	ErrMalformed = errors.New("stomp: malformed frame")
)

// rawHeaders reports whether header escaping is disabled for command.
// STOMP 1.2 leaves CONNECT and CONNECTED unescaped for 1.0 compatibility.
func rawHeaders(command string) bool {
	return command == CmdConnect || command == CmdConnected
}

// Encode serialises f into one message. A content-length header is set on
// f for a non-empty body when the caller did not set one.
func Encode(f *Frame) ([]byte, error) {
	if f.Header == nil {
		f.Header = frame.NewHeader()
	}
	if len(f.Body) > 0 {
		if _, ok := f.Header.Contains(HdrContentLength); !ok {
			f.Header.Set(HdrContentLength, strconv.Itoa(len(f.Body)))
		}
	}

	var b bytes.Buffer
	if rawHeaders(f.Command) {
		encodeRaw(&b, f)
		return b.Bytes(), nil
	}
	if err := frame.NewWriter(&b).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Command, err)
	}
	return b.Bytes(), nil
}

func encodeRaw(b *bytes.Buffer, f *Frame) {
	b.WriteString(f.Command)
	b.WriteByte('\n')
	for i := 0; i < f.Header.Len(); i++ {
		k, v := f.Header.GetAt(i)
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
}

// Decode parses the single frame carried by data. Anything after the first
// frame's NUL is ignored.
func Decode(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, ErrHeartbeat
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f == nil {
		return nil, ErrHeartbeat
	}
	if len(f.Body) == 0 {
		f.Body = nil
	}
	return f, nil
}
