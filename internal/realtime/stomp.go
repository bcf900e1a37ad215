package realtime

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// STOMPのコマンド。
const (
	CommandConnect     = "CONNECT"
	CommandConnected   = "CONNECTED"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandDisconnect  = "DISCONNECT"
	CommandMessage     = "MESSAGE"
	CommandReceipt     = "RECEIPT"
	CommandError       = "ERROR"
)

// ErrMalformedFrame はSTOMPフレームを解釈できないことを示す。
var ErrMalformedFrame = errors.New("malformed STOMP frame")

// Frame はSTOMP 1.2のフレーム。
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame はヘッダーをkey, valueの順に並べてFrameを生成する。
func NewFrame(command string, kv ...string) Frame {
	f := Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Header はヘッダーの値を返す。
func (f Frame) Header(name string) string {
	return f.Headers[name]
}

// Encode はフレームをワイヤ形式にする。ヘッダーは名前順に出力する。
// CONNECTとCONNECTED以外ではヘッダーの値をエスケープする。
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	names := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		names = append(names, k)
	}
	sort.Strings(names)

	escape := f.Command != CommandConnect && f.Command != CommandConnected
	for _, k := range names {
		v := f.Headers[k]
		if escape {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		if _, ok := f.Headers["content-length"]; !ok {
			buf.WriteString("content-length:")
			buf.WriteString(strconv.Itoa(len(f.Body)))
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Decode はデータに含まれるフレームをすべて取り出す。
// フレーム間の改行(ハートビート)は読み飛ばす。
func Decode(data []byte) ([]Frame, error) {
	var frames []Frame
	for {
		data = bytes.TrimLeft(data, "\r\n")
		if len(data) == 0 {
			return frames, nil
		}
		f, rest, err := decodeOne(data)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		data = rest
	}
}

func decodeOne(data []byte) (Frame, []byte, error) {
	headerEnd := bytes.Index(data, []byte("\n\n"))
	sepLen := 2
	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf >= 0 && (headerEnd < 0 || crlf < headerEnd) {
		headerEnd, sepLen = crlf, 4
	}
	if headerEnd < 0 {
		// ヘッダーなしのフレーム
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 && nl+1 < len(data) && data[nl+1] == 0 {
			headerEnd, sepLen = nl, 1
		} else {
			return Frame{}, nil, fmt.Errorf("%w: missing header terminator", ErrMalformedFrame)
		}
	}

	lines := strings.Split(strings.ReplaceAll(string(data[:headerEnd]), "\r\n", "\n"), "\n")
	f := Frame{Command: lines[0], Headers: make(map[string]string)}
	if f.Command == "" {
		return Frame{}, nil, fmt.Errorf("%w: empty command", ErrMalformedFrame)
	}
	unescape := f.Command != CommandConnect && f.Command != CommandConnected
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, nil, fmt.Errorf("%w: header without colon %q", ErrMalformedFrame, line)
		}
		if unescape {
			k, v = unescapeHeader(k), unescapeHeader(v)
		}
		// 同じヘッダーが繰り返された場合は最初の値を使う
		if _, exists := f.Headers[k]; !exists {
			f.Headers[k] = v
		}
	}

	body := data[headerEnd+sepLen:]
	if cl, ok := f.Headers["content-length"]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n >= len(body) || body[n] != 0 {
			return Frame{}, nil, fmt.Errorf("%w: bad content-length %q", ErrMalformedFrame, cl)
		}
		f.Body = body[:n]
		return f, body[n+1:], nil
	}
	nul := bytes.IndexByte(body, 0)
	if nul < 0 {
		return Frame{}, nil, fmt.Errorf("%w: missing NUL terminator", ErrMalformedFrame)
	}
	f.Body = body[:nul]
	return f, body[nul+1:], nil
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\r", "\r", "\\n", "\n", "\\c", ":")
)

func escapeHeader(s string) string   { return headerEscaper.Replace(s) }
func unescapeHeader(s string) string { return headerUnescaper.Replace(s) }
