package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"tools.zach/dev/seer/internal/metrics"
)

// ///////////////////////////////////////////////
// Batch Format
// ///////////////////////////////////////////////

// Batch is the injected message file:
//
//	{"messages": [{"numberoflines": 2,
//	               "lines": [{"key": "READY", "value": "1"}, {"key": "MAINPID", "value": 42}],
//	               "sleepinseconds": 0}]}
type Batch struct {
	Messages []Message `json:"messages"`
}

// Message is one datagram of an injected batch.
type Message struct {
	NumberOfLines  int    `json:"numberoflines"`
	Lines          []Line `json:"lines"`
	SleepInSeconds int    `json:"sleepinseconds"`
}

// Line is one KEY=value line.
type Line struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Value is a line value. The file may carry it as a JSON string, number or
// boolean; it is always sent as text.
type Value string

// UnmarshalJSON accepts strings, numbers and booleans.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	case 'n':
		return errors.New("value must not be null")
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Value(strconv.FormatBool(b))
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("value must be a string, number or boolean: %w", err)
		}
		*v = Value(n.String())
		return nil
	}
}

// Encode joins the message's lines with newlines, without a trailing newline.
func (m Message) Encode() string {
	parts := make([]string, len(m.Lines))
	for i, l := range m.Lines {
		parts[i] = l.Key + "=" + string(l.Value)
	}
	return strings.Join(parts, "\n")
}

// LoadBatch reads and validates an injected message file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessages, err)
	}
	var b Batch
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessages, path, err)
	}
	for i, m := range b.Messages {
		if m.NumberOfLines != len(m.Lines) {
			return nil, fmt.Errorf("%w: message %d declares %d lines but has %d",
				ErrMalformedMessages, i+1, m.NumberOfLines, len(m.Lines))
		}
		if m.SleepInSeconds < 0 {
			return nil, fmt.Errorf("%w: message %d has negative sleepinseconds", ErrMalformedMessages, i+1)
		}
	}
	return &b, nil
}

// ///////////////////////////////////////////////
// Sending
// ///////////////////////////////////////////////

// SendInjectedMessages sends the pending batch over one connection, sleeping
// after each message for its configured delay, then deletes the file. It
// returns the last READY flag and the last MAINPID or INJECTED_PID seen. A
// file that cannot be parsed is an error; an unreachable socket is logged and
// yields (false, 0, nil) with the file left in place.
func (n *Notifier) SendInjectedMessages() (ready bool, pid int, err error) {
	slog.Debug("loading injected messages", "path", n.opts.MessagesPath)
	batch, err := LoadBatch(n.opts.MessagesPath)
	if err != nil {
		return false, 0, err
	}

	conn, err := n.connect()
	if err != nil {
		slog.Error("failed to connect to sidecar for injected messages", "socket", n.opts.SocketPath, "error", err)
		metrics.RecordNotification(metrics.KindInjected, false)
		return false, 0, nil
	}

	for i, m := range batch.Messages {
		payload := m.Encode()
		slog.Debug("sending injected message", "number", i+1, "lines", m.NumberOfLines, "message", strconv.Quote(payload))
		if _, werr := conn.Write([]byte(payload)); werr != nil {
			slog.Error("failed to send injected message", "number", i+1, "error", werr)
			metrics.RecordNotification(metrics.KindInjected, false)
			break
		}
		metrics.RecordNotification(metrics.KindInjected, true)
		for _, l := range m.Lines {
			switch l.Key {
			case KeyReady:
				ready = parseReady(string(l.Value))
			case KeyMainPID, KeyInjectedPID:
				if p, perr := strconv.Atoi(string(l.Value)); perr == nil {
					pid = p
				} else {
					slog.Warn("ignoring non-numeric pid in injected message", "key", l.Key, "value", l.Value)
				}
			}
		}

		if m.SleepInSeconds > 0 {
			time.Sleep(time.Duration(m.SleepInSeconds) * time.Second)
		}
	}

	if cerr := conn.Close(); cerr != nil {
		slog.Debug("closing injection connection", "error", cerr)
	}
	if rerr := os.Remove(n.opts.MessagesPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		slog.Warn("failed to remove injected messages file", "path", n.opts.MessagesPath, "error", rerr)
	} else {
		slog.Debug("removed injected messages file", "path", n.opts.MessagesPath)
	}

	return ready, pid, nil
}

// parseReady interprets a READY value: "1" or any case of "true" is ready.
func parseReady(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}
