// Package dumpapp decodes a capture of what a display server sent to one
// client, message by message, using the same registry a live connection
// uses to classify and build events and errors.
package dumpapp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fr3shw3b/xwire/pkg/config"
	"github.com/fr3shw3b/xwire/pkg/ext/bigreq"
	"github.com/fr3shw3b/xwire/pkg/ext/dri2"
	"github.com/fr3shw3b/xwire/pkg/ext/xv"
	"github.com/fr3shw3b/xwire/pkg/registry"
	"github.com/fr3shw3b/xwire/pkg/wire"
	"github.com/fr3shw3b/xwire/pkg/xproto"
	"github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

// catalog holds the extensions the tool can decode, by lower-cased name.
var catalog = map[string]*registry.Extension{
	strings.ToLower(bigreq.Extension.Name): bigreq.Extension,
	strings.ToLower(dri2.Extension.Name):   dri2.Extension,
	strings.ToLower(xv.Extension.Name):     xv.Extension,
}

var ErrUnknownExtension = errors.New("dump: extension has no decoders")

type Params struct {
	// Path is the capture file, "-" for standard input.
	Path string
	// Extensions are NAME=major:firstEvent:firstError assignments taken
	// from the QueryExtension replies of the captured session.
	Extensions []string
	BigEndian  bool
}

// Result counts decoded messages by classification.
type Result struct {
	Messages int
	ByKind   map[registry.Kind]int
	// Undecodable messages were framed correctly but no decoder accepted
	// them.
	Undecodable int
}

func Run(params *Params) error {
	err := godotenv.Load(".env.dump")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.LoadForDump()
	if err != nil {
		log.Fatal("Failed to load configuration for dump: ", err)
	}

	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetFormatter(customFormatter)
	logger.SetOutput(os.Stderr)
	logLevel, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	in := io.Reader(os.Stdin)
	if params.Path != "-" {
		f, err := os.Open(params.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var order binary.ByteOrder = binary.LittleEndian
	if params.BigEndian {
		order = binary.BigEndian
	}
	reg, err := NewRegistry(params.Extensions, logger)
	if err != nil {
		return err
	}

	result, err := Dump(in, os.Stdout, order, reg, conf.MaxMessageBytes, logger)
	printResult(os.Stdout, result)
	return err
}

// NewRegistry builds a registry with the given extension assignments
// installed.
func NewRegistry(assignments []string, logger *logrus.Logger) (*registry.Registry, error) {
	reg := registry.New(xproto.CoreTable(), logger)
	for _, assignment := range assignments {
		name, codes, ok := strings.Cut(assignment, "=")
		if !ok {
			return nil, fmt.Errorf("extension %q: expected NAME=major:firstEvent:firstError", assignment)
		}
		ext, known := catalog[strings.ToLower(name)]
		if !known {
			return nil, fmt.Errorf("extension %q: %w", name, ErrUnknownExtension)
		}
		parts := strings.Split(codes, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("extension %q: expected three codes, got %q", name, codes)
		}
		var values [3]uint8
		for i, part := range parts {
			v, err := strconv.ParseUint(part, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("extension %q: %w", name, err)
			}
			values[i] = uint8(v)
		}
		reg.Install(ext, values[0], values[1], values[2])
		logger.Debug("installed ", ext.Name, " major=", values[0], " first_event=", values[1], " first_error=", values[2])
	}
	return reg, nil
}

// Dump writes one line per message in r until the capture ends. A capture
// cut short mid-message ends the dump with wire.ErrMalformed; messages
// that are framed correctly but cannot be decoded are reported and
// skipped.
func Dump(r io.Reader, w io.Writer, order binary.ByteOrder, reg *registry.Registry, maxMessageBytes int, logger *logrus.Logger) (Result, error) {
	result := Result{ByKind: map[registry.Kind]int{}}
	for {
		msg, err := wire.ReadMessage(r, order, maxMessageBytes)
		if err == io.EOF {
			return result, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return result, fmt.Errorf("%w: capture ends mid-message after %d messages", wire.ErrMalformed, result.Messages)
		}
		if err != nil {
			return result, err
		}
		result.Messages++

		c := reg.Classify(msg[0], msg[1])
		result.ByKind[c.Kind]++
		line, err := describe(order, reg, c, msg)
		if err != nil {
			logger.Debug("message ", result.Messages, ": ", err)
			result.Undecodable++
			line = fmt.Sprintf("undecodable (%v): % x", err, msg)
		}
		fmt.Fprintf(w, "#%d %s %s\n", result.Messages, c.Kind, line)
	}
}

// describe renders one message. Without a connection there is nothing to
// widen sequence numbers against, so the wire value is used as is.
func describe(order binary.ByteOrder, reg *registry.Registry, c registry.Classification, msg []byte) (string, error) {
	switch c.Kind {
	case registry.CoreReply:
		// A reply can only be decoded by whoever knows what was asked.
		return fmt.Sprintf("seq=%d data=%d length=%d", order.Uint16(msg[2:4]), msg[1], len(msg)), nil
	case registry.CoreError, registry.ExtensionError:
		xerr, err := reg.BuildError(order, msg)
		if err != nil {
			return "", err
		}
		d := xerr.Details()
		d.Seq = uint64(d.Sequence)
		return fmt.Sprintf("%T %v", xerr, xerr), nil
	}
	ev, err := reg.BuildEvent(order, msg)
	if err != nil {
		return "", err
	}
	h := ev.Header()
	h.Seq = uint64(h.Sequence)
	return fmt.Sprintf("%T %+v", ev, ev), nil
}

func printResult(w io.Writer, result Result) {
	fmt.Fprint(w, "\nResult\n____________\n\n")
	fmt.Fprintf(w, "Messages: %d\n", result.Messages)
	for _, kind := range []registry.Kind{
		registry.CoreReply,
		registry.CoreEvent,
		registry.CoreError,
		registry.ExtensionEvent,
		registry.ExtensionError,
		registry.UnknownExtension,
	} {
		if n := result.ByKind[kind]; n > 0 {
			fmt.Fprintf(w, "%s: %d\n", kind, n)
		}
	}
	if result.Undecodable > 0 {
		fmt.Fprintf(w, "Undecodable: %d\n", result.Undecodable)
	}
}
