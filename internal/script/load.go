package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cosim/internal/payload"
)

// Format selects the document syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatFor picks the format from a file extension. Unknown extensions
// are read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".cue":
		return FormatCUE
	default:
		return FormatJSON
	}
}

// Load reads and parses the script at path.
func Load(path string) ([]Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return parse(path, data, FormatFor(path))
}

// Parse parses a script document held in memory.
func Parse(data []byte, format Format) ([]Command, error) {
	return parse("", data, format)
}

func parse(path string, data []byte, format Format) ([]Command, error) {
	var (
		doc any
		err error
	)
	switch format {
	case FormatJSON:
		doc, err = decodeJSON(data)
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatCUE:
		doc, err = decodeCUE(path, data)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Index: -1, Message: fmt.Sprintf("invalid %s document", format), Err: err}
	}
	return fromDocument(path, doc)
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after document")
	}
	return doc, nil
}

func decodeYAML(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// decodeCUE evaluates a CUE file, requires it to be fully concrete, and
// exports it through JSON so CUE numbers follow the JSON rules.
func decodeCUE(path string, data []byte) (any, error) {
	ctx := cuecontext.New()
	opts := []cue.BuildOption{}
	if path != "" {
		opts = append(opts, cue.Filename(path))
	}
	v := ctx.CompileBytes(data, opts...)
	if err := v.Err(); err != nil {
		return nil, errors.New(cueerrors.Details(err, nil))
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, errors.New(cueerrors.Details(err, nil))
	}
	js, err := v.MarshalJSON()
	if err != nil {
		return nil, errors.New(cueerrors.Details(err, nil))
	}
	return decodeJSON(js)
}

// Decode converts already-decoded data (a commands array or a document
// holding one) into commands. Used for scripts embedded in other files.
func Decode(doc any) ([]Command, error) {
	return fromDocument("", doc)
}

var commandFields = map[string]bool{
	"type":       true,
	"peripheral": true,
	"event":      true,
	"payload":    true,
}

// fromDocument converts generic decoded data into commands, rejecting
// unknown fields so typos surface at load time.
func fromDocument(path string, doc any) ([]Command, error) {
	docErr := func(msg string) error {
		return &ParseError{Path: path, Index: -1, Message: msg}
	}

	var list []any
	switch d := doc.(type) {
	case []any:
		list = d
	case map[string]any:
		for k := range d {
			if k != "commands" {
				return nil, docErr(fmt.Sprintf("unknown field %q", k))
			}
		}
		raw, ok := d["commands"]
		if !ok {
			return nil, docErr(`missing "commands" array`)
		}
		if raw == nil {
			return []Command{}, nil
		}
		list, ok = raw.([]any)
		if !ok {
			return nil, docErr(`"commands" must be an array`)
		}
	case nil:
		return nil, docErr("empty document")
	default:
		return nil, docErr(fmt.Sprintf("document must be an object or array, got %T", doc))
	}

	cmds := make([]Command, 0, len(list))
	for i, item := range list {
		cmd, err := decodeCommand(item)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Path, pe.Index = path, i
				return nil, pe
			}
			return nil, &ParseError{Path: path, Index: i, Message: "invalid command", Err: err}
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func decodeCommand(item any) (Command, error) {
	m, ok := asMap(item)
	if !ok {
		return Command{}, &ParseError{Message: fmt.Sprintf("command must be an object, got %T", item)}
	}

	var unknown []string
	for k := range m {
		if !commandFields[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Command{}, &ParseError{Message: fmt.Sprintf("unknown fields %q", unknown)}
	}

	typ, _ := m["type"].(string)
	kind, ok := ParseKind(typ)
	if !ok {
		return Command{}, &ParseError{Message: fmt.Sprintf("invalid 'type' value %v for command", m["type"])}
	}
	periph, _ := m["peripheral"].(string)
	if periph == "" {
		return Command{}, &ParseError{Message: "peripheral is required"}
	}
	event, _ := m["event"].(string)
	if event == "" {
		return Command{}, &ParseError{Message: "event is required"}
	}
	p, err := payload.FromAny(m["payload"])
	if err != nil {
		return Command{}, &ParseError{Message: "invalid payload", Err: err}
	}

	return Command{Kind: kind, Peripheral: periph, Event: event, Payload: p}, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
