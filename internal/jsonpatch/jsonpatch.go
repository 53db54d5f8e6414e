package jsonpatch

import (
	"encoding/json"
	"fmt"
	"strings"

	jp "github.com/evanphx/json-patch/v5"
)

type PatchError struct {
	msg string
}

func (p *PatchError) Error() string {
	return p.msg
}

type Patch = jp.Patch

// Op is a single RFC 6902 operation before encoding.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func Add(path string, value any) Op {
	return Op{Op: "add", Path: path, Value: value}
}

func Remove(path string) Op {
	return Op{Op: "remove", Path: path}
}

// Pointer builds a JSON pointer from raw (unescaped) reference tokens.
func Pointer(tokens ...string) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteByte('/')
		sb.WriteString(strings.NewReplacer("~", "~0", "/", "~1").Replace(t))
	}
	return sb.String()
}

// New encodes ops into a patch.
func New(ops ...Op) (Patch, error) {
	bs, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	return jp.DecodePatch(bs)
}

var opts = jp.ApplyOptions{
	EnsurePathExistsOnAdd:    true, // will create paths
	AllowMissingPathOnRemove: true,
}

func Apply(p Patch, doc json.RawMessage) (json.RawMessage, error) {
	// We only support add/remove/replace
	for _, op := range p {
		switch op.Kind() {
		case "replace", "remove", "add": // OK
		default:
			return nil, &PatchError{fmt.Sprintf("unsupported patch operation %q, must be one of \"replace\", \"add\", \"remove\"", op.Kind())}
		}
	}
	return p.ApplyWithOptions(doc, &opts)
}

// ApplyOps is New followed by Apply.
func ApplyOps(doc json.RawMessage, ops ...Op) (json.RawMessage, error) {
	p, err := New(ops...)
	if err != nil {
		return nil, err
	}
	return Apply(p, doc)
}
