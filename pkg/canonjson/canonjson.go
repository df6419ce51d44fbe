// Package canonjson produces the canonical JSON form used for webhook
// signatures: object keys sorted at every depth, no insignificant whitespace,
// forward slashes and non-ASCII characters written as-is.
//
// Numbers are kept as the literal bytes the producer sent so that re-encoding
// never changes their textual form.
package canonjson

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Member is a single key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object with its members in a defined order.
type Object []Member

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Decode parses b into a tree of Object, []any, string, jx.Num, bool and nil.
// Duplicate keys keep the last value.
func Decode(b []byte) (any, error) {
	if !jx.Valid(b) {
		return nil, errors.New("invalid JSON")
	}
	d := jx.DecodeBytes(b)
	v, err := decodeValue(d)
	if err != nil {
		return nil, err
	}
	if d.Next() != jx.Invalid {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(d *jx.Decoder) (any, error) {
	switch tt := d.Next(); tt {
	case jx.Object:
		var obj Object
		err := d.Obj(func(d *jx.Decoder, key string) error {
			v, err := decodeValue(d)
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			if i := slices.IndexFunc(obj, func(m Member) bool { return m.Key == key }); i >= 0 {
				obj[i].Value = v
				return nil
			}
			obj = append(obj, Member{Key: key, Value: v})
			return nil
		})
		if err != nil {
			return nil, err
		}
		if obj == nil {
			obj = Object{}
		}
		return obj, nil
	case jx.Array:
		arr := []any{}
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := decodeValue(d)
			if err != nil {
				return err
			}
			arr = append(arr, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return arr, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(s) {
			return nil, errors.New("invalid UTF-8 in string")
		}
		return s, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		return slices.Clone(n), nil
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return nil, d.Null()
	default:
		return nil, errors.Errorf("unexpected token %s", tt)
	}
}

// SortKeys returns a copy of v with the members of every object, at every
// nesting depth, ordered by key. Array element order is preserved.
func SortKeys(v any) any {
	switch v := v.(type) {
	case Object:
		out := make(Object, len(v))
		for i, m := range v {
			out[i] = Member{Key: m.Key, Value: SortKeys(m.Value)}
		}
		slices.SortStableFunc(out, func(a, b Member) int {
			return strings.Compare(a.Key, b.Key)
		})
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = SortKeys(e)
		}
		return out
	default:
		return v
	}
}

// Encode writes v in compact form. Strings are escaped minimally: quote,
// backslash and control characters only.
func Encode(v any) ([]byte, error) {
	w := &jx.Writer{}
	if err := encodeValue(w, v); err != nil {
		return nil, err
	}
	return w.Buf, nil
}

func encodeValue(w *jx.Writer, v any) error {
	switch v := v.(type) {
	case Object:
		w.ObjStart()
		for i, m := range v {
			if i > 0 {
				w.Comma()
			}
			w.Raw(appendString(nil, m.Key))
			w.RawStr(":")
			if err := encodeValue(w, m.Value); err != nil {
				return err
			}
		}
		w.ObjEnd()
	case []any:
		w.ArrStart()
		for i, e := range v {
			if i > 0 {
				w.Comma()
			}
			if err := encodeValue(w, e); err != nil {
				return err
			}
		}
		w.ArrEnd()
	case string:
		w.Raw(appendString(nil, v))
	case jx.Num:
		if len(v) == 0 {
			return errors.New("empty number")
		}
		w.Raw(v)
	case bool:
		w.Bool(v)
	case nil:
		w.Null()
	default:
		return errors.Errorf("unsupported value type %T", v)
	}
	return nil
}

// Canonicalize decodes b, sorts all object keys and re-encodes it.
func Canonicalize(b []byte) ([]byte, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return Encode(SortKeys(v))
}

const hex = "0123456789abcdef"

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			if c < 0x20 {
				dst = append(dst, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
				continue
			}
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
