package rlp

import (
	"fmt"
	"io"
	"math/big"
	"reflect"
)

// Decoder lets a type take full control of decoding its own RLP
// representation from a single encoded item.
type Decoder interface {
	DecodeRLP(data []byte) error
}

// DecodeBytes parses RLP-encoded data into val, which must be a pointer.
func DecodeBytes(data []byte, val interface{}) error {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("rlp: decode target must be a non-nil pointer")
	}
	item, rest, err := splitItem(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("rlp: %d trailing bytes after decoded value", len(rest))
	}
	return decodeInto(item, rv.Elem())
}

// item is a single parsed RLP item: either a string (possibly empty) or
// the concatenated body of a list.
type item struct {
	isList bool
	data   []byte // payload bytes (string content, or list body)
}

func splitItem(b []byte) (item, []byte, error) {
	if len(b) == 0 {
		return item{}, nil, io.ErrUnexpectedEOF
	}
	tag := b[0]
	switch {
	case tag < 0x80:
		return item{data: b[:1]}, b[1:], nil
	case tag < 0xb8:
		n := int(tag - 0x80)
		if len(b) < 1+n {
			return item{}, nil, io.ErrUnexpectedEOF
		}
		return item{data: b[1 : 1+n]}, b[1+n:], nil
	case tag < 0xc0:
		lenlen := int(tag - 0xb7)
		if len(b) < 1+lenlen {
			return item{}, nil, io.ErrUnexpectedEOF
		}
		n := int(beUint(b[1 : 1+lenlen]))
		start := 1 + lenlen
		if len(b) < start+n {
			return item{}, nil, io.ErrUnexpectedEOF
		}
		return item{data: b[start : start+n]}, b[start+n:], nil
	case tag < 0xf8:
		n := int(tag - 0xc0)
		if len(b) < 1+n {
			return item{}, nil, io.ErrUnexpectedEOF
		}
		return item{isList: true, data: b[1 : 1+n]}, b[1+n:], nil
	default:
		lenlen := int(tag - 0xf7)
		if len(b) < 1+lenlen {
			return item{}, nil, io.ErrUnexpectedEOF
		}
		n := int(beUint(b[1 : 1+lenlen]))
		start := 1 + lenlen
		if len(b) < start+n {
			return item{}, nil, io.ErrUnexpectedEOF
		}
		return item{isList: true, data: b[start : start+n]}, b[start+n:], nil
	}
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func splitList(body []byte) ([]item, error) {
	var items []item
	for len(body) > 0 {
		it, rest, err := splitItem(body)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
		body = rest
	}
	return items, nil
}

func decodeInto(it item, v reflect.Value) error {
	if dec, ok := v.Addr().Interface().(Decoder); ok {
		raw := it.data
		if it.isList {
			raw = wrapList(it.data)
		} else {
			raw = encodeString(it.data)
		}
		return dec.DecodeRLP(raw)
	}

	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return decodeInto(it, v.Elem())
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(string(it.data))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(beUint(it.data))
		return nil
	case reflect.Bool:
		v.SetBool(beUint(it.data) != 0)
		return nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, len(it.data))
			copy(buf, it.data)
			v.SetBytes(buf)
			return nil
		}
		items, err := splitList(it.data)
		if err != nil {
			return err
		}
		s := reflect.MakeSlice(v.Type(), len(items), len(items))
		for i, sub := range items {
			if err := decodeInto(sub, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			reflect.Copy(v, reflect.ValueOf(it.data))
			return nil
		}
		items, err := splitList(it.data)
		if err != nil {
			return err
		}
		for i := 0; i < v.Len() && i < len(items); i++ {
			if err := decodeInto(items[i], v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		if _, ok := v.Addr().Interface().(*big.Int); ok {
			v.Set(reflect.ValueOf(*new(big.Int).SetBytes(it.data)))
			return nil
		}
		items, err := splitList(it.data)
		if err != nil {
			return err
		}
		t := v.Type()
		fi := 0
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).PkgPath != "" {
				continue
			}
			if fi >= len(items) {
				return fmt.Errorf("rlp: too few list elements for struct %s", t.Name())
			}
			if err := decodeInto(items[fi], v.Field(i)); err != nil {
				return err
			}
			fi++
		}
		return nil
	default:
		if v.Type() == reflect.TypeOf(&big.Int{}) || v.Type() == reflect.TypeOf(big.Int{}) {
			bi := new(big.Int).SetBytes(it.data)
			if v.Kind() == reflect.Ptr {
				v.Set(reflect.ValueOf(bi))
			} else {
				v.Set(reflect.ValueOf(*bi))
			}
			return nil
		}
		return fmt.Errorf("rlp: unsupported decode kind %v", v.Kind())
	}
}
