package types

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cast"
)

type Data map[string]any

func (d *Data) Get(key string) (any, bool) {
	v, exists := (*d)[key]
	return v, exists
}

func (d *Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d *Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d *Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.New("marshal failed"))
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	(*d)[key] = value
}

/**
 * GetPath resolves a dotted path such as "MicroscopeState.selected_channels"
 * through nested maps. A key that literally contains the whole path wins
 * over the nested lookup.
 */
func (d *Data) GetPath(path string) (any, bool) {
	if v, exists := (*d)[path]; exists {
		return v, true
	}
	var cur any = map[string]any(*d)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, exists := m[seg]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// SetPath stores value at a dotted path, creating intermediate maps.
func (d *Data) SetPath(path string, value any) error {
	if _, exists := (*d)[path]; exists || !strings.Contains(path, ".") {
		(*d)[path] = value
		return nil
	}
	segs := strings.Split(path, ".")
	cur := map[string]any(*d)
	for _, seg := range segs[:len(segs)-1] {
		next, exists := cur[seg]
		if !exists {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return errors.NotValidf("path %s: %s is not a map", path, seg)
		}
		// yaml decoders may hand back map[interface{}]interface{}; replace it
		// with the converted map so writes land in the tree.
		cur[seg] = m
		cur = m
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

func (d *Data) GetPathInt(path string) (int, bool) {
	v, exists := d.GetPath(path)
	return cast.ToInt(v), exists
}

func (d *Data) GetPathString(path string) (string, bool) {
	v, exists := d.GetPath(path)
	return cast.ToString(v), exists
}

func (d *Data) GetPathStringSlice(path string) ([]string, bool) {
	v, exists := d.GetPath(path)
	if !exists {
		return nil, false
	}
	return cast.ToStringSlice(v), true
}

/**
 * GetPathCount returns the list length for slice values and the integer
 * value otherwise.
 */
func (d *Data) GetPathCount(path string) (int, error) {
	v, exists := d.GetPath(path)
	if !exists {
		return 0, errors.NotFoundf("experiment field %s", path)
	}
	if v == nil {
		return 0, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), nil
	case reflect.Map:
		return rv.Len(), nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, errors.Annotatef(err, "experiment field %s", path)
	}
	if n < 0 {
		return 0, errors.NotValidf("negative count %d in %s", n, path)
	}
	return n, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Data:
		return map[string]any(m), true
	case map[any]any:
		return cast.ToStringMap(m), true
	}
	return nil, false
}
