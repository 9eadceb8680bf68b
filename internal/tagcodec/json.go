package tagcodec

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// uriKeys are the object fields whose values reference stored media; a typed
// tag restored into one of these earns a mimeType on the same object.
var uriKeys = map[string]bool{
	"gcsUri":  true,
	"fileUri": true,
}

// RestoreJSON restores every string leaf of a JSON document and attaches a
// mimeType field next to any gcsUri/fileUri leaf whose pre-restoration value
// was a typed tag. The restored document and any unknown placeholders are
// returned.
func RestoreJSON(doc []byte, tags TagMap) ([]byte, []string, error) {
	out := append([]byte(nil), doc...)
	var unknown []string
	var err error

	walkStrings(gjson.ParseBytes(doc), "", func(path, key string, value gjson.Result) {
		if err != nil {
			return
		}
		raw := value.String()
		restored, missing := Restore(raw, tags)
		unknown = append(unknown, missing...)
		if restored != raw {
			if out, err = sjson.SetBytes(out, path, restored); err != nil {
				return
			}
		}
		if !uriKeys[key] {
			return
		}
		if _, mapped := tags[strings.TrimSpace(raw)]; !mapped {
			return
		}
		if mime := MIMEForTag(strings.TrimSpace(raw)); mime != "" {
			mimePath := "mimeType"
			if parent := parentPath(path, key); parent != "" {
				mimePath = parent + ".mimeType"
			}
			out, err = sjson.SetBytes(out, mimePath, mime)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return out, unknown, nil
}

// walkStrings visits every string leaf of a JSON tree in document order,
// passing the sjson-compatible path and the leaf's own key.
func walkStrings(v gjson.Result, prefix string, fn func(path, key string, value gjson.Result)) {
	idx := 0
	isArray := v.IsArray()
	v.ForEach(func(key, value gjson.Result) bool {
		var seg, name string
		if isArray {
			seg = strconv.Itoa(idx)
		} else {
			name = key.String()
			seg = escapeKey(name)
		}
		idx++
		path := seg
		if prefix != "" {
			path = prefix + "." + seg
		}
		switch {
		case value.IsObject() || value.IsArray():
			walkStrings(value, path, fn)
		case value.Type == gjson.String:
			fn(path, name, value)
		}
		return true
	})
}

func parentPath(path, key string) string {
	seg := escapeKey(key)
	if path == seg {
		return ""
	}
	return strings.TrimSuffix(path, "."+seg)
}

func escapeKey(key string) string {
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(key)
}
