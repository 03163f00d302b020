package document

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrBadNotebookJSON reports wire data that is not a JSON notebook object.
var ErrBadNotebookJSON = errors.New("document: invalid notebook JSON")

// DecodeNotebook parses wire-format notebook JSON into the plain value
// form Set consumes. Numbers decode as floats; Set normalizes them.
func DecodeNotebook(data []byte) (map[string]any, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrBadNotebookJSON
	}
	v, ok := gjson.ParseBytes(data).Value().(map[string]any)
	if !ok {
		return nil, ErrBadNotebookJSON
	}
	return v, nil
}

// EncodeNotebook renders Get's projection back to wire JSON.
func EncodeNotebook(v map[string]any) ([]byte, error) {
	return json.MarshalIndent(v, "", " ")
}
