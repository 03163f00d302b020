package document

import "github.com/dshills/coalesce/internal/crdt"

// AddStdinOutput appends a stdin request record to a code cell's outputs
// and returns its index. The value field is a live text handle the client
// appends the user's input into; submitted flips to true when the input is
// sent to the kernel.
//
// Schema:
//
//	{
//	    "output_type": "stdin",
//	    "submitted": bool,
//	    "password": bool,
//	    "prompt": str,
//	    "value": Text
//	}
func AddStdinOutput(outputs *crdt.Array, prompt string, password bool) (int, error) {
	record := crdt.NewMap(map[string]any{
		"output_type": "stdin",
		"submitted":   false,
		"password":    password,
		"prompt":      prompt,
		"value":       crdt.NewText(""),
	})
	index := outputs.Len()
	if err := outputs.Append(record); err != nil {
		return 0, err
	}
	return index, nil
}
