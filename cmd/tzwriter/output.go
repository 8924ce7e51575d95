package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// outputJSON writes v to the app's writer (stdout) as indented JSON,
// filtered through the global --jq expression when one is set.
func outputJSON(c *cli.Context, v interface{}) error {
	return writeJSON(c.App.Writer, c.String("jq"), v)
}

func writeJSON(w io.Writer, filter string, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if filter == "" {
		return enc.Encode(v)
	}

	code, err := compileJQ(filter)
	if err != nil {
		return err
	}

	// gojq only walks plain JSON values.
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	iter := code.Run(doc)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := out.(error); isErr {
			return fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}
