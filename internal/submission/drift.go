package submission

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/submission.schema.json
var schemaFS embed.FS

const schemaURL = "schema://submission.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func submissionSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		data, err := schemaFS.ReadFile("schema/submission.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("read schema: %w", err)
			return
		}
		var def any
		if err := json.Unmarshal(data, &def); err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Drift checks a submission against the current simulator shape and returns one
// message per mismatch. It never rejects: the resolver already tolerates drift,
// these messages only surface it.
func Drift(raw []byte) ([]string, error) {
	sch, err := submissionSchema()
	if err != nil {
		return nil, err
	}
	var inst any
	if err := json.Unmarshal(stripFence(bytes.TrimSpace(raw)), &inst); err != nil {
		return nil, &ErrMalformedInput{Err: err}
	}
	err = sch.Validate(inst)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("validate submission: %w", err)
	}
	p := message.NewPrinter(language.English)
	var out []string
	collectLeaves(ve, p, &out)
	return out, nil
}

func collectLeaves(ve *jsonschema.ValidationError, p *message.Printer, out *[]string) {
	if len(ve.Causes) == 0 {
		*out = append(*out, fmt.Sprintf("schema drift at /%s: %s",
			strings.Join(ve.InstanceLocation, "/"), ve.ErrorKind.LocalizedString(p)))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, p, out)
	}
}
