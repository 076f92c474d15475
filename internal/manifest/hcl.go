package manifest

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

type hclDocument struct {
	JobName     *string        `hcl:"job_name,optional"`
	Data        []string       `hcl:"data,optional"`
	BatchScript *string        `hcl:"batch_script,optional"`
	JobCommand  hcl.Expression `hcl:"job_command,optional"`
	Scheduler   *string        `hcl:"scheduler,optional"`
	Exclude     []string       `hcl:"exclude,optional"`
}

// decodeHCL parses src and decodes it with a nil evaluation context: no
// variables and no functions are available to the document.
func decodeHCL(src []byte, filename string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, diagError(diags)
	}

	cmds, err := commandsFromExpr(doc.JobCommand)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Data:       doc.Data,
		JobCommand: cmds,
		Exclude:    doc.Exclude,
	}
	if doc.JobName != nil {
		m.JobName = *doc.JobName
	}
	if doc.BatchScript != nil {
		m.BatchScript = *doc.BatchScript
	}
	if doc.Scheduler != nil {
		m.Scheduler = *doc.Scheduler
	}
	return m, nil
}

func commandsFromExpr(expr hcl.Expression) (Commands, error) {
	if expr == nil {
		return nil, nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diagError(diags)
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("job_command must be a literal value")
	}

	if v.Type() == cty.String {
		return Commands{v.AsString()}, nil
	}

	list, err := convert.Convert(v, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("job_command must be a string or a list of strings")
	}
	var out Commands
	for it := list.ElementIterator(); it.Next(); {
		_, el := it.Element()
		if el.IsNull() {
			return nil, fmt.Errorf("job_command entries must not be null")
		}
		out = append(out, el.AsString())
	}
	return out, nil
}

func diagError(diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		if d.Subject != nil {
			msg = fmt.Sprintf("%s: %s", d.Subject.String(), msg)
		}
		return fmt.Errorf("%s", msg)
	}
	return diags
}
