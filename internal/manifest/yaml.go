package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/tastythames/jobdispatch/internal/suggest"
)

type yamlDocument struct {
	JobName     string   `yaml:"job_name"`
	Data        []string `yaml:"data"`
	BatchScript string   `yaml:"batch_script"`
	JobCommand  Commands `yaml:"job_command"`
	Scheduler   string   `yaml:"scheduler"`
	Exclude     []string `yaml:"exclude"`
}

var unknownField = regexp.MustCompile(`field (\S+) not found in type`)

func decodeYAML(b []byte) (*Manifest, error) {
	var doc yamlDocument

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		if m := unknownField.FindStringSubmatch(err.Error()); m != nil {
			return nil, fmt.Errorf("%w%s", err, suggest.Hint(m[1], Keys))
		}
		return nil, err
	}

	return &Manifest{
		JobName:     doc.JobName,
		Data:        doc.Data,
		BatchScript: doc.BatchScript,
		JobCommand:  doc.JobCommand,
		Scheduler:   doc.Scheduler,
		Exclude:     doc.Exclude,
	}, nil
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (c *Commands) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*c = Commands{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("line %d: job_command must be a string or a list of strings", value.Line)
	}
}
