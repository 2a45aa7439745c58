package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/agbru/dayrun/internal/errors"
	"github.com/agbru/dayrun/internal/pipeline"
)

// BuildStageName names the build step prepended to the setup stages.
const BuildStageName = "build"

// LoadPipeline returns a built-in pipeline by name or decodes a YAML
// pipeline file. Unknown YAML keys are rejected.
//
// Example file:
//
//	name: hourly
//	hours: 24
//	setup:
//	  - {name: KeyGen, command: KeyGen}
//	stages:
//	  - {name: Step1_CS1, command: Step1_CS1, args: ["{input}", "{ptxt}", "{workdir}", "{hour}"], per_hour: true}
//	  - {name: CheckRes, command: CheckRes, args: ["{date}", "{workdir}", "{ctxt}"]}
func LoadPipeline(source string) (pipeline.Pipeline, error) {
	if p, ok := pipeline.Builtin(source); ok {
		return p, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return pipeline.Pipeline{}, apperrors.NewConfigError("pipeline %q is neither a built-in (daily, hourly) nor a readable file: %v", source, err)
	}
	return DecodePipeline(data, source)
}

// DecodePipeline decodes and validates a YAML pipeline document.
func DecodePipeline(data []byte, name string) (pipeline.Pipeline, error) {
	var p pipeline.Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return pipeline.Pipeline{}, apperrors.NewConfigError("decoding pipeline %s: %v", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if err := p.Validate(); err != nil {
		return pipeline.Pipeline{}, err
	}
	return p, nil
}

// ResolvePipeline loads the configured pipeline, prepends the build command
// unless disabled, and checks that --stop-after names an existing stage.
func ResolvePipeline(cfg AppConfig) (pipeline.Pipeline, error) {
	p, err := LoadPipeline(cfg.Pipeline)
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	if !cfg.SkipBuild {
		fields := strings.Fields(cfg.BuildCmd)
		build := pipeline.Stage{Name: BuildStageName, Command: fields[0], Args: fields[1:]}
		p.Setup = append([]pipeline.Stage{build}, p.Setup...)
		if err := p.Validate(); err != nil {
			return pipeline.Pipeline{}, err
		}
	}

	if cfg.StopAfter != "" && !p.Has(cfg.StopAfter) {
		return pipeline.Pipeline{}, apperrors.ValidationError{Field: "stop-after", Message: "no stage named " + cfg.StopAfter}
	}
	return p, nil
}
