package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

func parseYAML(content string, base Config) (Config, []Warning, error) {
	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)

	var payload filePayload
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return finish(filePayload{}, base)
		}
		return Config{}, nil, fmt.Errorf("yaml: %w", err)
	}

	var extra yaml.Node
	if err := decoder.Decode(&extra); err == nil {
		return Config{}, nil, fmt.Errorf("yaml: multiple documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return Config{}, nil, fmt.Errorf("yaml: %w", err)
	}

	return finish(payload, base)
}
