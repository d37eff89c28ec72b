// Package prompts holds the system and user prompts sent with each structured
// completion. They live in stages.json, embedded at compile time.
package prompts

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

//go:embed stages.json
var stagesJSON []byte

var loadStages = sync.OnceValues(func() (map[string]string, error) {
	var prompts map[string]string
	if err := json.Unmarshal(stagesJSON, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse stages.json: %w", err)
	}
	return prompts, nil
})

// Get returns the raw prompt stored under key.
func Get(key string) (string, error) {
	prompts, err := loadStages()
	if err != nil {
		return "", err
	}
	prompt, ok := prompts[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in stages.json", key)
	}
	return prompt, nil
}

// Check verifies that every key in StageKeys has a non-empty prompt.
func Check() error {
	prompts, err := loadStages()
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range StageKeys {
		if strings.TrimSpace(prompts[key]) == "" {
			errs = append(errs, fmt.Errorf("prompt %q is missing or empty", key))
		}
	}
	return errors.Join(errs...)
}

// Format replaces {{.Key}} placeholders with values from data in a single pass.
// Substituted text is never scanned again, so a value that itself contains a
// placeholder is kept verbatim. Unknown placeholders are left in place.
func Format(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, "{{."+key+"}}", data[key])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Stage returns the prompt stored under key with data substituted.
func Stage(key string, data map[string]string) (string, error) {
	tmpl, err := Get(key)
	if err != nil {
		return "", err
	}
	return Format(tmpl, data), nil
}
