package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// ruleHeader mirrors models.Rule's metadata fields for YAML decoding; the
// body is carried separately because it is everything after the closing
// `---` delimiter, not a YAML value (§6 "Rule file format").
type ruleHeader struct {
	ID        string                     `yaml:"id"`
	Name      string                     `yaml:"name"`
	Version   int                        `yaml:"version"`
	Enabled   *bool                      `yaml:"enabled"`
	Triggers  models.RuleTriggers        `yaml:"triggers"`
	DependsOn []string                   `yaml:"depends_on"`
	PreExtract []models.PreExtractPattern `yaml:"pre_extract"`
	NeedsCode bool                       `yaml:"needs_code"`
}

// ParseRuleFile parses one rule file: a `---`-delimited YAML metadata
// header followed by a free-text Markdown body (§6).
func ParseRuleFile(raw []byte) (*models.Rule, error) {
	content := string(raw)
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("rule file missing --- delimited header")
	}
	// parts[0] is empty (file starts with ---), parts[1] is the header, parts[2] is the body.
	var hdr ruleHeader
	if err := yaml.Unmarshal([]byte(parts[1]), &hdr); err != nil {
		return nil, fmt.Errorf("parse rule header: %w", err)
	}
	if strings.TrimSpace(hdr.ID) == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	enabled := true
	if hdr.Enabled != nil {
		enabled = *hdr.Enabled
	}
	return &models.Rule{
		ID:         hdr.ID,
		Name:       hdr.Name,
		Version:    hdr.Version,
		Enabled:    enabled,
		Triggers:   hdr.Triggers,
		DependsOn:  hdr.DependsOn,
		PreExtract: hdr.PreExtract,
		NeedsCode:  hdr.NeedsCode,
		Body:       strings.TrimSpace(parts[2]),
	}, nil
}

// RenderRuleFile is the inverse of ParseRuleFile, used by catalog CRUD to
// persist an in-memory Rule back to disk in the same format.
func RenderRuleFile(r *models.Rule) ([]byte, error) {
	hdr := ruleHeader{
		ID:         r.ID,
		Name:       r.Name,
		Version:    r.Version,
		Enabled:    &r.Enabled,
		Triggers:   r.Triggers,
		DependsOn:  r.DependsOn,
		PreExtract: r.PreExtract,
		NeedsCode:  r.NeedsCode,
	}
	headerBytes, err := yaml.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("render rule header: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(headerBytes)
	b.WriteString("---\n\n")
	b.WriteString(r.Body)
	b.WriteString("\n")
	return []byte(b.String()), nil
}
