// Package crawlargs builds the argument list for the crawl executable.
package crawlargs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/broadcrawl-worker/internal/crawler"
)

// Flag is one --name value pair read from configuration.
type Flag struct {
	Name  string
	Value string
}

// Static is the ordered list of configuration-derived flags appended to every job.
type Static []Flag

// Args flattens the flags into --name value pairs.
func (s Static) Args() []string {
	out := make([]string, 0, 2*len(s))
	for _, f := range s {
		out = append(out, "--"+f.Name, f.Value)
	}
	return out
}

// Load reads the `server` mapping from the YAML file at path, preserving
// key order. A missing mapping yields no static flags.
func Load(path string) (Static, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crawl args: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes the way Load does.
func Parse(data []byte) (Static, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse crawl args: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse crawl args: top level must be a mapping")
	}

	var server *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "server" {
			server = root.Content[i+1]
			break
		}
	}
	if server == nil || server.Tag == "!!null" {
		return nil, nil
	}
	if server.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse crawl args: server must be a mapping")
	}

	out := make(Static, 0, len(server.Content)/2)
	for i := 0; i+1 < len(server.Content); i += 2 {
		key, val := server.Content[i], server.Content[i+1]
		value, err := scalarValue(val)
		if err != nil {
			return nil, fmt.Errorf("parse crawl args: server.%s: %w", key.Value, err)
		}
		out = append(out, Flag{Name: key.Value, Value: value})
	}
	return out, nil
}

// scalarValue renders scalars verbatim and joins sequences of scalars with commas.
func scalarValue(n *yaml.Node) (string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "", nil
		}
		return n.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return "", fmt.Errorf("nested values are not supported")
			}
			parts = append(parts, item.Value)
		}
		return strings.Join(parts, ","), nil
	case yaml.AliasNode:
		return scalarValue(n.Alias)
	default:
		return "", fmt.Errorf("mapping values are not supported")
	}
}

// Build returns the per-job flags followed by the static flags in
// configuration order.
func Build(job crawler.Job, static Static) []string {
	args := []string{
		"--url", job.URL,
		"--domain", job.Domain,
		"--level", strconv.Itoa(job.Level),
		"--collection", job.Collection,
		"--id", job.ID,
		"--retry", strconv.Itoa(job.Retry),
	}
	return append(args, static.Args()...)
}
