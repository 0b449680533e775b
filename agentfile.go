package copilot

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// agentFrontmatter is the YAML block at the top of a custom agent .md file.
type agentFrontmatter struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"displayName"`
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
	Infer       bool     `yaml:"infer"`
}

// ParseCustomAgentFile parses one custom agent definition: YAML frontmatter
// between --- delimiters, followed by the agent prompt as markdown. The agent
// name defaults to the file name without extension.
func ParseCustomAgentFile(path string) (CustomAgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CustomAgentConfig{}, fmt.Errorf("copilot: read agent file: %w", err)
	}
	agent, err := parseCustomAgent(data)
	if err != nil {
		return CustomAgentConfig{}, fmt.Errorf("copilot: parse agent file %s: %w", path, err)
	}
	if agent.Name == "" {
		agent.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return agent, nil
}

// LoadCustomAgents parses every .md file in dir into a CustomAgentConfig,
// sorted by agent name. Suitable for SessionConfig.CustomAgents.
func LoadCustomAgents(dir string) ([]CustomAgentConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("copilot: read agents dir: %w", err)
	}

	var agents []CustomAgentConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		agent, err := ParseCustomAgentFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

func parseCustomAgent(data []byte) (CustomAgentConfig, error) {
	if !bytes.HasPrefix(data, []byte("---")) {
		return CustomAgentConfig{}, fmt.Errorf("missing frontmatter delimiter")
	}

	var front []string
	var body []string
	inFront := true
	foundEnd := false

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		line := sc.Text()
		lineNum++
		if lineNum == 1 {
			continue // opening ---
		}
		if inFront && strings.TrimSpace(line) == "---" {
			inFront = false
			foundEnd = true
			continue
		}
		if inFront {
			front = append(front, line)
		} else {
			body = append(body, line)
		}
	}
	if err := sc.Err(); err != nil {
		return CustomAgentConfig{}, err
	}
	if !foundEnd {
		return CustomAgentConfig{}, fmt.Errorf("unterminated frontmatter")
	}

	var fm agentFrontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(front, "\n")), &fm); err != nil {
		return CustomAgentConfig{}, fmt.Errorf("frontmatter: %w", err)
	}

	prompt := strings.TrimSpace(strings.Join(body, "\n"))
	if prompt == "" {
		return CustomAgentConfig{}, fmt.Errorf("empty agent prompt")
	}

	return CustomAgentConfig{
		Name:        fm.Name,
		DisplayName: fm.DisplayName,
		Description: fm.Description,
		Tools:       fm.Tools,
		Prompt:      prompt,
		Infer:       fm.Infer,
	}, nil
}
