package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/appregistry/internal/icon"
	"github.com/blackwell-systems/appregistry/internal/identity"
)

// commandOutput is the JSON document an external package query command
// prints on stdout.
//
//	{
//	  "activities": [
//	    {"component": "com.example/.Main", "label": "Example", "icon_path": "/usr/share/icons/example.png"},
//	    {"component": "com.other/.Main", "label": "Other", "icon_base64": "iVBORw0..."}
//	  ]
//	}
type commandOutput struct {
	Activities []commandActivity `json:"activities"`
}

type commandActivity struct {
	Component  string `json:"component"`
	Label      string `json:"label"`
	IconPath   string `json:"icon_path,omitempty"`
	IconBase64 string `json:"icon_base64,omitempty"`
}

// CommandProvider shells out to an external query command. The package name,
// when set, is appended as the final argument.
type CommandProvider struct {
	name string
	args []string
}

// NewCommandProvider parses a command line such as "pm query --json".
func NewCommandProvider(commandLine string) (*CommandProvider, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("provider command cannot be empty")
	}
	return &CommandProvider{name: fields[0], args: fields[1:]}, nil
}

// QueryLiveEntries implements Provider.
func (p *CommandProvider) QueryLiveEntries(ctx context.Context, pkg string) ([]LiveEntry, error) {
	args := append([]string{}, p.args...)
	if pkg != "" {
		args = append(args, pkg)
	}

	cmd := exec.CommandContext(ctx, p.name, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s failed: %w (stderr: %s)", p.name, err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s failed: %w", p.name, err)
	}

	return parseCommandOutput(output, pkg)
}

// parseCommandOutput decodes the command's JSON. Activities outside pkg and
// unparsable components are dropped.
func parseCommandOutput(output []byte, pkg string) ([]LiveEntry, error) {
	var out commandOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse provider output: %w", err)
	}

	entries := make([]LiveEntry, 0, len(out.Activities))
	for _, act := range out.Activities {
		key, err := identity.Parse(act.Component)
		if err != nil {
			continue
		}
		if pkg != "" && key.Package != pkg {
			continue
		}

		entry := LiveEntry{Identity: key, Title: strings.TrimSpace(act.Label)}
		switch {
		case act.IconBase64 != "":
			data, err := base64.StdEncoding.DecodeString(act.IconBase64)
			if err == nil {
				entry.Icon = icon.Bytes(data)
			}
		case act.IconPath != "":
			entry.Icon = FileIcon(act.IconPath)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
