package chat

import (
	"bytes"
	_ "embed"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
)

//go:embed prompt/system.md
var systemPromptRaw string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))

type systemPromptInput struct {
	Today        string
	Capabilities []*model.CapabilitySpec
	ToolPrompts  string
}

func buildSystemPrompt(now time.Time, specs []*model.CapabilitySpec, toolPrompts string) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, &systemPromptInput{
		Today:        now.Format("Monday, 2 January 2006"),
		Capabilities: specs,
		ToolPrompts:  toolPrompts,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}
