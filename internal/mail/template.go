package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/sakif/codevault/internal/model"
)

// Template keys the application sends.
const (
	KeyWelcome         = "welcome"
	KeySnippetApproved = "snippet_approved"
	KeySnippetRejected = "snippet_rejected"
	KeyPasswordChanged = "password_changed"
	KeyTest            = "test"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultTemplate struct {
	Key         string         `yaml:"key"`
	Description string         `yaml:"description"`
	Subject     string         `yaml:"subject"`
	Body        string         `yaml:"body"`
	Sample      map[string]any `yaml:"sample"`
}

var loadDefaults = sync.OnceValue(func() map[string]defaultTemplate {
	var doc struct {
		Templates []defaultTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
		panic(fmt.Sprintf("mail: decoding defaults.yaml: %v", err))
	}
	out := make(map[string]defaultTemplate, len(doc.Templates))
	for _, t := range doc.Templates {
		out[t.Key] = t
	}
	return out
})

// Defaults returns the built-in templates sorted by key.
func Defaults() []model.EmailTemplate {
	d := loadDefaults()
	out := make([]model.EmailTemplate, 0, len(d))
	for _, t := range d {
		out = append(out, toModel(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Default returns the built-in template for key.
func Default(key string) (model.EmailTemplate, bool) {
	t, ok := loadDefaults()[key]
	if !ok {
		return model.EmailTemplate{}, false
	}
	return toModel(t), true
}

// SampleData is the preview data for key; unknown keys get an empty map.
func SampleData(key string) map[string]any {
	out := map[string]any{}
	for k, v := range loadDefaults()[key].Sample {
		out[k] = v
	}
	return out
}

func toModel(t defaultTemplate) model.EmailTemplate {
	return model.EmailTemplate{
		Key:         t.Key,
		Subject:     t.Subject,
		Body:        strings.TrimSpace(t.Body),
		Description: t.Description,
		IsDefault:   true,
	}
}

// Renderer turns a template plus data into a sendable subject and HTML
// body. The rendered body goes through bluemonday's UGC policy, so an
// admin-edited template cannot smuggle scripts into users' inboxes.
type Renderer struct {
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{policy: bluemonday.UGCPolicy()}
}

// Validate parses subject and body without executing them.
func (r *Renderer) Validate(t model.EmailTemplate) error {
	if _, err := texttemplate.New("subject").Parse(t.Subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if _, err := htmltemplate.New("body").Parse(t.Body); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	return nil
}

// Render executes t with data. The subject is collapsed to one line.
func (r *Renderer) Render(t model.EmailTemplate, data any) (subject, body string, err error) {
	st, err := texttemplate.New("subject").Parse(t.Subject)
	if err != nil {
		return "", "", fmt.Errorf("mail: parsing subject of %s: %w", t.Key, err)
	}
	bt, err := htmltemplate.New("body").Parse(t.Body)
	if err != nil {
		return "", "", fmt.Errorf("mail: parsing body of %s: %w", t.Key, err)
	}

	var sb, bb bytes.Buffer
	if err := st.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("mail: rendering subject of %s: %w", t.Key, err)
	}
	if err := bt.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("mail: rendering body of %s: %w", t.Key, err)
	}

	subject = strings.Join(strings.Fields(sb.String()), " ")
	body = r.policy.Sanitize(bb.String())
	return subject, body, nil
}
