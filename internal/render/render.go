// Package render produces the chat page.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"physics-chat/internal/models"
)

const (
	PageTitle        = "Chatbot Ahli Fisika ⚛️"
	PageIcon         = "⚛️"
	Caption          = "🤖 Bot ini akan menjawab pertanyaan tentang rumus fisika. Ketik pertanyaan Anda di bawah."
	InputPlaceholder = "Tanyakan rumus fisika..."
)

//go:embed templates/*.html
var templateFS embed.FS

type bubble struct {
	Speaker string
	Failed  bool
	HTML    template.HTML
}

type pageData struct {
	Title       string
	Icon        string
	Caption     string
	Placeholder string
	Bubbles     []bubble
}

type Renderer struct {
	page *template.Template
	md   goldmark.Markdown
}

func New() (*Renderer, error) {
	page, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, err
	}
	// Raw HTML in messages stays escaped: goldmark's default renderer is not unsafe.
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return &Renderer{page: page, md: md}, nil
}

// Markdown converts one message body to HTML.
func (r *Renderer) Markdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Page writes the full chat page for turns.
func (r *Renderer) Page(w io.Writer, turns []models.Turn) error {
	data := pageData{
		Title:       PageTitle,
		Icon:        PageIcon,
		Caption:     Caption,
		Placeholder: InputPlaceholder,
		Bubbles:     make([]bubble, 0, len(turns)),
	}
	for _, t := range turns {
		body, err := r.Markdown(t.Text)
		if err != nil {
			return err
		}
		data.Bubbles = append(data.Bubbles, bubble{
			Speaker: speaker(t.Role),
			Failed:  t.Status == models.TurnFailed,
			HTML:    body,
		})
	}
	return r.page.Execute(w, data)
}

// speaker maps a history role to the label shown on its bubble.
func speaker(role models.Role) string {
	if role == models.RoleModel {
		return "assistant"
	}
	return "user"
}
