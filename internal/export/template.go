// Package export 把简历渲染为 A4 PDF，并把导出结果归档到对象存储。
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"resumeforge/internal/resume"
)

const documentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  @page { size: A4; margin: 0; }
  body { margin: 0; font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #111; }
  .page { padding: 30px; }
  h1 { font-size: 20px; margin: 0 0 4px; }
  h2 { font-size: 16px; margin: 14px 0 4px; border-bottom: 1px solid #ccc; }
  .contact, .meta { color: #444; }
  .entry { margin-bottom: 10px; break-inside: avoid; }
  .entry-title { font-weight: bold; }
  p { margin: 2px 0; white-space: pre-line; }
</style>
</head>
<body>
<div class="page">
  {{with .PersonalInfo.Name}}<h1>{{.}}</h1>{{end}}
  {{with .Contact}}<div class="contact">{{join . " • "}}</div>{{end}}

  {{with .Summary}}
  <section>
    <h2>Summary</h2>
    <p>{{.}}</p>
  </section>
  {{end}}

  {{with .Experience}}
  <section>
    <h2>Experience</h2>
    {{range .}}
    <div class="entry">
      <div class="entry-title">{{.Title}}</div>
      <div class="meta">{{join (compact .Company .Location (dates .StartDate .EndDate)) " • "}}</div>
      {{with .Description}}<p>{{.}}</p>{{end}}
    </div>
    {{end}}
  </section>
  {{end}}

  {{with .Education}}
  <section>
    <h2>Education</h2>
    {{range .}}
    <div class="entry">
      <div class="entry-title">{{.Degree}}</div>
      <div class="meta">{{join (compact .School .Location .GraduationDate) " • "}}</div>
      {{with .GPA}}<p>GPA: {{.}}</p>{{end}}
    </div>
    {{end}}
  </section>
  {{end}}

  {{with .Skills}}
  <section>
    <h2>Skills</h2>
    <p>{{join . ", "}}</p>
  </section>
  {{end}}

  {{with .Projects}}
  <section>
    <h2>Projects</h2>
    {{range .}}
    <div class="entry">
      <div class="entry-title">{{.Name}}</div>
      {{with .Technologies}}<div class="meta">{{.}}</div>{{end}}
      {{with .Description}}<p>{{.}}</p>{{end}}
      {{with .Link}}<div class="meta">{{.}}</div>{{end}}
    </div>
    {{end}}
  </section>
  {{end}}
</div>
</body>
</html>
`

var tmpl = template.Must(template.New("resume").Funcs(template.FuncMap{
	"join":    strings.Join,
	"compact": compact,
	"dates":   dates,
}).Parse(documentTemplate))

type view struct {
	Title string
	resume.Content
	Contact []string
}

// Render 生成简历的 HTML 文档。空的区块整体省略。
func Render(s resume.Snapshot) (string, error) {
	c := s.Content
	v := view{
		Title:   s.Title,
		Content: c,
		Contact: compact(c.PersonalInfo.Email, c.PersonalInfo.Phone, c.PersonalInfo.Location, c.PersonalInfo.LinkedIn, c.PersonalInfo.GitHub),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render resume html: %w", err)
	}
	return buf.String(), nil
}

func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dates(start, end string) string {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	switch {
	case start != "" && end != "":
		return start + " – " + end
	case start != "":
		return start
	default:
		return end
	}
}
