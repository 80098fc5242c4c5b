package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed playground.html
var playgroundSource string

var playgroundTemplate = template.Must(template.New("playground").Parse(playgroundSource))

// PlaygroundConfig configures the GraphQL Playground page.
type PlaygroundConfig struct {
	Title                string
	Endpoint             string
	SubscriptionEndpoint string
}

// RenderPlayground renders the playground page.
func RenderPlayground(cfg PlaygroundConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := playgroundTemplate.Execute(&buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var playgroundPage = func() []byte {
	page, err := RenderPlayground(PlaygroundConfig{Title: "GraphQL Playground", Endpoint: "/", SubscriptionEndpoint: "/ws"})
	if err != nil {
		panic(err)
	}
	return page
}()

func (h *Handler) servePlayground(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(playgroundPage)
}
