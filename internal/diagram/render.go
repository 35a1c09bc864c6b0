package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/c360studio/codetrail/internal/digest"
)

// Renderer turns diagram source text into final output bytes (SVG or
// similar). External renderers are only ever probed and invoked
// locally — a run never opens network sockets, so Renderer has no
// remote implementation.
type Renderer interface {
	Name() string
	Available() bool
	Render(ctx context.Context, source []byte, format Format) ([]byte, error)
}

// ExternalRenderer shells out to a locally installed binary. Available
// probes via exec.LookPath; Render pipes source on stdin and captures
// stdout, exactly the "invoked only if the binary is already present
// locally" rule: a binary that is not installed is never fetched.
type ExternalRenderer struct {
	BinaryName string
	Args       func(format Format) []string
}

func (r *ExternalRenderer) Name() string { return r.BinaryName }

func (r *ExternalRenderer) Available() bool {
	_, err := exec.LookPath(r.BinaryName)
	return err == nil
}

func (r *ExternalRenderer) Render(ctx context.Context, source []byte, format Format) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.BinaryName, r.Args(format)...)
	cmd.Stdin = bytes.NewReader(source)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("render with %s: %w", r.BinaryName, err)
	}
	return out.Bytes(), nil
}

// FallbackRenderer never fails and never shells out: it wraps the
// diagram source text in a minimal, byte-stable SVG document, the
// visually simpler but byte-stable output used when no external
// renderer is available.
type FallbackRenderer struct{}

func (FallbackRenderer) Name() string    { return "fallback" }
func (FallbackRenderer) Available() bool { return true }
func (FallbackRenderer) Render(_ context.Context, source []byte, _ Format) ([]byte, error) {
	lines := bytes.Split(source, []byte("\n"))
	var sb bytes.Buffer
	sb.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" version="1.1">` + "\n")
	sb.WriteString("  <text>\n")
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "    <tspan x=\"4\" y=\"%d\" xml:space=\"preserve\">%s</tspan>\n", (i+1)*14, escapeXML(line))
	}
	sb.WriteString("  </text>\n")
	sb.WriteString("</svg>\n")
	return sb.Bytes(), nil
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeXML(b []byte) string {
	return xmlEscaper.Replace(string(b))
}

// DefaultRenderers returns the external renderer chain probed for a
// format: mermaid-cli, plantuml, and graphviz respectively. Each is
// invoked only when already installed locally.
func DefaultRenderers(format Format) []Renderer {
	switch format {
	case FormatMermaid:
		return []Renderer{&ExternalRenderer{
			BinaryName: "mmdc",
			Args:       func(Format) []string { return []string{"--input", "-", "--outputFormat", "svg"} },
		}}
	case FormatPlantUML:
		return []Renderer{&ExternalRenderer{
			BinaryName: "plantuml",
			Args:       func(Format) []string { return []string{"-tsvg", "-pipe"} },
		}}
	case FormatGraphviz:
		return []Renderer{&ExternalRenderer{
			BinaryName: "dot",
			Args:       func(Format) []string { return []string{"-Tsvg"} },
		}}
	default:
		return nil
	}
}

// CacheKey derives the per-template cache key: SHA-256 over
// (preset, format, theme_id, subgraph_digest).
func CacheKey(preset Preset, format Format, theme ThemeName, subgraphDigest string) string {
	return digest.Bytes([]byte(string(preset) + "\x1f" + string(format) + "\x1f" + string(theme) + "\x1f" + subgraphDigest))
}
