package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-instrument/embedder"
	"github.com/wippyai/wasm-instrument/instrument"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// styled reports whether w is a terminal worth decorating.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, color: styled(w)}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) title(text string) {
	fmt.Fprintln(p.w, p.render(titleStyle, text))
}

func (p *printer) field(name string, value any) {
	fmt.Fprintf(p.w, "  %-18s %s\n", name+":", p.render(typeStyle, fmt.Sprint(value)))
}

func (p *printer) instrumented(name string, in int, out *instrument.Output) {
	p.title(name)
	p.field("input bytes", in)
	p.field("output bytes", len(out.Binary))
	p.field("functions", out.Stats.Functions)
	p.field("instructions", out.Stats.Instructions)
	p.field("injection points", out.Stats.InjectionPoints)
	p.field("dynamic points", out.Stats.DynamicPoints)
	p.field("memory.grow sites", out.Stats.MemoryGrows)
	p.field("data segments", len(out.Data))
	p.field("data bytes", out.Data.TotalBytes())
	p.field("compilation cost", out.CompilationCost)
	if len(out.ExportedMethods) > 0 {
		names := make([]string, len(out.ExportedMethods))
		for i, m := range out.ExportedMethods {
			names[i] = m.String()
		}
		fmt.Fprintln(p.w, "  methods:")
		for _, n := range names {
			fmt.Fprintf(p.w, "    %s\n", p.render(funcStyle, n))
		}
	}
}

func (p *printer) plan(plans []instrument.FunctionPlan) {
	for _, fp := range plans {
		p.title(fmt.Sprintf("function[%d]", fp.FuncIdx))
		p.field("instructions", fp.Instructions)
		for _, pt := range fp.Points {
			fmt.Fprintf(p.w, "    %s\n", p.render(funcStyle, pt.String()))
		}
	}
}

func (p *printer) call(export string, f funcInfo, res *embedder.CallResult, err error) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(funcStyle, export), p.render(typeStyle, f.signature()))
	if res != nil {
		if len(res.Results) > 0 {
			fmt.Fprintf(p.w, "  result:       %s\n", p.render(resultStyle, formatResults(f.results, res.Results)))
		}
		fmt.Fprintf(p.w, "  instructions: %d\n", res.Instructions)
		fmt.Fprintf(p.w, "  remaining:    %d\n", res.Remaining)
	}
	if err != nil {
		fmt.Fprintf(p.w, "  %s\n", p.render(errorStyle, "error: "+err.Error()))
	}
}

func (p *printer) failure(name string, err error) {
	fmt.Fprintf(p.w, "%s %s\n", name, p.render(errorStyle, err.Error()))
}

func (p *printer) help(keys ...string) string {
	return p.render(helpStyle, strings.Join(keys, " • "))
}
