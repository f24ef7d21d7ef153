package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/bnema/ephemera/internal/adapters/in/cli/ui/styles"
)

var cliWriteLine = func(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, msg)
	return err
}

func cliRenderTitle(msg string) string {
	return styles.Theme.Title.Render(msg)
}

func cliRenderMuted(msg string) string {
	return styles.Theme.Muted.Render(msg)
}

func cliRenderMeta(label, value string) string {
	return styles.Theme.Label.Render(label) + " " + styles.Theme.Muted.Render(value)
}

func cliRenderSuccess(msg string) string {
	return styles.RenderSuccess(msg)
}

func cliRenderWarning(msg string) string {
	return styles.RenderWarning(msg)
}

func cliRenderError(msg string) string {
	return styles.RenderError(msg)
}

// cliRenderCommand renders a command line followed by its output block.
func cliRenderCommand(command, output string) string {
	header := styles.Theme.Bold.Render("$ " + command)
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return header + "\n" + cliRenderMuted("(no output)")
	}
	return header + "\n" + styles.Theme.Output.Render(output)
}
