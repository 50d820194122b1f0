package cmd

import (
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/stringutil"
)

// CmdTasks prints the loaded task catalog.
func CmdTasks() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "tasks",
			Short: "Print the task catalog",
		},
		nil,
		runTasks,
	)
}

func runTasks(ctx *Context, _ []string) error {
	cat, err := loadCatalog(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Category", "Triggers", "Messages", "Replay", "Gate", "Command"})
	for _, task := range cat.Tasks() {
		replay := "inf"
		if task.Replay != nil {
			replay = strconv.Itoa(*task.Replay)
		}
		gate := ""
		if task.ParentSuccess {
			gate = "parents"
		}
		t.AppendRow(table.Row{
			task.Name,
			stringutil.CategoryDisplay(task.ConfigSource),
			strings.Join(task.Triggers, "\n"),
			strings.Join(task.Messages, "\n"),
			replay,
			gate,
			stringutil.TruncString(task.Command, 60),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}
