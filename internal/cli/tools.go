package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

type toolParamInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Params      []toolParamInfo `json:"params"`
}

func newToolsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the language model",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			registry := app.newRegistry(nil, app.newClient())

			specs := registry.Describe()
			infos := make([]toolInfo, 0, len(specs))
			for _, s := range specs {
				info := toolInfo{Name: s.Name, Description: s.Description, Params: make([]toolParamInfo, 0, len(s.Params))}
				for _, p := range s.Params {
					info.Params = append(info.Params, toolParamInfo{Name: p.Name, Type: string(p.Type), Description: p.Description})
				}
				infos = append(infos, info)
			}

			if output.IsJSON() {
				return output.JSON(infos)
			}

			table := NewTable(output, "Tool", "Parameters", "Description")
			for _, info := range infos {
				params := make([]string, 0, len(info.Params))
				for _, p := range info.Params {
					params = append(params, p.Name+":"+p.Type)
				}
				table.AddRow(output.Cyan(info.Name), strings.Join(params, ", "), TruncateString(info.Description, 70))
			}
			table.Render()
			return nil
		},
	}
}
