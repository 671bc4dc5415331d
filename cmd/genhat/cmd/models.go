package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var modelsOutput string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models in the models directory",
	Long: `List the text-generation models and speech assets found in the models
directory.

Example:
  genhat models
  genhat models -o yaml`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVarP(&modelsOutput, "output", "o", "table", "Output format (table or yaml)")
}

// modelListing is the yaml output of the models command
type modelListing struct {
	Dir    string         `yaml:"dir"`
	Models []models.Model `yaml:"models"`
	Speech []models.Model `yaml:"speech"`
}

func runModels(cmd *cobra.Command, args []string) error {
	a, err := buildApp(&launcher.NoopEventPublisher{})
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	text, err := a.ListModels()
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	speech, err := a.SpeechAssets()
	if err != nil {
		return fmt.Errorf("list speech assets: %w", err)
	}

	switch modelsOutput {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(modelListing{Dir: a.ModelsDir(), Models: text, Speech: speech})
	case "table":
	default:
		return launcher.ErrInvalidConfiguration("output", modelsOutput, "must be table or yaml")
	}

	uiInstance.Header("Models in " + a.ModelsDir())
	if len(text) == 0 {
		uiInstance.Warning(fmt.Sprintf("No models found in %s", a.ModelsDir()))
	} else {
		table := uiInstance.NewTable("NAME", "PATH")
		for _, m := range text {
			name := m.Name
			if name == models.DefaultModelName {
				name += " (default)"
			}
			table.AddRow(name, m.Path)
		}
		table.Render()
	}

	uiInstance.Println("")
	uiInstance.Header("Speech assets")
	if len(speech) == 0 {
		uiInstance.Subtle("none")
		return nil
	}
	for _, m := range speech {
		uiInstance.ListItem(m.Name)
	}
	return nil
}
