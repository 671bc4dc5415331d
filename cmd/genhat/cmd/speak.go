package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/genhat/genhat-core/pkg/speech"
	"github.com/spf13/cobra"
)

var (
	speakText   string
	speakModel  string
	speakOutput string
	speakSeed   int
	speakRefWAV string
)

var speakCmd = &cobra.Command{
	Use:   "speak",
	Short: "Synthesize speech to a WAV file",
	Long: `Run the speech-synthesis backend once and print the path of the WAV file
it wrote. The speech model defaults to the first s3gen*.gguf in the models
directory; its ve_ and t3_ components must sit next to it.

Example:
  genhat speak --text "Hello from GenHat"`,
	RunE: runSpeak,
}

func init() {
	rootCmd.AddCommand(speakCmd)

	flags := speakCmd.Flags()
	flags.StringVar(&speakText, "text", "", "Text to synthesize")
	flags.StringVar(&speakModel, "model", "", "Speech model path")
	flags.StringVarP(&speakOutput, "output", "o", "", "Output WAV path (default: a new file in the temp dir)")
	flags.IntVar(&speakSeed, "seed", -1, "Sampling seed (-1 leaves it to the backend)")
	flags.StringVar(&speakRefWAV, "ref-wav", "", "Reference voice WAV")
	_ = speakCmd.MarkFlagRequired("text")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	a, err := buildApp(&launcher.NoopEventPublisher{})
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	req := speech.Request{
		Text:         speakText,
		ModelPath:    speakModel,
		OutputPath:   speakOutput,
		ReferenceWAV: speakRefWAV,
	}
	if speakSeed >= 0 {
		seed := speakSeed
		req.Seed = &seed
	}

	uiInstance.Info(fmt.Sprintf("Synthesizing %d characters...", len(speakText)))
	res, err := a.Speak(cmd.Context(), req)
	if err != nil {
		return err
	}

	uiInstance.Success("Wrote " + res.ArtifactPath)
	uiInstance.KeyValue("Model", res.Model.Name)
	uiInstance.KeyValue("Took", res.Duration.Round(time.Millisecond).String())
	return nil
}
