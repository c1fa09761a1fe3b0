package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
)

var (
	speakOut     string
	speakPreload bool
)

var speakCmd = &cobra.Command{
	Use:   "speak <id>",
	Short: "Synthesize the task explanation as speech",
	Long: `Synthesizes the German task description as audio. Clips are cached in
memory and persisted alongside the task, so repeating the command is free.
--out writes the clip as raw 24 kHz mono 16-bit PCM.`,
	Args: cobra.ExactArgs(1),
	RunE: runSpeak,
}

func init() {
	speakCmd.Flags().StringVar(&speakOut, "out", "", "write raw PCM to this file")
	speakCmd.Flags().BoolVar(&speakPreload, "preload", false, "also warm the cache for every task with stored audio")
	rootCmd.AddCommand(speakCmd)
}

func runSpeak(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := catalog.Load(ctx); err != nil {
		return err
	}

	task, ok := resolveTask(args[0])
	if !ok {
		return fmt.Errorf("task %q not found", args[0])
	}

	clip, cached, err := audioCache.Get(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("reading audio cache: %w", err)
	}

	if !cached {
		text := task.TaskDescriptionDE
		if text == "" {
			text = task.TaskTitle
		}

		speech, err := newSpeech()
		if err != nil {
			return err
		}
		defer speech.Close()

		clip, err = speech.Synthesize(ctx, text)
		if err != nil {
			return err
		}
		audioCache.Set(ctx, task.ID, clip)
	}

	origin := "synthesized"
	if cached {
		origin = "cached"
	}
	cmd.Printf("%s: %.1fs of audio (%s)\n", task.DisplayID, clip.Duration(), origin)

	if speakOut != "" {
		if err := os.WriteFile(speakOut, pcm16Bytes(clip), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", speakOut, err)
		}
		cmd.Printf("Wrote %s\n", speakOut)
	}

	if speakPreload {
		var keys []string
		for _, t := range catalog.GetAll() {
			keys = append(keys, t.ID)
		}
		cmd.Printf("Preloaded %d clips.\n", audioCache.Preload(ctx, keys))
	}
	return nil
}

// pcm16Bytes renders the clip as little-endian 16-bit PCM for --out.
func pcm16Bytes(clip *domain.AudioClip) []byte {
	out := make([]byte, len(clip.Samples)*2)
	for i, sample := range clip.Samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		v := int16(sample * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}
