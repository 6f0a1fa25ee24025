package tasks

import (
	"fmt"

	"github.com/mnicolasvega/taskcommander/pkg/task"
)

func init() {
	task.Register("transcription", func() task.Task { return &TranscriptionTask{} })
}

// TranscriptionTask declares the manifest of a speech-to-text job: apt
// ffmpeg (installed at image-build time) and pip whisper/torch
// (installed when the container starts). Its Run only reports the model
// and audio directory with an empty segment list; it does not transcribe
// anything itself. Declaring dependencies and connectivity gives its
// container outbound network access.
type TranscriptionTask struct{}

func (t *TranscriptionTask) Name() string { return "transcription" }

func (t *TranscriptionTask) Interval() (int, bool) { return 300, false }

func (t *TranscriptionTask) Run(params task.Params) (task.Result, error) {
	inputDir, _ := params["audio_dir"].(string)
	if inputDir == "" {
		inputDir = "/data/audio"
	}
	model, _ := params["model"].(string)
	if model == "" {
		model = "base"
	}

	// No audio is read or transcribed here; the result carries only the
	// resolved settings.
	return task.Result{
		"model":     model,
		"audio_dir": inputDir,
		"segments":  []string{},
	}, nil
}

func (t *TranscriptionTask) TextOutput(result task.Result) string {
	model, _ := result["model"].(string)
	return fmt.Sprintf("transcription: model=%s complete", model)
}

func (t *TranscriptionTask) HTMLOutput(result task.Result) string {
	model, _ := result["model"].(string)
	return fmt.Sprintf("<p>Transcription run with model <code>%s</code></p>", model)
}

func (t *TranscriptionTask) Dependencies() task.Dependencies {
	return task.Dependencies{
		Pip: []string{"openai-whisper", "torch"},
		Apt: []string{"ffmpeg"},
	}
}

func (t *TranscriptionTask) Volumes(params task.Params) []task.Volume {
	dir, _ := params["audio_dir"].(string)
	if dir == "" {
		dir = "/data/audio"
	}
	return []task.Volume{{HostPath: dir, Bind: "/data/audio", Mode: task.VolumeReadOnly}}
}

func (t *TranscriptionTask) Ports(task.Params) map[int]int { return nil }

func (t *TranscriptionTask) RequiresConnection() bool { return true }

func (t *TranscriptionTask) Resources() task.Resources {
	return task.Resources{CPUCores: 2, MemoryGBs: 4}
}

func (t *TranscriptionTask) MaxTimeExpected() int { return 180000 }
