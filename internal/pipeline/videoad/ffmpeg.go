package videoad

import (
	"context"
	"fmt"
	"os/exec"
)

// buildMuxArgs pairs one silent clip with its narration track. Video is
// stream-copied; audio is re-encoded to AAC. The shorter stream wins so a
// long narration never freezes on the clip's last frame.
func buildMuxArgs(videoPath, audioPath, outPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		outPath,
	}
}

// buildConcatArgs joins the muxed clips listed in listPath into the final
// ad using the concat demuxer.
func buildConcatArgs(listPath, outPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
}

func runFFmpeg(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", bin, args, err, out)
	}
	return nil
}
