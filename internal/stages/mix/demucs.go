package mix

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

// globNoVocals finds the no_vocals stem anywhere under the demucs output
// tree; the layout is <out>/<model>/<track>/no_vocals.wav.
func globNoVocals(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "no_vocals.wav" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan demucs output: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("demucs produced no no_vocals stem")
	}
	return found, nil
}
