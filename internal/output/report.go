/*
PURPOSE:
  Writes the final search report as JSON or YAML.

REQUIREMENTS:
  Implementation-discovered:
  - Format follows the file extension; .yaml/.yml get YAML, everything else JSON.
  - A partial report from a failed or canceled search is still written.

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// EncodeReport renders the report as YAML for .yaml/.yml paths and as
// indented JSON otherwise.
func EncodeReport(path string, r *model.Report) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(r)
	default:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

// WriteReport writes the final report. The file is replaced atomically so a
// reader never sees a half written report.
func WriteReport(path string, r *model.Report) error {
	data, err := EncodeReport(path, r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move report into place at %s: %w", path, err)
	}
	return nil
}
