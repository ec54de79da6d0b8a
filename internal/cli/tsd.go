package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/tsd"
)

var tsdCmd = &cobra.Command{
	Use:   "tsd",
	Short: "Inspect task-specific definitions",
}

var tsdValidateCmd = &cobra.Command{
	Use:   "validate <dir-or-file>",
	Short: "Validate TSD documents",
	Long: `Validate one TSD document or every .json document in a directory.
Reports each malformed or invalid document and exits non-zero when any
fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runTSDValidate,
}

func init() {
	tsdCmd.AddCommand(tsdValidateCmd)
	rootCmd.AddCommand(tsdCmd)
}

func runTSDValidate(cmd *cobra.Command, args []string) error {
	target := args[0]

	info, err := os.Stat(target)
	if err != nil {
		return err
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(target)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(target, entry.Name()))
		}
	} else {
		files = []string{target}
	}

	if len(files) == 0 {
		fmt.Println("no TSD documents found")
		return nil
	}

	failed := 0
	for _, file := range files {
		if err := validateTSDFile(file); err != nil {
			fmt.Printf("FAIL %s: %v\n", file, err)
			failed++
			continue
		}
		fmt.Printf("ok   %s\n", file)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents invalid", failed, len(files))
	}
	return nil
}

func validateTSDFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var def tsd.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if def.ToolName == "" {
		def.ToolName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return def.Validate()
}
