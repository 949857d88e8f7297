package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/eventmsg/internal/meta"
)

var (
	manDir  string
	docsDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for the eventmsg CLI",
	Long: `This command automatically generates up-to-date man pages of the
	eventmsg CLI. By default, it creates the man page files
	in the "man" directory under the current directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "eventmsg Manual",
			Source:  fmt.Sprintf("eventmsg %s", meta.GetInfo().Version),
		}

		dir, err := prepareDir(cmd, manDir)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Generating eventmsg man pages in", dir, "...")

		if err := doc.GenManTree(cmd.Root(), header, dir); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Done.")

		return nil
	},
}

var MarkdownCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate markdown reference pages for the eventmsg CLI",

	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := prepareDir(cmd, docsDir)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Generating eventmsg markdown pages in", dir, "...")

		if err := doc.GenMarkdownTree(cmd.Root(), dir); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Done.")

		return nil
	},
}

func prepareDir(cmd *cobra.Command, dir string) (string, error) {
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}

	if _, err := os.Stat(dir); err != nil && os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "Directory", dir, "does not exist, creating...")
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", err
		}
	}

	cmd.Root().DisableAutoGenTag = true

	return dir, nil
}

func init() {
	flags := ManPagesCmd.PersistentFlags()

	flags.StringVar(&manDir, "dir", "man/", "the directory to write the man pages.")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}

	MarkdownCmd.PersistentFlags().StringVar(&docsDir, "dir", "docs/cli/", "the directory to write the markdown pages.")
}
