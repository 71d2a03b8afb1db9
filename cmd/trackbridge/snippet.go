package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackbridge"
	"github.com/jpalmerr/trackbridge/config"
	"github.com/jpalmerr/trackbridge/internal/dom"
)

// snippetCmd prints the script element for a configuration.
var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Print the tracking script tag",
	Long: `Print the <script> element that loads the tracking script.

The element carries the website ID and every behavioural setting as data
attributes. Paste it into the <head> of each page, or use "inject".

Example:
  trackbridge snippet -c config.yaml
  UMAMI_WEBSITE_ID=abc trackbridge snippet`,
	RunE: runSnippet,
}

// injectCmd adds the script element to an HTML file.
var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Add the tracking script tag to an HTML file",
	Long: `Add the tracking <script> element to the <head> of an HTML document.

A document that already contains the element is written out unchanged, so
running inject twice is safe. Use "-" as input to read from stdin.

Example:
  trackbridge inject -c config.yaml -i public/index.html -o dist/index.html
  cat index.html | trackbridge inject -i - > out.html`,
	RunE: runInject,
}

func init() {
	rootCmd.AddCommand(snippetCmd)
	rootCmd.AddCommand(injectCmd)

	addConfigFlag(snippetCmd, false)

	addConfigFlag(injectCmd, false)
	injectCmd.Flags().StringP("input", "i", "", "HTML file to read, or - for stdin (required)")
	injectCmd.Flags().StringP("output", "o", "", "file to write (default stdout)")
	_ = injectCmd.MarkFlagRequired("input")
}

// resolveConfig loads the config file and resolves it against the
// environment. A missing website ID is an error here.
func resolveConfig(cmd *cobra.Command) (trackbridge.Config, *config.Config, error) {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return trackbridge.Config{}, nil, err
	}
	cfg, err := trackbridge.ResolveConfig(config.BuildOptions(fileCfg)...)
	if err != nil {
		return trackbridge.Config{}, nil, err
	}
	return cfg, fileCfg, nil
}

func runSnippet(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), trackbridge.ScriptTag(cfg))
	return err
}

func runInject(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")

	var src []byte
	if input == "-" {
		src, err = io.ReadAll(cmd.InOrStdin())
	} else {
		src, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	doc, err := dom.Parse(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	injected, err := trackbridge.InjectScript(doc, cfg)
	if err != nil {
		return err
	}

	out := src
	if injected {
		var buf bytes.Buffer
		if err := dom.Render(&buf, doc); err != nil {
			return fmt.Errorf("failed to render HTML: %w", err)
		}
		out = buf.Bytes()
	}

	if output == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if injected {
		fmt.Fprintf(cmd.ErrOrStderr(), "injected tracking script into %s\n", output)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s already has the tracking script\n", output)
	}
	return nil
}
