package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/timmskiller/ctrgo/internal/config"
	"github.com/timmskiller/ctrgo/internal/ctr/cia"
	"github.com/timmskiller/ctrgo/internal/ctr/keys"
	"github.com/timmskiller/ctrgo/internal/logger"
	"github.com/timmskiller/ctrgo/internal/utils/fsutil"
)

var (
	extractOutputDir string
	extractSections  bool
	extractContents  bool
)

// ciaCmd groups the CIA container subcommands
var ciaCmd = &cobra.Command{
	Use:   "cia",
	Short: "Inspect and extract CIA containers",
}

// ciaInfoCmd prints the container layout and content list
var ciaInfoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show the regions and contents of a CIA container",
	Args:  cobra.ExactArgs(1),
	RunE:  runCIAInfo,
}

// ciaExtractCmd extracts sections and/or contents to files
var ciaExtractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract sections and contents from a CIA container",
	Args:  cobra.ExactArgs(1),
	RunE:  runCIAExtract,
}

func init() {
	ciaExtractCmd.Flags().StringVarP(&extractOutputDir, "output", "o", "", "output directory (default from config)")
	ciaExtractCmd.Flags().BoolVar(&extractSections, "sections", false, "extract raw sections")
	ciaExtractCmd.Flags().BoolVar(&extractContents, "contents", false, "extract content payloads")

	ciaCmd.AddCommand(ciaInfoCmd)
	ciaCmd.AddCommand(ciaExtractCmd)
	rootCmd.AddCommand(ciaCmd)
}

// openContainer maps the container file and parses its layout
func openContainer(path string) (*fsutil.MappedFile, *cia.CIA, error) {
	mapped, err := fsutil.MapFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open container: %w", err)
	}

	container, err := cia.Parse(io.NewSectionReader(mapped, 0, mapped.Size()))
	if err != nil {
		mapped.Close()
		return nil, nil, err
	}
	return mapped, container, nil
}

// keyEngine builds a key engine from the configured key file, or returns
// nil when none was configured
func keyEngine() (*keys.Engine, error) {
	keysFile := config.Instance.Keys.File
	if keysFile == "" {
		return nil, nil
	}

	engine := keys.NewEngine()
	if err := engine.LoadFile(keysFile); err != nil {
		return nil, fmt.Errorf("failed to load key file: %w", err)
	}
	return engine, nil
}

func runCIAInfo(cmd *cobra.Command, args []string) error {
	mapped, container, err := openContainer(args[0])
	if err != nil {
		return err
	}
	defer mapped.Close()

	fmt.Printf("Title ID:      %016X\n", container.TMD.TitleID)
	fmt.Printf("Title version: %d\n", container.TMD.TitleVersion)
	fmt.Printf("Signature:     %s\n", container.TMD.SignatureType)
	fmt.Println()

	fmt.Println("Regions:")
	for _, region := range container.OrderedRegions() {
		fmt.Printf("  %s\n", region)
	}
	fmt.Println()

	fmt.Printf("Contents (%d):\n", len(container.Contents))
	for _, chunk := range container.Contents {
		state := "plain"
		if chunk.Encrypted() {
			state = "encrypted"
		}
		fmt.Printf("  %s.app  index %-5d  %10d bytes  %s\n", chunk.Name(), chunk.Index, chunk.Size, state)
	}

	return nil
}

func runCIAExtract(cmd *cobra.Command, args []string) error {
	mapped, container, err := openContainer(args[0])
	if err != nil {
		return err
	}
	defer mapped.Close()

	outputDir := extractOutputDir
	if outputDir == "" {
		outputDir = config.Instance.Extract.OutputDir
	}

	// Default to extracting everything when neither flag is given
	doSections := extractSections
	doContents := extractContents
	if !doSections && !doContents {
		doSections = true
		doContents = true
	}

	if doSections {
		logger.LogInfo("Extracting sections", map[string]interface{}{
			"container": args[0],
			"output":    outputDir,
		})
		if err := container.ExtractAllSections(mapped, outputDir); err != nil {
			return err
		}
	}

	if doContents {
		engine, err := keyEngine()
		if err != nil {
			return err
		}

		logger.LogInfo("Extracting contents", map[string]interface{}{
			"container": args[0],
			"output":    outputDir,
			"contents":  len(container.Contents),
		})
		if err := container.ExtractAllContents(mapped, outputDir, engine); err != nil {
			return err
		}
	}

	return nil
}
