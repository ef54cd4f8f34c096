package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices of the selected backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.Close()

		driver, err := newDriver(env.cfg, env.log)
		if err != nil {
			return err
		}
		defer driver.Close()

		devices, err := driver.ListDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No input devices found")
			return nil
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %s\t%s\n", marker, d.ID, d.Name)
		}
		return nil
	},
}

var constantsCmd = &cobra.Command{
	Use:   "constants",
	Short: "Print the audio constants table as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(audio.Constants())
	},
}
