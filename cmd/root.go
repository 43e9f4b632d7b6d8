package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "deepscout"}

	root.AddCommand(serveCMD(), researchCMD(), tokenCMD())
	_ = root.Execute()
}
