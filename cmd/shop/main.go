package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	service     = "shop"
	defaultAddr = ":8080"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "shop",
		Short:         "InterShop catalog, cart and checkout service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(reconcileCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
