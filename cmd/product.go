package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/smazurov/nodewarden/internal/config"
	"github.com/spf13/cobra"
)

// CreateProductCmd creates the product command with its CRUD subcommands.
// Products are the supervised applications the device runs while idle;
// edits take effect on the next boot or config-mode exit.
func CreateProductCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage supervised product applications",
		Long: `Adds, lists, enables, disables, and removes the product applications ` +
			`the supervisor launches at boot. Definitions live in products.toml.`,
	}
	cmd.PersistentFlags().StringVar(&configFile, "products-config", "products.toml",
		"Path to products configuration file")

	cmd.AddCommand(createProductAddCmd(&configFile))
	cmd.AddCommand(createProductListCmd(&configFile))
	cmd.AddCommand(createProductRemoveCmd(&configFile))
	cmd.AddCommand(createProductSetEnabledCmd(&configFile, "enable", true))
	cmd.AddCommand(createProductSetEnabledCmd(&configFile, "disable", false))

	return cmd
}

func loadProducts(configFile string) *config.ProductManager {
	pm := config.NewProductManager(configFile)
	if err := pm.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return pm
}

func createProductAddCmd(configFile *string) *cobra.Command {
	var name string
	var command string
	var user string
	var dir string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add [product-id]",
		Short: "Add a product application",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			pm := loadProducts(*configFile)
			err := pm.AddProduct(config.ProductConfig{
				ID:      args[0],
				Name:    name,
				Command: command,
				User:    user,
				Dir:     dir,
			})
			// AddProduct registers enabled; flip afterwards when asked.
			if err == nil && disabled {
				err = pm.DisableProduct(args[0])
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Added product %s\n", args[0])
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable product name (defaults to the id)")
	cmd.Flags().StringVar(&command, "command", "", "Command line to run (required)")
	cmd.Flags().StringVar(&user, "user", "", "System account to run as")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Register without enabling")

	return cmd
}

func createProductListCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured product applications",
		Run: func(_ *cobra.Command, _ []string) {
			pm := loadProducts(*configFile)
			products := pm.GetProducts()
			if len(products) == 0 {
				fmt.Println("No products configured")
				return
			}

			ids := make([]string, 0, len(products))
			for id := range products {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				p := products[id]
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-20s %-8s %s\n", id, state, p.Command)
			}
		},
	}
}

func createProductRemoveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [product-id]",
		Short: "Remove a product application",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			pm := loadProducts(*configFile)
			if err := pm.RemoveProduct(args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Removed product %s\n", args[0])
		},
	}
}

func createProductSetEnabledCmd(configFile *string, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [product-id]",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a product application",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			pm := loadProducts(*configFile)
			var err error
			if enabled {
				err = pm.EnableProduct(args[0])
			} else {
				err = pm.DisableProduct(args[0])
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Product %s %sd\n", args[0], verb)
		},
	}
}
